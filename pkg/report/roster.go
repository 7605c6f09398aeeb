package report

import (
	"fmt"

	"github.com/xuri/excelize/v2"
	"liyu1981.xyz/vital-signs-service/pkg/models"
)

const RosterSheet = "Employees"

var RosterHeader = []string{
	"ID",
	"Name",
	"Age",
	"Gender",
	"Location",
	"Blood Group",
	"Contact Number",
	"Height (cm)",
	"Weight (kg)",
	"Created At",
}

// RosterXLSX writes the employee roster as a single sheet workbook.
func RosterXLSX(employees []models.Employee) ([]byte, error) {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", RosterSheet); err != nil {
		return nil, fmt.Errorf("failed to rename sheet: %w", err)
	}

	headerStyle, err := f.NewStyle(&excelize.Style{
		Font: &excelize.Font{Bold: true},
		Fill: excelize.Fill{Type: "pattern", Color: []string{"#E6F3FF"}, Pattern: 1},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create header style: %w", err)
	}

	if err := f.SetSheetRow(RosterSheet, "A1", &RosterHeader); err != nil {
		return nil, fmt.Errorf("failed to write header: %w", err)
	}
	last, err := excelize.CoordinatesToCellName(len(RosterHeader), 1)
	if err != nil {
		return nil, err
	}
	if err := f.SetCellStyle(RosterSheet, "A1", last, headerStyle); err != nil {
		return nil, fmt.Errorf("failed to set header style: %w", err)
	}

	for i, e := range employees {
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return nil, err
		}
		created := ""
		if !e.CreatedAt.IsZero() {
			created = e.CreatedAt.Format("2006-01-02 15:04:05")
		}
		row := []any{e.ID, e.Name, e.Age, e.Gender, e.Location, e.BloodGroup, e.ContactNumber, e.Height, e.Weight, created}
		if err := f.SetSheetRow(RosterSheet, cell, &row); err != nil {
			return nil, fmt.Errorf("failed to write row %d: %w", i+2, err)
		}
	}

	for col, width := range []float64{38, 24, 8, 10, 18, 12, 18, 12, 12, 20} {
		name, err := excelize.ColumnNumberToName(col + 1)
		if err != nil {
			return nil, err
		}
		if err := f.SetColWidth(RosterSheet, name, name, width); err != nil {
			return nil, err
		}
	}

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, fmt.Errorf("failed to write workbook: %w", err)
	}
	return buf.Bytes(), nil
}
