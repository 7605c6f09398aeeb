// Package report renders downloadable documents: a per-device vital signs
// report and the employee roster export.
package report

import (
	"bytes"
	"fmt"
	"time"

	"github.com/jung-kurt/gofpdf"
	"liyu1981.xyz/vital-signs-service/pkg/models"
	"liyu1981.xyz/vital-signs-service/pkg/vitals"
)

type DeviceReport struct {
	DeviceID    string
	Employee    string
	Connected   bool
	Unit        vitals.Unit
	Snapshot    vitals.Snapshot
	Histories   map[models.VitalKind][]vitals.HistoryPoint
	GeneratedAt time.Time
}

type pdfWriter struct {
	pdf *gofpdf.Fpdf
	tr  func(string) string
}

// VitalSignsPDF renders r as an A4 PDF document.
func VitalSignsPDF(r DeviceReport) ([]byte, error) {
	pdf := gofpdf.New("P", "mm", "A4", "")
	pdf.SetTitle("Vital Signs Report "+r.DeviceID, true)
	pdf.AddPage()

	w := pdfWriter{pdf: pdf, tr: pdf.UnicodeTranslatorFromDescriptor("")}
	w.header(r)
	w.current(r)
	w.history(r)
	w.alerts(r)

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, fmt.Errorf("failed to generate PDF: %w", err)
	}
	return buf.Bytes(), nil
}

func statusColor(s vitals.Status) (r, g, b int) {
	switch s {
	case vitals.StatusCritical:
		return 220, 53, 69
	case vitals.StatusWarning:
		return 255, 149, 0
	case vitals.StatusNormal:
		return 52, 199, 89
	default:
		return 150, 150, 150
	}
}

func (w pdfWriter) section(title string) {
	w.pdf.SetFont("Arial", "B", 14)
	w.pdf.SetTextColor(0, 51, 102)
	w.pdf.CellFormat(0, 10, title, "", 1, "L", false, 0, "")
	w.pdf.SetTextColor(60, 60, 60)
}

func (w pdfWriter) header(r DeviceReport) {
	pdf := w.pdf
	pdf.SetFont("Arial", "B", 22)
	pdf.SetTextColor(0, 51, 102)
	pdf.CellFormat(0, 14, "Vital Signs Report", "", 1, "L", false, 0, "")

	pdf.SetFont("Arial", "", 11)
	pdf.SetTextColor(90, 90, 90)
	employee := r.Employee
	if employee == "" {
		employee = "Unassigned"
	}
	connection := "Offline"
	if r.Connected {
		connection = "Connected"
	}
	for _, line := range []string{
		"Device: " + r.DeviceID + " (" + connection + ")",
		"Employee: " + employee,
		"Generated: " + r.GeneratedAt.Format("2006-01-02 15:04:05 MST"),
	} {
		pdf.CellFormat(0, 6, w.tr(line), "", 1, "L", false, 0, "")
	}
	if !r.Snapshot.LastReadingAt.IsZero() {
		pdf.CellFormat(0, 6, "Last reading: "+r.Snapshot.LastReadingAt.Format("2006-01-02 15:04:05 MST"), "", 1, "L", false, 0, "")
	}
	pdf.Ln(4)

	red, green, blue := statusColor(r.Snapshot.Status)
	pdf.SetFillColor(red, green, blue)
	pdf.SetTextColor(255, 255, 255)
	pdf.SetFont("Arial", "B", 14)
	pdf.CellFormat(0, 12, "Overall status: "+string(r.Snapshot.Status), "", 1, "C", true, 0, "")
	pdf.Ln(6)
}

func (w pdfWriter) current(r DeviceReport) {
	pdf := w.pdf
	w.section("Current Readings")

	widths := []float64{50, 40, 40, 60}
	pdf.SetFillColor(240, 240, 240)
	pdf.SetFont("Arial", "B", 10)
	for i, h := range []string{"Vital", "Reading", "Status", "Critical streak"} {
		pdf.CellFormat(widths[i], 8, h, "1", 0, "L", true, 0, "")
	}
	pdf.Ln(-1)

	pdf.SetFont("Arial", "", 10)
	for _, kind := range models.VitalKinds {
		state := r.Snapshot.Kinds[kind]
		display := state.Display
		if display == "" {
			display = "--"
		}
		if unit := vitals.UnitLabel(kind, r.Unit); unit != "" && display != "--" {
			display += " " + unit
		}
		status := state.Status
		if status == "" {
			status = vitals.StatusNoData
		}

		pdf.CellFormat(widths[0], 7, vitals.KindLabel(kind), "1", 0, "L", false, 0, "")
		pdf.CellFormat(widths[1], 7, w.tr(display), "1", 0, "L", false, 0, "")
		red, green, blue := statusColor(status)
		pdf.SetTextColor(red, green, blue)
		pdf.CellFormat(widths[2], 7, string(status), "1", 0, "L", false, 0, "")
		pdf.SetTextColor(60, 60, 60)
		pdf.CellFormat(widths[3], 7, fmt.Sprintf("%d", state.ConsecutiveCritical), "1", 0, "L", false, 0, "")
		pdf.Ln(-1)
	}
	pdf.Ln(6)
}

func (w pdfWriter) history(r DeviceReport) {
	pdf := w.pdf
	w.section("Recent History")

	times := map[string]int{}
	var order []time.Time
	for _, kind := range vitals.ChartKinds {
		for _, p := range r.Histories[kind] {
			key := p.At.Format(time.RFC3339Nano)
			if _, ok := times[key]; !ok {
				times[key] = len(order)
				order = append(order, p.At)
			}
		}
	}
	if len(order) == 0 {
		pdf.SetFont("Arial", "I", 10)
		pdf.CellFormat(0, 7, "No readings recorded", "", 1, "L", false, 0, "")
		pdf.Ln(4)
		return
	}

	rows := make([][]string, len(order))
	for i := range rows {
		rows[i] = []string{order[i].Format(vitals.DisplayTimeLayout), "--", "--", "--", "--"}
	}
	for col, kind := range vitals.ChartKinds {
		for _, p := range r.Histories[kind] {
			if p.Value != nil {
				rows[times[p.At.Format(time.RFC3339Nano)]][col+1] = fmt.Sprintf("%g", *p.Value)
			}
		}
	}

	widths := []float64{30, 40, 40, 40, 40}
	pdf.SetFillColor(240, 240, 240)
	pdf.SetFont("Arial", "B", 10)
	headers := []string{"Time"}
	for _, kind := range vitals.ChartKinds {
		headers = append(headers, vitals.KindLabel(kind))
	}
	for i, h := range headers {
		pdf.CellFormat(widths[i], 8, h, "1", 0, "C", true, 0, "")
	}
	pdf.Ln(-1)

	pdf.SetFont("Arial", "", 10)
	for _, row := range rows {
		for i, cell := range row {
			pdf.CellFormat(widths[i], 7, cell, "1", 0, "C", false, 0, "")
		}
		pdf.Ln(-1)
	}
	pdf.Ln(6)
}

func (w pdfWriter) alerts(r DeviceReport) {
	pdf := w.pdf
	w.section("Recent Alerts")

	pdf.SetFont("Arial", "", 10)
	if len(r.Snapshot.Alerts) == 0 {
		pdf.SetFont("Arial", "I", 10)
		pdf.CellFormat(0, 7, "No alerts", "", 1, "L", false, 0, "")
		return
	}
	for _, a := range r.Snapshot.Alerts {
		line := a.Time.Format("2006-01-02 15:04:05") + "  " + a.Message
		pdf.MultiCell(0, 6, w.tr(line), "", "L", false)
	}
}
