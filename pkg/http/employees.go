package http

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"liyu1981.xyz/vital-signs-service/pkg/iot"
	"liyu1981.xyz/vital-signs-service/pkg/models"
	"liyu1981.xyz/vital-signs-service/pkg/report"

	z "github.com/Oudwins/zog"
	"github.com/Oudwins/zog/zhttp"
)

const xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

type EmployeeRequest struct {
	Name          string  `json:"name"`
	Age           int     `json:"age"`
	Gender        string  `json:"gender"`
	Location      string  `json:"location"`
	BloodGroup    string  `json:"blood_group" zog:"blood_group"`
	ContactNumber string  `json:"contact_number" zog:"contact_number"`
	Height        float64 `json:"height"`
	Weight        float64 `json:"weight"`
}

var employeeRequestSchema = z.Struct(z.Shape{
	"Name":          z.String().Min(1).Max(128).Required(),
	"Age":           z.Int().GTE(0).LTE(150),
	"Gender":        z.String().Max(32),
	"Location":      z.String().Max(128),
	"BloodGroup":    z.String().Max(8),
	"ContactNumber": z.String().Max(32),
	"Height":        z.Float64().GTE(0),
	"Weight":        z.Float64().GTE(0),
})

func (rs *RestfulServer) PostEmployee(c *gin.Context) {
	var req EmployeeRequest
	if err := employeeRequestSchema.Parse(zhttp.Request(c.Request), &req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err})
		return
	}

	employee := models.Employee{
		Name:          req.Name,
		Age:           req.Age,
		Gender:        req.Gender,
		Location:      req.Location,
		BloodGroup:    req.BloodGroup,
		ContactNumber: req.ContactNumber,
		Height:        req.Height,
		Weight:        req.Weight,
	}
	if err := rs.Roster.InsertEmployee(c.Request.Context(), &employee); err != nil {
		if errors.Is(err, iot.ErrInvalidInput) {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusCreated, employee)
}

// SearchEmployees matches ?q= against name or id; no query lists everyone.
func (rs *RestfulServer) SearchEmployees(c *gin.Context) {
	employees, err := rs.Iot.Employee.SearchEmployees(c.Request.Context(), c.Query("q"))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if employees == nil {
		employees = []models.Employee{}
	}

	c.JSON(http.StatusOK, employees)
}

func (rs *RestfulServer) ExportEmployees(c *gin.Context) {
	employees, err := rs.Iot.Employee.SearchEmployees(c.Request.Context(), "")
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	data, err := report.RosterXLSX(employees)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.Header("Content-Disposition", `attachment; filename="employees.xlsx"`)
	c.Data(http.StatusOK, xlsxContentType, data)
}
