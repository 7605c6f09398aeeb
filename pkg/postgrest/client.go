// Package postgrest reads readings from, and writes the roster to, a hosted
// table store exposing the PostgREST protocol.
package postgrest

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"liyu1981.xyz/vital-signs-service/pkg/common"
	"liyu1981.xyz/vital-signs-service/pkg/models"
	"liyu1981.xyz/vital-signs-service/pkg/source"
	"liyu1981.xyz/vital-signs-service/pkg/vitals"
)

const (
	RestPrefix     = "/rest/v1"
	EmployeesTable = "employees"

	// rows are ordered by the column the backend bumps on every write
	OrderColumn = "updated_at"
)

var ErrRequestFailed = errors.New("postgrest request failed")

type Client struct {
	http   *resty.Client
	table  string
	logger *zap.Logger
}

// New builds a client for baseURL. key is sent both as the apikey header and
// as the bearer credential, the way hosted projects expect the anon key.
func New(baseURL string, key string, table string) *Client {
	if table == "" {
		table = common.DefaultReadingsTable
	}
	httpClient := resty.New().
		SetBaseURL(strings.TrimRight(baseURL, "/")).
		SetTimeout(10*time.Second).
		SetRetryCount(2).
		SetRetryWaitTime(500*time.Millisecond).
		SetRetryMaxWaitTime(2*time.Second).
		SetHeader("Accept", "application/json").
		SetHeader("Content-Type", "application/json")
	if key != "" {
		httpClient.SetHeader("apikey", key).SetAuthToken(key)
	}

	return &Client{
		http:   httpClient,
		table:  table,
		logger: common.GetCategoryLogger(common.LoggerNameSource, common.LoggerCategoryPoll),
	}
}

func (c *Client) Table() string {
	return c.table
}

// LatestReadings fetches up to n rows for deviceID, newest first. Rows that
// fail validation are quarantined and skipped.
func (c *Client) LatestReadings(ctx context.Context, deviceID string, n int) ([]vitals.Reading, error) {
	if n <= 0 {
		n = 1
	}

	var rows []map[string]any
	resp, err := c.http.R().
		SetContext(ctx).
		SetPathParam("table", c.table).
		SetQueryParams(map[string]string{
			"select":            "*",
			source.DeviceColumn: "eq." + deviceID,
			"order":             OrderColumn + ".desc",
			"limit":             strconv.Itoa(n),
		}).
		SetResult(&rows).
		Get(RestPrefix + "/{table}")
	if err != nil {
		c.logger.Error("Fetching readings failed", zap.String("device_id", deviceID), zap.Error(err))
		return nil, fmt.Errorf("%w: %w", ErrRequestFailed, err)
	}
	if resp.IsError() {
		c.logger.Error("Fetching readings returned error",
			zap.String("device_id", deviceID),
			zap.Int("status_code", resp.StatusCode()),
			zap.String("body", resp.String()))
		return nil, fmt.Errorf("%w: status %d", ErrRequestFailed, resp.StatusCode())
	}

	readings := make([]vitals.Reading, 0, len(rows))
	for _, row := range rows {
		r, err := source.ParseRow(row)
		if err != nil {
			source.Quarantine("postgrest", row, err)
			continue
		}
		readings = append(readings, r)
	}

	c.logger.Debug("Fetched readings",
		zap.String("device_id", deviceID),
		zap.Int("rows", len(rows)),
		zap.Int("accepted", len(readings)))
	return readings, nil
}

func (c *Client) InsertEmployee(ctx context.Context, employee *models.Employee) error {
	if strings.TrimSpace(employee.Name) == "" {
		return fmt.Errorf("employee name is required")
	}
	if employee.ID == "" {
		employee.ID = uuid.NewString()
	}

	body := map[string]any{
		"id":             employee.ID,
		"name":           employee.Name,
		"age":            employee.Age,
		"gender":         employee.Gender,
		"location":       employee.Location,
		"blood_group":    employee.BloodGroup,
		"contact_number": employee.ContactNumber,
		"height":         employee.Height,
		"weight":         employee.Weight,
	}

	resp, err := c.http.R().
		SetContext(ctx).
		SetPathParam("table", EmployeesTable).
		SetHeader("Prefer", "return=minimal").
		SetBody([]map[string]any{body}).
		Post(RestPrefix + "/{table}")
	if err != nil {
		return fmt.Errorf("%w: %w", ErrRequestFailed, err)
	}
	if resp.IsError() {
		c.logger.Error("Inserting employee returned error",
			zap.String("employee_id", employee.ID),
			zap.Int("status_code", resp.StatusCode()),
			zap.String("body", resp.String()))
		return fmt.Errorf("%w: status %d", ErrRequestFailed, resp.StatusCode())
	}

	common.GetCategoryLogger(common.LoggerNameSource, common.LoggerCategoryEmployee).
		Info("Inserted employee", zap.String("employee_id", employee.ID))
	return nil
}
