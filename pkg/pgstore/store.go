// Package pgstore talks to the readings table directly over the postgres
// wire protocol and listens for row changes with LISTEN/NOTIFY.
package pgstore

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"go.uber.org/zap"
	"liyu1981.xyz/vital-signs-service/pkg/common"
	"liyu1981.xyz/vital-signs-service/pkg/models"
	"liyu1981.xyz/vital-signs-service/pkg/source"
	"liyu1981.xyz/vital-signs-service/pkg/vitals"
)

const (
	NotifyChannel  = "health_status_changes"
	EmployeesTable = "employees"
)

type Store struct {
	db          *sql.DB
	dsn         string
	table       string
	newListener func(dsn string, callback pq.EventCallbackType) notifier
	logger      *zap.Logger
}

// Open connects to dsn and verifies the connection.
func Open(ctx context.Context, dsn string, table string) (*Store, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	db.SetMaxOpenConns(8)
	db.SetMaxIdleConns(2)
	db.SetConnMaxIdleTime(5 * time.Minute)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	return NewWithDB(db, dsn, table), nil
}

func NewWithDB(db *sql.DB, dsn string, table string) *Store {
	if table == "" {
		table = common.DefaultReadingsTable
	}
	return &Store{
		db:          db,
		dsn:         dsn,
		table:       table,
		newListener: newPQListener,
		logger:      common.GetCategoryLogger(common.LoggerNameSource, common.LoggerCategoryPoll),
	}
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) LatestReadings(ctx context.Context, deviceID string, n int) ([]vitals.Reading, error) {
	if n <= 0 {
		n = 1
	}

	query := fmt.Sprintf(`SELECT mac_address, heart_rate, temperature, respiratory_rate, blood_pressure, body_activity, updated_at
		FROM %s WHERE mac_address = $1 ORDER BY updated_at DESC LIMIT $2`, pq.QuoteIdentifier(s.table))

	rows, err := s.db.QueryContext(ctx, query, deviceID, n)
	if err != nil {
		s.logger.Error("Querying readings failed", zap.String("device_id", deviceID), zap.Error(err))
		return nil, fmt.Errorf("query readings: %w", err)
	}
	defer rows.Close()

	readings := make([]vitals.Reading, 0, n)
	for rows.Next() {
		var (
			mac                     sql.NullString
			hr, temp, rr            sql.NullFloat64
			bloodPressure, activity sql.NullString
			updatedAt               sql.NullTime
		)
		if err := rows.Scan(&mac, &hr, &temp, &rr, &bloodPressure, &activity, &updatedAt); err != nil {
			return nil, fmt.Errorf("scan reading: %w", err)
		}

		row := map[string]any{
			source.DeviceColumn: mac.String,
			"blood_pressure":    bloodPressure.String,
			"body_activity":     activity.String,
		}
		for col, v := range map[string]sql.NullFloat64{"heart_rate": hr, "temperature": temp, "respiratory_rate": rr} {
			if v.Valid {
				row[col] = v.Float64
			}
		}
		if updatedAt.Valid {
			row["updated_at"] = updatedAt.Time
		}

		r, err := source.ParseRow(row)
		if err != nil {
			source.Quarantine("postgres", row, err)
			continue
		}
		readings = append(readings, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate readings: %w", err)
	}
	return readings, nil
}

func (s *Store) InsertEmployee(ctx context.Context, e *models.Employee) error {
	if strings.TrimSpace(e.Name) == "" {
		return fmt.Errorf("employee name is required")
	}
	if e.ID == "" {
		e.ID = uuid.NewString()
	}

	query := fmt.Sprintf(`INSERT INTO %s (id, name, age, gender, location, blood_group, contact_number, height, weight)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`, pq.QuoteIdentifier(EmployeesTable))
	_, err := s.db.ExecContext(ctx, query,
		e.ID, e.Name, e.Age, e.Gender, e.Location, e.BloodGroup, e.ContactNumber, e.Height, e.Weight)
	if err != nil {
		return fmt.Errorf("insert employee: %w", err)
	}

	common.GetCategoryLogger(common.LoggerNameSource, common.LoggerCategoryEmployee).
		Info("Inserted employee", zap.String("employee_id", e.ID))
	return nil
}
