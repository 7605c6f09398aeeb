package iot

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"liyu1981.xyz/vital-signs-service/pkg/common"
	"liyu1981.xyz/vital-signs-service/pkg/models"
)

// touchDevice creates the device on first sight and only ever moves
// last_activity forward.
func (i *IOT) touchDevice(ctx context.Context, deviceID string, at time.Time) error {
	return i.Db.Conn.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		err := tx.Clauses(clause.OnConflict{DoNothing: true}).
			Create(&models.Device{MacAddress: deviceID, LastActivity: at}).Error
		if err != nil {
			return err
		}

		var device models.Device
		if err := tx.First(&device, "mac_address = ?", deviceID).Error; err != nil {
			return err
		}
		if !at.After(device.LastActivity) {
			return nil
		}
		return tx.Model(&device).Update("last_activity", at).Error
	})
}

func (i *IOT) assignEmployee(ctx context.Context, deviceID string, employeeName string) error {
	logger := common.GetCategoryLogger(common.LoggerNameVitalsCore, common.LoggerCategoryDevice)

	device := models.Device{MacAddress: deviceID, EmployeeName: employeeName}
	err := i.Db.Conn.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "mac_address"}},
		DoUpdates: clause.AssignmentColumns([]string{"employee_name"}),
	}).Create(&device).Error
	if err != nil {
		return fmt.Errorf("assign employee: %w", err)
	}

	logger.Info("Assigned employee to device", zap.String("device_id", deviceID), zap.String("employee", employeeName))
	return nil
}

func (i *IOT) getDevice(ctx context.Context, deviceID string) (*models.Device, error) {
	var device models.Device
	err := i.Db.Conn.WithContext(ctx).First(&device, "mac_address = ?", deviceID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("%w: device %s", ErrNotFound, deviceID)
	}
	return &device, err
}

type readingStats struct {
	MacAddress string
	Total      int64
	LastAt     string
}

func (i *IOT) listDevices(ctx context.Context) ([]models.DeviceSummary, error) {
	var devices []models.Device
	if err := i.Db.Conn.WithContext(ctx).Order("mac_address asc").Find(&devices).Error; err != nil {
		return nil, err
	}

	var stats []readingStats
	err := i.Db.Conn.WithContext(ctx).
		Model(&models.Reading{}).
		Select("mac_address, count(*) as total, max(timestamp) as last_at").
		Group("mac_address").
		Scan(&stats).Error
	if err != nil {
		return nil, err
	}
	byMac := make(map[string]readingStats, len(stats))
	for _, s := range stats {
		byMac[s.MacAddress] = s
	}

	return common.Mapper(devices, func(d models.Device) models.DeviceSummary {
		summary := models.DeviceSummary{Device: d}
		if s, ok := byMac[d.MacAddress]; ok {
			summary.ReadingCount = s.Total
			if at, ok := parseSqliteTime(s.LastAt); ok {
				summary.LastReadingAt = &at
			}
		}
		return summary
	}), nil
}

var sqliteTimeLayouts = []string{
	"2006-01-02 15:04:05.999999999-07:00",
	"2006-01-02T15:04:05.999999999-07:00",
	"2006-01-02 15:04:05.999999999",
	time.RFC3339Nano,
}

// aggregates come back as text from the sqlite driver
func parseSqliteTime(s string) (time.Time, bool) {
	for _, layout := range sqliteTimeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

type IDeviceImpl struct {
	iot *IOT
}

func (id *IDeviceImpl) TouchDevice(ctx context.Context, deviceID string, at time.Time) error {
	return id.iot.touchDevice(ctx, deviceID, at)
}

func (id *IDeviceImpl) AssignEmployee(ctx context.Context, deviceID string, employeeName string) error {
	return id.iot.assignEmployee(ctx, deviceID, employeeName)
}

func (id *IDeviceImpl) GetDevice(ctx context.Context, deviceID string) (*models.Device, error) {
	return id.iot.getDevice(ctx, deviceID)
}

func (id *IDeviceImpl) ListDevices(ctx context.Context) ([]models.DeviceSummary, error) {
	return id.iot.listDevices(ctx)
}

func (i *IOT) GetIDevice() IDevice {
	return &IDeviceImpl{iot: i}
}
