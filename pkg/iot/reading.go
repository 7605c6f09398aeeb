package iot

import (
	"context"
	"fmt"

	"go.uber.org/zap"
	"liyu1981.xyz/vital-signs-service/pkg/common"
	"liyu1981.xyz/vital-signs-service/pkg/models"
)

func (i *IOT) storeReading(ctx context.Context, input *models.Reading) error {
	logger := common.GetCategoryLogger(common.LoggerNameVitalsCore, common.LoggerCategoryReading)

	if input.MacAddress == "" || input.Timestamp.IsZero() {
		return fmt.Errorf("%w: reading needs mac_address and timestamp", ErrInvalidInput)
	}

	reading := *input
	reading.ID = 0

	logger.Debug("Received reading for device", zap.Reflect("reading", reading))

	if err := i.Db.Conn.WithContext(ctx).Create(&reading).Error; err != nil {
		return fmt.Errorf("store reading: %w", err)
	}
	input.ID = reading.ID

	logger.Info("Stored reading for device",
		zap.String("device_id", reading.MacAddress),
		zap.Time("timestamp", reading.Timestamp),
		zap.Uint("id", reading.ID))

	if i.Device == nil {
		return ErrServiceAbsent
	}
	if err := i.Device.TouchDevice(ctx, reading.MacAddress, reading.Timestamp); err != nil {
		return err
	}

	if i.Feed != nil {
		i.Feed.Publish(reading)
	}
	return nil
}

func (i *IOT) latestReadings(ctx context.Context, deviceID string, n int) ([]models.Reading, error) {
	if n <= 0 {
		n = 1
	}
	var readings []models.Reading
	err := i.Db.Conn.WithContext(ctx).
		Where("mac_address = ?", deviceID).
		Order("timestamp desc").
		Limit(n).
		Find(&readings).Error
	return readings, err
}

func (i *IOT) countReadings(ctx context.Context, deviceID string) (int64, error) {
	var count int64
	err := i.Db.Conn.WithContext(ctx).
		Model(&models.Reading{}).
		Where("mac_address = ?", deviceID).
		Count(&count).Error
	return count, err
}

type IReadingImpl struct {
	iot *IOT
}

func (ir *IReadingImpl) StoreReading(ctx context.Context, input *models.Reading) error {
	return ir.iot.storeReading(ctx, input)
}

func (ir *IReadingImpl) LatestReadings(ctx context.Context, deviceID string, n int) ([]models.Reading, error) {
	return ir.iot.latestReadings(ctx, deviceID, n)
}

func (ir *IReadingImpl) CountReadings(ctx context.Context, deviceID string) (int64, error) {
	return ir.iot.countReadings(ctx, deviceID)
}

func (i *IOT) GetIReading() IReading {
	return &IReadingImpl{iot: i}
}
