package iot

import (
	"context"

	"go.uber.org/zap"
	"gorm.io/gorm/clause"
	"liyu1981.xyz/vital-signs-service/pkg/common"
	"liyu1981.xyz/vital-signs-service/pkg/models"
)

const DefaultAlertLimit = 6

// storeAlert is idempotent on AlertID so a re-dispatched alert is stored once.
func (i *IOT) storeAlert(ctx context.Context, alert *models.Alert) error {
	logger := common.GetCategoryLogger(common.LoggerNameVitalsCore, common.LoggerCategoryAlert)

	err := i.Db.Conn.WithContext(ctx).
		Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "alert_id"}}, DoNothing: true}).
		Create(alert).Error
	if err != nil {
		return err
	}

	logger.Info("Alert saved", zap.Reflect("alert", alert))
	return nil
}

func (i *IOT) getDeviceAlerts(ctx context.Context, deviceID string, limit int) ([]models.Alert, error) {
	if limit <= 0 {
		limit = DefaultAlertLimit
	}
	var alerts []models.Alert
	err := i.Db.Conn.WithContext(ctx).
		Where("device_id = ?", deviceID).
		Order("timestamp desc").
		Limit(limit).
		Find(&alerts).Error
	return alerts, err
}

type IAlertImpl struct {
	iot *IOT
}

func (ia *IAlertImpl) StoreAlert(ctx context.Context, alert *models.Alert) error {
	return ia.iot.storeAlert(ctx, alert)
}

func (ia *IAlertImpl) GetDeviceAlerts(ctx context.Context, deviceID string, limit int) ([]models.Alert, error) {
	return ia.iot.getDeviceAlerts(ctx, deviceID, limit)
}

func (i *IOT) GetIAlert() IAlert {
	return &IAlertImpl{iot: i}
}
