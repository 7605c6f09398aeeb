package iot

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"liyu1981.xyz/vital-signs-service/pkg/common"
	"liyu1981.xyz/vital-signs-service/pkg/models"
)

func (i *IOT) insertEmployee(ctx context.Context, input *models.Employee) error {
	logger := common.GetCategoryLogger(common.LoggerNameVitalsCore, common.LoggerCategoryEmployee)

	if strings.TrimSpace(input.Name) == "" {
		return fmt.Errorf("%w: employee name is required", ErrInvalidInput)
	}
	if input.ID == "" {
		input.ID = uuid.NewString()
	}

	logger.Info("Received employee", zap.String("id", input.ID), zap.String("name", input.Name))

	if err := i.Db.Conn.WithContext(ctx).Create(input).Error; err != nil {
		return fmt.Errorf("insert employee: %w", err)
	}

	logger.Info("Inserted employee", zap.Reflect("employee", input))
	return nil
}

// searchEmployees matches query against name or id, case-insensitively. An
// empty query lists the roster.
func (i *IOT) searchEmployees(ctx context.Context, query string) ([]models.Employee, error) {
	tx := i.Db.Conn.WithContext(ctx).Order("name asc")
	if q := strings.TrimSpace(query); q != "" {
		like := "%" + strings.ToLower(q) + "%"
		tx = tx.Where("lower(name) LIKE ? OR lower(id) LIKE ?", like, like)
	}
	var employees []models.Employee
	err := tx.Find(&employees).Error
	return employees, err
}

type IEmployeeImpl struct {
	iot *IOT
}

func (ie *IEmployeeImpl) InsertEmployee(ctx context.Context, input *models.Employee) error {
	return ie.iot.insertEmployee(ctx, input)
}

func (ie *IEmployeeImpl) SearchEmployees(ctx context.Context, query string) ([]models.Employee, error) {
	return ie.iot.searchEmployees(ctx, query)
}

func (i *IOT) GetIEmployee() IEmployee {
	return &IEmployeeImpl{iot: i}
}
