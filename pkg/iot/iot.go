package iot

import (
	"context"
	"errors"
	"time"

	"liyu1981.xyz/vital-signs-service/pkg/db"
	"liyu1981.xyz/vital-signs-service/pkg/models"
)

var (
	ErrNotFound      = errors.New("not found")
	ErrInvalidInput  = errors.New("invalid input")
	ErrServiceAbsent = errors.New("service not available")
)

//go:generate mockgen -destination=mocks/mocks.go -package=mocks liyu1981.xyz/vital-signs-service/pkg/iot IReading,IAlert,IEmployee,IDevice

type IReading interface {
	StoreReading(ctx context.Context, input *models.Reading) error
	LatestReadings(ctx context.Context, deviceID string, n int) ([]models.Reading, error)
	CountReadings(ctx context.Context, deviceID string) (int64, error)
}

type IAlert interface {
	StoreAlert(ctx context.Context, alert *models.Alert) error
	GetDeviceAlerts(ctx context.Context, deviceID string, limit int) ([]models.Alert, error)
}

type IEmployee interface {
	InsertEmployee(ctx context.Context, input *models.Employee) error
	SearchEmployees(ctx context.Context, query string) ([]models.Employee, error)
}

type IDevice interface {
	TouchDevice(ctx context.Context, deviceID string, at time.Time) error
	AssignEmployee(ctx context.Context, deviceID string, employeeName string) error
	GetDevice(ctx context.Context, deviceID string) (*models.Device, error)
	ListDevices(ctx context.Context) ([]models.DeviceSummary, error)
}

type IOT struct {
	Db       db.DB
	Feed     *Feed
	Reading  IReading
	Alert    IAlert
	Employee IEmployee
	Device   IDevice
}

type ServiceOpts struct {
	Reading  IReading
	Alert    IAlert
	Employee IEmployee
	Device   IDevice
}

func (i *IOT) WithServices(opts ServiceOpts) *IOT {
	if opts.Reading != nil {
		i.Reading = opts.Reading
	}
	if opts.Alert != nil {
		i.Alert = opts.Alert
	}
	if opts.Employee != nil {
		i.Employee = opts.Employee
	}
	if opts.Device != nil {
		i.Device = opts.Device
	}
	return i
}

// New builds an IOT on dbInstance with the default service implementations
// and a fresh change feed.
func New(dbInstance *db.DB) *IOT {
	core := &IOT{Db: *dbInstance, Feed: NewFeed()}
	core.WithServices(ServiceOpts{
		Reading:  core.GetIReading(),
		Alert:    core.GetIAlert(),
		Employee: core.GetIEmployee(),
		Device:   core.GetIDevice(),
	})
	return core
}
