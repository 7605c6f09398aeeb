package iot

import (
	"testing"

	"go.uber.org/mock/gomock"
	"liyu1981.xyz/vital-signs-service/pkg/db"
	"liyu1981.xyz/vital-signs-service/pkg/iot/mocks"
)

func GetMockIOTWithMemorySqliteDialector(t *testing.T, useMockIReading, useMockIAlert, useMockIDevice bool) (
	*gomock.Controller,
	*IOT,
	*mocks.MockIReading,
	*mocks.MockIAlert,
	*mocks.MockIDevice,
) {
	ctrl := gomock.NewController(t)

	mockIReading := mocks.NewMockIReading(ctrl)
	mockIAlert := mocks.NewMockIAlert(ctrl)
	mockIDevice := mocks.NewMockIDevice(ctrl)

	iotInstance := New(db.GetInstance(db.UseMemorySqliteDialector()))

	opts := ServiceOpts{}
	if useMockIReading {
		opts.Reading = mockIReading
	}
	if useMockIAlert {
		opts.Alert = mockIAlert
	}
	if useMockIDevice {
		opts.Device = mockIDevice
	}
	iotInstance.WithServices(opts)

	return ctrl, iotInstance, mockIReading, mockIAlert, mockIDevice
}
