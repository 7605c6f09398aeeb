package iot

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"liyu1981.xyz/vital-signs-service/pkg/common"
	"liyu1981.xyz/vital-signs-service/pkg/models"
	_ "liyu1981.xyz/vital-signs-service/pkg/testing"
)

func TestInsertAndSearchEmployees(t *testing.T) {
	common.SetTestLoggerNop()

	ctrl, iotObj, _, _, _ := GetMockIOTWithMemorySqliteDialector(t, false, false, false)
	defer ctrl.Finish()

	ctx := context.Background()
	tag := strings.ReplaceAll(uuid.NewString(), "-", "")[:8]

	ada := &models.Employee{Name: "Ada " + tag, Age: 36, Gender: "F", Location: "Plant A", BloodGroup: "O+", ContactNumber: "555-0101"}
	require.NoError(t, iotObj.Employee.InsertEmployee(ctx, ada))
	assert.NotEmpty(t, ada.ID, "id is assigned")

	bob := &models.Employee{ID: "EMP-" + tag, Name: "Bob " + tag, Age: 41}
	require.NoError(t, iotObj.Employee.InsertEmployee(ctx, bob))
	assert.Equal(t, "EMP-"+tag, bob.ID)

	found, err := iotObj.Employee.SearchEmployees(ctx, strings.ToUpper(tag))
	require.NoError(t, err)
	require.Len(t, found, 2)
	assert.Equal(t, ada.Name, found[0].Name)

	byID, err := iotObj.Employee.SearchEmployees(ctx, "emp-"+tag)
	require.NoError(t, err)
	require.Len(t, byID, 1)
	assert.Equal(t, bob.Name, byID[0].Name)

	all, err := iotObj.Employee.SearchEmployees(ctx, "")
	require.NoError(t, err)
	assert.GreaterOrEqual(t, len(all), 2)
}

func TestInsertEmployee_EdgeCases(t *testing.T) {
	common.SetTestLoggerNop()

	ctrl, iotObj, _, _, _ := GetMockIOTWithMemorySqliteDialector(t, false, false, false)
	defer ctrl.Finish()

	err := iotObj.Employee.InsertEmployee(context.Background(), &models.Employee{Name: "  "})
	assert.True(t, errors.Is(err, ErrInvalidInput))

	id := uuid.NewString()
	require.NoError(t, iotObj.Employee.InsertEmployee(context.Background(), &models.Employee{ID: id, Name: "Cy"}))
	err = iotObj.Employee.InsertEmployee(context.Background(), &models.Employee{ID: id, Name: "Cy again"})
	assert.Error(t, err, "duplicate id")
}
