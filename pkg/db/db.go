package db

import (
	"log"
	"os"
	"sync"

	"go.uber.org/zap"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/plugin/opentelemetry/tracing"
	"liyu1981.xyz/vital-signs-service/pkg/common"
	"liyu1981.xyz/vital-signs-service/pkg/models"
)

type DB struct {
	Conn *gorm.DB
}

var (
	instance *DB
	once     sync.Once
)

// GetInstance opens the process-wide connection on first use, runs the
// migrations and installs the tracing plugin. Later calls ignore dialector.
func GetInstance(dialector gorm.Dialector) *DB {
	logger := common.GetCategoryLogger(common.LoggerNameVitalsCore, common.LoggerCategoryDevice)
	once.Do(func() {
		conn, err := gorm.Open(dialector, &gorm.Config{})
		if err != nil {
			log.Fatal("Failed to connect to database:", err)
		}

		logger.Info("Connected to database with dialector:", zap.String("dialector", dialector.Name()))

		if err := conn.Use(tracing.NewPlugin(tracing.WithoutQueryVariables())); err != nil {
			log.Fatal("Failed to install gorm tracing plugin:", err)
		}

		instance = &DB{Conn: conn}

		err = instance.Conn.AutoMigrate(
			&models.Reading{},
			&models.Alert{},
			&models.Device{},
			&models.Employee{},
		)
		if err != nil {
			log.Fatal("Failed to migrate database:", err)
		}

		logger.Info("Database migration completed")

		if err := instance.Conn.Exec("PRAGMA foreign_keys = ON").Error; err != nil {
			log.Fatal("Failed to enable sqlite foreign key support", err)
		}

		if err := instance.Conn.Exec("PRAGMA journal_mode = WAL").Error; err != nil {
			log.Fatal("Failed to set sqlite journal mode", err)
		}
	})
	return instance
}

func UseSqliteDialector() gorm.Dialector {
	dbPath, found := os.LookupEnv(common.EnvKeyVitalsDbPath)
	if !found || dbPath == "" {
		dbPath = "vitals.db"
	}
	return sqlite.Open(dbPath)
}

func UseMemorySqliteDialector() gorm.Dialector {
	return sqlite.Open("file::memory:?cache=shared")
}

// UseDialector maps VITALS_DB_TYPE to a dialector.
func UseDialector(dbType string) (gorm.Dialector, bool) {
	switch dbType {
	case "file":
		return UseSqliteDialector(), true
	case "memory":
		return UseMemorySqliteDialector(), true
	}
	return nil, false
}
