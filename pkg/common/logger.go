package common

import (
	"bytes"
	"log"
	"os"
	"path/filepath"
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

var (
	logger *zap.Logger
	once   sync.Once
)

func getLogger() *zap.Logger {
	if logger == nil {
		initLogger()
	}
	return logger
}

func GetLogger() *zap.Logger {
	return getLogger().Named("default")
}

func GetLoggerWith(name string, fields ...zap.Field) *zap.Logger {
	return getLogger().Named(name).With(fields...)
}

// GetCategoryLogger is the short form used across packages: a named logger
// carrying the category field.
func GetCategoryLogger(name string, category string) *zap.Logger {
	return GetLoggerWith(name, zap.String(LoggerFieldCategory, category))
}

func logsDir() string {
	if dir := os.Getenv(EnvKeyVitalsLogDir); dir != "" {
		return dir
	}
	wd, err := os.Getwd()
	if err != nil {
		log.Fatalf("Error getting current directory: %v", err)
	}
	return filepath.Join(wd, "logs")
}

func fileLevel() zapcore.Level {
	level, err := zapcore.ParseLevel(os.Getenv(EnvKeyVitalsLogLevel))
	if err != nil {
		return zap.InfoLevel
	}
	return level
}

func initLogger() {
	once.Do(func() {
		dir := logsDir()
		if err := os.MkdirAll(dir, os.ModePerm); err != nil {
			log.Fatalf("Error find/create logs directory: %v", err)
		}

		rotating := &lumberjack.Logger{
			Filename:   filepath.Join(dir, "vitals.log"),
			MaxSize:    20, // megabytes
			MaxBackups: 7,
			MaxAge:     14, // days
			Compress:   true,
		}

		encoderCfg := zap.NewProductionEncoderConfig()
		encoderCfg.EncodeTime = zapcore.ISO8601TimeEncoder

		fileCore := zapcore.NewCore(
			zapcore.NewJSONEncoder(encoderCfg),
			zapcore.AddSync(rotating),
			fileLevel(),
		)

		opts := []zap.Option{zap.AddCaller(), zap.AddStacktrace(zapcore.ErrorLevel)}
		if IsProduction() {
			logger = zap.New(fileCore, opts...)
			return
		}

		consoleCore := zapcore.NewCore(
			zapcore.NewConsoleEncoder(zap.NewDevelopmentEncoderConfig()),
			zapcore.Lock(os.Stdout),
			zap.DebugLevel,
		)
		logger = zap.New(zapcore.NewTee(fileCore, consoleCore), opts...)
	})
}

// SetTestCaptureLogger swaps the process logger for a JSON logger writing to buf.
func SetTestCaptureLogger(buf *bytes.Buffer, level zapcore.Level) {
	_ = getLogger()

	encoderCfg := zap.NewProductionEncoderConfig()
	encoderCfg.EncodeTime = zapcore.ISO8601TimeEncoder
	core := zapcore.NewCore(zapcore.NewJSONEncoder(encoderCfg), zapcore.AddSync(&lockedBuffer{buf: buf}), level)
	logger = zap.New(core)
}

func SetTestLoggerNop() {
	_ = getLogger()

	logger = zap.NewNop()
}

// lockedBuffer serializes writes from timer and bridge goroutines.
type lockedBuffer struct {
	mu  sync.Mutex
	buf *bytes.Buffer
}

func (b *lockedBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}
