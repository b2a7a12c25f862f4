// internal/utils/logger.go
package utils

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"

	"glider-device-service/internal/config"
	"glider-device-service/internal/model"
)

// NewLogger creates the process logger from the logging configuration
func NewLogger(cfg *config.LoggingConfig) (*zap.Logger, error) {
	level, err := parseLevel(cfg.Level)
	if err != nil {
		return nil, fmt.Errorf("failed to parse log level: %w", err)
	}

	writeSyncer, err := newWriteSyncer(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create write syncer: %w", err)
	}

	encoderConfig := newEncoderConfig(cfg.Format)
	var encoder zapcore.Encoder
	if cfg.Format == "console" {
		encoder = zapcore.NewConsoleEncoder(encoderConfig)
	} else {
		encoder = zapcore.NewJSONEncoder(encoderConfig)
	}

	core := zapcore.NewCore(encoder, writeSyncer, level)
	return zap.New(core,
		zap.AddCaller(),
		zap.AddStacktrace(zapcore.ErrorLevel),
	), nil
}

func newEncoderConfig(format string) zapcore.EncoderConfig {
	encoderConfig := zap.NewProductionEncoderConfig()
	encoderConfig.TimeKey = "timestamp"
	encoderConfig.EncodeTime = zapcore.TimeEncoderOfLayout(time.RFC3339)
	encoderConfig.LevelKey = "level"
	encoderConfig.EncodeLevel = zapcore.LowercaseLevelEncoder
	encoderConfig.CallerKey = "caller"
	encoderConfig.EncodeCaller = zapcore.ShortCallerEncoder
	encoderConfig.MessageKey = "message"
	encoderConfig.StacktraceKey = "stacktrace"

	if format == "console" {
		encoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
		encoderConfig.EncodeTime = zapcore.TimeEncoderOfLayout("2006-01-02 15:04:05")
	}
	return encoderConfig
}

func newWriteSyncer(cfg *config.LoggingConfig) (zapcore.WriteSyncer, error) {
	switch cfg.Output {
	case "stdout":
		return zapcore.AddSync(os.Stdout), nil
	case "stderr":
		return zapcore.AddSync(os.Stderr), nil
	}

	output := cfg.Output
	if output == "" {
		output = "./logs/glider-device-service.log"
	}
	if err := os.MkdirAll(filepath.Dir(output), 0755); err != nil {
		return nil, fmt.Errorf("failed to create log directory: %w", err)
	}

	return zapcore.AddSync(&lumberjack.Logger{
		Filename:   output,
		MaxSize:    cfg.MaxSize, // MB
		MaxBackups: cfg.MaxBackups,
		MaxAge:     cfg.MaxAge, // days
		Compress:   cfg.Compress,
	}), nil
}

func parseLevel(level string) (zapcore.Level, error) {
	switch level {
	case "debug":
		return zapcore.DebugLevel, nil
	case "info", "":
		return zapcore.InfoLevel, nil
	case "warn":
		return zapcore.WarnLevel, nil
	case "error":
		return zapcore.ErrorLevel, nil
	case "fatal":
		return zapcore.FatalLevel, nil
	}
	return zapcore.InfoLevel, fmt.Errorf("invalid log level: %s", level)
}

// DeviceLogger tags every entry with the device slot it belongs to
type DeviceLogger struct {
	*zap.Logger
	index int
}

// NewDeviceLogger creates a logger for device slot index
func NewDeviceLogger(baseLogger *zap.Logger, index int, driverName string, portType model.PortType) *DeviceLogger {
	return &DeviceLogger{
		Logger: baseLogger.With(
			zap.Int("device_index", index),
			zap.String("driver", driverName),
			zap.String("port_type", string(portType)),
			zap.String("component", "device"),
		),
		index: index,
	}
}

// LogConnection logs open and close events
func (dl *DeviceLogger) LogConnection(action string, success bool, err error) {
	fields := []zap.Field{
		zap.String("action", action),
		zap.Bool("success", success),
	}

	if err != nil {
		fields = append(fields, zap.Error(err))
		dl.Warn("Device connection event", fields...)
	} else {
		dl.Info("Device connection event", fields...)
	}
}

// LogLine traces one received sentence
func (dl *DeviceLogger) LogLine(line string, accepted bool) {
	if ce := dl.Check(zapcore.DebugLevel, "NMEA line"); ce != nil {
		ce.Write(zap.String("line", line), zap.Bool("accepted", accepted))
	}
}

// OperationLogger provides structured logging for operations
type OperationLogger struct {
	logger    *zap.Logger
	startTime time.Time
}

// NewOperationLogger creates an operation-specific logger
func NewOperationLogger(baseLogger *zap.Logger, operationType, operationID string, deviceIndex int) *OperationLogger {
	return &OperationLogger{
		logger: baseLogger.With(
			zap.String("operation_type", operationType),
			zap.String("operation_id", operationID),
			zap.Int("device_index", deviceIndex),
			zap.String("component", "operation"),
		),
		startTime: time.Now(),
	}
}

// Logger returns the logger carrying the operation fields
func (ol *OperationLogger) Logger() *zap.Logger {
	return ol.logger
}

func (ol *OperationLogger) Start(fields ...zap.Field) {
	ol.logger.Info("Operation started", fields...)
}

func (ol *OperationLogger) Success(fields ...zap.Field) {
	ol.logger.Info("Operation completed successfully",
		append([]zap.Field{zap.Duration("duration", time.Since(ol.startTime))}, fields...)...)
}

func (ol *OperationLogger) Cancelled() {
	ol.logger.Info("Operation cancelled", zap.Duration("duration", time.Since(ol.startTime)))
}

func (ol *OperationLogger) Error(err error, fields ...zap.Field) {
	ol.logger.Error("Operation failed",
		append([]zap.Field{zap.Duration("duration", time.Since(ol.startTime)), zap.Error(err)}, fields...)...)
}

// Progress logs operation progress at debug level
func (ol *OperationLogger) Progress(text string, position, total uint) {
	ol.logger.Debug("Operation progress",
		zap.String("text", text),
		zap.Uint("position", position),
		zap.Uint("range", total),
	)
}

// ServiceLogger provides service-level logging functionality
type ServiceLogger struct {
	*zap.Logger
}

// NewServiceLogger creates a service-specific logger
func NewServiceLogger(baseLogger *zap.Logger, serviceName string) *ServiceLogger {
	return &ServiceLogger{
		Logger: baseLogger.With(
			zap.String("service", serviceName),
			zap.String("component", "service"),
		),
	}
}

func (sl *ServiceLogger) LogServiceStart(version string, config interface{}) {
	sl.Info("Service starting",
		zap.String("version", version),
		zap.Any("config", config),
	)
}

func (sl *ServiceLogger) LogServiceStop(reason string) {
	sl.Info("Service stopping", zap.String("reason", reason))
}

// LogAPIRequest logs an HTTP request at a level matching its status
func (sl *ServiceLogger) LogAPIRequest(method, path, requestID, clientIP string, statusCode int, duration time.Duration) {
	level := zapcore.InfoLevel
	if statusCode >= 400 {
		level = zapcore.WarnLevel
	}
	if statusCode >= 500 {
		level = zapcore.ErrorLevel
	}

	if ce := sl.Check(level, "API request"); ce != nil {
		ce.Write(
			zap.String("method", method),
			zap.String("path", path),
			zap.String("request_id", requestID),
			zap.String("client_ip", clientIP),
			zap.Int("status_code", statusCode),
			zap.Duration("duration", duration),
		)
	}
}

// LogDeviceConfiguration records a slot configuration change
func (sl *ServiceLogger) LogDeviceConfiguration(index int, oldConfig, newConfig model.DeviceConfig) {
	sl.Info("Device configuration changed",
		zap.Int("device_index", index),
		zap.Any("old_config", oldConfig),
		zap.Any("new_config", newConfig),
	)
}

// LoggerWithRequestID adds request ID to logger
func LoggerWithRequestID(logger *zap.Logger, requestID string) *zap.Logger {
	return logger.With(zap.String("request_id", requestID))
}

// CloseLogger flushes buffered entries
func CloseLogger(logger *zap.Logger) error {
	return logger.Sync()
}
