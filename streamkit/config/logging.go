package config

import (
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Build constructs a zap logger from the presentation-only logging
// section. Format selects the encoder ("console" by default, "json"),
// Datefmt is a Go time layout for timestamps.
func (l Logging) Build() (*zap.Logger, error) {
	level, err := parseLevel(l.Level)
	if err != nil {
		return nil, err
	}

	zcfg := zap.NewProductionConfig()
	zcfg.Level = zap.NewAtomicLevelAt(level)
	zcfg.Encoding = "console"
	if l.Format == "json" {
		zcfg.Encoding = "json"
	}
	zcfg.EncoderConfig.EncodeLevel = zapcore.CapitalLevelEncoder
	if l.Datefmt != "" {
		zcfg.EncoderConfig.EncodeTime = zapcore.TimeEncoderOfLayout(l.Datefmt)
	} else {
		zcfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	}

	logger, err := zcfg.Build()
	if err != nil {
		return nil, Errorf("logging: %v", err)
	}
	return logger, nil
}

func parseLevel(name string) (zapcore.Level, error) {
	switch name {
	case "", "warning", "warn":
		return zapcore.WarnLevel, nil
	case "debug":
		return zapcore.DebugLevel, nil
	case "info":
		return zapcore.InfoLevel, nil
	case "error":
		return zapcore.ErrorLevel, nil
	case "critical":
		return zapcore.FatalLevel, nil
	default:
		return zapcore.WarnLevel, Errorf("unknown logging.level %q", name)
	}
}
