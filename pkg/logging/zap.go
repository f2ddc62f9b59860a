package logging

import (
	"fmt"
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// ZapConfig selects how the zap backend encodes and where it writes
type ZapConfig struct {
	Level  string `yaml:"level"`  // "debug", "info", "warn", "error"
	Format string `yaml:"format"` // "json", "console"
	Output string `yaml:"output"` // "stdout", "stderr"
	Caller bool   `yaml:"caller"`
}

func DefaultZapConfig() ZapConfig {
	return ZapConfig{
		Level:  "info",
		Format: "console",
		Output: "stderr",
	}
}

// NewZapLogger returns a Logger backed by zap and the sync function to call before exit
func NewZapLogger(config ZapConfig) (Logger, func() error, error) {
	zapLogger, err := newZap(config)
	if err != nil {
		return nil, nil, err
	}
	return newZapBacked(zapLogger), zapLogger.Sync, nil
}

func newZapBacked(zapLogger *zap.Logger) Logger {
	sugar := zapLogger.WithOptions(zap.AddCallerSkip(2)).Sugar()
	return NewLogger("", LogFuncs{
		LogLevelf: func(level int, format string, args ...interface{}) {
			switch level {
			case LogLevelDebug:
				sugar.Debugf(format, args...)
			case LogLevelWarn:
				sugar.Warnf(format, args...)
			case LogLevelError:
				sugar.Errorf(format, args...)
			default:
				sugar.Infof(format, args...)
			}
		},
	})
}

func newZap(config ZapConfig) (*zap.Logger, error) {
	if config.Level == "" {
		config.Level = "info"
	}
	level, err := zapcore.ParseLevel(config.Level)
	if err != nil {
		return nil, fmt.Errorf("invalid log level: %s", config.Level)
	}

	encoderConfig := zap.NewProductionEncoderConfig()
	encoderConfig.TimeKey = "timestamp"
	encoderConfig.EncodeTime = zapcore.RFC3339TimeEncoder
	encoderConfig.EncodeLevel = zapcore.LowercaseLevelEncoder

	var encoder zapcore.Encoder
	switch config.Format {
	case "json":
		encoder = zapcore.NewJSONEncoder(encoderConfig)
	case "console", "":
		encoder = zapcore.NewConsoleEncoder(encoderConfig)
	default:
		return nil, fmt.Errorf("invalid log format: %s", config.Format)
	}

	var writeSyncer zapcore.WriteSyncer
	switch config.Output {
	case "stdout":
		writeSyncer = zapcore.Lock(os.Stdout)
	case "stderr", "":
		writeSyncer = zapcore.Lock(os.Stderr)
	default:
		return nil, fmt.Errorf("invalid log output: %s", config.Output)
	}

	var opts []zap.Option
	if config.Caller {
		opts = append(opts, zap.AddCaller())
	}

	return zap.New(zapcore.NewCore(encoder, writeSyncer, level), opts...), nil
}
