// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package bq

import (
	"os"

	"github.com/natefinch/lumberjack"
	"github.com/pkg/errors"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// LogConfig configures [NewLogger].
type LogConfig struct {
	// LogLevel is a zap level name: debug, info, warn, error. Defaults to info.
	LogLevel string `validate:"omitempty,oneof=debug info warn error dpanic panic fatal"`

	// FileLogName is the log file path. Empty logs to stderr.
	FileLogName string

	// Rotation settings for FileLogName, in lumberjack units.
	MaxBackups int `validate:"gte=0"` // files
	MaxAge     int `validate:"gte=0"` // days
	MaxSize    int `validate:"gte=0"` // megabytes
	Compress   bool
}

// NewLogger builds a JSON zap logger for queue diagnostics.
//
// Queues log at debug for partial batches and closes, at info for shared
// queue setup, and at warn or error for transport faults.
func NewLogger(cfg LogConfig) (*zap.Logger, error) {
	if err := validate.Struct(&cfg); err != nil {
		return nil, errors.Wrapf(ErrInvalidConfig, "%v", err)
	}
	level := zapcore.InfoLevel
	if cfg.LogLevel != "" {
		if err := level.Set(cfg.LogLevel); err != nil {
			return nil, errors.Wrap(err, "bq: log level")
		}
	}

	var sink zapcore.WriteSyncer = zapcore.Lock(os.Stderr)
	if cfg.FileLogName != "" {
		sink = zapcore.AddSync(&lumberjack.Logger{
			Filename:   cfg.FileLogName,
			MaxSize:    cfg.MaxSize,
			MaxBackups: cfg.MaxBackups,
			MaxAge:     cfg.MaxAge,
			Compress:   cfg.Compress,
		})
	}

	encoderCfg := zap.NewProductionEncoderConfig()
	encoderCfg.EncodeTime = zapcore.ISO8601TimeEncoder
	core := zapcore.NewCore(zapcore.NewJSONEncoder(encoderCfg), sink, level)
	return zap.New(core, zap.AddCaller()).Named("bq"), nil
}
