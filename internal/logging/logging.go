// Package logging wires up the service's structured logger, matching
// the teacher's internal/util logger: JSON in production, a
// human-readable console encoder otherwise.
package logging

import (
	"os"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func shortTimeEncoder(t time.Time, enc zapcore.PrimitiveArrayEncoder) {
	enc.AppendString(t.Format("15:04:05"))
}

// New builds a zap.Logger. production selects the JSON encoder;
// otherwise a colorized, human-scannable console encoder is used.
func New(production bool) *zap.Logger {
	econf := zapcore.EncoderConfig{
		MessageKey:     "msg",
		LevelKey:       "level",
		TimeKey:        "time",
		NameKey:        "logger",
		EncodeLevel:    zapcore.CapitalColorLevelEncoder,
		EncodeTime:     zapcore.ISO8601TimeEncoder,
		EncodeDuration: zapcore.StringDurationEncoder,
	}

	level := zap.InfoLevel

	var core zapcore.Core
	if production {
		econf.EncodeLevel = zapcore.LowercaseLevelEncoder
		core = zapcore.NewCore(zapcore.NewJSONEncoder(econf), zapcore.AddSync(os.Stdout), level)
	} else {
		econf.EncodeTime = shortTimeEncoder
		core = zapcore.NewCore(zapcore.NewConsoleEncoder(econf), zapcore.AddSync(os.Stdout), level)
	}
	return zap.New(core)
}
