package env

import (
	"os"

	zap "go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// MakeLogger builds the JSON logger every ninep component logs through.
func MakeLogger(level string) (*zap.Logger, error) {
	l, err := ParseLevel(level)
	if err != nil {
		return nil, err
	}

	logConfig := zap.NewProductionConfig()
	logConfig.Level = zap.NewAtomicLevelAt(l)
	logConfig.Encoding = "json"
	logConfig.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	if l > zapcore.DebugLevel {
		logConfig.DisableStacktrace = true
	}

	return logConfig.Build(zap.Fields(zap.Int("pid", os.Getpid())))
}
