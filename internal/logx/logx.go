// Package logx builds the service's zap logger.
package logx

import (
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// New returns a production JSON logger at level. An unknown level keeps info.
func New(level string) (*zap.Logger, error) {
	zapCfg := zap.NewProductionConfig()
	zapCfg.Sampling = nil
	zapCfg.DisableStacktrace = true
	zapCfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	if level != "" {
		_ = zapCfg.Level.UnmarshalText([]byte(strings.ToLower(level)))
	}

	return zapCfg.Build(zap.AddCaller())
}
