package config

import (
	"github.com/pkg/errors"
	"go.uber.org/zap"
)

// Config defines cross-cutting concerns.
type Config struct {
	Logger      *zap.SugaredLogger
	Environment *Environment
}

// NewLogger builds the logger for the given mode.
func NewLogger(mode string, verbose bool) (*zap.Logger, error) {
	var cfg zap.Config
	switch mode {
	case "dev":
		cfg = zap.NewDevelopmentConfig()
	case "prod":
		cfg = zap.NewProductionConfig()
	default:
		return nil, errors.Errorf("Invalid 'mode' flag: %s", mode)
	}
	if verbose {
		cfg.Level = zap.NewAtomicLevelAt(zap.DebugLevel)
	}
	return cfg.Build()
}
