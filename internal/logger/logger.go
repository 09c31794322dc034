package logger

import (
	"go.uber.org/zap"

	"github.com/aliskhannn/competence-bot/internal/config"
)

// New builds the process logger. Production gets JSON output, everything
// else the human-readable development encoder.
func New(cfg *config.Config) (*zap.Logger, error) {
	var (
		log *zap.Logger
		err error
	)
	if cfg.Env == "production" {
		log, err = zap.NewProduction()
	} else {
		log, err = zap.NewDevelopment()
	}
	if err != nil {
		return nil, err
	}

	return log.With(
		zap.String("env", cfg.Env),
		zap.String("store", cfg.Store.Driver),
	), nil
}
