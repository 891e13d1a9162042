package logger

import "go.uber.org/zap"

type Config struct {
	Development bool
}

// New builds a sugared logger for the process. The caller owns the instance
// and hands it down; nothing is cached at package scope.
func New(cfg Config) (*zap.SugaredLogger, error) {
	var (
		l   *zap.Logger
		err error
	)
	if cfg.Development {
		l, err = zap.NewDevelopment()
	} else {
		l, err = zap.NewProduction()
	}
	if err != nil {
		return nil, err
	}
	return l.Sugar(), nil
}
