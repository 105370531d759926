// Package logger builds the process-wide zap logger.
package logger

import "go.uber.org/zap"

// New returns a development logger (console, debug level) when env is "dev"
// or "development", and a production JSON logger otherwise.
func New(env string) (*zap.Logger, error) {
	switch env {
	case "dev", "development":
		return zap.NewDevelopment()
	default:
		return zap.NewProduction()
	}
}
