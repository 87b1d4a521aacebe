package logger

import "go.uber.org/zap"

// New builds the process logger: human-readable in development, JSON
// otherwise.
func New(development bool) (*zap.Logger, error) {
	if development {
		return zap.NewDevelopment()
	}
	return zap.NewProduction()
}
