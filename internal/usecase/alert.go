package usecase

import (
	"context"

	"go.uber.org/zap"

	"tokensentry/internal/domain"
)

// LogAlerter surfaces escalations on a dedicated log channel. Severity maps
// to log level so critical alerts are impossible to filter out accidentally.
type LogAlerter struct {
	logger *zap.Logger
}

func NewLogAlerter(logger *zap.Logger) *LogAlerter {
	return &LogAlerter{logger: logger.Named("alert")}
}

func (a *LogAlerter) Alert(ctx context.Context, severity, message string) {
	field := zap.String("severity", severity)
	switch severity {
	case "critical":
		a.logger.Error(message, field)
	case "warning":
		a.logger.Warn(message, field)
	default:
		a.logger.Info(message, field)
	}
}

var _ domain.Alerter = (*LogAlerter)(nil)
