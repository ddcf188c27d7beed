package external

import (
	"context"
	"log/slog"

	"mailmerge/internal/types"
)

// NoopProvider logs sends instead of delivering them. Used in development
// so campaigns can be exercised end to end without an email provider key.
type NoopProvider struct {
	logger *slog.Logger
}

var _ EmailProvider = (*NoopProvider)(nil)

// NewNoopProvider creates a logging-only provider.
func NewNoopProvider(logger *slog.Logger) *NoopProvider {
	return &NoopProvider{logger: logger}
}

// Send logs the message and reports success.
func (p *NoopProvider) Send(_ context.Context, input types.SendInput) error {
	p.logger.Info("noop email send",
		slog.String("to", input.To),
		slog.String("subject", input.Subject),
		slog.Int("body_bytes", len(input.Body)),
	)
	return nil
}
