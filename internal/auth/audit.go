package auth

import "log/slog"

// AuditSessionEvents consumes a session change feed and records each event
// in the structured log, giving operators an audit trail of sign-ins and
// sign-outs. It returns when the feed is closed, so cancelling the
// subscription that produced the channel also stops the auditor.
func AuditSessionEvents(logger *slog.Logger, events <-chan SessionEvent) {
	if logger == nil {
		logger = slog.Default()
	}
	for ev := range events {
		logger.Info("session state changed",
			"event", string(ev.Type),
			"user_id", ev.UserID,
		)
	}
}
