package observability

import (
	"context"
	"log/slog"

	"github.com/aretw0/wren/pkg/domain"
)

// AuditHooks logs every command and log append.
func AuditHooks(logger *slog.Logger) domain.Hooks {
	return domain.Hooks{
		OnCommand: func(ctx context.Context, e *domain.CommandEvent) {
			attrs := []any{
				"session_id", e.SessionID,
				"participant_id", e.ParticipantID,
				"command", e.Command,
				"duration", e.Duration,
			}
			if e.Err != nil {
				logger.Info("command_rejected", append(attrs, "err", e.Err)...)
				return
			}
			logger.Info("command", attrs...)
		},
		OnAppend: func(ctx context.Context, e *domain.AppendEvent) {
			logger.Debug("log_append",
				"session_id", e.Entry.SessionID,
				"seq", e.Entry.Seq,
				"speaker", e.Entry.Speaker,
				"kind", e.Entry.Kind,
			)
		},
	}
}
