package sheet

import (
	"context"
	"log/slog"
	"time"

	"github.com/mbarkhau/stammtischbot/core/logger"
	"github.com/mbarkhau/stammtischbot/internal/model"
)

// Log appends an audit line to the log tab. Failures are logged and
// swallowed; the audit trail must never break a user-facing operation.
func (c *Client) Log(ctx context.Context, tab, line string) {
	rec := model.Record{
		"timestamp": time.Now().UTC().Format(time.RFC3339),
		"message":   line,
	}
	if rid := logger.RIDFrom(ctx); rid != "" {
		rec["rid"] = rid
	}
	if err := c.Append(ctx, tab, []model.Record{rec}); err != nil {
		logger.SHEET.LogAttrs(ctx, slog.LevelWarn, "sheet.audit_failed",
			slog.String("tab", tab),
			slog.String("err", err.Error()),
		)
	}
}
