package service

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/mbarkhau/stammtischbot/core/logger"
	"github.com/mbarkhau/stammtischbot/internal/model"
	"github.com/mbarkhau/stammtischbot/internal/sheet"
)

// IndexedContact pairs a contact with its 1-indexed sheet row.
type IndexedContact struct {
	Row     int64
	Contact model.Contact
}

// Contacts manages the kontakte tab and keeps an in-memory snapshot for
// the authorization gate. The snapshot is replaced wholesale on each
// sync; readers between syncs may observe a stale view, which only gates
// UI access and is acceptable.
type Contacts struct {
	sheet  tabStore
	tab    string
	logTab string

	mu       sync.RWMutex
	byID     map[string]model.Contact
	lastSync time.Time
}

// NewContacts returns a contact service over the given tabs.
func NewContacts(client *sheet.Client, tab, logTab string) *Contacts {
	return &Contacts{
		sheet:  client,
		tab:    tab,
		logTab: logTab,
		byID:   make(map[string]model.Contact),
	}
}

// Sync reloads all contacts from the sheet and swaps the snapshot.
func (s *Contacts) Sync(ctx context.Context) error {
	recs, err := s.sheet.Read(ctx, s.tab)
	if err != nil {
		return fmt.Errorf("contacts sync: %w", err)
	}
	byID := make(map[string]model.Contact, len(recs))
	for _, rec := range recs {
		c := model.ContactFromRecord(rec)
		if c.TelegramID != "" {
			byID[c.TelegramID] = c
		}
	}
	s.mu.Lock()
	s.byID = byID
	s.lastSync = time.Now()
	s.mu.Unlock()

	logger.SVCContacts.LogAttrs(ctx, slog.LevelInfo, "contacts.synced",
		slog.Int("count", len(byID)),
	)
	return nil
}

// Get looks up the cached contact for a Telegram id.
func (s *Contacts) Get(telegramID string) (model.Contact, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.byID[telegramID]
	return c, ok
}

// LastSync reports when the snapshot was last refreshed.
func (s *Contacts) LastSync() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastSync
}

// All returns every contact with its sheet row, read fresh from the
// sheet (the admin flows act on rows, so the cached snapshot is not
// enough).
func (s *Contacts) All(ctx context.Context) ([]IndexedContact, error) {
	recs, err := s.sheet.Read(ctx, s.tab)
	if err != nil {
		return nil, err
	}
	out := make([]IndexedContact, 0, len(recs))
	for i, rec := range recs {
		out = append(out, IndexedContact{
			Row:     int64(i + 2),
			Contact: model.ContactFromRecord(rec),
		})
	}
	return out, nil
}

// SetBotModus writes a new Bot Modus value into the contact's row. The
// column is located by normalized header name; a missing column aborts
// the operation with sheet.ErrColumnMissing. The snapshot is re-synced
// afterwards.
func (s *Contacts) SetBotModus(ctx context.Context, row int64, status string) error {
	col, err := s.sheet.ColumnIndex(ctx, s.tab, "bot_modus")
	if err != nil {
		return err
	}
	if err := s.sheet.UpdateCell(ctx, s.tab, col, row, status); err != nil {
		return fmt.Errorf("set bot_modus: %w", err)
	}
	logger.SVCContacts.LogAttrs(ctx, slog.LevelInfo, "contacts.modus_set",
		slog.Int64("row", row),
		slog.String("state", status),
	)
	return s.Sync(ctx)
}

// ScheduleResync registers the periodic snapshot refresh with the given
// cron runner. spec uses robfig/cron syntax, e.g. "@every 15m".
func (s *Contacts) ScheduleResync(cr *cron.Cron, spec string) error {
	_, err := cr.AddFunc(spec, func() {
		ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
		defer cancel()
		if err := s.Sync(ctx); err != nil {
			logger.SVCContacts.LogAttrs(ctx, slog.LevelWarn, "contacts.resync_failed",
				slog.String("err", err.Error()),
			)
		}
	})
	if err != nil {
		return fmt.Errorf("contacts resync schedule: %w", err)
	}
	return nil
}

// Audit appends a line to the audit log tab, best-effort.
func (s *Contacts) Audit(ctx context.Context, line string) {
	s.sheet.Log(ctx, s.logTab, line)
}
