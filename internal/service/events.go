// Package service contains the domain services layered on top of the
// spreadsheet client: event listing/creation/deletion and the contact
// registry with its periodic re-sync.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"

	"github.com/mbarkhau/stammtischbot/core/logger"
	"github.com/mbarkhau/stammtischbot/internal/model"
	"github.com/mbarkhau/stammtischbot/internal/sheet"
)

// ErrRowChanged indicates the sheet row to be deleted no longer matches
// the record captured when the candidate list was built. The delete is
// aborted; another actor mutated the sheet in between.
var ErrRowChanged = errors.New("row content changed since selection")

// IndexedEvent pairs an event with its 1-indexed sheet row (header = row
// 1, first data row = 2) at read time.
type IndexedEvent struct {
	Row   int64
	Event model.Event
}

// Events manages the termine tab.
type Events struct {
	sheet  tabStore
	tab    string
	logTab string
}

// NewEvents returns an event service over the given tabs.
func NewEvents(client *sheet.Client, tab, logTab string) *Events {
	return &Events{sheet: client, tab: tab, logTab: logTab}
}

// All returns every event with its sheet row, in sheet order.
func (s *Events) All(ctx context.Context) ([]IndexedEvent, error) {
	recs, err := s.sheet.Read(ctx, s.tab)
	if err != nil {
		return nil, err
	}
	out := make([]IndexedEvent, 0, len(recs))
	for i, rec := range recs {
		out = append(out, IndexedEvent{
			Row:   int64(i + 2),
			Event: model.EventFromRecord(rec),
		})
	}
	return out, nil
}

// ListByPLZ returns the events whose PLZ is in the given set.
func (s *Events) ListByPLZ(ctx context.Context, plz map[string]struct{}) ([]IndexedEvent, error) {
	all, err := s.All(ctx)
	if err != nil {
		return nil, err
	}
	var out []IndexedEvent
	for _, ie := range all {
		if _, ok := plz[ie.Event.PLZ]; ok {
			out = append(out, ie)
		}
	}
	return out, nil
}

// Previous returns the most recent event matching the PLZ set, selected
// by maximum beginn date string. ISO dates sort chronologically as
// strings, so a plain lexicographic comparison suffices. Returns nil
// when no event matches.
func (s *Events) Previous(ctx context.Context, plz map[string]struct{}) (*model.Event, error) {
	matches, err := s.ListByPLZ(ctx, plz)
	if err != nil {
		return nil, err
	}
	if len(matches) == 0 {
		return nil, nil
	}
	sort.SliceStable(matches, func(i, j int) bool {
		return matches[i].Event.Beginn > matches[j].Event.Beginn
	})
	ev := matches[0].Event
	return &ev, nil
}

// DeleteCandidates returns the user's events, sorted descending by date,
// capped to the given count and then reversed so the newest is last.
func (s *Events) DeleteCandidates(ctx context.Context, plz map[string]struct{}, max int) ([]IndexedEvent, error) {
	matches, err := s.ListByPLZ(ctx, plz)
	if err != nil {
		return nil, err
	}
	sort.SliceStable(matches, func(i, j int) bool {
		return matches[i].Event.Beginn > matches[j].Event.Beginn
	})
	if len(matches) > max {
		matches = matches[:max]
	}
	for i, j := 0, len(matches)-1; i < j; i, j = i+1, j-1 {
		matches[i], matches[j] = matches[j], matches[i]
	}
	return matches, nil
}

// Create appends the event to the termine tab.
func (s *Events) Create(ctx context.Context, ev model.Event) error {
	if err := s.sheet.Append(ctx, s.tab, []model.Record{ev.Record()}); err != nil {
		return fmt.Errorf("create event: %w", err)
	}
	logger.SVCEvents.LogAttrs(ctx, slog.LevelInfo, "event.created",
		slog.String("name", ev.Name),
		slog.String("beginn", ev.Beginn),
		slog.String("plz", ev.PLZ),
	)
	return nil
}

// Delete removes the event at the captured row after re-reading it and
// verifying its content still matches the expected record. Returns
// ErrRowChanged on mismatch without deleting anything.
func (s *Events) Delete(ctx context.Context, row int64, expected model.Event) error {
	current, err := s.sheet.ReadRow(ctx, s.tab, row)
	if err != nil {
		return fmt.Errorf("delete event: re-read row %d: %w", row, err)
	}
	got := model.EventFromRecord(current)
	if got.Name != expected.Name || got.Beginn != expected.Beginn || got.PLZ != expected.PLZ {
		logger.SVCEvents.LogAttrs(ctx, slog.LevelWarn, "event.delete_conflict",
			slog.Int64("row", row),
			slog.String("expected", expected.Name+" "+expected.Beginn),
			slog.String("found", got.Name+" "+got.Beginn),
		)
		return ErrRowChanged
	}
	if err := s.sheet.DeleteRow(ctx, s.tab, row); err != nil {
		return fmt.Errorf("delete event: %w", err)
	}
	logger.SVCEvents.LogAttrs(ctx, slog.LevelInfo, "event.deleted",
		slog.Int64("row", row),
		slog.String("name", expected.Name),
		slog.String("beginn", expected.Beginn),
	)
	return nil
}

// Audit appends a line to the audit log tab, best-effort.
func (s *Events) Audit(ctx context.Context, line string) {
	s.sheet.Log(ctx, s.logTab, line)
}
