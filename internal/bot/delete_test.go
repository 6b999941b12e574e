package bot

import (
	"strings"
	"testing"

	tele "gopkg.in/telebot.v4"

	"github.com/mbarkhau/stammtischbot/core/telegram/state"
	"github.com/mbarkhau/stammtischbot/internal/model"
	"github.com/mbarkhau/stammtischbot/internal/service"
)

func deleteFixture() (*fakeEvents, *fakeContacts) {
	events := &fakeEvents{events: []service.IndexedEvent{
		{Row: 2, Event: model.Event{Name: "Alt", Beginn: "2026-09-01", Uhrzeit: "19:00", PLZ: "60594"}},
		{Row: 3, Event: model.Event{Name: "Neu", Beginn: "2026-10-01", Uhrzeit: "20:00", PLZ: "60594"}},
	}}
	contacts := &fakeContacts{byID: map[string]model.Contact{
		"1001": {TelegramID: "1001", Name: "Test User", PLZ: "60594", BotModus: "aktiv"},
	}}
	return events, contacts
}

func callbackCtx(unique, payload string) *fakeContext {
	c := userCtx("")
	c.callback = &tele.Callback{Data: "\\f" + unique + "|" + payload}
	return c
}

func TestDeleteFlow(t *testing.T) {
	events, contacts := deleteFixture()
	app := newTestApp(t, events, contacts)

	c := userCtx(labelDeleteEvent)
	if err := app.startDelete(c); err != nil {
		t.Fatalf("startDelete: %v", err)
	}
	key := state.Key{ChatID: 1001, UserID: 1001}
	if app.fsm.GetState(key) != stDeleteSelect {
		t.Fatalf("state = %q", app.fsm.GetState(key))
	}

	if err := app.deletePickCallback(callbackCtx(cbDeletePick, "1")); err != nil {
		t.Fatalf("pick: %v", err)
	}
	if app.fsm.GetState(key) != stDeleteConfirm {
		t.Fatalf("state after pick = %q", app.fsm.GetState(key))
	}

	c = step(t, app, "Ja")
	if len(events.deleted) != 1 || events.deleted[0] != 3 {
		t.Fatalf("deleted rows = %v, expected [3]", events.deleted)
	}
	if !strings.Contains(c.lastSent(), msgDeleteOK) {
		t.Errorf("reply = %q", c.lastSent())
	}
	if len(events.audits) != 1 || !strings.Contains(events.audits[0], "deleted event: Neu") {
		t.Errorf("audits = %v", events.audits)
	}
	if app.fsm.InProgress(key) {
		t.Error("session still in progress")
	}
}

func TestDeletePickRejectsBadIndex(t *testing.T) {
	events, contacts := deleteFixture()
	app := newTestApp(t, events, contacts)

	if err := app.startDelete(userCtx(labelDeleteEvent)); err != nil {
		t.Fatalf("startDelete: %v", err)
	}
	for _, payload := range []string{"7", "-1", "abc"} {
		if err := app.deletePickCallback(callbackCtx(cbDeletePick, payload)); err != nil {
			t.Fatalf("pick %q: %v", payload, err)
		}
	}
	key := state.Key{ChatID: 1001, UserID: 1001}
	if app.fsm.GetState(key) != stDeleteSelect {
		t.Fatalf("state = %q, bad payloads must not advance", app.fsm.GetState(key))
	}
}

func TestDeletePickIgnoredOutsideDialog(t *testing.T) {
	events, contacts := deleteFixture()
	app := newTestApp(t, events, contacts)

	c := callbackCtx(cbDeletePick, "0")
	if err := app.deletePickCallback(c); err != nil {
		t.Fatalf("pick: %v", err)
	}
	if len(c.sent) != 0 {
		t.Errorf("stale callback produced output: %v", c.sent)
	}
	if len(events.deleted) != 0 {
		t.Errorf("stale callback deleted rows: %v", events.deleted)
	}
}

func TestDeleteConflictAbortsFlow(t *testing.T) {
	events, contacts := deleteFixture()
	events.deleteErr = service.ErrRowChanged
	app := newTestApp(t, events, contacts)

	if err := app.startDelete(userCtx(labelDeleteEvent)); err != nil {
		t.Fatalf("startDelete: %v", err)
	}
	if err := app.deletePickCallback(callbackCtx(cbDeletePick, "0")); err != nil {
		t.Fatalf("pick: %v", err)
	}
	c := step(t, app, "Ja")

	if c.lastSent() != msgDeleteConflict {
		t.Fatalf("reply = %q", c.lastSent())
	}
	if len(events.deleted) != 0 {
		t.Errorf("conflicting delete went through: %v", events.deleted)
	}
	if app.fsm.InProgress(state.Key{ChatID: 1001, UserID: 1001}) {
		t.Error("session still in progress after conflict")
	}
}
