package bot

import (
	"strings"
	"testing"

	"github.com/mbarkhau/stammtischbot/core/telegram/state"
	"github.com/mbarkhau/stammtischbot/internal/model"
	"github.com/mbarkhau/stammtischbot/internal/service"
)

func TestCreateFlowWithDefaults(t *testing.T) {
	events := &fakeEvents{}
	contacts := &fakeContacts{byID: map[string]model.Contact{
		"1001": {TelegramID: "1001", Name: "Test User", PLZ: "60594", BotModus: "aktiv", Email: "test@example.com"},
	}}
	app := newTestApp(t, events, contacts)

	if err := app.startCreate(userCtx(labelCreateEvent)); err != nil {
		t.Fatalf("startCreate: %v", err)
	}

	step(t, app, "Testtreffen")
	c := step(t, app, "25.12")
	if !strings.Contains(c.lastSent(), "Fr. 25.12.2026") {
		t.Fatalf("date confirmation = %q", c.lastSent())
	}
	step(t, app, "Ja") // date correct
	step(t, app, "Ja") // keep 19:00
	step(t, app, "Ja") // keep profile PLZ
	c = step(t, app, "Ja")

	if len(events.created) != 1 {
		t.Fatalf("created %d events, expected 1", len(events.created))
	}
	ev := events.created[0]
	if ev.Name != "Testtreffen" {
		t.Errorf("name = %q", ev.Name)
	}
	if ev.Beginn != "2026-12-25" {
		t.Errorf("beginn = %q", ev.Beginn)
	}
	if ev.Ende != ev.Beginn {
		t.Errorf("ende = %q, expected same day as beginn", ev.Ende)
	}
	if ev.Uhrzeit != "19:00" {
		t.Errorf("uhrzeit = %q", ev.Uhrzeit)
	}
	if ev.PLZ != "60594" {
		t.Errorf("plz = %q", ev.PLZ)
	}
	if ev.Kontakt != "Test User" || ev.Email != "test@example.com" {
		t.Errorf("contact carry = %q / %q", ev.Kontakt, ev.Email)
	}

	if app.fsm.InProgress(state.Key{ChatID: 1001, UserID: 1001}) {
		t.Error("session still in progress after save")
	}
	if !strings.Contains(c.lastSent(), msgSaveOK) {
		t.Errorf("final message = %q", c.lastSent())
	}
	if len(events.audits) != 1 || !strings.Contains(events.audits[0], "created event: Testtreffen") {
		t.Errorf("audits = %v", events.audits)
	}
}

func TestCreateFlowCarriesForwardPreviousEvent(t *testing.T) {
	prev := model.Event{
		Name: "Stammtisch Sachsenhausen", Beginn: "2026-07-14", Uhrzeit: "20:00",
		PLZ: "60594", Orga: "Orga e.V.", OrgaWebseite: "https://example.org",
		Telegram: "@gruppe", TelegramGroupID: "-1001234",
	}
	events := &fakeEvents{events: []service.IndexedEvent{{Row: 2, Event: prev}}}
	contacts := &fakeContacts{byID: map[string]model.Contact{
		"1001": {TelegramID: "1001", Name: "Test User", PLZ: "60594", BotModus: "aktiv"},
	}}
	app := newTestApp(t, events, contacts)

	c := userCtx(labelCreateEvent)
	if err := app.startCreate(c); err != nil {
		t.Fatalf("startCreate: %v", err)
	}
	if !strings.Contains(c.lastSent(), `"Stammtisch Sachsenhausen"`) {
		t.Fatalf("name reuse prompt = %q", c.lastSent())
	}

	step(t, app, "Ja") // keep name
	step(t, app, "3.10")
	step(t, app, "Ja")
	c = step(t, app, "Ja") // keep 20:00
	if !strings.Contains(c.sent[0], "Weiterhin unter 60594?") {
		t.Fatalf("plz prompt = %q", c.sent[0])
	}
	step(t, app, "Ja")
	step(t, app, "Ja")

	if len(events.created) != 1 {
		t.Fatalf("created %d events", len(events.created))
	}
	ev := events.created[0]
	if ev.Uhrzeit != "20:00" {
		t.Errorf("uhrzeit = %q, expected previous time", ev.Uhrzeit)
	}
	if ev.Orga != prev.Orga || ev.OrgaWebseite != prev.OrgaWebseite {
		t.Errorf("organizer fields not carried: %+v", ev)
	}
	if ev.Telegram != prev.Telegram || ev.TelegramGroupID != prev.TelegramGroupID {
		t.Errorf("telegram fields not carried: %+v", ev)
	}
	if ev.Beginn != "2026-10-03" {
		t.Errorf("beginn = %q", ev.Beginn)
	}
}

func TestCreateFlowSuggestsFirstProfilePLZ(t *testing.T) {
	events := &fakeEvents{}
	contacts := &fakeContacts{byID: map[string]model.Contact{
		"1001": {TelegramID: "1001", PLZ: "80331, 10115", BotModus: "aktiv"},
	}}
	app := newTestApp(t, events, contacts)

	if err := app.startCreate(userCtx(labelCreateEvent)); err != nil {
		t.Fatalf("startCreate: %v", err)
	}
	step(t, app, "Testtreffen")
	step(t, app, "25.12")
	step(t, app, "Ja")
	c := step(t, app, "Ja") // keep 19:00, now asked for the PLZ

	// The first registered code wins, not the numerically smaller one.
	if !strings.Contains(c.lastSent(), "Weiterhin unter 80331?") {
		t.Fatalf("plz prompt = %q", c.lastSent())
	}
	step(t, app, "Ja")
	step(t, app, "Ja")
	if len(events.created) != 1 || events.created[0].PLZ != "80331" {
		t.Fatalf("created = %+v", events.created)
	}
}

func TestCreateFlowRepromptsOnBadDate(t *testing.T) {
	events := &fakeEvents{}
	contacts := &fakeContacts{byID: map[string]model.Contact{
		"1001": {TelegramID: "1001", PLZ: "60594", BotModus: "aktiv"},
	}}
	app := newTestApp(t, events, contacts)

	if err := app.startCreate(userCtx(labelCreateEvent)); err != nil {
		t.Fatalf("startCreate: %v", err)
	}
	step(t, app, "Testtreffen")

	c := step(t, app, "31.02")
	if c.lastSent() != msgDateInvalid {
		t.Fatalf("invalid date reply = %q", c.lastSent())
	}
	c = step(t, app, "irgendwann")
	if c.lastSent() != msgDateUnparsed {
		t.Fatalf("unparsed date reply = %q", c.lastSent())
	}

	key := state.Key{ChatID: 1001, UserID: 1001}
	if app.fsm.GetState(key) != stCreateAskDate {
		t.Fatalf("state = %q, expected still asking for date", app.fsm.GetState(key))
	}
	step(t, app, "24.12")
	if app.fsm.GetState(key) != stCreateConfirmDate {
		t.Fatalf("state = %q after valid date", app.fsm.GetState(key))
	}
}

func TestCancelFromEveryDialogState(t *testing.T) {
	states := []state.State{
		stCreateAskName, stCreateAskDate, stCreateConfirmDate,
		stCreateAskTime, stCreateAskPLZ, stCreateConfirmSave,
		stDeleteSelect, stDeleteConfirm, stUserSelect, stUserConfirm,
	}
	for _, st := range states {
		t.Run(string(st), func(t *testing.T) {
			events := &fakeEvents{}
			contacts := &fakeContacts{byID: map[string]model.Contact{
				"1001": {TelegramID: "1001", PLZ: "60594", BotModus: "aktiv"},
			}}
			app := newTestApp(t, events, contacts)

			key := state.Key{ChatID: 1001, UserID: 1001}
			app.fsm.SetState(key, st)
			c := step(t, app, "abbrechen")

			if app.fsm.InProgress(key) {
				t.Error("session still in progress after cancel")
			}
			if c.lastSent() != msgCancelled {
				t.Errorf("reply = %q", c.lastSent())
			}
			if len(events.created) != 0 {
				t.Errorf("cancel created an event")
			}
		})
	}
}

func TestCreateFlowDateRollsOverToNextYear(t *testing.T) {
	events := &fakeEvents{}
	contacts := &fakeContacts{byID: map[string]model.Contact{
		"1001": {TelegramID: "1001", PLZ: "60594", BotModus: "aktiv"},
	}}
	app := newTestApp(t, events, contacts)
	// Fixed clock: 2026-08-25, so 01.03 is already past.
	if err := app.startCreate(userCtx(labelCreateEvent)); err != nil {
		t.Fatalf("startCreate: %v", err)
	}
	step(t, app, "Testtreffen")
	c := step(t, app, "1.3")
	if !strings.Contains(c.lastSent(), "01.03.2027") {
		t.Fatalf("rollover confirmation = %q, want next year", c.lastSent())
	}
}
