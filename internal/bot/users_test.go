package bot

import (
	"strings"
	"testing"

	"github.com/mbarkhau/stammtischbot/core/telegram/state"
	"github.com/mbarkhau/stammtischbot/internal/model"
	"github.com/mbarkhau/stammtischbot/internal/service"
)

func adminFixture() *fakeContacts {
	return &fakeContacts{
		byID: map[string]model.Contact{
			"999": {TelegramID: "999", Name: "Admin", BotModus: "Aktiv"},
		},
		rows: []service.IndexedContact{
			{Row: 2, Contact: model.Contact{TelegramID: "3003", Name: "Neu Dabei", Username: "neu", BotModus: ""}},
			{Row: 3, Contact: model.Contact{TelegramID: "4004", Name: "Schon Aktiv", Username: "aktiv", BotModus: "Aktiv"}},
		},
	}
}

func adminCtx(text string) *fakeContext {
	c := userCtx(text)
	c.sender.ID = 999
	c.chat.ID = 999
	return c
}

func TestActivateUserFlow(t *testing.T) {
	contacts := adminFixture()
	app := newTestApp(t, &fakeEvents{}, contacts)

	c := adminCtx(labelActivateUser)
	if err := app.startManageUsers(c, labelActivateUser); err != nil {
		t.Fatalf("startManageUsers: %v", err)
	}
	if !strings.Contains(c.sent[0], "aktivieren") {
		t.Fatalf("prompt = %q", c.sent[0])
	}

	pick := callbackCtx(cbUserPick, "0")
	pick.sender.ID = 999
	pick.chat.ID = 999
	if err := app.userPickCallback(pick); err != nil {
		t.Fatalf("pick: %v", err)
	}
	if !strings.Contains(pick.lastSent(), "Neu Dabei") {
		t.Fatalf("confirmation = %q", pick.lastSent())
	}

	confirm := adminCtx("Ja")
	if err := app.fsm.ManagerHandler(confirm); err != nil {
		t.Fatalf("confirm: %v", err)
	}
	if got := contacts.modus[2]; got != statusActive {
		t.Fatalf("modus[2] = %q, expected %q", got, statusActive)
	}
	if !strings.Contains(confirm.lastSent(), "aktiviert") {
		t.Errorf("reply = %q", confirm.lastSent())
	}
	if len(contacts.audits) != 1 || !strings.Contains(contacts.audits[0], "set status of Neu Dabei") {
		t.Errorf("audits = %v", contacts.audits)
	}
	if app.fsm.InProgress(state.Key{ChatID: 999, UserID: 999}) {
		t.Error("session still in progress")
	}
}

func TestDeactivateOffersOnlyActiveUsers(t *testing.T) {
	contacts := adminFixture()
	app := newTestApp(t, &fakeEvents{}, contacts)

	c := adminCtx(labelDeactivateUser)
	if err := app.startManageUsers(c, labelDeactivateUser); err != nil {
		t.Fatalf("startManageUsers: %v", err)
	}

	key := state.Key{ChatID: 999, UserID: 999}
	v, ok := app.fsm.GetTemp(key, tmpUserCands)
	if !ok {
		t.Fatal("no candidates stored")
	}
	cands := v.([]service.IndexedContact)
	if len(cands) != 1 || cands[0].Contact.TelegramID != "4004" {
		t.Fatalf("candidates = %+v, expected only the active user", cands)
	}
}

func TestActivateWithNoCandidates(t *testing.T) {
	contacts := &fakeContacts{
		rows: []service.IndexedContact{
			{Row: 2, Contact: model.Contact{TelegramID: "4004", Name: "Schon Aktiv", BotModus: "Aktiv"}},
		},
	}
	app := newTestApp(t, &fakeEvents{}, contacts)

	c := adminCtx(labelActivateUser)
	if err := app.startManageUsers(c, labelActivateUser); err != nil {
		t.Fatalf("startManageUsers: %v", err)
	}
	if !strings.Contains(c.lastSent(), "Keine Nutzer gefunden") {
		t.Fatalf("reply = %q", c.lastSent())
	}
	if app.fsm.InProgress(state.Key{ChatID: 999, UserID: 999}) {
		t.Error("dialog started without candidates")
	}
}
