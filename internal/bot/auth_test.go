package bot

import (
	"testing"

	tele "gopkg.in/telebot.v4"

	"github.com/mbarkhau/stammtischbot/internal/model"
)

func authApp(t *testing.T) *App {
	t.Helper()
	contacts := &fakeContacts{byID: map[string]model.Contact{
		"1001": {TelegramID: "1001", PLZ: "60594", BotModus: "aktiv"},
		"2002": {TelegramID: "2002", BotModus: "inaktiv"},
	}}
	return newTestApp(t, &fakeEvents{}, contacts)
}

func TestAuthUnknownUserIsIgnored(t *testing.T) {
	app := authApp(t)

	called := false
	next := func(c tele.Context) error { called = true; return nil }

	c := userCtx("hallo")
	c.sender = &tele.User{ID: 555555}
	c.chat = &tele.Chat{ID: 555555, Type: tele.ChatPrivate}

	if err := app.authMiddleware(next)(c); err != nil {
		t.Fatalf("middleware: %v", err)
	}
	if called {
		t.Error("handler ran for unknown user")
	}
	if len(c.sent) != 0 {
		t.Errorf("unknown user got a reply: %v", c.sent)
	}
}

func TestAuthInactiveUserGetsDenialMessage(t *testing.T) {
	app := authApp(t)

	called := false
	next := func(c tele.Context) error { called = true; return nil }

	c := userCtx("hallo")
	c.sender = &tele.User{ID: 2002}
	c.chat = &tele.Chat{ID: 2002, Type: tele.ChatPrivate}

	if err := app.authMiddleware(next)(c); err != nil {
		t.Fatalf("middleware: %v", err)
	}
	if called {
		t.Error("handler ran for inactive user")
	}
	if c.lastSent() != msgContactAdmin {
		t.Errorf("reply = %q", c.lastSent())
	}
}

func TestAuthActiveUserPassesThrough(t *testing.T) {
	app := authApp(t)

	called := false
	next := func(c tele.Context) error { called = true; return nil }

	if err := app.authMiddleware(next)(userCtx("hallo")); err != nil {
		t.Fatalf("middleware: %v", err)
	}
	if !called {
		t.Error("handler did not run for active user")
	}
}

func TestAuthAdminWithoutContactRowPassesThrough(t *testing.T) {
	app := authApp(t)

	called := false
	next := func(c tele.Context) error { called = true; return nil }

	c := userCtx("hallo")
	c.sender = &tele.User{ID: 999}
	c.chat = &tele.Chat{ID: 999, Type: tele.ChatPrivate}

	if err := app.authMiddleware(next)(c); err != nil {
		t.Fatalf("middleware: %v", err)
	}
	if !called {
		t.Error("handler did not run for admin")
	}
}

func TestAuthIgnoresGroupChats(t *testing.T) {
	app := authApp(t)

	called := false
	next := func(c tele.Context) error { called = true; return nil }

	c := userCtx("hallo")
	c.chat = &tele.Chat{ID: -100123, Type: tele.ChatGroup}

	if err := app.authMiddleware(next)(c); err != nil {
		t.Fatalf("middleware: %v", err)
	}
	if called {
		t.Error("handler ran in a group chat")
	}
	if len(c.sent) != 0 {
		t.Errorf("group chat got a reply: %v", c.sent)
	}
}
