package chatreg

import (
	"path/filepath"
	"testing"

	tele "gopkg.in/telebot.v4"
)

func TestObserveAndReload(t *testing.T) {
	path := filepath.Join(t.TempDir(), "chats.json")

	r, err := Open(path)
	if err != nil {
		t.Fatal(err)
	}
	if len(r.All()) != 0 {
		t.Fatalf("fresh registry has %d chats", len(r.All()))
	}

	chats := []*tele.Chat{
		{ID: -100123, Type: tele.ChatSuperGroup, Title: "Stammtisch Gruppe"},
		{ID: 42, Type: tele.ChatPrivate, Username: "testuser"},
	}
	for _, c := range chats {
		if err := r.Observe(c); err != nil {
			t.Fatal(err)
		}
	}
	if err := r.Observe(nil); err != nil {
		t.Fatal(err)
	}

	// Re-observing the same chat must not duplicate it.
	if err := r.Observe(chats[0]); err != nil {
		t.Fatal(err)
	}

	reloaded, err := Open(path)
	if err != nil {
		t.Fatal(err)
	}
	all := reloaded.All()
	if len(all) != 2 {
		t.Fatalf("reloaded %d chats, expected 2", len(all))
	}
	if all[0].ID != -100123 || all[0].Title != "Stammtisch Gruppe" {
		t.Errorf("entry 0 = %+v", all[0])
	}
	if all[1].ID != 42 || all[1].Username != "testuser" {
		t.Errorf("entry 1 = %+v", all[1])
	}
	if all[0].LastSeen.IsZero() {
		t.Error("last_seen not recorded")
	}
}
