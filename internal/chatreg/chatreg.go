// Package chatreg keeps a local JSON registry of every chat the bot has
// seen: id, type, title, and the last-seen timestamp. The file is
// rewritten atomically on every change so a crash never truncates it.
package chatreg

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"sync"
	"time"

	tele "gopkg.in/telebot.v4"

	"github.com/mbarkhau/stammtischbot/internal/atomicio"
)

// Chat is one registry entry.
type Chat struct {
	ID       int64     `json:"id"`
	Type     string    `json:"type"`
	Title    string    `json:"title,omitempty"`
	Username string    `json:"username,omitempty"`
	LastSeen time.Time `json:"last_seen"`
}

// Registry is the persistent chat registry.
type Registry struct {
	path string

	mu    sync.Mutex
	chats map[int64]Chat
}

// Open loads the registry file, creating an empty registry when the file
// does not exist yet.
func Open(path string) (*Registry, error) {
	r := &Registry{path: path, chats: make(map[int64]Chat)}
	raw, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return r, nil
	}
	if err != nil {
		return nil, fmt.Errorf("chatreg: read: %w", err)
	}
	var entries []Chat
	if err := json.Unmarshal(raw, &entries); err != nil {
		return nil, fmt.Errorf("chatreg: parse: %w", err)
	}
	for _, c := range entries {
		r.chats[c.ID] = c
	}
	return r, nil
}

// Observe records the chat and persists the registry. Safe for concurrent
// use; write failures are returned but callers typically only log them.
func (r *Registry) Observe(chat *tele.Chat) error {
	if chat == nil {
		return nil
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.chats[chat.ID] = Chat{
		ID:       chat.ID,
		Type:     string(chat.Type),
		Title:    chat.Title,
		Username: chat.Username,
		LastSeen: time.Now().UTC(),
	}
	return r.saveLocked()
}

// All returns the registered chats sorted by id.
func (r *Registry) All() []Chat {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Chat, 0, len(r.chats))
	for _, c := range r.chats {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (r *Registry) saveLocked() error {
	entries := make([]Chat, 0, len(r.chats))
	for _, c := range r.chats {
		entries = append(entries, c)
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].ID < entries[j].ID })
	if err := atomicio.WriteJSON(r.path, entries); err != nil {
		return fmt.Errorf("chatreg: save: %w", err)
	}
	return nil
}
