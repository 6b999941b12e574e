// Package model defines the spreadsheet-backed record types shared by the
// bot, the services, and the export tooling. Rows are stored in the remote
// sheet with German column names; keys are normalized to
// lowercase_with_underscores on read.
package model

import (
	"sort"
	"strings"
	"time"
)

// Record is a single normalized sheet row. Blank cells are absent from the
// map rather than stored as empty strings.
type Record map[string]string

// NormalizeKey folds a header cell into the canonical field name:
// lowercased, spaces replaced with underscores.
func NormalizeKey(header string) string {
	return strings.ReplaceAll(strings.ToLower(strings.TrimSpace(header)), " ", "_")
}

// Clone returns a shallow copy of the record.
func (r Record) Clone() Record {
	out := make(Record, len(r))
	for k, v := range r {
		out[k] = v
	}
	return out
}

// Event is a Termin row from the termine tab. Columns not covered by the
// named fields are preserved in Extra so appends round-trip unknown columns.
type Event struct {
	Name            string
	Beginn          string // ISO date yyyy-mm-dd
	Ende            string
	Uhrzeit         string
	PLZ             string
	Kontakt         string
	Email           string
	Orga            string
	OrgaWebseite    string
	Telegram        string
	TelegramGroupID string

	Extra Record
}

// eventFieldOrder is the canonical column order of the termine tab.
var eventFieldOrder = []string{
	"name", "beginn", "ende", "uhrzeit", "plz",
	"kontakt", "e-mail", "orga", "orga_webseite",
	"telegram", "telegram_group_id",
}

// eventFields are the columns mapped onto named Event fields.
var eventFields = func() map[string]struct{} {
	m := make(map[string]struct{}, len(eventFieldOrder))
	for _, k := range eventFieldOrder {
		m[k] = struct{}{}
	}
	return m
}()

// OrderedKeys returns the record's keys with the canonical event columns
// first in their fixed order, then any remaining keys sorted. Keeps
// header extension deterministic without scrambling the known columns.
func (r Record) OrderedKeys() []string {
	keys := make([]string, 0, len(r))
	for _, k := range eventFieldOrder {
		if _, ok := r[k]; ok {
			keys = append(keys, k)
		}
	}
	var rest []string
	for k := range r {
		if _, known := eventFields[k]; !known {
			rest = append(rest, k)
		}
	}
	sort.Strings(rest)
	return append(keys, rest...)
}

// EventFromRecord maps a normalized sheet row onto an Event.
func EventFromRecord(r Record) Event {
	ev := Event{
		Name:            r["name"],
		Beginn:          r["beginn"],
		Ende:            r["ende"],
		Uhrzeit:         r["uhrzeit"],
		PLZ:             r["plz"],
		Kontakt:         r["kontakt"],
		Email:           r["e-mail"],
		Orga:            r["orga"],
		OrgaWebseite:    r["orga_webseite"],
		Telegram:        r["telegram"],
		TelegramGroupID: r["telegram_group_id"],
	}
	for k, v := range r {
		if _, known := eventFields[k]; known {
			continue
		}
		if ev.Extra == nil {
			ev.Extra = Record{}
		}
		ev.Extra[k] = v
	}
	return ev
}

// Record converts the event back into a sheet row. Empty fields are
// omitted, matching the read-side convention.
func (e Event) Record() Record {
	r := Record{}
	put := func(k, v string) {
		if v != "" {
			r[k] = v
		}
	}
	put("name", e.Name)
	put("beginn", e.Beginn)
	put("ende", e.Ende)
	put("uhrzeit", e.Uhrzeit)
	put("plz", e.PLZ)
	put("kontakt", e.Kontakt)
	put("e-mail", e.Email)
	put("orga", e.Orga)
	put("orga_webseite", e.OrgaWebseite)
	put("telegram", e.Telegram)
	put("telegram_group_id", e.TelegramGroupID)
	for k, v := range e.Extra {
		put(k, v)
	}
	return r
}

// AnnounceTarget returns the chat the event should be announced to, the
// explicit group id winning over the legacy telegram column.
func (e Event) AnnounceTarget() string {
	if e.TelegramGroupID != "" {
		return e.TelegramGroupID
	}
	return e.Telegram
}

// Contact is a Kontakt row from the kontakte tab.
type Contact struct {
	TelegramID string
	Name       string
	Username   string
	PLZ        string // comma-separated list
	BotModus   string
	Email      string

	Extra Record
}

var contactFields = map[string]struct{}{
	"telegram_id": {}, "name": {}, "username": {}, "plz": {},
	"bot_modus": {}, "e-mail": {},
}

// ContactFromRecord maps a normalized sheet row onto a Contact.
func ContactFromRecord(r Record) Contact {
	c := Contact{
		TelegramID: r["telegram_id"],
		Name:       r["name"],
		Username:   r["username"],
		PLZ:        r["plz"],
		BotModus:   r["bot_modus"],
		Email:      r["e-mail"],
	}
	for k, v := range r {
		if _, known := contactFields[k]; known {
			continue
		}
		if c.Extra == nil {
			c.Extra = Record{}
		}
		c.Extra[k] = v
	}
	return c
}

// IsActive reports whether the contact's Bot Modus authorizes bot usage.
// The sheet value is free text maintained by hand, so matching is
// case-insensitive.
func (c Contact) IsActive() bool {
	return strings.EqualFold(strings.TrimSpace(c.BotModus), "aktiv")
}

// PLZList splits the comma-separated PLZ column into trimmed codes.
func (c Contact) PLZList() []string {
	var out []string
	for _, p := range strings.Split(c.PLZ, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// PLZSet returns the contact's postal codes as a lookup set.
func (c Contact) PLZSet() map[string]struct{} {
	set := make(map[string]struct{})
	for _, p := range c.PLZList() {
		set[p] = struct{}{}
	}
	return set
}

// Label is the display string used in admin selection keyboards.
func (c Contact) Label() string {
	name := c.Name
	if name == "" {
		name = "Unbekannt"
	}
	if c.Username != "" {
		return name + " (@" + c.Username + ")"
	}
	return name
}

var weekdaysDE = map[time.Weekday]string{
	time.Monday:    "Mo.",
	time.Tuesday:   "Di.",
	time.Wednesday: "Mi.",
	time.Thursday:  "Do.",
	time.Friday:    "Fr.",
	time.Saturday:  "Sa.",
	time.Sunday:    "So.",
}

// WeekdayDE returns the abbreviated German weekday for an ISO date string,
// or "" when the date does not parse.
func WeekdayDE(isoDate string) string {
	d, err := time.Parse("2006-01-02", isoDate)
	if err != nil {
		return ""
	}
	return weekdaysDE[d.Weekday()]
}

// DisplayDate formats an ISO date as dd.mm.yyyy, falling back to the raw
// string when it does not parse.
func DisplayDate(isoDate string) string {
	d, err := time.Parse("2006-01-02", isoDate)
	if err != nil {
		return isoDate
	}
	return d.Format("02.01.2006")
}
