package sheet

import (
	"context"
	"strings"
	"testing"

	"github.com/mbarkhau/stammtischbot/internal/model"
	"github.com/mbarkhau/stammtischbot/internal/testutil"
)

func TestParseCSV(t *testing.T) {
	csvBody := "Name,Beginn,Telegram Group ID\n" +
		"Stammtisch,2026-12-25,-100123\n" +
		"Ohne Gruppe,2026-11-01,\n" +
		"\" Getrimmt \",2026-10-01,-100456\n"

	recs, err := ParseCSV(strings.NewReader(csvBody))
	if err != nil {
		t.Fatal(err)
	}
	want := []model.Record{
		{"name": "Stammtisch", "beginn": "2026-12-25", "telegram_group_id": "-100123"},
		{"name": "Ohne Gruppe", "beginn": "2026-11-01"},
		{"name": "Getrimmt", "beginn": "2026-10-01", "telegram_group_id": "-100456"},
	}
	testutil.AssertEqual(t, recs, want)
}

func TestParseCSVRaggedRows(t *testing.T) {
	csvBody := "a,b\nonly-a\n1,2,3\n"
	recs, err := ParseCSV(strings.NewReader(csvBody))
	if err != nil {
		t.Fatal(err)
	}
	want := []model.Record{
		{"a": "only-a"},
		{"a": "1", "b": "2"}, // surplus cells beyond the header are dropped
	}
	testutil.AssertEqual(t, recs, want)
}

func TestParseCSVEmpty(t *testing.T) {
	recs, err := ParseCSV(strings.NewReader(""))
	if err != nil {
		t.Fatal(err)
	}
	if recs != nil {
		t.Errorf("recs = %v, expected nil", recs)
	}
}

func TestColumnLetter(t *testing.T) {
	tests := []struct {
		idx  int
		want string
	}{
		{0, "A"},
		{1, "B"},
		{25, "Z"},
		{26, "AA"},
		{27, "AB"},
		{51, "AZ"},
		{52, "BA"},
		{701, "ZZ"},
		{702, "AAA"},
	}
	for _, tt := range tests {
		if got := ColumnLetter(tt.idx); got != tt.want {
			t.Errorf("ColumnLetter(%d) = %q, want %q", tt.idx, got, tt.want)
		}
	}
}

func TestParseFirstRow(t *testing.T) {
	tests := []struct {
		a1   string
		want int64
		ok   bool
	}{
		{"termine!A12:K12", 12, true},
		{"termine!A7", 7, true},
		{"A3:B9", 3, true},
		{"termine!A:K", 0, false},
	}
	for _, tt := range tests {
		got, ok := parseFirstRow(tt.a1)
		if ok != tt.ok || got != tt.want {
			t.Errorf("parseFirstRow(%q) = %d, %v", tt.a1, got, ok)
		}
	}
}

func TestExtendHeadersKeepsColumnOrder(t *testing.T) {
	headers := []string{"name", "beginn", "plz"}
	recs := []model.Record{{
		"name": "X", "beginn": "2026-12-25", "ende": "2026-12-25",
		"uhrzeit": "19:00", "plz": "60594", "telegram_group_id": "-100123",
	}}
	// New columns arrive in the data model's order, not sorted:
	// ende, then uhrzeit, then telegram_group_id (sorted order would
	// put telegram_group_id before uhrzeit).
	want := []string{"name", "beginn", "plz", "ende", "uhrzeit", "telegram_group_id"}
	testutil.AssertEqual(t, extendHeaders(headers, recs), want)

	// Unknown columns still extend deterministically, after the known ones.
	recs[0]["zusatz"] = "x"
	recs[0]["anfahrt"] = "y"
	want = append(want, "anfahrt", "zusatz")
	testutil.AssertEqual(t, extendHeaders(headers, recs), want)

	if got := extendHeaders([]string{"name"}, nil); len(got) != 1 {
		t.Errorf("no records extended the header: %v", got)
	}
}

func TestExportURLEscapesTabName(t *testing.T) {
	url := ExportURL("sheet-id", "meine termine")
	if !strings.Contains(url, "sheet-id") {
		t.Errorf("url missing sheet id: %s", url)
	}
	if strings.Contains(url, " ") {
		t.Errorf("url contains unescaped space: %s", url)
	}
}

func TestDeleteRowRefusesHeader(t *testing.T) {
	c := New("sheet-id", "")
	for _, row := range []int64{0, 1, -3} {
		if err := c.DeleteRow(context.Background(), "termine", row); err == nil {
			t.Errorf("DeleteRow(%d) accepted a protected row", row)
		}
	}
}
