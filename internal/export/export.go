// Package export writes JSON snapshots of the spreadsheet for the
// website: raw termine/kontakte dumps under data/ and a geocoded event
// list under www/ for the map.
package export

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/mbarkhau/stammtischbot/core/logger"
	"github.com/mbarkhau/stammtischbot/internal/atomicio"
	"github.com/mbarkhau/stammtischbot/internal/geo"
	"github.com/mbarkhau/stammtischbot/internal/model"
	"github.com/mbarkhau/stammtischbot/internal/sheet"
)

// MapItem is one entry of the geocoded event list consumed by the map on
// the website.
type MapItem struct {
	Name     string     `json:"name"`
	PLZ      string     `json:"plz"`
	State    string     `json:"state,omitempty"`
	City     string     `json:"city"`
	CityDist float64    `json:"city_dist"`
	Coords   [2]float64 `json:"coords"`
	Date     string     `json:"date"`
	Dow      string     `json:"dow,omitempty"`
	Time     string     `json:"time,omitempty"`
	Orga     string     `json:"orga,omitempty"`
	OrgaWWW  string     `json:"orga_www,omitempty"`
	Kontakt  string     `json:"kontakt,omitempty"`
	Email    string     `json:"e-mail,omitempty"`
	Link     string     `json:"link,omitempty"`
}

// Exporter downloads sheet tabs and writes the JSON snapshots.
type Exporter struct {
	sheet    *sheet.Client
	geocoder *geo.Client
	cities   []geo.City

	eventsTab   string
	contactsTab string
	dataDir     string
	wwwDir      string
}

// New returns an exporter. geocoder may be nil, in which case the map
// list is skipped and only the raw dumps are written.
func New(client *sheet.Client, geocoder *geo.Client, cities []geo.City, eventsTab, contactsTab, dataDir, wwwDir string) *Exporter {
	return &Exporter{
		sheet:       client,
		geocoder:    geocoder,
		cities:      cities,
		eventsTab:   eventsTab,
		contactsTab: contactsTab,
		dataDir:     dataDir,
		wwwDir:      wwwDir,
	}
}

// Run downloads both tabs and writes all snapshot files. Events are
// sorted by date so re-exports of unchanged data are byte-identical.
func (e *Exporter) Run(ctx context.Context) error {
	termine, err := e.sheet.Read(ctx, e.eventsTab)
	if err != nil {
		return fmt.Errorf("export: read %s: %w", e.eventsTab, err)
	}
	sort.SliceStable(termine, func(i, j int) bool {
		return termine[i]["beginn"] < termine[j]["beginn"]
	})

	if err := os.MkdirAll(e.dataDir, 0o755); err != nil {
		return fmt.Errorf("export: %w", err)
	}
	if err := atomicio.WriteJSON(filepath.Join(e.dataDir, "termine.json"), termine); err != nil {
		return fmt.Errorf("export: write termine: %w", err)
	}
	logger.SYNC.LogAttrs(ctx, slog.LevelInfo, "export.termine",
		slog.Int("rows", len(termine)),
	)

	if e.geocoder != nil {
		items := e.buildMapItems(ctx, termine)
		if err := os.MkdirAll(e.wwwDir, 0o755); err != nil {
			return fmt.Errorf("export: %w", err)
		}
		if err := atomicio.WriteJSON(filepath.Join(e.wwwDir, "termine.json"), items); err != nil {
			return fmt.Errorf("export: write map items: %w", err)
		}
		logger.SYNC.LogAttrs(ctx, slog.LevelInfo, "export.map_items",
			slog.Int("rows", len(items)),
		)
	}

	kontakte, err := e.sheet.Read(ctx, e.contactsTab)
	if err != nil {
		return fmt.Errorf("export: read %s: %w", e.contactsTab, err)
	}
	if err := atomicio.WriteJSON(filepath.Join(e.dataDir, "kontakte.json"), kontakte); err != nil {
		return fmt.Errorf("export: write kontakte: %w", err)
	}
	logger.SYNC.LogAttrs(ctx, slog.LevelInfo, "export.kontakte",
		slog.Int("rows", len(kontakte)),
	)
	return nil
}

// buildMapItems geocodes each event's PLZ and attaches the nearest
// reference city. Events that cannot be geocoded are skipped, not fatal.
func (e *Exporter) buildMapItems(ctx context.Context, termine []model.Record) []MapItem {
	items := make([]MapItem, 0, len(termine))
	for _, rec := range termine {
		ev := model.EventFromRecord(rec)
		plz := strings.TrimSpace(ev.PLZ)
		if plz == "" || ev.Beginn == "" {
			logger.SYNC.LogAttrs(ctx, slog.LevelWarn, "export.skip_invalid",
				slog.String("name", ev.Name),
			)
			continue
		}
		loc, err := e.geocoder.GeocodePLZ(ctx, plz)
		if err != nil {
			logger.SYNC.LogAttrs(ctx, slog.LevelWarn, "export.geocode_failed",
				slog.String("plz", plz),
				slog.String("err", err.Error()),
			)
			continue
		}
		if loc == nil {
			continue
		}

		item := MapItem{
			Name:    ev.Name,
			PLZ:     plz,
			State:   loc.State,
			City:    "Unknown",
			Coords:  [2]float64{loc.Lat, loc.Lon},
			Date:    strings.SplitN(ev.Beginn, " ", 2)[0],
			Dow:     model.WeekdayDE(ev.Beginn),
			Time:    ev.Uhrzeit,
			Orga:    ev.Orga,
			OrgaWWW: ev.OrgaWebseite,
			Kontakt: ev.Kontakt,
			Email:   ev.Email,
			Link:    ev.Telegram,
		}
		if city, dist := geo.FindNearestCity(e.cities, loc.Lat, loc.Lon); city != nil {
			item.City = city.Name
			item.CityDist = roundTenth(dist)
		}
		items = append(items, item)
	}
	return items
}

func roundTenth(v float64) float64 {
	return math.Round(v*10) / 10
}
