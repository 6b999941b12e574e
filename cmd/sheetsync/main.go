// Command sheetsync regenerates the JSON snapshots of the spreadsheet and
// maintains the city coordinate reference data. It covers the offline
// side of the system and shares all configuration with the bot.
package main

import (
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/urfave/cli/v2"

	"github.com/mbarkhau/stammtischbot/core/cache"
	coreconfig "github.com/mbarkhau/stammtischbot/core/config"
	"github.com/mbarkhau/stammtischbot/core/logger"
	"github.com/mbarkhau/stammtischbot/internal/atomicio"
	"github.com/mbarkhau/stammtischbot/internal/export"
	"github.com/mbarkhau/stammtischbot/internal/geo"
	"github.com/mbarkhau/stammtischbot/internal/gitsync"
	"github.com/mbarkhau/stammtischbot/internal/service"
	"github.com/mbarkhau/stammtischbot/internal/sheet"
)

func main() {
	_ = godotenv.Load()

	app := &cli.App{
		Name:  "sheetsync",
		Usage: "Export spreadsheet data to JSON and push it to the website repo.",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Value:   "config.yaml",
				Usage:   "path to the YAML configuration file",
				EnvVars: []string{"CONFIG_PATH"},
			},
		},
		Commands: []*cli.Command{
			exportCommand(),
			syncCommand(),
			citiesCommand(),
		},
	}

	if err := app.Run(os.Args); err != nil {
		slog.Error("sheetsync failed", "error", err)
		os.Exit(1)
	}
}

// setup loads the config and initializes the shared logger.
func setup(c *cli.Context) (*coreconfig.Config, error) {
	cfg, err := coreconfig.Load(c.String("config"))
	if err != nil {
		return nil, err
	}
	if err := logger.InitLogger(cfg); err != nil {
		return nil, fmt.Errorf("logger init: %w", err)
	}
	return cfg, nil
}

func buildExporter(cfg *coreconfig.Config) (*export.Exporter, *sheet.Client) {
	client := sheet.New(cfg.Sheet.ID, cfg.Sheet.CredentialsFile)
	if cfg.Sheet.CredentialsJSON != "" {
		client.UseCredentialsJSON(cfg.Sheet.CredentialsJSON)
	}
	memo := cache.New(cfg.Cache.Dir, cfg.Cache.Version)
	geocoder := geo.New(geo.Options{
		Endpoint:    cfg.Geocode.Endpoint,
		UserAgent:   cfg.Geocode.UserAgent,
		MinInterval: time.Duration(cfg.Geocode.MinIntervalMS) * time.Millisecond,
		Cache:       memo,
	})
	cities, err := geo.LoadCities(cfg.Geocode.CitiesFile)
	if err != nil {
		slog.Warn("cities file unreadable, map export will lack city names",
			"file", cfg.Geocode.CitiesFile, "error", err)
	}
	return export.New(client, geocoder, cities,
		cfg.Sheet.EventsTab, cfg.Sheet.ContactsTab,
		cfg.Sync.ExportDir, cfg.Sync.WWWDir), client
}

func exportCommand() *cli.Command {
	return &cli.Command{
		Name:  "export",
		Usage: "Regenerate the JSON snapshots without touching git.",
		Action: func(c *cli.Context) error {
			cfg, err := setup(c)
			if err != nil {
				return err
			}
			defer func() { _ = logger.Shutdown() }()

			exporter, _ := buildExporter(cfg)
			return exporter.Run(c.Context)
		},
	}
}

func syncCommand() *cli.Command {
	return &cli.Command{
		Name:  "sync",
		Usage: "Export and commit+push the snapshots to the website repo.",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "message",
				Value: "manual sheet sync",
				Usage: "git commit message",
			},
		},
		Action: func(c *cli.Context) error {
			cfg, err := setup(c)
			if err != nil {
				return err
			}
			defer func() { _ = logger.Shutdown() }()

			exporter, client := buildExporter(cfg)
			events := service.NewEvents(client, cfg.Sheet.EventsTab, cfg.Sheet.LogTab)
			syncer := gitsync.New(exporter, events, cfg.Sync.RepoDir, cfg.Sync.RepoPaths, true)
			return syncer.Run(c.Context, c.String("message"))
		},
	}
}

// citiesCommand refreshes the coordinates in the cities reference file.
// Entries without coordinates are geocoded; existing coordinates are kept.
func citiesCommand() *cli.Command {
	return &cli.Command{
		Name:  "cities",
		Usage: "Fill in missing coordinates in the cities reference file.",
		Action: func(c *cli.Context) error {
			cfg, err := setup(c)
			if err != nil {
				return err
			}
			defer func() { _ = logger.Shutdown() }()

			cities, err := geo.LoadCities(cfg.Geocode.CitiesFile)
			if err != nil {
				return err
			}
			if len(cities) == 0 {
				return fmt.Errorf("no cities in %s", cfg.Geocode.CitiesFile)
			}

			memo := cache.New(cfg.Cache.Dir, cfg.Cache.Version)
			geocoder := geo.New(geo.Options{
				Endpoint:    cfg.Geocode.Endpoint,
				UserAgent:   cfg.Geocode.UserAgent,
				MinInterval: time.Duration(cfg.Geocode.MinIntervalMS) * time.Millisecond,
				Cache:       memo,
			})

			updated := 0
			for i := range cities {
				if cities[i].Coords[0] != 0 || cities[i].Coords[1] != 0 {
					continue
				}
				loc, err := geocoder.GeocodeCity(c.Context, cities[i].Name)
				if err != nil {
					return fmt.Errorf("geocode %s: %w", cities[i].Name, err)
				}
				if loc == nil {
					slog.Warn("city not found", "city", cities[i].Name)
					continue
				}
				cities[i].Coords = [2]float64{loc.Lat, loc.Lon}
				if cities[i].State == "" {
					cities[i].State = loc.State
				}
				updated++
			}

			if err := atomicio.WriteJSON(cfg.Geocode.CitiesFile, cities); err != nil {
				return err
			}
			slog.Info("cities file updated",
				"file", cfg.Geocode.CitiesFile, "updated", updated, "total", len(cities))
			return nil
		},
	}
}
