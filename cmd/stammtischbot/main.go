// Command stammtischbot runs the Telegram bot that manages event entries
// in the backing Google spreadsheet.
package main

import (
	"context"
	"fmt"
	"log"
	"path/filepath"
	"time"

	"github.com/joho/godotenv"

	"github.com/mbarkhau/stammtischbot/core/bootstrap"
	"github.com/mbarkhau/stammtischbot/core/cache"
	corecmd "github.com/mbarkhau/stammtischbot/core/cmd"
	coreconfig "github.com/mbarkhau/stammtischbot/core/config"
	"github.com/mbarkhau/stammtischbot/internal/announce"
	"github.com/mbarkhau/stammtischbot/internal/bot"
	"github.com/mbarkhau/stammtischbot/internal/chatreg"
	"github.com/mbarkhau/stammtischbot/internal/export"
	"github.com/mbarkhau/stammtischbot/internal/geo"
	"github.com/mbarkhau/stammtischbot/internal/gitsync"
	"github.com/mbarkhau/stammtischbot/internal/service"
	"github.com/mbarkhau/stammtischbot/internal/sheet"
)

type appConfig struct {
	cfg *coreconfig.Config
}

func (a *appConfig) CoreConfig() *coreconfig.Config { return a.cfg }

func main() {
	_ = godotenv.Load()

	err := corecmd.Run(corecmd.Options{
		ConfigEnvVar:      "CONFIG_PATH",
		DefaultConfigPath: "config.yaml",
		LoadConfig: func(path string) (corecmd.ConfigCarrier, error) {
			cfg, err := coreconfig.Load(path)
			if err != nil {
				return nil, err
			}
			return &appConfig{cfg: cfg}, nil
		},
		Bootstrap: buildApp,
	})
	if err != nil {
		log.Fatalf("stammtischbot: %v", err)
	}
}

func buildApp(carrier corecmd.ConfigCarrier) (corecmd.TelegramApp, error) {
	cfg := carrier.CoreConfig()

	res, err := bootstrap.Run(context.Background(), bootstrap.Options{
		Config: cfg,
		OpenStorage: func(ctx context.Context, cfg *coreconfig.Config) (bootstrap.Storage, error) {
			client := sheet.New(cfg.Sheet.ID, cfg.Sheet.CredentialsFile)
			if cfg.Sheet.CredentialsJSON != "" {
				client.UseCredentialsJSON(cfg.Sheet.CredentialsJSON)
			}
			return client, nil
		},
		Modules: bootstrap.Modules{
			Services: bootstrap.TypedServiceProviderFunc[*bot.App](provideApp),
		},
	})
	if err != nil {
		return nil, err
	}

	app, ok := res.Services.(*bot.App)
	if !ok {
		return nil, fmt.Errorf("stammtischbot: unexpected services type %T", res.Services)
	}
	return app, nil
}

func provideApp(ctx context.Context, rawCfg interface{}, storage bootstrap.Storage) (*bot.App, error) {
	cfg, ok := rawCfg.(*coreconfig.Config)
	if !ok {
		return nil, fmt.Errorf("stammtischbot: unexpected config type %T", rawCfg)
	}
	client, ok := storage.(*sheet.Client)
	if !ok {
		return nil, fmt.Errorf("stammtischbot: unexpected storage type %T", storage)
	}

	events := service.NewEvents(client, cfg.Sheet.EventsTab, cfg.Sheet.LogTab)
	contacts := service.NewContacts(client, cfg.Sheet.ContactsTab, cfg.Sheet.LogTab)

	memo := cache.New(cfg.Cache.Dir, cfg.Cache.Version)
	geocoder := geo.New(geo.Options{
		Endpoint:    cfg.Geocode.Endpoint,
		UserAgent:   cfg.Geocode.UserAgent,
		MinInterval: time.Duration(cfg.Geocode.MinIntervalMS) * time.Millisecond,
		Cache:       memo,
	})
	cities, err := geo.LoadCities(cfg.Geocode.CitiesFile)
	if err != nil {
		return nil, fmt.Errorf("stammtischbot: load cities: %w", err)
	}

	exporter := export.New(client, geocoder, cities,
		cfg.Sheet.EventsTab, cfg.Sheet.ContactsTab,
		cfg.Sync.ExportDir, cfg.Sync.WWWDir)
	syncer := gitsync.New(exporter, events, cfg.Sync.RepoDir, cfg.Sync.RepoPaths, cfg.Sync.GitPush)

	chats, err := chatreg.Open(filepath.Join(cfg.Sync.ExportDir, "chats.json"))
	if err != nil {
		return nil, fmt.Errorf("stammtischbot: open chat registry: %w", err)
	}

	return bot.New(cfg, bot.Deps{
		Contacts:  contacts,
		Events:    events,
		Announcer: announce.New(cfg.Announce.FallbackChatID, cfg.Announce.Disabled),
		Syncer:    syncer,
		Chats:     chats,
	})
}
