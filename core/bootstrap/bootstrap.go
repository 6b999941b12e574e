package bootstrap

import (
	"context"
	"fmt"

	coreconfig "github.com/mbarkhau/stammtischbot/core/config"
	"github.com/mbarkhau/stammtischbot/core/logger"
)

// Options control the generic bootstrap pipeline shared between bots.
type Options struct {
	Config *coreconfig.Config

	LoggerInit  func(*coreconfig.Config) error
	OpenStorage func(ctx context.Context, cfg *coreconfig.Config) (Storage, error)

	Modules Modules
}

// Result exposes infrastructure initialized by the bootstrap pipeline.
type Result struct {
	Storage  Storage
	Services interface{}
}

// Run initializes the logger, opens the backing storage, runs seeders,
// and wires application services.
func Run(ctx context.Context, opts Options) (*Result, error) {
	if opts.Config == nil {
		return nil, fmt.Errorf("bootstrap: nil config provided")
	}
	if ctx == nil {
		ctx = context.Background()
	}

	loggerInit := opts.LoggerInit
	if loggerInit == nil {
		loggerInit = logger.InitLogger
	}
	if err := loggerInit(opts.Config); err != nil {
		return nil, fmt.Errorf("bootstrap: logger init failed: %w", err)
	}

	res := &Result{}

	if opts.OpenStorage != nil {
		storage, err := opts.OpenStorage(ctx, opts.Config)
		if err != nil {
			return nil, fmt.Errorf("bootstrap: storage initialization failed: %w", err)
		}
		res.Storage = storage
	}

	for _, seeder := range opts.Modules.Seeders {
		if seeder == nil {
			continue
		}
		if err := seeder.Seed(ctx, res.Storage); err != nil {
			return nil, fmt.Errorf("bootstrap: seeding failed: %w", err)
		}
	}

	if opts.Modules.Services != nil {
		services, err := opts.Modules.Services.Provide(ctx, opts.Config, res.Storage)
		if err != nil {
			return nil, fmt.Errorf("bootstrap: service wiring failed: %w", err)
		}
		res.Services = services
	}

	return res, nil
}
