package app

import (
	"context"
	"fmt"
	"net/http"

	"github.com/joho/godotenv"

	"huddle/internal/maintenance"
	"huddle/pkg/channel"
	"huddle/pkg/config"
	"huddle/pkg/dispatch"
	"huddle/pkg/fanout"
	"huddle/pkg/limit"
	"huddle/pkg/logger"
	"huddle/pkg/models"
	"huddle/pkg/registry"
	"huddle/pkg/store"
	"huddle/pkg/stream"
	"huddle/pkg/validation"
)

// Options carry the resolved startup inputs.
type Options struct {
	Config  *config.Config
	Addr    string
	DBPath  string
	DocsDir string
	Sources string
	Version string

	// Factory supplies the AI generation backend; nil falls back to the
	// built-in echo backend.
	Factory stream.SourceFactory
}

// App encapsulates the server components and lifecycle.
type App struct {
	opts     Options
	channels *channel.Manager
	srv      *http.Server
	cancelMx context.CancelFunc
}

// New initializes everything that does not need a running context:
// logger sinks, validation rules, the store, the channel manager and the
// event pipeline. Call Run to start the HTTP server and block.
func New(opts Options) (*App, error) {
	_ = godotenv.Load(".env")
	cfg := opts.Config
	if cfg == nil {
		cfg = &config.Config{}
		opts.Config = cfg
	}

	if cfg.Audit.Enabled && cfg.Audit.Dir != "" {
		if err := logger.AttachAuditFileSink(cfg.Audit.Dir); err != nil {
			return nil, fmt.Errorf("failed to attach audit sink: %w", err)
		}
	}

	initValidation(cfg)

	if opts.DBPath == "" {
		return nil, fmt.Errorf("db path not set")
	}
	if err := store.Open(opts.DBPath); err != nil {
		return nil, fmt.Errorf("failed to open pebble at %s: %w", opts.DBPath, err)
	}

	a := &App{opts: opts}
	a.channels = channel.NewManager(loadInitState, cfg.Channel.MaxUsers)
	return a, nil
}

// Channels exposes the channel manager for admin tooling.
func (a *App) Channels() *channel.Manager { return a.channels }

// Run starts the maintenance runner and the HTTP server, blocking until
// ctx is canceled or a fatal server error occurs.
func (a *App) Run(ctx context.Context) error {
	cancelMx, err := maintenance.Start(ctx, a.opts.Config)
	if err != nil {
		return err
	}
	a.cancelMx = cancelMx

	a.printBanner()
	errCh := a.startHTTP()

	select {
	case <-ctx.Done():
		a.shutdownHTTP()
		return nil
	case err := <-errCh:
		return err
	}
}

// Close releases resources in reverse start order.
func (a *App) Close() error {
	if a.cancelMx != nil {
		a.cancelMx()
	}
	return store.Close()
}

// loadInitState reads every registered entity type for a channel; this
// becomes the cached snapshot sent to joiners.
func loadInitState(channelName string) (models.InitState, error) {
	out := make(models.InitState, len(registry.All()))
	for _, t := range registry.All() {
		envs, err := store.ReadByChannel(t.Name, channelName)
		if err != nil {
			return nil, fmt.Errorf("failed to load %s for %s: %w", t.Name, channelName, err)
		}
		out[t.Name] = envs
	}
	return out, nil
}

// buildPipeline assembles broadcaster, relay and dispatcher around the
// channel manager.
func (a *App) buildPipeline() (*fanout.Broadcaster, *dispatch.Dispatcher, *limit.Pool) {
	bcast := fanout.New(a.channels)
	factory := a.opts.Factory
	if factory == nil {
		factory = stream.EchoFactory(0)
	}
	relay := stream.NewRelay(bcast, factory)
	disp := dispatch.New(a.channels, bcast, relay)
	limits := limit.NewPool(a.opts.Config.Limits.RPS, a.opts.Config.Limits.Burst)
	return bcast, disp, limits
}

// initValidation applies config tunables to the global payload rules.
func initValidation(cfg *config.Config) {
	r := validation.Rules{EnforceRequired: true}
	if cfg.Validation.EnforceRequired != nil {
		r.EnforceRequired = *cfg.Validation.EnforceRequired
	}
	r.MaxIDLen = cfg.Validation.MaxIDLen
	r.MaxDataFields = cfg.Validation.MaxDataFields
	validation.SetRules(r)
}
