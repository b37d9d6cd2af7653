package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/robfig/cron/v3"

	"nextavail/internal/avail"
	"nextavail/internal/cache"
	"nextavail/internal/config"
	applog "nextavail/internal/log"
	"nextavail/internal/provider"
	"nextavail/internal/web"
)

// flagConfig holds CLI flag values.
type flagConfig struct {
	configPath string
	listen     string
	once       bool
}

func main() {
	applog.Info("nextavail starting", "version", "0.1.0")

	flags := parseFlags()

	conf, err := config.Load(flags.configPath)
	if err != nil {
		applog.Error("failed to load config", err, "config_path", flags.configPath)
		os.Exit(1)
	}

	// CLI --listen overrides config file listen if provided.
	if flags.listen != "" {
		conf.Listen = flags.listen
	}

	loc := resolveLocationOrLocal(conf.Timezone)

	applog.Info("effective config",
		"listen", conf.Listen,
		"timezone", loc.String(),
		"refresh", conf.RefreshCron,
		"free_days", conf.FreeDays,
		"include_weekends", conf.IncludeWeekends,
		"events_per_day", conf.EventsPerDay,
		"max_search_years", conf.MaxSearchYears,
		"once", flags.once,
	)

	// Root context with cancellation on SIGINT/SIGTERM.
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		applog.Info("signal received, shutting down", "signal", sig.String())
		cancel()
	}()

	store := buildStore(conf)
	prov := buildProvider(ctx, conf)
	svc := avail.NewService(conf, prov, store, loc)

	if flags.once {
		// Single-shot: compute, print, exit.
		date, err := svc.Refresh(ctx)
		if err != nil || date == "" {
			applog.Warn("no availability computed", "fallback", conf.DateFallback)
			os.Exit(1)
		}
		applog.Info("next available date", "date", date)
		return
	}

	// Scheduled recompute keeps the cached date warm.
	c := cron.New()
	if _, err := c.AddFunc(conf.RefreshCron, func() {
		recomputeCtx, done := context.WithTimeout(ctx, 2*time.Minute)
		defer done()
		if _, err := svc.Refresh(recomputeCtx); err != nil {
			applog.Error("scheduled recompute failed", err)
		}
	}); err != nil {
		applog.Error("invalid refresh schedule", err, "refresh", conf.RefreshCron)
		os.Exit(1)
	}
	c.Start()
	defer c.Stop()

	errCh := make(chan error, 1)
	go func() {
		errCh <- web.StartServer(conf, svc, prov, loc)
	}()

	select {
	case err := <-errCh:
		applog.Error("HTTP server stopped", err)
		os.Exit(1)
	case <-ctx.Done():
	}

	applog.Info("nextavail exiting")
}

// buildStore picks the SQLite-backed cache when a path is configured, else
// an in-memory one.
func buildStore(conf *config.Config) cache.Store {
	if conf.CachePath == "" {
		return cache.NewMemoryStore()
	}
	store, err := cache.NewSQLiteStore(conf.CachePath)
	if err != nil {
		applog.Error("failed to open cache store, falling back to memory", err, "path", conf.CachePath)
		return cache.NewMemoryStore()
	}
	return store
}

// buildProvider selects the calendar backend: Google when a calendar is
// selected, else the ICS feeds. A nil return means no backend is usable and
// every computation reports the fallback.
func buildProvider(ctx context.Context, conf *config.Config) avail.Provider {
	if conf.CalendarID() != "" {
		g, err := provider.NewGoogle(ctx, conf.Google)
		if err != nil {
			applog.Error("failed to initialize Google Calendar backend", err)
			return nil
		}
		applog.Info("using Google Calendar backend", "calendar_id", conf.CalendarID())
		return g
	}

	if len(conf.ICS) > 0 {
		cacheDir := "./var/ics-cache"
		if conf.CachePath != "" {
			cacheDir = conf.CachePath + ".ics-cache"
		}
		applog.Info("using ICS feed backend", "sources", len(conf.ICS))
		return provider.NewICS(conf.ICS, cacheDir)
	}

	applog.Warn("no calendar backend configured")
	return nil
}

func parseFlags() flagConfig {
	var cfg flagConfig

	flag.StringVar(&cfg.configPath, "config", "/etc/nextavail/config.yaml", "Path to config file")
	flag.StringVar(&cfg.listen, "listen", "", "HTTP listen address (overrides config if set)")
	flag.BoolVar(&cfg.once, "once", false, "Compute the next available date once and exit")

	flag.Parse()

	return cfg
}

func resolveLocationOrLocal(name string) *time.Location {
	if name == "" {
		return time.Local
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		applog.Error("failed to load timezone; falling back to local", err, "name", name)
		return time.Local
	}
	return loc
}
