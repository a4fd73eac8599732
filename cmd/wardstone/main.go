package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/wardstone/server/internal/config"
	"github.com/wardstone/server/internal/data"
	"github.com/wardstone/server/internal/directory"
	"github.com/wardstone/server/internal/event"
	"github.com/wardstone/server/internal/gateway"
	"github.com/wardstone/server/internal/geo"
	"github.com/wardstone/server/internal/handler"
	"github.com/wardstone/server/internal/journal"
	"github.com/wardstone/server/internal/observability"
	"github.com/wardstone/server/internal/persist"
	"github.com/wardstone/server/internal/system"
	"github.com/wardstone/server/internal/world"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
		os.Exit(1)
	}
}

// ── Startup display helpers ────────────────────────────────────────

func printBanner(serverName string, serverID int) {
	fmt.Println()
	fmt.Println("\033[36;1m  ┌───────────────────────────────────────────┐\033[0m")
	fmt.Println("\033[36;1m  │\033[0m            Wardstone  v0.1.0              \033[36;1m│\033[0m")
	fmt.Println("\033[36;1m  │\033[0m     territory engine for the real map     \033[36;1m│\033[0m")
	fmt.Println("\033[36;1m  └───────────────────────────────────────────┘\033[0m")
	fmt.Println()
	fmt.Printf("  \033[1mserver:\033[0m %s \033[90m(id: %d)\033[0m\n\n", serverName, serverID)
}

func printSection(title string) {
	lineLen := 46 - len(title) - 1
	if lineLen < 3 {
		lineLen = 3
	}
	fmt.Printf("  \033[33m── %s %s\033[0m\n", title, strings.Repeat("─", lineLen))
}

func printStat(label string, count int) {
	numStr := fmt.Sprintf("%d", count)
	dotsLen := 42 - len(label) - len(numStr)
	if dotsLen < 3 {
		dotsLen = 3
	}
	fmt.Printf("  %s \033[90m%s\033[0m \033[32m%s\033[0m\n", label, strings.Repeat("·", dotsLen), numStr)
}

func printOK(msg string) {
	fmt.Printf("  \033[32m✓\033[0m %s\n", msg)
}

func printReady(msg string) {
	fmt.Printf("  \033[32m▶\033[0m %s\n", msg)
}

// ── Main server logic ─────────────────────────────────────────────

func run() error {
	// 1. Load config
	cfgPath := "config/server.toml"
	if p := os.Getenv("WARDSTONE_CONFIG"); p != "" {
		cfgPath = p
	}
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	// 2. Init logger
	log, err := newLogger(cfg.Logging)
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	defer log.Sync()

	printBanner(cfg.Server.Name, cfg.Server.ID)

	// 3. Connect to PostgreSQL and run migrations
	printSection("database")

	bootCtx, bootCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer bootCancel()

	db, err := persist.NewDB(bootCtx, cfg.Database, log)
	if err != nil {
		return fmt.Errorf("database: %w", err)
	}
	defer db.Close()
	printOK("PostgreSQL connected")

	if err := persist.RunMigrations(bootCtx, db.Pool); err != nil {
		return fmt.Errorf("migrations: %w", err)
	}
	printOK("migrations up to date")
	fmt.Println()

	// 4. Repositories and the player directory
	flagRepo := persist.NewFlagRepo(db)
	playerRepo := persist.NewPlayerRepo(db)
	players := directory.NewDirectory(playerRepo, cfg.Server.AutoCreatePlayers, log)

	// 5. Load world state: durable flags, seed flags, areas
	printSection("world data")

	ledger := world.NewLedger(players)
	rows, err := flagRepo.LoadAll(bootCtx)
	if err != nil {
		return fmt.Errorf("load flags: %w", err)
	}
	for i := range rows {
		if err := ledger.AddFlag(system.FlagFromRow(&rows[i])); err != nil {
			return fmt.Errorf("restore flag %d: %w", rows[i].ID, err)
		}
	}
	printStat("flags restored", len(rows))

	flagSeeds, err := data.LoadFlagSeeds("data/yaml/system_flag_list.yaml")
	if err != nil {
		return fmt.Errorf("load system flags: %w", err)
	}
	planted, err := plantSeedFlags(bootCtx, ledger, flagRepo, flagSeeds)
	if err != nil {
		return fmt.Errorf("plant system flags: %w", err)
	}
	printStat("system flags", flagSeeds.Count())
	if planted > 0 {
		printStat("system flags planted", planted)
	}
	if err := ledger.SetStart(flagSeeds.Start().ID); err != nil {
		return fmt.Errorf("set start flag: %w", err)
	}

	areaSeeds, err := data.LoadAreaSeeds("data/yaml/area_list.yaml")
	if err != nil {
		return fmt.Errorf("load areas: %w", err)
	}
	areas := world.NewAreaRegistry()
	for _, seed := range areaSeeds.All() {
		err := areas.Register(&world.Area{
			ID:   seed.ID,
			Name: seed.Name,
			Bounds: geo.BoundingBox{
				MinLat: seed.MinLat, MaxLat: seed.MaxLat,
				MinLng: seed.MinLng, MaxLng: seed.MaxLng,
			},
			Properties: seed.Properties,
		})
		if err != nil {
			return fmt.Errorf("register area %q: %w", seed.Name, err)
		}
	}
	printStat("areas", areas.Count())
	fmt.Println()

	// 6. Engine wiring: movement, bus, metrics, journal
	movement := world.NewMovementValidator(players, ledger)
	bus := event.NewBus()

	var metrics *observability.EngineCollector
	if cfg.Metrics.Enabled {
		metrics, err = observability.NewEngineCollector(nil)
		if err != nil {
			return fmt.Errorf("metrics: %w", err)
		}
	}
	_, active := ledger.Counts()
	metrics.SetFlagsActive(active)

	var events *journal.Writer
	if cfg.Journal.Enabled {
		events = journal.NewWriter(cfg.Journal.Dir)
		journal.Attach(bus, events, log)
		defer events.Close()
	}

	// 7. Frame handlers and the gateway
	reg := gateway.NewRegistry(log)
	handler.RegisterAll(reg, &handler.Deps{
		Config:   cfg,
		Log:      log,
		Ledger:   ledger,
		Areas:    areas,
		Movement: movement,
		Wallet:   players,
		Bus:      bus,
		Metrics:  metrics,
	})

	gw := gateway.NewServer(cfg.Gateway, reg, players, movement, metrics, log)
	gateway.AttachBroadcast(bus, gw.Hub(), movement, metrics)

	httpSrv := &http.Server{
		Addr:              cfg.Gateway.BindAddress,
		Handler:           gw.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	// 8. Background systems
	bgCtx, bgCancel := context.WithCancel(context.Background())
	defer bgCancel()
	var wg sync.WaitGroup

	sweep := system.NewSweepSystem(ledger, bus, metrics, log, cfg.World.SweepInterval)
	flush := system.NewFlushSystem(ledger, flagRepo, players, log, cfg.World.FlushInterval)
	wg.Add(2)
	go func() { defer wg.Done(); sweep.Run(bgCtx) }()
	go func() { defer wg.Done(); flush.Run(bgCtx) }()

	printSection("server ready")
	printReady(fmt.Sprintf("gateway listening on %s", cfg.Gateway.BindAddress))
	printReady(fmt.Sprintf("sweep every %s, flush every %s", cfg.World.SweepInterval, cfg.World.FlushInterval))
	fmt.Println()

	// 9. Wait for shutdown
	shutdownCh := make(chan os.Signal, 1)
	signal.Notify(shutdownCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		return fmt.Errorf("gateway: %w", err)
	case sig := <-shutdownCh:
		log.Info("shutdown signal", zap.String("signal", sig.String()))
	}

	stopCtx, stopCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer stopCancel()
	if err := httpSrv.Shutdown(stopCtx); err != nil {
		log.Warn("gateway shutdown", zap.Error(err))
	}

	// Cancelling the background context triggers the final flush; wait
	// for it so no dirty flag or position is lost.
	bgCancel()
	wg.Wait()

	log.Info("server stopped")
	return nil
}

// plantSeedFlags installs seed flags that are not already in the ledger
// (restored from the database) and makes them durable. Returns how many
// were newly planted.
func plantSeedFlags(ctx context.Context, ledger *world.Ledger, repo *persist.FlagRepo, seeds *data.FlagTable) (int, error) {
	planted := 0
	for _, seed := range seeds.All() {
		if _, exists := ledger.GetFlag(seed.ID); exists {
			continue
		}
		kind, err := world.ParseFlagKind(seed.Kind)
		if err != nil {
			return planted, fmt.Errorf("seed flag %d: %w", seed.ID, err)
		}
		radius := seed.Radius
		if radius <= 0 {
			radius = world.FlagRadius
		}
		boundary := seed.VisualBoundary
		if boundary <= 0 {
			boundary = world.VisualBoundary
		}
		now := time.Now()
		f := &world.Flag{
			ID:             seed.ID,
			OwnerID:        world.SystemOwnerID,
			OwnerName:      "System",
			Name:           seed.Name,
			Position:       geo.Coordinate{Lat: seed.Lat, Lng: seed.Lng},
			Radius:         radius,
			VisualBoundary: boundary,
			Kind:           kind,
			Public:         seed.Public,
			Toll:           seed.Toll,
			Health:         world.DefaultHealth,
			CreatedAt:      now,
			UpdatedAt:      now,
			LastVisited:    now,
		}
		if err := ledger.AddFlag(f); err != nil {
			return planted, err
		}
		row := system.FlagToRow(f)
		if err := repo.Upsert(ctx, &row); err != nil {
			return planted, fmt.Errorf("persist seed flag %d: %w", f.ID, err)
		}
		planted++
	}
	return planted, nil
}

func newLogger(cfg config.LoggingConfig) (*zap.Logger, error) {
	var level zapcore.Level
	if err := level.UnmarshalText([]byte(cfg.Level)); err != nil {
		level = zapcore.InfoLevel
	}

	var zapCfg zap.Config
	if cfg.Format == "json" {
		zapCfg = zap.NewProductionConfig()
	} else {
		zapCfg = zap.NewDevelopmentConfig()
		zapCfg.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
		zapCfg.EncoderConfig.EncodeTime = zapcore.TimeEncoderOfLayout("15:04:05")
		zapCfg.EncoderConfig.ConsoleSeparator = "  "
		zapCfg.DisableCaller = true
		zapCfg.DisableStacktrace = true
	}
	zapCfg.Level = zap.NewAtomicLevelAt(level)

	return zapCfg.Build()
}
