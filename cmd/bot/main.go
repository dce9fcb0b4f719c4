package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
	lumberjack "gopkg.in/natefinch/lumberjack.v2"

	"github.com/nileshsurve/dalal_condor/internal/broker"
	"github.com/nileshsurve/dalal_condor/internal/chain"
	"github.com/nileshsurve/dalal_condor/internal/config"
	"github.com/nileshsurve/dalal_condor/internal/dashboard"
	"github.com/nileshsurve/dalal_condor/internal/ledger"
	"github.com/nileshsurve/dalal_condor/internal/mock"
	"github.com/nileshsurve/dalal_condor/internal/orders"
	"github.com/nileshsurve/dalal_condor/internal/storage"
	"github.com/nileshsurve/dalal_condor/internal/strategy"
)

func main() {
	var configPath string
	flag.StringVar(&configPath, "config", "config.yaml", "Path to configuration file")
	flag.Parse()

	if err := run(configPath); err != nil {
		log.Printf("condor: %v", err)
		os.Exit(1)
	}
}

// run owns the bot lifecycle so deferred cleanup fires before the process
// exits; main only maps its error to the exit code.
func run(configPath string) error {
	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	rotator := &lumberjack.Logger{
		Filename:   cfg.Logging.File,
		MaxSize:    cfg.Logging.MaxSizeMB,
		MaxBackups: cfg.Logging.MaxBackups,
		MaxAge:     cfg.Logging.MaxAgeDays,
		Compress:   true,
	}
	logger := log.New(io.MultiWriter(os.Stdout, rotator), "[CONDOR] ", log.LstdFlags|log.Lshortfile)

	logger.Printf("starting in %s mode", cfg.Environment.Mode)
	if cfg.Environment.Mode == "live" {
		logger.Println("LIVE TRADING - real money at risk, waiting 10 seconds to confirm")
		time.Sleep(10 * time.Second)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	bot, err := newBot(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("startup failed: %w", err)
	}

	if err := bot.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logger.Printf("bot stopped with error: %v", err)
		return err
	}
	logger.Println("bot stopped")
	return nil
}

// Bot wires the gateway, ledger, strategy engine, watchdog, and console.
type Bot struct {
	cfg      *config.Config
	handle   *broker.Handle
	chains   *chain.Cache
	engine   *strategy.Engine
	book     *ledger.Ledger
	stops    *orders.Manager
	store    *storage.Store
	watchdog *Watchdog
	console  *dashboard.Server
	logger   *log.Logger

	mu      sync.Mutex
	running bool
	now     func() time.Time
}

func newBot(ctx context.Context, cfg *config.Config, logger *log.Logger) (*Bot, error) {
	gateway, factory, err := buildGateway(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}

	handle := broker.NewHandle(broker.NewCircuitBreakerBroker(gateway))
	chains := chain.NewCache(handle, logger)
	book := ledger.New(handle, logger)
	engine := strategy.New(cfg, handle, chains, book, logger)
	stops := orders.NewManager(handle, book, cfg.Strategy.StopLossPercentage, logger)

	store, err := storage.NewStore(stateFilePath(cfg))
	if err != nil {
		return nil, err
	}
	// Restore the order trail so stop/martingale flags survive restarts.
	for _, o := range store.Orders() {
		book.RecordOrder(o)
	}

	bot := &Bot{
		cfg:      cfg,
		handle:   handle,
		chains:   chains,
		engine:   engine,
		book:     book,
		stops:    stops,
		store:    store,
		watchdog: NewWatchdog(cfg, handle, factory, logger),
		logger:   logger,
		running:  true,
		now:      time.Now,
	}

	if cfg.Dashboard.Enabled {
		consoleLogger := logrus.New()
		consoleLogger.SetOutput(logger.Writer())
		bot.console = dashboard.NewServer(dashboard.Config{
			ListenAddr: cfg.Dashboard.ListenAddr,
			AuthToken:  cfg.Dashboard.AuthToken,
		}, engine, book, bot, consoleLogger)
	}
	return bot, nil
}

// buildGateway returns the initial gateway and a factory for reconnects.
func buildGateway(ctx context.Context, cfg *config.Config, logger *log.Logger) (broker.Broker, GatewayFactory, error) {
	if cfg.Environment.Mode == "paper" {
		paper := mock.NewPaperGateway(logger)
		factory := func(ctx context.Context) (broker.Broker, error) {
			return paper, paper.Authenticate(ctx)
		}
		gw, err := factory(ctx)
		return gw, factory, err
	}

	factory := func(ctx context.Context) (broker.Broker, error) {
		api := broker.NewMStockAPI(cfg.Broker.APIURL, cfg.Broker.Version, broker.Credentials{
			APIKey:       cfg.Broker.APIKey,
			Username:     cfg.Broker.Username,
			Password:     cfg.Broker.Password,
			RequestToken: cfg.Broker.RequestToken,
		}, logger)
		if err := api.Authenticate(ctx); err != nil {
			return nil, fmt.Errorf("authenticating with gateway: %w", err)
		}
		return api, nil
	}
	gw, err := factory(ctx)
	return gw, factory, err
}

func stateFilePath(cfg *config.Config) string {
	if cfg.Environment.Mode == "paper" {
		return "paper_state.json"
	}
	return "live_state.json"
}

// Run drives the trading loop, watchdog, and console until ctx is done or
// the watchdog gives up.
func (b *Bot) Run(ctx context.Context) error {
	funds, err := b.handle.Get().FundsSummary(ctx)
	if err != nil {
		return fmt.Errorf("initial gateway check failed: %w", err)
	}
	b.logger.Printf("connected, available funds %.2f", funds.AvailableFunds)

	if err := b.book.SyncPositions(ctx); err != nil {
		b.logger.Printf("initial position sync failed: %v", err)
	}

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error { return b.runLoop(ctx) })
	g.Go(func() error { return b.watchdog.Run(ctx) })

	if b.console != nil {
		g.Go(func() error {
			if err := b.console.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("console server: %w", err)
			}
			return nil
		})
		g.Go(func() error {
			<-ctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			return b.console.Shutdown(shutdownCtx)
		})
	}

	return g.Wait()
}

// runLoop runs trading cycles on the configured cadence. The console can
// pause the loop; paused ticks are skipped, not queued.
func (b *Bot) runLoop(ctx context.Context) error {
	ticker := time.NewTicker(b.cfg.CheckInterval())
	defer ticker.Stop()

	b.runCycle(ctx)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if b.Running() {
				b.runCycle(ctx)
			}
		}
	}
}

// Pause implements dashboard.Controller.
func (b *Bot) Pause() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.running {
		b.running = false
		b.logger.Println("trading loop paused")
	}
}

// Resume implements dashboard.Controller.
func (b *Bot) Resume() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if !b.running {
		b.running = true
		b.logger.Println("trading loop resumed")
	}
}

// Running implements dashboard.Controller.
func (b *Bot) Running() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.running
}

// Reconnect implements dashboard.Controller.
func (b *Bot) Reconnect(ctx context.Context) error {
	return b.watchdog.Reconnect(ctx)
}

// Connectivity implements dashboard.Controller.
func (b *Bot) Connectivity() dashboard.Connectivity {
	st := b.watchdog.Status()
	return dashboard.Connectivity{
		Connected:         st.Connected,
		LastProbeAt:       st.LastProbeAt,
		LastProbeError:    st.LastProbeError,
		LastReconnectAt:   st.LastReconnectAt,
		ReconnectAttempts: st.ReconnectAttempts,
	}
}
