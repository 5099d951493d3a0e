package main

import (
	"context"
	"crypto/ecdsa"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"monoswap/internal/chain"
	"monoswap/internal/config"
	"monoswap/internal/guard"
	"monoswap/internal/ledger"
	"monoswap/internal/metrics"
	"monoswap/internal/model"
	"monoswap/internal/notify"
	"monoswap/internal/orchestrator"
	"monoswap/internal/pricing"
	"monoswap/internal/storage"
	"monoswap/internal/storage/postgres"
	"monoswap/internal/storage/redis"
	"monoswap/internal/swaperr"
	"monoswap/internal/tokens"
	"monoswap/internal/wallet"
)

// need selects how much of the stack a command builds.
type need int

const (
	needMarket need = iota
	needLedger
	needChain
)

type app struct {
	cfg     config.Config
	logger  *zap.Logger
	metrics *metrics.Metrics
	prices  *pricing.Cache
	ledger  *ledger.Ledger
	events  eventHistory
	client  *chain.Client
	wallet  *wallet.KeyProvider
	guard   *guard.Guard
	tokens  *tokens.Registry
	orch    *orchestrator.Orchestrator

	closers []func()
}

func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

func setup(ctx context.Context, cmd *cobra.Command, level need) (*app, error) {
	cfgFile, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(cfgFile, cmd.Flags())
	if err != nil {
		return nil, err
	}

	logger, err := newLogger(cfg.LogLevel)
	if err != nil {
		return nil, err
	}

	a := &app{cfg: cfg, logger: logger}
	ok := false
	defer func() {
		if !ok {
			a.Close()
		}
	}()

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	a.metrics = metrics.NewMetrics(registry)
	if cfg.MetricsAddr != "" {
		a.closers = append(a.closers, serveMetrics(cfg.MetricsAddr, registry, logger))
	}

	source := pricing.NewCryptoCompare(cfg.PriceBaseURL, cfg.PriceAPIKey, cfg.PriceTimeout, nil)
	a.prices = pricing.NewCache(source, cfg.Pricing,
		pricing.WithLogger(logger.Named("pricing")),
		pricing.WithMetrics(a.metrics),
	)
	if level == needMarket {
		ok = true
		return a, nil
	}

	if err := a.openLedger(ctx); err != nil {
		return nil, err
	}
	if level == needLedger {
		ok = true
		return a, nil
	}

	if err := a.openChain(ctx); err != nil {
		return nil, err
	}
	ok = true
	return a, nil
}

func (a *app) openLedger(ctx context.Context) error {
	cfg := a.cfg
	var (
		store storage.KeyedStore
		sinks []ledger.Sink
	)

	switch cfg.Store {
	case "", "file":
		store = storage.NewFileStore(cfg.DataDir)
	case "postgres":
		if cfg.PGDSN == "" {
			return fmt.Errorf("pg-dsn is required for the postgres store")
		}
		pg, err := postgres.NewStore(ctx, cfg.PGDSN)
		if err != nil {
			return err
		}
		a.closers = append(a.closers, pg.Close)
		if err := pg.EnsureSchema(ctx); err != nil {
			return err
		}
		store = pg
		sinks = append(sinks, pg)
		a.events = pg
	case "redis":
		rs := redis.NewStore(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
		a.closers = append(a.closers, func() { _ = rs.Close() })
		if err := rs.Ping(ctx); err != nil {
			return fmt.Errorf("redis ping: %w", err)
		}
		store = rs
		sinks = append(sinks, rs)
	default:
		return fmt.Errorf("unknown store %q (want file, postgres or redis)", cfg.Store)
	}

	if cfg.Journal != "" {
		journal := storage.NewJsonlJournal(cfg.Journal)
		sinks = append(sinks, journal)
		if a.events == nil {
			a.events = journal
		}
	}
	if cfg.NATSURL != "" {
		pub, err := notify.Connect(cfg.NATSURL, cfg.NATSSubject, a.logger.Named("notify"), a.metrics)
		if err != nil {
			return err
		}
		a.closers = append(a.closers, func() {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := pub.Close(ctx); err != nil {
				a.logger.Warn("close nats publisher", zap.Error(err))
			}
		})
		sinks = append(sinks, pub)
	}

	opts := []ledger.Option{ledger.WithLogger(a.logger.Named("ledger")), ledger.WithMetrics(a.metrics)}
	for _, s := range sinks {
		opts = append(opts, ledger.WithSink(s))
	}
	l, err := ledger.Open(ctx, store, opts...)
	if err != nil {
		return err
	}
	a.ledger = l
	return nil
}

func (a *app) openChain(ctx context.Context) error {
	cfg := a.cfg
	if cfg.RPCURL == "" {
		return fmt.Errorf("rpc url is required")
	}
	router, factory, err := cfg.Deployment()
	if err != nil {
		return err
	}
	wrapped, err := cfg.WrappedToken()
	if err != nil {
		return err
	}
	list, err := cfg.TokenList()
	if err != nil {
		return err
	}

	client, err := chain.NewClient(ctx, cfg.RPCURL)
	if err != nil {
		return fmt.Errorf("connect rpc: %w", err)
	}
	a.client = client
	a.closers = append(a.closers, client.Close)

	key, err := loadKey(cfg)
	if err != nil {
		return err
	}
	opts := []wallet.Option{wallet.WithLogger(a.logger.Named("wallet")), wallet.WithNetworks(cfg.Networks...)}
	if cfg.Confirm {
		opts = append(opts, wallet.WithPrompt(terminalPrompt))
	}
	provider, err := wallet.NewKeyProvider(key, cfg.Network, opts...)
	if err != nil {
		return err
	}
	a.wallet = provider

	a.guard = guard.New(provider, cfg.Network, a.logger.Named("guard"), guard.WithMetrics(a.metrics))
	a.guard.Start()
	a.closers = append(a.closers, a.guard.Close)

	a.tokens, err = tokens.NewRegistry(list, wrapped, client, a.logger.Named("tokens"))
	if err != nil {
		return err
	}

	orch, err := orchestrator.New(orchestrator.Config{
		Router:        router,
		Factory:       factory,
		Deadline:      cfg.Deadline,
		QuoteCurrency: cfg.Pricing.DefaultQuote,
	}, client, provider, a.guard, a.tokens, a.ledger,
		orchestrator.WithPrices(a.prices),
		orchestrator.WithLogger(a.logger.Named("orchestrator")),
		orchestrator.WithMetrics(a.metrics),
	)
	if err != nil {
		return err
	}
	orch.Start()
	a.orch = orch
	a.closers = append(a.closers, orch.Close)

	a.logger.Debug("swapper ready",
		zap.String("rpc", cfg.RPCURL),
		zap.Uint64("chain_id", cfg.Network.ChainID),
		zap.String("account", provider.Address().Hex()),
		zap.String("router", router.Hex()),
		zap.String("factory", factory.Hex()),
	)
	return nil
}

func loadKey(cfg config.Config) (*ecdsa.PrivateKey, error) {
	switch {
	case cfg.PrivateKey != "":
		return wallet.KeyFromHex(cfg.PrivateKey)
	case cfg.Keystore != "":
		keyJSON, err := os.ReadFile(cfg.Keystore)
		if err != nil {
			return nil, fmt.Errorf("read keystore: %w", err)
		}
		password := cfg.KeystorePassword
		if password == "" {
			if password, err = readPassword("keystore password: "); err != nil {
				return nil, err
			}
		}
		return wallet.KeyFromKeystore(keyJSON, password)
	}
	return nil, fmt.Errorf("a private key or keystore is required")
}

// Close releases resources in reverse order of acquisition.
func (a *app) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
	_ = a.logger.Sync()
}

// fail logs err and turns classified failures into their user message.
func (a *app) fail(err error) error {
	kind := swaperr.KindOf(err)
	a.logger.Error("operation failed", zap.String("kind", kind.String()), zap.Error(err))
	if kind == swaperr.UnknownFailure {
		return err
	}
	return fmt.Errorf("%s (%s)", swaperr.Message(err), kind)
}

func (a *app) lookup(ctx context.Context, selections ...string) ([]model.Token, error) {
	out := make([]model.Token, 0, len(selections))
	for _, s := range selections {
		t, err := a.tokens.Lookup(ctx, s)
		if err != nil {
			return nil, a.fail(err)
		}
		out = append(out, t)
	}
	return out, nil
}

func serveMetrics(addr string, registry *prometheus.Registry, logger *zap.Logger) func() {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		logger.Info("serving metrics", zap.String("addr", addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Warn("metrics server stopped", zap.Error(err))
		}
	}()

	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctx)
	}
}
