// Package app wires Vigil's configuration, storage, clients, and services
// into a running process.
package app

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/drewfallon/vigil/internal/clients/cex"
	"github.com/drewfallon/vigil/internal/clients/gemini"
	"github.com/drewfallon/vigil/internal/clients/hyperliquid"
	"github.com/drewfallon/vigil/internal/clients/kalshi"
	"github.com/drewfallon/vigil/internal/clients/manifold"
	"github.com/drewfallon/vigil/internal/clients/metaculus"
	"github.com/drewfallon/vigil/internal/clients/polymarket"
	"github.com/drewfallon/vigil/internal/common"
	"github.com/drewfallon/vigil/internal/httpx"
	"github.com/drewfallon/vigil/internal/interfaces"
	"github.com/drewfallon/vigil/internal/models"
	"github.com/drewfallon/vigil/internal/server"
	"github.com/drewfallon/vigil/internal/services/alert"
	"github.com/drewfallon/vigil/internal/services/digest"
	"github.com/drewfallon/vigil/internal/services/marketindex"
	"github.com/drewfallon/vigil/internal/services/notify"
	"github.com/drewfallon/vigil/internal/services/portfolio"
	"github.com/drewfallon/vigil/internal/services/scheduler"
	"github.com/drewfallon/vigil/internal/services/stoploss"
	"github.com/drewfallon/vigil/internal/storage/surrealdb"
)

// App holds the wired application graph.
type App struct {
	Config  *common.Config
	Logger  *common.Logger
	Storage interfaces.StorageManager
	Fabric  *httpx.Fabric

	Adapters  map[models.Venue]interfaces.VenueAdapter
	Execs     map[models.Venue]interfaces.ExecutionAdapter
	Scheduler *scheduler.Scheduler
	Server    *server.Server
}

// New wires the full application from configuration. sender delivers
// notifications; pass nil to log them instead of sending.
func New(ctx context.Context, config *common.Config, sender interfaces.MessageSender) (*App, error) {
	logger := common.NewLoggerFromConfig(config.Logging)
	clock := common.SystemClock{}

	storage, err := surrealdb.NewManager(logger, config)
	if err != nil {
		return nil, fmt.Errorf("connect storage: %w", err)
	}

	fabric := httpx.New(httpx.OptionsFromConfig(config.HTTP),
		httpx.WithClock(clock),
		httpx.WithLogger(logger),
	)

	adapters, execs := buildAdapters(fabric, logger, clock, config.Clients)

	if sender == nil {
		sender = &logSender{logger: logger}
	}
	notifier := notify.New(storage, sender, logger, config.Notify)

	var embedder interfaces.Embedder
	if config.Clients.Gemini.APIKey != "" {
		client, err := gemini.NewClient(ctx, config.Clients.Gemini.APIKey,
			gemini.WithModel(config.Clients.Gemini.Model),
			gemini.WithLogger(logger),
		)
		if err != nil {
			return nil, fmt.Errorf("create embedder: %w", err)
		}
		embedder = client
	} else {
		logger.Warn().Msg("No Gemini API key configured, index search uses lexical scores only")
		embedder = noopEmbedder{}
	}

	alertEngine := alert.New(storage, adapters, notifier, logger, clock, config.Alerts)
	portfolioSync := portfolio.New(storage, adapters, logger, clock, config.Scheduler.GetWorkers())
	stopLoss := stoploss.New(storage, execs, notifier, logger, clock, config.Trading, config.Scheduler.GetWorkers())
	index := marketindex.New(storage, adapters, embedder, logger, clock, config.Index)
	digests := digest.New(storage, notifier, logger, clock)

	sched := scheduler.New(storage, scheduler.Services{
		Alert:     alertEngine,
		Portfolio: portfolioSync,
		StopLoss:  stopLoss,
		Digest:    digests,
		Index:     index,
		Notifier:  notifier,
	}, logger, clock, config.Scheduler, config.Index)

	srv := server.NewServer(config.Server, storage, sched, logger)

	return &App{
		Config:    config,
		Logger:    logger,
		Storage:   storage,
		Fabric:    fabric,
		Adapters:  adapters,
		Execs:     execs,
		Scheduler: sched,
		Server:    srv,
	}, nil
}

// buildAdapters constructs one venue adapter per enabled client config. The
// prediction market adapters double as execution adapters.
func buildAdapters(fabric *httpx.Fabric, logger *common.Logger, clock common.Clock, cfg common.ClientsConfig) (map[models.Venue]interfaces.VenueAdapter, map[models.Venue]interfaces.ExecutionAdapter) {
	adapters := map[models.Venue]interfaces.VenueAdapter{}
	execs := map[models.Venue]interfaces.ExecutionAdapter{}

	if !cfg.Polymarket.Disabled {
		a := polymarket.New(fabric,
			polymarket.WithDataURL(cfg.Polymarket.BaseURL),
			polymarket.WithGammaURL(cfg.Polymarket.DataURL),
			polymarket.WithLogger(logger),
			polymarket.WithClock(clock),
		)
		adapters[models.VenuePolymarket] = a
		execs[models.VenuePolymarket] = a
	}
	if !cfg.Kalshi.Disabled {
		a := kalshi.New(fabric,
			kalshi.WithBaseURL(cfg.Kalshi.BaseURL),
			kalshi.WithLogger(logger),
			kalshi.WithClock(clock),
		)
		adapters[models.VenueKalshi] = a
		execs[models.VenueKalshi] = a
	}
	if !cfg.Manifold.Disabled {
		a := manifold.New(fabric,
			manifold.WithBaseURL(cfg.Manifold.BaseURL),
			manifold.WithLogger(logger),
			manifold.WithClock(clock),
		)
		adapters[models.VenueManifold] = a
		execs[models.VenueManifold] = a
	}
	if !cfg.Metaculus.Disabled {
		adapters[models.VenueMetaculus] = metaculus.New(fabric,
			metaculus.WithBaseURL(cfg.Metaculus.BaseURL),
			metaculus.WithLogger(logger),
			metaculus.WithClock(clock),
		)
	}
	if !cfg.Hyperliquid.Disabled {
		adapters[models.VenueHyperliquid] = hyperliquid.New(fabric,
			hyperliquid.WithBaseURL(cfg.Hyperliquid.BaseURL),
			hyperliquid.WithLogger(logger),
			hyperliquid.WithClock(clock),
		)
	}
	if !cfg.Binance.Disabled {
		adapters[models.VenueBinance] = cex.NewBinance(fabric,
			cex.WithBinanceBaseURL(cfg.Binance.BaseURL),
			cex.WithBinanceLogger(logger),
			cex.WithBinanceClock(clock),
		)
	}
	if !cfg.Bybit.Disabled {
		adapters[models.VenueBybit] = cex.NewBybit(fabric,
			cex.WithBybitBaseURL(cfg.Bybit.BaseURL),
			cex.WithBybitLogger(logger),
			cex.WithBybitClock(clock),
		)
	}
	if !cfg.MEXC.Disabled {
		adapters[models.VenueMEXC] = cex.NewMEXC(fabric,
			cex.WithMEXCBaseURL(cfg.MEXC.BaseURL),
			cex.WithMEXCLogger(logger),
			cex.WithMEXCClock(clock),
		)
	}
	return adapters, execs
}

// Run starts the scheduler and HTTP server and blocks until ctx is done,
// then drains both.
func (a *App) Run(ctx context.Context) error {
	if err := a.Scheduler.Start(); err != nil {
		return fmt.Errorf("start scheduler: %w", err)
	}

	errCh := make(chan error, 1)
	go func() {
		if err := a.Server.Start(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		a.Scheduler.Stop()
		return fmt.Errorf("http server: %w", err)
	case <-ctx.Done():
	}

	a.Logger.Info().Msg("Shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := a.Server.Shutdown(shutdownCtx); err != nil {
		a.Logger.Warn().Err(err).Msg("HTTP shutdown error")
	}
	a.Scheduler.Stop()
	return nil
}

// Close releases storage connections.
func (a *App) Close() error {
	return a.Storage.Close()
}

// logSender logs notifications instead of delivering them. Used when no chat
// transport is attached.
type logSender struct {
	logger *common.Logger
}

func (l *logSender) SendMessage(ctx context.Context, channel models.Channel, chatID, text string) error {
	l.logger.Info().
		Str("channel", string(channel)).
		Str("chat_id", chatID).
		Str("text", text).
		Msg("Notification (no transport attached)")
	return nil
}

// noopEmbedder returns zero vectors, degrading search to lexical-only.
type noopEmbedder struct{}

func (noopEmbedder) EmbedTexts(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i := range out {
		out[i] = []float32{0}
	}
	return out, nil
}
