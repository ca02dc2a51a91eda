package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/web3guy0/dexmatcher/internal/account"
	"github.com/web3guy0/dexmatcher/internal/api"
	"github.com/web3guy0/dexmatcher/internal/balance"
	"github.com/web3guy0/dexmatcher/internal/chainnode"
	"github.com/web3guy0/dexmatcher/internal/config"
	"github.com/web3guy0/dexmatcher/internal/directory"
	"github.com/web3guy0/dexmatcher/internal/eventlog"
	"github.com/web3guy0/dexmatcher/internal/matchengine"
	"github.com/web3guy0/dexmatcher/internal/notify"
	"github.com/web3guy0/dexmatcher/internal/orderdb"
	"github.com/web3guy0/dexmatcher/types"
)

const VERSION = "v1.0"

// balanceWatchInterval is how often the process re-checks spawned accounts'
// real on-chain balances against what they currently have reserved, driving
// forced cancellation when a withdrawal elsewhere outpaces the book.
const balanceWatchInterval = 15 * time.Second

func main() {
	// ═══════════════════════════════════════════════════════════════════════════════
	// BOOTSTRAP
	// ═══════════════════════════════════════════════════════════════════════════════

	if err := godotenv.Load(); err != nil {
		log.Warn().Msg("No .env file found")
	} else {
		log.Info().Msg("✅ .env file loaded successfully")
	}

	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: "15:04:05"})

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}
	if cfg.Debug {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	} else {
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	}
	if cfg.LogFormat == "json" {
		log.Logger = zerolog.New(os.Stderr).With().Timestamp().Logger()
	}

	log.Info().Msg("═══════════════════════════════════════════════════════════════")
	log.Info().Msgf("         DEXMATCHER %s - ACCOUNT ACTOR MATCHER", VERSION)
	log.Info().Msg("═══════════════════════════════════════════════════════════════")

	// ═══════════════════════════════════════════════════════════════════════════════
	// LAYER 1: CHAIN + BALANCE ORACLE
	// ═══════════════════════════════════════════════════════════════════════════════

	chainClient, err := chainnode.Dial(cfg.ChainNodeRPCURL)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to dial chain node")
	}
	oracle := balance.New(chainClient)
	log.Info().Msg("✅ Balance oracle initialized")

	// ═══════════════════════════════════════════════════════════════════════════════
	// LAYER 2: PERSISTENCE
	// ═══════════════════════════════════════════════════════════════════════════════

	db, err := orderdb.New(cfg.OrderDBDSN)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to open order database")
	}

	queueLog, err := eventlog.New(cfg.EventLogDSN)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to open event log")
	}

	// ═══════════════════════════════════════════════════════════════════════════════
	// LAYER 3: NOTIFICATIONS (Telegram)
	// ═══════════════════════════════════════════════════════════════════════════════

	var notifier account.Notifier = account.NoopNotifier{}
	if cfg.TelegramBotToken != "" {
		if tg, err := notify.NewTelegramNotifier(cfg.TelegramBotToken, cfg.TelegramChatID); err != nil {
			log.Warn().Err(err).Msg("Telegram unavailable")
		} else {
			notifier = tg
			log.Info().Msg("✅ Telegram initialized")
		}
	}

	// ═══════════════════════════════════════════════════════════════════════════════
	// LAYER 4: DIRECTORY + MATCHING-ENGINE ECHO
	// ═══════════════════════════════════════════════════════════════════════════════

	actorCfg := account.Config{
		MaxActiveOrders:     cfg.MaxActiveOrders,
		WsMessagesInterval:  cfg.WsMessagesInterval,
		BatchCancelTimeout:  cfg.BatchCancelTimeout,
		ExpirationThreshold: cfg.ExpirationThreshold,
		BalanceAskTimeout:   cfg.BalanceAskTimeout,
	}

	// The matching-engine stub echoes back through the Directory, and the
	// actor factory needs the stub as its Store: each depends on the
	// other's construction. Both stub and dir are only ever dereferenced
	// once an actor is actually spawned, which never happens before both
	// assignments below complete, so capturing them by reference in the
	// factory closure is safe.
	var stub *matchengine.Stub
	factory := func(owner types.Address) *account.Actor {
		return account.New(owner, actorCfg, account.Deps{
			Oracle:    oracle,
			ChainNode: chainClient,
			Store:     stub,
			DB:        db,
			Notifier:  notifier,
		})
	}
	dir := directory.New(factory)
	stub = matchengine.New(queueLog, dir, 150*time.Millisecond)
	log.Info().Msg("✅ Directory initialized")

	dir.StartSchedules()

	// ═══════════════════════════════════════════════════════════════════════════════
	// LAYER 5: BALANCE-WATCH POLLER
	// ═══════════════════════════════════════════════════════════════════════════════

	watchCtx, cancelWatch := context.WithCancel(context.Background())
	go runBalanceWatch(watchCtx, dir, oracle, chainClient)

	// ═══════════════════════════════════════════════════════════════════════════════
	// LAYER 6: HTTP + WEBSOCKET SURFACE
	// ═══════════════════════════════════════════════════════════════════════════════

	server := api.NewServer(dir)
	httpAddr := ":8080"
	if v := os.Getenv("HTTP_ADDR"); v != "" {
		httpAddr = v
	}
	httpSrv := &http.Server{Addr: httpAddr, Handler: server}
	go func() {
		log.Info().Str("addr", httpAddr).Msg("🚀 HTTP server listening")
		if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("http server failed")
		}
	}()

	log.Info().Msg("🚀 Running...")

	// ═══════════════════════════════════════════════════════════════════════════════
	// GRACEFUL SHUTDOWN
	// ═══════════════════════════════════════════════════════════════════════════════

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	log.Warn().Msg("🛑 Shutdown signal received...")

	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancelShutdown()
	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		log.Warn().Err(err).Msg("http server shutdown error")
	}
	cancelWatch()

	log.Info().Msg("👋 Goodbye!")
}

// runBalanceWatch periodically re-fetches from the chain node every spawned
// account's real balance for each asset the oracle has cached for it, pushes
// the fresh figures into the oracle, and fans them out as
// CancelNotEnoughCoinsOrders, which each actor checks against what it has
// reserved. It stands in for the real blockchain-watch stream a production
// deployment would subscribe to instead of polling.
func runBalanceWatch(ctx context.Context, dir *directory.Directory, oracle *balance.Oracle, node chainnode.Client) {
	ticker := time.NewTicker(balanceWatchInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			changes := make(map[types.Address]types.AssetMap)
			for _, addr := range dir.Addresses() {
				cached, err := oracle.GetSnapshot(ctx, addr)
				if err != nil {
					log.Warn().Err(err).Str("owner", addr.Hex()).Msg("balance watch: snapshot failed")
					continue
				}
				assets := make([]types.Asset, 0, len(cached))
				for asset := range cached {
					assets = append(assets, asset)
				}
				fresh, err := node.SpendableBalances(ctx, addr, assets)
				if err != nil {
					log.Warn().Err(err).Str("owner", addr.Hex()).Msg("balance watch: chain node query failed")
					continue
				}
				changes[addr] = fresh.Restrict(assets)
			}
			if len(changes) == 0 {
				continue
			}
			oracle.UpdateStates(changes)
			dir.FanOutBalanceChange(changes)
		}
	}
}
