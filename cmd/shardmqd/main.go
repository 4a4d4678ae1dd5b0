// Command shardmqd runs the broker daemon: it loads configuration, wires up
// the shard fleet, seeds the JetStream admin virtual connection, and serves
// plain-TCP and (optionally) TLS listeners until signalled to stop.
// Grounded on the teacher's cmd/multi/main.go wiring shape (one shard per
// core, automaxprocs blank import, signal-driven graceful shutdown).
package main

import (
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/adred-codev/shardmq/internal/acceptor"
	"github.com/adred-codev/shardmq/internal/broker"
	"github.com/adred-codev/shardmq/internal/config"
	"github.com/adred-codev/shardmq/internal/jetstream"
	"github.com/adred-codev/shardmq/internal/limits"
	"github.com/adred-codev/shardmq/internal/logging"
	"github.com/adred-codev/shardmq/internal/shard"

	_ "go.uber.org/automaxprocs"
)

func main() {
	cfg, err := config.Load(os.Args[1:])
	if err != nil {
		os.Stderr.WriteString("shardmqd: " + err.Error() + "\n")
		os.Exit(1)
	}

	envOverlay, err := config.LoadEnvOverlay()
	if err != nil {
		os.Stderr.WriteString("shardmqd: " + err.Error() + "\n")
		os.Exit(1)
	}

	logLevel := logging.LevelInfo
	if cfg.NoInfo {
		logLevel = logging.LevelWarn
	} else if envOverlay.LogLevel != "" {
		logLevel = logging.Level(envOverlay.LogLevel)
	}
	logger := logging.New(logging.Config{
		Level:     logLevel,
		Format:    logging.Format(envOverlay.LogFormat),
		Component: "shardmqd",
	})

	var authenticate broker.Authenticator
	if cfg.AccountsPath != "" {
		accounts, err := config.LoadAccounts(cfg.AccountsPath)
		if err != nil {
			logger.Fatal().Err(err).Msg("failed to load accounts file")
		}
		authenticate = config.Authenticator(accounts)
	}

	shards := make([]*shard.Shard, cfg.Shards)
	peers := make([]chan broker.Instruction, cfg.Shards)
	for i := range shards {
		shards[i] = shard.New(i, logger)
		peers[i] = shards[i].Inbox()
	}
	for _, sh := range shards {
		sh.SetPeers(peers)
	}
	for _, sh := range shards {
		go sh.Run()
	}

	// Every JetStream virtual connection is pinned to shard 0 (see
	// DESIGN.md), so Stream/Consumer queue access never crosses goroutines.
	// connIDs is shared with the acceptor below so socket connections and
	// JetStream virtual connections never collide on shard 0's connection
	// map; id=1 is reserved for the admin itself, so the allocator starts
	// handing out ids at 2.
	connIDs := broker.NewIDAllocator(2)
	admin := jetstream.NewAdmin(shards[0], connIDs)
	admin.SetID(1)
	shards[0].AddConnection(admin)

	rateLimiter := limits.NewConnectionRateLimiter(limits.ConnectionRateLimiterConfig{Logger: logger})
	defer rateLimiter.Stop()

	resourceGuard := limits.NewResourceGuard(limits.ResourceGuardConfig{
		CPUPauseThreshold:  80,
		CPURejectThreshold: 95,
	}, logger, 2*time.Second)
	defer resourceGuard.Stop()

	targets := make([]acceptor.ShardTarget, cfg.Shards)
	for i, sh := range shards {
		targets[i] = sh
	}

	acc := acceptor.New(acceptor.Config{
		Address:      addr(cfg.Address, cfg.Port),
		TLSAddress:   addr(cfg.Address, cfg.TLSPort),
		TLSCert:      cfg.Cert,
		TLSKey:       cfg.Key,
		AuthRequired: authenticate != nil,
		Authenticate: authenticate,
		IDs:          connIDs,

		RateLimiter:   rateLimiter,
		ResourceGuard: resourceGuard,
		Logger:        logger,
	}, targets)

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sig
		logger.Info().Msg("shutting down")
		acc.Close()
		for _, sh := range shards {
			sh.Stop()
		}
		os.Exit(0)
	}()

	logger.Info().
		Str("address", cfg.Address).
		Int("port", cfg.Port).
		Int("shards", cfg.Shards).
		Msg("shardmqd starting")

	if err := acc.Serve(); err != nil {
		logger.Fatal().Err(err).Msg("acceptor failed")
	}
}

func addr(host string, port int) string {
	if port == 0 {
		return ""
	}
	return host + ":" + strconv.Itoa(port)
}
