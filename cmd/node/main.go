// Command node starts a kombat settlement node.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/tolelom/kombat/config"
	"github.com/tolelom/kombat/consensus"
	"github.com/tolelom/kombat/core"
	"github.com/tolelom/kombat/events"
	"github.com/tolelom/kombat/indexer"
	"github.com/tolelom/kombat/internal/logger"
	"github.com/tolelom/kombat/rpc"
	"github.com/tolelom/kombat/storage"
	"github.com/tolelom/kombat/vm"
	"github.com/tolelom/kombat/wallet"

	// Import VM modules to trigger their init() self-registration.
	_ "github.com/tolelom/kombat/vm/modules/admin"
	_ "github.com/tolelom/kombat/vm/modules/battle"
	_ "github.com/tolelom/kombat/vm/modules/betting"
	_ "github.com/tolelom/kombat/vm/modules/economy"
	_ "github.com/tolelom/kombat/vm/modules/settlement"
)

func main() {
	cfgPath := flag.String("config", "config.json", "path to config file")
	keyPath := flag.String("key", "validator.key", "path to keystore file")
	envFile := flag.String("env", ".env", "optional dotenv file loaded before the environment overlay")
	genKey := flag.Bool("genkey", false, "generate a new validator key and exit")
	flag.Parse()

	boot := logger.New("info")
	if err := config.LoadDotEnv(*envFile); err != nil {
		boot.Fatal().Err(err).Msg("dotenv")
	}

	// Read keystore password from environment; CLI flags leak via ps.
	password := os.Getenv("KOMBAT_PASSWORD")
	if password == "" {
		boot.Warn().Msg("KOMBAT_PASSWORD not set, keystore will use an empty password")
	}

	// ---- generate key mode ----
	if *genKey {
		w, err := wallet.Generate()
		if err != nil {
			boot.Fatal().Err(err).Msg("generate key")
		}
		if err := wallet.SaveKey(*keyPath, password, w.PrivKey()); err != nil {
			boot.Fatal().Err(err).Msg("save key")
		}
		fmt.Printf("Generated key. Public key (validator address): %s\n", w.PubKey())
		fmt.Printf("Saved to: %s\n", *keyPath)
		return
	}

	cfg, err := config.Load(*cfgPath)
	if err != nil {
		boot.Fatal().Err(err).Msg("config")
	}
	base := logger.New(cfg.LogLevel)
	log := logger.Component(base, "node")

	if err := run(cfg, *keyPath, password, base); err != nil {
		log.Fatal().Err(err).Msg("node stopped")
	}
	log.Info().Msg("shutdown complete")
}

func run(cfg *config.Config, keyPath, password string, base zerolog.Logger) error {
	log := logger.Component(base, "node")
	privKey, err := wallet.LoadKey(keyPath, password)
	if err != nil {
		return fmt.Errorf("load key: %w", err)
	}

	// ---- open DB ----
	if err := os.MkdirAll(cfg.DataDir, 0755); err != nil {
		return fmt.Errorf("mkdir data dir: %w", err)
	}
	db, err := storage.NewLevelDB(filepath.Join(cfg.DataDir, "chain"))
	if err != nil {
		return fmt.Errorf("open db: %w", err)
	}
	defer db.Close()

	// State, blocks and indexes share one DB under disjoint key prefixes.
	state := storage.NewStateDB(db)
	bc := core.NewBlockchain(storage.NewBlockStore(db))
	if err := bc.Init(); err != nil {
		return fmt.Errorf("blockchain init: %w", err)
	}

	// ---- genesis block (if fresh chain) ----
	if bc.Tip() == nil {
		genesisBlock, err := config.CreateGenesisBlock(cfg, state, privKey, time.Now())
		if err != nil {
			return fmt.Errorf("genesis: %w", err)
		}
		if err := bc.AddBlock(genesisBlock); err != nil {
			return fmt.Errorf("add genesis: %w", err)
		}
		log.Info().Str("hash", genesisBlock.Hash).Msg("genesis block committed")
	}

	if gc, err := state.GetConfig(); err == nil && !gc.Strict() {
		log.Warn().Msg("settlement mode is compat: winnings claims are not recorded and a valid proof can be replayed")
	}

	emitter := events.NewEmitter(base)
	idx := indexer.New(db, emitter, base)
	mempool := core.NewMempool(cfg.Genesis.ChainID)
	exec := vm.NewExecutor(state, emitter)
	poa := consensus.New(cfg, bc, state, mempool, exec, emitter, privKey, base)

	// RPC reads see committed blocks only; the producer owns the write buffer.
	rpcHandler := rpc.NewHandler(bc, mempool, state.Committed(), idx, cfg.Genesis.ChainID)
	rpcServer := rpc.NewServer(fmt.Sprintf(":%d", cfg.RPCPort), rpcHandler, rpc.Options{
		AuthToken:   cfg.RPCAuthToken,
		CORSOrigins: cfg.CORSOrigins,
	}, base)
	if err := rpcServer.Start(); err != nil {
		return fmt.Errorf("rpc start: %w", err)
	}
	log.Info().
		Str("addr", rpcServer.Addr()).
		Bool("auth", cfg.RPCAuthToken != "").
		Msg("rpc listening")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info().Str("validator", privKey.Public().Hex()).Msg("consensus running")
		return poa.Run(ctx, cfg.BlockInterval.Duration)
	})
	g.Go(func() error {
		<-ctx.Done()
		log.Info().Msg("shutting down")
		return rpcServer.Stop()
	})
	return g.Wait()
}
