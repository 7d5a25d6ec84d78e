package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/ethereum/go-ethereum/common"
	ethcrypto "github.com/ethereum/go-ethereum/crypto"
	"github.com/holiman/uint256"
	"go.uber.org/zap"

	"github.com/uhyunpark/hyperswap/params"
	"github.com/uhyunpark/hyperswap/pkg/api"
	"github.com/uhyunpark/hyperswap/pkg/app/core"
	"github.com/uhyunpark/hyperswap/pkg/app/exchange"
	"github.com/uhyunpark/hyperswap/pkg/broadcast"
	"github.com/uhyunpark/hyperswap/pkg/crypto"
	"github.com/uhyunpark/hyperswap/pkg/storage"
	"github.com/uhyunpark/hyperswap/pkg/token"
	"github.com/uhyunpark/hyperswap/pkg/util"
)

// closableStore is the node's view of a store: the engine's Store, the
// API's nonce store and Close
type closableStore interface {
	exchange.Store
	api.NonceStore
	Close() error
}

type memoryStore struct{ *storage.MemoryStore }

func (memoryStore) Close() error { return nil }

func main() {
	configPath := flag.String("config", "", "YAML config file (defaults plus env when empty)")
	envPath := flag.String("env", "", ".env file (default ./.env)")
	ephemeral := flag.Bool("ephemeral", false, "keep state in memory only")
	flag.Parse()

	var (
		cfg params.Config
		err error
	)
	if *configPath != "" {
		cfg, err = params.LoadFile(*configPath, *envPath)
	} else {
		cfg, err = params.LoadFromEnv(*envPath)
	}
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	if *ephemeral {
		cfg.Node.Ephemeral = true
	}

	var logger *zap.Logger
	if cfg.Node.LogFile != "" {
		logger, err = util.NewLoggerWithFile(cfg.Node.LogFile, cfg.Node.LogLevel)
	} else {
		logger, err = util.NewLogger(cfg.Node.LogLevel)
	}
	if err != nil {
		log.Fatalf("logger: %v", err)
	}
	defer logger.Sync()
	sugar := logger.Sugar()

	if err := run(cfg, sugar); err != nil {
		sugar.Fatalw("node_failed", "err", err)
	}
}

func run(cfg params.Config, sugar *zap.SugaredLogger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// ---- Store ----
	var store closableStore
	if cfg.Node.Ephemeral {
		store = memoryStore{storage.NewMemoryStore()}
		sugar.Infow("store_opened", "kind", "memory")
	} else {
		ps, err := storage.NewPebbleStore(cfg.Node.DataDir)
		if err != nil {
			return err
		}
		store = ps
		sugar.Infow("store_opened", "kind", "pebble", "path", cfg.Node.DataDir)
	}
	defer store.Close()

	// ---- Token ledger (genesis) ----
	deployer := common.HexToAddress(cfg.Genesis.Deployer)
	registry := token.NewRegistry()
	for _, gt := range cfg.Genesis.Tokens {
		t, err := registry.Deploy(deployer, gt.Name, gt.Symbol, gt.Decimals, gt.Supply)
		if err != nil {
			return fmt.Errorf("deploy %s: %w", gt.Symbol, err)
		}
		sugar.Infow("token_deployed", "symbol", t.Symbol, "address", t.Address.Hex(), "supply", t.TotalSupply.Dec())
	}

	// the exchange is deployed right after the tokens
	custodianAddr := ethcrypto.CreateAddress(deployer, uint64(len(cfg.Genesis.Tokens)))
	if cfg.Exchange.Custodian != "" {
		custodianAddr = common.HexToAddress(cfg.Exchange.Custodian)
	}
	custodian := token.NewCustodian(registry, custodianAddr)

	// ---- Engine ----
	engine, err := exchange.New(exchange.Config{
		FeeAccount: common.HexToAddress(cfg.Exchange.FeeAccount),
		FeePercent: cfg.Exchange.FeePercent,
	}, custodian)
	if err != nil {
		return err
	}
	engine.Logger = sugar.Named("exchange")

	snap, err := store.Load()
	if err != nil {
		return fmt.Errorf("load state: %w", err)
	}
	if err := engine.Restore(snap); err != nil {
		return fmt.Errorf("restore state: %w", err)
	}
	if err := reseedCustodian(registry, deployer, custodianAddr, snap.Balances, sugar); err != nil {
		return err
	}
	engine.Store = store

	if err := engine.Audit(ctx); err != nil {
		return fmt.Errorf("audit after restore: %w", err)
	}

	// ---- Subscribers ----
	var journal storage.Journal = storage.NewNopJournal()
	if cfg.Node.Journal != "" {
		fj, err := storage.NewFileJournal(cfg.Node.Journal)
		if err != nil {
			return err
		}
		defer fj.Close()
		journal = fj
		sugar.Infow("journal_enabled", "path", cfg.Node.Journal)
	}
	engine.Subscribe(journal.Append)

	if len(cfg.Kafka.Brokers) > 0 {
		publisher := broadcast.NewKafkaPublisher(cfg.Kafka.Brokers, cfg.Kafka.Topic, sugar.Named("kafka"))
		engine.Subscribe(publisher.Publish)
		done := make(chan struct{})
		go func() {
			defer close(done)
			if err := publisher.Run(ctx); err != nil {
				sugar.Warnw("kafka_close_failed", "err", err)
			}
		}()
		defer func() { <-done }()
		sugar.Infow("kafka_enabled", "brokers", cfg.Kafka.Brokers, "topic", cfg.Kafka.Topic)
	}

	// ---- API Server ----
	domain := crypto.DefaultDomain()
	domain.ChainID.SetInt64(cfg.Exchange.ChainID)
	server, err := api.NewServer(engine, registry, custodian, crypto.NewEIP712Signer(domain), store, sugar.Named("api"))
	if err != nil {
		return err
	}

	sugar.Infow("node_starting",
		"custodian", custodianAddr.Hex(),
		"fee_account", cfg.Exchange.FeeAccount,
		"fee_percent", cfg.Exchange.FeePercent,
		"orders", engine.OrderCount(),
		"events", engine.EventCount())

	err = server.Start(ctx, cfg.Node.APIAddr)
	stop()
	sugar.Infow("node_stopped", "events", engine.EventCount(), "digest", engine.EventDigest().Hex())
	return err
}

// reseedCustodian moves restored custody totals from the deployer to the
// custodian. The token ledger lives in memory and restarts at genesis while
// custody balances come back from the store.
func reseedCustodian(registry *token.Registry, deployer, custodian common.Address, balances []core.Balance, sugar *zap.SugaredLogger) error {
	owed := make(map[common.Address]*uint256.Int)
	for _, b := range balances {
		total, ok := owed[b.Asset]
		if !ok {
			total = new(uint256.Int)
			owed[b.Asset] = total
		}
		if _, overflow := total.AddOverflow(total, b.Amount); overflow {
			return fmt.Errorf("custody total of %s overflows: %w", b.Asset.Hex(), core.ErrAmountOverflow)
		}
	}
	for asset, amount := range owed {
		if err := registry.Transfer(asset, deployer, custodian, amount); err != nil {
			return fmt.Errorf("reseed custodian with %s: %w", asset.Hex(), err)
		}
		sugar.Infow("custodian_reseeded", "asset", asset.Hex(), "amount", amount.Dec())
	}
	return nil
}
