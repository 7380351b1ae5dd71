package main

import (
	"log"
	"math/big"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"swapbook/params"
	"swapbook/pkg/api"
	"swapbook/pkg/bank"
	"swapbook/pkg/book"
	"swapbook/pkg/crypto"
	"swapbook/pkg/util"
)

// custodyAddress holds every escrowed balance. It never signs anything, so a
// fixed address is fine.
var custodyAddress = common.HexToAddress("0x000000000000000000000000000000000000C057")

func main() {
	// Load config from .env file and environment variables
	cfg := params.LoadFromEnv("")

	// Setup logging (write to both console and file)
	logger, err := util.NewLoggerWithFile(cfg.Node.LogFile)
	if err != nil {
		log.Fatalf("logger: %v", err)
	}
	defer logger.Sync()
	sugar := logger.Sugar()
	sugar.Infow("logger_initialized", "log_file", cfg.Node.LogFile)

	// ---- Order ledger ----
	store, err := book.OpenStore(cfg.Node.DataDir)
	if err != nil {
		sugar.Fatalw("store_open_failed", "path", cfg.Node.DataDir, "err", err)
	}
	ledger, err := book.NewLedger(store)
	if err != nil {
		sugar.Fatalw("ledger_open_failed", "err", err)
	}
	defer ledger.Close()

	// ---- Bank and settlement engine ----
	b := bank.New()
	seedDemoAccounts(b, sugar)

	engine := book.NewEngine(ledger, bank.NewAdapter(b, custodyAddress), util.RealClock{}, sugar)
	sugar.Infow("engine_ready",
		"orders", ledger.Len(),
		"active", len(engine.ActiveOrders()),
		"custody", custodyAddress.Hex())

	// ---- API Server ----
	apiServer := api.NewServer(engine, cfg.API.CORSOrigins, sugar)
	engine.SetEmitter(apiServer)

	go func() {
		if err := apiServer.Start(cfg.API.Addr); err != nil {
			sugar.Fatalw("api_server_failed", "err", err)
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	sig := <-sigCh
	sugar.Infow("shutting_down", "signal", sig.String())
}

// seedDemoAccounts funds freshly generated keys so the REST API is usable out
// of the box. DEMO_ACCOUNTS=0 disables it; DEMO_KEYS takes a comma-separated
// list of private keys to fund instead of generating new ones.
func seedDemoAccounts(b *bank.Bank, sugar *zap.SugaredLogger) {
	if os.Getenv("DEMO_ACCOUNTS") == "0" {
		return
	}

	tokens := []common.Address{
		common.HexToAddress("0xA000000000000000000000000000000000000001"),
		common.HexToAddress("0xB000000000000000000000000000000000000002"),
	}
	supply := new(big.Int)
	supply.SetString("1000000000000000000000", 10) // 1000 units at 18 decimals

	var signers []*crypto.Signer
	if keys := os.Getenv("DEMO_KEYS"); keys != "" {
		for _, hexKey := range strings.Split(keys, ",") {
			s, err := crypto.FromPrivateKeyHex(strings.TrimSpace(hexKey))
			if err != nil {
				sugar.Fatalw("demo_key_invalid", "err", err)
			}
			signers = append(signers, s)
		}
	} else {
		for i := 0; i < 2; i++ {
			s, err := crypto.GenerateKey()
			if err != nil {
				sugar.Fatalw("demo_key_generation_failed", "err", err)
			}
			signers = append(signers, s)
		}
	}

	for _, s := range signers {
		addr := s.Address()
		b.MintNative(addr, new(big.Int).Set(supply))
		for _, tok := range tokens {
			b.Mint(tok, addr, new(big.Int).Set(supply))
			b.Approve(tok, addr, custodyAddress, new(big.Int).Set(supply))
		}
		sugar.Infow("demo_account_funded",
			"address", addr.Hex(),
			"private_key", s.PrivateKeyHex(),
			"tokens", len(tokens))
	}
}
