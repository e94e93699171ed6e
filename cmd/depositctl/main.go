package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"runtime"
	"strings"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/gbsoe/FiLotV2-sub001/internal/app"
	"github.com/gbsoe/FiLotV2-sub001/internal/config"
	"github.com/gbsoe/FiLotV2-sub001/internal/deposit"
	"github.com/gbsoe/FiLotV2-sub001/internal/investment"
	"github.com/gbsoe/FiLotV2-sub001/internal/wallet"
)

func loadEnv() {
	_, filename, _, _ := runtime.Caller(0)
	projectRoot := filepath.Join(filepath.Dir(filename), "../..")
	_ = godotenv.Load(filepath.Join(projectRoot, ".env"))
}

func main() {
	loadEnv()

	mode := flag.String("mode", "quote", "quote | execute | status | resume")
	poolID := flag.String("pool", "", "pool id from the pool config")
	amt := flag.String("amt", "", "amount in human units of token A (e.g. 0.1)")
	user := flag.String("user", "cli", "user id recorded on the attempt")
	sessionID := flag.String("session", "", "existing connected session id (execute)")
	devWallet := flag.Bool("dev-wallet", false, "sign with a local key instead of an external wallet (execute)")
	walletKey := flag.String("wallet-key", os.Getenv("DEV_WALLET_KEY"), "local key: base58, JSON array, or path to a keygen file")
	slippageBps := flag.Int("slippage-bps", -1, "slippage in bps (default: server policy)")
	attemptID := flag.String("attempt", "", "attempt id (status)")
	verbose := flag.Bool("v", false, "debug logging")
	flag.Parse()

	logger := logrus.New()
	logger.SetOutput(os.Stderr)
	if *verbose {
		logger.SetLevel(logrus.DebugLevel)
	} else {
		logger.SetLevel(logrus.WarnLevel)
	}

	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		fail("invalid configuration:", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigCh
		cancel()
	}()

	a, err := app.Build(ctx, cfg, logger)
	if err != nil {
		fail("failed to init pipeline:", err)
	}
	defer a.Close()

	var slip *uint16
	if *slippageBps >= 0 {
		v := uint16(*slippageBps)
		slip = &v
	}

	switch *mode {
	case "quote":
		amount := mustAmount(*amt)
		snap, err := a.Pools.GetPool(ctx, *poolID)
		if err != nil {
			fail("pool lookup failed:", err)
		}
		amountA, err := deposit.FromUI(amount, snap.Pool.TokenADecimals)
		if err != nil {
			fail("invalid -amt:", err)
		}
		q, err := a.Builder.Quote(snap, amountA, slip, nil)
		if err != nil {
			fail("quote failed:", err)
		}
		s := deposit.Summarize(snap.Pool, q)
		fmt.Printf("pool=%s deposit=%s %s + %s %s expected_lp=%d min_lp=%d slippage_bps=%d fee_bps=%d\n",
			snap.Pool.ID, s.TokenAAmount, s.TokenASymbol, s.TokenBAmount, s.TokenBSymbol,
			q.ExpectedLPTokens, q.MinLPTokens, q.SlippageBps, q.FeeBps)

	case "execute":
		amount := mustAmount(*amt)
		sid, address := connect(ctx, a, *sessionID, *devWallet, *walletKey)
		res, err := a.Executor.ExecuteInvestment(ctx, investment.Request{
			UserID:        *user,
			SessionID:     sid,
			WalletAddress: address,
			PoolID:        *poolID,
			Amount:        amount,
			SlippageBps:   slip,
		})
		if err != nil {
			fail("execute failed:", err)
		}
		fmt.Printf("attempt=%s status=%s sig=%s\n%s\n", res.AttemptID, res.Status, res.TxSignature, res.Message)

	case "status":
		if *attemptID == "" {
			fail("missing -attempt", nil)
		}
		att, err := a.Executor.Status(ctx, *attemptID)
		if err != nil {
			fail("status failed:", err)
		}
		out, _ := json.MarshalIndent(att, "", "  ")
		fmt.Println(string(out))

	case "resume":
		results, err := a.Executor.Resume(ctx)
		for _, r := range results {
			fmt.Printf("attempt=%s status=%s sig=%s\n", r.AttemptID, r.Status, r.TxSignature)
		}
		if err != nil {
			fail("resume incomplete:", err)
		}

	default:
		fmt.Println("invalid -mode (use quote|execute|status|resume)")
		os.Exit(2)
	}
}

// connect returns a connected session: the one named, or a fresh pairing
// approved either by the local dev key or by an external wallet.
func connect(ctx context.Context, a *app.App, sessionID string, dev bool, key string) (string, string) {
	if sessionID != "" && !dev {
		addr, err := a.Sessions.Connected(ctx, sessionID)
		if err != nil {
			fail("session not usable:", err)
		}
		return sessionID, addr
	}

	s, err := a.Sessions.Create(ctx, sessionID)
	if err != nil {
		fail("failed to create session:", err)
	}

	if !dev {
		fmt.Printf("open in your wallet:\n%s\n", s.PairingURI)
		addr, err := a.Sessions.AwaitConnection(ctx, s.SessionID, a.Config.PairingTimeout)
		if err != nil {
			fail("wallet did not connect:", err)
		}
		return s.SessionID, addr
	}

	if b, err := os.ReadFile(key); err == nil {
		key = strings.TrimSpace(string(b))
	}
	signer, err := wallet.NewLocalSigner(a.Relay, a.Sessions, wallet.SignerConfig{PrivateKey: key, Logger: a.Logger})
	if err != nil {
		fail("invalid -wallet-key:", err)
	}
	if err := signer.Listen(ctx, s.SessionID); err != nil {
		fail("dev wallet failed to listen:", err)
	}
	if err := signer.Approve(ctx, s.SessionID); err != nil {
		fail("dev wallet failed to pair:", err)
	}
	return s.SessionID, signer.Address()
}

func mustAmount(s string) decimal.Decimal {
	d, err := decimal.NewFromString(strings.TrimSpace(s))
	if err != nil || !d.IsPositive() {
		fmt.Println("missing -amt (must be > 0)")
		os.Exit(2)
	}
	return d
}

func fail(msg string, err error) {
	if err != nil {
		fmt.Println(msg, err)
	} else {
		fmt.Println(msg)
	}
	os.Exit(1)
}
