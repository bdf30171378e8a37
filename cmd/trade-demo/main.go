package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/betbot/perpdemo/exchange/types"
	"github.com/betbot/perpdemo/internal/demo"
	"github.com/betbot/perpdemo/pkg/config"
	"github.com/betbot/perpdemo/pkg/logger"
	"github.com/betbot/perpdemo/pkg/persistence"
	"github.com/betbot/perpdemo/pkg/sdk"
	"github.com/betbot/perpdemo/pkg/shutdown"
)

func main() {
	if err := godotenv.Load(); err != nil {
		logrus.Info("No .env file found, using environment variables")
	}

	if err := run(); err != nil {
		logrus.WithError(err).Error("trade demo failed")
		_ = logger.Close()
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load(os.Getenv("CONFIG_FILE"))
	if err != nil {
		return err
	}

	if err := logger.Init(logger.Config{
		Level:      cfg.Log.Level,
		OutputFile: cfg.Log.File,
		MaxSize:    cfg.Log.MaxSize,
		MaxBackups: cfg.Log.MaxBackups,
		MaxAge:     cfg.Log.MaxAge,
		Compress:   cfg.Log.Compress,
	}); err != nil {
		return fmt.Errorf("init logger: %w", err)
	}

	// Ctrl+C 中断等待中的 sleep / receipt 轮询
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	opts, err := demoOptions(cfg.Demo)
	if err != nil {
		return err
	}

	contracts := cfg.Network.Contracts
	client, err := sdk.New(ctx, sdk.Config{
		RPCURL:                cfg.RPCURL,
		ChainID:               cfg.Network.ChainID,
		SubgraphURL:           cfg.Network.SubgraphURL,
		PriceURL:              cfg.Network.PriceURL,
		Contracts:             &contracts,
		PrivateKey:            cfg.Wallet.PrivateKey,
		Mnemonic:              cfg.Wallet.Mnemonic,
		DerivationPath:        cfg.Wallet.DerivationPath,
		SubgraphRatePerSecond: cfg.SubgraphRatePerSecond,
		ReceiptPollInterval:   cfg.ReceiptPollInterval,
	})
	if err != nil {
		return fmt.Errorf("init sdk: %w", err)
	}

	sm := shutdown.NewManager()
	sm.OnShutdown("sdk", func(context.Context) error {
		client.Close()
		return nil
	})
	sm.OnShutdown("logger", func(context.Context) error {
		return logger.Close()
	})
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		sm.Shutdown(shutdownCtx)
	}()

	logrus.WithFields(logrus.Fields{
		"network": cfg.Network.Name,
		"chain":   cfg.Network.ChainID.String(),
	}).Info("using network")

	printer := demo.NewPrinter(os.Stdout)
	runnerOpts := []demo.RunnerOption{}

	var journal persistence.Service
	if cfg.Journal.Enabled() {
		journal, err = persistence.Open(cfg.Journal.Backend, cfg.Journal.Dir)
		if err != nil {
			return fmt.Errorf("open journal: %w", err)
		}
		sm.OnShutdown("journal", func(context.Context) error {
			return journal.Close()
		})
		runnerOpts = append(runnerOpts, demo.WithJournal(journal))
	}

	runner := demo.NewRunner(client, opts, printer, runnerOpts...)
	if err := runner.Run(ctx); err != nil {
		if errors.Is(err, demo.ErrNoPairs) {
			return fmt.Errorf("%w: check the subgraph url for %s", err, cfg.Network.Name)
		}
		return err
	}

	if journal != nil {
		printJournal(printer, journal, runner.RunID())
	}
	return nil
}

func printJournal(printer *demo.Printer, journal persistence.Service, runID string) {
	records, err := demo.LoadRun(journal, runID)
	if err != nil {
		logrus.WithError(err).Warn("failed to read journal")
		return
	}
	printer.Title(fmt.Sprintf("Run %s transactions:", runID))
	if len(records) == 0 {
		printer.Warn("No transactions recorded.")
		return
	}
	for _, rec := range records {
		printer.Info("%s", rec)
	}
}

func demoOptions(d config.DemoConfig) (demo.Options, error) {
	limit, err := orderSpec(d.LimitOrder, types.OrderTypeLimit)
	if err != nil {
		return demo.Options{}, fmt.Errorf("limit order: %w", err)
	}
	market, err := orderSpec(d.MarketOrder, types.OrderTypeMarket)
	if err != nil {
		return demo.Options{}, fmt.Errorf("market order: %w", err)
	}
	return demo.Options{
		LimitOrder:           limit,
		MarketOrder:          market,
		SlippagePercent:      d.SlippagePercent,
		TakeProfitMultiplier: decimal.NewFromFloat(d.TakeProfitMultiplier),
		StopLossMultiplier:   decimal.NewFromFloat(d.StopLossMultiplier),
		SettleDelay:          d.SettleDelay,
		MonitorIterations:    d.MonitorIterations,
		MonitorInterval:      d.MonitorInterval,
	}, nil
}

func orderSpec(o config.OrderConfig, orderType types.OrderType) (demo.OrderSpec, error) {
	direction, err := types.ParseDirection(o.Direction)
	if err != nil {
		return demo.OrderSpec{}, err
	}
	return demo.OrderSpec{
		Collateral:      decimal.NewFromFloat(o.Collateral),
		Leverage:        decimal.NewFromFloat(o.Leverage),
		Direction:       direction,
		OrderType:       orderType,
		PriceMultiplier: decimal.NewFromFloat(o.PriceMultiplier),
	}, nil
}
