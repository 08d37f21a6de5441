package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"presale/pkg/config"
	"presale/pkg/connection"
	"presale/pkg/contracts"
	"presale/pkg/logging"
	"presale/pkg/models"
	"presale/pkg/rpc"
	"presale/pkg/server"
	"presale/pkg/stats"
	"presale/pkg/tui"
	"presale/pkg/txn"
	"presale/pkg/wallet"
	"presale/pkg/watcher"
)

// Version should be set during build
var Version = "dev"

func main() {
	testFlag := flag.Bool("t", false, "Test configuration and exit")
	testLongFlag := flag.Bool("test", false, "Test configuration and exit")
	jsonFlag := flag.Bool("json", false, "Output test results as JSON")
	dryRunFlag := flag.Bool("dry-run", false, "Perform a trial run with no changes made")
	configFlag := flag.String("config", "", "Path to configuration file")
	versionFlag := flag.Bool("version", false, "Print version and exit")
	serverFlag := flag.Bool("server", false, "Run in headless server mode")
	portFlag := flag.Int("port", 8080, "Port for API server")
	restoreFlag := flag.Bool("restore-backup", false, "Restore the most recent config backup and exit")
	flag.Parse()

	if *versionFlag {
		fmt.Printf("presale version %s\n", Version)
		os.Exit(0)
	}

	cfgInput := *configFlag
	if cfgInput == "" && len(flag.Args()) > 0 {
		cfgInput = flag.Args()[0]
	}
	path, err := config.GetConfigPath(cfgInput)
	if err != nil {
		fmt.Printf("Error determining config path: %v\n", err)
		os.Exit(1)
	}

	if *restoreFlag {
		if err := config.RestoreLastBackup(path); err != nil {
			fmt.Printf("Failed to restore backup: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("Restored last backup to %s\n", path)
		os.Exit(0)
	}

	cfg, err := config.LoadConfigFromFile(path)
	if err != nil {
		fmt.Printf("Error loading config from %s: %v\n", path, err)
		os.Exit(1)
	}

	if *testFlag || *testLongFlag {
		report := runTest(cfg, path, *jsonFlag, *dryRunFlag)
		if *jsonFlag {
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			_ = enc.Encode(report)
		}
		if !report.ValidStructure {
			os.Exit(1)
		}
		os.Exit(0)
	}

	if err := cfg.Validate(); err != nil {
		fmt.Printf("Error: %s\n", models.Message(err))
		fmt.Printf("Please fix the config file at %s.\n", path)
		os.Exit(1)
	}

	if err := run(cfg, *serverFlag, *portFlag); err != nil {
		fmt.Printf("Error: %s\n", models.Message(err))
		os.Exit(1)
	}
}

func run(cfg *config.SaleConfig, serverMode bool, port int) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logPath := cfg.LogFile
	if serverMode {
		logPath = "stderr"
	}
	logger, err := logging.New(logging.Options{Path: logPath, Level: cfg.LogLevel})
	if err != nil {
		return fmt.Errorf("failed to open log: %w", err)
	}
	defer func() { _ = logger.Sync() }()

	client, err := rpc.Dial(ctx, cfg.RPCURLs, cfg.ChainID)
	if err != nil {
		return err
	}
	defer client.Close()
	if cfg.ChainID == 0 {
		cfg.ChainID = client.ChainID
	}
	for _, url := range client.FailedRPCs {
		logger.Warn("RPC endpoint skipped", zap.String("url", url))
	}

	reader := contracts.NewClient(client)
	w := watcher.NewWatcher(cfg, stats.NewRefresher(cfg, reader, logger), stats.NewPositions(cfg, reader), logger)
	logger = logging.WithSink(logger, w.AppendLog)
	w.SetLogger(logger)

	injected := func() (wallet.Provider, error) {
		p, err := wallet.NewInjected(cfg)
		if err != nil {
			return nil, err
		}
		return p, nil
	}
	remote := func() (wallet.Provider, error) {
		opts := wallet.RelayOptionsFrom(cfg, func(uri string) {
			logger.Info("Pairing URI ready. Open it in your wallet to connect.")
			w.Publish(watcher.Event{Type: watcher.EventPairingURI, Data: uri})
		})
		return wallet.NewRelayProvider(opts), nil
	}
	session := connection.NewManager(cfg, injected, remote, w, logger)
	defer session.Close()
	w.SetAccountSource(session)

	ops := txn.NewCoordinator(cfg, session, reader, client, w, w, logger)

	w.Start(ctx)
	defer w.Stop()

	srv := server.NewServer(cfg, w, session, ops, logger)

	if serverMode {
		if _, err := session.Connect(ctx, models.CapabilityInjected); err != nil && !errors.Is(err, wallet.ErrNoInjectedWallet) {
			logger.Warn("Wallet not connected: " + models.Message(err))
		}
		fmt.Printf("Running in server mode on port %d...\n", port)
		return srv.Start(ctx, port)
	}

	go func() {
		defer logging.Recover(logger, "status server")
		if err := srv.Start(ctx, port); err != nil {
			logger.Warn("Server error: "+err.Error(), zap.Int("port", port))
		}
	}()

	logger.Info(fmt.Sprintf("Loaded sale %s on %s (%d).", cfg.SaleAddress, cfg.ChainName, cfg.ChainID))
	return tui.Start(ctx, tui.App{Config: cfg, Watcher: w, Session: session, Ops: ops}, Version)
}

func runTest(cfg *config.SaleConfig, path string, jsonOut, dryRun bool) models.TestReport {
	say := func(format string, args ...any) {
		if !jsonOut {
			fmt.Printf(format, args...)
		}
	}

	report := models.TestReport{
		ConfigPath:     path,
		ValidStructure: true,
		PhaseCount:     len(cfg.Phases),
		DryRun:         dryRun,
	}
	say("Testing configuration at: %s\n", path)

	if err := cfg.Validate(); err != nil {
		report.ValidStructure = false
		report.StructureErrors = append(report.StructureErrors, models.Message(err))
		say("Error: %s\n", models.Message(err))
		return report
	}
	if cfg.SaleStartTime == 0 || len(cfg.Phases) == 0 {
		say("Sale schedule not configured; phases will show as %q.\n", "Not configured")
	} else {
		say("Found %d phases starting %s.\n", len(cfg.Phases), time.Unix(cfg.SaleStartTime, 0).UTC().Format(time.RFC3339))
	}

	ctx := context.Background()
	chain := models.ChainResult{
		Name:          cfg.ChainName,
		Symbol:        cfg.NativeSymbol,
		ConfigChainID: cfg.ChainID,
	}
	say("Testing Chain: %s (%s)\n", cfg.ChainName, cfg.NativeSymbol)

	var observed int64
	for _, url := range cfg.RPCURLs {
		result := models.RPCResult{URL: url}
		say("  RPC: %s ... ", url)

		id, err := rpc.ProbeChainID(ctx, url)
		if err != nil {
			result.Status = "error"
			result.Error = err.Error()
			say("Failed: %v\n", err)
			chain.RPCs = append(chain.RPCs, result)
			continue
		}
		result.Status = "ok"
		result.ChainID = id
		say("OK (ChainID: %d)", id)

		if lat, err := rpc.FetchRPCLatency(ctx, url); err == nil {
			result.LatencyMS = lat.Latency.Milliseconds()
			say(" %dms", result.LatencyMS)
		}

		if observed == 0 {
			observed = id
			chain.ObservedChainID = id
		} else if observed != id {
			say(" - WARNING: ChainID mismatch with previous RPC (%d)", observed)
			chain.Inconsistent = true
		}

		if cfg.ChainID != 0 {
			if id != cfg.ChainID {
				result.Error = fmt.Sprintf("Mismatch! Expected %d", cfg.ChainID)
				say(" - MISMATCH! Expected %d", cfg.ChainID)
			} else {
				say(" - Verified")
			}
		}
		say("\n")
		chain.RPCs = append(chain.RPCs, result)
	}

	if cfg.ChainID == 0 && observed != 0 {
		cfg.ChainID = observed
		chain.ChainIDUpdated = true
		report.ConfigUpdated = true
		say("Chain id was empty; using %d from the RPC.", observed)
		if dryRun {
			say(" (DRY RUN)")
		}
		say("\n")
	}

	if client, err := rpc.Dial(ctx, cfg.RPCURLs, cfg.ChainID); err == nil {
		targets := []struct{ name, addr string }{
			{"payment_token", cfg.PaymentToken.Address},
			{"sale", cfg.SaleAddress},
		}
		if cfg.SaleToken.Address != "" {
			targets = append(targets, struct{ name, addr string }{"sale_token", cfg.SaleToken.Address})
		}
		for _, target := range targets {
			res := models.ContractResult{Name: target.name, Address: target.addr}
			hasCode, err := rpc.HasCode(ctx, client, common.HexToAddress(target.addr))
			if err != nil {
				res.Error = err.Error()
				say("  Contract %s (%s): error: %v\n", target.name, target.addr, err)
			} else {
				res.HasCode = hasCode
				status := "OK"
				if !hasCode {
					status = "NO CODE"
				}
				say("  Contract %s (%s): %s\n", target.name, target.addr, status)
			}
			chain.Contracts = append(chain.Contracts, res)
		}
		client.Close()
	}

	if gas, err := rpc.FetchGasPrice(ctx, cfg.RPCURLs); err == nil {
		say("  Gas price: %s\n", rpc.WeiToGwei(gas.Price))
	}

	report.Chain = &chain
	if chain.Inconsistent {
		say("\nWARNING: Inconsistent RPCs detected! They return conflicting Chain IDs.\n")
	}

	if report.ConfigUpdated {
		say("\nUpdating configuration with fetched Chain ID...\n")
		if dryRun {
			say("Dry run enabled: Configuration NOT saved.\n")
		} else if err := config.SaveChainID(path, cfg.ChainID); err != nil {
			report.SaveError = err.Error()
			say("Failed to save config: %v\n", err)
		} else {
			say("Configuration saved successfully.\n")
		}
	}
	return report
}
