package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"

	"rampwatch/pkg/chain"
	"rampwatch/pkg/config"
	"rampwatch/pkg/keyring"
	"rampwatch/pkg/models"
	"rampwatch/pkg/server"
	"rampwatch/pkg/tui"
	"rampwatch/pkg/tx"
	"rampwatch/pkg/watcher"
)

// Version should be set during build
var Version = "dev"

func main() {
	testFlag := flag.Bool("t", false, "Test configuration and node connectivity, then exit")
	testLongFlag := flag.Bool("test", false, "Test configuration and node connectivity, then exit")
	jsonFlag := flag.Bool("json", false, "Output test results as JSON")
	configFlag := flag.String("config", "", "Path to configuration file")
	versionFlag := flag.Bool("version", false, "Print version and exit")
	serverFlag := flag.Bool("server", false, "Run in headless server mode")
	portFlag := flag.Int("port", 8080, "Port for API server")
	levelFlag := flag.String("log-level", "info", "Log level (trace, debug, info, warn, error)")
	logFileFlag := flag.String("log-file", "", "Write logs to this file (discarded in TUI mode otherwise)")
	flag.Parse()

	if *versionFlag {
		fmt.Printf("rampwatch version %s\n", Version)
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

	cfg, err := config.LoadConfigFromFile(path)
	if err != nil {
		fmt.Printf("Error loading config from %s: %v\n", path, err)
		os.Exit(1)
	}

	if *testFlag || *testLongFlag {
		report := runNodeCheck(cfg, path, probeNode)

		if *jsonFlag {
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			_ = enc.Encode(report)
		} else {
			fmt.Printf("Testing configuration at: %s\n", path)
			for _, msg := range report.StructureErrors {
				fmt.Printf("Error: %s\n", msg)
			}
			if report.ValidStructure {
				fmt.Printf("Node: %s ... ", report.NodeURL)
				if report.NodeStatus == "ok" {
					fmt.Printf("OK (chain: %s)\n", report.Chain)
				} else {
					fmt.Printf("Failed: %s\n", report.NodeError)
				}
			}
		}

		if !report.ValidStructure || report.NodeStatus != "ok" {
			os.Exit(1)
		}
		os.Exit(0)
	}

	if errs := cfg.Validate(); len(errs) > 0 {
		fmt.Println("Error: invalid configuration:")
		for _, e := range errs {
			fmt.Printf(" - %s\n", e)
		}
		fmt.Printf("Please review %s.\n", path)
		os.Exit(1)
	}

	log := newLogger(*levelFlag, *logFileFlag, *serverFlag)

	connect := func() (tui.Deps, error) {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		client, err := chain.Dial(ctx, cfg.NodeURL, log)
		if err != nil {
			return tui.Deps{}, err
		}
		keys, err := keyring.Load(cfg.Accounts)
		if err != nil {
			_ = client.Close()
			return tui.Deps{}, err
		}
		return tui.Deps{
			Watcher: watcher.NewWatcher(client, cfg.Recipient.Address, cfg.Units, log),
			Builder: tx.NewBuilder(client, log),
			Keyring: keys,
		}, nil
	}

	if *serverFlag {
		deps, err := connect()
		if err != nil {
			fmt.Printf("Error connecting to node: %v\n", err)
			os.Exit(1)
		}
		deps.Watcher.Start(context.Background())
		deps.Watcher.SetAccount(context.Background(), deps.Keyring.Current().Address)

		srv := server.NewServer(deps.Watcher, cfg.Recipient, log)
		fmt.Printf("Running in server mode on port %d...\n", *portFlag)
		if err := srv.Start(*portFlag); err != nil {
			fmt.Printf("Server error: %v\n", err)
			os.Exit(1)
		}
		return
	}

	tui.Start(cfg, connect, Version)
}

// runNodeCheck validates the configuration structure and probes the node.
// The probe is injected so tests can stub connectivity.
func runNodeCheck(cfg config.Config, path string, probe func(url string) (string, error)) models.NodeReport {
	report := models.NodeReport{
		ConfigPath:     path,
		ValidStructure: true,
		NodeURL:        cfg.NodeURL,
	}

	if errs := cfg.Validate(); len(errs) > 0 {
		report.ValidStructure = false
		report.StructureErrors = errs
		return report
	}

	chainName, err := probe(cfg.NodeURL)
	if err != nil {
		report.NodeStatus = "error"
		report.NodeError = err.Error()
		return report
	}
	report.NodeStatus = "ok"
	report.Chain = chainName
	return report
}

func probeNode(url string) (string, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	client, err := chain.Dial(ctx, url, zerolog.Nop())
	if err != nil {
		return "", err
	}
	defer func() { _ = client.Close() }()
	return client.Health(ctx)
}

func newLogger(levelStr, file string, serverMode bool) zerolog.Logger {
	level, err := zerolog.ParseLevel(levelStr)
	if err != nil {
		level = zerolog.InfoLevel
	}

	// The TUI owns the terminal, so logs go to a file or nowhere.
	var out io.Writer = os.Stderr
	if file != "" {
		if f, ferr := os.OpenFile(file, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0600); ferr == nil {
			out = f
		}
	} else if !serverMode {
		out = io.Discard
	}

	zerolog.TimestampFunc = func() time.Time { return time.Now().UTC() }
	return zerolog.New(out).With().Timestamp().Logger().Level(level)
}
