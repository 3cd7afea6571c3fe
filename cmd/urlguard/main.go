package main

import (
	"fmt"
	"os"
	"path/filepath"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"urlguard/internal/analysis"
	"urlguard/internal/blocklist"
	"urlguard/internal/config"
	"urlguard/internal/features"
	"urlguard/internal/fetch"
	"urlguard/internal/inference"
	"urlguard/internal/lookup"
	"urlguard/internal/report"
	"urlguard/internal/repository"
	"urlguard/internal/reputation"
)

var (
	configPath string
	jsonOutput bool
	noBanner   bool
)

// app holds everything a command needs. It is built once in the root
// PersistentPreRunE and torn down after Execute returns.
type app struct {
	cfg     *config.Config
	db      *repository.DomainDB
	index   *blocklist.Index
	scanner *analysis.Scanner
	closers []func()
}

var state = &app{}

var rootCmd = &cobra.Command{
	Use:           "urlguard",
	Short:         "Score URLs for phishing indicators",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if !noBanner && !jsonOutput {
			report.PrintBanner(os.Stderr)
		}
		return state.init()
	},
}

func main() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Config file (default: search configs/, ./, /etc/urlguard/)")
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "Write results as JSON lines")
	rootCmd.PersistentFlags().BoolVar(&noBanner, "no-banner", false, "Do not print the banner")

	rootCmd.AddCommand(scanCmd(), batchCmd(), updateCmd(), historyCmd())

	err := rootCmd.Execute()
	state.close()
	if err != nil {
		fmt.Fprintf(os.Stderr, "[-] Error: %v\n", err)
		os.Exit(1)
	}
}

func (a *app) init() error {
	var err error
	if configPath != "" {
		a.cfg, err = config.LoadFile(configPath)
	} else {
		a.cfg, err = config.Load()
	}
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	a.cfg.SetupLogging()
	log.Debugf("Configuration loaded. Log Level: %s", a.cfg.App.LogLevel)

	if err := os.MkdirAll(filepath.Dir(a.cfg.App.DBPath), 0o755); err != nil {
		return fmt.Errorf("could not create data directory: %w", err)
	}
	a.db = &repository.DomainDB{}
	if err := a.db.InitDB(a.cfg.App.DBPath); err != nil {
		return fmt.Errorf("could not initialize database: %w", err)
	}
	a.closers = append(a.closers, func() { a.db.Close() })

	if err := a.db.SyncUserRules(a.cfg.Blocking.Whitelist, a.cfg.Blocking.Blacklist); err != nil {
		return fmt.Errorf("could not apply user rules: %w", err)
	}
	a.index, err = blocklist.Load(a.db)
	if err != nil {
		return fmt.Errorf("could not load block-list: %w", err)
	}
	log.Debugf("Block-list loaded with %d domains.", a.index.Len())

	a.scanner = analysis.NewScanner(a.newExtractor(), a.loadClassifier(), a.db)
	if a.cfg.AI.PersistDetections {
		a.scanner.PersistDetections = true
		a.scanner.OnPhishing = a.index.Block
	}
	return nil
}

func (a *app) newExtractor() *features.Extractor {
	nc := a.cfg.Network
	page := fetch.New(fetch.Config{
		Timeout:      nc.FetchTimeout,
		UserAgent:    nc.UserAgent,
		MaxBodyBytes: nc.MaxBodyBytes,
		MaxRedirects: nc.MaxRedirects,
		Insecure:     nc.InsecureTLS,
	})
	probe := fetch.New(fetch.Config{
		Timeout:      nc.ProbeTimeout,
		UserAgent:    nc.UserAgent,
		MaxRedirects: nc.MaxRedirects,
		Insecure:     nc.InsecureTLS,
	})

	return &features.Extractor{
		Fetcher:  page,
		Resolver: lookup.NewDNSResolver(nc.Nameserver, nc.DNSTimeout),
		Whois:    lookup.NewWhoisClient(nc.WhoisTimeout),
		Certs:    lookup.NewCertInspector(),
		Ranker: &reputation.Reachability{
			Prober:          probe,
			PlaceholderRank: a.cfg.Features.PlaceholderRank,
		},
		Index: &reputation.SearchIndex{
			Fetcher:  probe,
			Endpoint: a.cfg.Features.SearchEndpoint,
		},
		BlockList: a.index,
		Options:   a.cfg.Options(),
	}
}

// loadClassifier returns nil when the model is disabled or cannot be
// loaded; scans then run in database-only mode.
func (a *app) loadClassifier() analysis.Classifier {
	ai := a.cfg.AI
	if !ai.Enabled {
		return nil
	}
	if err := inference.InitONNX(ai.LibraryPath); err != nil {
		log.Printf("ONNX Init Failed: %v", err)
		log.Println("Running in Database-Only mode.")
		return nil
	}
	a.closers = append(a.closers, inference.CleanupONNX)

	pred, err := inference.NewPredictor(inference.Config{
		ModelDir:          ai.ModelDir,
		InputName:         ai.InputName,
		LabelOutput:       ai.LabelOutput,
		ProbabilityOutput: ai.ProbabilityOutput,
		Threshold:         ai.Threshold,
	})
	if err != nil {
		log.Printf("Models not found: %v", err)
		log.Println("Running in Database-Only mode.")
		return nil
	}
	log.Debug("Models Loaded.")
	a.closers = append(a.closers, pred.Close)
	return pred
}

// close runs the closers in reverse so the session goes before the runtime.
func (a *app) close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}
