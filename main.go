package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/trdSystemDev/Medko-Prescricao/config"
	"github.com/trdSystemDev/Medko-Prescricao/database"
	"github.com/trdSystemDev/Medko-Prescricao/importer"
	"github.com/trdSystemDev/Medko-Prescricao/monitoring"
	"github.com/trdSystemDev/Medko-Prescricao/normalize"
	"github.com/trdSystemDev/Medko-Prescricao/validation"
)

// supported destination formats
var supportedTargets = []string{config.BackendMySQL, config.BackendPostgres, config.BackendMongoDB, config.BackendMemory}

var supportedModes = []string{string(importer.StreamImport), string(importer.MemoryImport)}

// validate inputs, target and mode; an empty target is taken from DATABASE_URL
func validateInput(target, mode string) error {
	if target != "" && !isValidDatabase(target, supportedTargets) {
		return fmt.Errorf("invalid target database type %s", target)
	}

	//validating import modes
	if isValidDatabase(mode, supportedModes) {
		return nil
	}
	return fmt.Errorf("invalid mode: %s", mode)
}

func isValidDatabase(db string, slice []string) bool {
	for _, v := range slice {
		if strings.EqualFold(v, db) {
			return true
		}
	}
	return false
}

type options struct {
	configPath   string
	envFile      string
	sourcePath   string
	target       string
	mode         string
	batchSize    int
	validateOnly bool
	keepReports  time.Duration
	logLevel     string
	logFormat    string
}

func parseFlags(args []string, stderr io.Writer) (*options, error) {
	fs := flag.NewFlagSet("medko-import", flag.ContinueOnError)
	fs.SetOutput(stderr)

	opts := &options{}
	fs.StringVar(&opts.configPath, "config", "", "Path to config file (optional)")
	fs.StringVar(&opts.envFile, "env-file", ".env", "Path to .env file, ignored when missing")
	fs.StringVar(&opts.sourcePath, "source", "", "Path to the medications JSON array")
	fs.StringVar(&opts.target, "target", "", "Target database type (mysql,postgresql,mongodb,memory), defaults to the DATABASE_URL scheme")
	fs.StringVar(&opts.mode, "mode", "", "Import mode (stream,memory)")
	fs.IntVar(&opts.batchSize, "batch-size", 0, "Rows per bulk insert")
	fs.BoolVar(&opts.validateOnly, "validate-only", false, "Check the source file and exit without importing")
	fs.DurationVar(&opts.keepReports, "keep-reports", 0, "Remove finished run reports older than this after the run (0 keeps all)")
	fs.StringVar(&opts.logLevel, "log-level", "", "Log level (debug,info,warn,error)")
	fs.StringVar(&opts.logFormat, "log-format", "", "Log format (text,json)")

	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	if fs.NArg() > 0 {
		return nil, fmt.Errorf("unexpected arguments: %v", fs.Args())
	}
	return opts, nil
}

// applying command line overrides on top of the config file
func loadConfig(opts *options) (*config.Config, error) {
	if err := config.LoadEnvFile(opts.envFile); err != nil {
		return nil, err
	}

	cfg, err := config.LoadConfig(opts.configPath)
	if err != nil {
		return nil, err
	}

	if opts.sourcePath != "" {
		cfg.Source.Path = opts.sourcePath
	}
	if opts.mode != "" {
		cfg.Import.Mode = opts.mode
	}
	if opts.batchSize != 0 {
		cfg.Import.BatchSize = opts.batchSize
	}
	if opts.logLevel != "" {
		cfg.Logging.Level = opts.logLevel
	}
	if opts.logFormat != "" {
		cfg.Logging.Format = opts.logFormat
	}
	cfg.Import.Mode = strings.ToLower(cfg.Import.Mode)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// resolving the destination; the memory target needs no connection string
func openStore(cfg *config.Config, target string) (database.Store, error) {
	target = strings.ToLower(target)
	if target == config.BackendMemory {
		return database.NewStore(target, nil, cfg.Import.Table, cfg.Database.MaxOpenConns)
	}

	raw, err := config.GetEnv(cfg.Database.URLEnv)
	if err != nil {
		return nil, err
	}
	conn, err := config.ParseDatabaseURL(raw)
	if err != nil {
		return nil, err
	}

	if target == "" {
		target = conn.Backend
	} else if target != conn.Backend {
		return nil, fmt.Errorf("%w: target %s does not match %s connection string", config.ErrConfiguration, target, conn.Backend)
	}

	slog.Info("destination resolved", "backend", conn.Backend, "url", conn.Redacted())
	return database.NewStore(target, conn, cfg.Import.Table, cfg.Database.MaxOpenConns)
}

func validateSource(path string, policy normalize.Policy, stdout io.Writer) error {
	start := time.Now()
	v := validation.NewImportValidator(nil, policy)

	result, _, err := v.ValidateSource(path)
	if err != nil {
		return err
	}
	results := []validation.ValidationResult{result}
	validation.GenerateValidationSummary(results, start).Print(stdout, "Source", results)
	return nil
}

func run(args []string, stdout, stderr io.Writer) int {
	opts, err := parseFlags(args, stderr)
	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		fmt.Fprintln(stderr, "Error:", err)
		return 1
	}

	cfg, err := loadConfig(opts)
	if err != nil {
		fmt.Fprintln(stderr, "Error:", err)
		return 1
	}

	monitoring.SetupLogger(stderr, cfg.Logging.Level, cfg.Logging.Format)

	//validate input
	if err := validateInput(opts.target, cfg.Import.Mode); err != nil {
		fmt.Fprintln(stderr, "Error:", err)
		return 1
	}

	policy, err := normalize.ParsePolicy(cfg.Import.DatePolicy, cfg.Import.LongTextPolicy, cfg.Import.TextUnit, cfg.Import.MaxTextLength)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v: %v\n", config.ErrConfiguration, err)
		return 1
	}

	if opts.validateOnly {
		if err := validateSource(cfg.Source.Path, policy, stdout); err != nil {
			fmt.Fprintln(stderr, "Error:", err)
			return 1
		}
		return 0
	}

	store, err := openStore(cfg, opts.target)
	if err != nil {
		fmt.Fprintln(stderr, "Error:", err)
		return 1
	}

	engine := importer.NewImportEngine(importer.ImportConfig{
		SourcePath:     cfg.Source.Path,
		Mode:           importer.ImportMode(cfg.Import.Mode),
		BatchSize:      cfg.Import.BatchSize,
		Policy:         policy,
		ExpectedTotal:  cfg.Source.ExpectedTotal,
		DiscoverTotal:  cfg.Source.DiscoverTotal,
		ValidateSource: cfg.Source.Validate,
		ReportsDir:     cfg.Import.ReportsDir,
		VerifyCounts:   true,
		Progress:       stdout,
	}, store)

	result, err := engine.Run(context.Background())
	if err != nil {
		fmt.Fprintln(stderr, "Error:", err)
		return 1
	}

	if opts.keepReports > 0 && cfg.Import.ReportsDir != "" {
		if rm, err := importer.NewReportManager(cfg.Import.ReportsDir); err == nil {
			rm.CleanupOld(opts.keepReports)
		}
	}

	fmt.Fprintf(stdout, "Import %s completed: %d processed, %d committed, %d duplicates skipped\n",
		result.RunID, result.Processed, result.Committed, result.Duplicates)
	return 0
}

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}
