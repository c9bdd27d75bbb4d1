package main

import (
	"fmt"

	"deplopush/internal/client"
	"deplopush/internal/config"
	"deplopush/internal/deployment"
	"deplopush/internal/metrics"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

type rootOptions struct {
	configFile string

	server      string
	dir         string
	prefix      string
	maxRetries  int
	logFile     string
	rate        int
	metricsFile string
	progress    bool
	verbose     bool

	list   bool
	health bool
	dryRun bool
}

func (o *rootOptions) bindFlags(cmd *cobra.Command) {
	flags := cmd.Flags()

	flags.StringVarP(&o.configFile, "config", "c", "", "Path to deplopush.yaml configuration file")
	flags.StringVar(&o.server, "server", config.DefaultServer, "Deployment server base URL")
	flags.StringVar(&o.dir, "dir", config.DefaultDir, "Directory to scan for archives")
	flags.StringVar(&o.prefix, "project-prefix", "", "Prefix for every derived project name")
	flags.IntVar(&o.maxRetries, "max-retries", config.DefaultMaxRetries, "Upload attempts per archive")
	flags.StringVar(&o.logFile, "log", config.DefaultLogFile, "Append-mode log file (empty disables)")
	flags.IntVar(&o.rate, "rate", 0, "Upload at most n archives per minute (0 = unpaced)")
	flags.StringVar(&o.metricsFile, "metrics-file", "", "Write run metrics in Prometheus text format to this file")
	flags.BoolVar(&o.progress, "progress", false, "Show a byte progress bar per upload")
	flags.BoolVarP(&o.verbose, "verbose", "v", false, "Enable debug logging")

	flags.BoolVar(&o.list, "list", false, "List projects deployed on the server and exit")
	flags.BoolVar(&o.health, "health", false, "Check server health and exit")
	flags.BoolVar(&o.dryRun, "dry-run", false, "Print the archive to project mapping without uploading")
}

// apply overrides cfg with every flag set explicitly on the command line
func (o *rootOptions) apply(flags *pflag.FlagSet, cfg *config.Config) {
	if flags.Changed("server") {
		cfg.Server = o.server
	}
	if flags.Changed("dir") {
		cfg.Dir = o.dir
	}
	if flags.Changed("project-prefix") {
		cfg.ProjectPrefix = o.prefix
	}
	if flags.Changed("max-retries") {
		cfg.MaxRetries = o.maxRetries
	}
	if flags.Changed("log") {
		cfg.LogFile = o.logFile
	}
	if flags.Changed("rate") {
		cfg.UploadsPerMinute = o.rate
	}
	if flags.Changed("metrics-file") {
		cfg.MetricsFile = o.metricsFile
	}
	if flags.Changed("progress") {
		cfg.Progress = o.progress
	}
	if flags.Changed("verbose") {
		cfg.Verbose = o.verbose
	}
}

func runRoot(cmd *cobra.Command, opts *rootOptions) error {
	cfg, cfgPath, err := config.Load(opts.configFile)
	if err != nil {
		return err
	}
	opts.apply(cmd.Flags(), cfg)
	cfg.Normalize()

	if err := cfg.Validate(); err != nil {
		return err
	}

	logger, closeLog, err := setupLogging(cfg.LogFile, cfg.Verbose, cmd.ErrOrStderr())
	if err != nil {
		return fmt.Errorf("failed to setup logging: %w", err)
	}
	defer closeLog()

	logger.Info("Starting deplopush", "version", version, "server", cfg.Server, "dir", cfg.Dir, "config", cfgPath)

	clientOpts := []client.Option{
		client.WithHTTPClient(client.NewHTTPClient(cfg.ConnectTimeout, cfg.ReadTimeout)),
		client.WithLogger(logger),
		client.WithUserAgent("deplopush/" + version),
	}
	if cfg.Progress {
		clientOpts = append(clientOpts, client.WithProgress(cmd.ErrOrStderr()))
	}

	c, err := client.New(cfg.Server, clientOpts...)
	if err != nil {
		return err
	}

	var runMetrics *metrics.Run
	if cfg.MetricsFile != "" {
		runMetrics = metrics.New()
	}

	runner := deployment.NewRunner(c, deployment.Options{
		Dir:              cfg.Dir,
		MaxRetries:       cfg.MaxRetries,
		UploadsPerMinute: cfg.UploadsPerMinute,
		Metrics:          runMetrics,
		Logger:           logger,
	})

	ctx := cmd.Context()
	out := newConsole(cmd.OutOrStdout())

	switch {
	case opts.health:
		health := runner.CheckHealth(ctx)
		out.Health(c.BaseURL(), health)
		if !health.Healthy {
			return exitCodeError{code: 1}
		}
		return nil

	case opts.list:
		out.Projects(runner.ListProjects(ctx))
		return nil

	case opts.dryRun:
		plan, err := runner.Plan(cfg.ProjectPrefix)
		if err != nil {
			logger.Warn("Cannot scan directory", "dir", cfg.Dir, "error", err)
		}
		out.Plan(plan)
		return nil
	}

	summary := runner.Run(ctx, cfg.ProjectPrefix)
	out.Summary(summary)

	if runMetrics != nil {
		if err := runMetrics.WriteTextfile(cfg.MetricsFile); err != nil {
			logger.Error("Failed to write metrics", "path", cfg.MetricsFile, "error", err)
		} else {
			logger.Debug("Metrics written", "path", cfg.MetricsFile)
		}
	}

	if code := summary.ExitCode(); code != 0 {
		return exitCodeError{code: code}
	}
	return nil
}
