package main

import (
	"fmt"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"newspeaker/internal/browser"
	"newspeaker/internal/config"
	"newspeaker/internal/logging"
	"newspeaker/internal/resolve"
)

// Version is set at build time with -ldflags "-X main.Version=...".
var Version = "dev"

// app carries what every subcommand needs once the root has run.
type app struct {
	cfg    config.Config
	logger *zap.Logger
}

func newRootCmd() *cobra.Command {
	a := &app{logger: zap.NewNop()}

	root := &cobra.Command{
		Use:           "newspeaker",
		Short:         "Capture news feeds, resolve aggregator links and script them for narration",
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			// A missing .env is fine; the environment alone is enough.
			_ = godotenv.Load()
			a.cfg = config.Load()
			a.logger = logging.New(logging.Options{
				Level:  a.cfg.LogLevel,
				Format: a.cfg.LogFormat,
				File:   a.cfg.LogFile,
			})
			for _, w := range a.cfg.Warnings {
				a.logger.Warn("config value ignored", zap.String("detail", w))
			}
			return nil
		},
		PersistentPostRun: func(*cobra.Command, []string) {
			_ = a.logger.Sync()
		},
	}
	root.SetVersionTemplate("{{.Version}}\n")

	root.AddCommand(
		newCaptureCmd(a),
		newResolveCmd(a),
		newSummarizeCmd(a),
		newGenerateCmd(a),
		newServeCmd(a),
		newVersionCmd(),
	)
	return root
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintln(cmd.OutOrStdout(), Version)
		},
	}
}

func (a *app) browserOptions() browser.Options {
	return browser.Options{
		Headless:       a.cfg.Headless,
		ChromePath:     a.cfg.ChromePath,
		Locale:         a.cfg.Locale,
		AcceptLanguage: a.cfg.AcceptLanguage,
		UserAgent:      a.cfg.UserAgent,
		MaxPages:       a.cfg.MaxPages,
	}
}

// engine builds a resolver; concurrency overrides the configured value when positive.
func (a *app) engine(concurrency int) *resolve.Engine {
	opts := resolve.OptionsFromConfig(a.cfg)
	if concurrency > 0 {
		opts.Concurrency = concurrency
	}
	return resolve.NewEngine(opts, resolve.ChromeLauncher(a.browserOptions(), a.logger), a.logger)
}
