// Package cli implements qactl, a local front end to the retrieval and
// question-flow engine.
package cli

import (
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/kirillkom/hybrid-qa-engine/internal/bootstrap"
	"github.com/kirillkom/hybrid-qa-engine/internal/config"
	"github.com/kirillkom/hybrid-qa-engine/internal/observability/logging"
)

type rootOptions struct {
	corpusDir string
	flowPath  string
	logLevel  string

	load func() config.Config
}

func NewRootCommand() *cobra.Command {
	return newRootCommand(config.Load)
}

func newRootCommand(load func() config.Config) *cobra.Command {
	opts := &rootOptions{load: load}
	root := &cobra.Command{
		Use:   "qactl",
		Short: "Ask questions against a local document corpus",
		Long: `qactl builds a hybrid retrieval corpus from a directory of text files
and answers questions from it, one at a time or through a question flow.

Settings come from the same environment variables as the API server;
flags override them.`,
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVarP(&opts.corpusDir, "dir", "d", "", "corpus directory (overrides CORPUS_DIR)")
	root.PersistentFlags().StringVar(&opts.flowPath, "flows", "", "flow definition file or directory (overrides FLOW_PATH)")
	root.PersistentFlags().StringVar(&opts.logLevel, "log-level", "", "log level (overrides LOG_LEVEL)")

	root.AddCommand(
		newAskCommand(opts),
		newFlowCommand(opts),
		newFlowsCommand(opts),
		newPublishCommand(opts),
		newMCPCommand(opts),
	)
	return root
}

func (o *rootOptions) config() config.Config {
	cfg := o.load()
	if o.corpusDir != "" {
		cfg.CorpusDir = o.corpusDir
	}
	if o.flowPath != "" {
		cfg.FlowPath = o.flowPath
	}
	if o.logLevel != "" {
		cfg.LogLevel = o.logLevel
	}
	// The CLI is one-shot; watching and event consumption belong to the servers.
	cfg.CorpusWatch = false
	return cfg
}

// Logs go to stderr so stdout stays clean for answers and MCP stdio.
func (o *rootOptions) logger(cmd *cobra.Command, cfg config.Config) *slog.Logger {
	return logging.New(cmd.ErrOrStderr(), "qactl", cfg.LogLevel, "text")
}

// openApp bootstraps the engine and, when build is set, indexes the corpus
// directory before returning.
func (o *rootOptions) openApp(cmd *cobra.Command, build bool) (*bootstrap.App, error) {
	cfg := o.config()
	app, err := bootstrap.New(cmd.Context(), cfg, bootstrap.Options{
		Logger:     o.logger(cmd, cfg),
		ClientName: "qactl",
		SkipQueue:  true,
	})
	if err != nil {
		return nil, err
	}
	if build {
		if _, err := app.BuildFromSource(cmd.Context(), "qactl"); err != nil {
			app.Close()
			return nil, err
		}
	}
	return app, nil
}
