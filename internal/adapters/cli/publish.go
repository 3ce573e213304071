package cli

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/kirillkom/hybrid-qa-engine/internal/core/domain"
	"github.com/kirillkom/hybrid-qa-engine/internal/infrastructure/queue/nats"
)

const publishTimeout = 10 * time.Second

type publishOptions struct {
	source string
	reason string
}

func newPublishCommand(root *rootOptions) *cobra.Command {
	opts := &publishOptions{}
	cmd := &cobra.Command{
		Use:   "publish",
		Short: "Announce a corpus change over NATS",
		Long: `Publishes a corpus-changed event on NATS_SUBJECT. Every API replica rebuilds
its snapshot from its own CORPUS_DIR and the worker persists a fresh snapshot.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runPublish(cmd, root, opts)
		},
	}
	cmd.Flags().StringVar(&opts.source, "source", "", "changed location (defaults to --dir or CORPUS_DIR)")
	cmd.Flags().StringVar(&opts.reason, "reason", "manual", "free-form reason recorded with the event")
	return cmd
}

func runPublish(cmd *cobra.Command, root *rootOptions, opts *publishOptions) error {
	cfg := root.config()
	if cfg.NATSURL == "" {
		return errors.New("NATS_URL is not set")
	}
	source := opts.source
	if source == "" {
		source = cfg.CorpusDir
	}

	retry := false
	queue, err := nats.New(cfg.NATSURL, cfg.NATSSubject, nats.Options{
		RetryOnFailedConnect: &retry,
		ClientName:           "qactl",
		Logger:               root.logger(cmd, cfg),
	})
	if err != nil {
		return err
	}
	defer queue.Close()

	ctx, cancel := context.WithTimeout(cmd.Context(), publishTimeout)
	defer cancel()
	event := domain.CorpusEvent{Source: source, Reason: opts.reason}
	if err := queue.PublishCorpusChanged(ctx, event); err != nil {
		return fmt.Errorf("publish failed: %w", err)
	}
	cmd.Printf("published corpus change for %s on %s\n", source, cfg.NATSSubject)
	return nil
}
