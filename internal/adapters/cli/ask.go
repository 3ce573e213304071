package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/kirillkom/hybrid-qa-engine/internal/core/domain"
)

type askOptions struct {
	topK   int
	mode   string
	asJSON bool
}

func newAskCommand(root *rootOptions) *cobra.Command {
	opts := &askOptions{}
	cmd := &cobra.Command{
		Use:   "ask [question]",
		Short: "Answer one question from the corpus",
		Long: `Builds the corpus from --dir (or CORPUS_DIR) and answers a single question.
Extraction mode quotes the best matching sentences; synthesis mode asks the
configured language model and falls back to extraction when it fails.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runAsk(cmd, root, opts, args[0])
		},
	}
	cmd.Flags().IntVarP(&opts.topK, "top-k", "k", 0, "number of chunks to answer from (0 = QA_TOP_K)")
	cmd.Flags().StringVarP(&opts.mode, "mode", "m", "", "answer mode: extraction or synthesis")
	cmd.Flags().BoolVar(&opts.asJSON, "json", false, "output the result as JSON")
	return cmd
}

func runAsk(cmd *cobra.Command, root *rootOptions, opts *askOptions, question string) error {
	if strings.TrimSpace(question) == "" {
		return errors.New("question is empty")
	}
	app, err := root.openApp(cmd, true)
	if err != nil {
		return err
	}
	defer app.Close()

	result, err := app.Queries.Answer(cmd.Context(), domain.QueryRequest{
		Question: question,
		TopK:     opts.topK,
		Mode:     domain.AnswerMode(opts.mode),
	})
	if err != nil {
		return fmt.Errorf("answer failed: %w", err)
	}
	if opts.asJSON {
		return printJSON(cmd, result)
	}
	printResult(cmd, result)
	return nil
}

func printResult(cmd *cobra.Command, result domain.QAResult) {
	cmd.Println(strings.TrimSpace(result.Answer))
	cmd.Printf("  mode=%s confidence=%.2f", result.Mode, result.Confidence)
	if result.FallbackReason != "" {
		cmd.Printf(" fallback=%s", result.FallbackReason)
	}
	cmd.Println()
	if len(result.Sources) > 0 {
		cmd.Printf("  sources: %s\n", strings.Join(result.Sources, ", "))
	}
}

func printJSON(cmd *cobra.Command, payload any) error {
	data, err := json.MarshalIndent(payload, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal result: %w", err)
	}
	cmd.Println(string(data))
	return nil
}
