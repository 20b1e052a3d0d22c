package cli

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/tsumiki-ai/ragcore/internal/core/domain"
)

var (
	queryDocument  string
	queryExpand    bool
	queryVerify    bool
	queryMaxChunks int
	queryLimit     int
	queryAlpha     float64
	queryThreshold float64
	queryJSON      bool
)

var queryCmd = &cobra.Command{
	Use:   "query [question]",
	Short: "Ask a question and get a cited answer",
	Long: `Retrieves relevant chunks with hybrid search, optionally expands the
question into paraphrases and reranks the candidates, then generates an
answer with numbered citations back to the source passages.`,
	Args: cobra.ExactArgs(1),
	RunE: runQuery,
}

func init() {
	queryCmd.Flags().StringVarP(&queryDocument, "document", "d", "", "restrict retrieval to one document ID")
	queryCmd.Flags().BoolVar(&queryExpand, "expand", false, "expand the question into paraphrases before retrieval")
	queryCmd.Flags().BoolVar(&queryVerify, "verify", false, "run a self-verification pass on the draft answer")
	queryCmd.Flags().IntVar(&queryMaxChunks, "top", 0, "context passages after reranking (0 = default)")
	queryCmd.Flags().IntVarP(&queryLimit, "limit", "n", 0, "raw retrieval candidates per query (0 = default)")
	queryCmd.Flags().Float64Var(&queryAlpha, "alpha", 0, "semantic vs lexical blend weight, 0 = lexical, 1 = semantic (unset = configured default)")
	queryCmd.Flags().Float64Var(&queryThreshold, "threshold", 0, "minimum semantic similarity (unset = configured default)")
	queryCmd.Flags().BoolVar(&queryJSON, "json", false, "output the answer as JSON")
	rootCmd.AddCommand(queryCmd)
}

func runQuery(cmd *cobra.Command, args []string) error {
	question := args[0]

	if err := ensureAnswerer(); err != nil {
		return err
	}

	opts := domain.AnswerOptions{
		UseExpansion:    queryExpand,
		UseVerification: queryVerify,
		MaxChunks:       queryMaxChunks,
		Limit:           queryLimit,
	}
	if queryDocument != "" {
		opts.DocumentID = &queryDocument
	}
	// Only a flag the user actually passed overrides the configured
	// default, so an explicit 0 stays distinguishable from unset.
	if cmd.Flags().Changed("alpha") {
		opts.Alpha = &queryAlpha
	}
	if cmd.Flags().Changed("threshold") {
		opts.Threshold = &queryThreshold
	}

	answer, err := answerService.GenerateCitedAnswer(context.Background(), question, opts)
	if err != nil {
		return fmt.Errorf("query failed: %w", err)
	}

	if queryJSON {
		return outputAnswerJSON(cmd, answer)
	}
	return outputAnswerText(cmd, answer)
}

func outputAnswerJSON(cmd *cobra.Command, answer *domain.CitedAnswer) error {
	data, err := json.MarshalIndent(answer, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal answer: %w", err)
	}
	cmd.Println(string(data))
	return nil
}

func outputAnswerText(cmd *cobra.Command, answer *domain.CitedAnswer) error {
	cmd.Println(answer.Answer)
	cmd.Println()
	cmd.Printf("Confidence: %.2f\n", answer.Confidence)

	if len(answer.Sources) == 0 {
		return nil
	}

	cmd.Println()
	cmd.Println("Sources:")
	for _, src := range answer.Sources {
		cmd.Printf("  [%d] %s (%.2f)\n", src.CitationNumber, src.ID, src.Similarity)
		cmd.Printf("      %s\n", snippet(src.Content, 120))
	}
	return nil
}

// snippet truncates text to at most n runes for display.
func snippet(text string, n int) string {
	runes := []rune(text)
	if len(runes) <= n {
		return text
	}
	return string(runes[:n]) + "…"
}
