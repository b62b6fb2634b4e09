// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/spf13/cobra"
)

var splitCmd = &cobra.Command{
	Use:   "split",
	Short: "Split text into token-bounded chunks",
	Long: `Split reads text from --text or stdin, splits it into sentence-aligned
chunks of at most --max-tokens tokens, and prints the chunks as JSON.
A single sentence longer than the budget becomes its own chunk.`,
	RunE: runSplit,
}

func init() {
	f := splitCmd.Flags()
	f.String("text", "", "text to split (default: read stdin)")
	f.String("pmid", "", "PMID recorded on each chunk")
	f.Int("max-tokens", 0, "token budget per chunk (default 500)")
	f.String("tokenizer", "", "token counter: words, p50k_base, cl100k_base (default p50k_base)")

	rootCmd.AddCommand(splitCmd)
}

func runSplit(cmd *cobra.Command, args []string) error {
	if err := bindFlags(cmd, map[string]string{
		"split.max_tokens": "max-tokens",
		"split.tokenizer":  "tokenizer",
	}); err != nil {
		return err
	}
	cfg := pipelineConfig().Split
	cfg.Enabled = true

	text, _ := cmd.Flags().GetString("text")
	if !cmd.Flags().Changed("text") {
		data, err := io.ReadAll(cmd.InOrStdin())
		if err != nil {
			return fmt.Errorf("reading stdin: %w", err)
		}
		text = string(data)
	}
	pmid, _ := cmd.Flags().GetString("pmid")

	sp, err := newSplitter(cfg)
	if err != nil {
		return err
	}
	chunks, err := sp.Split(pmid, text, cfg.MaxTokens)
	if err != nil {
		return err
	}
	return writeJSON(cmd.OutOrStdout(), chunks)
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	enc.SetEscapeHTML(false)
	return enc.Encode(v)
}
