package cmd

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"unicode/utf8"

	"CaseForAI/backend/go/internal/rag/loaders"
	"CaseForAI/backend/go/internal/rag/splitters"

	"github.com/spf13/cobra"
)

var (
	chunkSize    int
	chunkOverlap int
	chunkJSON    bool
)

var chunkCmd = &cobra.Command{
	Use:   "chunk [file-path]",
	Short: "Preview how a document is split into chunks before indexing",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		path := args[0]
		data, err := os.ReadFile(path)
		if err != nil {
			return err
		}
		docs, err := loaders.LoadFile(cmd.Context(), filepath.Base(path), data)
		if err != nil {
			return err
		}
		chunks, err := splitters.ChunkText(loaders.JoinText(docs), chunkSize, chunkOverlap)
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		if chunkJSON {
			enc := json.NewEncoder(out)
			enc.SetIndent("", "  ")
			return enc.Encode(chunks)
		}
		for i, c := range chunks {
			fmt.Fprintf(out, "--- chunk %d (%d chars) ---\n%s\n", i+1, utf8.RuneCountInString(c), c)
		}
		fmt.Fprintf(out, "%d chunks from %d pages\n", len(chunks), len(docs))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(chunkCmd)
	chunkCmd.Flags().IntVar(&chunkSize, "size", 1000, "maximum chunk size in characters")
	chunkCmd.Flags().IntVar(&chunkOverlap, "overlap", 200, "characters shared by neighbouring chunks")
	chunkCmd.Flags().BoolVar(&chunkJSON, "json", false, "print chunks as a JSON array")
}
