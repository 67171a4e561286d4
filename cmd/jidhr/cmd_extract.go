package main

import (
	"encoding/json"
	"os"

	"github.com/spf13/cobra"

	"jidhr/internal/source"
)

var (
	extractSura     int
	extractAya      int
	extractPosition int
)

// extractCmd resolves the root of one word.
var extractCmd = &cobra.Command{
	Use:   "extract [word]",
	Short: "Extract the root of a single word",
	Long: `Resolves the root of one Arabic word through the tiered pipeline:
offline snapshot first, then the live sources in parallel, then the
algorithmic extractors. With --sura/--aya/--position the result is also
written to the matching token.

Example:
  jidhr extract "بِسْمِ" --sura 1 --aya 1 --position 0`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		p, err := buildPipeline(logger)
		if err != nil {
			return err
		}
		defer p.Close()

		var loc *source.Location
		if extractSura > 0 && extractAya > 0 {
			loc = &source.Location{Sura: extractSura, Aya: extractAya, Position: extractPosition}
		}

		out, err := p.orch.ExtractRoot(cmd.Context(), args[0], loc)
		if err != nil {
			return err
		}

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(out)
	},
}

func init() {
	extractCmd.Flags().IntVar(&extractSura, "sura", 0, "sura number (1-114)")
	extractCmd.Flags().IntVar(&extractAya, "aya", 0, "aya number within the sura")
	extractCmd.Flags().IntVar(&extractPosition, "position", 0, "zero-based word position within the aya")
}
