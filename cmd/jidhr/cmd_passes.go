package main

import (
	"encoding/json"
	"os"

	"github.com/spf13/cobra"

	"jidhr/internal/store"
)

var (
	passFromSura int
	passToSura   int
)

func passRange() store.CorpusRange {
	return store.CorpusRange{FromSura: passFromSura, ToSura: passToSura}
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// resolveCmd runs the discrepancy resolution pass.
var resolveCmd = &cobra.Command{
	Use:   "resolve",
	Short: "Reclassify tokens from their recorded source opinions",
	Long: `Re-weighs every token's recorded source opinions and settles each token
into verified, discrepancy, or manual review. Safe to re-run at any time.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		p, err := buildPipeline(logger)
		if err != nil {
			return err
		}
		defer p.Close()

		sum, err := p.resolver.Run(cmd.Context(), passRange())
		if err != nil {
			return err
		}
		return printJSON(sum)
	},
}

// indexCmd rebuilds the reverse index.
var indexCmd = &cobra.Command{
	Use:   "index",
	Short: "Rebuild the root-to-token reverse index",
	Long: `Regroups every rooted token by its root, rewrites each root's membership
blob and token count, refreshes the bounded per-token reference samples, and
recomputes the related-roots graph.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		p, err := buildPipeline(logger)
		if err != nil {
			return err
		}
		defer p.Close()

		sum, err := p.indexer.Run(cmd.Context(), passRange())
		if err != nil {
			return err
		}
		return printJSON(sum)
	},
}

// statsCmd prints corpus statistics.
var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Print token and root statistics",
	RunE: func(cmd *cobra.Command, args []string) error {
		p, err := buildPipeline(logger)
		if err != nil {
			return err
		}
		defer p.Close()

		ctx := cmd.Context()
		counts, err := p.store.StatusCounts(ctx, passRange())
		if err != nil {
			return err
		}
		tokens, err := p.store.CountTokens(ctx, passRange())
		if err != nil {
			return err
		}
		roots, err := p.store.ListRoots(ctx)
		if err != nil {
			return err
		}

		return printJSON(map[string]any{
			"tokens":   tokens,
			"roots":    len(roots),
			"statuses": counts,
		})
	},
}

func init() {
	for _, cmd := range []*cobra.Command{resolveCmd, indexCmd, statsCmd} {
		cmd.Flags().IntVar(&passFromSura, "from", 0, "first sura of the range (0 = start)")
		cmd.Flags().IntVar(&passToSura, "to", 0, "last sura of the range (0 = end)")
	}
}
