package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"jidhr/internal/store"
)

var (
	batchFromSura  int
	batchToSura    int
	batchChunkSize int
)

// batchCmd runs a full extraction pass over the corpus.
var batchCmd = &cobra.Command{
	Use:   "batch",
	Short: "Run batch extraction over unresolved tokens",
	Long: `Runs the tiered extraction pipeline over every token in the range that
has no root yet. Progress is printed while the batch runs; Ctrl-C cancels
at the next chunk boundary and keeps everything already written.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		p, err := buildPipeline(logger)
		if err != nil {
			return err
		}
		defer p.Close()

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		rng := store.CorpusRange{FromSura: batchFromSura, ToSura: batchToSura}
		job, err := p.jobs.RunBatch(ctx, rng, batchChunkSize)
		if err != nil {
			return err
		}

		ticker := time.NewTicker(2 * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				pr := job.Progress()
				fmt.Printf("processed %d/%d (resolved %d, failed %d)\n",
					pr.Processed, pr.Total, pr.Resolved, pr.Failed)
			case <-job.Done():
				pr := job.Progress()
				fmt.Printf("batch %s: %s, processed %d/%d, resolved %d, failed %d\n",
					job.ID, pr.Phase, pr.Processed, pr.Total, pr.Resolved, pr.Failed)
				return nil
			}
		}
	},
}

func init() {
	batchCmd.Flags().IntVar(&batchFromSura, "from", 0, "first sura of the range (0 = start)")
	batchCmd.Flags().IntVar(&batchToSura, "to", 0, "last sura of the range (0 = end)")
	batchCmd.Flags().IntVar(&batchChunkSize, "chunk-size", 0, "tokens per chunk (0 = configured default)")
}
