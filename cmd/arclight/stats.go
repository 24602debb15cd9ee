package main

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/arclight-ai/arclight/pkg/config"
	"github.com/arclight-ai/arclight/pkg/usage"
)

func newStatsCmd() *cobra.Command {
	var (
		configPath string
		scope      string
	)

	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Show usage and cost statistics",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(configPath)
			if err != nil {
				return err
			}

			rec, err := usage.New(cfg.DBPath, 0)
			if err != nil {
				return err
			}
			defer rec.Close()

			summaries, err := rec.Summary(context.Background(), scope)
			if err != nil {
				return err
			}

			if len(summaries) == 0 {
				fmt.Println("No usage data found.")
				return nil
			}

			w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "SCOPE\tMODEL\tREQUESTS\tCACHE HITS\tPROMPT\tCOMPLETION\tTOTAL\tEST. COST")
			var totalCost float64
			for _, s := range summaries {
				fmt.Fprintf(w, "%s\t%s\t%d\t%d\t%d\t%d\t%d\t$%.4f\n",
					s.Scope, s.Model, s.RequestCount, s.CacheHits,
					s.TotalPrompt, s.TotalCompletion, s.TotalTokens, s.TotalCost)
				totalCost += s.TotalCost
			}
			fmt.Fprintf(w, "\t\t\t\t\t\tTOTAL:\t$%.4f\n", totalCost)
			return w.Flush()
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "arclight.yaml", "path to config file")
	cmd.Flags().StringVar(&scope, "scope", "", "filter by scope")
	return cmd
}
