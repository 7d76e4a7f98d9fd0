package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/JakeFAU/catalog-scraper/internal/notify/memory"
)

// newScrapeCmd creates the 'scrape' subcommand. It performs one scrape run
// against the configured store and prints the resulting events.
func newScrapeCmd() *cobra.Command {
	var quiet bool
	cmd := &cobra.Command{
		Use:   "scrape",
		Short: "Runs a single scrape and exits",
		RunE: func(cmd *cobra.Command, _ []string) error {
			rt, err := resolveRuntime(cmd.Context())
			if err != nil {
				return err
			}
			app, err := buildApp(cmd.Context(), rt.cfg, rt.logger)
			if err != nil {
				return fmt.Errorf("failed to initialize application services: %w", err)
			}
			defer app.Close()

			rec := memory.New()
			app.Hub().Subscribe(rec)

			n, runErr := app.RunScrapeOnce(cmd.Context())
			if !quiet {
				for _, msg := range rec.Messages() {
					fmt.Fprintln(cmd.OutOrStdout(), msg)
				}
			}
			if runErr != nil {
				return fmt.Errorf("scrape failed: %w", runErr)
			}
			rt.logger.Info("scrape command finished", zap.Int("records", n))
			fmt.Fprintf(cmd.OutOrStdout(), "%d products have been added.\n", n)
			return nil
		},
	}
	cmd.Flags().BoolVarP(&quiet, "quiet", "q", false, "do not print broadcast events")
	return cmd
}
