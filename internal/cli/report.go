package cli

import (
	"context"
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/shoprec/shoprec/internal/app"
	"github.com/shoprec/shoprec/internal/store"
)

func init() {
	var days int

	reportCmd := &cobra.Command{
		Use:   "report",
		Short: "Reporting over tracked recommendation performance",
	}
	reportCmd.PersistentFlags().IntVar(&days, "days", 30, "trailing window in days")

	window := func() (time.Time, time.Time) {
		end := time.Now()
		return end.AddDate(0, 0, -days), end
	}

	reportCmd.AddCommand(&cobra.Command{
		Use:   "summary",
		Short: "Headline totals, best and worst performers",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(func(a *app.App) error {
				start, end := window()
				s, err := a.Analytics().Summary(context.Background(), start, end)
				if err != nil {
					return err
				}
				fmt.Printf("Impressions:       %d\n", s.Impressions)
				fmt.Printf("Clicks:            %d\n", s.Clicks)
				fmt.Printf("CTR:               %.2f%%\n", s.CTR)
				if s.BestAlgorithm != "" {
					fmt.Printf("Best algorithm:    %s\n", s.BestAlgorithm)
					fmt.Printf("Worst algorithm:   %s\n", s.WorstAlgorithm)
				}
				if s.BestPlacement != "" {
					fmt.Printf("Best placement:    %s\n", s.BestPlacement)
				}
				fmt.Printf("Est. revenue:      $%.2f (heuristic)\n", s.EstimatedRevenue)
				return nil
			})
		},
	})

	reportCmd.AddCommand(&cobra.Command{
		Use:   "conversions",
		Short: "Impressions, clicks and CTR per algorithm",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(func(a *app.App) error {
				start, end := window()
				rows, err := a.Analytics().ConversionTable(context.Background(), start, end)
				if err != nil {
					return err
				}
				w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
				fmt.Fprintln(w, "ALGORITHM\tIMPRESSIONS\tCLICKS\tCTR")
				for _, r := range rows {
					fmt.Fprintf(w, "%s\t%d\t%d\t%.2f%%\n", r.Key, r.Impressions, r.Clicks, r.CTR)
				}
				return w.Flush()
			})
		},
	})

	reportCmd.AddCommand(&cobra.Command{
		Use:   "placements",
		Short: "Impressions, clicks and CTR per placement",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(func(a *app.App) error {
				start, end := window()
				rows, err := a.Analytics().PlacementTable(context.Background(), start, end)
				if err != nil {
					return err
				}
				w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
				fmt.Fprintln(w, "PLACEMENT\tIMPRESSIONS\tCLICKS\tCTR")
				for _, r := range rows {
					fmt.Fprintf(w, "%s\t%d\t%d\t%.2f%%\n", r.Key, r.Impressions, r.Clicks, r.CTR)
				}
				return w.Flush()
			})
		},
	})

	reportCmd.AddCommand(&cobra.Command{
		Use:   "timeseries <impression|click>",
		Short: "Daily counts per algorithm across the window",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			eventType := store.TrackingType(args[0])
			if eventType != store.TrackingImpression && eventType != store.TrackingClick {
				return fmt.Errorf("event type must be impression or click")
			}
			return withApp(func(a *app.App) error {
				start, end := window()
				series, err := a.Analytics().TimeSeries(context.Background(), eventType, start, end)
				if err != nil {
					return err
				}
				for _, s := range series {
					fmt.Printf("%s:\n", s.Algorithm)
					for _, p := range s.Points {
						fmt.Printf("  %s  %d\n", p.Date, p.Count)
					}
				}
				return nil
			})
		},
	})

	var limit int
	topCmd := &cobra.Command{
		Use:   "top",
		Short: "Most clicked recommended products",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(func(a *app.App) error {
				start, end := window()
				products, err := a.Analytics().TopProducts(context.Background(), start, end, limit)
				if err != nil {
					return err
				}
				w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
				fmt.Fprintln(w, "PRODUCT\tNAME\tPRICE\tCLICKS")
				for _, p := range products {
					fmt.Fprintf(w, "%d\t%s\t$%.2f\t%d\n", p.ProductID, p.Name, p.Price, p.Clicks)
				}
				return w.Flush()
			})
		},
	}
	topCmd.Flags().IntVar(&limit, "limit", 10, "how many products to show")
	reportCmd.AddCommand(topCmd)

	rootCmd.AddCommand(reportCmd)
}
