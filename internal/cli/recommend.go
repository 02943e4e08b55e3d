package cli

import (
	"fmt"
	"strconv"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/shoprec/shoprec/internal/app"
	"github.com/shoprec/shoprec/internal/experiment"
)

func init() {
	var (
		algorithm string
		placement string
		userID    string
		sessionID string
		limit     int
	)

	cmd := &cobra.Command{
		Use:   "recommend <product-id>",
		Short: "Show recommendations for a product",
		Long: `Show the recommendation list an actor would see for a product.

With --algorithm the named algorithm runs directly. Otherwise the active
experiment (if any) picks the variant for the actor, falling back to the
placement's configured algorithm.

Examples:
  shoprec recommend 42 --user alice
  shoprec recommend 42 --session s-9f2 --algorithm also_viewed --limit 6`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			productID, err := strconv.ParseInt(args[0], 10, 64)
			if err != nil {
				return fmt.Errorf("invalid product id %q", args[0])
			}
			actor, err := parseActor(userID, sessionID)
			if err != nil {
				return err
			}

			return withApp(func(a *app.App) error {
				ctx := cmd.Context()

				var recs *experiment.Recommendations
				if algorithm != "" {
					recs, err = a.RunAlgorithm(ctx, algorithm, actor, productID, limit)
					if err != nil {
						return fmt.Errorf("failed to get recommendations: %w", err)
					}
				} else {
					recs, err = a.GetRecommendations(ctx, actor, placement, productID, limit)
					if err != nil {
						return fmt.Errorf("failed to get recommendations: %w", err)
					}
				}

				fmt.Fprintf(cmd.OutOrStdout(), "%s (%s)\n", recs.Title, recs.Algorithm)
				if recs.ExperimentID != 0 {
					fmt.Fprintf(cmd.OutOrStdout(), "experiment %d, variant %d\n", recs.ExperimentID, recs.VariantID)
				}
				if len(recs.Products) == 0 {
					fmt.Fprintln(cmd.OutOrStdout(), "No recommendations.")
					return nil
				}

				w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
				fmt.Fprintln(w, "ID\tNAME\tPRICE\tRATING\tSALES")
				for _, p := range recs.Products {
					fmt.Fprintf(w, "%d\t%s\t%.2f\t%.1f\t%d\n", p.ID, p.Name, p.Price, p.Rating, p.TotalSales)
				}
				return w.Flush()
			})
		},
	}

	cmd.Flags().StringVar(&algorithm, "algorithm", "", "run a specific algorithm instead of the placement default")
	cmd.Flags().StringVar(&placement, "placement", "product", "placement to resolve the default algorithm for")
	cmd.Flags().StringVar(&userID, "user", "", "user id of the actor")
	cmd.Flags().StringVar(&sessionID, "session", "", "session id of the actor")
	cmd.Flags().IntVar(&limit, "limit", 0, "number of recommendations (0 uses the configured default)")

	rootCmd.AddCommand(cmd)
}
