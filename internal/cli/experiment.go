package cli

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"text/tabwriter"

	"github.com/manifoldco/promptui"
	"github.com/spf13/cobra"

	"github.com/shoprec/shoprec/internal/app"
	"github.com/shoprec/shoprec/internal/store"
)

// algorithms selectable for a variant, in prompt order.
var variantAlgorithms = []string{
	"frequently_bought_together",
	"also_viewed",
	"similar",
	"personalized",
	"popular",
	"enhanced",
	"trending",
	"seasonal",
}

func init() {
	expCmd := &cobra.Command{
		Use:   "experiment",
		Short: "Manage A/B experiments",
	}
	expCmd.AddCommand(newExperimentCreateCmd())
	expCmd.AddCommand(newExperimentListCmd())
	expCmd.AddCommand(newExperimentActivateCmd())
	expCmd.AddCommand(newExperimentEndCmd())
	expCmd.AddCommand(newExperimentResultsCmd())
	rootCmd.AddCommand(expCmd)
}

func newExperimentCreateCmd() *cobra.Command {
	var (
		variants    string
		description string
		activate    bool
	)

	cmd := &cobra.Command{
		Use:   "create <name>",
		Short: "Create a new experiment",
		Long: `Create an experiment comparing recommendation algorithm variants.

Variants are given as a comma-separated list of algorithm[=title] entries.
Without --variants an interactive wizard runs.

Examples:
  shoprec experiment create cross-sell --variants "frequently_bought_together,also_viewed"
  shoprec experiment create homepage --variants "popular=Bestsellers,trending=Hot Right Now" --activate`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			name := args[0]

			var vs []store.Variant
			var err error
			if variants != "" {
				vs, err = parseVariants(variants)
			} else {
				vs, err = promptVariants()
			}
			if err != nil {
				return err
			}
			if len(vs) < 2 {
				return fmt.Errorf("need at least 2 variants. Example: --variants \"frequently_bought_together,similar\"")
			}

			return withApp(func(a *app.App) error {
				exp, err := a.Experiments().Create(context.Background(), name, description, vs, activate)
				if err != nil {
					return fmt.Errorf("failed to create experiment: %w", err)
				}

				fmt.Printf("Created experiment '%s' (id %d, %s) with %d variants:\n",
					exp.Name, exp.ID, exp.State(), len(exp.Variants))
				for _, v := range exp.Variants {
					fmt.Printf("  %d: %s", v.Position, v.Algorithm)
					if v.Title != "" {
						fmt.Printf(" (%q)", v.Title)
					}
					fmt.Println()
				}
				return nil
			})
		},
	}

	cmd.Flags().StringVarP(&variants, "variants", "v", "", "comma-separated algorithm[=title] variants")
	cmd.Flags().StringVarP(&description, "description", "d", "", "what this experiment measures")
	cmd.Flags().BoolVar(&activate, "activate", false, "activate immediately")

	return cmd
}

func parseVariants(s string) ([]store.Variant, error) {
	var out []store.Variant
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		algorithm, title, _ := strings.Cut(part, "=")
		algorithm = strings.TrimSpace(algorithm)
		if !validAlgorithm(algorithm) {
			return nil, fmt.Errorf("unknown algorithm %q (valid: %s)", algorithm, strings.Join(variantAlgorithms, ", "))
		}
		out = append(out, store.Variant{Algorithm: algorithm, Title: strings.TrimSpace(title)})
	}
	return out, nil
}

func validAlgorithm(name string) bool {
	for _, a := range variantAlgorithms {
		if a == name {
			return true
		}
	}
	return false
}

// promptVariants walks through an interactive variant picker until the user
// selects "done".
func promptVariants() ([]store.Variant, error) {
	var out []store.Variant
	for {
		items := variantAlgorithms
		if len(out) >= 2 {
			items = append([]string{"done"}, items...)
		}
		sel := promptui.Select{
			Label: fmt.Sprintf("Variant %d algorithm", len(out)),
			Items: items,
		}
		_, algorithm, err := sel.Run()
		if err != nil {
			if err == promptui.ErrInterrupt {
				return nil, fmt.Errorf("cancelled")
			}
			return nil, err
		}
		if algorithm == "done" {
			return out, nil
		}

		title := promptui.Prompt{
			Label:   "Display title (optional)",
			Default: "",
		}
		t, err := title.Run()
		if err != nil {
			if err == promptui.ErrInterrupt {
				return nil, fmt.Errorf("cancelled")
			}
			return nil, err
		}
		out = append(out, store.Variant{Algorithm: algorithm, Title: t})
	}
}

func newExperimentListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List all experiments",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(func(a *app.App) error {
				exps, err := a.Experiments().List(context.Background())
				if err != nil {
					return fmt.Errorf("failed to list experiments: %w", err)
				}
				if len(exps) == 0 {
					fmt.Println("No experiments yet. Create one with 'shoprec experiment create'.")
					return nil
				}

				w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
				fmt.Fprintln(w, "ID\tNAME\tSTATE\tVARIANTS\tCREATED")
				for _, exp := range exps {
					algs := make([]string, len(exp.Variants))
					for i, v := range exp.Variants {
						algs[i] = v.Algorithm
					}
					fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%s\n",
						exp.ID, exp.Name, exp.State(), strings.Join(algs, ","),
						exp.CreatedAt.Format("2006-01-02"))
				}
				return w.Flush()
			})
		},
	}
}

func newExperimentActivateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "activate <id>",
		Short: "Activate an experiment (deactivating any other)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := strconv.ParseInt(args[0], 10, 64)
			if err != nil {
				return fmt.Errorf("invalid experiment id %q", args[0])
			}
			return withApp(func(a *app.App) error {
				if err := a.Experiments().Activate(context.Background(), id); err != nil {
					return fmt.Errorf("failed to activate experiment: %w", err)
				}
				fmt.Printf("Experiment %d is now active.\n", id)
				return nil
			})
		},
	}
}

func newExperimentEndCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "end <id>",
		Short: "End an experiment (terminal)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := strconv.ParseInt(args[0], 10, 64)
			if err != nil {
				return fmt.Errorf("invalid experiment id %q", args[0])
			}
			return withApp(func(a *app.App) error {
				if err := a.Experiments().End(context.Background(), id); err != nil {
					return fmt.Errorf("failed to end experiment: %w", err)
				}
				fmt.Printf("Experiment %d ended.\n", id)
				return nil
			})
		},
	}
}

func newExperimentResultsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "results <id>",
		Short: "Show measured results for an experiment",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := strconv.ParseInt(args[0], 10, 64)
			if err != nil {
				return fmt.Errorf("invalid experiment id %q", args[0])
			}
			return withApp(func(a *app.App) error {
				res, err := a.Experiments().Results(context.Background(), id)
				if err != nil {
					if err == store.ErrNotFound {
						return fmt.Errorf("experiment %d not found", id)
					}
					return fmt.Errorf("failed to load results: %w", err)
				}

				fmt.Printf("EXPERIMENT: %s\n", res.Experiment.Name)
				fmt.Printf("STATE: %s\n", res.Experiment.State())
				if res.Experiment.Description != "" {
					fmt.Printf("GOAL: %s\n", res.Experiment.Description)
				}
				fmt.Println()

				w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
				fmt.Fprintln(w, "VARIANT\tIMPRESSIONS\tCONVERSIONS\tRATE\t95% CI")
				for i, vr := range res.Variants {
					indicator := ""
					if i == res.LeadingVariant && len(res.Variants) > 1 {
						indicator = " ← LEADING"
					}
					ci := fmt.Sprintf("[%.1f%%, %.1f%%]", vr.CILower*100, vr.CIUpper*100)
					if vr.Impressions == 0 {
						ci = "N/A"
					}
					fmt.Fprintf(w, "%s\t%d\t%d\t%.2f%%\t%s%s\n",
						vr.Variant.Algorithm, vr.Impressions, vr.TotalConversions, vr.Rate*100, ci, indicator)
				}
				if err := w.Flush(); err != nil {
					return err
				}

				if len(res.Variants) > 1 {
					fmt.Println()
					lead := res.Variants[res.LeadingVariant].Variant.Algorithm
					switch {
					case res.Confident:
						fmt.Printf("Statistical significance: %.1f%% confident %q is the winner\n", res.Confidence*100, lead)
					case res.Confidence >= 0.90:
						fmt.Printf("Statistical significance: %.1f%% confident %q leads (not yet significant)\n", res.Confidence*100, lead)
					default:
						fmt.Println("Statistical significance: not enough data to determine a winner")
					}
				}
				return nil
			})
		},
	}
}
