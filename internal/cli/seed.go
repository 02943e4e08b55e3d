package cli

import (
	"encoding/json"
	"fmt"
	"math/rand"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/shoprec/shoprec/internal/app"
	"github.com/shoprec/shoprec/internal/catalog"
	"github.com/shoprec/shoprec/internal/store"
)

// seedProducts is a small demo catalog spanning a few categories so every
// algorithm has something to work with.
var seedProducts = []catalog.Product{
	{ID: 1, Name: "Espresso Machine", Price: 249.00, Categories: []string{"kitchen"}, Tags: []string{"coffee"}, Rating: 4.6, TotalSales: 310, Purchasable: true, InStock: true},
	{ID: 2, Name: "Burr Grinder", Price: 89.00, Categories: []string{"kitchen"}, Tags: []string{"coffee"}, Rating: 4.4, TotalSales: 270, Purchasable: true, InStock: true},
	{ID: 3, Name: "Milk Frother", Price: 34.00, Categories: []string{"kitchen"}, Tags: []string{"coffee"}, Rating: 4.1, TotalSales: 190, Purchasable: true, InStock: true},
	{ID: 4, Name: "Ceramic Mug Set", Price: 28.00, Categories: []string{"kitchen"}, Tags: []string{"tableware"}, Rating: 4.7, TotalSales: 450, Purchasable: true, InStock: true},
	{ID: 5, Name: "Pour Over Kettle", Price: 59.00, Categories: []string{"kitchen"}, Tags: []string{"coffee"}, Rating: 4.3, TotalSales: 150, Purchasable: true, InStock: true},
	{ID: 6, Name: "Trail Backpack", Price: 119.00, Categories: []string{"outdoor"}, Tags: []string{"hiking"}, Rating: 4.5, TotalSales: 220, Purchasable: true, InStock: true},
	{ID: 7, Name: "Water Bottle", Price: 22.00, Categories: []string{"outdoor"}, Tags: []string{"hiking"}, Rating: 4.2, TotalSales: 520, Purchasable: true, InStock: true},
	{ID: 8, Name: "Headlamp", Price: 39.00, Categories: []string{"outdoor"}, Tags: []string{"hiking", "camping"}, Rating: 4.0, TotalSales: 180, Purchasable: true, InStock: true},
	{ID: 9, Name: "Wool Blanket", Price: 74.00, Categories: []string{"home"}, Tags: []string{"winter", "cozy"}, Rating: 4.8, TotalSales: 340, Purchasable: true, InStock: true},
	{ID: 10, Name: "Scented Candle", Price: 18.00, Categories: []string{"home"}, Tags: []string{"holiday", "cozy"}, Rating: 4.4, TotalSales: 610, Purchasable: true, InStock: true},
	{ID: 11, Name: "Discontinued Press", Price: 0, Categories: []string{"kitchen"}, Tags: []string{"coffee"}, Purchasable: false, InStock: false},
}

func init() {
	var (
		users  int
		orders int
	)

	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Seed demo catalog and event data",
		Long: `Write a demo catalog snapshot and generate browsing sessions, orders and
tracking events so recommendations and reports have data to show.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := writeCatalogSnapshot(catalogPath); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Wrote %d products to %s\n", len(seedProducts), catalogPath)

			return withApp(func(a *app.App) error {
				ctx := cmd.Context()
				rng := rand.New(rand.NewSource(time.Now().UnixNano()))

				interactions, purchases := 0, 0
				for u := 0; u < users; u++ {
					actor := store.Actor{UserID: fmt.Sprintf("demo-user-%d", u+1)}
					if u%3 == 2 {
						// Every third shopper browses anonymously.
						actor = store.Actor{SessionID: uuid.NewString()}
					}

					views := seedSession(rng)
					for _, pid := range views {
						ev := store.Interaction{
							Type:       store.InteractionView,
							ProductID:  pid,
							Actor:      actor,
							OccurredAt: time.Now().Add(-time.Duration(rng.Intn(72)) * time.Hour),
						}
						if err := a.RecordInteraction(ctx, ev); err != nil {
							return err
						}
						interactions++
					}

					if u >= orders {
						continue
					}
					orderID := uuid.NewString()
					for _, pid := range views[:min(2, len(views))] {
						p := store.Purchase{
							OrderID:    orderID,
							ProductID:  pid,
							Actor:      actor,
							Quantity:   1 + rng.Intn(2),
							Price:      productPrice(pid),
							OccurredAt: time.Now().Add(-time.Duration(rng.Intn(48)) * time.Hour),
						}
						if err := a.RecordPurchase(ctx, p); err != nil {
							return err
						}
						purchases++
					}
				}

				fmt.Fprintf(cmd.OutOrStdout(), "Seeded %d interactions and %d purchase lines for %d shoppers\n",
					interactions, purchases, users)
				return nil
			})
		},
	}

	cmd.Flags().IntVar(&users, "users", 12, "number of demo shoppers to simulate")
	cmd.Flags().IntVar(&orders, "orders", 6, "number of shoppers who complete an order")

	rootCmd.AddCommand(cmd)
}

// seedSession picks a correlated run of product views: a random category
// anchor plus neighbours, so co-view and co-purchase signals emerge.
func seedSession(rng *rand.Rand) []int64 {
	groups := [][]int64{
		{1, 2, 3, 5},
		{2, 3, 4},
		{6, 7, 8},
		{9, 10, 4},
	}
	group := groups[rng.Intn(len(groups))]
	n := 2 + rng.Intn(len(group)-1)
	out := make([]int64, 0, n)
	perm := rng.Perm(len(group))
	for _, i := range perm[:n] {
		out = append(out, group[i])
	}
	return out
}

func productPrice(id int64) float64 {
	for _, p := range seedProducts {
		if p.ID == id {
			return p.Price
		}
	}
	return 0
}

func writeCatalogSnapshot(path string) error {
	data, err := json.MarshalIndent(seedProducts, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode catalog: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write catalog: %w", err)
	}
	return nil
}
