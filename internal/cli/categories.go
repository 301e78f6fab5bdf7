package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

var categoriesCmd = &cobra.Command{
	Use:   "categories",
	Short: "List the exchanges and security types the catalog knows",
	RunE:  runCategories,
}

func init() {
	rootCmd.AddCommand(categoriesCmd)
}

func runCategories(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	client, err := newCatalogClient()
	if err != nil {
		return err
	}

	categories, err := client.Categories(ctx)
	if err != nil {
		return err
	}

	fmt.Printf("Exchanges (%d):\n", len(categories.Exchanges))
	for _, exchange := range categories.Exchanges {
		fmt.Printf("  %s\n", exchange)
	}
	fmt.Printf("\nSecurity types (%d):\n", len(categories.SecurityTypes))
	for _, secType := range categories.SecurityTypes {
		fmt.Printf("  %s\n", secType)
	}

	return nil
}
