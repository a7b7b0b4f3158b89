package cli

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/vietddude/quotation/internal/core/domain"
	"github.com/vietddude/quotation/internal/core/retry"
	"github.com/vietddude/quotation/internal/infra/client"
)

var productsCmd = &cobra.Command{
	Use:   "products",
	Short: "List the product catalogue",
	Run:   runProducts,
}

var customersCmd = &cobra.Command{
	Use:   "customers",
	Short: "List known customers",
	Run:   runCustomers,
}

func init() {
	rootCmd.AddCommand(productsCmd)
	rootCmd.AddCommand(customersCmd)
}

func runProducts(cmd *cobra.Command, args []string) {
	cfg := loadConfig()

	c, err := client.NewProductClient(cfg.ProductService.Config)
	if err != nil {
		slog.Error("Failed to create product client", "error", err)
		os.Exit(1)
	}

	products, err := retry.Do(context.Background(), "list_products", cfg.ProductService.Retry, c.ListProducts)
	if err != nil {
		slog.Error("Failed to list products", "error", err)
		os.Exit(1)
	}

	printProducts(os.Stdout, products)
}

func runCustomers(cmd *cobra.Command, args []string) {
	cfg := loadConfig()

	c, err := client.NewCustomerClient(cfg.CustomerService.Config)
	if err != nil {
		slog.Error("Failed to create customer client", "error", err)
		os.Exit(1)
	}

	customers, err := retry.Do(context.Background(), "list_customers", cfg.CustomerService.Retry, c.ListCustomers)
	if err != nil {
		slog.Error("Failed to list customers", "error", err)
		os.Exit(1)
	}

	printCustomers(os.Stdout, customers)
}

func printProducts(out io.Writer, products []domain.Product) {
	w := tabwriter.NewWriter(out, 0, 0, 3, ' ', tabwriter.Debug)
	_, _ = fmt.Fprintln(w, "CODE\tCLASS\tPLAN\tPRICE\tDISCOUNT\tSERVICE AREA")

	for _, p := range products {
		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\n",
			p.Code,
			p.Class,
			p.Plan,
			p.ListedPrice.StringFixed(2),
			p.PostCodeDiscountRate.String(),
			strings.Join(p.PostCodesInService, ","),
		)
	}
	_ = w.Flush()
}

func printCustomers(out io.Writer, customers []domain.Customer) {
	w := tabwriter.NewWriter(out, 0, 0, 3, ' ', tabwriter.Debug)
	_, _ = fmt.Fprintln(w, "ID\tNAME\tDOB")

	for _, c := range customers {
		_, _ = fmt.Fprintf(w, "%d\t%s\t%s\n", c.ID, c.Name, c.DOB.Format(client.DateLayout))
	}
	_ = w.Flush()
}
