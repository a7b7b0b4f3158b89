package cli

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/vietddude/quotation/internal/control"
	"github.com/vietddude/quotation/internal/core/domain"
	"github.com/vietddude/quotation/internal/core/quotation"
)

var (
	quoteCustomerID  int64
	quoteProductCode string
	quotePostCode    string
)

var quoteCmd = &cobra.Command{
	Use:   "quote",
	Short: "Generate a quotation for a customer and product",
	Run:   runQuote,
}

var fetchCmd = &cobra.Command{
	Use:   "fetch [quotation_code]",
	Short: "Show a stored quotation",
	Args:  cobra.ExactArgs(1),
	Run:   runFetch,
}

func init() {
	quoteCmd.Flags().Int64Var(&quoteCustomerID, "customer", 0, "customer id")
	quoteCmd.Flags().StringVar(&quoteProductCode, "product", "", "product code")
	quoteCmd.Flags().StringVar(&quotePostCode, "postcode", "", "post code of the insured address")
	_ = quoteCmd.MarkFlagRequired("customer")
	_ = quoteCmd.MarkFlagRequired("product")
	_ = quoteCmd.MarkFlagRequired("postcode")

	rootCmd.AddCommand(quoteCmd)
	rootCmd.AddCommand(fetchCmd)
}

func runQuote(cmd *cobra.Command, args []string) {
	app := newApp()
	defer func() {
		_ = app.Close()
	}()

	q, err := app.Service().Generate(context.Background(), domain.QuotationRequest{
		CustomerID:  quoteCustomerID,
		ProductCode: quoteProductCode,
		PostCode:    quotePostCode,
	})
	if err != nil {
		if v, ok := quotation.ViolationOf(err); ok {
			fmt.Printf("Quotation refused: %s\n", v)
		} else {
			slog.Error("Failed to generate quotation", "error", err)
		}
		os.Exit(1)
	}

	printQuotation(os.Stdout, q)
}

func runFetch(cmd *cobra.Command, args []string) {
	app := newApp()
	defer func() {
		_ = app.Close()
	}()

	q, err := app.Service().Fetch(context.Background(), args[0])
	if err != nil {
		slog.Error("Failed to fetch quotation", "error", err)
		os.Exit(1)
	}

	printQuotation(os.Stdout, q)
}

func newApp() *control.App {
	app, err := control.New(loadConfig())
	if err != nil {
		slog.Error("Failed to initialize quotation service", "error", err)
		os.Exit(1)
	}
	return app
}

func printQuotation(out io.Writer, q *domain.Quotation) {
	w := tabwriter.NewWriter(out, 0, 0, 3, ' ', 0)
	_, _ = fmt.Fprintf(w, "CODE\t%s\n", q.Code)
	_, _ = fmt.Fprintf(w, "CUSTOMER\t%d\n", q.CustomerID)
	_, _ = fmt.Fprintf(w, "PRODUCT\t%s\n", q.ProductCode)
	_, _ = fmt.Fprintf(w, "AMOUNT\t%s\n", q.Amount.StringFixed(quotation.AmountPlaces))
	_, _ = fmt.Fprintf(w, "CREATED\t%s\n", q.CreatedAt.Format(time.RFC3339))
	_, _ = fmt.Fprintf(w, "EXPIRES\t%s\n", q.ExpiryTime.Format(time.RFC3339))
	_ = w.Flush()
}
