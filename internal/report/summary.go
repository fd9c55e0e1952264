package report

import (
	"fmt"
	"io"
	"strings"
	"time"

	"balance-checker/internal/models"
	"balance-checker/internal/service"

	"github.com/olekukonko/tablewriter"
	"github.com/shopspring/decimal"
)

// Table renders valuation lines as an ASCII table with a total footer.
func Table(lines []models.PortfolioLine, total decimal.Decimal, currency string) string {
	if len(lines) == 0 {
		return "<NO POSITIONS>\n"
	}
	s := &strings.Builder{}
	table := tablewriter.NewWriter(s)
	table.SetHeader([]string{"Class", "Name", "Ticker", "Quantity", "Price", "Value", "Priced at"})
	table.SetFooter([]string{"", "", "", "", "", FormatMoney(total, currency), ""})
	table.SetBorder(false)
	table.SetAutoWrapText(false)
	table.SetAutoFormatHeaders(false)
	for _, l := range lines {
		table.Append([]string{
			string(l.Class),
			l.Name,
			l.Ticker,
			l.Quantity.String(),
			l.Price.String(),
			FormatMoney(l.Value, currency),
			l.PricedAt.Format("2006-01-02 15:04"),
		})
	}
	table.Render()
	return s.String()
}

// WriteSummary prints what a cycle changed and every diagnostic it hit.
func WriteSummary(w io.Writer, sum service.Summary, currency string) error {
	b := &strings.Builder{}
	fmt.Fprintf(b, "run %s finished in %s\n", sum.RunID, sum.FinishedAt.Sub(sum.StartedAt).Round(time.Millisecond))
	if sum.Imported > 0 {
		fmt.Fprintf(b, "imported %d movements\n", sum.Imported)
	}
	fmt.Fprintf(b, "adjusted %d, created %d, observed %d prices\n", len(sum.Adjusted), len(sum.Created), sum.Observations)
	for _, a := range sum.Adjusted {
		fmt.Fprintf(b, "  ~ %-8s %s -> %s (%s)\n", a.Ticker, a.Previous, a.Observed, signed(a.Delta))
	}
	for _, a := range sum.Created {
		fmt.Fprintf(b, "  + %-8s %s\n", a.Ticker, a.Observed)
	}
	b.WriteString("\n")
	b.WriteString(Table(sum.Valuation.Lines, sum.Valuation.Total, currency))
	if len(sum.Diagnostics) > 0 {
		fmt.Fprintf(b, "\n%d diagnostics:\n", len(sum.Diagnostics))
		for _, d := range sum.Diagnostics {
			fmt.Fprintf(b, "  ! %s\n", d)
		}
	}
	_, err := io.WriteString(w, b.String())
	return err
}

func signed(d decimal.Decimal) string {
	if d.IsPositive() {
		return "+" + d.String()
	}
	return d.String()
}
