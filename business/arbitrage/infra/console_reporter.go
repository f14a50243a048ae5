// Package infra contains infrastructure adapters for the arbitrage context.
package infra

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/dvega/spreadscan/business/arbitrage/domain"
	"github.com/dvega/spreadscan/internal/asset"
	"github.com/dvega/spreadscan/internal/numeric"
)

// ConsoleReporter renders opportunities for CLI output.
type ConsoleReporter struct {
	out      io.Writer
	registry *asset.Registry
}

// NewConsoleReporter creates a reporter writing to stdout.
func NewConsoleReporter(registry *asset.Registry) *ConsoleReporter {
	return &ConsoleReporter{out: os.Stdout, registry: registry}
}

// NewConsoleReporterTo creates a reporter writing to w.
func NewConsoleReporterTo(w io.Writer, registry *asset.Registry) *ConsoleReporter {
	return &ConsoleReporter{out: w, registry: registry}
}

// Report renders one opportunity.
func (r *ConsoleReporter) Report(opp *domain.Opportunity) {
	banner := "PRICE GAP"
	if opp.Executable {
		banner = "EXECUTABLE OPPORTUNITY"
	}

	fwdVenue, retVenue := opp.RoundTripVenues()

	fmt.Fprintln(r.out, "")
	fmt.Fprintln(r.out, "================================================================================")
	fmt.Fprintln(r.out, banner)
	fmt.Fprintln(r.out, "================================================================================")
	fmt.Fprintf(r.out, "Timestamp:      %s\n", opp.Timestamp.Format(time.RFC3339))
	fmt.Fprintf(r.out, "Pair:           %s\n", opp.PairLabel())
	fmt.Fprintf(r.out, "Route:          %s -> %s\n", fwdVenue, retVenue)
	fmt.Fprintln(r.out, "--------------------------------------------------------------------------------")
	fmt.Fprintln(r.out, "ROUND TRIP")
	baseDec := uint8(18)
	if tok, ok := r.registry.BySymbol(opp.BaseSymbol); ok {
		baseDec = tok.Decimals()
	}
	fmt.Fprintf(r.out, "  Size:           %s %s\n",
		numeric.FormatUnits(opp.AmountIn, baseDec, 6), opp.BaseSymbol)
	fmt.Fprintf(r.out, "  Gross Spread:   %d bps\n", opp.GrossSpreadBps)
	fmt.Fprintf(r.out, "  Slip Spread:    %d bps\n", opp.SlipSpreadBps)
	fmt.Fprintln(r.out, "--------------------------------------------------------------------------------")
	fmt.Fprintln(r.out, "VALUATION")
	fmt.Fprintf(r.out, "  In:             $%s\n", opp.ValueInUSD.StringFixed(2))
	fmt.Fprintf(r.out, "  Out:            $%s\n", opp.ValueOutUSD.StringFixed(2))
	if opp.GasCost != nil {
		fmt.Fprintf(r.out, "  Gas Cost:       %s ETH ($%s)\n",
			opp.GasCost.Native.StringFixed(6), opp.GasCost.USD.StringFixed(2))
	} else {
		fmt.Fprintln(r.out, "  Gas Cost:       unavailable")
	}
	fmt.Fprintf(r.out, "  Net Profit:     $%s\n", opp.NetProfitUSD.StringFixed(2))
	fmt.Fprintf(r.out, "  Recognized:     %t\n", opp.Recognized)
	fmt.Fprintf(r.out, "  Executable:     %t\n", opp.Executable)
	fmt.Fprintln(r.out, "================================================================================")
}
