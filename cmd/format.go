package main

import (
	"fmt"
	"io"
	"strings"

	"golang.org/x/text/language"
	"golang.org/x/text/message"
	"golang.org/x/text/number"

	"github.com/balidash/detective-cli/internal/model"
)

// idrPrinter groups digits the Indonesian way (Rp5.225.000).
var idrPrinter = message.NewPrinter(language.Indonesian)

func formatIDR(v float64) string {
	return idrPrinter.Sprintf("Rp%v", number.Decimal(v, number.MaxFractionDigits(0)))
}

// formatReport renders an analysis report for the terminal. Ordering and
// numbers come straight from the report; this layer only formats.
func formatReport(w io.Writer, report *model.AnalysisReport) {
	p := report.Period
	fmt.Fprintf(w, "%s (%s)\n", p.RestaurantName, p.RestaurantID)
	fmt.Fprintf(w, "Period %s to %s, %d days, total sales %s\n",
		p.Start.Format("2006-01-02"), p.End.Format("2006-01-02"), p.Days, formatIDR(p.TotalSales))
	fmt.Fprintf(w, "Baseline %s/day (median of %d days)\n", formatIDR(p.Baseline.Median), p.Baseline.Days)
	if p.FraudRemoved > 0 {
		fmt.Fprintf(w, "Fraud removed before analysis: %s\n", formatIDR(p.FraudRemoved))
	}

	if p.AnomalyCount == 0 {
		fmt.Fprintln(w, "\nNo anomalous days in this period.")
		return
	}

	fmt.Fprintf(w, "\n%d anomalous day(s), %d shown:\n", p.AnomalyCount, len(report.AnomalyDays))
	for _, day := range report.AnomalyDays {
		formatAnomalyDay(w, day)
	}

	if report.AggregatePotentialUplift > 0 {
		fmt.Fprintf(w, "\nPotential uplift from actionable factors: %s\n",
			formatIDR(report.AggregatePotentialUplift))
	}

	if report.Narrative != "" {
		fmt.Fprintf(w, "\n--\n%s\n", report.Narrative)
	}
}

func formatAnomalyDay(w io.Writer, day model.AnomalyReport) {
	fmt.Fprintf(w, "\n%s  %s (expected %s, down %.0f%%)",
		day.Date.Format("Mon 2006-01-02"),
		formatIDR(day.ActualSales), formatIDR(day.BaselineSales), day.Severity*100)
	if day.DegradedMode {
		fmt.Fprint(w, "  [rule-based only: not enough history for the model]")
	}
	fmt.Fprintln(w)

	for _, f := range day.Factors {
		fmt.Fprintf(w, "  %s %s", severityBadge(f.Severity), f.Label)
		if f.ImpactAmount != 0 {
			fmt.Fprintf(w, " (impact %s, %.1f%%)", formatIDR(f.ImpactAmount), f.ImpactPercent)
		}
		var tags []string
		if f.Actionable {
			tags = append(tags, "actionable")
		}
		if f.Positive {
			tags = append(tags, "positive")
		}
		if len(tags) > 0 {
			fmt.Fprintf(w, " [%s]", strings.Join(tags, ", "))
		}
		fmt.Fprintln(w)
	}
	if len(day.Factors) == 0 {
		fmt.Fprintln(w, "  no individual factor identified")
	}
}

func severityBadge(s model.Severity) string {
	switch s {
	case model.SeverityCritical:
		return "[!!]"
	case model.SeverityWarning:
		return "[! ]"
	default:
		return "[i ]"
	}
}
