package main

import (
	"encoding/json"
	"os"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/balidash/detective-cli/internal/analysis"
)

var (
	analyzeRestaurant string
	analyzeStart      string
	analyzeEnd        string
	analyzeTopN       int
	analyzeAll        bool
	analyzeNarrative  bool
	analyzeJSON       bool
)

var analyzeCmd = &cobra.Command{
	Use:   "analyze",
	Short: "Detect and explain anomalous sales days for a restaurant",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		start, end, err := parsePeriod(analyzeStart, analyzeEnd)
		if err != nil {
			return err
		}

		env, err := initAnalyzer(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		report, err := env.Analyzer.AnalyzeAndRecord(ctx, analysis.Request{
			RestaurantID: analyzeRestaurant,
			Start:        start,
			End:          end,
			TopN:         analyzeTopN,
			All:          analyzeAll,
		})
		if err != nil {
			return eris.Wrap(err, "analyze")
		}

		if analyzeNarrative {
			if env.Narrative == nil {
				zap.L().Warn("narrative requested but DETECTIVE_ANTHROPIC_KEY is not set")
			} else {
				summary, err := env.Narrative.Summarize(ctx, report)
				if err != nil {
					zap.L().Warn("narrative generation failed", zap.Error(err))
				} else {
					report.Narrative = summary
				}
			}
		}

		if analyzeJSON {
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(report)
		}

		formatReport(os.Stdout, report)
		return nil
	},
}

func parsePeriod(startStr, endStr string) (time.Time, time.Time, error) {
	start, err := time.Parse("2006-01-02", startStr)
	if err != nil {
		return time.Time{}, time.Time{}, eris.Wrapf(err, "invalid --start %q", startStr)
	}
	end, err := time.Parse("2006-01-02", endStr)
	if err != nil {
		return time.Time{}, time.Time{}, eris.Wrapf(err, "invalid --end %q", endStr)
	}
	if end.Before(start) {
		return time.Time{}, time.Time{}, eris.Errorf("--end %s precedes --start %s", endStr, startStr)
	}
	return start, end, nil
}

func init() {
	analyzeCmd.Flags().StringVar(&analyzeRestaurant, "restaurant", "", "restaurant ID (required)")
	analyzeCmd.Flags().StringVar(&analyzeStart, "start", "", "period start, YYYY-MM-DD (required)")
	analyzeCmd.Flags().StringVar(&analyzeEnd, "end", "", "period end, YYYY-MM-DD (required)")
	analyzeCmd.Flags().IntVar(&analyzeTopN, "top", 0, "report at most N anomalous days (default from config)")
	analyzeCmd.Flags().BoolVar(&analyzeAll, "all", false, "report every anomalous day")
	analyzeCmd.Flags().BoolVar(&analyzeNarrative, "narrative", false, "append a Claude-written merchant summary")
	analyzeCmd.Flags().BoolVar(&analyzeJSON, "json", false, "emit the raw report as JSON")
	_ = analyzeCmd.MarkFlagRequired("restaurant")
	_ = analyzeCmd.MarkFlagRequired("start")
	_ = analyzeCmd.MarkFlagRequired("end")
	rootCmd.AddCommand(analyzeCmd)
}
