// Package narrative turns a finished analysis report into a short merchant
// briefing using the Anthropic API. The narrative is presentation-layer only:
// it never alters factors, ordering, or numbers in the report.
package narrative

import (
	"context"
	"fmt"
	"strings"

	sdk "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/balidash/detective-cli/internal/model"
)

// Options configures the narrative generator.
type Options struct {
	APIKey    string
	Model     string
	MaxTokens int64
}

// Generator produces merchant-facing summaries of analysis reports.
type Generator struct {
	client    sdk.Client
	model     string
	maxTokens int64
}

// NewGenerator creates a Generator backed by the official SDK.
func NewGenerator(opts Options) *Generator {
	if opts.Model == "" {
		opts.Model = "claude-haiku-4-5-20251001"
	}
	if opts.MaxTokens == 0 {
		opts.MaxTokens = 1024
	}
	return &Generator{
		client:    sdk.NewClient(option.WithAPIKey(opts.APIKey)),
		model:     opts.Model,
		maxTokens: opts.MaxTokens,
	}
}

const systemPrompt = `You are a concise analyst writing for a restaurant owner in Bali.
You are given the structured findings of a sales anomaly analysis.
Summarize what happened and what the owner should do, in plain language.
Do not invent numbers or causes that are not in the findings.
Keep it under 200 words.`

// Summarize renders the report findings as a prompt and asks the model for
// a short narrative. The returned string is stored verbatim on the report.
func (g *Generator) Summarize(ctx context.Context, report *model.AnalysisReport) (string, error) {
	msg, err := g.client.Messages.New(ctx, sdk.MessageNewParams{
		Model:     sdk.Model(g.model),
		MaxTokens: g.maxTokens,
		System:    []sdk.TextBlockParam{{Text: systemPrompt}},
		Messages: []sdk.MessageParam{
			sdk.NewUserMessage(sdk.NewTextBlock(renderFindings(report))),
		},
	})
	if err != nil {
		return "", eris.Wrap(err, "narrative: create message")
	}

	var sb strings.Builder
	for _, block := range msg.Content {
		if block.Type == "text" {
			sb.WriteString(block.Text)
		}
	}
	text := strings.TrimSpace(sb.String())
	if text == "" {
		return "", eris.New("narrative: empty model response")
	}

	zap.L().Debug("narrative: generated summary",
		zap.Int64("input_tokens", msg.Usage.InputTokens),
		zap.Int64("output_tokens", msg.Usage.OutputTokens),
	)
	return text, nil
}

// renderFindings flattens the report into a plain-text prompt block.
func renderFindings(report *model.AnalysisReport) string {
	var sb strings.Builder
	p := report.Period
	fmt.Fprintf(&sb, "Restaurant: %s\n", p.RestaurantName)
	fmt.Fprintf(&sb, "Period: %s to %s (%d days)\n",
		p.Start.Format("2006-01-02"), p.End.Format("2006-01-02"), p.Days)
	fmt.Fprintf(&sb, "Typical daily sales: %.0f IDR\n", p.Baseline.Median)
	fmt.Fprintf(&sb, "Anomalous days: %d\n", p.AnomalyCount)
	if p.FraudRemoved > 0 {
		fmt.Fprintf(&sb, "Fraudulent sales removed before analysis: %.0f IDR\n", p.FraudRemoved)
	}
	fmt.Fprintf(&sb, "Estimated recoverable sales: %.0f IDR\n\n", report.AggregatePotentialUplift)

	for _, day := range report.AnomalyDays {
		fmt.Fprintf(&sb, "Day %s: sales %.0f vs expected %.0f (%.0f%% below normal)\n",
			day.Date.Format("2006-01-02"), day.ActualSales, day.BaselineSales, day.Severity*100)
		for _, f := range day.Factors {
			marker := "cause"
			if !f.Actionable {
				marker = "context"
			}
			fmt.Fprintf(&sb, "  - [%s/%s] %s (impact %.0f IDR)\n",
				f.Severity, marker, f.Label, f.ImpactAmount)
		}
	}
	return sb.String()
}
