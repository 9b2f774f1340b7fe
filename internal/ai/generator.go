package ai

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"text/template"

	"github.com/amishk599/pathwise/internal/model"
)

const (
	maxSalaryRanges = 10
	maxListItems    = 10
)

var _ model.InsightGenerator = (*LLMInsightGenerator)(nil)

// LLMInsightGenerator implements model.InsightGenerator using an LLM.
type LLMInsightGenerator struct {
	provider model.LLMProvider
	tmpl     *template.Template
	logger   *slog.Logger
}

// NewLLMInsightGenerator creates a generator that asks provider for industry insights.
func NewLLMInsightGenerator(provider model.LLMProvider, tmpl *template.Template, logger *slog.Logger) *LLMInsightGenerator {
	return &LLMInsightGenerator{
		provider: provider,
		tmpl:     tmpl,
		logger:   logger,
	}
}

// Generate renders the prompt for industryKey, calls the LLM and parses the
// structured answer into a payload.
func (g *LLMInsightGenerator) Generate(ctx context.Context, industryKey string) (model.InsightPayload, error) {
	var promptBuf bytes.Buffer
	if err := g.tmpl.Execute(&promptBuf, struct{ Industry string }{
		Industry: displayIndustry(industryKey),
	}); err != nil {
		return model.InsightPayload{}, fmt.Errorf("render prompt: %w", err)
	}

	raw, err := g.provider.Complete(ctx, promptBuf.String())
	if err != nil {
		return model.InsightPayload{}, fmt.Errorf("llm complete: %w", err)
	}

	payload, err := parseInsights(raw)
	if err != nil {
		return model.InsightPayload{}, fmt.Errorf("parse insights: %w", err)
	}

	g.logger.Debug("insight payload parsed",
		"industry_key", industryKey,
		"salary_ranges", len(payload.SalaryRanges),
		"demand_level", payload.DemandLevel,
	)
	return payload, nil
}

// displayIndustry turns "tech-software-development" into "tech software development".
func displayIndustry(key string) string {
	return strings.ReplaceAll(key, "-", " ")
}

// rawInsights is the JSON shape returned by the LLM (matches industryInsightsSchema).
type rawInsights struct {
	SalaryRanges      []model.SalaryRange `json:"salaryRanges"`
	GrowthRate        float64             `json:"growthRate"`
	DemandLevel       string              `json:"demandLevel"`
	TopSkills         []string            `json:"topSkills"`
	MarketOutlook     string              `json:"marketOutlook"`
	KeyTrends         []string            `json:"keyTrends"`
	RecommendedSkills []string            `json:"recommendedSkills"`
}

// parseInsights deserializes the LLM response into an InsightPayload.
// Models without structured outputs sometimes wrap JSON in a markdown fence,
// so a surrounding fence is stripped before decoding.
func parseInsights(raw string) (model.InsightPayload, error) {
	var ri rawInsights
	if err := json.Unmarshal([]byte(stripCodeFence(raw)), &ri); err != nil {
		return model.InsightPayload{}, fmt.Errorf("unmarshal insights JSON: %w", err)
	}

	demand, err := parseDemandLevel(ri.DemandLevel)
	if err != nil {
		return model.InsightPayload{}, err
	}
	outlook, err := parseMarketOutlook(ri.MarketOutlook)
	if err != nil {
		return model.InsightPayload{}, err
	}

	var ranges []model.SalaryRange
	for _, r := range ri.SalaryRanges {
		if strings.TrimSpace(r.Role) == "" || r.Max < r.Min {
			continue
		}
		ranges = append(ranges, r)
	}
	if len(ranges) == 0 {
		return model.InsightPayload{}, errors.New("no usable salary ranges")
	}

	return model.InsightPayload{
		SalaryRanges:      capItems(ranges, maxSalaryRanges),
		GrowthRate:        ri.GrowthRate,
		DemandLevel:       demand,
		TopSkills:         capItems(cleanList(ri.TopSkills), maxListItems),
		MarketOutlook:     outlook,
		KeyTrends:         capItems(cleanList(ri.KeyTrends), maxListItems),
		RecommendedSkills: capItems(cleanList(ri.RecommendedSkills), maxListItems),
	}, nil
}

func parseDemandLevel(s string) (model.DemandLevel, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "high":
		return model.DemandHigh, nil
	case "medium":
		return model.DemandMedium, nil
	case "low":
		return model.DemandLow, nil
	default:
		return "", fmt.Errorf("unknown demand level %q", s)
	}
}

func parseMarketOutlook(s string) (model.MarketOutlook, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "positive":
		return model.OutlookPositive, nil
	case "neutral":
		return model.OutlookNeutral, nil
	case "negative":
		return model.OutlookNegative, nil
	default:
		return "", fmt.Errorf("unknown market outlook %q", s)
	}
}

func stripCodeFence(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(s, "```")
	return strings.TrimSpace(s)
}

// cleanList trims items and drops empties.
func cleanList(items []string) []string {
	out := make([]string, 0, len(items))
	for _, item := range items {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}

func capItems[T any](items []T, n int) []T {
	if len(items) > n {
		return items[:n]
	}
	return items
}
