package model

import (
	"context"
	"strings"
	"time"
)

// RefreshInterval is how long an industry insight stays fresh after generation.
const RefreshInterval = 7 * 24 * time.Hour

// DemandLevel is the hiring demand reported for an industry.
type DemandLevel string

const (
	DemandHigh   DemandLevel = "High"
	DemandMedium DemandLevel = "Medium"
	DemandLow    DemandLevel = "Low"
)

// MarketOutlook is the overall direction of an industry's job market.
type MarketOutlook string

const (
	OutlookPositive MarketOutlook = "Positive"
	OutlookNeutral  MarketOutlook = "Neutral"
	OutlookNegative MarketOutlook = "Negative"
)

// SalaryRange is the compensation band for one role, in yearly USD.
type SalaryRange struct {
	Role     string  `json:"role"`
	Min      float64 `json:"min"`
	Max      float64 `json:"max"`
	Median   float64 `json:"median"`
	Location string  `json:"location"`
}

// InsightPayload is the generator-defined body of an industry insight.
// The cache never looks inside it.
type InsightPayload struct {
	SalaryRanges      []SalaryRange `json:"salaryRanges"`
	GrowthRate        float64       `json:"growthRate"`
	DemandLevel       DemandLevel   `json:"demandLevel"`
	TopSkills         []string      `json:"topSkills"`
	MarketOutlook     MarketOutlook `json:"marketOutlook"`
	KeyTrends         []string      `json:"keyTrends"`
	RecommendedSkills []string      `json:"recommendedSkills"`
}

// IndustryInsight is the cached, shared insight record for one industry.
type IndustryInsight struct {
	IndustryKey string         `json:"industryKey"`
	Payload     InsightPayload `json:"payload"`
	LastUpdated time.Time      `json:"lastUpdated"`
	NextUpdate  time.Time      `json:"nextUpdate"`
}

// IsFresh reports whether the record may still be served at now.
func (i IndustryInsight) IsFresh(now time.Time) bool {
	return now.Before(i.NextUpdate)
}

// NormalizeIndustryKey lower-cases key, trims it and replaces inner spaces with dashes.
func NormalizeIndustryKey(key string) string {
	return strings.Join(strings.Fields(strings.ToLower(key)), "-")
}

// FormatIndustryKey builds the key the onboarding form submits, e.g.
// ("tech", "Software Development") -> "tech-software-development".
func FormatIndustryKey(industry, subIndustry string) string {
	if strings.TrimSpace(subIndustry) == "" {
		return NormalizeIndustryKey(industry)
	}
	return NormalizeIndustryKey(industry) + "-" + NormalizeIndustryKey(subIndustry)
}

// InsightGenerator produces a fresh payload for an industry. Calls are slow and may fail.
type InsightGenerator interface {
	Generate(ctx context.Context, industryKey string) (InsightPayload, error)
}

// InsightStore persists one insight record per industry key.
type InsightStore interface {
	// Get returns found=false when no record exists; a stale record is still found.
	Get(ctx context.Context, industryKey string) (IndustryInsight, bool, error)
	// Upsert inserts or fully replaces the record for its key.
	Upsert(ctx context.Context, insight IndustryInsight) error
	// ListStale returns the keys whose NextUpdate is at or before asOf.
	ListStale(ctx context.Context, asOf time.Time) ([]string, error)
	// List returns every stored record ordered by key.
	List(ctx context.Context) ([]IndustryInsight, error)
}

// LLMProvider sends a prompt to an LLM and returns the raw text response.
type LLMProvider interface {
	Complete(ctx context.Context, prompt string) (string, error)
}
