package audit

import (
	"regexp"
	"sort"
	"time"

	"github.com/tradewire/tradewire/internal/models"
)

// Severity bands for error insights
const (
	SeverityHigh   = "high"
	SeverityMedium = "medium"
	SeverityLow    = "low"
)

// InsightRule is one entry of the ordered classification table. Rules are
// evaluated top to bottom and the first match wins. Classification is
// best-effort string matching, not authoritative error typing.
type InsightRule struct {
	Pattern      *regexp.Regexp
	Type         string
	Severity     string
	SuggestedFix string
}

// defaultRules covers the brokerage failure modes worth calling out to the
// webhook owner. Order matters: more specific patterns come first.
var defaultRules = []InsightRule{
	{
		Pattern:      regexp.MustCompile(`(?i)insufficient (funds|balance|buying power)`),
		Type:         "insufficient_funds",
		Severity:     SeverityHigh,
		SuggestedFix: "The brokerage account does not have enough buying power for this order size. Reduce the default quantity or fund the account.",
	},
	{
		Pattern:      regexp.MustCompile(`(?i)(unauthorized|forbidden|invalid credentials|authentication|api.?key|401|403)`),
		Type:         "auth_failure",
		Severity:     SeverityHigh,
		SuggestedFix: "The stored brokerage credentials were rejected. Re-enter the API key and secret for this broker.",
	},
	{
		Pattern:      regexp.MustCompile(`(?i)missing credentials`),
		Type:         "missing_credentials",
		Severity:     SeverityHigh,
		SuggestedFix: "No credentials are stored for this broker. Add credentials before routing alerts to it.",
	},
	{
		Pattern:      regexp.MustCompile(`(?i)(rate limit|too many requests|429)`),
		Type:         "rate_limited",
		Severity:     SeverityMedium,
		SuggestedFix: "The brokerage is rate limiting this account. Space out alerts or consolidate strategies onto fewer webhooks.",
	},
	{
		Pattern:      regexp.MustCompile(`(?i)market (is )?(closed|not open)|outside (of )?(regular |market )?(trading )?hours`),
		Type:         "market_closed",
		Severity:     SeverityMedium,
		SuggestedFix: "Orders are arriving outside market hours. Restrict the strategy's alert window or use a broker that supports extended hours.",
	},
	{
		Pattern:      regexp.MustCompile(`(?i)(invalid|unknown|unsupported) (symbol|instrument|ticker)`),
		Type:         "invalid_symbol",
		Severity:     SeverityMedium,
		SuggestedFix: "The symbol in the alert is not tradable at this broker. Check the symbol mapping between the signal source and the broker.",
	},
	{
		Pattern:      regexp.MustCompile(`(?i)(timeout|timed out|deadline exceeded|connection (refused|reset)|no such host|network)`),
		Type:         "connectivity",
		Severity:     SeverityMedium,
		SuggestedFix: "The brokerage API could not be reached in time. This is usually transient; persistent occurrences suggest a wrong base URL or an offline local bridge.",
	},
	{
		Pattern:      regexp.MustCompile(`(?i)(position|order) not found`),
		Type:         "missing_position",
		Severity:     SeverityLow,
		SuggestedFix: "The alert referenced a position or order the broker does not know. The strategy state may have drifted from the account.",
	},
}

// InsightAggregator upserts error insights keyed by (webhook id, pattern
// type). Callers must hold the audit store lock.
type InsightAggregator struct {
	rules    []InsightRule
	insights map[insightKey]*models.ErrorInsight
}

type insightKey struct {
	webhookID   uint
	patternType string
}

// NewInsightAggregator creates an aggregator with the default rule table
func NewInsightAggregator() *InsightAggregator {
	return &InsightAggregator{
		rules:    defaultRules,
		insights: make(map[insightKey]*models.ErrorInsight),
	}
}

// Record classifies an error message and upserts the matching insight:
// increment frequency and refresh the timestamp, or create on first match.
// Messages matching no rule are ignored.
func (a *InsightAggregator) Record(webhookID uint, message string, at time.Time) {
	for _, rule := range a.rules {
		if !rule.Pattern.MatchString(message) {
			continue
		}
		key := insightKey{webhookID: webhookID, patternType: rule.Type}
		if existing, ok := a.insights[key]; ok {
			existing.Frequency++
			existing.LastSeen = at
		} else {
			a.insights[key] = &models.ErrorInsight{
				WebhookID:    webhookID,
				PatternType:  rule.Type,
				Severity:     rule.Severity,
				SuggestedFix: rule.SuggestedFix,
				Frequency:    1,
				LastSeen:     at,
			}
		}
		return
	}
}

// Insights returns the insights for a webhook sorted by severity descending,
// then frequency descending.
func (a *InsightAggregator) Insights(webhookID uint) []models.ErrorInsight {
	var out []models.ErrorInsight
	for key, insight := range a.insights {
		if key.webhookID == webhookID {
			out = append(out, *insight)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		si, sj := severityRank(out[i].Severity), severityRank(out[j].Severity)
		if si != sj {
			return si > sj
		}
		return out[i].Frequency > out[j].Frequency
	})
	return out
}

func severityRank(severity string) int {
	switch severity {
	case SeverityHigh:
		return 3
	case SeverityMedium:
		return 2
	case SeverityLow:
		return 1
	default:
		return 0
	}
}
