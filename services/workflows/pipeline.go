// Package workflows holds the revenue-ops rules that derive stalled flags,
// risk scores and BANT validation results from raw CRM deals.
package workflows

import (
	"cmp"
	"math"
	"slices"
	"time"

	"github.com/revops/pipeline-monitor/services/adapters"
)

// Deal is an opportunity as the CRM stores it.
type Deal struct {
	ID          string  `json:"Id"`
	Name        string  `json:"Name"`
	AccountID   string  `json:"AccountId"`
	AccountName string  `json:"AccountName"`
	StageName   string  `json:"StageName"`
	Type        string  `json:"Type,omitempty"`
	LeadSource  string  `json:"LeadSource,omitempty"`
	Amount      float64 `json:"Amount"`
	Probability float64 `json:"Probability"`
	// CloseDate is an ISO-8601 date or timestamp; empty when unset.
	CloseDate string `json:"CloseDate,omitempty"`
}

// Usage is product usage for the deal's account. A nil LastLoginDays means
// no usage data.
type Usage struct {
	LastLoginDays *int `json:"last_login_days"`
	Sessions30d   int  `json:"sessions_30d"`
}

// PipelineAssessment is the derived health of one deal.
type PipelineAssessment struct {
	DaysToClose    *int    `json:"days_to_close"`
	IsStalled      bool    `json:"is_stalled"`
	RiskScore      float64 `json:"risk_score"`
	Recommendation string  `json:"recommendation"`
}

// Recommendations, most urgent first.
const (
	RecommendUrgent  = "URGENT: Schedule executive review"
	RecommendAction  = "ACTION: Re-engage customer immediately"
	RecommendMonitor = "MONITOR: Increase touch points"
	RecommendSupport = "SUPPORT: Provide customer success intervention"
	RecommendHealthy = "HEALTHY: Continue normal cadence"
)

// AssessPipeline scores one deal against its account health and usage.
func AssessPipeline(deal Deal, healthScore float64, usage Usage, now time.Time) PipelineAssessment {
	days, _ := DaysToClose(deal.CloseDate, now)
	stalled := IsStalled(healthScore, usage.LastLoginDays, usage.Sessions30d, days)
	risk := RiskScore(healthScore, usage.LastLoginDays, usage.Sessions30d, days, deal.Probability)
	return PipelineAssessment{
		DaysToClose:    days,
		IsStalled:      stalled,
		RiskScore:      risk,
		Recommendation: Recommendation(stalled, risk, healthScore),
	}
}

// DaysToClose returns whole days from now until closeDate, rounded down.
// It returns nil, true for an empty date and nil, false for an unparseable one.
func DaysToClose(closeDate string, now time.Time) (*int, bool) {
	if closeDate == "" {
		return nil, true
	}
	t, err := parseDate(closeDate)
	if err != nil {
		return nil, false
	}
	d := int(math.Floor(t.Sub(now).Hours() / 24))
	return &d, true
}

func parseDate(s string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, nil
	}
	return time.Parse(time.DateOnly, s)
}

// IsStalled reports whether at least two stall signals are present: low
// health, no login for over two weeks, fewer than five sessions, and a
// close date already passed or more than 90 days out.
func IsStalled(healthScore float64, lastLoginDays *int, sessions30d int, daysToClose *int) bool {
	signals := 0
	if healthScore < 50 {
		signals++
	}
	if lastLoginDays != nil && *lastLoginDays > 14 {
		signals++
	}
	if sessions30d < 5 {
		signals++
	}
	if daysToClose != nil && (*daysToClose < 0 || *daysToClose > 90) {
		signals++
	}
	return signals >= 2
}

// RiskScore is a composite 0-100 score, higher meaning riskier:
// health up to 30 points, inactivity up to 25, low engagement up to 20,
// timeline up to 15 and win probability up to 10. Only nil counts as
// unknown; a zero day count is a measurement.
func RiskScore(healthScore float64, lastLoginDays *int, sessions30d int, daysToClose *int, probability float64) float64 {
	risk := (100 - healthScore) * 0.3

	if lastLoginDays != nil {
		risk += math.Min(float64(*lastLoginDays)/60*25, 25)
	} else {
		risk += 15
	}

	risk += math.Max(0, float64(20-sessions30d)/20*20)

	switch {
	case daysToClose == nil:
		risk += 10
	case *daysToClose < 0:
		risk += 15
	case *daysToClose > 90:
		risk += 10
	}

	risk += (100 - probability) * 0.1

	return math.Min(100, math.Max(0, risk))
}

// Recommendation picks the next action for a deal.
func Recommendation(isStalled bool, riskScore, healthScore float64) string {
	switch {
	case isStalled && riskScore > 70:
		return RecommendUrgent
	case isStalled && riskScore > 50:
		return RecommendAction
	case riskScore > 60:
		return RecommendMonitor
	case healthScore < 50:
		return RecommendSupport
	default:
		return RecommendHealthy
	}
}

// StalledDeals keeps the stalled opportunities, highest risk first. Equal
// scores keep their input order.
func StalledDeals(opps []adapters.Opportunity) []adapters.Opportunity {
	out := []adapters.Opportunity{}
	for _, o := range opps {
		if o.IsStalled {
			out = append(out, o)
		}
	}
	slices.SortStableFunc(out, func(a, b adapters.Opportunity) int {
		return cmp.Compare(b.RiskScore, a.RiskScore)
	})
	return out
}
