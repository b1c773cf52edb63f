package workflows

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/revops/pipeline-monitor/services/adapters"
)

var now = time.Date(2026, 3, 2, 9, 30, 0, 0, time.UTC)

func intPtr(v int) *int { return &v }

func TestDaysToClose(t *testing.T) {
	tests := []struct {
		name   string
		date   string
		want   *int
		wantOK bool
	}{
		{"empty", "", nil, true},
		{"date only", "2026-03-12", intPtr(9), true},
		{"timestamp", "2026-03-12T09:30:00Z", intPtr(10), true},
		{"yesterday", "2026-03-01", intPtr(-2), true},
		{"garbage", "next tuesday", nil, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := DaysToClose(tt.date, now)
			assert.Equal(t, tt.wantOK, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestIsStalled(t *testing.T) {
	tests := []struct {
		name     string
		health   float64
		login    *int
		sessions int
		days     *int
		want     bool
	}{
		{"healthy", 80, intPtr(1), 20, intPtr(30), false},
		{"one signal", 40, intPtr(1), 20, intPtr(30), false},
		{"low health and inactive", 40, intPtr(20), 20, intPtr(30), true},
		{"few sessions and overdue", 80, intPtr(1), 2, intPtr(-1), true},
		{"far close date and low health", 45, nil, 10, intPtr(91), true},
		{"unknown data is not a signal", 80, nil, 10, nil, false},
		{"boundaries", 50, intPtr(14), 5, intPtr(90), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, IsStalled(tt.health, tt.login, tt.sessions, tt.days))
		})
	}
}

func TestRiskScore(t *testing.T) {
	tests := []struct {
		name     string
		health   float64
		login    *int
		sessions int
		days     *int
		prob     float64
		want     float64
	}{
		// 0 + 0 + 0 + 0 + 0
		{"perfect", 100, intPtr(0), 20, intPtr(30), 100, 0},
		// 15 + 12.5 + 10 + 0 + 5
		{"mid", 50, intPtr(30), 10, intPtr(30), 50, 42.5},
		// 15 + 15 (unknown login) + 20 + 10 (unknown date) + 5
		{"unknown usage", 50, nil, 0, nil, 50, 65},
		// 30 + 25 + 20 + 15 + 10 = 100
		{"worst", 0, intPtr(120), 0, intPtr(-5), 0, 100},
		// 9 + 25 + 20 + 10 + 9
		{"far out", 70, intPtr(90), 0, intPtr(200), 10, 73},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.want, RiskScore(tt.health, tt.login, tt.sessions, tt.days, tt.prob), 1e-9)
		})
	}
}

func TestRecommendation(t *testing.T) {
	tests := []struct {
		stalled bool
		risk    float64
		health  float64
		want    string
	}{
		{true, 71, 80, RecommendUrgent},
		{true, 70, 80, RecommendAction},
		{true, 50, 80, RecommendHealthy},
		{false, 61, 80, RecommendMonitor},
		{false, 60, 49, RecommendSupport},
		{true, 40, 40, RecommendSupport},
		{false, 10, 90, RecommendHealthy},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, Recommendation(tt.stalled, tt.risk, tt.health))
	}
}

func TestAssessPipeline(t *testing.T) {
	deal := Deal{ID: "006A", Name: "Acme", CloseDate: "2026-02-20", Probability: 20}
	a := AssessPipeline(deal, 30, Usage{LastLoginDays: intPtr(45), Sessions30d: 1}, now)

	require.NotNil(t, a.DaysToClose)
	assert.Equal(t, -11, *a.DaysToClose)
	assert.True(t, a.IsStalled)
	// 21 + 18.75 + 19 + 15 + 8
	assert.InDelta(t, 81.75, a.RiskScore, 1e-9)
	assert.Equal(t, RecommendUrgent, a.Recommendation)
}

func TestValidateBANT(t *testing.T) {
	t.Run("valid negotiation", func(t *testing.T) {
		r := ValidateBANT(Deal{
			ID: "006A", Name: "Acme", AccountID: "001A", AccountName: "Acme Corp",
			StageName: "Negotiation/Review", Type: "New Business", LeadSource: "Web",
			Amount: 30000, CloseDate: "2026-03-20",
		}, now)
		assert.True(t, r.IsValid)
		assert.Empty(t, r.Issues)
		assert.Empty(t, r.Warnings)
		assert.Equal(t, adapters.RiskLevelLow, r.RiskLevel)
	})

	t.Run("budget authority and timeline", func(t *testing.T) {
		r := ValidateBANT(Deal{
			ID: "006B", Name: "Globex", AccountID: "001B",
			StageName: "Proposal/Price Quote", Amount: 12500, CloseDate: "2026-01-15",
		}, now)
		assert.False(t, r.IsValid)
		assert.Equal(t, []string{
			"Budget: Amount $12,500 below minimum $20,000 for Proposal/Price Quote",
			"Authority: Missing required field 'Type'",
			"Authority: Missing required field 'LeadSource'",
			"Timeline: Close date is in the past",
		}, r.Issues)
		assert.Equal(t, []string{"Need: Opportunity type not specified"}, r.Warnings)
		assert.Equal(t, []string{"Type", "LeadSource"}, r.MissingFields)
		assert.Equal(t, adapters.RiskLevelHigh, r.RiskLevel)
	})

	t.Run("timeline warnings", func(t *testing.T) {
		r := ValidateBANT(Deal{
			Name: "Initech", AccountID: "001C", StageName: "Value Proposition",
			Type: "Upsell", Amount: 15000, CloseDate: "2026-09-01",
		}, now)
		assert.True(t, r.IsValid)
		require.Len(t, r.Warnings, 1)
		assert.Equal(t, "Timeline: Close date 182 days away (max 90 for Value Proposition)", r.Warnings[0])
		assert.Equal(t, adapters.RiskLevelLow, r.RiskLevel)
	})

	t.Run("missing and invalid dates", func(t *testing.T) {
		missing := ValidateBANT(Deal{Name: "A", AccountID: "1", StageName: "Prospecting"}, now)
		assert.Equal(t, []string{"Timeline: Close date not set"}, missing.Issues)
		assert.Equal(t, adapters.RiskLevelMedium, missing.RiskLevel)

		invalid := ValidateBANT(Deal{Name: "A", AccountID: "1", StageName: "Needs Analysis", Amount: 20000, CloseDate: "soon"}, now)
		assert.False(t, invalid.IsValid)
		assert.Equal(t, []string{"Authority: Missing required field 'Type'"}, invalid.Issues)
		assert.Equal(t, []string{"Need: Opportunity type not specified", "Timeline: Invalid close date format"}, invalid.Warnings)
	})

	t.Run("unknown stage uses the default horizon", func(t *testing.T) {
		r := ValidateBANT(Deal{StageName: "Custom", CloseDate: "2027-06-01"}, now)
		assert.True(t, r.IsValid)
		assert.Equal(t, []string{"Need: Opportunity type not specified", "Timeline: Close date 455 days away (max 365 for Custom)"}, r.Warnings)
		assert.Equal(t, adapters.RiskLevelMedium, r.RiskLevel)
	})
}

func TestRiskLevel(t *testing.T) {
	assert.Equal(t, adapters.RiskLevelHigh, RiskLevel(3, 0))
	assert.Equal(t, adapters.RiskLevelMedium, RiskLevel(1, 0))
	assert.Equal(t, adapters.RiskLevelMedium, RiskLevel(0, 2))
	assert.Equal(t, adapters.RiskLevelLow, RiskLevel(0, 1))
}

func TestEscalationItems(t *testing.T) {
	results := []BANTResult{
		{OpportunityID: "1", RiskLevel: adapters.RiskLevelLow},
		{OpportunityID: "2", OpportunityName: "Globex", Stage: "Negotiation/Review", Issues: []string{"a", "b", "c"}, RiskLevel: adapters.RiskLevelHigh},
		{OpportunityID: "3", RiskLevel: adapters.RiskLevelMedium},
	}
	items := EscalationItems(results)
	require.Len(t, items, 1)
	assert.Equal(t, Escalation{
		Type:            "BANT_VIOLATION",
		OpportunityID:   "2",
		OpportunityName: "Globex",
		Stage:           "Negotiation/Review",
		Issues:          []string{"a", "b", "c"},
		ActionRequired:  EscalationAction,
	}, items[0])

	assert.NotNil(t, EscalationItems(nil))
}

func TestBANTResult_Validation(t *testing.T) {
	r := BANTResult{
		OpportunityID: "006B", OpportunityName: "Globex", Stage: "Qualification",
		Issues: []string{"one", "two"}, MissingFields: []string{"Amount"}, RiskLevel: adapters.RiskLevelMedium,
	}
	v := r.Validation()
	assert.Equal(t, "one; two", v.ValidationIssues)
	assert.Equal(t, []string{"Amount"}, v.MissingFields)
	assert.Equal(t, adapters.RiskLevelMedium, v.RiskLevel)
	assert.False(t, v.IsValid)
}

func TestStalledDeals(t *testing.T) {
	opps := []adapters.Opportunity{
		{ID: "a", IsStalled: true, RiskScore: 55},
		{ID: "b", IsStalled: false, RiskScore: 90},
		{ID: "c", IsStalled: true, RiskScore: 82},
		{ID: "d", IsStalled: true, RiskScore: 55},
	}

	got := StalledDeals(opps)

	ids := make([]string, 0, len(got))
	for _, o := range got {
		ids = append(ids, o.ID)
	}
	assert.Equal(t, []string{"c", "a", "d"}, ids)
	assert.Equal(t, "a", opps[0].ID, "input is not reordered")

	assert.NotNil(t, StalledDeals(nil))
	assert.Empty(t, StalledDeals(nil))
}

func TestStageGateViolations(t *testing.T) {
	results := []BANTResult{
		{OpportunityID: "1", RiskLevel: adapters.RiskLevelHigh},
		{OpportunityID: "2", RiskLevel: adapters.RiskLevelLow},
		{OpportunityID: "3", RiskLevel: adapters.RiskLevelHigh},
		{OpportunityID: "4", RiskLevel: adapters.RiskLevelMedium},
	}

	high := StageGateViolations(results)
	require.Len(t, high, 2)
	assert.Equal(t, "1", high[0].OpportunityID)
	assert.Equal(t, "3", high[1].OpportunityID)

	medium := ResultsAtRisk(results, adapters.RiskLevelMedium)
	require.Len(t, medium, 1)
	assert.Equal(t, "4", medium[0].OpportunityID)

	assert.Empty(t, ResultsAtRisk(results, "UNKNOWN"))
}

func TestRiskScore_ZeroIsMeasured(t *testing.T) {
	// Logged in today and closing today are facts, not missing data.
	assert.InDelta(t, 0, RiskScore(100, intPtr(0), 20, intPtr(0), 100), 0.001)
	assert.InDelta(t, 25, RiskScore(100, nil, 20, nil, 100), 0.001)
	assert.False(t, IsStalled(40, intPtr(0), 20, intPtr(0)))
}
