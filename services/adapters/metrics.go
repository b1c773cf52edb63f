package adapters

import (
	"fmt"
	"math"
	"strconv"

	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

// AtRiskThreshold is the risk score at or above which a deal counts as at risk.
const AtRiskThreshold = 70

var printer = message.NewPrinter(language.English)

// ComputeOpportunityMetrics derives the pipeline-health summary cards.
//
// Percentages render with one decimal, except that an empty input renders
// them as "0%". Healthy is total minus at-risk minus stalled, so overlapping
// deals can drive it to zero.
func ComputeOpportunityMetrics(records []Opportunity) []Metric {
	total := len(records)
	atRisk, stalled := 0, 0
	var pipelineValue, healthSum, riskSum float64
	for _, r := range records {
		if r.RiskScore >= AtRiskThreshold {
			atRisk++
		}
		if r.IsStalled {
			stalled++
		}
		pipelineValue += r.Amount
		healthSum += r.HealthScore
		riskSum += r.RiskScore
	}
	healthy := total - atRisk - stalled

	return []Metric{
		{Label: "Total Opportunities", Value: strconv.Itoa(total), Trend: "up"},
		{Label: "At Risk", Value: strconv.Itoa(atRisk), Change: percentOrZero(atRisk, total)},
		{Label: "Healthy", Value: strconv.Itoa(healthy), Change: percentOrZero(healthy, total)},
		{Label: "Stalled Deals", Value: strconv.Itoa(stalled), Change: percentOrZero(stalled, total)},
		{Label: "Pipeline Value", Value: formatCurrency(pipelineValue)},
		{Label: "Avg Health Score", Value: formatRounded(mean(healthSum, total))},
		{Label: "Avg Risk Score", Value: formatRounded(mean(riskSum, total))},
	}
}

// ComputeValidationMetrics derives the CRM-integrity summary cards.
//
// The valid percentage always has one decimal ("0.0%" when empty) while the
// high-risk percentage collapses to "0%" when empty. Dashboards and their
// tests depend on both spellings.
func ComputeValidationMetrics(records []Validation) []Metric {
	total := len(records)
	valid, highRisk := 0, 0
	for _, r := range records {
		if r.IsValid {
			valid++
		}
		if r.RiskLevel == RiskLevelHigh {
			highRisk++
		}
	}

	validRate := 0.0
	if total > 0 {
		validRate = float64(valid) / float64(total) * 100
	}

	return []Metric{
		{Label: "Total Records", Value: strconv.Itoa(total)},
		{Label: "Valid", Value: strconv.Itoa(valid), Change: fmt.Sprintf("%.1f%%", validRate)},
		{Label: "High Risk", Value: strconv.Itoa(highRisk), Change: percentOrZero(highRisk, total)},
	}
}

func percentOrZero(part, total int) string {
	if total == 0 {
		return "0%"
	}
	return fmt.Sprintf("%.1f%%", float64(part)/float64(total)*100)
}

func mean(sum float64, n int) float64 {
	if n == 0 {
		return 0
	}
	return sum / float64(n)
}

func formatRounded(v float64) string {
	return strconv.FormatInt(int64(math.Round(v)), 10)
}

func formatCurrency(v float64) string {
	return printer.Sprintf("$%d", int64(math.Round(v)))
}
