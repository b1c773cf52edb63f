package alerts

import (
	"fmt"
	"math"
	"strings"

	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/revops/pipeline-monitor/services/adapters"
	"github.com/revops/pipeline-monitor/services/workflows"
)

var printer = message.NewPrinter(language.English)

// HighRiskThreshold separates HIGH from MEDIUM pipeline risk alerts.
const HighRiskThreshold = 70

// BANTViolation formats an escalation.
func (a *Alerter) BANTViolation(e workflows.Escalation) Payload {
	bullets := make([]string, 0, len(e.Issues))
	for _, issue := range e.Issues {
		bullets = append(bullets, "• "+issue)
	}
	action := e.ActionRequired
	if action == "" {
		action = "Review immediately"
	}

	return Payload{
		Text: "🚨 *CRM Integrity Alert: BANT Violation Detected*",
		Attachments: []Attachment{{
			Color: "danger",
			Fields: []Field{
				{Title: "Opportunity", Value: orUnknown(e.OpportunityName), Short: true},
				{Title: "Stage", Value: orUnknown(e.Stage), Short: true},
				{Title: "Issues Found", Value: strings.Join(bullets, "\n")},
				{Title: "Action Required", Value: action},
			},
			Footer: "Pipeline Health Monitor - CRM Integrity Workflow",
			Ts:     a.now().Unix(),
		}},
	}
}

// PipelineRisk formats a risky deal.
func (a *Alerter) PipelineRisk(o adapters.Opportunity, recommendation string) Payload {
	level, color := "🟡 MEDIUM", "good"
	if o.RiskScore > HighRiskThreshold {
		level, color = "🔴 HIGH", "warning"
	}
	activity := "N/A"
	if o.LastLoginDays != nil {
		activity = fmt.Sprint(*o.LastLoginDays)
	}
	if recommendation == "" {
		recommendation = "Review required"
	}

	return Payload{
		Text: level + " *Pipeline Risk Alert*",
		Attachments: []Attachment{{
			Color: color,
			Fields: []Field{
				{Title: "Opportunity", Value: orUnknown(o.Name), Short: true},
				{Title: "Account", Value: orUnknown(o.AccountName), Short: true},
				{Title: "Risk Score", Value: fmt.Sprintf("%.1f/100", o.RiskScore), Short: true},
				{Title: "Health Score", Value: fmt.Sprintf("%g/100", o.HealthScore), Short: true},
				{Title: "Last Activity", Value: activity + " days ago", Short: true},
				{Title: "Amount", Value: printer.Sprintf("$%d", int64(math.Round(o.Amount))), Short: true},
				{Title: "Recommendation", Value: recommendation},
			},
			Footer: "Pipeline Health Monitor - Pipeline Health Workflow",
			Ts:     a.now().Unix(),
		}},
	}
}

func orUnknown(s string) string {
	if s == "" {
		return "Unknown"
	}
	return s
}
