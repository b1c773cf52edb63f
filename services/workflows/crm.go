package workflows

import (
	"fmt"
	"math"
	"strings"
	"time"

	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/revops/pipeline-monitor/services/adapters"
)

// StageRule is the stage gate a deal must satisfy.
type StageRule struct {
	MinAmount      float64  `json:"min_amount"`
	RequiredFields []string `json:"required_fields"`
	MaxDaysToClose int      `json:"max_days_to_close"`
}

// StageRules holds the gate for every known stage. Unknown stages only get
// the default timeline check.
var StageRules = map[string]StageRule{
	"Prospecting":          {MinAmount: 0, RequiredFields: []string{"Name", "AccountId"}, MaxDaysToClose: 365},
	"Qualification":        {MinAmount: 5000, RequiredFields: []string{"Name", "AccountId", "Amount"}, MaxDaysToClose: 180},
	"Needs Analysis":       {MinAmount: 10000, RequiredFields: []string{"Name", "AccountId", "Amount", "Type"}, MaxDaysToClose: 120},
	"Value Proposition":    {MinAmount: 15000, RequiredFields: []string{"Name", "AccountId", "Amount", "Type"}, MaxDaysToClose: 90},
	"Proposal/Price Quote": {MinAmount: 20000, RequiredFields: []string{"Name", "AccountId", "Amount", "Type", "LeadSource"}, MaxDaysToClose: 60},
	"Negotiation/Review":   {MinAmount: 25000, RequiredFields: []string{"Name", "AccountId", "Amount", "Type", "LeadSource"}, MaxDaysToClose: 30},
	"Closed Won":           {MinAmount: 0, RequiredFields: []string{"Name", "AccountId", "Amount"}, MaxDaysToClose: 0},
}

const defaultMaxDaysToClose = 365

// EscalationAction is the follow-up attached to every BANT escalation.
const EscalationAction = "Review and update opportunity or revert stage"

var printer = message.NewPrinter(language.English)

// BANTResult is the outcome of validating one deal.
type BANTResult struct {
	OpportunityID   string   `json:"opportunity_id"`
	OpportunityName string   `json:"opportunity_name"`
	AccountName     string   `json:"account_name"`
	Stage           string   `json:"stage"`
	Amount          float64  `json:"amount"`
	IsValid         bool     `json:"is_valid"`
	Issues          []string `json:"issues"`
	Warnings        []string `json:"warnings"`
	MissingFields   []string `json:"missing_fields"`
	RiskLevel       string   `json:"risk_level"`
}

// Validation converts the result to its canonical record.
func (r BANTResult) Validation() adapters.Validation {
	return adapters.Validation{
		OpportunityID:    r.OpportunityID,
		OpportunityName:  r.OpportunityName,
		AccountName:      r.AccountName,
		Stage:            r.Stage,
		Amount:           r.Amount,
		IsValid:          r.IsValid,
		MissingFields:    append([]string{}, r.MissingFields...),
		ValidationIssues: strings.Join(r.Issues, "; "),
		RiskLevel:        r.RiskLevel,
	}
}

// Escalation is an item that needs a human decision.
type Escalation struct {
	Type            string   `json:"type"`
	OpportunityID   string   `json:"opportunity_id"`
	OpportunityName string   `json:"opportunity_name"`
	Stage           string   `json:"stage"`
	Issues          []string `json:"issues"`
	ActionRequired  string   `json:"action_required"`
}

// ValidateBANT checks budget, authority, need and timeline for a deal.
func ValidateBANT(deal Deal, now time.Time) BANTResult {
	stage := deal.StageName
	rule, known := StageRules[stage]
	maxDays := defaultMaxDaysToClose
	if known {
		maxDays = rule.MaxDaysToClose
	}

	issues := []string{}
	warnings := []string{}
	missing := []string{}

	if deal.Amount < rule.MinAmount {
		issues = append(issues, fmt.Sprintf("Budget: Amount %s below minimum %s for %s",
			dollars(deal.Amount), dollars(rule.MinAmount), stage))
	}

	for _, field := range rule.RequiredFields {
		if !hasField(deal, field) {
			missing = append(missing, field)
			issues = append(issues, fmt.Sprintf("Authority: Missing required field '%s'", field))
		}
	}

	if stage != "Prospecting" && stage != "Qualification" && deal.Type == "" {
		warnings = append(warnings, "Need: Opportunity type not specified")
	}

	switch days, ok := DaysToClose(deal.CloseDate, now); {
	case !ok:
		warnings = append(warnings, "Timeline: Invalid close date format")
	case days == nil:
		issues = append(issues, "Timeline: Close date not set")
	case *days < 0:
		issues = append(issues, "Timeline: Close date is in the past")
	case *days > maxDays:
		warnings = append(warnings, fmt.Sprintf("Timeline: Close date %d days away (max %d for %s)", *days, maxDays, stage))
	}

	return BANTResult{
		OpportunityID:   deal.ID,
		OpportunityName: deal.Name,
		AccountName:     deal.AccountName,
		Stage:           stage,
		Amount:          deal.Amount,
		IsValid:         len(issues) == 0,
		Issues:          issues,
		Warnings:        warnings,
		MissingFields:   missing,
		RiskLevel:       RiskLevel(len(issues), len(warnings)),
	}
}

// RiskLevel grades a validation: HIGH above two issues, MEDIUM with any
// issue or more than one warning, LOW otherwise.
func RiskLevel(issues, warnings int) string {
	switch {
	case issues > 2:
		return adapters.RiskLevelHigh
	case issues > 0 || warnings > 1:
		return adapters.RiskLevelMedium
	default:
		return adapters.RiskLevelLow
	}
}

// ResultsAtRisk keeps the results graded level.
func ResultsAtRisk(results []BANTResult, level string) []BANTResult {
	out := []BANTResult{}
	for _, r := range results {
		if r.RiskLevel == level {
			out = append(out, r)
		}
	}
	return out
}

// StageGateViolations returns the HIGH risk results, the deals that need
// attention before they move on.
func StageGateViolations(results []BANTResult) []BANTResult {
	return ResultsAtRisk(results, adapters.RiskLevelHigh)
}

// EscalationItems returns the stage gate violations as escalations.
func EscalationItems(results []BANTResult) []Escalation {
	out := []Escalation{}
	for _, r := range StageGateViolations(results) {
		out = append(out, Escalation{
			Type:            "BANT_VIOLATION",
			OpportunityID:   r.OpportunityID,
			OpportunityName: r.OpportunityName,
			Stage:           r.Stage,
			Issues:          append([]string{}, r.Issues...),
			ActionRequired:  EscalationAction,
		})
	}
	return out
}

func hasField(deal Deal, field string) bool {
	switch field {
	case "Name":
		return deal.Name != ""
	case "AccountId":
		return deal.AccountID != ""
	case "Amount":
		return deal.Amount != 0
	case "Type":
		return deal.Type != ""
	case "LeadSource":
		return deal.LeadSource != ""
	}
	return false
}

func dollars(v float64) string {
	return printer.Sprintf("$%d", int64(math.Round(v)))
}
