// Package mockdata is the local dataset served when the platform cannot be
// used. It is deterministic for a given clock and never fails.
package mockdata

import (
	"fmt"
	"time"

	"github.com/revops/pipeline-monitor/services/adapters"
	"github.com/revops/pipeline-monitor/services/pagination"
	"github.com/revops/pipeline-monitor/services/workflows"
)

// DatasetSize is the number of opportunities in the local dataset.
const DatasetSize = 60

const defaultPageSize = 50

// Account is the health and usage side of a deal.
type Account struct {
	ID          string
	HealthScore float64
	Usage       workflows.Usage
}

// Source serves the local dataset.
type Source struct {
	now      func() time.Time
	deals    []workflows.Deal
	accounts map[string]Account
}

// New builds the dataset relative to now. A nil now uses time.Now.
func New(now func() time.Time) *Source {
	if now == nil {
		now = time.Now
	}
	s := &Source{now: now, accounts: make(map[string]Account, len(seedAccounts))}
	for _, a := range seedAccounts {
		s.accounts[a.ID] = a
	}
	s.deals = generateDeals(now(), DatasetSize)
	return s
}

// Deals returns a copy of the raw deals.
func (s *Source) Deals() []workflows.Deal {
	out := make([]workflows.Deal, len(s.deals))
	copy(out, s.deals)
	return out
}

// Opportunities scores every deal.
func (s *Source) Opportunities() []adapters.Opportunity {
	now := s.now()
	out := make([]adapters.Opportunity, 0, len(s.deals))
	for _, d := range s.deals {
		acct := s.accounts[d.AccountID]
		a := workflows.AssessPipeline(d, acct.HealthScore, acct.Usage, now)
		opp := adapters.Opportunity{
			ID:            d.ID,
			Name:          d.Name,
			AccountName:   d.AccountName,
			Stage:         d.StageName,
			Amount:        d.Amount,
			HealthScore:   acct.HealthScore,
			RiskScore:     a.RiskScore,
			IsStalled:     a.IsStalled,
			LastLoginDays: acct.Usage.LastLoginDays,
		}
		if acct.Usage.LastLoginDays != nil {
			sessions := acct.Usage.Sessions30d
			opp.Sessions30d = &sessions
		}
		out = append(out, opp)
	}
	return out
}

// BANTResults validates every deal.
func (s *Source) BANTResults() []workflows.BANTResult {
	now := s.now()
	out := make([]workflows.BANTResult, 0, len(s.deals))
	for _, d := range s.deals {
		out = append(out, workflows.ValidateBANT(d, now))
	}
	return out
}

// Validations returns the canonical form of BANTResults.
func (s *Source) Validations() []adapters.Validation {
	return validations(s.BANTResults())
}

// PipelineHealth returns one page of opportunities. Metrics summarise every
// row the filters select, not only the page. An is_stalled=true filter keeps
// stalled deals, highest risk first.
func (s *Source) PipelineHealth(params pagination.Params) (pagination.Page[adapters.Opportunity], []adapters.Metric) {
	all := s.Opportunities()
	if params.Filters[adapters.FilterStalled] == "true" {
		all = workflows.StalledDeals(all)
	}
	return paginate(all, params), adapters.ComputeOpportunityMetrics(all)
}

// CRMIntegrity returns one page of validations. Metrics summarise every row
// the filters select. A risk_level filter keeps results of that grade.
func (s *Source) CRMIntegrity(params pagination.Params) (pagination.Page[adapters.Validation], []adapters.Metric) {
	results := s.BANTResults()
	switch level := params.Filters[adapters.FilterRiskLevel]; level {
	case "":
	case adapters.RiskLevelHigh:
		results = workflows.StageGateViolations(results)
	default:
		results = workflows.ResultsAtRisk(results, level)
	}
	all := validations(results)
	return paginate(all, params), adapters.ComputeValidationMetrics(all)
}

func validations(results []workflows.BANTResult) []adapters.Validation {
	out := make([]adapters.Validation, 0, len(results))
	for _, r := range results {
		out = append(out, r.Validation())
	}
	return out
}

func paginate[T any](all []T, params pagination.Params) pagination.Page[T] {
	if params.Page < 1 {
		params.Page = 1
	}
	if params.PageSize < 1 {
		params.PageSize = defaultPageSize
	}

	start, end := pagination.Window(params.Page, params.PageSize, len(all))
	data := append([]T{}, all[start:end]...)

	return pagination.Page[T]{
		Data: data,
		Pagination: pagination.Block{
			Page:     params.Page,
			PageSize: params.PageSize,
			Total:    len(all),
			HasMore:  pagination.HasMore(params.Page, params.PageSize, len(all)),
		},
	}
}

func intPtr(v int) *int { return &v }

var seedAccounts = []Account{
	{ID: "0015g00000XYZ1QAAX", HealthScore: 85, Usage: workflows.Usage{LastLoginDays: intPtr(2), Sessions30d: 42}},
	{ID: "0015g00000ABC2QAAX", HealthScore: 45, Usage: workflows.Usage{LastLoginDays: intPtr(21), Sessions30d: 3}},
	{ID: "0015g00000DEF3QAAX", HealthScore: 92, Usage: workflows.Usage{LastLoginDays: intPtr(1), Sessions30d: 58}},
	{ID: "0015g00000GHI4QAAX", HealthScore: 38, Usage: workflows.Usage{LastLoginDays: intPtr(45), Sessions30d: 1}},
	{ID: "0015g00000JKL5QAAX", HealthScore: 67},
}

var seedDeals = []workflows.Deal{
	{Name: "Enterprise Software License", AccountID: "0015g00000XYZ1QAAX", AccountName: "Mock Corp Industries", Type: "New Business", LeadSource: "Web", Probability: 75},
	{Name: "Cloud Migration Services", AccountID: "0015g00000ABC2QAAX", AccountName: "Demo Solutions LLC", Type: "Existing Business", LeadSource: "Partner Referral", Probability: 60},
	{Name: "Data Analytics Platform", AccountID: "0015g00000DEF3QAAX", AccountName: "Test Enterprises", Type: "New Business", LeadSource: "Inbound", Probability: 50},
	{Name: "Professional Services", AccountID: "0015g00000GHI4QAAX", AccountName: "Sample Tech Co", Type: "New Business", LeadSource: "Campaign", Probability: 25},
	{Name: "Annual Subscription Renewal", AccountID: "0015g00000JKL5QAAX", AccountName: "Example Systems Inc", Type: "Existing Business", LeadSource: "Customer", Probability: 80},
}

var (
	seedStages = []string{
		"Prospecting",
		"Qualification",
		"Needs Analysis",
		"Value Proposition",
		"Proposal/Price Quote",
		"Negotiation/Review",
		"Closed Won",
	}
	seedAmounts      = []float64{75000, 120000, 45000, 15000, 95000, 4000, 18000}
	seedCloseOffsets = []int{30, -5, 45, 120, 10, 200, 60, 25}
)

// generateDeals spreads the seeds over stages, amounts and close dates so
// every workflow rule fires somewhere in the dataset.
func generateDeals(now time.Time, n int) []workflows.Deal {
	deals := make([]workflows.Deal, 0, n)
	for i := 0; i < n; i++ {
		d := seedDeals[i%len(seedDeals)]
		d.ID = fmt.Sprintf("0065g%08dAAA", i+1)
		d.Name = fmt.Sprintf("%s #%d", d.Name, i/len(seedDeals)+1)
		d.StageName = seedStages[(i*3)%len(seedStages)]
		d.Amount = seedAmounts[i%len(seedAmounts)]
		if i%11 != 10 {
			offset := seedCloseOffsets[i%len(seedCloseOffsets)]
			d.CloseDate = now.AddDate(0, 0, offset).Format(time.DateOnly)
		}
		if i%6 == 5 {
			d.Type = ""
		}
		if i%4 == 3 {
			d.LeadSource = ""
		}
		deals = append(deals, d)
	}
	return deals
}
