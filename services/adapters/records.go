package adapters

// Risk levels carried by canonical validation records.
const (
	RiskLevelHigh   = "HIGH"
	RiskLevelMedium = "MEDIUM"
	RiskLevelLow    = "LOW"
)

// Filter keys accepted by the views. They name canonical fields.
const (
	FilterStalled   = "is_stalled"
	FilterRiskLevel = "risk_level"
)

// Opportunity is the canonical pipeline-health record.
type Opportunity struct {
	ID            string  `json:"id"`
	Name          string  `json:"name"`
	AccountName   string  `json:"account_name"`
	Stage         string  `json:"stage"`
	Amount        float64 `json:"amount"`
	HealthScore   float64 `json:"health_score"`
	RiskScore     float64 `json:"risk_score"`
	IsStalled     bool    `json:"is_stalled"`
	LastLoginDays *int    `json:"last_login_days"`
	Sessions30d   *int    `json:"sessions_30d"`
}

// Validation is the canonical CRM-integrity record.
type Validation struct {
	OpportunityID    string   `json:"opportunity_id"`
	OpportunityName  string   `json:"opportunity_name"`
	AccountName      string   `json:"account_name"`
	Stage            string   `json:"stage"`
	Amount           float64  `json:"amount"`
	IsValid          bool     `json:"is_valid"`
	MissingFields    []string `json:"missing_fields"`
	ValidationIssues string   `json:"validation_issues"`
	RiskLevel        string   `json:"risk_level"`
}

// Metric is a display-ready summary value.
type Metric struct {
	Label  string `json:"label"`
	Value  string `json:"value"`
	Change string `json:"change,omitempty"`
	Trend  string `json:"trend,omitempty"`
}

// OpportunityFields lists the canonical opportunity fields in output order.
var OpportunityFields = []FieldMapping{
	{Canonical: "id", Primary: "id", Fallback: "opportunity_id", Default: ""},
	{Canonical: "name", Primary: "name", Fallback: "opportunity_name", Default: "Unknown"},
	{Canonical: "account_name", Primary: "accountName", Fallback: "account_name", Default: "Unknown"},
	{Canonical: "stage", Primary: "stage", Fallback: "stageName", Default: "Unknown"},
	{Canonical: "amount", Primary: "amount", Fallback: "Amount", Default: 0.0},
	{Canonical: "health_score", Primary: "healthScore", Fallback: "health_score", Default: 0.0},
	{Canonical: "risk_score", Primary: "riskScore", Fallback: "risk_score", Default: 0.0},
	{Canonical: "is_stalled", Primary: "isStalled", Fallback: "is_stalled", Default: false},
	{Canonical: "last_login_days", Primary: "lastLoginDays", Fallback: "last_login_days", Default: nil},
	{Canonical: "sessions_30d", Primary: "sessions30d", Fallback: "sessions_30d", Default: nil},
}

// ValidationFields lists the canonical validation fields in output order.
var ValidationFields = []FieldMapping{
	{Canonical: "opportunity_id", Primary: "opportunityId", Fallback: "opportunity_id", Default: ""},
	{Canonical: "opportunity_name", Primary: "opportunityName", Fallback: "opportunity_name", Default: "Unknown"},
	{Canonical: "account_name", Primary: "accountName", Fallback: "account_name", Default: "Unknown"},
	{Canonical: "stage", Primary: "stage", Fallback: "stageName", Default: "Unknown"},
	{Canonical: "amount", Primary: "amount", Fallback: "Amount", Default: 0.0},
	{Canonical: "is_valid", Primary: "isValid", Fallback: "is_valid", Default: false},
	{Canonical: "missing_fields", Primary: "missingFields", Fallback: "missing_fields", Default: []string{}},
	{Canonical: "validation_issues", Primary: "validationIssues", Fallback: "validation_issues", Default: ""},
	{Canonical: "risk_level", Primary: "riskLevel", Fallback: "risk_level", Default: RiskLevelMedium},
}

// Mappings returns the field mapping tables keyed by entity, for display.
func Mappings() map[string][]FieldMapping {
	opp := make([]FieldMapping, len(OpportunityFields))
	copy(opp, OpportunityFields)
	val := make([]FieldMapping, len(ValidationFields))
	copy(val, ValidationFields)
	return map[string][]FieldMapping{
		"opportunity": opp,
		"validation":  val,
	}
}

func fieldByName(fields []FieldMapping, canonical string) FieldMapping {
	for _, f := range fields {
		if f.Canonical == canonical {
			return f
		}
	}
	return FieldMapping{Canonical: canonical, Primary: canonical}
}

// AdaptOpportunities converts raw records into canonical opportunities.
// A nil or empty input yields an empty, non-nil slice.
func AdaptOpportunities(records []Record) []Opportunity {
	f := func(name string) FieldMapping { return fieldByName(OpportunityFields, name) }
	out := make([]Opportunity, 0, len(records))
	for _, r := range records {
		out = append(out, Opportunity{
			ID:            f("id").String(r),
			Name:          f("name").String(r),
			AccountName:   f("account_name").String(r),
			Stage:         f("stage").String(r),
			Amount:        f("amount").Number(r),
			HealthScore:   f("health_score").Number(r),
			RiskScore:     f("risk_score").Number(r),
			IsStalled:     f("is_stalled").Bool(r),
			LastLoginDays: f("last_login_days").NullableInt(r),
			Sessions30d:   f("sessions_30d").NullableInt(r),
		})
	}
	return out
}

// AdaptValidations converts raw records into canonical validations.
// Records with no risk level default to MEDIUM.
func AdaptValidations(records []Record) []Validation {
	f := func(name string) FieldMapping { return fieldByName(ValidationFields, name) }
	out := make([]Validation, 0, len(records))
	for _, r := range records {
		out = append(out, Validation{
			OpportunityID:    f("opportunity_id").String(r),
			OpportunityName:  f("opportunity_name").String(r),
			AccountName:      f("account_name").String(r),
			Stage:            f("stage").String(r),
			Amount:           f("amount").Number(r),
			IsValid:          f("is_valid").Bool(r),
			MissingFields:    f("missing_fields").List(r),
			ValidationIssues: f("validation_issues").String(r),
			RiskLevel:        f("risk_level").String(r),
		})
	}
	return out
}
