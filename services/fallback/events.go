// Package fallback chooses between the platform and the local dataset for
// each dashboard view, and keeps the session log of every degradation.
package fallback

import "time"

// QueryType names the logical query that fell back.
type QueryType string

const (
	QueryPipelineHealth QueryType = "pipeline_health"
	QueryCRMIntegrity   QueryType = "crm_integrity"
)

// Reason explains why the secondary source served a query.
type Reason string

const (
	ReasonSourceDisabled Reason = "source_disabled"
	ReasonClientNotReady Reason = "client_not_ready"
	ReasonFetchFailed    Reason = "fetch_failed"
)

// Severity grades an event.
type Severity string

const (
	SeverityInfo    Severity = "info"
	SeverityWarning Severity = "warning"
	SeverityError   Severity = "error"
)

// Event is one recorded fallback. Events are never modified after Track.
type Event struct {
	Type           QueryType `json:"type"`
	Reason         Reason    `json:"reason"`
	Severity       Severity  `json:"severity"`
	Timestamp      time.Time `json:"timestamp"`
	Error          string    `json:"error,omitempty"`
	ErrorDetail    string    `json:"error_detail,omitempty"`
	PrimaryEnabled bool      `json:"primary_enabled"`
}

// Stats is derived from the event log on demand.
type Stats struct {
	Total              int               `json:"total"`
	LastOccurrence     *time.Time        `json:"last_occurrence,omitempty"`
	MostFrequentReason Reason            `json:"most_frequent_reason,omitempty"`
	ByType             map[QueryType]int `json:"by_type"`
	ByReason           map[Reason]int    `json:"by_reason"`
}

// Status is the operator-facing summary of where data is coming from.
type Status struct {
	UsingFallback bool     `json:"using_fallback"`
	Severity      Severity `json:"severity"`
	Message       string   `json:"message"`
	Reason        Reason   `json:"reason,omitempty"`
}
