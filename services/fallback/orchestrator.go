package fallback

import (
	"context"
	"runtime/debug"
	"time"

	"go.uber.org/zap"

	"github.com/revops/pipeline-monitor/services"
	"github.com/revops/pipeline-monitor/services/adapters"
	"github.com/revops/pipeline-monitor/services/fetcher"
	"github.com/revops/pipeline-monitor/services/pagination"
	"github.com/revops/pipeline-monitor/services/platform"
)

// Source names where a result came from.
type Source string

const (
	SourcePrimary   Source = "primary"
	SourceSecondary Source = "secondary"
)

// Entities requested from the platform for each query.
const (
	PipelineHealthEntity = "opportunities"
	CRMIntegrityEntity   = "opportunity_validations"
)

// PrimarySource is the remote platform.
type PrimarySource interface {
	Ready() bool
	GetView(ctx context.Context, req platform.ViewRequest) (*platform.ViewResponse, error)
}

// SecondarySource is the local dataset. It cannot fail.
type SecondarySource interface {
	PipelineHealth(params pagination.Params) (pagination.Page[adapters.Opportunity], []adapters.Metric)
	CRMIntegrity(params pagination.Params) (pagination.Page[adapters.Validation], []adapters.Metric)
}

// Result is one page of a view together with its summary metrics.
type Result[T any] struct {
	Data       []T               `json:"data"`
	Metrics    []adapters.Metric `json:"metrics"`
	Pagination pagination.Block  `json:"pagination"`
	Source     Source            `json:"source"`
	TraceID    string            `json:"trace_id,omitempty"`
}

// Page drops the metrics for use with a pagination controller.
func (r Result[T]) Page() pagination.Page[T] {
	return pagination.Page[T]{Data: r.Data, Pagination: r.Pagination}
}

// OrchestratorConfig holds the static policy.
type OrchestratorConfig struct {
	PrimaryEnabled bool
	// Development adds a stack trace to fetch_failed events.
	Development bool
	// Retry applies to primary view reads only. A zero Limit means one attempt.
	Retry fetcher.RetryPolicy
}

// Orchestrator serves every view from the primary source when it can and
// from the secondary source otherwise. It never returns an error.
type Orchestrator struct {
	config    OrchestratorConfig
	primary   PrimarySource
	secondary SecondarySource
	monitor   *Monitor
	logger    *zap.Logger
}

// NewOrchestrator wires the sources to the monitor. primary may be nil,
// which is treated as a client that is not ready.
func NewOrchestrator(config OrchestratorConfig, primary PrimarySource, secondary SecondarySource, monitor *Monitor, logger *zap.Logger) *Orchestrator {
	if config.Retry.BaseDelay <= 0 {
		config.Retry.BaseDelay = 500 * time.Millisecond
	}
	if config.Retry.MaxDelay < config.Retry.BaseDelay {
		config.Retry.MaxDelay = config.Retry.BaseDelay
	}
	if config.Retry.Limit < 0 {
		config.Retry.Limit = 0
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Orchestrator{
		config:    config,
		primary:   primary,
		secondary: secondary,
		monitor:   monitor,
		logger:    logger,
	}
}

// PipelineHealth returns one page of canonical opportunities.
func (o *Orchestrator) PipelineHealth(ctx context.Context, params pagination.Params) Result[adapters.Opportunity] {
	params = normalizeParams(params)
	local := func() Result[adapters.Opportunity] {
		page, metrics := o.secondary.PipelineHealth(params)
		return secondaryResult(page, metrics)
	}

	resp, ok := o.tryPrimary(ctx, QueryPipelineHealth, PipelineHealthEntity, params)
	if !ok {
		return local()
	}
	records := adapters.AdaptOpportunities(resp.Data)
	return Result[adapters.Opportunity]{
		Data:       records,
		Metrics:    adapters.ComputeOpportunityMetrics(records),
		Pagination: primaryBlock(resp, params),
		Source:     SourcePrimary,
		TraceID:    resp.TraceID,
	}
}

// CRMIntegrity returns one page of canonical validations.
func (o *Orchestrator) CRMIntegrity(ctx context.Context, params pagination.Params) Result[adapters.Validation] {
	params = normalizeParams(params)
	local := func() Result[adapters.Validation] {
		page, metrics := o.secondary.CRMIntegrity(params)
		return secondaryResult(page, metrics)
	}

	resp, ok := o.tryPrimary(ctx, QueryCRMIntegrity, CRMIntegrityEntity, params)
	if !ok {
		return local()
	}
	records := adapters.AdaptValidations(resp.Data)
	return Result[adapters.Validation]{
		Data:       records,
		Metrics:    adapters.ComputeValidationMetrics(records),
		Pagination: primaryBlock(resp, params),
		Source:     SourcePrimary,
		TraceID:    resp.TraceID,
	}
}

// PipelineHealthPages adapts PipelineHealth to a pagination fetch function.
func (o *Orchestrator) PipelineHealthPages() pagination.FetchFunc[adapters.Opportunity] {
	return func(ctx context.Context, p pagination.Params) (pagination.Page[adapters.Opportunity], error) {
		return o.PipelineHealth(ctx, p).Page(), nil
	}
}

// CRMIntegrityPages adapts CRMIntegrity to a pagination fetch function.
func (o *Orchestrator) CRMIntegrityPages() pagination.FetchFunc[adapters.Validation] {
	return func(ctx context.Context, p pagination.Params) (pagination.Page[adapters.Validation], error) {
		return o.CRMIntegrity(ctx, p).Page(), nil
	}
}

// tryPrimary applies the source precedence and reports whether the primary
// produced a response. Every other outcome is recorded on the monitor,
// except cancellation by the caller.
func (o *Orchestrator) tryPrimary(ctx context.Context, query QueryType, entity string, params pagination.Params) (*platform.ViewResponse, bool) {
	if !o.config.PrimaryEnabled {
		o.track(ctx, Event{Type: query, Reason: ReasonSourceDisabled, Severity: SeverityInfo})
		return nil, false
	}
	if o.primary == nil || !o.primary.Ready() {
		o.track(ctx, Event{Type: query, Reason: ReasonClientNotReady, Severity: SeverityWarning})
		return nil, false
	}

	req := platform.ViewRequest{
		Entity:   entity,
		Filters:  map[string]any{},
		Page:     params.Page,
		PageSize: params.PageSize,
	}
	if params.Cursor != "" {
		req.Filters["cursor"] = params.Cursor
	}
	for k, v := range params.Filters {
		req.Filters[k] = v
	}
	if v, ok := params.Filters[adapters.FilterStalled]; ok {
		req.Filters[adapters.FilterStalled] = v == "true"
	}

	resp, err := fetcher.Retry(ctx, o.config.Retry, func(ctx context.Context) (*platform.ViewResponse, error) {
		return o.primary.GetView(ctx, req)
	})
	if err == nil {
		return resp, true
	}

	if services.IsCancelledError(err) || ctx.Err() != nil {
		o.logger.Debug("primary fetch cancelled", zap.String("query", string(query)))
		return nil, false
	}

	e := Event{Type: query, Reason: ReasonFetchFailed, Severity: SeverityError, Error: err.Error()}
	if o.config.Development {
		e.ErrorDetail = string(debug.Stack())
	}
	o.track(ctx, e)
	return nil, false
}

func (o *Orchestrator) track(ctx context.Context, e Event) {
	e.PrimaryEnabled = o.config.PrimaryEnabled
	if o.monitor != nil {
		o.monitor.Track(ctx, e)
	}
}

func normalizeParams(p pagination.Params) pagination.Params {
	if p.Page < 1 {
		p.Page = 1
	}
	if p.PageSize < 1 {
		p.PageSize = 50
	}
	return p
}

func primaryBlock(resp *platform.ViewResponse, params pagination.Params) pagination.Block {
	block := pagination.Block{
		Page:     params.Page,
		PageSize: params.PageSize,
		Total:    resp.Total,
	}
	block.HasMore = pagination.HasMore(block.Page, block.PageSize, block.Total)
	if c, ok := resp.Metadata["next_cursor"].(string); ok {
		block.NextCursor = c
	}
	return block
}

func secondaryResult[T any](page pagination.Page[T], metrics []adapters.Metric) Result[T] {
	data := page.Data
	if data == nil {
		data = []T{}
	}
	return Result[T]{
		Data:       data,
		Metrics:    metrics,
		Pagination: page.Pagination,
		Source:     SourceSecondary,
	}
}
