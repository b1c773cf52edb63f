package main

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/revops/pipeline-monitor/app"
	"github.com/revops/pipeline-monitor/services/adapters"
	"github.com/revops/pipeline-monitor/services/fallback"
	"github.com/revops/pipeline-monitor/services/pagination"
)

const (
	viewPipelineHealth = "pipeline-health"
	viewCRMIntegrity   = "crm-integrity"
)

var (
	viewPage      int
	viewPageSize  int
	viewStalled   bool
	viewRiskLevel string
)

var viewsCmd = &cobra.Command{
	Use:       "views <pipeline-health|crm-integrity>",
	Short:     "Print one page of a view as JSON",
	Args:      cobra.ExactArgs(1),
	ValidArgs: []string{viewPipelineHealth, viewCRMIntegrity},
	RunE: func(cmd *cobra.Command, args []string) error {
		deps, err := app.NewDependencies(cmd.Context(), cfg, logger)
		if err != nil {
			return err
		}
		defer deps.Close(context.Background())

		filters := viewFilters(viewStalled, viewRiskLevel)
		return runView(cmd.Context(), cmd.OutOrStdout(), deps, args[0], viewPage, viewPageSize, filters)
	},
}

func init() {
	viewsCmd.Flags().IntVar(&viewPage, "page", 1, "Page number")
	viewsCmd.Flags().IntVar(&viewPageSize, "page-size", 50, "Rows per page (1-100)")
	viewsCmd.Flags().BoolVar(&viewStalled, "stalled", false, "pipeline-health: stalled deals only, highest risk first")
	viewsCmd.Flags().StringVar(&viewRiskLevel, "risk-level", "", "crm-integrity: HIGH, MEDIUM or LOW")
}

func viewFilters(stalled bool, riskLevel string) map[string]string {
	filters := map[string]string{}
	if stalled {
		filters[adapters.FilterStalled] = "true"
	}
	if riskLevel != "" {
		filters[adapters.FilterRiskLevel] = strings.ToUpper(riskLevel)
	}
	return filters
}

// viewOutput is one page together with the data-source status after loading it.
type viewOutput[T any] struct {
	View   string              `json:"view"`
	Page   pagination.State[T] `json:"page"`
	Status fallback.Status     `json:"status"`
}

func runView(ctx context.Context, out io.Writer, deps *app.Dependencies, view string, page, pageSize int, filters map[string]string) error {
	if page < 1 {
		return fmt.Errorf("page must be at least 1, got %d", page)
	}
	if page > pagination.MaxPage {
		return fmt.Errorf("page must be at most %d, got %d", pagination.MaxPage, page)
	}
	if pageSize < 1 || pageSize > 100 {
		return fmt.Errorf("page size must be between 1 and 100, got %d", pageSize)
	}

	switch view {
	case viewPipelineHealth:
		if _, ok := filters[adapters.FilterRiskLevel]; ok {
			return fmt.Errorf("--risk-level applies to %s only", viewCRMIntegrity)
		}
		return printView(ctx, out, deps, view, withFilters(deps.Orchestrator.PipelineHealthPages(), filters), page, pageSize)
	case viewCRMIntegrity:
		if _, ok := filters[adapters.FilterStalled]; ok {
			return fmt.Errorf("--stalled applies to %s only", viewPipelineHealth)
		}
		switch level := filters[adapters.FilterRiskLevel]; level {
		case "", adapters.RiskLevelHigh, adapters.RiskLevelMedium, adapters.RiskLevelLow:
		default:
			return fmt.Errorf("unknown risk level %q", level)
		}
		return printView(ctx, out, deps, view, withFilters(deps.Orchestrator.CRMIntegrityPages(), filters), page, pageSize)
	default:
		return fmt.Errorf("unknown view %q: expected %s or %s", view, viewPipelineHealth, viewCRMIntegrity)
	}
}

func withFilters[T any](fetch pagination.FetchFunc[T], filters map[string]string) pagination.FetchFunc[T] {
	if len(filters) == 0 {
		return fetch
	}
	return func(ctx context.Context, p pagination.Params) (pagination.Page[T], error) {
		p.Filters = filters
		return fetch(ctx, p)
	}
}

func printView[T any](ctx context.Context, out io.Writer, deps *app.Dependencies, view string, fetch pagination.FetchFunc[T], page, pageSize int) error {
	ctrl, err := pagination.NewController(fetch, pageSize, deps.Logger.Named("pagination"))
	if err != nil {
		return err
	}
	defer ctrl.Close()

	st := ctrl.Load(ctx)
	if page > 1 {
		if page > st.TotalPages {
			return fmt.Errorf("page %d out of range: %s has %d pages", page, view, st.TotalPages)
		}
		st = ctrl.GoToPage(ctx, page)
	}
	if st.Error != "" {
		return fmt.Errorf("load %s: %s", view, st.Error)
	}

	deps.Logger.Debug("view loaded",
		zap.String("view", view),
		zap.Int("page", st.Page),
		zap.Int("rows", len(st.Data)),
	)
	return printJSON(out, viewOutput[T]{View: view, Page: st, Status: deps.Monitor.DataSourceStatus()})
}
