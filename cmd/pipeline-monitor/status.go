package main

import (
	"context"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/revops/pipeline-monitor/app"
	"github.com/revops/pipeline-monitor/services/connectors"
	"github.com/revops/pipeline-monitor/services/fallback"
	"github.com/revops/pipeline-monitor/services/pagination"
)

var (
	statusSession string
	statusRefresh bool
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Print the data-source status",
	Long: `Prints the data-source status and fallback statistics.

With --session the persisted log of an earlier session is restored first,
which needs a leveldb or postgres monitor store. With --refresh both views are
loaded once and every connector is checked again, so the status reflects the
current platform state.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		deps, err := app.NewDependencies(cmd.Context(), cfg, logger)
		if err != nil {
			return err
		}
		defer deps.Close(context.Background())

		return runStatus(cmd.Context(), cmd.OutOrStdout(), deps, statusSession, statusRefresh)
	},
}

func init() {
	statusCmd.Flags().StringVar(&statusSession, "session", "", "Restore this session id from the monitor store")
	statusCmd.Flags().BoolVar(&statusRefresh, "refresh", false, "Load both views and recheck connectors before reporting")
}

type statusOutput struct {
	SessionID        string            `json:"session_id"`
	Status           fallback.Status   `json:"status"`
	RepeatedFailures bool              `json:"repeated_failures"`
	Stats            fallback.Stats    `json:"stats"`
	Connectors       []connectors.Info `json:"connectors"`
}

func runStatus(ctx context.Context, out io.Writer, deps *app.Dependencies, session string, refresh bool) error {
	if session != "" {
		if err := deps.Monitor.Restore(ctx, session); err != nil {
			return fmt.Errorf("restore session %s: %w", session, err)
		}
	}
	if refresh {
		params := pagination.Params{Page: 1, PageSize: 1}
		deps.Orchestrator.PipelineHealth(ctx, params)
		deps.Orchestrator.CRMIntegrity(ctx, params)
	}

	return printJSON(out, statusOutput{
		SessionID:        deps.Monitor.SessionID(),
		Status:           deps.Monitor.DataSourceStatus(),
		RepeatedFailures: deps.Monitor.HasRepeatedFailures(),
		Stats:            deps.Monitor.Stats(),
		Connectors:       deps.Connectors.List(ctx, refresh),
	})
}
