package connectors

import (
	"context"
	"errors"
	"fmt"

	"github.com/revops/pipeline-monitor/services/fallback"
	"github.com/revops/pipeline-monitor/services/platform"
	"github.com/revops/pipeline-monitor/services/workflows"
)

// Connector names.
const (
	PlatformName     = "platform"
	LocalName        = "local_dataset"
	AlertsName       = "slack_alerts"
	SessionStoreName = "session_store"
)

// Platform reads a one-row page of the pipeline view. A disabled
// platform reports StatusDisabled without a request.
func Platform(client fallback.PrimarySource, enabled bool) Connector {
	return Connector{
		Name:        PlatformName,
		Type:        "analytics_platform",
		Description: "Remote views API, primary source for every dashboard view",
		Check: func(ctx context.Context) error {
			if !enabled {
				return fmt.Errorf("%w: platform disabled by configuration", ErrDisabled)
			}
			if client == nil || !client.Ready() {
				return errors.New("client not ready: credentials missing or token expired")
			}
			_, err := client.GetView(ctx, platform.ViewRequest{
				Entity:   fallback.PipelineHealthEntity,
				Filters:  map[string]any{},
				Page:     1,
				PageSize: 1,
			})
			return err
		},
	}
}

// DealSource is the local dataset.
type DealSource interface {
	Deals() []workflows.Deal
}

// Local reports the generated dataset. It is a mock source.
func Local(src DealSource) Connector {
	return Connector{
		Name:        LocalName,
		Type:        "local",
		Description: "Generated dataset served when the platform is unavailable",
		Mock:        true,
		Check: func(ctx context.Context) error {
			if src == nil || len(src.Deals()) == 0 {
				return errors.New("local dataset is empty")
			}
			return nil
		},
	}
}

// Alerter is the outbound webhook.
type Alerter interface {
	Enabled() bool
}

// Alerts reports whether the webhook is configured. It never posts.
func Alerts(a Alerter) Connector {
	return Connector{
		Name:        AlertsName,
		Type:        "webhook",
		Description: "Slack incoming webhook for escalation and pipeline risk alerts",
		Check: func(ctx context.Context) error {
			if a == nil || !a.Enabled() {
				return fmt.Errorf("%w: webhook not configured", ErrDisabled)
			}
			return nil
		},
	}
}

// SessionStore checks the fallback log backend with ping. A nil ping is
// an in-process store and always passes.
func SessionStore(kind string, ping func(ctx context.Context) error) Connector {
	return Connector{
		Name:        SessionStoreName,
		Type:        kind,
		Description: "Backend of the persisted fallback log",
		Check: func(ctx context.Context) error {
			if ping == nil {
				return nil
			}
			return ping(ctx)
		},
	}
}
