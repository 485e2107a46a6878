package headlessblog

import (
	"context"
	"fmt"

	"github.com/eringen/headlessblog/deploy"
)

// Deploy uploads the built site in OutputDir to the configured bucket and
// invalidates the CloudFront distribution when one is set. Run Build first.
func (a *App) Deploy(ctx context.Context) (deploy.Result, error) {
	p, err := deploy.New(ctx, a.Config.Deploy, a.Logger)
	if err != nil {
		return deploy.Result{}, err
	}
	res, err := p.Publish(ctx, a.Config.OutputDir)
	if err != nil {
		a.metrics.deploys.WithLabelValues("error").Inc()
		return res, fmt.Errorf("headlessblog: %w", err)
	}
	a.metrics.deploys.WithLabelValues("ok").Inc()
	return res, nil
}
