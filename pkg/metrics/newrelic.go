// Package metrics records custom events, metrics and traces to New Relic. All
// functions are no-ops when the context doesn't carry an application.
package metrics

import (
	"context"
	"time"

	"github.com/newrelic/go-agent/v3/newrelic"
)

type applicationKey struct{}

// NewContext returns ctx carrying app. A nil app leaves ctx unchanged.
func NewContext(ctx context.Context, app *newrelic.Application) context.Context {
	if app == nil {
		return ctx
	}
	return context.WithValue(ctx, applicationKey{}, app)
}

func fromContext(ctx context.Context) *newrelic.Application {
	app, _ := ctx.Value(applicationKey{}).(*newrelic.Application)
	return app
}

// StartBackgroundTransaction starts a transaction for work that isn't tied to
// an inbound request. The returned func ends it.
func StartBackgroundTransaction(ctx context.Context, name string) (context.Context, func()) {
	app := fromContext(ctx)
	if app == nil {
		return ctx, func() {}
	}

	txn := app.StartTransaction(name)
	return newrelic.NewContext(ctx, txn), txn.End
}

// RecordEvent records a custom event with the given attributes.
func RecordEvent(ctx context.Context, name string, attributes map[string]any) {
	if app := fromContext(ctx); app != nil {
		app.RecordCustomEvent(name, attributes)
	}
}

// RecordCount records a custom count metric.
func RecordCount(ctx context.Context, name string, count uint64) {
	if app := fromContext(ctx); app != nil {
		app.RecordCustomMetric(name, float64(count))
	}
}

// RecordDuration records a custom duration metric in milliseconds.
func RecordDuration(ctx context.Context, name string, duration time.Duration) {
	if app := fromContext(ctx); app != nil {
		app.RecordCustomMetric(name, float64(duration)/float64(time.Millisecond))
	}
}
