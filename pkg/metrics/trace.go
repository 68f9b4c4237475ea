package metrics

import (
	"context"

	"github.com/newrelic/go-agent/v3/newrelic"
)

// MethodTracer is a segment within the transaction carried by a context. A
// nil *MethodTracer is valid and ignores every call.
type MethodTracer struct {
	txn     *newrelic.Transaction
	segment *newrelic.Segment
}

// TraceMethodCall starts a "<component> <method>" segment in the transaction
// carried by ctx, if any.
func TraceMethodCall(ctx context.Context, component, method string) *MethodTracer {
	txn := newrelic.FromContext(ctx)
	if txn == nil {
		return nil
	}

	return &MethodTracer{
		txn:     txn,
		segment: txn.StartSegment(component + " " + method),
	}
}

func (t *MethodTracer) AddAttribute(key string, value any) {
	if t != nil {
		t.segment.AddAttribute(key, value)
	}
}

func (t *MethodTracer) AddAttributes(attributes map[string]any) {
	for key, value := range attributes {
		t.AddAttribute(key, value)
	}
}

// OnError notices a non-nil err on the transaction.
func (t *MethodTracer) OnError(err error) {
	if t != nil && err != nil {
		t.txn.NoticeError(err)
	}
}

// EndWithError notices *err and ends the segment. Intended to be deferred
// with a pointer to a named error result.
func (t *MethodTracer) EndWithError(err *error) {
	if err != nil {
		t.OnError(*err)
	}
	t.End()
}

func (t *MethodTracer) End() {
	if t != nil {
		t.segment.End()
	}
}
