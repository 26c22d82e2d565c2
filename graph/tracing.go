package graph

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// OTelSink subscribes to a StateMachine's event stream and emits one OTel
// span per FSM transition, adapting the teacher's graph/emit OTelEmitter
// (which emitted a span per node execution) to span-per-transition: each
// span covers the window between a transition's "before" and "after"
// events, tagged with from/to state and transition name.
type OTelSink struct {
	tracer trace.Tracer
}

// NewOTelSink wraps the given tracer (typically from
// otel.Tracer("taskgraph")) for use as a Workflow/Task tracing sink.
func NewOTelSink(tracer trace.Tracer) *OTelSink {
	return &OTelSink{tracer: tracer}
}

// Attach subscribes the sink to m's full transition lifecycle and returns
// an unsubscribe func. kind labels spans (e.g. "task" or "workflow") so a
// trace viewer can tell task-FSM spans from the workflow-FSM span apart.
func (o *OTelSink) Attach(ctx context.Context, m *StateMachine, kind string) (func(), error) {
	spans := make(map[string]trace.Span)

	offBefore, err := m.On([]string{"*"}, func(event string, data any) {
		tctx, ok := data.(TransitionContext)
		if !ok {
			return
		}
		if !isBeforeEvent(event, tctx.Transition) {
			return
		}
		_, span := o.tracer.Start(ctx, kind+"."+tctx.Transition,
			trace.WithAttributes(
				attribute.String(kind+".id", tctx.ID),
				attribute.String("transition", tctx.Transition),
				attribute.String("from", tctx.From),
				attribute.String("to", tctx.To),
			),
		)
		spans[tctx.Transition+"#"+tctx.ID] = span
	}, nil)
	if err != nil {
		return nil, err
	}

	offAfter, err := m.On([]string{"*"}, func(event string, data any) {
		tctx, ok := data.(TransitionContext)
		if !ok {
			return
		}
		if !isAfterEvent(event, tctx.Transition) {
			return
		}
		key := tctx.Transition + "#" + tctx.ID
		if span, found := spans[key]; found {
			span.SetStatus(codes.Ok, "")
			span.End()
			delete(spans, key)
		}
	}, nil)
	if err != nil {
		offBefore()
		return nil, err
	}

	return func() {
		offBefore()
		offAfter()
	}, nil
}

func isBeforeEvent(event, transition string) bool { return event == transition+".before" }
func isAfterEvent(event, transition string) bool  { return event == transition+".after" }
