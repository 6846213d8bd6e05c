package runtime

import (
	"genomarket/core/events"
	"genomarket/native/orders"
	"genomarket/native/tracking"
	"genomarket/observability"
	"genomarket/observability/metrics"
)

// metricsSink records committed events in Prometheus before handing them to
// the downstream emitter. Payload events are stamped with the call that is
// being committed; callers hold the runtime lock around begin and Emit.
type metricsSink struct {
	source     string
	index      int
	next       events.Emitter
	ledger     interface{ RecordTransfer(string) }
	settlement *observability.SettlementMetrics
	tracking   *metrics.TrackingMetrics
}

func newMetricsSink(next events.Emitter) *metricsSink {
	if next == nil {
		next = events.NoopEmitter{}
	}
	return &metricsSink{
		next:       next,
		ledger:     observability.Events(),
		settlement: observability.Settlement(),
		tracking:   metrics.Tracking(),
	}
}

// begin sets the position source for the events of the next commit.
func (s *metricsSink) begin(source string) {
	s.source = source
	s.index = 0
}

func (s *metricsSink) Emit(evt events.Event) {
	if evt == nil {
		return
	}
	if transfer, ok := evt.(events.Transfer); ok {
		s.ledger.RecordTransfer(transfer.Symbol)
	}
	if payload, ok := evt.(events.Payload); ok {
		s.observe(evt.EventType(), payload)
		if s.source != "" {
			evt = events.Positioned{Payload: payload, Source: s.source, Index: s.index}
			s.index++
		}
	}
	s.next.Emit(evt)
}

func (s *metricsSink) observe(eventType string, payload events.Payload) {
	switch eventType {
	case tracking.EventTypeRegistered:
		s.tracking.ObserveRegistered(payload.Event().Attr("kind"))
	case tracking.EventTypeStatusUpdated:
		evt := payload.Event()
		kind, status := evt.Attr("kind"), evt.Attr("status")
		switch status {
		case tracking.StatusFailed.String():
			s.tracking.ObserveFailure(kind)
		case tracking.StatusResultReady.String(), tracking.StatusRejected.String():
			s.tracking.ObserveTransition(kind, status, true)
		default:
			s.tracking.ObserveTransition(kind, status, false)
		}
	case tracking.EventTypeDeleted:
		evt := payload.Event()
		switch evt.Attr("status") {
		case tracking.StatusResultReady.String(), tracking.StatusRejected.String(), tracking.StatusFailed.String():
		default:
			s.tracking.ObserveDeleted(evt.Attr("kind"))
		}
	case orders.EventTypeTrackingCleanupFailed:
		s.settlement.IncTrackingCleanupFailure(payload.Event().Attr("pallet"))
	}
}
