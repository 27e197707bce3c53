package transport

import (
	"context"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// instrumented wraps a Transport, counting appends, deliveries and acks per
// stream without altering backend behavior. It composes Transport by
// embedding it, so adding a method to the interface only requires
// overriding the ones this package actually measures.
type instrumented struct {
	Transport
	appended   *prometheus.CounterVec
	delivered  *prometheus.CounterVec
	acked      *prometheus.CounterVec
}

// NewInstrumented wraps tr with per-stream Prometheus counters registered
// against reg, grounded on the same promauto.With(reg) idiom duptracker
// uses for its own counters.
func NewInstrumented(tr Transport, reg prometheus.Registerer) Transport {
	factory := promauto.With(reg)
	return &instrumented{
		Transport: tr,
		appended: factory.NewCounterVec(prometheus.CounterOpts{
			Subsystem: "transport",
			Name:      "messages_appended_total",
			Help:      "Total messages appended via XAdd, labeled by stream.",
		}, []string{"stream"}),
		delivered: factory.NewCounterVec(prometheus.CounterOpts{
			Subsystem: "transport",
			Name:      "messages_delivered_total",
			Help:      "Total messages delivered via XReadGroup, labeled by stream.",
		}, []string{"stream"}),
		acked: factory.NewCounterVec(prometheus.CounterOpts{
			Subsystem: "transport",
			Name:      "messages_acked_total",
			Help:      "Total messages acknowledged via XAck, labeled by stream.",
		}, []string{"stream"}),
	}
}

func (t *instrumented) XAdd(ctx context.Context, stream string, id string, fields Fields) (StreamID, error) {
	sid, err := t.Transport.XAdd(ctx, stream, id, fields)
	if err == nil {
		t.appended.WithLabelValues(stream).Inc()
	}
	return sid, err
}

func (t *instrumented) XReadGroup(ctx context.Context, group, consumer string, streams []StreamSpec, opts ReadGroupOptions) (map[string][]Message, error) {
	result, err := t.Transport.XReadGroup(ctx, group, consumer, streams, opts)
	if err == nil {
		for stream, messages := range result {
			t.delivered.WithLabelValues(stream).Add(float64(len(messages)))
		}
	}
	return result, err
}

func (t *instrumented) XAck(ctx context.Context, stream, group string, id StreamID) (int64, error) {
	n, err := t.Transport.XAck(ctx, stream, group, id)
	if err == nil {
		t.acked.WithLabelValues(stream).Add(float64(n))
	}
	return n, err
}
