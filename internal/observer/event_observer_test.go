package observer

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
)

type panickingObserver struct{}

func (panickingObserver) OnEvent(context.Context, RemovalEvent) { panic("boom") }
func (panickingObserver) GetObserverName() string               { return "panicking" }

func TestMetricsObserver_Counts(t *testing.T) {
	m := NewMetricsObserver()
	p := NewEventPublisher()
	p.Subscribe(m)
	ctx := context.Background()

	p.NotifyObservers(ctx, RemovalEvent{EventType: RemovalStarted})
	p.NotifyObservers(ctx, RemovalEvent{EventType: RemovalCompleted, ProcessingTime: 200 * time.Millisecond})
	p.NotifyObservers(ctx, RemovalEvent{EventType: RemovalStarted})
	p.NotifyObservers(ctx, RemovalEvent{EventType: RemovalCompleted, ProcessingTime: 400 * time.Millisecond})
	p.NotifyObservers(ctx, RemovalEvent{EventType: RemovalStarted})
	p.NotifyObservers(ctx, RemovalEvent{EventType: RemovalFailed, ErrorType: "decode_failed"})

	got := m.GetMetrics()
	assert.Equal(t, int64(3), got.TotalRequests)
	assert.Equal(t, int64(2), got.SuccessfulRequests)
	assert.Equal(t, int64(1), got.FailedRequests)
	assert.Equal(t, int64(1), got.FailuresByType["decode_failed"])
	assert.Equal(t, int64(300), got.AvgProcessingMs)
}

func TestEventPublisher_SurvivesPanickingObserver(t *testing.T) {
	m := NewMetricsObserver()
	p := NewEventPublisher()
	p.Subscribe(panickingObserver{})
	p.Subscribe(m)

	assert.NotPanics(t, func() {
		p.NotifyObservers(context.Background(), RemovalEvent{EventType: RemovalStarted})
	})
	assert.Equal(t, int64(1), m.GetMetrics().TotalRequests)
}

func TestEventPublisher_Unsubscribe(t *testing.T) {
	m := NewMetricsObserver()
	p := NewEventPublisher()
	p.Subscribe(m)
	p.Unsubscribe(m)

	p.NotifyObservers(context.Background(), RemovalEvent{EventType: RemovalStarted})
	assert.Equal(t, int64(0), m.GetMetrics().TotalRequests)
}

func TestLoggingObserver_WritesFields(t *testing.T) {
	var buf bytes.Buffer
	l := logrus.New()
	l.SetOutput(&buf)
	l.SetFormatter(&logrus.JSONFormatter{})

	NewLoggingObserver(l).OnEvent(context.Background(), RemovalEvent{
		EventType:    RemovalFailed,
		RequestID:    "req-1",
		ErrorType:    "inference_failed",
		ErrorMessage: "bad shape",
	})

	out := buf.String()
	assert.Contains(t, out, `"request_id":"req-1"`)
	assert.Contains(t, out, `"error_type":"inference_failed"`)
	assert.Contains(t, out, "Background removal failed")
}
