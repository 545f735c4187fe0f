package observer

import (
	"context"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// RemovalEvent describes one step of a background-removal request
type RemovalEvent struct {
	EventType      EventType              `json:"event_type"`
	Timestamp      time.Time              `json:"timestamp"`
	RequestID      string                 `json:"request_id,omitempty"`
	ProcessingTime time.Duration          `json:"processing_time"`
	Success        bool                   `json:"success"`
	ErrorType      string                 `json:"error_type,omitempty"`
	ErrorMessage   string                 `json:"error_message,omitempty"`
	Metadata       map[string]interface{} `json:"metadata,omitempty"`
}

// EventType represents the type of removal event
type EventType string

const (
	RemovalStarted   EventType = "removal_started"
	RemovalCompleted EventType = "removal_completed"
	RemovalFailed    EventType = "removal_failed"
	ArtifactRecorded EventType = "artifact_recorded"
	ArtifactFailed   EventType = "artifact_failed"
)

// Observer defines the interface for event observers
type Observer interface {
	OnEvent(ctx context.Context, event RemovalEvent)
	GetObserverName() string
}

// Subject defines the interface for event publishers
type Subject interface {
	Subscribe(observer Observer)
	Unsubscribe(observer Observer)
	NotifyObservers(ctx context.Context, event RemovalEvent)
}

// LoggingObserver logs removal events
type LoggingObserver struct {
	logger *logrus.Logger
}

func NewLoggingObserver(logger *logrus.Logger) Observer {
	return &LoggingObserver{logger: logger}
}

func (o *LoggingObserver) OnEvent(ctx context.Context, event RemovalEvent) {
	fields := logrus.Fields{
		"event_type":         event.EventType,
		"request_id":         event.RequestID,
		"processing_time_ms": event.ProcessingTime.Milliseconds(),
		"success":            event.Success,
	}
	if event.ErrorType != "" {
		fields["error_type"] = event.ErrorType
	}
	if event.ErrorMessage != "" {
		fields["error"] = event.ErrorMessage
	}
	for k, v := range event.Metadata {
		fields[k] = v
	}

	entry := o.logger.WithFields(fields)
	switch event.EventType {
	case RemovalStarted:
		entry.Debug("Background removal started")
	case RemovalCompleted:
		entry.Info("Background removal completed")
	case RemovalFailed:
		entry.Error("Background removal failed")
	case ArtifactRecorded:
		entry.Debug("Diagnostics artifact recorded")
	case ArtifactFailed:
		entry.Warn("Diagnostics artifact not recorded")
	default:
		entry.Info("Removal event occurred")
	}
}

func (o *LoggingObserver) GetObserverName() string {
	return "logging_observer"
}

// Metrics is a snapshot of MetricsObserver counters
type Metrics struct {
	TotalRequests      int64            `json:"total_requests"`
	SuccessfulRequests int64            `json:"successful_requests"`
	FailedRequests     int64            `json:"failed_requests"`
	FailuresByType     map[string]int64 `json:"failures_by_type"`
	AvgProcessingMs    int64            `json:"avg_processing_ms"`
}

// MetricsObserver collects request counters
type MetricsObserver struct {
	mu                  sync.RWMutex
	totalRequests       int64
	successfulRequests  int64
	failedRequests      int64
	failuresByType      map[string]int64
	totalProcessingTime time.Duration
}

func NewMetricsObserver() *MetricsObserver {
	return &MetricsObserver{failuresByType: make(map[string]int64)}
}

func (o *MetricsObserver) OnEvent(ctx context.Context, event RemovalEvent) {
	o.mu.Lock()
	defer o.mu.Unlock()

	switch event.EventType {
	case RemovalStarted:
		o.totalRequests++
	case RemovalCompleted:
		o.successfulRequests++
		o.totalProcessingTime += event.ProcessingTime
	case RemovalFailed:
		o.failedRequests++
		o.failuresByType[event.ErrorType]++
	}
}

func (o *MetricsObserver) GetObserverName() string {
	return "metrics_observer"
}

// GetMetrics returns current metrics
func (o *MetricsObserver) GetMetrics() Metrics {
	o.mu.RLock()
	defer o.mu.RUnlock()

	m := Metrics{
		TotalRequests:      o.totalRequests,
		SuccessfulRequests: o.successfulRequests,
		FailedRequests:     o.failedRequests,
		FailuresByType:     make(map[string]int64, len(o.failuresByType)),
	}
	for k, v := range o.failuresByType {
		m.FailuresByType[k] = v
	}
	if o.successfulRequests > 0 {
		m.AvgProcessingMs = (o.totalProcessingTime / time.Duration(o.successfulRequests)).Milliseconds()
	}
	return m
}

// EventPublisher implements the Subject interface. Observers are called
// synchronously in subscription order.
type EventPublisher struct {
	mu        sync.RWMutex
	observers []Observer
}

func NewEventPublisher() *EventPublisher {
	return &EventPublisher{observers: make([]Observer, 0)}
}

func (p *EventPublisher) Subscribe(observer Observer) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.observers = append(p.observers, observer)
}

func (p *EventPublisher) Unsubscribe(observer Observer) {
	p.mu.Lock()
	defer p.mu.Unlock()

	for i, obs := range p.observers {
		if obs.GetObserverName() == observer.GetObserverName() {
			p.observers = append(p.observers[:i], p.observers[i+1:]...)
			break
		}
	}
}

func (p *EventPublisher) NotifyObservers(ctx context.Context, event RemovalEvent) {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}

	p.mu.RLock()
	observers := make([]Observer, len(p.observers))
	copy(observers, p.observers)
	p.mu.RUnlock()

	for _, obs := range observers {
		notify(ctx, obs, event)
	}
}

func notify(ctx context.Context, obs Observer, event RemovalEvent) {
	defer func() {
		if r := recover(); r != nil {
			logrus.WithField("observer", obs.GetObserverName()).
				WithField("panic", r).
				Error("Observer panicked while handling event")
		}
	}()
	obs.OnEvent(ctx, event)
}
