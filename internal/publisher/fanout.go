// Package publisher forwards stored audit events to notification sinks without ever
// holding up or failing the write that produced them.
package publisher

import (
	"context"
	"fmt"
	"sync"
	"time"

	"inventory-audit/internal/domain"
	"inventory-audit/internal/metrics"

	log "github.com/sirupsen/logrus"
)

const defaultSinkTimeout = 15 * time.Second

type Sink interface {
	Publish(ctx context.Context, event domain.AuditEvent) error
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(ctx context.Context, event domain.AuditEvent) error

func (f SinkFunc) Publish(ctx context.Context, event domain.AuditEvent) error { return f(ctx, event) }

// LocalSink wraps an in-process publisher such as the realtime hub.
func LocalSink(publish func(domain.AuditEvent)) Sink {
	return SinkFunc(func(_ context.Context, event domain.AuditEvent) error {
		publish(event)
		return nil
	})
}

type namedSink struct {
	name     string
	sink     Sink
	detached bool
}

// Fanout is the audit notifier: inline sinks run on the caller's goroutine and must not
// block, detached sinks each get their own goroutine and timeout.
type Fanout struct {
	sinks   []namedSink
	timeout time.Duration
	wg      sync.WaitGroup
}

func NewFanout() *Fanout {
	return &Fanout{timeout: defaultSinkTimeout}
}

// Inline registers a non-blocking sink that is called in publish order.
func (f *Fanout) Inline(name string, sink Sink) *Fanout {
	f.sinks = append(f.sinks, namedSink{name: name, sink: sink})
	return f
}

// Detached registers a sink that may block on I/O.
func (f *Fanout) Detached(name string, sink Sink) *Fanout {
	f.sinks = append(f.sinks, namedSink{name: name, sink: sink, detached: true})
	return f
}

// Notify returns immediately for detached sinks. Errors and panics are logged and counted.
func (f *Fanout) Notify(ctx context.Context, event domain.AuditEvent) {
	if f == nil {
		return
	}
	base := context.WithoutCancel(ctx)

	for _, s := range f.sinks {
		if !s.detached {
			f.deliver(base, s, event)
			continue
		}
		f.wg.Add(1)
		go func(s namedSink) {
			defer f.wg.Done()
			sinkCtx, cancel := context.WithTimeout(base, f.timeout)
			defer cancel()
			f.deliver(sinkCtx, s, event)
		}(s)
	}
}

// Wait blocks until in-flight detached deliveries finish.
func (f *Fanout) Wait() {
	f.wg.Wait()
}

func (f *Fanout) deliver(ctx context.Context, s namedSink, event domain.AuditEvent) {
	defer func() {
		if r := recover(); r != nil {
			f.fail(s.name, event, fmt.Errorf("sink panicked: %v", r))
		}
	}()
	if err := s.sink.Publish(ctx, event); err != nil {
		f.fail(s.name, event, err)
	}
}

func (f *Fanout) fail(name string, event domain.AuditEvent, err error) {
	metrics.PublishFailures.WithLabelValues(name).Inc()
	log.WithError(err).WithFields(log.Fields{
		"sink":     name,
		"audit_id": event.ID,
	}).Warn("Failed to publish audit event")
}
