package env

import (
	"context"
	"errors"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"vessel.services/vessel/core"
	"vessel.services/vessel/lib"
)

// metrics emits counters for spawned/terminated processes, delivered
// messages and signals, plus a mailbox-depth gauge. The default otel
// meter provider is a no-op, so absence of a metrics consumer changes
// observability only, never behavior.
type metrics struct {
	env *Environment

	processesSpawned    metric.Int64Counter
	processesTerminated metric.Int64Counter
	messagesDelivered   metric.Int64Counter
	signalsDelivered    metric.Int64Counter

	registration metric.Registration
}

func newMetrics(e *Environment) *metrics {
	m := &metrics{env: e}
	meter := otel.Meter("vessel.services/vessel")

	var err error
	if m.processesSpawned, err = meter.Int64Counter("vessel.processes.spawned"); err != nil {
		lib.Warning("metrics: %s", err)
	}
	if m.processesTerminated, err = meter.Int64Counter("vessel.processes.terminated"); err != nil {
		lib.Warning("metrics: %s", err)
	}
	if m.messagesDelivered, err = meter.Int64Counter("vessel.messages.delivered"); err != nil {
		lib.Warning("metrics: %s", err)
	}
	if m.signalsDelivered, err = meter.Int64Counter("vessel.signals.delivered"); err != nil {
		lib.Warning("metrics: %s", err)
	}

	depth, err := meter.Int64ObservableGauge("vessel.mailbox.depth")
	if err != nil {
		lib.Warning("metrics: %s", err)
		return m
	}
	m.registration, err = meter.RegisterCallback(
		func(_ context.Context, o metric.Observer) error {
			var total int64
			for _, p := range e.registry.list() {
				total += p.mailbox.Len()
			}
			o.ObserveInt64(depth, total)
			return nil
		}, depth)
	if err != nil {
		lib.Warning("metrics: %s", err)
	}
	return m
}

func (m *metrics) attrs() metric.MeasurementOption {
	return metric.WithAttributes(attribute.String("environment", m.env.name))
}

func (m *metrics) spawned() {
	if m.processesSpawned == nil {
		return
	}
	m.processesSpawned.Add(context.Background(), 1, m.attrs())
}

func (m *metrics) terminated(reason error) {
	if m.processesTerminated == nil {
		return
	}
	kind := "abnormal"
	if errors.Is(reason, core.ReasonNormal) {
		kind = "normal"
	} else if errors.Is(reason, core.ReasonKilled) {
		kind = "killed"
	}
	m.processesTerminated.Add(context.Background(), 1, m.attrs(),
		metric.WithAttributes(attribute.String("reason", kind)))
}

func (m *metrics) messageSent() {
	if m.messagesDelivered == nil {
		return
	}
	m.messagesDelivered.Add(context.Background(), 1, m.attrs())
}

func (m *metrics) signalSent() {
	if m.signalsDelivered == nil {
		return
	}
	m.signalsDelivered.Add(context.Background(), 1, m.attrs())
}

func (m *metrics) unregister() {
	if m.registration != nil {
		m.registration.Unregister()
	}
}
