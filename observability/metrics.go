// Package observability provides an OpenTelemetry-based metrics hook for
// onboard. Register MetricsHook on a controller's hook registry to record
// counters and durations for step completion, skips, validation failures,
// flow completion, and commit failures.
package observability

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/xraph/onboard"
	"github.com/xraph/onboard/hook"
	"github.com/xraph/onboard/id"
)

// meterName is the instrumentation scope name for onboard metrics.
const meterName = "github.com/xraph/onboard"

// Compile-time interface checks.
var (
	_ hook.Hook             = (*MetricsHook)(nil)
	_ hook.StepCompleted    = (*MetricsHook)(nil)
	_ hook.StepSkipped      = (*MetricsHook)(nil)
	_ hook.ValidationFailed = (*MetricsHook)(nil)
	_ hook.FlowCompleted    = (*MetricsHook)(nil)
	_ hook.CommitFailed     = (*MetricsHook)(nil)
)

// MetricsHook records flow lifecycle metrics.
//
// Instruments:
//   - onboard.step.completed (Int64Counter): steps passing validation,
//     with attribute: step
//   - onboard.step.duration (Float64Histogram): time spent on a step in
//     seconds, with attribute: step
//   - onboard.step.skipped (Int64Counter): steps bypassed by skip
//     predicates, with attribute: step
//   - onboard.validation.failed (Int64Counter): rejected advances, with
//     attributes: step, field, code
//   - onboard.flow.completed (Int64Counter): committed profiles
//   - onboard.flow.duration (Float64Histogram): start-to-commit time in
//     seconds
//   - onboard.commit.failed (Int64Counter): rejected profile commits
type MetricsHook struct {
	stepCompleted    metric.Int64Counter
	stepDuration     metric.Float64Histogram
	stepSkipped      metric.Int64Counter
	validationFailed metric.Int64Counter
	flowCompleted    metric.Int64Counter
	flowDuration     metric.Float64Histogram
	commitFailed     metric.Int64Counter
}

// NewMetricsHook creates a metrics hook using the global OTel
// MeterProvider. If none is configured, noop instruments are used and
// the hook becomes a pass-through.
func NewMetricsHook() *MetricsHook {
	return NewMetricsHookWithMeter(otel.Meter(meterName))
}

// NewMetricsHookWithMeter creates a metrics hook using the provided
// meter. This variant allows injecting a specific MeterProvider for
// testing.
func NewMetricsHookWithMeter(meter metric.Meter) *MetricsHook {
	// Instruments are created once up front. On error, the OTel API
	// returns noop instruments, so the hook degrades gracefully.
	stepCompleted, _ := meter.Int64Counter(
		"onboard.step.completed",
		metric.WithDescription("Steps that passed validation"),
		metric.WithUnit("{step}"),
	)
	stepDuration, _ := meter.Float64Histogram(
		"onboard.step.duration",
		metric.WithDescription("Time spent on a step before it completed"),
		metric.WithUnit("s"),
	)
	stepSkipped, _ := meter.Int64Counter(
		"onboard.step.skipped",
		metric.WithDescription("Steps bypassed by skip predicates"),
		metric.WithUnit("{step}"),
	)
	validationFailed, _ := meter.Int64Counter(
		"onboard.validation.failed",
		metric.WithDescription("Advance attempts rejected by validation"),
		metric.WithUnit("{attempt}"),
	)
	flowCompleted, _ := meter.Int64Counter(
		"onboard.flow.completed",
		metric.WithDescription("Flows that committed a profile"),
		metric.WithUnit("{flow}"),
	)
	flowDuration, _ := meter.Float64Histogram(
		"onboard.flow.duration",
		metric.WithDescription("Start-to-commit duration of a flow"),
		metric.WithUnit("s"),
	)
	commitFailed, _ := meter.Int64Counter(
		"onboard.commit.failed",
		metric.WithDescription("Profile commits rejected by the identity backend"),
		metric.WithUnit("{attempt}"),
	)
	return &MetricsHook{
		stepCompleted:    stepCompleted,
		stepDuration:     stepDuration,
		stepSkipped:      stepSkipped,
		validationFailed: validationFailed,
		flowCompleted:    flowCompleted,
		flowDuration:     flowDuration,
		commitFailed:     commitFailed,
	}
}

// Name implements hook.Hook.
func (m *MetricsHook) Name() string { return "otel-metrics" }

// OnStepCompleted implements hook.StepCompleted.
func (m *MetricsHook) OnStepCompleted(ctx context.Context, _ id.SessionID, stepKey string, elapsed time.Duration) error {
	attrs := metric.WithAttributes(attribute.String("step", stepKey))
	m.stepCompleted.Add(ctx, 1, attrs)
	m.stepDuration.Record(ctx, elapsed.Seconds(), attrs)
	return nil
}

// OnStepSkipped implements hook.StepSkipped.
func (m *MetricsHook) OnStepSkipped(ctx context.Context, _ id.SessionID, stepKey string) error {
	m.stepSkipped.Add(ctx, 1, metric.WithAttributes(attribute.String("step", stepKey)))
	return nil
}

// OnValidationFailed implements hook.ValidationFailed.
func (m *MetricsHook) OnValidationFailed(ctx context.Context, _ id.SessionID, verr *onboard.ValidationError) error {
	m.validationFailed.Add(ctx, 1, metric.WithAttributes(
		attribute.String("step", verr.Step),
		attribute.String("field", verr.Field),
		attribute.String("code", verr.Code),
	))
	return nil
}

// OnFlowCompleted implements hook.FlowCompleted.
func (m *MetricsHook) OnFlowCompleted(ctx context.Context, _ id.SessionID, _ onboard.ProfileID, elapsed time.Duration) error {
	m.flowCompleted.Add(ctx, 1)
	m.flowDuration.Record(ctx, elapsed.Seconds())
	return nil
}

// OnCommitFailed implements hook.CommitFailed.
func (m *MetricsHook) OnCommitFailed(ctx context.Context, _ id.SessionID, _ error) error {
	m.commitFailed.Add(ctx, 1)
	return nil
}
