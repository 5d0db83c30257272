package metrics

import (
	"context"
	"sync"

	"github.com/mcofie/gatepass-settlement/pkg/telemetry"
	"go.opentelemetry.io/otel/attribute"
)

var (
	// Settlement counters
	SettlementsTotal  *telemetry.Counter
	TicketsIssued     *telemetry.Counter
	InventoryExceeded *telemetry.Counter

	// Webhook counters
	WebhooksReceived *telemetry.Counter
	WebhooksRejected *telemetry.Counter

	// Outbox and notification counters
	OutboxPublished         *telemetry.Counter
	OutboxFailed            *telemetry.Counter
	NotificationsDispatched *telemetry.Counter
	NotificationsDLQ        *telemetry.Counter

	// Payout counters
	PayoutsRequested *telemetry.Counter

	// Error tracking
	ErrorsTotal *telemetry.Counter

	// Histograms
	SettlementDuration *telemetry.Histogram
	GatewayDuration    *telemetry.Histogram

	// Gauges
	SettlementsInFlight *telemetry.UpDownCounter

	initOnce sync.Once
	initErr  error
)

// Init initializes all settlement metrics
func Init() error {
	initOnce.Do(func() {
		initErr = initMetrics()
	})
	return initErr
}

func initMetrics() error {
	var err error

	SettlementsTotal, err = telemetry.NewCounter(telemetry.MetricOpts{
		Name:        "settlement_attempts_total",
		Description: "Settlement attempts by outcome and source",
		Unit:        "1",
	})
	if err != nil {
		return err
	}

	TicketsIssued, err = telemetry.NewCounter(telemetry.MetricOpts{
		Name:        "settlement_tickets_issued_total",
		Description: "Total number of tickets issued",
		Unit:        "1",
	})
	if err != nil {
		return err
	}

	InventoryExceeded, err = telemetry.NewCounter(telemetry.MetricOpts{
		Name:        "settlement_inventory_exceeded_total",
		Description: "Paid reservations rejected because the tier sold out",
		Unit:        "1",
	})
	if err != nil {
		return err
	}

	WebhooksReceived, err = telemetry.NewCounter(telemetry.MetricOpts{
		Name:        "settlement_webhooks_received_total",
		Description: "Total number of gateway webhooks received",
		Unit:        "1",
	})
	if err != nil {
		return err
	}

	WebhooksRejected, err = telemetry.NewCounter(telemetry.MetricOpts{
		Name:        "settlement_webhooks_rejected_total",
		Description: "Webhooks rejected before settlement",
		Unit:        "1",
	})
	if err != nil {
		return err
	}

	OutboxPublished, err = telemetry.NewCounter(telemetry.MetricOpts{
		Name:        "settlement_outbox_published_total",
		Description: "Outbox messages published to Kafka",
		Unit:        "1",
	})
	if err != nil {
		return err
	}

	OutboxFailed, err = telemetry.NewCounter(telemetry.MetricOpts{
		Name:        "settlement_outbox_failed_total",
		Description: "Outbox publish failures",
		Unit:        "1",
	})
	if err != nil {
		return err
	}

	NotificationsDispatched, err = telemetry.NewCounter(telemetry.MetricOpts{
		Name:        "settlement_notifications_dispatched_total",
		Description: "Ticket notifications handed to the artifact service",
		Unit:        "1",
	})
	if err != nil {
		return err
	}

	NotificationsDLQ, err = telemetry.NewCounter(telemetry.MetricOpts{
		Name:        "settlement_notifications_dlq_total",
		Description: "Ticket notifications moved to the dead letter queue",
		Unit:        "1",
	})
	if err != nil {
		return err
	}

	PayoutsRequested, err = telemetry.NewCounter(telemetry.MetricOpts{
		Name:        "settlement_payouts_requested_total",
		Description: "Payout requests by currency",
		Unit:        "1",
	})
	if err != nil {
		return err
	}

	ErrorsTotal, err = telemetry.NewCounter(telemetry.MetricOpts{
		Name:        "settlement_errors_total",
		Description: "Total number of errors by code and operation",
		Unit:        "1",
	})
	if err != nil {
		return err
	}

	SettlementDuration, err = telemetry.NewHistogramWithBuckets(telemetry.MetricOpts{
		Name:        "settlement_duration_seconds",
		Description: "Duration of a settle call",
		Unit:        "s",
	}, []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5})
	if err != nil {
		return err
	}

	GatewayDuration, err = telemetry.NewHistogramWithBuckets(telemetry.MetricOpts{
		Name:        "settlement_gateway_verify_seconds",
		Description: "Gateway verification latency",
		Unit:        "s",
	}, []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10}) // 50ms to the client timeout
	if err != nil {
		return err
	}

	SettlementsInFlight, err = telemetry.NewUpDownCounter(telemetry.MetricOpts{
		Name:        "settlement_in_flight",
		Description: "Settle calls currently running",
		Unit:        "1",
	})
	if err != nil {
		return err
	}

	return nil
}

// RecordSettlement records the outcome of one settle call
func RecordSettlement(ctx context.Context, source, outcome string, tickets int, durationSeconds float64) {
	if SettlementsTotal != nil {
		SettlementsTotal.Inc(ctx,
			attribute.String("source", source),
			attribute.String("outcome", outcome),
		)
	}
	if TicketsIssued != nil && tickets > 0 {
		TicketsIssued.Add(ctx, int64(tickets), attribute.String("source", source))
	}
	if SettlementDuration != nil {
		SettlementDuration.Record(ctx, durationSeconds, attribute.String("source", source))
	}
}

// RecordInventoryExceeded records a paid reservation that could not be fulfilled
func RecordInventoryExceeded(ctx context.Context, tierID string) {
	if InventoryExceeded != nil {
		InventoryExceeded.Inc(ctx, attribute.String("tier_id", tierID))
	}
}

// SettlementStarted tracks an in-flight settle call; call the returned func when done
func SettlementStarted(ctx context.Context) func() {
	if SettlementsInFlight == nil {
		return func() {}
	}
	SettlementsInFlight.Add(ctx, 1)
	return func() { SettlementsInFlight.Add(ctx, -1) }
}

// RecordGatewayVerify records gateway verification latency
func RecordGatewayVerify(ctx context.Context, gateway, status string, durationSeconds float64) {
	if GatewayDuration != nil {
		GatewayDuration.Record(ctx, durationSeconds,
			attribute.String("gateway", gateway),
			attribute.String("status", status),
		)
	}
}

// RecordWebhookReceived records a webhook receipt
func RecordWebhookReceived(ctx context.Context, source, eventType string) {
	if WebhooksReceived != nil {
		WebhooksReceived.Inc(ctx,
			attribute.String("source", source),
			attribute.String("event_type", eventType),
		)
	}
}

// RecordWebhookRejected records a webhook turned away before settlement
func RecordWebhookRejected(ctx context.Context, source, reason string) {
	if WebhooksRejected != nil {
		WebhooksRejected.Inc(ctx,
			attribute.String("source", source),
			attribute.String("reason", reason),
		)
	}
}

// RecordOutboxPublished records a published outbox message
func RecordOutboxPublished(ctx context.Context, eventType string) {
	if OutboxPublished != nil {
		OutboxPublished.Inc(ctx, attribute.String("event_type", eventType))
	}
}

// RecordOutboxFailed records a failed outbox publish
func RecordOutboxFailed(ctx context.Context, eventType string) {
	if OutboxFailed != nil {
		OutboxFailed.Inc(ctx, attribute.String("event_type", eventType))
	}
}

// RecordNotificationDispatched records a notification handoff
func RecordNotificationDispatched(ctx context.Context, resend bool) {
	if NotificationsDispatched != nil {
		NotificationsDispatched.Inc(ctx, attribute.Bool("resend", resend))
	}
}

// RecordNotificationDLQ records a notification moved to the DLQ
func RecordNotificationDLQ(ctx context.Context, topic string) {
	if NotificationsDLQ != nil {
		NotificationsDLQ.Inc(ctx, attribute.String("topic", topic))
	}
}

// RecordPayoutRequested records a payout request
func RecordPayoutRequested(ctx context.Context, currency string) {
	if PayoutsRequested != nil {
		PayoutsRequested.Inc(ctx, attribute.String("currency", currency))
	}
}

// RecordError records an error by code and operation
func RecordError(ctx context.Context, code, operation string) {
	if ErrorsTotal != nil {
		ErrorsTotal.Inc(ctx,
			attribute.String("error_code", code),
			attribute.String("operation", operation),
		)
	}
}
