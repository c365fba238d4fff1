package messaging

const (
	// TopicPaymentReconcile carries reconciliation requests, keyed by
	// payment reference. Webhooks and admin actions enqueue here; the
	// worker is the only consumer.
	TopicPaymentReconcile = "payment.reconcile"

	// TopicOrderConfirmed carries confirmations of paid orders, keyed by
	// order ID. Published at most once per order, when payment is first
	// applied.
	TopicOrderConfirmed = "order.confirmed"
)
