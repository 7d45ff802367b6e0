package types

type WebhookEventType string

const (
	WebhookEventSubscriptionCreated  WebhookEventType = "subscription.created"
	WebhookEventSubscriptionUpdated  WebhookEventType = "subscription.updated"
	WebhookEventSubscriptionCanceled WebhookEventType = "subscription.canceled"
	WebhookEventSubscriptionRenewed  WebhookEventType = "subscription.renewed"
	WebhookEventPaymentSucceeded     WebhookEventType = "payment.succeeded"
	WebhookEventPaymentFailed        WebhookEventType = "payment.failed"
	WebhookEventPaymentRefunded      WebhookEventType = "payment.refunded"
)

// WebhookEventTypes lists every event a webhook may subscribe to.
var WebhookEventTypes = []WebhookEventType{
	WebhookEventSubscriptionCreated,
	WebhookEventSubscriptionUpdated,
	WebhookEventSubscriptionCanceled,
	WebhookEventSubscriptionRenewed,
	WebhookEventPaymentSucceeded,
	WebhookEventPaymentFailed,
	WebhookEventPaymentRefunded,
}

func ValidWebhookEventType(v string) bool {
	for _, t := range WebhookEventTypes {
		if string(t) == v {
			return true
		}
	}
	return false
}
