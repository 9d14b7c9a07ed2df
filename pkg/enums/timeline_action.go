package enums

import "fmt"

// TimelineAction identifies an append-only order timeline event kind.
type TimelineAction string

const (
	TimelineActionOrderCreated      TimelineAction = "order_created"
	TimelineActionPaymentSubmitted  TimelineAction = "payment_submitted"
	TimelineActionPaymentConfirmed  TimelineAction = "payment_confirmed"
	TimelineActionPaymentFailed     TimelineAction = "payment_failed"
	TimelineActionOrderApproved     TimelineAction = "order_approved"
	TimelineActionOrderRejected     TimelineAction = "order_rejected"
	TimelineActionStatusChanged     TimelineAction = "status_changed"
	TimelineActionDeliveryAssigned  TimelineAction = "delivery_assigned"
	TimelineActionDeliveryStarted   TimelineAction = "delivery_started"
	TimelineActionDeliveryCompleted TimelineAction = "delivery_completed"
	TimelineActionOrderReceived     TimelineAction = "order_received"
	TimelineActionOrderCompleted    TimelineAction = "order_completed"
	TimelineActionReviewSubmitted   TimelineAction = "review_submitted"
)

var validTimelineActions = []TimelineAction{
	TimelineActionOrderCreated,
	TimelineActionPaymentSubmitted,
	TimelineActionPaymentConfirmed,
	TimelineActionPaymentFailed,
	TimelineActionOrderApproved,
	TimelineActionOrderRejected,
	TimelineActionStatusChanged,
	TimelineActionDeliveryAssigned,
	TimelineActionDeliveryStarted,
	TimelineActionDeliveryCompleted,
	TimelineActionOrderReceived,
	TimelineActionOrderCompleted,
	TimelineActionReviewSubmitted,
}

// String implements fmt.Stringer.
func (t TimelineAction) String() string {
	return string(t)
}

// IsValid reports whether the value is a known TimelineAction.
func (t TimelineAction) IsValid() bool {
	for _, candidate := range validTimelineActions {
		if candidate == t {
			return true
		}
	}
	return false
}

// ParseTimelineAction converts raw input into a TimelineAction.
func ParseTimelineAction(value string) (TimelineAction, error) {
	for _, candidate := range validTimelineActions {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid timeline action %q", value)
}
