package enums

import "fmt"

// NotificationKind identifies what a notification announces.
type NotificationKind string

const (
	NotificationKindOrderCreated     NotificationKind = "order_created"
	NotificationKindPaymentConfirmed NotificationKind = "payment_confirmed"
	NotificationKindPaymentFailed    NotificationKind = "payment_failed"
	NotificationKindOrderStatus      NotificationKind = "order_status"
)

var validNotificationKinds = []NotificationKind{
	NotificationKindOrderCreated,
	NotificationKindPaymentConfirmed,
	NotificationKindPaymentFailed,
	NotificationKindOrderStatus,
}

// String implements fmt.Stringer.
func (n NotificationKind) String() string {
	return string(n)
}

// IsValid reports whether the value is a known NotificationKind.
func (n NotificationKind) IsValid() bool {
	for _, candidate := range validNotificationKinds {
		if candidate == n {
			return true
		}
	}
	return false
}

// ParseNotificationKind converts raw input into a NotificationKind.
func ParseNotificationKind(value string) (NotificationKind, error) {
	for _, candidate := range validNotificationKinds {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid notification kind %q", value)
}
