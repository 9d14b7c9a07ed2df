package enums

import "fmt"

// OrderPaymentStatus summarizes payment progress on the order itself.
type OrderPaymentStatus string

const (
	OrderPaymentStatusUnpaid    OrderPaymentStatus = "unpaid"
	OrderPaymentStatusPending   OrderPaymentStatus = "pending"
	OrderPaymentStatusPaid      OrderPaymentStatus = "paid"
	OrderPaymentStatusConfirmed OrderPaymentStatus = "confirmed"
	OrderPaymentStatusFailed    OrderPaymentStatus = "failed"
)

var validOrderPaymentStatuses = []OrderPaymentStatus{
	OrderPaymentStatusUnpaid,
	OrderPaymentStatusPending,
	OrderPaymentStatusPaid,
	OrderPaymentStatusConfirmed,
	OrderPaymentStatusFailed,
}

// String implements fmt.Stringer.
func (o OrderPaymentStatus) String() string {
	return string(o)
}

// IsValid reports whether the value is a known OrderPaymentStatus.
func (o OrderPaymentStatus) IsValid() bool {
	for _, candidate := range validOrderPaymentStatuses {
		if candidate == o {
			return true
		}
	}
	return false
}

// ParseOrderPaymentStatus converts raw input into an OrderPaymentStatus.
func ParseOrderPaymentStatus(value string) (OrderPaymentStatus, error) {
	for _, candidate := range validOrderPaymentStatuses {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid order payment status %q", value)
}
