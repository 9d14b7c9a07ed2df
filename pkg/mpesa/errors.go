package mpesa

import "fmt"

// GatewayError is a typed failure from the payment gateway. CustomerMessage
// is the only text that may be shown to end users; Message and Code are for
// logs and operators.
type GatewayError struct {
	Code            string `json:"code"`
	Message         string `json:"message"`
	CustomerMessage string `json:"customer_message"`
	Field           string `json:"field,omitempty"`
	HTTPStatus      int    `json:"-"`
}

func (e *GatewayError) Error() string {
	if e == nil {
		return ""
	}
	return fmt.Sprintf("mpesa gateway error %s: %s", e.Code, e.Message)
}

// customerMessages maps known gateway error codes to pre-approved customer
// copy; raw gateway text must never reach end users.
var customerMessages = map[string]string{
	"invalid_phone_number": "The phone number provided is not valid for M-Pesa payments.",
	"insufficient_balance": "The M-Pesa account has insufficient balance.",
	"request_timeout":      "The payment request timed out. Please try again.",
	"duplicate_request":    "A payment request for this order is already in progress.",
	"service_unavailable":  "M-Pesa is temporarily unavailable. Please try again shortly.",
}

const genericCustomerMessage = "We could not start the M-Pesa payment. Please try again."

func customerMessageFor(code, provided string) string {
	if provided != "" {
		return provided
	}
	if msg, ok := customerMessages[code]; ok {
		return msg
	}
	return genericCustomerMessage
}
