package mpesa

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sethvargo/go-retry"
	"github.com/shopspring/decimal"

	"github.com/kukusoko/kukusoko-backend/pkg/config"
	"github.com/kukusoko/kukusoko-backend/pkg/logger"
)

var (
	errAPIKeyRequired  = errors.New("mpesa api key is required")
	errBaseURLRequired = errors.New("mpesa base url is required")
	errLoggerRequired  = errors.New("mpesa logger is required")
)

// Client talks to the hosted STK push gateway with centralized auth,
// logging, retries, and error mapping.
type Client struct {
	httpClient *http.Client
	baseURL    string
	apiKey     string
	maxRetries uint64
	logger     *logger.Logger
}

// STKPushRequest captures one push-payment initiation.
type STKPushRequest struct {
	Phone       string
	Amount      decimal.Decimal
	ExternalRef string
	CallbackURL string
}

// STKPushResult is the gateway acknowledgement that a push was initiated.
// The actual payment outcome arrives later on the callback URL.
type STKPushResult struct {
	TransactionReference string
	Message              string
}

// CallbackPayload is the gateway-defined body posted to the callback URL.
type CallbackPayload struct {
	TransactionReference string  `json:"TransactionReference"`
	ExternalReference    string  `json:"ExternalReference"`
	ResultCode           int     `json:"ResultCode"`
	ResultDesc           string  `json:"ResultDesc"`
	Amount               float64 `json:"Amount"`
	MpesaReceiptNumber   string  `json:"MpesaReceiptNumber,omitempty"`
	PhoneNumber          string  `json:"PhoneNumber"`
}

// Gateway result codes. Zero is success; 1032 is the user cancelling the
// STK prompt on their handset; everything else is a failure.
const (
	ResultCodeSuccess       = 0
	ResultCodeUserCancelled = 1032
)

// NewClient validates configuration and builds the gateway client.
func NewClient(ctx context.Context, cfg config.MpesaConfig, logg *logger.Logger) (*Client, error) {
	if logg == nil {
		return nil, errLoggerRequired
	}
	baseURL := strings.TrimSuffix(strings.TrimSpace(cfg.BaseURL), "/")
	if baseURL == "" {
		return nil, errBaseURLRequired
	}
	apiKey := strings.TrimSpace(cfg.APIKey)
	if apiKey == "" {
		return nil, errAPIKeyRequired
	}

	timeout := cfg.RequestTimeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	maxRetries := uint64(0)
	if cfg.MaxRetries > 0 {
		maxRetries = uint64(cfg.MaxRetries)
	}

	c := &Client{
		httpClient: &http.Client{Timeout: timeout},
		baseURL:    baseURL,
		apiKey:     apiKey,
		maxRetries: maxRetries,
		logger:     logg,
	}

	logg.Info(ctx, "mpesa client initialized")
	return c, nil
}

// NewExternalReference returns a unique reference for one push attempt.
func (c *Client) NewExternalReference(prefix string) string {
	ref := strings.TrimSpace(prefix)
	if ref == "" {
		ref = "ks"
	}
	return fmt.Sprintf("%s-%s", ref, uuid.NewString())
}

type pushRequestBody struct {
	Phone       string `json:"phone"`
	Amount      string `json:"amount"`
	ExternalRef string `json:"external_reference"`
	CallbackURL string `json:"callback_url"`
}

type pushResponseBody struct {
	Success bool `json:"success"`
	Data    struct {
		TransactionReference string `json:"transaction_reference"`
		Message              string `json:"message"`
	} `json:"data"`
	Error struct {
		Code            string `json:"code"`
		Message         string `json:"message"`
		CustomerMessage string `json:"customer_message"`
		Field           string `json:"field"`
	} `json:"error"`
}

// InitiateSTKPush asks the gateway to push a payment prompt to the
// customer's handset. The phone number must already be normalized.
// Transient transport failures and 5xx responses are retried with
// fibonacci backoff; gateway rejections are returned as *GatewayError.
func (c *Client) InitiateSTKPush(ctx context.Context, req STKPushRequest) (*STKPushResult, error) {
	normalized, err := NormalizePhone(req.Phone)
	if err != nil {
		return nil, err
	}
	req.Phone = normalized
	if req.Amount.LessThanOrEqual(decimal.Zero) {
		return nil, fmt.Errorf("push amount must be positive, got %s", req.Amount)
	}
	if strings.TrimSpace(req.ExternalRef) == "" {
		return nil, errors.New("external reference is required")
	}

	body, err := json.Marshal(pushRequestBody{
		Phone:       req.Phone,
		Amount:      req.Amount.StringFixed(2),
		ExternalRef: req.ExternalRef,
		CallbackURL: req.CallbackURL,
	})
	if err != nil {
		return nil, fmt.Errorf("encoding push request: %w", err)
	}

	var result *STKPushResult
	backoff := retry.WithMaxRetries(c.maxRetries, retry.NewFibonacci(500*time.Millisecond))
	err = retry.Do(ctx, backoff, func(ctx context.Context) error {
		attempt, attemptErr := c.doPush(ctx, body)
		if attemptErr != nil {
			var gatewayErr *GatewayError
			if errors.As(attemptErr, &gatewayErr) && gatewayErr.HTTPStatus < http.StatusInternalServerError {
				return attemptErr
			}
			return retry.RetryableError(attemptErr)
		}
		result = attempt
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

func (c *Client) doPush(ctx context.Context, body []byte) (*STKPushResult, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/payments/stk-push", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("building push request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("calling mpesa gateway: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("reading gateway response: %w", err)
	}

	var parsed pushResponseBody
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return nil, fmt.Errorf("decoding gateway response (status %d): %w", resp.StatusCode, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 || !parsed.Success {
		code := parsed.Error.Code
		if code == "" {
			code = fmt.Sprintf("http_%d", resp.StatusCode)
		}
		return nil, &GatewayError{
			Code:            code,
			Message:         parsed.Error.Message,
			CustomerMessage: customerMessageFor(code, parsed.Error.CustomerMessage),
			Field:           parsed.Error.Field,
			HTTPStatus:      resp.StatusCode,
		}
	}

	return &STKPushResult{
		TransactionReference: parsed.Data.TransactionReference,
		Message:              parsed.Data.Message,
	}, nil
}
