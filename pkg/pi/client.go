package pi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/piescrow/piescrow-backend/pkg/config"
	pkgerrors "github.com/piescrow/piescrow-backend/pkg/errors"
	"github.com/piescrow/piescrow-backend/pkg/logger"
)

var (
	errAPIKeyRequired = errors.New("pi api key is required")
	errLoggerRequired = errors.New("pi logger is required")
)

// Client exposes Pi platform payment primitives with centralized auth,
// logging, validation, and error mapping.
type Client struct {
	baseURL  string
	apiKey   string
	http     *http.Client
	logger   *logger.Logger
	validate *validator.Validate
}

// NewClient initializes the Pi platform wrapper and validates the credentials.
func NewClient(ctx context.Context, cfg config.PiConfig, logg *logger.Logger) (*Client, error) {
	if logg == nil {
		return nil, errLoggerRequired
	}
	apiKey := strings.TrimSpace(cfg.APIKey)
	if apiKey == "" {
		return nil, errAPIKeyRequired
	}
	baseURL := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if baseURL == "" {
		baseURL = "https://api.minepi.com"
	}

	c := &Client{
		baseURL:  baseURL,
		apiKey:   apiKey,
		http:     &http.Client{Timeout: cfg.Timeout},
		logger:   logg,
		validate: validator.New(),
	}

	logg.Info(ctx, "pi client initialized")
	return c, nil
}

// BaseURL reports the platform endpoint in use.
func (c *Client) BaseURL() string {
	if c == nil {
		return ""
	}
	return c.baseURL
}

// GetPayment fetches the current payment resource by its platform identifier.
func (c *Client) GetPayment(ctx context.Context, paymentID string) (*PaymentDTO, error) {
	if strings.TrimSpace(paymentID) == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "payment id is required")
	}
	c.log(ctx, "request", "get_payment", map[string]any{"payment_id": paymentID})

	var payment PaymentDTO
	if err := c.do(ctx, http.MethodGet, "/v2/payments/"+paymentID, nil, &payment, "get payment"); err != nil {
		c.log(ctx, "error", "get_payment", map[string]any{"error": err.Error()})
		return nil, err
	}

	c.log(ctx, "response", "get_payment", map[string]any{
		"payment_id": payment.Identifier,
		"user_uid":   payment.UserUID,
		"amount":     payment.Amount,
	})
	return &payment, nil
}

// CreatePayment opens an app-to-user payment and returns its identifier.
func (c *Client) CreatePayment(ctx context.Context, params CreatePaymentParams) (string, error) {
	if err := c.validate.Struct(params); err != nil {
		return "", pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid create payment params")
	}
	c.log(ctx, "request", "create_payment", map[string]any{
		"uid":    params.UID,
		"amount": params.Amount,
	})

	var resp createPaymentResponse
	if err := c.do(ctx, http.MethodPost, "/v2/payments", createPaymentRequest{Payment: params}, &resp, "create payment"); err != nil {
		c.log(ctx, "error", "create_payment", map[string]any{"error": err.Error()})
		return "", err
	}
	if resp.Identifier == "" {
		return "", pkgerrors.New(pkgerrors.CodeDependency, "pi create payment returned no identifier")
	}

	c.log(ctx, "response", "create_payment", map[string]any{"payment_id": resp.Identifier})
	return resp.Identifier, nil
}

// SubmitPayment broadcasts the payment to the blockchain and returns the
// transaction id.
func (c *Client) SubmitPayment(ctx context.Context, paymentID string) (string, error) {
	c.log(ctx, "request", "submit_payment", map[string]any{"payment_id": paymentID})

	var resp submitPaymentResponse
	if err := c.do(ctx, http.MethodPost, "/v2/payments/"+paymentID+"/submit", nil, &resp, "submit payment"); err != nil {
		c.log(ctx, "error", "submit_payment", map[string]any{"error": err.Error()})
		return "", err
	}
	if resp.TxID == "" {
		return "", pkgerrors.New(pkgerrors.CodeDependency, "pi submit payment returned no txid")
	}

	c.log(ctx, "response", "submit_payment", map[string]any{
		"payment_id": paymentID,
		"txid":       resp.TxID,
	})
	return resp.TxID, nil
}

// CompletePayment reports the broadcast transaction back to the platform.
func (c *Client) CompletePayment(ctx context.Context, paymentID, txid string) (*PaymentDTO, error) {
	if strings.TrimSpace(txid) == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "transaction id is required")
	}
	c.log(ctx, "request", "complete_payment", map[string]any{
		"payment_id": paymentID,
		"txid":       txid,
	})

	var payment PaymentDTO
	if err := c.do(ctx, http.MethodPost, "/v2/payments/"+paymentID+"/complete", completePaymentRequest{TxID: txid}, &payment, "complete payment"); err != nil {
		c.log(ctx, "error", "complete_payment", map[string]any{"error": err.Error()})
		return nil, err
	}

	c.log(ctx, "response", "complete_payment", map[string]any{"payment_id": payment.Identifier})
	return &payment, nil
}

// ApprovePayment grants developer approval for a user-to-app payment.
func (c *Client) ApprovePayment(ctx context.Context, paymentID string) (*PaymentDTO, error) {
	c.log(ctx, "request", "approve_payment", map[string]any{"payment_id": paymentID})

	var payment PaymentDTO
	if err := c.do(ctx, http.MethodPost, "/v2/payments/"+paymentID+"/approve", nil, &payment, "approve payment"); err != nil {
		c.log(ctx, "error", "approve_payment", map[string]any{"error": err.Error()})
		return nil, err
	}

	c.log(ctx, "response", "approve_payment", map[string]any{"payment_id": payment.Identifier})
	return &payment, nil
}

// CancelPayment voids a payment that will not complete.
func (c *Client) CancelPayment(ctx context.Context, paymentID string) (*PaymentDTO, error) {
	c.log(ctx, "request", "cancel_payment", map[string]any{"payment_id": paymentID})

	var payment PaymentDTO
	if err := c.do(ctx, http.MethodPost, "/v2/payments/"+paymentID+"/cancel", nil, &payment, "cancel payment"); err != nil {
		c.log(ctx, "error", "cancel_payment", map[string]any{"error": err.Error()})
		return nil, err
	}

	c.log(ctx, "response", "cancel_payment", map[string]any{"payment_id": payment.Identifier})
	return &payment, nil
}

// IncompleteServerPayments lists app-initiated payments the platform still
// considers open.
func (c *Client) IncompleteServerPayments(ctx context.Context) ([]PaymentDTO, error) {
	c.log(ctx, "request", "incomplete_server_payments", nil)

	var resp incompletePaymentsResponse
	if err := c.do(ctx, http.MethodGet, "/v2/payments/incomplete_server_payments", nil, &resp, "list incomplete payments"); err != nil {
		c.log(ctx, "error", "incomplete_server_payments", map[string]any{"error": err.Error()})
		return nil, err
	}

	c.log(ctx, "response", "incomplete_server_payments", map[string]any{"count": len(resp.IncompleteServerPayments)})
	return resp.IncompleteServerPayments, nil
}

func (c *Client) do(ctx context.Context, method, path string, body, out any, op string) error {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, fmt.Sprintf("pi %s encode failed", op))
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, fmt.Sprintf("pi %s request failed", op))
	}
	req.Header.Set("Authorization", "Key "+c.apiKey)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, fmt.Sprintf("pi %s failed", op))
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, fmt.Sprintf("pi %s read failed", op))
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		code := domainCodeForStatus(resp.StatusCode)
		return pkgerrors.New(code, fmt.Sprintf("pi %s failed: status %d: %s", op, resp.StatusCode, platformErrorMessage(raw)))
	}

	if out == nil || len(raw) == 0 {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, fmt.Sprintf("pi %s decode failed", op))
	}
	return nil
}

func (c *Client) log(ctx context.Context, phase, op string, fields map[string]any) {
	if c == nil || c.logger == nil {
		return
	}
	logFields := map[string]any{
		"operation": op,
		"phase":     phase,
	}
	for k, v := range fields {
		logFields[k] = c.redact(k, v)
	}
	ctx = c.logger.WithFields(ctx, logFields)
	switch phase {
	case "error":
		c.logger.Error(ctx, fmt.Sprintf("pi %s", op), errors.New(fmt.Sprint(fields["error"])))
	default:
		c.logger.Info(ctx, fmt.Sprintf("pi %s", phase))
	}
}

func (c *Client) redact(key string, value any) any {
	lower := strings.ToLower(key)
	for _, sensitive := range []string{"key", "token", "secret", "authorization"} {
		if strings.Contains(lower, sensitive) {
			return "[REDACTED]"
		}
	}
	return value
}

func platformErrorMessage(raw []byte) string {
	var payload struct {
		Error        string `json:"error"`
		ErrorMessage string `json:"error_message"`
		Message      string `json:"message"`
	}
	if err := json.Unmarshal(raw, &payload); err == nil {
		switch {
		case payload.ErrorMessage != "":
			return payload.ErrorMessage
		case payload.Error != "":
			return payload.Error
		case payload.Message != "":
			return payload.Message
		}
	}
	msg := strings.TrimSpace(string(raw))
	if len(msg) > 256 {
		msg = msg[:256]
	}
	return msg
}

func domainCodeForStatus(status int) pkgerrors.Code {
	switch status {
	case http.StatusUnauthorized:
		return pkgerrors.CodeUnauthorized
	case http.StatusForbidden:
		return pkgerrors.CodeForbidden
	case http.StatusNotFound:
		return pkgerrors.CodeNotFound
	case http.StatusConflict:
		return pkgerrors.CodeConflict
	case http.StatusUnprocessableEntity:
		return pkgerrors.CodeStateConflict
	default:
		if status >= 400 && status < 500 {
			return pkgerrors.CodeValidation
		}
		return pkgerrors.CodeDependency
	}
}
