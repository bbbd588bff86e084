package payments

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"regexp"
	"time"

	"github.com/google/uuid"

	"whatsbot/internal/common/errors"
	"whatsbot/internal/common/httpclient"
	"whatsbot/internal/common/logger"
)

var (
	emailPattern = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)
	phonePattern = regexp.MustCompile(`^\d{10,15}$`)
)

// minAmountCents is the gateway's floor for COP charges.
const minAmountCents = 1000

// TransactionRequest describes a one-off charge.
type TransactionRequest struct {
	AmountInCents int64  `json:"amount_in_cents"`
	CustomerEmail string `json:"customer_email"`
	PhoneNumber   string `json:"phone_number"`
	FullName      string `json:"full_name"`
	PaymentMethod string `json:"payment_method_type"`
	Reference     string `json:"reference"`
	RedirectURL   string `json:"redirect_url"`
}

// SubscriptionRequest describes a recurring charge.
type SubscriptionRequest struct {
	AmountInCents int64  `json:"amount_in_cents"`
	CustomerEmail string `json:"customer_email"`
	PhoneNumber   string `json:"phone_number"`
	FullName      string `json:"full_name"`
	Frequency     string `json:"frequency"`
	Interval      int    `json:"interval"`
}

// PaymentLinkRequest describes a shareable checkout page.
type PaymentLinkRequest struct {
	AmountInCents int64  `json:"amount_in_cents"`
	Name          string `json:"name"`
	Description   string `json:"description"`
	CustomerEmail string `json:"customer_email"`
	PhoneNumber   string `json:"phone_number"`
	FullName      string `json:"full_name"`
	SingleUse     bool   `json:"single_use"`
}

// Resource is the gateway's envelope for created objects.
type Resource struct {
	ID        string `json:"id"`
	Status    string `json:"status"`
	Reference string `json:"reference"`
}

// Client calls the gateway's management API with the merchant private key.
type Client struct {
	baseURL    string
	privateKey string
	http       *httpclient.Client
	logger     logger.Logger
}

func NewClient(baseURL, privateKey string, timeout time.Duration, log logger.Logger) *Client {
	return &Client{
		baseURL:    baseURL,
		privateKey: privateKey,
		http:       httpclient.NewClient(timeout),
		logger:     log,
	}
}

// CreateTransaction validates and submits a one-off COP charge.
func (c *Client) CreateTransaction(ctx context.Context, req TransactionRequest) (*Resource, error) {
	if err := validateCharge(req.AmountInCents, req.CustomerEmail, req.PhoneNumber); err != nil {
		return nil, err
	}

	method := req.PaymentMethod
	if method == "" {
		method = "NEQUI"
	}
	reference := req.Reference
	if reference == "" {
		reference = GenerateReference()
	}

	payload := map[string]interface{}{
		"amount_in_cents": req.AmountInCents,
		"currency":        "COP",
		"customer_email":  req.CustomerEmail,
		"payment_method": map[string]interface{}{
			"type":         method,
			"phone_number": req.PhoneNumber,
		},
		"reference":    reference,
		"redirect_url": req.RedirectURL,
		"customer_data": map[string]interface{}{
			"phone_number": req.PhoneNumber,
			"full_name":    req.FullName,
		},
	}

	res, err := c.post(ctx, "/transactions", payload)
	if err != nil {
		return nil, err
	}
	c.logger.Info("Transaction created", map[string]interface{}{"transaction_id": res.ID})
	return res, nil
}

// CreateSubscription validates and opens a recurring charge, monthly by
// default.
func (c *Client) CreateSubscription(ctx context.Context, req SubscriptionRequest) (*Resource, error) {
	if err := validateCharge(req.AmountInCents, req.CustomerEmail, req.PhoneNumber); err != nil {
		return nil, err
	}

	frequency := req.Frequency
	if frequency == "" {
		frequency = "MONTHLY"
	}
	interval := req.Interval
	if interval == 0 {
		interval = 1
	}

	payload := map[string]interface{}{
		"amount_in_cents": req.AmountInCents,
		"currency":        "COP",
		"customer_email":  req.CustomerEmail,
		"frequency":       frequency,
		"interval":        interval,
		"reference":       GenerateReference(),
		"payment_method": map[string]interface{}{
			"type":         "NEQUI",
			"phone_number": req.PhoneNumber,
		},
		"customer_data": map[string]interface{}{
			"phone_number": req.PhoneNumber,
			"full_name":    req.FullName,
		},
	}

	res, err := c.post(ctx, "/subscriptions", payload)
	if err != nil {
		return nil, err
	}
	c.logger.Info("Subscription created", map[string]interface{}{"subscription_id": res.ID})
	return res, nil
}

// CancelSubscription stops a recurring charge.
func (c *Client) CancelSubscription(ctx context.Context, subscriptionID string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodDelete,
		c.baseURL+"/subscriptions/"+subscriptionID, nil)
	if err != nil {
		return errors.NewValidationFailedError(fmt.Sprintf("build cancel request: %v", err))
	}
	req.Header.Set("Authorization", "Bearer "+c.privateKey)

	resp, err := c.http.Do(req)
	if err != nil {
		return errors.NewExternalServiceFailedError("payments", err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return errors.NewExternalServiceFailedError("payments",
			fmt.Errorf("cancel subscription %s: status %d", subscriptionID, resp.StatusCode))
	}
	c.logger.Info("Subscription cancelled", map[string]interface{}{"subscription_id": subscriptionID})
	return nil
}

// CreatePaymentLink builds a shareable checkout page for a charge.
func (c *Client) CreatePaymentLink(ctx context.Context, req PaymentLinkRequest) (*Resource, error) {
	if req.AmountInCents < minAmountCents {
		return nil, errors.NewValidationFailedError("amount below the gateway minimum")
	}
	if req.Name == "" {
		return nil, errors.NewValidationFailedError("payment link name is required")
	}

	payload := map[string]interface{}{
		"amount_in_cents": req.AmountInCents,
		"currency":        "COP",
		"name":            req.Name,
		"description":     req.Description,
		"single_use":      req.SingleUse,
		"customer_data": map[string]interface{}{
			"full_name":    req.FullName,
			"phone_number": req.PhoneNumber,
			"email":        req.CustomerEmail,
		},
	}

	res, err := c.post(ctx, "/payment_links", payload)
	if err != nil {
		return nil, err
	}
	c.logger.Info("Payment link created", map[string]interface{}{"payment_link_id": res.ID})
	return res, nil
}

// GetTransaction fetches the current state of a charge.
func (c *Client) GetTransaction(ctx context.Context, transactionID string) (*Resource, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		c.baseURL+"/transactions/"+transactionID, nil)
	if err != nil {
		return nil, errors.NewValidationFailedError(fmt.Sprintf("build get request: %v", err))
	}
	req.Header.Set("Authorization", "Bearer "+c.privateKey)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, errors.NewExternalServiceFailedError("payments", err)
	}
	defer resp.Body.Close()

	return decodeResource(resp)
}

// GenerateReference mints a collision-free merchant reference.
func GenerateReference() string {
	return fmt.Sprintf("mi-ia-%d-%s", time.Now().UnixMilli(), uuid.New().String()[:8])
}

func validateCharge(amountInCents int64, email, phone string) error {
	if amountInCents < minAmountCents {
		return errors.NewValidationFailedError("amount below the gateway minimum")
	}
	if !emailPattern.MatchString(email) {
		return errors.NewValidationFailedError("invalid customer email")
	}
	if !phonePattern.MatchString(phone) {
		return errors.NewValidationFailedError("invalid phone number")
	}
	return nil
}

func (c *Client) post(ctx context.Context, path string, payload map[string]interface{}) (*Resource, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, errors.NewValidationFailedError(fmt.Sprintf("encode payload: %v", err))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return nil, errors.NewValidationFailedError(fmt.Sprintf("build request: %v", err))
	}
	req.Header.Set("Authorization", "Bearer "+c.privateKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		c.logger.WithError(err).Error("Payment gateway unreachable", map[string]interface{}{"path": path})
		return nil, errors.NewExternalServiceFailedError("payments", err)
	}
	defer resp.Body.Close()

	return decodeResource(resp)
}

func decodeResource(resp *http.Response) (*Resource, error) {
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, errors.NewExternalServiceFailedError("payments",
			fmt.Errorf("status %d: %s", resp.StatusCode, raw))
	}

	var envelope struct {
		Data Resource `json:"data"`
	}
	if err := json.Unmarshal(raw, &envelope); err != nil || envelope.Data.ID == "" {
		return nil, errors.NewMalformedUpstreamResponseError("gateway response carried no resource")
	}
	return &envelope.Data, nil
}
