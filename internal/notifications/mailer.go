package notifications

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/microcosm-cc/bluemonday"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
	"golang.org/x/text/number"

	domain "github.com/stitchfield/api/internal/domain"
	"github.com/stitchfield/api/internal/platform/config"
	"github.com/stitchfield/api/internal/platform/textutil"
)

// Mailer sends transactional mail for order lifecycle moments.
type Mailer interface {
	SendOrderConfirmation(ctx context.Context, order domain.Order, items []domain.OrderItem) error
}

// HTTPMailer posts templated mail to a SendGrid-compatible endpoint.
type HTTPMailer struct {
	endpoint   string
	apiKey     string
	from       mailAddress
	templateID string
	storeName  string
	client     *http.Client
	sanitizer  *bluemonday.Policy
	printer    *message.Printer
}

type mailAddress struct {
	Email string `json:"email"`
	Name  string `json:"name,omitempty"`
}

// MailerOption adjusts optional HTTPMailer behaviour.
type MailerOption func(*HTTPMailer)

// WithMailHTTPClient overrides the HTTP client used for delivery.
func WithMailHTTPClient(client *http.Client) MailerOption {
	return func(m *HTTPMailer) {
		if client != nil {
			m.client = client
		}
	}
}

// NewHTTPMailer builds a mailer from the mail and store configuration.
func NewHTTPMailer(mailCfg config.MailConfig, storeCfg config.StoreConfig, opts ...MailerOption) (*HTTPMailer, error) {
	endpoint := strings.TrimSpace(mailCfg.Endpoint)
	if endpoint == "" {
		return nil, errors.New("notifications: mail endpoint is required")
	}
	apiKey := strings.TrimSpace(mailCfg.APIKey)
	if apiKey == "" {
		return nil, errors.New("notifications: mail api key is required")
	}
	from := strings.TrimSpace(mailCfg.FromAddress)
	if from == "" {
		return nil, errors.New("notifications: mail from address is required")
	}

	mailer := &HTTPMailer{
		endpoint:   endpoint,
		apiKey:     apiKey,
		from:       mailAddress{Email: from, Name: strings.TrimSpace(mailCfg.FromName)},
		templateID: strings.TrimSpace(mailCfg.ConfirmationTemplateID),
		storeName:  strings.TrimSpace(storeCfg.Name),
		client:     &http.Client{Timeout: 10 * time.Second},
		sanitizer:  bluemonday.StrictPolicy(),
		printer:    message.NewPrinter(language.English),
	}
	for _, opt := range opts {
		opt(mailer)
	}
	return mailer, nil
}

type mailPersonalization struct {
	To           []mailAddress  `json:"to"`
	TemplateData map[string]any `json:"dynamic_template_data,omitempty"`
}

type mailPayload struct {
	Personalizations []mailPersonalization `json:"personalizations"`
	From             mailAddress           `json:"from"`
	TemplateID       string                `json:"template_id,omitempty"`
	Subject          string                `json:"subject,omitempty"`
	Content          []mailContent         `json:"content,omitempty"`
}

type mailContent struct {
	Type  string `json:"type"`
	Value string `json:"value"`
}

// SendOrderConfirmation delivers the order confirmation template. Product
// names are sanitised before they reach the mail body.
func (m *HTTPMailer) SendOrderConfirmation(ctx context.Context, order domain.Order, items []domain.OrderItem) error {
	if m == nil {
		return errors.New("notifications: mailer not initialised")
	}
	to := strings.TrimSpace(order.Email)
	if to == "" {
		return errors.New("notifications: order has no recipient email")
	}

	lines := make([]map[string]any, 0, len(items))
	for _, item := range items {
		lines = append(lines, map[string]any{
			"name":      m.sanitizer.Sanitize(item.Name),
			"size":      item.Size,
			"quantity":  item.Quantity,
			"unitPrice": m.formatAmount(item.UnitPrice, order.Currency),
			"lineTotal": m.formatAmount(item.LineTotal, order.Currency),
		})
	}

	vars := textutil.NormalizeStringMap(map[string]string{
		"orderCode":    order.Code,
		"orderDate":    order.CreatedAt.UTC().Format("2 January 2006"),
		"customerName": m.sanitizer.Sanitize(order.ShippingAddress.Recipient),
		"storeName":    m.storeName,
		"subtotal":     m.formatAmount(order.Subtotal, order.Currency),
		"discount":     m.formatAmount(order.Discount, order.Currency),
		"total":        m.formatAmount(order.Total, order.Currency),
	})
	data := make(map[string]any, len(vars)+1)
	for key, value := range vars {
		data[key] = value
	}
	data["items"] = lines

	payload := mailPayload{
		Personalizations: []mailPersonalization{{
			To:           []mailAddress{{Email: to}},
			TemplateData: data,
		}},
		From:       m.from,
		TemplateID: m.templateID,
	}
	if m.templateID == "" {
		payload.Subject = fmt.Sprintf("Order %s confirmed", order.Code)
		payload.Content = []mailContent{{
			Type:  "text/plain",
			Value: fmt.Sprintf("Thanks for shopping with %s. Your order %s totals %s.", m.storeName, order.Code, data["total"]),
		}}
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("notifications: encode mail payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, m.endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("notifications: build mail request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+m.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := m.client.Do(req)
	if err != nil {
		return fmt.Errorf("notifications: send mail: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		return fmt.Errorf("notifications: mail endpoint returned status %d", resp.StatusCode)
	}
	return nil
}

func (m *HTTPMailer) formatAmount(amount int64, currency string) string {
	code := strings.ToUpper(strings.TrimSpace(currency))
	if code == "" {
		code = "INR"
	}
	return m.printer.Sprintf("%s %v", code, number.Decimal(amount))
}
