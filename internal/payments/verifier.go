package payments

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"strings"
)

// Callback carries the fields the payment gateway posts back after a
// customer completes checkout.
type Callback struct {
	OrderID   string
	PaymentID string
	Signature string
}

var (
	// ErrMissingPaymentDetails is returned when the callback omits any of the
	// gateway order id, payment id, or signature.
	ErrMissingPaymentDetails = errors.New("payments: missing payment details")
	// ErrInvalidSignature is returned when the callback signature does not
	// match the locally computed digest.
	ErrInvalidSignature = errors.New("payments: invalid signature")
)

// Verifier authenticates gateway callbacks before an order is recorded.
type Verifier interface {
	Verify(callback Callback) error
}

// RazorpayVerifier validates callbacks signed with HMAC-SHA256 over
// "{order_id}|{payment_id}", the scheme used by Razorpay-compatible
// gateways.
type RazorpayVerifier struct {
	secret []byte
}

// NewRazorpayVerifier builds a verifier around the shared gateway secret.
func NewRazorpayVerifier(secret string) (*RazorpayVerifier, error) {
	trimmed := strings.TrimSpace(secret)
	if trimmed == "" {
		return nil, errors.New("payments: gateway secret is required")
	}
	return &RazorpayVerifier{secret: []byte(trimmed)}, nil
}

// Verify checks the callback signature. Missing fields are rejected before
// any digest work so the error distinguishes malformed callbacks from
// forged ones.
func (v *RazorpayVerifier) Verify(callback Callback) error {
	if v == nil || len(v.secret) == 0 {
		return errors.New("payments: verifier not initialised")
	}

	orderID := strings.TrimSpace(callback.OrderID)
	paymentID := strings.TrimSpace(callback.PaymentID)
	signature := strings.TrimSpace(callback.Signature)
	if orderID == "" || paymentID == "" || signature == "" {
		return ErrMissingPaymentDetails
	}

	mac := hmac.New(sha256.New, v.secret)
	mac.Write([]byte(orderID + "|" + paymentID))
	expected := hex.EncodeToString(mac.Sum(nil))

	if !hmac.Equal([]byte(expected), []byte(signature)) {
		return ErrInvalidSignature
	}
	return nil
}
