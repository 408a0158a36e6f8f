package payments

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"testing"
)

func signCallback(t *testing.T, secret, orderID, paymentID string) string {
	t.Helper()
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(orderID + "|" + paymentID))
	return hex.EncodeToString(mac.Sum(nil))
}

func TestNewRazorpayVerifierRequiresSecret(t *testing.T) {
	if _, err := NewRazorpayVerifier("   "); err == nil {
		t.Fatal("expected error for blank secret")
	}
}

func TestRazorpayVerifierAcceptsValidSignature(t *testing.T) {
	const secret = "test-secret"
	verifier, err := NewRazorpayVerifier(secret)
	if err != nil {
		t.Fatalf("NewRazorpayVerifier: %v", err)
	}

	callback := Callback{
		OrderID:   "order_N9qfXj2l",
		PaymentID: "pay_L3mK8dHs",
		Signature: signCallback(t, secret, "order_N9qfXj2l", "pay_L3mK8dHs"),
	}
	if err := verifier.Verify(callback); err != nil {
		t.Fatalf("Verify returned %v, want nil", err)
	}
}

func TestRazorpayVerifierRejectsTamperedSignature(t *testing.T) {
	const secret = "test-secret"
	verifier, err := NewRazorpayVerifier(secret)
	if err != nil {
		t.Fatalf("NewRazorpayVerifier: %v", err)
	}

	callback := Callback{
		OrderID:   "order_N9qfXj2l",
		PaymentID: "pay_L3mK8dHs",
		Signature: signCallback(t, "other-secret", "order_N9qfXj2l", "pay_L3mK8dHs"),
	}
	if err := verifier.Verify(callback); !errors.Is(err, ErrInvalidSignature) {
		t.Fatalf("Verify returned %v, want ErrInvalidSignature", err)
	}
}

func TestRazorpayVerifierRejectsSwappedIdentifiers(t *testing.T) {
	const secret = "test-secret"
	verifier, err := NewRazorpayVerifier(secret)
	if err != nil {
		t.Fatalf("NewRazorpayVerifier: %v", err)
	}

	callback := Callback{
		OrderID:   "pay_L3mK8dHs",
		PaymentID: "order_N9qfXj2l",
		Signature: signCallback(t, secret, "order_N9qfXj2l", "pay_L3mK8dHs"),
	}
	if err := verifier.Verify(callback); !errors.Is(err, ErrInvalidSignature) {
		t.Fatalf("Verify returned %v, want ErrInvalidSignature", err)
	}
}

func TestRazorpayVerifierRejectsMissingFields(t *testing.T) {
	const secret = "test-secret"
	verifier, err := NewRazorpayVerifier(secret)
	if err != nil {
		t.Fatalf("NewRazorpayVerifier: %v", err)
	}

	cases := map[string]Callback{
		"no order id":   {PaymentID: "pay_1", Signature: "sig"},
		"no payment id": {OrderID: "order_1", Signature: "sig"},
		"no signature":  {OrderID: "order_1", PaymentID: "pay_1"},
		"whitespace":    {OrderID: "  ", PaymentID: "pay_1", Signature: "sig"},
	}
	for name, callback := range cases {
		t.Run(name, func(t *testing.T) {
			if err := verifier.Verify(callback); !errors.Is(err, ErrMissingPaymentDetails) {
				t.Fatalf("Verify returned %v, want ErrMissingPaymentDetails", err)
			}
		})
	}
}
