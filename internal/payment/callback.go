package payment

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/gofrs/uuid"
)

var ErrInvalidSignature = errors.New("invalid payment callback signature")

// Callback is the body a wallet provider posts once the customer finishes
// (or abandons) the redirect flow.
type Callback struct {
	OrderID       uuid.UUID `json:"order_id"`
	TransactionID string    `json:"transaction_id"`
	Status        Status    `json:"status"`
}

// Sign returns the hex HMAC-SHA256 of payload under secret.
func Sign(payload []byte, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(payload)
	return hex.EncodeToString(mac.Sum(nil))
}

// Verify reports whether signature is the HMAC of payload under secret.
func Verify(payload []byte, signature, secret string) bool {
	if secret == "" || signature == "" {
		return false
	}
	expected, err := hex.DecodeString(Sign(payload, secret))
	if err != nil {
		return false
	}
	got, err := hex.DecodeString(strings.ToLower(signature))
	if err != nil {
		return false
	}
	return hmac.Equal(expected, got)
}

// Secrets holds the callback signing secret of each wallet provider.
type Secrets map[Method]string

// ParseCallback checks the signature of payload for method and decodes it.
func (s Secrets) ParseCallback(method Method, payload []byte, signature string) (*Callback, error) {
	secret, ok := s[method]
	if !ok || secret == "" {
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedMethod, method)
	}
	if !Verify(payload, signature, secret) {
		return nil, ErrInvalidSignature
	}

	var cb Callback
	if err := json.Unmarshal(payload, &cb); err != nil {
		return nil, fmt.Errorf("invalid payment callback payload: %w", err)
	}
	if cb.OrderID == uuid.Nil {
		return nil, errors.New("invalid payment callback payload: missing order_id")
	}
	if cb.Status != StatusSuccess && cb.Status != StatusFailed {
		return nil, fmt.Errorf("invalid payment callback payload: unexpected status %q", cb.Status)
	}

	return &cb, nil
}
