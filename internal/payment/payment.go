package payment

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/gofrs/uuid"
	"github.com/rs/zerolog/log"
)

type Method string

const (
	MethodCOD     Method = "cod"
	MethodCredit  Method = "credit"
	MethodMomo    Method = "momo"
	MethodZaloPay Method = "zalopay"
)

func (m Method) String() string {
	return string(m)
}

func (m Method) Valid() bool {
	switch m {
	case MethodCOD, MethodCredit, MethodMomo, MethodZaloPay:
		return true
	}
	return false
}

type Status string

const (
	StatusPending Status = "pending"
	StatusSuccess Status = "success"
	StatusFailed  Status = "failed"
)

func (s Status) String() string {
	return string(s)
}

var ErrUnsupportedMethod = errors.New("unsupported payment method")

// CardData is forwarded to the card authorizer and never persisted.
type CardData struct {
	Number string `json:"card_number"`
	Holder string `json:"card_holder"`
	Expiry string `json:"expiry"`
	CVV    string `json:"cvv"`
}

type Request struct {
	OrderID uuid.UUID
	Amount  int64
	Method  Method
	Card    *CardData
}

type Result struct {
	Method        Method `json:"method"`
	Status        Status `json:"status"`
	TransactionID string `json:"transaction_id,omitempty"`
	PaymentURL    string `json:"payment_url,omitempty"`
	Message       string `json:"message"`
}

// CardAuthorizer decides whether a card charge goes through.
type CardAuthorizer interface {
	Authorize(ctx context.Context, req Request) (bool, error)
}

// StaticAuthorizer approves or declines every charge. It stands in for a card
// processor in development and tests.
type StaticAuthorizer struct {
	Approve bool
}

func (a StaticAuthorizer) Authorize(context.Context, Request) (bool, error) {
	return a.Approve, nil
}

type Processor struct {
	card       CardAuthorizer
	momoURL    string
	zaloPayURL string
	now        func() time.Time
	randHex    func(n int) (string, error)
}

type Option func(*Processor)

func WithMomoURL(u string) Option {
	return func(p *Processor) { p.momoURL = u }
}

func WithZaloPayURL(u string) Option {
	return func(p *Processor) { p.zaloPayURL = u }
}

func WithClock(now func() time.Time) Option {
	return func(p *Processor) { p.now = now }
}

func NewProcessor(card CardAuthorizer, opts ...Option) *Processor {
	p := &Processor{
		card:       card,
		momoURL:    "https://test-payment.momo.vn/gw_payment/transactionProcessor",
		zaloPayURL: "https://sandbox.zalopay.vn/order",
		now:        time.Now,
		randHex:    randomHex,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Charge starts the payment for req. A declined card is a failed Result, not
// an error; errors are reserved for an unreachable or broken provider.
func (p *Processor) Charge(ctx context.Context, req Request) (Result, error) {
	switch req.Method {
	case MethodCOD:
		return Result{
			Method:  MethodCOD,
			Status:  StatusPending,
			Message: "Order placed successfully. Please pay on delivery.",
		}, nil

	case MethodCredit:
		approved, err := p.card.Authorize(ctx, req)
		if err != nil {
			return Result{}, fmt.Errorf("card authorization: %w", err)
		}
		if !approved {
			log.Info().Stringer("order_id", req.OrderID).Msg("payment: card declined")
			return Result{
				Method:  MethodCredit,
				Status:  StatusFailed,
				Message: "Payment failed. Please try again.",
			}, nil
		}
		txnID, err := p.transactionID()
		if err != nil {
			return Result{}, err
		}
		return Result{
			Method:        MethodCredit,
			Status:        StatusSuccess,
			TransactionID: txnID,
			Message:       "Payment successful",
		}, nil

	case MethodMomo:
		txnID, err := p.transactionID()
		if err != nil {
			return Result{}, err
		}
		return Result{
			Method:        MethodMomo,
			Status:        StatusPending,
			TransactionID: txnID,
			PaymentURL:    p.momoURL + "?orderId=" + url.QueryEscape(req.OrderID.String()),
			Message:       "Redirecting to MoMo payment...",
		}, nil

	case MethodZaloPay:
		txnID, err := p.transactionID()
		if err != nil {
			return Result{}, err
		}
		return Result{
			Method:        MethodZaloPay,
			Status:        StatusPending,
			TransactionID: txnID,
			PaymentURL:    strings.TrimRight(p.zaloPayURL, "/") + "/" + req.OrderID.String(),
			Message:       "Redirecting to ZaloPay payment...",
		}, nil
	}

	return Result{}, fmt.Errorf("%w: %q", ErrUnsupportedMethod, req.Method)
}

// transactionID has the form TXN<unix millis><8 upper-case hex digits>.
func (p *Processor) transactionID() (string, error) {
	suffix, err := p.randHex(4)
	if err != nil {
		return "", fmt.Errorf("failed to generate transaction id: %w", err)
	}
	return fmt.Sprintf("TXN%d%s", p.now().UnixMilli(), strings.ToUpper(suffix)), nil
}

func randomHex(n int) (string, error) {
	buf := make([]byte, n)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf), nil
}
