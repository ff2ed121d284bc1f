// Package checkout completes sales started on a terminal.
package checkout

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"

	"github.com/xenking/astroplay-pos/internal/domain/cart"
	"github.com/xenking/astroplay-pos/internal/domain/pos"
	"github.com/xenking/astroplay-pos/internal/domain/product"
)

// Sentinel errors for checkout.
var (
	ErrEmptyCart          = errors.New("cart is empty")
	ErrCheckoutInProgress = errors.New("checkout already in progress")
)

// SuccessMessage is the notification shown after a completed sale.
const SuccessMessage = "Sale completed successfully!"

// PaymentMethod is how the customer paid.
type PaymentMethod string

const (
	PaymentCash PaymentMethod = "cash"
	PaymentCard PaymentMethod = "card"
)

// ParsePaymentMethod parses s, defaulting to cash when s is empty.
func ParsePaymentMethod(s string) (PaymentMethod, error) {
	switch m := PaymentMethod(strings.ToLower(strings.TrimSpace(s))); m {
	case "":
		return PaymentCash, nil
	case PaymentCash, PaymentCard:
		return m, nil
	default:
		return "", fmt.Errorf("unknown payment method %q", s)
	}
}

// Receipt describes a completed sale.
type Receipt struct {
	ID            string
	Items         []cart.Item
	Totals        cart.Totals
	PaymentMethod PaymentMethod
	Message       string
	CompletedAt   time.Time
}

// Config tunes the checkout flow.
type Config struct {
	// Delay simulates payment processing before the sale completes.
	Delay time.Duration
	// Stock, when set, takes sold units out of the catalog store as part of
	// the sale. When nil, checkout leaves stock untouched.
	Stock product.StockDecrementer
	// Ledger, when set, records every completed sale.
	Ledger Ledger
}

// Ledger keeps completed sales.
type Ledger interface {
	Record(ctx context.Context, terminal string, r *Receipt) error
}

// Service completes sales. It is a placeholder for payment integration: no
// money moves, and nothing is persisted unless Config.Stock or Config.Ledger
// is set.
type Service struct {
	delay  time.Duration
	stock  product.StockDecrementer
	ledger Ledger
	now    func() time.Time

	sales   metric.Int64Counter
	revenue metric.Float64Counter

	mu    sync.Mutex
	shift Shift
}

// Shift accumulates the sales completed since the process started.
type Shift struct {
	Sales   int
	Revenue decimal.Decimal
}

// Shift returns the sales completed so far.
func (s *Service) Shift() Shift {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.shift
}

// NewService creates a checkout Service reporting metrics to meter.
func NewService(cfg Config, meter metric.Meter) (*Service, error) {
	sales, err := meter.Int64Counter("pos.checkout.sales",
		metric.WithDescription("Completed sales"),
	)
	if err != nil {
		return nil, errors.Wrap(err, "create sales counter")
	}
	revenue, err := meter.Float64Counter("pos.checkout.revenue",
		metric.WithDescription("Sales total including tax"),
		metric.WithUnit("MXN"),
	)
	if err != nil {
		return nil, errors.Wrap(err, "create revenue counter")
	}
	return &Service{
		delay:   cfg.Delay,
		stock:   cfg.Stock,
		ledger:  cfg.Ledger,
		now:     time.Now,
		sales:   sales,
		revenue: revenue,
	}, nil
}

// Checkout completes the sale held by t.
//
// The terminal is marked as processing for the whole call, so a second
// checkout on it fails with ErrCheckoutInProgress. After the simulated delay
// the cart is cleared and a receipt returned. Cancelling ctx during the delay
// aborts the sale and keeps the cart.
func (s *Service) Checkout(ctx context.Context, t *pos.Terminal, method PaymentMethod) (*Receipt, error) {
	release, err := t.Begin(pos.OpCheckout)
	if err != nil {
		if errors.Is(err, pos.ErrBusy) {
			return nil, ErrCheckoutInProgress
		}
		return nil, err
	}
	defer release()

	if len(t.View().Items) == 0 {
		return nil, ErrEmptyCart
	}

	if s.delay > 0 {
		timer := time.NewTimer(s.delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, ctx.Err()
		case <-timer.C:
		}
	}

	view, err := t.Settle(func(view pos.CartView) error {
		if len(view.Items) == 0 {
			return ErrEmptyCart
		}
		if s.stock == nil {
			return nil
		}
		lines := make([]product.StockLine, len(view.Items))
		for i, it := range view.Items {
			lines[i] = product.StockLine{ProductID: it.Product.ID, Quantity: it.Quantity}
		}
		if err := s.stock.DecrementStock(ctx, lines); err != nil {
			return errors.Wrap(err, "decrement stock")
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	receipt := &Receipt{
		ID:            uuid.NewString(),
		Items:         view.Items,
		Totals:        view.Totals,
		PaymentMethod: method,
		Message:       SuccessMessage,
		CompletedAt:   s.now(),
	}

	s.mu.Lock()
	s.shift.Sales++
	s.shift.Revenue = s.shift.Revenue.Add(receipt.Totals.Total)
	s.mu.Unlock()

	attrs := metric.WithAttributes(attribute.String("payment_method", string(method)))
	s.sales.Add(ctx, 1, attrs)
	s.revenue.Add(ctx, receipt.Totals.Total.InexactFloat64(), attrs)

	lg := zctx.From(ctx)
	if s.ledger != nil {
		// The cart is already settled; a ledger failure must not undo the sale.
		if err := s.ledger.Record(context.WithoutCancel(ctx), t.ID(), receipt); err != nil {
			lg.Error("Recording sale failed", zap.String("receipt_id", receipt.ID), zap.Error(err))
		}
	}

	lg.Info("Sale completed",
		zap.String("receipt_id", receipt.ID),
		zap.String("terminal", t.ID()),
		zap.String("payment_method", string(method)),
		zap.Int("lines", len(receipt.Items)),
		zap.String("total", receipt.Totals.Total.StringFixed(cart.CurrencyPlaces)),
	)

	return receipt, nil
}
