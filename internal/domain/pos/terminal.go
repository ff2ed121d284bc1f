// Package pos holds the per-session sales terminals. A terminal owns one cart
// and guards the long-running actions started from it against duplicate
// submission.
package pos

import (
	"sync"
	"sync/atomic"

	"github.com/go-faster/errors"

	"github.com/xenking/astroplay-pos/internal/domain/cart"
	"github.com/xenking/astroplay-pos/internal/domain/product"
)

// ErrBusy is returned by Begin when the same action is already running on
// the terminal.
var ErrBusy = errors.New("action already in progress")

// Op names an action that must not run twice at once on a terminal.
type Op int

const (
	OpReload Op = iota
	OpSave
	OpDelete
	OpCheckout

	opCount
)

func (o Op) String() string {
	switch o {
	case OpReload:
		return "reload"
	case OpSave:
		return "save"
	case OpDelete:
		return "delete"
	case OpCheckout:
		return "checkout"
	default:
		return "unknown"
	}
}

// Terminal is the sales screen of one session.
type Terminal struct {
	id string

	mu   sync.Mutex
	cart cart.Cart

	busy [opCount]atomic.Bool
}

// NewTerminal creates a terminal with an empty cart.
func NewTerminal(id string) *Terminal {
	return &Terminal{id: id}
}

// ID returns the session ID the terminal belongs to.
func (t *Terminal) ID() string { return t.id }

// Begin marks op as running. The returned release must be called when the
// action finishes. While op runs, further Begin calls for it fail with
// ErrBusy.
func (t *Terminal) Begin(op Op) (release func(), err error) {
	if op < 0 || op >= opCount {
		return nil, errors.Errorf("unknown op %d", op)
	}
	flag := &t.busy[op]
	if !flag.CompareAndSwap(false, true) {
		return nil, errors.Wrap(ErrBusy, op.String())
	}
	var once sync.Once
	return func() { once.Do(func() { flag.Store(false) }) }, nil
}

// Busy reports whether op is running.
func (t *Terminal) Busy(op Op) bool {
	if op < 0 || op >= opCount {
		return false
	}
	return t.busy[op].Load()
}

// CartView is a consistent copy of the cart with its derived totals.
type CartView struct {
	Items  []cart.Item
	Totals cart.Totals
}

// View returns the cart contents and totals.
func (t *Terminal) View() CartView {
	t.mu.Lock()
	defer t.mu.Unlock()

	return t.viewLocked()
}

func (t *Terminal) viewLocked() CartView {
	return CartView{Items: t.cart.Items(), Totals: t.cart.Totals()}
}

// Add puts one unit of p in the cart. It reports whether the cart changed
// together with the resulting view.
func (t *Terminal) Add(p product.Product) (bool, CartView) {
	t.mu.Lock()
	defer t.mu.Unlock()

	changed := t.cart.Add(p)
	return changed, t.viewLocked()
}

// Remove deletes the item for productID.
func (t *Terminal) Remove(productID string) (bool, CartView) {
	t.mu.Lock()
	defer t.mu.Unlock()

	changed := t.cart.Remove(productID)
	return changed, t.viewLocked()
}

// AdjustQuantity moves the quantity of productID by delta.
func (t *Terminal) AdjustQuantity(productID string, delta int) (bool, CartView) {
	t.mu.Lock()
	defer t.mu.Unlock()

	changed := t.cart.AdjustQuantity(productID, delta)
	return changed, t.viewLocked()
}

// Clear empties the cart. It reports whether there was anything to remove.
func (t *Terminal) Clear() (bool, CartView) {
	t.mu.Lock()
	defer t.mu.Unlock()

	changed := !t.cart.IsEmpty()
	t.cart.Clear()
	return changed, t.viewLocked()
}

// Settle runs fn with the current cart contents and clears the cart if fn
// succeeds. The cart is locked for the duration of fn, so the items fn sees
// are exactly the items cleared.
func (t *Terminal) Settle(fn func(view CartView) error) (CartView, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	view := t.viewLocked()
	if err := fn(view); err != nil {
		return view, err
	}
	t.cart.Clear()
	return view, nil
}
