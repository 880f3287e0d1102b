package service

import (
	"fmt"

	"github.com/shopspring/decimal"
)

type CheckoutState string

const (
	StateValidating       CheckoutState = "validating"
	StateRejected         CheckoutState = "rejected"
	StateOrderCreated     CheckoutState = "order_created"
	StateItemsCreated     CheckoutState = "items_created"
	StateItemsFailed      CheckoutState = "items_failed"
	StateReconciled       CheckoutState = "reconciled"
	StateReconcileWarning CheckoutState = "reconcile_warning"
	StateDone             CheckoutState = "done"
)

var nextStates = map[CheckoutState][]CheckoutState{
	StateValidating:   {StateOrderCreated, StateRejected},
	StateOrderCreated: {StateItemsCreated, StateItemsFailed},
	StateItemsCreated: {StateReconciled, StateReconcileWarning},
	StateReconciled:   {StateDone},
}

// Terminal reports whether no further step follows s.
func (s CheckoutState) Terminal() bool {
	return len(nextStates[s]) == 0
}

func (s CheckoutState) canAdvance(to CheckoutState) bool {
	for _, next := range nextStates[s] {
		if next == to {
			return true
		}
	}
	return false
}

// checkoutRun records the states one checkout passes through.
type checkoutRun struct {
	state CheckoutState
	trail []CheckoutState
}

func newCheckoutRun() *checkoutRun {
	return &checkoutRun{state: StateValidating, trail: []CheckoutState{StateValidating}}
}

func (r *checkoutRun) advance(to CheckoutState) {
	if !r.state.canAdvance(to) {
		panic(fmt.Sprintf("checkout cannot move from %s to %s", r.state, to))
	}
	r.state = to
	r.trail = append(r.trail, to)
}

const (
	WarningStockNotReconciled = "stock_not_reconciled"
	WarningOversold           = "oversold"
)

// Warning reports a line whose stock adjustment did not go cleanly. The order
// it belongs to is committed.
type Warning struct {
	ProductID string `json:"product_id"`
	Quantity  int    `json:"quantity"`
	Reason    string `json:"reason"`
	Detail    string `json:"detail,omitempty"`
}

// Result is the outcome of a checkout that committed an order.
type Result struct {
	OrderID  string          `json:"order_id"`
	State    CheckoutState   `json:"state"`
	Trail    []CheckoutState `json:"trail"`
	Total    decimal.Decimal `json:"total_amount"`
	Warnings []Warning       `json:"warnings"`
}
