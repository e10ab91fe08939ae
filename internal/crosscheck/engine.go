// Package crosscheck validates invoice line items against reference data.
package crosscheck

import (
	"fmt"

	"github.com/openclerk/invoiceaudit/internal/refdata"
	"github.com/openclerk/invoiceaudit/pkg/utils"
)

// priceTolerancePercent is the allowed deviation from the historical reference
// price before a line is flagged. Tunable, but a fixed policy constant here.
const priceTolerancePercent = 5.0

// Outcome classifies the result of checking one line item.
type Outcome string

const (
	// OutcomeMatch means SKU and price validated against reference data.
	OutcomeMatch Outcome = "match"
	// OutcomeMismatch means the SKU is absent from the item master.
	OutcomeMismatch Outcome = "mismatch"
	// OutcomeWarning means the SKU exists but has no price history to compare.
	OutcomeWarning Outcome = "warning"
	// OutcomeDiscrepancy means the invoiced price deviates beyond tolerance.
	OutcomeDiscrepancy Outcome = "discrepancy"
)

// Result is the classified outcome of one line-item check.
type Result struct {
	Status         Outcome `json:"status"`
	Reason         string  `json:"reason"`
	ReferencePrice float64 `json:"reference_price,omitempty"`
	PercentDiff    float64 `json:"diff_percent,omitempty"`
}

// Engine checks line items against a reference data store.
type Engine struct {
	store refdata.Store
}

// NewEngine creates a cross-check engine over the given store.
func NewEngine(store refdata.Store) *Engine {
	return &Engine{store: store}
}

// CheckLineItem validates one line item. The SKU must exist in the item master
// (else mismatch); the first occurrence in PO history supplies the reference
// price (none yields warning); a deviation beyond tolerance is a discrepancy.
func (e *Engine) CheckLineItem(itemCode string, unitPrice float64, currency string) Result {
	if _, ok := e.store.GetSKU(itemCode); !ok {
		return Result{
			Status: OutcomeMismatch,
			Reason: fmt.Sprintf("SKU %s not found in item master", itemCode),
		}
	}

	refPrice, ok := e.store.FirstPOPrice(itemCode)
	if !ok {
		return Result{
			Status: OutcomeWarning,
			Reason: fmt.Sprintf("SKU %s found, but no PO history to compare price", itemCode),
		}
	}

	diff := unitPrice - refPrice
	if diff < 0 {
		diff = -diff
	}
	percentDiff := diff / refPrice * 100

	if percentDiff > priceTolerancePercent {
		return Result{
			Status:         OutcomeDiscrepancy,
			Reason:         fmt.Sprintf("price deviates more than %.0f%%: invoice %.2f %s, reference %.2f", priceTolerancePercent, unitPrice, currency, refPrice),
			ReferencePrice: refPrice,
			PercentDiff:    utils.Round2(percentDiff),
		}
	}

	return Result{
		Status:         OutcomeMatch,
		Reason:         "price and SKU validated successfully",
		ReferencePrice: refPrice,
	}
}
