package resolver

import "fmt"

// Reason classifies why an order could not be resolved. The taxonomy is
// closed; persisted retry records store the String form.
type Reason int

const (
	ReasonInvalidCRMType Reason = iota + 1
	ReasonOrderNotFound
	ReasonNoItems
	ReasonNotInProvider
	ReasonNoPrescriptions
	ReasonNoValidPrescriptions
	ReasonUnknownProduct
	ReasonNoMatchingPrescription
	ReasonUnknownPharmacy
	ReasonExpiredPrescription
)

// Failure is a resolution failure: a reason plus, for product-level reasons,
// the subject that triggered it.
type Failure struct {
	Reason  Reason
	Subject string
}

// String renders the failure in the persisted reason format.
func (f Failure) String() string {
	switch f.Reason {
	case ReasonInvalidCRMType:
		return "INVALID CRM TYPE"
	case ReasonOrderNotFound:
		return "ORDER NOT FOUND"
	case ReasonNoItems:
		return "NO ITEMS IN ORDER"
	case ReasonNotInProvider:
		return "NOT IN DOSESPOT"
	case ReasonNoPrescriptions:
		return "NO PRESCRIPTIONS IN DOSESPOT"
	case ReasonNoValidPrescriptions:
		return "NO VALID PRESCRIPTIONS"
	case ReasonUnknownProduct:
		return fmt.Sprintf("UNKNOWN PRODUCT (%s)", f.Subject)
	case ReasonNoMatchingPrescription:
		return fmt.Sprintf("NO MATCHING PRESCRIPTION (%s)", f.Subject)
	case ReasonUnknownPharmacy:
		return "UNKNOWN PHARMACY"
	case ReasonExpiredPrescription:
		return "EXPIRED PRESCRIPTION"
	default:
		return fmt.Sprintf("UNKNOWN REASON (%d)", int(f.Reason))
	}
}

// Result is the outcome of resolving one order: either fill items for every
// matched line item, or a single failure. Never both.
type Result struct {
	ok      bool
	items   []FillItem
	failure Failure
}

// Ok builds a success result.
func Ok(items []FillItem) Result {
	return Result{ok: true, items: items}
}

// Fail builds a failure result.
func Fail(reason Reason) Result {
	return Result{failure: Failure{Reason: reason}}
}

// FailWith builds a failure result carrying a subject.
func FailWith(reason Reason, subject string) Result {
	return Result{failure: Failure{Reason: reason, Subject: subject}}
}

// OK reports whether the resolution succeeded.
func (r Result) OK() bool { return r.ok }

// Items returns the resolved fill items. Empty unless OK.
func (r Result) Items() []FillItem { return r.items }

// Failure returns the failure. Zero unless !OK.
func (r Result) Failure() Failure { return r.failure }
