// Package reports accumulates per-pharmacy fill reports and sends them by
// email, and carries the developer alert channel for data-quality signals.
package reports

import (
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/meridianrx/fillengine/internal/resolver"
)

// Report accumulates the refill rows for one pharmacy.
type Report struct {
	Pharmacy string
	rows     []resolver.FillItem
}

// Add appends one resolved fill item.
func (r *Report) Add(item resolver.FillItem) {
	r.rows = append(r.rows, item)
}

// Rows returns the accumulated rows.
func (r *Report) Rows() []resolver.FillItem { return r.rows }

// Body renders the report as the plain-text table the pharmacies receive.
func (r *Report) Body() string {
	var b strings.Builder
	fmt.Fprintf(&b, "Fill report for %s\n\n", r.Pharmacy)
	for _, row := range r.rows {
		fmt.Fprintf(&b, "%s\t%s %s\t%s\t%s\trx %d\n",
			row.CRMOrder,
			row.Shipping.FirstName, row.Shipping.LastName,
			row.DOB,
			row.Medication,
			row.RxID)
	}
	return b.String()
}

// Set lazily creates one report per pharmacy name.
type Set struct {
	mu      sync.Mutex
	reports map[string]*Report
}

// NewSet creates an empty report set.
func NewSet() *Set {
	return &Set{reports: make(map[string]*Report)}
}

// For returns the report for a pharmacy, creating it on first use.
func (s *Set) For(pharmacy string) *Report {
	s.mu.Lock()
	defer s.mu.Unlock()

	r, ok := s.reports[pharmacy]
	if !ok {
		r = &Report{Pharmacy: pharmacy}
		s.reports[pharmacy] = r
	}
	return r
}

// All returns the non-empty reports sorted by pharmacy name.
func (s *Set) All() []*Report {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []*Report
	for _, r := range s.reports {
		if len(r.rows) > 0 {
			out = append(out, r)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Pharmacy < out[j].Pharmacy })
	return out
}
