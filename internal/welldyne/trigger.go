// Package welldyne generates and uploads the WellDyne batch files: the
// trigger file instructing fills and the eligibility file asserting coverage.
package welldyne

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"sync"
	"time"

	"github.com/meridianrx/fillengine/internal/resolver"
)

// Timeslot tokens used in trigger file names. The morning run uploads 043000,
// the noon run 130000.
const (
	TimeslotMorning = "043000"
	TimeslotNoon    = "130000"
)

// triggerHeader is the fixed column layout WellDyne ingests.
var triggerHeader = []string{
	"MemberId", "OrderNumber", "PurchaseId", "RxId", "RxNumber",
	"FirstName", "LastName", "DOB", "Medication", "Type",
	"Address1", "Address2", "City", "State", "PostalCode", "Phone", "Email",
}

// TriggerFile accumulates resolved fill rows and renders the fixed-column
// CSV WellDyne ingests. Rows carry the fill item fields verbatim.
type TriggerFile struct {
	mu   sync.Mutex
	rows []resolver.FillItem
}

// NewTriggerFile creates an empty trigger accumulator.
func NewTriggerFile() *TriggerFile {
	return &TriggerFile{}
}

// Add appends one resolved fill item.
func (t *TriggerFile) Add(item resolver.FillItem) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.rows = append(t.rows, item)
}

// Len returns the number of accumulated rows.
func (t *TriggerFile) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.rows)
}

// Rows returns a copy of the accumulated rows.
func (t *TriggerFile) Rows() []resolver.FillItem {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]resolver.FillItem, len(t.rows))
	copy(out, t.rows)
	return out
}

// Filename returns the trigger file name for a date and timeslot token.
func Filename(date time.Time, timeslot string) string {
	return fmt.Sprintf("TRIGGER_%s_%s.csv", date.Format("20060102"), timeslot)
}

// Render produces the CSV contents.
func (t *TriggerFile) Render() ([]byte, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	var buf bytes.Buffer
	w := csv.NewWriter(&buf)

	if err := w.Write(triggerHeader); err != nil {
		return nil, fmt.Errorf("write header: %w", err)
	}
	for _, item := range t.rows {
		record := []string{
			item.CRMID,
			item.CRMOrder,
			item.PurchaseID,
			fmt.Sprintf("%d", item.RxID),
			item.RxNumber,
			item.Shipping.FirstName,
			item.Shipping.LastName,
			item.DOB,
			item.Medication,
			string(item.Type),
			item.Shipping.Address1,
			item.Shipping.Address2,
			item.Shipping.City,
			item.Shipping.State,
			item.Shipping.PostalCode,
			item.Shipping.Phone,
			item.Shipping.Email,
		}
		if err := w.Write(record); err != nil {
			return nil, fmt.Errorf("write row: %w", err)
		}
	}

	w.Flush()
	if err := w.Error(); err != nil {
		return nil, fmt.Errorf("flush: %w", err)
	}
	return buf.Bytes(), nil
}

// IsTriggerPharmacy reports whether a resolved pharmacy routes through the
// WellDyne trigger file. Castia fills are administered by WellDyne.
func IsTriggerPharmacy(name string) bool {
	return name == "WellDyne" || name == "Castia"
}
