package welldyne

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"time"
)

// Member is one customer's eligibility window.
type Member struct {
	MemberID  string
	FirstName string
	LastName  string
	DOB       string
	Start     time.Time
	End       time.Time
}

// eligibilityHeader is the fixed column layout for the eligibility file.
var eligibilityHeader = []string{
	"MemberId", "FirstName", "LastName", "DOB", "EffectiveDate", "TerminationDate",
}

// EligibilityFile is regenerated in full on every run: it asserts which
// customers are currently inside a WellDyne-administered coverage window.
type EligibilityFile struct {
	members []Member
}

// NewEligibilityFile creates an empty eligibility file.
func NewEligibilityFile() *EligibilityFile {
	return &EligibilityFile{}
}

// Add appends one member window.
func (e *EligibilityFile) Add(m Member) {
	e.members = append(e.members, m)
}

// Len returns the number of member rows.
func (e *EligibilityFile) Len() int { return len(e.members) }

// EligibilityFilename returns the eligibility file name for a date.
func EligibilityFilename(date time.Time) string {
	return fmt.Sprintf("ELIG_%s.csv", date.Format("20060102"))
}

// Render produces the CSV contents.
func (e *EligibilityFile) Render() ([]byte, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)

	if err := w.Write(eligibilityHeader); err != nil {
		return nil, fmt.Errorf("write header: %w", err)
	}
	for _, m := range e.members {
		record := []string{
			m.MemberID,
			m.FirstName,
			m.LastName,
			m.DOB,
			m.Start.Format("20060102"),
			m.End.Format("20060102"),
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
