// Package prescriptions fetches and filters patient prescription data from
// the e-prescribing provider.
package prescriptions

import (
	"context"
	"errors"
	"time"
)

// Status is the e-prescribing provider's prescription status code.
type Status int

const (
	StatusEntered     Status = 1
	StatusPrinted     Status = 2
	StatusSending     Status = 3
	StatusSent        Status = 4
	StatusFaxSent     Status = 5
	StatusError       Status = 6
	StatusDeleted     Status = 7
	StatusRequested   Status = 8
	StatusEdited      Status = 9
	StatusEPCSError   Status = 10
	StatusEPCSSigned  Status = 11
	StatusReadyToSign Status = 12
)

// String returns the provider's display name for the status.
func (s Status) String() string {
	switch s {
	case StatusEntered:
		return "entered"
	case StatusPrinted:
		return "printed"
	case StatusSending:
		return "sending"
	case StatusSent:
		return "sent"
	case StatusFaxSent:
		return "fax_sent"
	case StatusError:
		return "error"
	case StatusDeleted:
		return "deleted"
	case StatusRequested:
		return "requested"
	case StatusEdited:
		return "edited"
	case StatusEPCSError:
		return "epcs_error"
	case StatusEPCSSigned:
		return "epcs_signed"
	case StatusReadyToSign:
		return "ready_to_sign"
	default:
		return "unknown"
	}
}

// Prescription is one raw prescription as returned by the provider.
type Prescription struct {
	ID            int     `json:"PrescriptionId"`
	ProductID     int     `json:"LexiGenProductId"`
	PharmacyID    int     `json:"PharmacyId"`
	Status        Status  `json:"Status"`
	WrittenDate   string  `json:"WrittenDate"`
	EffectiveDate string  `json:"EffectiveDate"`
	Refills       int     `json:"Refills"`
	DisplayName   string  `json:"DisplayName"`
	Quantity      float64 `json:"Quantity,string"`
}

// ErrNotFound is returned when the provider has no record for the lookup.
var ErrNotFound = errors.New("prescriptions: not found")

// Source provides patient prescription data. The production implementation
// talks to the internal prescriptions service; tests substitute fakes.
type Source interface {
	// PatientID resolves the e-prescribing patient id for a CRM customer.
	// Returns ErrNotFound if the customer has no patient record.
	PatientID(ctx context.Context, crmType string, customerID string) (int, error)

	// ForPatient returns the patient's full prescription list. An empty
	// list is a valid result, not an error.
	ForPatient(ctx context.Context, patientID int) ([]Prescription, error)
}

// dateLayout is the provider's date format: date with optional time portion.
const dateLayout = "2006-01-02"

// ParseDate parses a provider date field. The provider sends either a bare
// date or a full timestamp; anything past the date is ignored.
func ParseDate(s string) (time.Time, error) {
	if len(s) > len(dateLayout) {
		s = s[:len(dateLayout)]
	}
	return time.Parse(dateLayout, s)
}
