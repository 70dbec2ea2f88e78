package prescriptions

import (
	"time"

	"github.com/meridianrx/fillengine/internal/catalog"
)

// Summary is the filtered view of a patient's current prescription for one
// canonical medication.
type Summary struct {
	ID            int
	Medication    string
	Pharmacy      string
	WrittenDate   time.Time
	EffectiveDate time.Time
	DisplayName   string
	Refills       int
}

// Anomaly flags a kept prescription whose medication or pharmacy did not
// resolve. These are data-quality signals, not failures: the caller reports
// them on a side channel and processing continues.
type Anomaly struct {
	PrescriptionID int
	Field          string
	Value          string
}

// Filter reduces a patient's prescription history to the latest prescription
// per canonical medication.
//
// Prescriptions written after maxDate are skipped when maxDate is non-zero
// (historical replays). Prescriptions with status error, deleted or requested
// are always skipped. Per medication the prescription with the latest written
// date wins; on an exact tie the first one seen is kept.
func Filter(cat *catalog.Catalog, rxs []Prescription, maxDate time.Time) (map[string]Summary, []Anomaly) {
	out := make(map[string]Summary)
	var anomalies []Anomaly

	for _, rx := range rxs {
		written, err := ParseDate(rx.WrittenDate)
		if err != nil {
			anomalies = append(anomalies, Anomaly{rx.ID, "written_date", rx.WrittenDate})
			continue
		}
		if !maxDate.IsZero() && written.After(maxDate) {
			continue
		}

		switch rx.Status {
		case StatusError, StatusDeleted, StatusRequested:
			continue
		}

		var med string
		if rx.ProductID == 0 {
			med = cat.ByDescription(rx.DisplayName)
		} else {
			med = cat.ByProviderID(rx.ProductID)
		}
		pharmacy := cat.Pharmacy(rx.PharmacyID)

		// Strict >: an identical written date keeps the first one seen.
		if prev, ok := out[med]; ok && !written.After(prev.WrittenDate) {
			continue
		}

		// Only kept prescriptions raise data-quality signals; a stale row
		// losing to a newer one is not worth an alert.
		if med == catalog.Unknown {
			anomalies = append(anomalies, Anomaly{rx.ID, "medication", rx.DisplayName})
		}
		if pharmacy == catalog.Unknown {
			anomalies = append(anomalies, Anomaly{rx.ID, "pharmacy", rx.DisplayName})
		}

		effective := written
		if rx.EffectiveDate != "" {
			if d, err := ParseDate(rx.EffectiveDate); err == nil {
				effective = d
			}
		}

		out[med] = Summary{
			ID:            rx.ID,
			Medication:    med,
			Pharmacy:      pharmacy,
			WrittenDate:   written,
			EffectiveDate: effective,
			DisplayName:   rx.DisplayName,
			Refills:       rx.Refills,
		}
	}

	return out, anomalies
}
