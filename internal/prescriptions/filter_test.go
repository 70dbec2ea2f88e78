package prescriptions

import (
	"testing"
	"time"

	"github.com/meridianrx/fillengine/internal/catalog"
)

func filterCatalog() *catalog.Catalog {
	return catalog.New([]catalog.Medication{
		{Name: "Sildenafil", Synonyms: []string{"sildenafil", "viagra"}, ProviderIDs: []int{100}},
		{Name: "Tadalafil", Synonyms: []string{"tadalafil"}, ProviderIDs: []int{200}},
	}, map[int]string{
		10: "WellDyne",
	})
}

func TestFilterKeepsLatestPerMedication(t *testing.T) {
	rxs := []Prescription{
		{ID: 1, ProductID: 100, PharmacyID: 10, Status: StatusSent, WrittenDate: "2026-01-10"},
		{ID: 2, ProductID: 100, PharmacyID: 10, Status: StatusSent, WrittenDate: "2026-03-02"},
		{ID: 3, ProductID: 100, PharmacyID: 10, Status: StatusSent, WrittenDate: "2026-02-15"},
		{ID: 4, ProductID: 200, PharmacyID: 10, Status: StatusSent, WrittenDate: "2026-01-20"},
	}

	out, anomalies := Filter(filterCatalog(), rxs, time.Time{})
	if len(anomalies) != 0 {
		t.Fatalf("unexpected anomalies: %+v", anomalies)
	}
	if len(out) != 2 {
		t.Fatalf("got %d medications, want 2", len(out))
	}
	if out["Sildenafil"].ID != 2 {
		t.Errorf("Sildenafil kept rx %d, want 2 (latest written)", out["Sildenafil"].ID)
	}
	if out["Tadalafil"].ID != 4 {
		t.Errorf("Tadalafil kept rx %d, want 4", out["Tadalafil"].ID)
	}
}

func TestFilterSkipsDeadStatuses(t *testing.T) {
	for _, status := range []Status{StatusError, StatusDeleted, StatusRequested} {
		rxs := []Prescription{
			{ID: 1, ProductID: 100, PharmacyID: 10, Status: status, WrittenDate: "2026-03-01"},
		}
		out, _ := Filter(filterCatalog(), rxs, time.Time{})
		if len(out) != 0 {
			t.Errorf("status %s should be filtered out, got %+v", status, out)
		}
	}
}

func TestFilterTieKeepsFirstSeen(t *testing.T) {
	rxs := []Prescription{
		{ID: 1, ProductID: 100, PharmacyID: 10, Status: StatusSent, WrittenDate: "2026-03-01"},
		{ID: 2, ProductID: 100, PharmacyID: 10, Status: StatusSent, WrittenDate: "2026-03-01"},
	}

	out, _ := Filter(filterCatalog(), rxs, time.Time{})
	if out["Sildenafil"].ID != 1 {
		t.Errorf("identical written dates should keep the first seen, got rx %d", out["Sildenafil"].ID)
	}
}

func TestFilterMaxDateCutoff(t *testing.T) {
	cutoff, _ := time.Parse("2006-01-02", "2026-02-01")
	rxs := []Prescription{
		{ID: 1, ProductID: 100, PharmacyID: 10, Status: StatusSent, WrittenDate: "2026-01-15"},
		{ID: 2, ProductID: 100, PharmacyID: 10, Status: StatusSent, WrittenDate: "2026-02-20"},
	}

	out, _ := Filter(filterCatalog(), rxs, cutoff)
	if out["Sildenafil"].ID != 1 {
		t.Errorf("rx written after cutoff should be skipped, kept %d", out["Sildenafil"].ID)
	}
}

func TestFilterResolvesByDescriptionWhenNoProductID(t *testing.T) {
	rxs := []Prescription{
		{ID: 1, PharmacyID: 10, Status: StatusSent, WrittenDate: "2026-03-01",
			DisplayName: "Viagra 100mg tablets"},
	}

	out, _ := Filter(filterCatalog(), rxs, time.Time{})
	if _, ok := out["Sildenafil"]; !ok {
		t.Errorf("description lookup failed: %+v", out)
	}
}

func TestFilterAnomalies(t *testing.T) {
	rxs := []Prescription{
		{ID: 1, ProductID: 999, PharmacyID: 77, Status: StatusSent, WrittenDate: "2026-03-01",
			DisplayName: "Mystery compound"},
	}

	out, anomalies := Filter(filterCatalog(), rxs, time.Time{})
	if len(anomalies) != 2 {
		t.Fatalf("got %d anomalies, want 2 (medication + pharmacy): %+v", len(anomalies), anomalies)
	}
	// Unknown medication is still kept; the anomaly is a signal, not a drop.
	if _, ok := out[catalog.Unknown]; !ok {
		t.Error("unknown medication should still be present in output")
	}
}

func TestFilterDiscardedStaleRxRaisesNoAnomaly(t *testing.T) {
	rxs := []Prescription{
		{ID: 1, ProductID: 999, PharmacyID: 10, Status: StatusSent, WrittenDate: "2026-03-01",
			DisplayName: "Mystery compound"},
		{ID: 2, ProductID: 999, PharmacyID: 77, Status: StatusSent, WrittenDate: "2026-01-01",
			DisplayName: "Mystery compound, older"},
	}

	out, anomalies := Filter(filterCatalog(), rxs, time.Time{})
	if out[catalog.Unknown].ID != 1 {
		t.Fatalf("kept rx %d, want 1", out[catalog.Unknown].ID)
	}
	if len(anomalies) != 1 {
		t.Fatalf("only the kept rx should signal, got %+v", anomalies)
	}
	if anomalies[0].PrescriptionID != 1 {
		t.Errorf("anomaly for rx %d, want 1", anomalies[0].PrescriptionID)
	}
}

func TestFilterEffectiveDateFallback(t *testing.T) {
	rxs := []Prescription{
		{ID: 1, ProductID: 100, PharmacyID: 10, Status: StatusSent,
			WrittenDate: "2026-03-01", EffectiveDate: ""},
		{ID: 2, ProductID: 200, PharmacyID: 10, Status: StatusSent,
			WrittenDate: "2026-03-01", EffectiveDate: "2026-03-05"},
	}

	out, _ := Filter(filterCatalog(), rxs, time.Time{})
	if !out["Sildenafil"].EffectiveDate.Equal(out["Sildenafil"].WrittenDate) {
		t.Error("missing effective date should fall back to written date")
	}
	want, _ := time.Parse("2006-01-02", "2026-03-05")
	if !out["Tadalafil"].EffectiveDate.Equal(want) {
		t.Errorf("effective date = %v, want %v", out["Tadalafil"].EffectiveDate, want)
	}
}

func TestParseDateHandlesTimestamp(t *testing.T) {
	d, err := ParseDate("2026-03-01T14:30:00")
	if err != nil {
		t.Fatalf("ParseDate: %v", err)
	}
	if d.Day() != 1 || d.Month() != 3 {
		t.Errorf("got %v", d)
	}
}
