package catalog

import "testing"

func testCatalog() *Catalog {
	return New([]Medication{
		{Name: "Sildenafil", Synonyms: []string{"sildenafil", "viagra"}, ProviderIDs: []int{100, 101}},
		{Name: "Tadalafil", Synonyms: []string{"tadalafil", "cialis"}, ProviderIDs: []int{200}},
	}, map[int]string{
		10: "WellDyne",
		20: "Castia",
	})
}

func TestByDescription(t *testing.T) {
	c := testCatalog()

	cases := []struct {
		desc string
		want string
	}{
		{"Sildenafil 100mg (30 count)", "Sildenafil"},
		{"VIAGRA monthly subscription", "Sildenafil"},
		{"Tadalafil 5mg daily", "Tadalafil"},
		{"generic cialis", "Tadalafil"},
		{"Vitamin D supplement", Unknown},
		{"", Unknown},
	}

	for _, tc := range cases {
		if got := c.ByDescription(tc.desc); got != tc.want {
			t.Errorf("ByDescription(%q) = %q, want %q", tc.desc, got, tc.want)
		}
	}
}

func TestByDescriptionOrderIsDeterministic(t *testing.T) {
	// Overlapping synonyms resolve to the first catalog entry, always.
	c := New([]Medication{
		{Name: "First", Synonyms: []string{"med"}},
		{Name: "Second", Synonyms: []string{"med"}},
	}, nil)

	for i := 0; i < 50; i++ {
		if got := c.ByDescription("some med 10mg"); got != "First" {
			t.Fatalf("iteration %d: got %q, want First", i, got)
		}
	}
}

func TestByProviderID(t *testing.T) {
	c := testCatalog()

	if got := c.ByProviderID(101); got != "Sildenafil" {
		t.Errorf("ByProviderID(101) = %q, want Sildenafil", got)
	}
	if got := c.ByProviderID(999); got != Unknown {
		t.Errorf("ByProviderID(999) = %q, want %q", got, Unknown)
	}
}

func TestPharmacy(t *testing.T) {
	c := testCatalog()

	if got := c.Pharmacy(10); got != "WellDyne" {
		t.Errorf("Pharmacy(10) = %q, want WellDyne", got)
	}
	if got := c.Pharmacy(77); got != Unknown {
		t.Errorf("Pharmacy(77) = %q, want %q", got, Unknown)
	}
}

func TestDefaultCatalog(t *testing.T) {
	c := Default()

	if got := c.ByDescription("Sildenafil 20mg"); got == Unknown {
		t.Error("default catalog should resolve sildenafil")
	}
	if got := c.Pharmacy(26493); got != "WellDyne" {
		t.Errorf("Pharmacy(26493) = %q, want WellDyne", got)
	}
}
