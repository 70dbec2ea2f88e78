// Package catalog provides the canonical medication and pharmacy reference data.
// Loaded once at startup; lookups never fail, they return the Unknown sentinel.
package catalog

import "strings"

// Unknown is the sentinel returned when a lookup does not resolve.
// Callers must check for it explicitly; it is never an error.
const Unknown = "unknown"

// Medication is one canonical medication with its matching data.
type Medication struct {
	// Name is the canonical medication name.
	Name string
	// Synonyms are matched case-insensitively as substrings of free-text
	// product descriptions. Order within the catalog is significant: the
	// first medication whose synonym matches wins.
	Synonyms []string
	// ProviderIDs are the e-prescribing provider's numeric product ids
	// that map to this medication.
	ProviderIDs []int
}

// Catalog resolves free-text product descriptions and provider product ids
// to canonical medication names, and pharmacy ids to pharmacy names.
type Catalog struct {
	meds       []Medication
	byProvider map[int]string
	pharmacies map[int]string
}

// New builds a catalog from medication entries and a pharmacy id table.
// Medication order is preserved and is the matching order for ByDescription.
func New(meds []Medication, pharmacies map[int]string) *Catalog {
	c := &Catalog{
		meds:       meds,
		byProvider: make(map[int]string),
		pharmacies: pharmacies,
	}
	for _, m := range meds {
		for _, id := range m.ProviderIDs {
			c.byProvider[id] = m.Name
		}
	}
	return c
}

// ByDescription resolves a free-text product description to a canonical
// medication name. Matching is a case-insensitive substring test against
// each medication's synonyms, in catalog order.
func (c *Catalog) ByDescription(text string) string {
	lower := strings.ToLower(text)
	for _, m := range c.meds {
		for _, syn := range m.Synonyms {
			if strings.Contains(lower, strings.ToLower(syn)) {
				return m.Name
			}
		}
	}
	return Unknown
}

// ByProviderID resolves a provider product id to a canonical medication name.
func (c *Catalog) ByProviderID(id int) string {
	if name, ok := c.byProvider[id]; ok {
		return name
	}
	return Unknown
}

// Pharmacy resolves a pharmacy id to its name.
func (c *Catalog) Pharmacy(id int) string {
	if name, ok := c.pharmacies[id]; ok {
		return name
	}
	return Unknown
}

// Pharmacies returns the pharmacy id table.
func (c *Catalog) Pharmacies() map[int]string {
	return c.pharmacies
}

// Default returns the production reference data.
func Default() *Catalog {
	return New(defaultMedications, defaultPharmacies)
}

var defaultMedications = []Medication{
	{
		Name:        "Sildenafil",
		Synonyms:    []string{"sildenafil", "viagra"},
		ProviderIDs: []int{174811, 215352},
	},
	{
		Name:        "Tadalafil",
		Synonyms:    []string{"tadalafil", "cialis"},
		ProviderIDs: []int{176711, 219561},
	},
	{
		Name:        "Finasteride",
		Synonyms:    []string{"finasteride", "propecia"},
		ProviderIDs: []int{173420},
	},
	{
		Name:        "Oxytocin",
		Synonyms:    []string{"oxytocin"},
		ProviderIDs: []int{206742},
	},
	{
		Name:        "Sermorelin",
		Synonyms:    []string{"sermorelin"},
		ProviderIDs: []int{231196},
	},
	{
		Name:        "Testosterone Cream",
		Synonyms:    []string{"testosterone"},
		ProviderIDs: []int{228370},
	},
	{
		Name:        "Apomorphine",
		Synonyms:    []string{"apomorphine"},
		ProviderIDs: []int{236280},
	},
}

var defaultPharmacies = map[int]string{
	26493: "WellDyne",
	56387: "Pastime",
	57458: "CallRx",
	58950: "Castia",
	59597: "AnazaoHealth",
}
