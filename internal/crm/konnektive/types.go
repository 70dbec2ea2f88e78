// Package konnektive provides a client for the Konnektive CRM query API.
package konnektive

// CRMType is the identifier the rest of the platform uses for Konnektive.
const CRMType = "knk"

// Item is one order line item.
type Item struct {
	Name       string `json:"name"`
	PurchaseID string `json:"purchaseId"`
	Canceled   bool   `json:"canceled"`
}

// Shipping is the order's shipping contact.
type Shipping struct {
	FirstName  string `json:"firstName"`
	LastName   string `json:"lastName"`
	Email      string `json:"emailAddress"`
	Phone      string `json:"phoneNumber"`
	Address1   string `json:"address1"`
	Address2   string `json:"address2"`
	City       string `json:"city"`
	State      string `json:"state"`
	PostalCode string `json:"postalCode"`
	Country    string `json:"country"`
}

// Order is an immutable order snapshot fetched from the CRM.
type Order struct {
	OrderID     string   `json:"orderId"`
	CustomerID  string   `json:"customerId"`
	Status      string   `json:"orderStatus"`
	Items       []Item   `json:"items"`
	Shipping    Shipping `json:"shipping"`
	DateOfBirth string   `json:"dateOfBirth"`
}

// OpenItems returns the non-canceled line items.
func (o *Order) OpenItems() []Item {
	var open []Item
	for _, it := range o.Items {
		if !it.Canceled {
			open = append(open, it)
		}
	}
	return open
}

// Transaction is one CRM transaction row from transactions/query.
type Transaction struct {
	TransactionID string `json:"transactionId"`
	OrderID       string `json:"orderId"`
	CustomerID    string `json:"customerId"`
	TxnType       string `json:"txnType"`
	ResponseType  string `json:"responseType"`
	DateCreated   string `json:"dateCreated"`
}

// Purchase is one CRM purchase row from purchase/query.
type Purchase struct {
	PurchaseID string `json:"purchaseId"`
	OrderID    string `json:"orderId"`
	CustomerID string `json:"customerId"`
	Product    string `json:"productName"`
	Status     string `json:"status"`
	NextBill   string `json:"nextBillDate"`
}
