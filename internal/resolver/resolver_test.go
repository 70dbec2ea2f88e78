package resolver

import (
	"context"
	"testing"
	"time"

	"github.com/meridianrx/fillengine/internal/catalog"
	"github.com/meridianrx/fillengine/internal/crm/konnektive"
	"github.com/meridianrx/fillengine/internal/prescriptions"
)

// --- fakes ---

type fakeOrders struct {
	orders map[string]*konnektive.Order
}

func (f *fakeOrders) QueryOrder(_ context.Context, id string) (*konnektive.Order, error) {
	return f.orders[id], nil
}

type fakeRxSource struct {
	patients map[string]int
	rxs      map[int][]prescriptions.Prescription
}

func (f *fakeRxSource) PatientID(_ context.Context, _ string, customerID string) (int, error) {
	id, ok := f.patients[customerID]
	if !ok {
		return 0, prescriptions.ErrNotFound
	}
	return id, nil
}

func (f *fakeRxSource) ForPatient(_ context.Context, patientID int) ([]prescriptions.Prescription, error) {
	return f.rxs[patientID], nil
}

type fakeFlags struct {
	replaced []ExpiringFlag
}

func (f *fakeFlags) Replace(_ context.Context, flag ExpiringFlag) error {
	f.replaced = append(f.replaced, flag)
	return nil
}

// --- fixtures ---

var testNow = time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)

func testCatalog() *catalog.Catalog {
	return catalog.New([]catalog.Medication{
		{Name: "Sildenafil", Synonyms: []string{"sildenafil"}, ProviderIDs: []int{100}},
		{Name: "Tadalafil", Synonyms: []string{"tadalafil"}, ProviderIDs: []int{200}},
	}, map[int]string{
		10: "WellDyne",
		20: "Pastime",
	})
}

func dateStr(daysAgo int) string {
	return testNow.AddDate(0, 0, -daysAgo).Format("2006-01-02")
}

type env struct {
	orders *fakeOrders
	rxs    *fakeRxSource
	flags  *fakeFlags
	r      *Resolver
}

func newEnv() *env {
	e := &env{
		orders: &fakeOrders{orders: map[string]*konnektive.Order{}},
		rxs:    &fakeRxSource{patients: map[string]int{}, rxs: map[int][]prescriptions.Prescription{}},
		flags:  &fakeFlags{},
	}
	e.r = New(ClockAt(testNow), testCatalog(), e.orders, e.rxs, e.flags, nil, nil)
	return e
}

func (e *env) withOrder(orderID, customerID string, items ...konnektive.Item) {
	e.orders.orders[orderID] = &konnektive.Order{
		OrderID:    orderID,
		CustomerID: customerID,
		Items:      items,
	}
}

func (e *env) withRx(customerID string, patientID int, rxs ...prescriptions.Prescription) {
	e.rxs.patients[customerID] = patientID
	e.rxs.rxs[patientID] = rxs
}

func ref(orderID string) OrderRef {
	return OrderRef{CRMType: konnektive.CRMType, OrderID: orderID}
}

func mustFail(t *testing.T, res Result, err error, want string) {
	t.Helper()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.OK() {
		t.Fatalf("expected failure %q, got success %+v", want, res.Items())
	}
	if got := res.Failure().String(); got != want {
		t.Fatalf("failure = %q, want %q", got, want)
	}
}

// --- tests ---

func TestInvalidCRMType(t *testing.T) {
	e := newEnv()
	res, err := e.r.Process(context.Background(), OrderRef{CRMType: "shopify", OrderID: "o1"}, nil)
	mustFail(t, res, err, "INVALID CRM TYPE")
}

func TestOrderNotFound(t *testing.T) {
	e := newEnv()
	res, err := e.r.Process(context.Background(), ref("missing"), nil)
	mustFail(t, res, err, "ORDER NOT FOUND")
}

func TestNoItemsInOrder(t *testing.T) {
	e := newEnv()
	e.withOrder("o1", "c1", konnektive.Item{Name: "Sildenafil 50mg", PurchaseID: "p1", Canceled: true})
	res, err := e.r.Process(context.Background(), ref("o1"), nil)
	mustFail(t, res, err, "NO ITEMS IN ORDER")
}

func TestNotInProvider(t *testing.T) {
	e := newEnv()
	e.withOrder("o1", "c1", konnektive.Item{Name: "Sildenafil 50mg", PurchaseID: "p1"})
	res, err := e.r.Process(context.Background(), ref("o1"), nil)
	mustFail(t, res, err, "NOT IN DOSESPOT")
}

func TestNoPrescriptions(t *testing.T) {
	e := newEnv()
	e.withOrder("o1", "c1", konnektive.Item{Name: "Sildenafil 50mg", PurchaseID: "p1"})
	e.withRx("c1", 500)
	res, err := e.r.Process(context.Background(), ref("o1"), nil)
	mustFail(t, res, err, "NO PRESCRIPTIONS IN DOSESPOT")
}

func TestNoValidPrescriptions(t *testing.T) {
	e := newEnv()
	e.withOrder("o1", "c1", konnektive.Item{Name: "Sildenafil 50mg", PurchaseID: "p1"})
	e.withRx("c1", 500, prescriptions.Prescription{
		ID: 1, ProductID: 100, PharmacyID: 10,
		Status: prescriptions.StatusDeleted, WrittenDate: dateStr(10),
	})
	res, err := e.r.Process(context.Background(), ref("o1"), nil)
	mustFail(t, res, err, "NO VALID PRESCRIPTIONS")
}

func TestSingleItemDirectMatch(t *testing.T) {
	e := newEnv()
	e.withOrder("o1", "c1", konnektive.Item{Name: "Sildenafil 50mg", PurchaseID: "p1"})
	e.withRx("c1", 500, prescriptions.Prescription{
		ID: 1, ProductID: 100, PharmacyID: 10,
		Status: prescriptions.StatusSent, WrittenDate: dateStr(30),
		DisplayName: "Sildenafil 50mg tablet",
	})

	res, err := e.r.Process(context.Background(), ref("o1"), nil)
	if err != nil {
		t.Fatalf("Process: %v", err)
	}
	if !res.OK() {
		t.Fatalf("expected success, got %q", res.Failure())
	}
	items := res.Items()
	if len(items) != 1 {
		t.Fatalf("got %d items, want 1", len(items))
	}
	it := items[0]
	if it.Pharmacy != "WellDyne" || it.RxID != 1 || it.CRMOrder != "o1" || it.PurchaseID != "p1" {
		t.Errorf("wrong fill item: %+v", it)
	}
	if it.Type != TypeInitial {
		t.Errorf("type = %s, want initial", it.Type)
	}
	if len(e.flags.replaced) != 0 {
		t.Errorf("no flag expected for a fresh prescription, got %+v", e.flags.replaced)
	}
}

func TestUnknownPharmacy(t *testing.T) {
	e := newEnv()
	e.withOrder("o1", "c1", konnektive.Item{Name: "Sildenafil 50mg", PurchaseID: "p1"})
	e.withRx("c1", 500, prescriptions.Prescription{
		ID: 1, ProductID: 100, PharmacyID: 999,
		Status: prescriptions.StatusSent, WrittenDate: dateStr(30),
	})
	res, err := e.r.Process(context.Background(), ref("o1"), nil)
	mustFail(t, res, err, "UNKNOWN PHARMACY")
}

func TestExpiredPrescription(t *testing.T) {
	e := newEnv()
	e.withOrder("o1", "c1", konnektive.Item{Name: "Sildenafil 50mg", PurchaseID: "p1"})
	e.withRx("c1", 500, prescriptions.Prescription{
		ID: 1, ProductID: 100, PharmacyID: 10,
		Status: prescriptions.StatusSent, WrittenDate: dateStr(370),
	})
	res, err := e.r.Process(context.Background(), ref("o1"), nil)
	mustFail(t, res, err, "EXPIRED PRESCRIPTION")
}

func TestNearingExpiryCreatesFlag(t *testing.T) {
	e := newEnv()
	e.withOrder("o1", "c1", konnektive.Item{Name: "Sildenafil 50mg", PurchaseID: "p1"})
	e.withRx("c1", 500, prescriptions.Prescription{
		ID: 42, ProductID: 100, PharmacyID: 10,
		Status: prescriptions.StatusSent, WrittenDate: dateStr(340),
	})

	res, err := e.r.Process(context.Background(), ref("o1"), nil)
	if err != nil {
		t.Fatalf("Process: %v", err)
	}
	if !res.OK() {
		t.Fatalf("expected success inside the expiry window, got %q", res.Failure())
	}
	if len(e.flags.replaced) != 1 {
		t.Fatalf("got %d flags, want 1", len(e.flags.replaced))
	}
	f := e.flags.replaced[0]
	if f.CRMOrder != "o1" || f.PurchaseID != "p1" || f.RxID != 42 {
		t.Errorf("wrong flag: %+v", f)
	}
}

func TestMultiItemWholeOrderFailure(t *testing.T) {
	// Two line items, only one with a matching prescription: the whole
	// order fails, the matched item gets no partial success.
	e := newEnv()
	e.withOrder("o1", "c1",
		konnektive.Item{Name: "Sildenafil 50mg", PurchaseID: "p1"},
		konnektive.Item{Name: "Tadalafil 5mg", PurchaseID: "p2"},
	)
	e.withRx("c1", 500, prescriptions.Prescription{
		ID: 1, ProductID: 100, PharmacyID: 10,
		Status: prescriptions.StatusSent, WrittenDate: dateStr(30),
	})

	res, err := e.r.Process(context.Background(), ref("o1"), nil)
	mustFail(t, res, err, "NO MATCHING PRESCRIPTION (Tadalafil)")
}

func TestMultiItemUnknownProduct(t *testing.T) {
	e := newEnv()
	e.withOrder("o1", "c1",
		konnektive.Item{Name: "Sildenafil 50mg", PurchaseID: "p1"},
		konnektive.Item{Name: "Vitamin D", PurchaseID: "p2"},
	)
	e.withRx("c1", 500,
		prescriptions.Prescription{ID: 1, ProductID: 100, PharmacyID: 10,
			Status: prescriptions.StatusSent, WrittenDate: dateStr(30)},
		prescriptions.Prescription{ID: 2, ProductID: 200, PharmacyID: 10,
			Status: prescriptions.StatusSent, WrittenDate: dateStr(30)},
	)

	res, err := e.r.Process(context.Background(), ref("o1"), nil)
	mustFail(t, res, err, "UNKNOWN PRODUCT (Vitamin D)")
}

func TestMultiItemSuccess(t *testing.T) {
	e := newEnv()
	e.withOrder("o1", "c1",
		konnektive.Item{Name: "Sildenafil 50mg", PurchaseID: "p1"},
		konnektive.Item{Name: "Tadalafil 5mg", PurchaseID: "p2"},
	)
	e.withRx("c1", 500,
		prescriptions.Prescription{ID: 1, ProductID: 100, PharmacyID: 10,
			Status: prescriptions.StatusSent, WrittenDate: dateStr(30), Refills: 2},
		prescriptions.Prescription{ID: 2, ProductID: 200, PharmacyID: 20,
			Status: prescriptions.StatusSent, WrittenDate: dateStr(15)},
	)

	res, err := e.r.Process(context.Background(), ref("o1"), nil)
	if err != nil {
		t.Fatalf("Process: %v", err)
	}
	if !res.OK() {
		t.Fatalf("expected success, got %q", res.Failure())
	}
	items := res.Items()
	if len(items) != 2 {
		t.Fatalf("got %d items, want 2", len(items))
	}
	if items[0].Type != TypeRefill {
		t.Errorf("item with refills should be type refill, got %s", items[0].Type)
	}
	if items[1].Pharmacy != "Pastime" {
		t.Errorf("second item pharmacy = %s, want Pastime", items[1].Pharmacy)
	}
}

func TestProcessIsIdempotent(t *testing.T) {
	e := newEnv()
	e.withOrder("o1", "c1", konnektive.Item{Name: "Sildenafil 50mg", PurchaseID: "p1"})
	e.withRx("c1", 500, prescriptions.Prescription{
		ID: 1, ProductID: 100, PharmacyID: 10,
		Status: prescriptions.StatusSent, WrittenDate: dateStr(30),
	})

	first, err := e.r.Process(context.Background(), ref("o1"), nil)
	if err != nil {
		t.Fatalf("first Process: %v", err)
	}
	second, err := e.r.Process(context.Background(), ref("o1"), nil)
	if err != nil {
		t.Fatalf("second Process: %v", err)
	}

	if first.OK() != second.OK() {
		t.Fatal("classification changed between identical runs")
	}
	if len(first.Items()) != len(second.Items()) {
		t.Fatal("item count changed between identical runs")
	}
}

func TestBackfillShiftsClock(t *testing.T) {
	// Effective 340 days before "now" but fresh relative to the backfill
	// date: no expiring flag, plain success.
	e := newEnv()
	order := &konnektive.Order{
		OrderID:    "o1",
		CustomerID: "c1",
		Items:      []konnektive.Item{{Name: "Sildenafil 50mg", PurchaseID: "p1"}},
	}
	e.withRx("c1", 500, prescriptions.Prescription{
		ID: 1, ProductID: 100, PharmacyID: 10,
		Status: prescriptions.StatusSent, WrittenDate: dateStr(340),
	})

	backfill := &Backfill{Order: order, MaxDate: testNow.AddDate(0, 0, -330)}
	res, err := e.r.Process(context.Background(), ref("o1"), backfill)
	if err != nil {
		t.Fatalf("Process: %v", err)
	}
	if !res.OK() {
		t.Fatalf("expected success, got %q", res.Failure())
	}
	if len(e.flags.replaced) != 0 {
		t.Errorf("backfill clock should not flag a then-fresh prescription: %+v", e.flags.replaced)
	}
}

func TestClockBoundaries(t *testing.T) {
	c := ClockAt(testNow)

	if !c.Expired(testNow.AddDate(0, 0, -366)) {
		t.Error("366 days ago should be expired")
	}
	if c.Expired(testNow.AddDate(0, 0, -364)) {
		t.Error("364 days ago should not be expired")
	}
	if !c.NearingExpiry(testNow.AddDate(0, 0, -340)) {
		t.Error("340 days ago should be nearing expiry")
	}
	if c.NearingExpiry(testNow.AddDate(0, 0, -300)) {
		t.Error("300 days ago should not be nearing expiry")
	}
	if c.NearingExpiry(testNow.AddDate(0, 0, -366)) {
		t.Error("expired is not nearing expiry")
	}
}
