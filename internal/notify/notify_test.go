package notify

import (
	"context"
	"strings"
	"testing"

	"github.com/meridianrx/fillengine/internal/crm/konnektive"
	"github.com/meridianrx/fillengine/internal/store"
)

type fakeFlags struct {
	rows     map[int][]store.ExpiringRx
	advanced map[uint]int
	removed  []uint
}

func (f *fakeFlags) ListAtStep(_ context.Context, step int) ([]store.ExpiringRx, error) {
	return f.rows[step], nil
}

func (f *fakeFlags) Advance(_ context.Context, id uint, step int) error {
	if f.advanced == nil {
		f.advanced = make(map[uint]int)
	}
	f.advanced[id] = step
	return nil
}

func (f *fakeFlags) Remove(_ context.Context, id uint) error {
	f.removed = append(f.removed, id)
	return nil
}

type fakeOrders struct {
	orders map[string]*konnektive.Order
}

func (f *fakeOrders) QueryOrder(_ context.Context, orderID string) (*konnektive.Order, error) {
	return f.orders[orderID], nil
}

type sentMessage struct {
	phone   string
	message string
}

type fakeMessenger struct {
	sent []sentMessage
}

func (f *fakeMessenger) Send(_ context.Context, phone, message string) error {
	f.sent = append(f.sent, sentMessage{phone: phone, message: message})
	return nil
}

func orderWithPhone(id, phone string) *konnektive.Order {
	return &konnektive.Order{
		OrderID:  id,
		Shipping: konnektive.Shipping{Phone: phone},
	}
}

func TestRunSendsAndAdvances(t *testing.T) {
	flags := &fakeFlags{rows: map[int][]store.ExpiringRx{
		0: {{ID: 1, CRMType: "knk", CRMID: "c1", CRMOrder: "o1", RxID: 7}},
	}}
	orders := &fakeOrders{orders: map[string]*konnektive.Order{"o1": orderWithPhone("o1", "555-0100")}}
	msgr := &fakeMessenger{}

	n := New(flags, orders, msgr, nil, nil)
	if err := n.Run(context.Background()); err != nil {
		t.Fatalf("run: %v", err)
	}

	if len(msgr.sent) != 1 || msgr.sent[0].phone != "555-0100" {
		t.Fatalf("unexpected sends: %+v", msgr.sent)
	}
	if flags.advanced[1] != 1 {
		t.Fatalf("expected flag advanced to step 1, got %v", flags.advanced)
	}
	if len(flags.removed) != 0 {
		t.Fatalf("flag should not be removed at step 0, got %v", flags.removed)
	}
}

func TestRunFinalStepRemoves(t *testing.T) {
	flags := &fakeFlags{rows: map[int][]store.ExpiringRx{
		2: {{ID: 3, CRMType: "knk", CRMID: "c1", CRMOrder: "o3", RxID: 9}},
	}}
	orders := &fakeOrders{orders: map[string]*konnektive.Order{"o3": orderWithPhone("o3", "555-0101")}}
	msgr := &fakeMessenger{}

	n := New(flags, orders, msgr, nil, nil)
	if err := n.Run(context.Background()); err != nil {
		t.Fatalf("run: %v", err)
	}

	if len(msgr.sent) != 1 || !strings.Contains(msgr.sent[0].message, "Final notice") {
		t.Fatalf("expected final notice, got %+v", msgr.sent)
	}
	if len(flags.removed) != 1 || flags.removed[0] != 3 {
		t.Fatalf("expected flag removed, got %v", flags.removed)
	}
}

func TestRunAdvancedFlagNotResweptSameRun(t *testing.T) {
	flags := &fakeFlags{rows: map[int][]store.ExpiringRx{
		0: {{ID: 1, CRMOrder: "o1"}},
		1: {{ID: 2, CRMOrder: "o2"}},
	}}
	orders := &fakeOrders{orders: map[string]*konnektive.Order{
		"o1": orderWithPhone("o1", "555-0100"),
		"o2": orderWithPhone("o2", "555-0101"),
	}}
	msgr := &fakeMessenger{}

	n := New(flags, orders, msgr, nil, nil)
	if err := n.Run(context.Background()); err != nil {
		t.Fatalf("run: %v", err)
	}

	if len(msgr.sent) != 2 {
		t.Fatalf("each flag gets exactly one reminder per run, got %d", len(msgr.sent))
	}
	if flags.advanced[1] != 1 || flags.advanced[2] != 2 {
		t.Fatalf("unexpected advances: %v", flags.advanced)
	}
}

func TestRunNoPhoneDropsFlag(t *testing.T) {
	flags := &fakeFlags{rows: map[int][]store.ExpiringRx{
		0: {{ID: 4, CRMOrder: "o4"}},
	}}
	orders := &fakeOrders{orders: map[string]*konnektive.Order{}}
	msgr := &fakeMessenger{}

	n := New(flags, orders, msgr, nil, nil)
	if err := n.Run(context.Background()); err != nil {
		t.Fatalf("run: %v", err)
	}

	if len(msgr.sent) != 0 {
		t.Fatalf("nothing should be sent without a phone, got %+v", msgr.sent)
	}
	if len(flags.removed) != 1 || flags.removed[0] != 4 {
		t.Fatalf("unreachable flag should be dropped, got %v", flags.removed)
	}
}
