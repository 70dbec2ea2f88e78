// Package resolver reconciles CRM orders against e-prescribing prescriptions
// and produces routed fill items or a classified failure per order.
package resolver

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/meridianrx/fillengine/internal/catalog"
	"github.com/meridianrx/fillengine/internal/crm/konnektive"
	"github.com/meridianrx/fillengine/internal/prescriptions"
)

// ItemType classifies a resolved fill item.
type ItemType string

const (
	TypeInitial ItemType = "initial"
	TypeRefill  ItemType = "refill"
	TypeUpdate  ItemType = "update"
)

// FillItem is one resolved order line item, ready for routing.
type FillItem struct {
	CRMType    string
	CRMID      string // CRM customer id
	CRMOrder   string
	PurchaseID string
	Medication string // prescription display string
	Pharmacy   string
	RxID       int
	RxNumber   string // prior pharmacy rx number, set for updates
	DOB        string
	Type       ItemType
	Shipping   konnektive.Shipping
}

// OrderRef identifies the order to resolve.
type OrderRef struct {
	CRMType    string
	OrderID    string
	CustomerID string
}

// Backfill reprocesses a historical order against a shifted "as of" date.
// Order, when set, is a pre-fetched snapshot that skips the CRM lookup.
type Backfill struct {
	Order   *konnektive.Order
	MaxDate time.Time
}

// OrderSource fetches order snapshots from the CRM.
type OrderSource interface {
	QueryOrder(ctx context.Context, orderID string) (*konnektive.Order, error)
}

// ExpiringFlag marks a matched prescription inside the pre-expiration window.
// A separate notification cron consumes these and advances Step.
type ExpiringFlag struct {
	CRMType    string
	CRMID      string
	CRMOrder   string
	PurchaseID string
	RxID       int
}

// ExpiringFlagStore persists expiring-prescription flags. Replace semantics:
// re-inserting the same (crm_type, crm_id, crm_order, purchase_id) overwrites
// the existing row.
type ExpiringFlagStore interface {
	Replace(ctx context.Context, flag ExpiringFlag) error
}

// Alerter reports data-quality anomalies on a side channel. Reporting must
// not block or fail resolution.
type Alerter interface {
	DataQuality(subject string, anomalies []prescriptions.Anomaly)
}

// Resolver resolves one order reference at a time. It is a pure function of
// the fetched external state plus its Clock; calling Process twice with
// unchanged upstream state yields the same classification.
type Resolver struct {
	clock   Clock
	catalog *catalog.Catalog
	orders  OrderSource
	rxs     prescriptions.Source
	flags   ExpiringFlagStore
	alerts  Alerter
	logger  *zap.Logger
	tracer  trace.Tracer
}

// New creates a resolver for one batch run. The alerter may be nil.
func New(clock Clock, cat *catalog.Catalog, orders OrderSource, rxs prescriptions.Source,
	flags ExpiringFlagStore, alerts Alerter, logger *zap.Logger) *Resolver {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Resolver{
		clock:   clock,
		catalog: cat,
		orders:  orders,
		rxs:     rxs,
		flags:   flags,
		alerts:  alerts,
		logger:  logger,
		tracer:  otel.Tracer("resolver"),
	}
}

// Process resolves one order. The Result carries the success/failure
// classification; the error return is reserved for infrastructure failures
// (network, storage) that should abort the item, not classify it.
func (r *Resolver) Process(ctx context.Context, ref OrderRef, backfill *Backfill) (Result, error) {
	ctx, span := r.tracer.Start(ctx, "resolve_order",
		trace.WithAttributes(
			attribute.String("crm_type", ref.CRMType),
			attribute.String("crm_order", ref.OrderID),
		))
	defer span.End()

	if ref.CRMType != konnektive.CRMType {
		return Fail(ReasonInvalidCRMType), nil
	}

	clock := r.clock
	var maxDate time.Time
	if backfill != nil && !backfill.MaxDate.IsZero() {
		maxDate = backfill.MaxDate
		clock = ClockAt(backfill.MaxDate)
	}

	order, err := r.fetchOrder(ctx, ref, backfill)
	if err != nil {
		return Result{}, err
	}
	if order == nil {
		return Fail(ReasonOrderNotFound), nil
	}

	items := order.OpenItems()
	if len(items) == 0 {
		return Fail(ReasonNoItems), nil
	}

	patientID, err := r.rxs.PatientID(ctx, ref.CRMType, order.CustomerID)
	if err != nil {
		if errors.Is(err, prescriptions.ErrNotFound) {
			return Fail(ReasonNotInProvider), nil
		}
		return Result{}, fmt.Errorf("resolve patient: %w", err)
	}

	raw, err := r.rxs.ForPatient(ctx, patientID)
	if err != nil {
		return Result{}, fmt.Errorf("fetch prescriptions: %w", err)
	}
	if len(raw) == 0 {
		return Fail(ReasonNoPrescriptions), nil
	}

	filtered, anomalies := prescriptions.Filter(r.catalog, raw, maxDate)
	if len(anomalies) > 0 && r.alerts != nil {
		r.alerts.DataQuality(fmt.Sprintf("order %s customer %s", order.OrderID, order.CustomerID), anomalies)
	}
	if len(filtered) == 0 {
		return Fail(ReasonNoValidPrescriptions), nil
	}

	if len(items) == 1 && len(filtered) == 1 {
		return r.resolveSingle(ctx, clock, order, items[0], filtered)
	}
	return r.resolveMulti(ctx, clock, order, items, filtered)
}

func (r *Resolver) fetchOrder(ctx context.Context, ref OrderRef, backfill *Backfill) (*konnektive.Order, error) {
	if backfill != nil && backfill.Order != nil {
		return backfill.Order, nil
	}
	order, err := r.orders.QueryOrder(ctx, ref.OrderID)
	if err != nil {
		return nil, fmt.Errorf("fetch order %s: %w", ref.OrderID, err)
	}
	return order, nil
}

// resolveSingle handles the one-item, one-prescription direct match.
func (r *Resolver) resolveSingle(ctx context.Context, clock Clock, order *konnektive.Order,
	item konnektive.Item, filtered map[string]prescriptions.Summary) (Result, error) {

	var rx prescriptions.Summary
	for _, s := range filtered {
		rx = s
	}

	return r.checkAndBuild(ctx, clock, order, item, rx, nil)
}

// resolveMulti matches each line item to its prescription by canonical
// medication. Any single fatal item fails the whole order; there is no
// partial success for multi-item orders.
func (r *Resolver) resolveMulti(ctx context.Context, clock Clock, order *konnektive.Order,
	items []konnektive.Item, filtered map[string]prescriptions.Summary) (Result, error) {

	var resolved []FillItem
	for _, item := range items {
		med := r.catalog.ByDescription(item.Name)
		if med == catalog.Unknown {
			return FailWith(ReasonUnknownProduct, item.Name), nil
		}

		rx, ok := filtered[med]
		if !ok {
			return FailWith(ReasonNoMatchingPrescription, med), nil
		}

		res, err := r.checkAndBuild(ctx, clock, order, item, rx, resolved)
		if err != nil || !res.OK() {
			return res, err
		}
		resolved = res.Items()
	}

	return Ok(resolved), nil
}

// checkAndBuild applies the pharmacy and expiration checks and appends the
// fill item on success.
func (r *Resolver) checkAndBuild(ctx context.Context, clock Clock, order *konnektive.Order,
	item konnektive.Item, rx prescriptions.Summary, acc []FillItem) (Result, error) {

	if rx.Pharmacy == catalog.Unknown {
		return Fail(ReasonUnknownPharmacy), nil
	}

	if clock.Expired(rx.EffectiveDate) {
		return Fail(ReasonExpiredPrescription), nil
	}

	if clock.NearingExpiry(rx.EffectiveDate) {
		flag := ExpiringFlag{
			CRMType:    konnektive.CRMType,
			CRMID:      order.CustomerID,
			CRMOrder:   order.OrderID,
			PurchaseID: item.PurchaseID,
			RxID:       rx.ID,
		}
		if err := r.flags.Replace(ctx, flag); err != nil {
			return Result{}, fmt.Errorf("record expiring flag: %w", err)
		}
		r.logger.Info("prescription nearing expiry",
			zap.String("crm_order", order.OrderID),
			zap.Int("rx_id", rx.ID),
			zap.Time("effective", rx.EffectiveDate))
	}

	itemType := TypeInitial
	if rx.Refills > 0 {
		itemType = TypeRefill
	}

	return Ok(append(acc, FillItem{
		CRMType:    konnektive.CRMType,
		CRMID:      order.CustomerID,
		CRMOrder:   order.OrderID,
		PurchaseID: item.PurchaseID,
		Medication: rx.DisplayName,
		Pharmacy:   rx.Pharmacy,
		RxID:       rx.ID,
		DOB:        order.DateOfBirth,
		Type:       itemType,
		Shipping:   order.Shipping,
	})), nil
}
