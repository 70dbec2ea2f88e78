// Package router drives the twice-daily fill batch. One run sweeps the CRM's
// billable transactions plus the ready retry queues, resolves each order, and
// routes the results: WellDyne-administered fills into the trigger file,
// everything else into per-pharmacy email reports.
package router

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/meridianrx/fillengine/internal/crm/konnektive"
	"github.com/meridianrx/fillengine/internal/infrastructure/kafka"
	"github.com/meridianrx/fillengine/internal/observability/metrics"
	"github.com/meridianrx/fillengine/internal/reports"
	"github.com/meridianrx/fillengine/internal/resolver"
	"github.com/meridianrx/fillengine/internal/store"
	"github.com/meridianrx/fillengine/internal/welldyne"
)

// Processor resolves one order reference.
type Processor interface {
	Process(ctx context.Context, ref resolver.OrderRef, backfill *resolver.Backfill) (resolver.Result, error)
}

// TransactionSource lists the CRM's billable activity for a day.
type TransactionSource interface {
	QueryTransactions(ctx context.Context, start, end time.Time) ([]konnektive.Transaction, error)
	QueryOrder(ctx context.Context, orderID string) (*konnektive.Order, error)
}

// ErrorStore is the persisted retry queue.
type ErrorStore interface {
	Upsert(ctx context.Context, crmType, crmID, crmOrder string, list store.List, reason string) error
	Delete(ctx context.Context, crmType, crmID, crmOrder string, list store.List) error
	ListReady(ctx context.Context, list store.List) ([]store.FillError, error)
}

// Uploader pushes rendered batch files to the pharmacy SFTP site.
type Uploader interface {
	Upload(ctx context.Context, name string, contents []byte) error
}

// Mailer delivers pharmacy reports and developer alerts.
type Mailer interface {
	SendReport(r *reports.Report, date time.Time) error
	ConfigAlert(subject, body string)
}

// Publisher emits fill audit events. May be nil-backed; events never gate the
// batch.
type Publisher interface {
	Publish(ctx context.Context, topic string, event kafka.FillEvent) error
}

// Options configures one batch run.
type Options struct {
	// Date is the day being processed. Transactions are swept for this day
	// and batch file names carry it.
	Date time.Time
	// Timeslot is the trigger file name token for this run.
	Timeslot string
	// Backfill reprocesses a historical date: the resolver's expiration
	// clock shifts to Date and no files are uploaded or mailed.
	Backfill bool
}

// Summary is the outcome of one batch run.
type Summary struct {
	Processed   int
	Succeeded   int
	Failed      int
	Errored     int
	TriggerRows int
	ReportRows  int
}

// Router runs the fill batch.
type Router struct {
	proc     Processor
	crm      TransactionSource
	errs     ErrorStore
	uploader Uploader
	mailer   Mailer
	events   Publisher
	metrics  *metrics.Metrics
	logger   *zap.Logger
	tracer   trace.Tracer
}

// New creates a batch router. The uploader, mailer, events, and metrics may
// be nil; the corresponding side effects are skipped.
func New(proc Processor, crm TransactionSource, errs ErrorStore, uploader Uploader,
	mailer Mailer, events Publisher, m *metrics.Metrics, logger *zap.Logger) *Router {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Router{
		proc:     proc,
		crm:      crm,
		errs:     errs,
		uploader: uploader,
		mailer:   mailer,
		events:   events,
		metrics:  m,
		logger:   logger,
		tracer:   otel.Tracer("fill-router"),
	}
}

// Run executes one batch: the day's new transactions, then the ready outbound
// queue, then the ready fill retries. Passes run sequentially and items within
// a pass run one at a time; ordering is part of the batch's contract.
func (r *Router) Run(ctx context.Context, opts Options) (*Summary, error) {
	ctx, span := r.tracer.Start(ctx, "fill_batch",
		trace.WithAttributes(
			attribute.String("date", opts.Date.Format("2006-01-02")),
			attribute.String("timeslot", opts.Timeslot),
			attribute.Bool("backfill", opts.Backfill),
		))
	defer span.End()

	start := time.Now()
	trigger := welldyne.NewTriggerFile()
	reps := reports.NewSet()
	sum := &Summary{}

	if err := r.sweepTransactions(ctx, opts, trigger, reps, sum); err != nil {
		return sum, err
	}
	if err := r.sweepRetries(ctx, opts, store.ListOutbound, trigger, reps, sum); err != nil {
		return sum, err
	}
	if err := r.sweepRetries(ctx, opts, store.ListFill, trigger, reps, sum); err != nil {
		return sum, err
	}

	sum.TriggerRows = trigger.Len()
	for _, rep := range reps.All() {
		sum.ReportRows += len(rep.Rows())
	}

	if !opts.Backfill {
		r.ship(ctx, opts, trigger, reps)
	}

	if r.metrics != nil {
		r.metrics.BatchDuration.Observe(time.Since(start).Seconds())
	}

	r.logger.Info("batch complete",
		zap.Int("processed", sum.Processed),
		zap.Int("succeeded", sum.Succeeded),
		zap.Int("failed", sum.Failed),
		zap.Int("errored", sum.Errored),
		zap.Int("trigger_rows", sum.TriggerRows),
		zap.Int("report_rows", sum.ReportRows),
		zap.Duration("duration", time.Since(start)))
	return sum, nil
}

// sweepTransactions processes each order with billable activity on the run
// date. A customer billed for several transactions on one order is still
// processed once.
func (r *Router) sweepTransactions(ctx context.Context, opts Options,
	trigger *welldyne.TriggerFile, reps *reports.Set, sum *Summary) error {

	txns, err := r.crm.QueryTransactions(ctx, opts.Date, opts.Date)
	if err != nil {
		return fmt.Errorf("query transactions: %w", err)
	}

	seen := make(map[string]bool)
	for _, txn := range txns {
		if txn.OrderID == "" || seen[txn.OrderID] {
			continue
		}
		seen[txn.OrderID] = true

		ref := resolver.OrderRef{
			CRMType:    konnektive.CRMType,
			OrderID:    txn.OrderID,
			CustomerID: txn.CustomerID,
		}
		r.processOne(ctx, opts, ref, store.ListFill, false, "", trigger, reps, sum)
	}

	r.logger.Info("transaction sweep complete",
		zap.Int("transactions", len(txns)),
		zap.Int("orders", len(seen)))
	return nil
}

// sweepRetries reprocesses the ready rows on one retry list. Retried items
// ship as updates carrying the rx number recorded on the retry row.
func (r *Router) sweepRetries(ctx context.Context, opts Options, list store.List,
	trigger *welldyne.TriggerFile, reps *reports.Set, sum *Summary) error {

	rows, err := r.errs.ListReady(ctx, list)
	if err != nil {
		return fmt.Errorf("list ready %s errors: %w", list, err)
	}
	if r.metrics != nil {
		r.metrics.RetriesSwept.Add(float64(len(rows)))
	}

	for _, row := range rows {
		ref := resolver.OrderRef{
			CRMType:    row.CRMType,
			OrderID:    row.CRMOrder,
			CustomerID: row.CRMID,
		}
		r.processOne(ctx, opts, ref, list, true, row.RxNumber, trigger, reps, sum)
	}

	if len(rows) > 0 {
		r.logger.Info("retry sweep complete",
			zap.String("list", string(list)),
			zap.Int("rows", len(rows)))
	}
	return nil
}

// processOne resolves one order and routes the outcome. Infrastructure errors
// log and move on; the order stays untouched for the next run. Classified
// failures upsert a retry row; successes clear it. Retried orders, whichever
// list they came from, ship as updates carrying the prior rx number.
func (r *Router) processOne(ctx context.Context, opts Options, ref resolver.OrderRef,
	list store.List, retry bool, rxNumber string, trigger *welldyne.TriggerFile, reps *reports.Set, sum *Summary) {

	sum.Processed++

	var backfill *resolver.Backfill
	if opts.Backfill {
		backfill = &resolver.Backfill{MaxDate: opts.Date}
	}

	res, err := r.proc.Process(ctx, ref, backfill)
	if err != nil {
		sum.Errored++
		r.logger.Error("order resolution aborted",
			zap.String("crm_order", ref.OrderID),
			zap.String("list", string(list)),
			zap.Error(err))
		return
	}

	if !res.OK() {
		sum.Failed++
		reason := res.Failure().String()
		if upErr := r.errs.Upsert(ctx, ref.CRMType, ref.CustomerID, ref.OrderID, list, reason); upErr != nil {
			r.logger.Error("record fill error failed",
				zap.String("crm_order", ref.OrderID),
				zap.Error(upErr))
		}
		if r.metrics != nil {
			r.metrics.OrdersFailed.WithLabelValues(reason).Inc()
		}
		r.publish(ctx, kafka.TopicFillFailed, kafka.FillEvent{
			CRMType:   ref.CRMType,
			CRMID:     ref.CustomerID,
			CRMOrder:  ref.OrderID,
			Reason:    reason,
			List:      string(list),
			Timestamp: time.Now().UTC(),
		})
		r.logger.Warn("order failed",
			zap.String("crm_order", ref.OrderID),
			zap.String("reason", reason),
			zap.String("list", string(list)))
		return
	}

	for _, item := range res.Items() {
		if retry {
			item.Type = resolver.TypeUpdate
			item.RxNumber = rxNumber
		}
		r.route(list, retry, item, trigger, reps)
	}

	sum.Succeeded++
	if err := r.errs.Delete(ctx, ref.CRMType, ref.CustomerID, ref.OrderID, list); err != nil {
		r.logger.Error("clear fill error failed",
			zap.String("crm_order", ref.OrderID),
			zap.Error(err))
	}
	if r.metrics != nil {
		r.metrics.OrdersResolved.Inc()
	}
	r.publish(ctx, kafka.TopicFillResolved, kafka.FillEvent{
		CRMType:   ref.CRMType,
		CRMID:     ref.CustomerID,
		CRMOrder:  ref.OrderID,
		List:      string(list),
		Timestamp: time.Now().UTC(),
	})
}

// route places one resolved item. Retried items must land on a trigger
// pharmacy; anything else is a routing misconfiguration worth a developer
// alert, not a retry row. Of the fresh fills, only refills reach the
// per-pharmacy report.
func (r *Router) route(list store.List, retry bool, item resolver.FillItem,
	trigger *welldyne.TriggerFile, reps *reports.Set) {

	if welldyne.IsTriggerPharmacy(item.Pharmacy) {
		trigger.Add(item)
		if r.metrics != nil {
			r.metrics.TriggerRows.Inc()
		}
		return
	}

	if retry {
		if r.mailer != nil {
			r.mailer.ConfigAlert(
				fmt.Sprintf("%s retry order %s routed to %s", list, item.CRMOrder, item.Pharmacy),
				fmt.Sprintf("order %s customer %s resolved to pharmacy %s, which does not take trigger files",
					item.CRMOrder, item.CRMID, item.Pharmacy))
		}
		r.logger.Warn("retried item misrouted, skipping",
			zap.String("crm_order", item.CRMOrder),
			zap.String("list", string(list)),
			zap.String("pharmacy", item.Pharmacy))
		return
	}

	if item.Type != resolver.TypeRefill {
		return
	}

	reps.For(item.Pharmacy).Add(item)
	if r.metrics != nil {
		r.metrics.ReportRows.WithLabelValues(item.Pharmacy).Inc()
	}
}

// ship uploads the trigger and eligibility files and mails the pharmacy
// reports. Each side effect fails independently; one dead channel does not
// hold the others back.
func (r *Router) ship(ctx context.Context, opts Options, trigger *welldyne.TriggerFile, reps *reports.Set) {
	if r.uploader != nil && trigger.Len() > 0 {
		r.upload(ctx, welldyne.Filename(opts.Date, opts.Timeslot), trigger.Render)

		elig := welldyne.NewEligibilityFile()
		for _, m := range eligibilityMembers(trigger.Rows(), opts.Date) {
			elig.Add(m)
		}
		r.upload(ctx, welldyne.EligibilityFilename(opts.Date), elig.Render)
	}

	if r.mailer != nil {
		for _, rep := range reps.All() {
			if err := r.mailer.SendReport(rep, opts.Date); err != nil {
				r.logger.Error("report send failed",
					zap.String("pharmacy", rep.Pharmacy),
					zap.Error(err))
			}
		}
	}
}

func (r *Router) upload(ctx context.Context, name string, render func() ([]byte, error)) {
	contents, err := render()
	if err != nil {
		r.logger.Error("render failed", zap.String("file", name), zap.Error(err))
		if r.metrics != nil {
			r.metrics.UploadsFailed.Inc()
		}
		return
	}
	if err := r.uploader.Upload(ctx, name, contents); err != nil {
		r.logger.Error("upload failed", zap.String("file", name), zap.Error(err))
		if r.metrics != nil {
			r.metrics.UploadsFailed.Inc()
		}
		return
	}
	if r.metrics != nil {
		r.metrics.UploadsSucceeded.Inc()
	}
}

// eligibilityMembers regenerates the coverage windows from this run's trigger
// rows, one per customer, covering a year from the run date.
func eligibilityMembers(rows []resolver.FillItem, date time.Time) []welldyne.Member {
	seen := make(map[string]bool)
	var members []welldyne.Member
	for _, item := range rows {
		if seen[item.CRMID] {
			continue
		}
		seen[item.CRMID] = true
		members = append(members, welldyne.Member{
			MemberID:  item.CRMID,
			FirstName: item.Shipping.FirstName,
			LastName:  item.Shipping.LastName,
			DOB:       item.DOB,
			Start:     date,
			End:       date.AddDate(1, 0, 0),
		})
	}
	return members
}

func (r *Router) publish(ctx context.Context, topic string, event kafka.FillEvent) {
	if r.events == nil {
		return
	}
	if err := r.events.Publish(ctx, topic, event); err != nil {
		r.logger.Warn("event publish failed",
			zap.String("topic", topic),
			zap.String("crm_order", event.CRMOrder),
			zap.Error(err))
	}
}
