package fulfillment

import (
	"context"
	"errors"
	"fmt"
	"packchicken-service/config"
	"packchicken-service/core"
	"packchicken-service/labels"
	"packchicken-service/normalize"
	"packchicken-service/storefront"
	"packchicken-service/workers/fulfillment/models"
	"packchicken-service/workers/fulfillment/processors"
	"packchicken-service/workers/fulfillment/repositories"
	"path/filepath"
	"strconv"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Storefront is the part of the Shopify client the pipeline needs.
type Storefront interface {
	GetOrder(ctx context.Context, orderID string) (*storefront.Order, error)
	FulfillmentOrders(ctx context.Context, orderID string) ([]storefront.FulfillmentOrder, error)
	CreateFulfillment(ctx context.Context, req storefront.FulfillmentRequest) (*storefront.Fulfillment, error)
}

// ErrJobNotSettled means a job handled in this run was claimed again; its
// status write did not stick.
var ErrJobNotSettled = errors.New("job is still pending after it was handled")

// settleTimeout bounds the work after a confirmed booking, which runs even
// when the run's context is canceled.
const settleTimeout = 2 * time.Minute

type RunOptions struct {
	Return bool
}

// RunReport belongs to a single run and is returned to the caller.
type RunReport struct {
	ProcessedJobs int      `json:"processed_jobs"`
	Done          int      `json:"done"`
	Failed        int      `json:"failed"`
	Errors        []string `json:"errors"`
	Labels        []string `json:"labels"`
	MergedLabel   string   `json:"merged_label,omitempty"`
}

func (r *RunReport) errorf(format string, args ...any) {
	r.Errors = append(r.Errors, fmt.Sprintf(format, args...))
}

type Pipeline struct {
	logger    *zap.Logger
	cfg       *config.Config
	jobs      *repositories.JobRepository
	shipments *repositories.ShipmentRepository
	processor processors.BookingProcessor
	store     Storefront
	lock      core.RunLocker
	now       func() time.Time
}

// NewPipeline wires a pipeline. store may be nil when the storefront is not
// configured; re-fetch and fulfillment updates are then skipped.
func NewPipeline(
	cfg *config.Config,
	logger *zap.Logger,
	db *gorm.DB,
	processor processors.BookingProcessor,
	store Storefront,
	lock core.RunLocker,
) *Pipeline {
	if lock == nil {
		lock = &core.LocalRunLock{}
	}
	return &Pipeline{
		logger:    logger,
		cfg:       cfg,
		jobs:      repositories.NewJobRepository(db),
		shipments: repositories.NewShipmentRepository(db),
		processor: processor,
		store:     store,
		lock:      lock,
		now:       time.Now,
	}
}

// Run drains the pending queue one job at a time, then merges the labels
// downloaded during this run. Per-job failures are recorded on the job and
// in the report; only store errors and a held run lock abort the run.
func (p *Pipeline) Run(ctx context.Context, opts RunOptions) (*RunReport, error) {
	release, err := p.lock.Acquire(ctx)
	if err != nil {
		return nil, err
	}
	defer release()

	role := processors.RoleForward
	if opts.Return {
		role = processors.RoleReturn
	}

	report := &RunReport{Errors: []string{}, Labels: []string{}}
	p.logger.Info("Starting fulfillment run.", zap.String("processor", p.processor.Name()), zap.String("role", string(role)))

	handled := map[uint]bool{}
	for {
		if err := ctx.Err(); err != nil {
			p.consolidate(ctx, report)
			return report, err
		}

		job, err := p.jobs.ClaimNext(ctx)
		if err != nil {
			report.errorf("claim next job: %v", err)
			p.consolidate(ctx, report)
			return report, err
		}
		if job == nil {
			break
		}
		if handled[job.ID] {
			err := fmt.Errorf("job %d: %w", job.ID, ErrJobNotSettled)
			report.errorf("%v", err)
			p.consolidate(ctx, report)
			return report, err
		}
		handled[job.ID] = true

		report.ProcessedJobs++
		if err := p.processJob(ctx, job, role, report); err != nil {
			p.logger.Error("Stopping run, job status could not be recorded", zap.Uint("job_id", job.ID), zap.Error(err))
			p.consolidate(ctx, report)
			return report, err
		}
	}

	p.consolidate(ctx, report)
	p.logger.Info("Fulfillment run completed.",
		zap.Int("processed", report.ProcessedJobs),
		zap.Int("done", report.Done),
		zap.Int("failed", report.Failed),
		zap.String("merged_label", report.MergedLabel),
	)
	return report, nil
}

// processJob books one job. The returned error is a failed status write;
// booking failures are recorded on the job and in the report.
func (p *Pipeline) processJob(ctx context.Context, job *models.Job, role processors.Role, report *RunReport) error {
	log := p.logger.With(zap.Uint("job_id", job.ID), zap.String("order_id", job.OrderID))
	log.Info("Processing job")

	doc, err := job.Document()
	if err != nil {
		return p.fail(ctx, log, job, err, report)
	}
	order := doc.Order

	result, err := p.book(ctx, log, job.ID, &order, role)
	if err != nil {
		return p.fail(ctx, log, job, err, report)
	}

	// The carrier has confirmed the shipment. Everything below must reach the
	// store even if the caller goes away.
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), settleTimeout)
	defer cancel()

	var warnings []string
	labelPath := ""
	if result.HasLabel() {
		dest := filepath.Join(p.cfg.LabelDir, LabelFileName(job.ID, result))
		if err := p.processor.FetchLabel(ctx, result, dest); err != nil {
			log.Warn("Label download failed", zap.String("tracking_number", result.TrackingNumber), zap.Error(err))
			warnings = append(warnings, "label download failed: "+err.Error())
		} else {
			labelPath = dest
			report.Labels = append(report.Labels, dest)
			log.Info("Label saved", zap.String("path", dest))
		}
	} else {
		log.Warn("Booking response has no label link", zap.String("tracking_number", result.TrackingNumber))
		warnings = append(warnings, "booking response had no label link")
	}

	if p.fulfillmentEnabled() {
		if err := p.fulfill(ctx, &order, result); err != nil {
			log.Warn("Storefront fulfillment update failed", zap.Error(err))
			warnings = append(warnings, "storefront update failed: "+err.Error())
		} else {
			log.Info("Storefront order marked fulfilled")
		}
	}

	if err := p.jobs.MarkDone(ctx, job.ID, result.TrackingNumber, labelPath, warnings); err != nil {
		log.Error("Could not mark job done", zap.String("tracking_number", result.TrackingNumber), zap.Error(err))
		report.errorf("job %d (%s): booked as %s but status update failed: %v", job.ID, job.OrderID, result.TrackingNumber, err)
		return fmt.Errorf("mark job %d done: %w", job.ID, err)
	}
	report.Done++

	shipment := &models.Shipment{
		JobID:          job.ID,
		OrderID:        doc.ID,
		TrackingNumber: result.TrackingNumber,
		TrackingURL:    result.TrackingURL,
		PackageNumber:  result.PackageNumber,
		LabelPath:      labelPath,
		Status:         models.ShipmentBooked,
	}
	if err := p.shipments.SaveShipment(ctx, shipment); err != nil {
		log.Warn("Could not record shipment", zap.Error(err))
	}

	log.Info("Job done", zap.String("tracking_number", result.TrackingNumber), zap.Strings("warnings", warnings))
	return nil
}

// book submits the order. An incomplete recipient triggers exactly one
// re-fetch from the storefront before giving up.
func (p *Pipeline) book(ctx context.Context, log *zap.Logger, jobID uint, order *models.Order, role processors.Role) (*processors.BookingResult, error) {
	req := processors.BookingRequest{JobID: jobID, Order: *order, Role: role}
	result, err := p.processor.Book(ctx, req)
	if !errors.Is(err, processors.ErrIncompleteRecipient) {
		return result, err
	}

	id := storefrontID(order)
	if p.store == nil || id == "" {
		return nil, err
	}

	log.Warn("Recipient incomplete, re-fetching order from storefront", zap.String("storefront_id", id))
	fresh, fetchErr := p.refetch(ctx, id, order)
	if fetchErr != nil {
		return nil, fmt.Errorf("%w (storefront re-fetch failed: %v)", err, fetchErr)
	}
	*order = fresh
	req.Order = fresh

	result, err = p.processor.Book(ctx, req)
	if errors.Is(err, processors.ErrIncompleteRecipient) {
		return nil, fmt.Errorf("still incomplete after storefront re-fetch: %w", err)
	}
	return result, err
}

func (p *Pipeline) refetch(ctx context.Context, id string, current *models.Order) (models.Order, error) {
	so, err := p.store.GetOrder(ctx, id)
	if err != nil {
		return models.Order{}, err
	}
	res, err := normalize.Normalize(normalize.StorefrontOrder{
		Order:      *so,
		LocationID: firstNonEmpty(current.LocationID, p.cfg.Shopify.LocationID),
	})
	if err != nil {
		return models.Order{}, err
	}
	return res.Order, nil
}

// fulfill marks the first line of the first fulfillment order as shipped.
func (p *Pipeline) fulfill(ctx context.Context, order *models.Order, result *processors.BookingResult) error {
	id := storefrontID(order)
	if id == "" {
		return fmt.Errorf("order %q has no storefront id", order.Reference())
	}

	fos, err := p.store.FulfillmentOrders(ctx, id)
	if err != nil {
		return err
	}
	if len(fos) == 0 || len(fos[0].LineItems) == 0 {
		return fmt.Errorf("order %s has no open fulfillment order", id)
	}

	fo := fos[0]
	li := fo.LineItems[0]
	_, err = p.store.CreateFulfillment(ctx, storefront.FulfillmentRequest{
		FulfillmentOrderID: fo.ID,
		LineItemID:         li.ID,
		Quantity:           li.Quantity,
		TrackingNumber:     result.TrackingNumber,
		TrackingURL:        result.TrackingURL,
		Company:            "Bring",
		NotifyCustomer:     p.cfg.Shopify.NotifyCustomer,
		LocationID:         firstNonEmpty(order.LocationID, p.cfg.Shopify.LocationID),
	})
	return err
}

func (p *Pipeline) fulfillmentEnabled() bool {
	return p.store != nil && p.cfg.Shopify != nil && p.cfg.Shopify.UpdateFulfillment
}

func (p *Pipeline) fail(ctx context.Context, log *zap.Logger, job *models.Job, cause error, report *RunReport) error {
	log.Error("Job failed", zap.Error(cause))
	report.Failed++
	report.errorf("job %d (%s): %v", job.ID, job.OrderID, cause)

	if err := p.jobs.MarkFailed(ctx, job.ID, cause); err != nil {
		log.Error("Could not mark job failed", zap.Error(err))
		report.errorf("job %d: status update failed: %v", job.ID, err)
		return fmt.Errorf("mark job %d failed: %w", job.ID, err)
	}
	return nil
}

// consolidate merges this run's labels. On failure the single files stay.
func (p *Pipeline) consolidate(ctx context.Context, report *RunReport) {
	if len(report.Labels) == 0 {
		return
	}
	// The single files are gone after a merge, so the paths must be rewritten.
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), settleTimeout)
	defer cancel()

	merged := labels.MergedPath(p.cfg.LabelDir, p.now())
	if err := labels.Consolidate(report.Labels, merged); err != nil {
		p.logger.Error("Label merge failed, keeping individual labels", zap.Int("labels", len(report.Labels)), zap.Error(err))
		report.errorf("label merge failed: %v", err)
		return
	}
	report.MergedLabel = merged
	p.logger.Info("Labels merged", zap.String("path", merged), zap.Int("labels", len(report.Labels)))

	if err := p.jobs.ReplaceLabelPaths(ctx, report.Labels, merged); err != nil {
		p.logger.Warn("Could not point jobs at merged label", zap.Error(err))
	}
	if err := p.shipments.ReplaceLabelPaths(ctx, report.Labels, merged); err != nil {
		p.logger.Warn("Could not point shipments at merged label", zap.Error(err))
	}
}

// LabelFileName is label_<package>[_test].pdf. Bookings without a package
// number use "unknown" plus the job id so they do not overwrite each other.
func LabelFileName(jobID uint, result *processors.BookingResult) string {
	pkg := result.PackageNumber
	if pkg == "" {
		pkg = "unknown-" + strconv.FormatUint(uint64(jobID), 10)
	}
	suffix := ""
	if result.TestMode {
		suffix = "_test"
	}
	return "label_" + sanitize(pkg) + suffix + ".pdf"
}

func sanitize(s string) string {
	out := []rune(s)
	for i, r := range out {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_', r == '.':
		default:
			out[i] = '_'
		}
	}
	return string(out)
}

// storefrontID is the order's numeric storefront id, or "".
func storefrontID(order *models.Order) string {
	if _, err := strconv.ParseUint(order.ID, 10, 64); err != nil {
		return ""
	}
	return order.ID
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
