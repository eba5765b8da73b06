package inbox

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"packchicken-service/config"
	"packchicken-service/normalize"
	"packchicken-service/workers/fulfillment"
	"packchicken-service/workers/fulfillment/models"
	"packchicken-service/workers/fulfillment/repositories"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Worker struct {
	logger *zap.Logger
	cfg    *config.Config
	emails *repositories.ProcessedEmailRepository
	intake *fulfillment.Intake
	filter *Filter
	dial   func(ctx context.Context) (Mailbox, error)
	now    func() time.Time
	busy   atomic.Bool
}

func NewWorker(cfg *config.Config, logger *zap.Logger, db *gorm.DB, intake *fulfillment.Intake) *Worker {
	return &Worker{
		logger: logger,
		cfg:    cfg,
		emails: repositories.NewProcessedEmailRepository(db),
		intake: intake,
		filter: NewFilter(cfg.Email.SenderAllowlist, cfg.Email.SubjectPattern),
		dial: func(ctx context.Context) (Mailbox, error) {
			return DialIMAP(ctx, cfg.Email)
		},
		now: time.Now,
	}
}

func (w *Worker) Name() string {
	return "inbox"
}

func (w *Worker) Schedule() string {
	return w.cfg.Schedules.Inbox
}

func (w *Worker) Ready(time.Time) bool {
	return !w.busy.Load()
}

func (w *Worker) Execute(ctx context.Context) {
	if !w.busy.CompareAndSwap(false, true) {
		return
	}
	defer w.busy.Store(false)

	n, err := w.RunOnce(ctx)
	if err != nil {
		w.logger.Error("Inbox pass failed", zap.Error(err))
		return
	}
	w.logger.Info("Inbox pass completed", zap.Int("enqueued", n))
}

// RunOnce fetches unseen mails once and returns how many orders were
// enqueued.
func (w *Worker) RunOnce(ctx context.Context) (int, error) {
	if err := w.cfg.RequireEmail(); err != nil {
		return 0, err
	}

	mailbox, err := w.dial(ctx)
	if err != nil {
		return 0, err
	}
	defer func() {
		if err := mailbox.Close(); err != nil {
			w.logger.Debug("IMAP logout failed", zap.Error(err))
		}
	}()

	messages, err := mailbox.Unseen(ctx, w.cfg.Email.FetchLimit)
	if err != nil && len(messages) == 0 {
		return 0, err
	}
	if err != nil {
		w.logger.Warn("Partial IMAP fetch", zap.Int("fetched", len(messages)), zap.Error(err))
	}

	enqueued := 0
	for _, raw := range messages {
		if ctx.Err() != nil {
			return enqueued, ctx.Err()
		}
		ok, err := w.handle(ctx, raw)
		if err != nil {
			w.logger.Error("Could not handle mail", zap.Uint32("seq", raw.Seq), zap.Error(err))
			continue
		}
		if ok {
			enqueued++
		}
	}
	return enqueued, nil
}

// handle processes one mail and records its outcome. It reports whether an
// order was enqueued; the error is only for store failures.
func (w *Worker) handle(ctx context.Context, raw RawMessage) (bool, error) {
	seq := fmt.Sprint(raw.Seq)
	msg, err := ParseMessage(bytes.NewReader(raw.Body))
	if err != nil && msg == nil {
		w.logger.Warn("Unreadable mail", zap.Uint32("seq", raw.Seq), zap.Error(err))
		return false, w.record(ctx, "no-id-"+seq, &Message{}, models.EmailNoBody, err)
	}
	if err != nil {
		w.logger.Warn("Mail partially parsed", zap.Uint32("seq", raw.Seq), zap.Error(err))
	}

	key := msg.MessageID
	if key == "" {
		key = "no-id-" + seq
	} else {
		seen, err := w.emails.Seen(ctx, key)
		if err != nil {
			return false, err
		}
		if seen {
			w.logger.Debug("Mail already processed", zap.String("message_id", key))
			return false, nil
		}
	}

	log := w.logger.With(zap.String("message_id", key), zap.String("from", msg.From), zap.String("subject", msg.Subject))

	if !w.filter.Accept(msg.From, msg.Subject) {
		log.Info("Skipping mail (filters)")
		return false, w.record(ctx, key, msg, models.EmailSkipped, nil)
	}
	if !msg.HasBody() {
		log.Info("Skipping mail without body")
		return false, w.record(ctx, key, msg, models.EmailNoBody, nil)
	}

	saved, err := SaveAttachments(w.cfg.Email.AttachmentDir, msg.Attachments)
	if err != nil {
		log.Warn("Could not save attachments", zap.Error(err))
	}

	res, err := normalize.Normalize(normalize.EmailMessage{
		MessageID:   msg.MessageID,
		Seq:         seq,
		From:        msg.From,
		Subject:     msg.Subject,
		Text:        msg.Text,
		HTML:        msg.HTML,
		Attachments: saved,
	})
	if errors.Is(err, normalize.ErrEmptySource) {
		log.Info("Mail body has no text")
		return false, w.record(ctx, key, msg, models.EmailNoBody, nil)
	}
	if err != nil {
		log.Warn("Could not parse order mail", zap.Error(err))
		return false, w.record(ctx, key, msg, models.EmailNoBody, err)
	}

	jobID, ok, err := w.intake.Submit(ctx, res)
	if err != nil {
		log.Error("Could not store job", zap.Error(err))
		return false, w.record(ctx, key, msg, models.EmailDBError, err)
	}
	if !ok {
		return false, w.record(ctx, key, msg, models.EmailDuplicate, nil)
	}

	log.Info("Order mail stored as pending job", zap.Uint("job_id", jobID), zap.String("order_id", res.OrderID))
	return true, w.record(ctx, key, msg, models.EmailOK, nil)
}

func (w *Worker) record(ctx context.Context, key string, msg *Message, status string, cause error) error {
	entry := &models.ProcessedEmail{
		MessageID:  key,
		ReceivedAt: w.now().UTC(),
		FromAddr:   msg.From,
		Subject:    msg.Subject,
		Status:     status,
	}
	if cause != nil {
		entry.LastError = cause.Error()
	}
	return w.emails.Record(ctx, entry)
}
