package bring

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"packchicken-service/config"
	"packchicken-service/workers/fulfillment/processors"
	"path/filepath"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"go.uber.org/zap"
)

// CarrierError is a failed booking: a non-2xx answer, or a 2xx answer
// without a consignment number. Body is kept verbatim for diagnostics.
type CarrierError struct {
	StatusCode int
	Body       string
	Messages   []string
}

func (e *CarrierError) Error() string {
	if len(e.Messages) > 0 {
		return fmt.Sprintf("bring booking failed (HTTP %d): %s", e.StatusCode, strings.Join(e.Messages, "; "))
	}
	return fmt.Sprintf("bring booking failed (HTTP %d): %s", e.StatusCode, truncate(e.Body, 500))
}

type BookingProcessor struct {
	logger *zap.Logger
	cfg    *config.Config
	http   *http.Client
	now    func() time.Time
}

func NewBookingProcessor(cfg *config.Config, logger *zap.Logger) (*BookingProcessor, error) {
	if err := cfg.RequireBring(); err != nil {
		return nil, err
	}
	return &BookingProcessor{
		logger: logger,
		cfg:    cfg,
		http:   &http.Client{Timeout: cfg.Bring.Timeout},
		now:    time.Now,
	}, nil
}

func (p *BookingProcessor) Name() string {
	return "bring"
}

func (p *BookingProcessor) Book(ctx context.Context, req processors.BookingRequest) (*processors.BookingResult, error) {
	payload, err := BuildPayload(req.Order, req.Role, p.cfg, p.now())
	if err != nil {
		return nil, err
	}
	if err := Validate(payload); err != nil {
		return nil, err
	}

	parties := payload.Consignments[0].Parties
	if req.Role == processors.RoleReturn && !parties.Recipient.hasEmailAndPhone() {
		p.logger.Error("Return recipient has no email or phone, Bring notifications will be skipped",
			zap.Uint("job_id", req.JobID),
			zap.String("recipient", parties.Recipient.Name),
		)
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("encode booking payload: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.cfg.Bring.BookingURL, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	p.setHeaders(httpReq)
	httpReq.Header.Set("Content-Type", "application/json")

	p.logger.Info("Posting booking to Bring",
		zap.Uint("job_id", req.JobID),
		zap.String("order", req.Order.Reference()),
		zap.String("role", string(req.Role)),
		zap.Bool("test", p.cfg.Bring.TestIndicator),
	)

	resp, err := p.http.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("post booking: %w", err)
	}
	defer func(Body io.ReadCloser) {
		_ = Body.Close()
	}(resp.Body)

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read booking response: %w", err)
	}

	var parsed BookingResponse
	decodeErr := json.Unmarshal(raw, &parsed)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &CarrierError{StatusCode: resp.StatusCode, Body: string(raw), Messages: parsed.ErrorMessages()}
	}
	if decodeErr != nil {
		return nil, &CarrierError{StatusCode: resp.StatusCode, Body: string(raw), Messages: []string{"unreadable response: " + decodeErr.Error()}}
	}

	c := parsed.first()
	if c == nil || c.Confirmation == nil || c.Confirmation.ConsignmentNumber == "" {
		msgs := parsed.ErrorMessages()
		if len(msgs) == 0 {
			msgs = []string{"response has no consignment number"}
		}
		return nil, &CarrierError{StatusCode: resp.StatusCode, Body: string(raw), Messages: msgs}
	}

	result := &processors.BookingResult{
		TrackingNumber: c.Confirmation.ConsignmentNumber,
		LabelsURL:      c.Confirmation.Links.Labels,
		TrackingURL:    c.Confirmation.Links.Tracking,
		RawBody:        raw,
		TestMode:       p.cfg.Bring.TestIndicator,
		OrderRef:       req.Order.Reference(),
		WeightKg:       fmt.Sprintf("%.3f", payload.Consignments[0].Packages[0].WeightInKg),
		RecipientName:  parties.Recipient.Name,
		RecipientLine:  parties.Recipient.AddressLine + ", " + parties.Recipient.PostalCode + " " + parties.Recipient.City,
	}
	if len(c.Confirmation.Packages) > 0 {
		result.PackageNumber = c.Confirmation.Packages[0].PackageNumber
	}

	p.logger.Info("Bring booking confirmed",
		zap.Uint("job_id", req.JobID),
		zap.String("tracking_number", result.TrackingNumber),
		zap.String("package_number", result.PackageNumber),
	)
	return result, nil
}

// FetchLabel downloads the label PDF with the same credentials as the booking.
func (p *BookingProcessor) FetchLabel(ctx context.Context, result *processors.BookingResult, dest string) error {
	if result.LabelsURL == "" {
		return fmt.Errorf("booking %s has no label link", result.TrackingNumber)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, result.LabelsURL, nil)
	if err != nil {
		return err
	}
	p.setHeaders(req)
	req.Header.Set("Accept", "application/pdf")

	resp, err := p.http.Do(req)
	if err != nil {
		return fmt.Errorf("download label: %w", err)
	}
	defer func(Body io.ReadCloser) {
		_ = Body.Close()
	}(resp.Body)

	if resp.StatusCode != http.StatusOK {
		bodyBytes, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("download label: unexpected status %d: %s", resp.StatusCode, truncate(string(bodyBytes), 200))
	}

	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return err
	}
	tmp := dest + ".part"
	f, err := os.Create(tmp)
	if err != nil {
		return err
	}
	if _, err := io.Copy(f, resp.Body); err != nil {
		_ = f.Close()
		_ = os.Remove(tmp)
		return fmt.Errorf("write label: %w", err)
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(tmp)
		return err
	}
	return os.Rename(tmp, dest)
}

func (p *BookingProcessor) setHeaders(req *http.Request) {
	bc := p.cfg.Bring
	req.Header.Set("X-Mybring-API-Uid", bc.APIUID)
	req.Header.Set("X-Mybring-API-Key", bc.APIKey)
	req.Header.Set("X-Bring-Client-URL", bc.ClientURL)
	req.Header.Set("X-Bring-Test-Indicator", strconv.FormatBool(bc.TestIndicator))
	req.Header.Set("X-Mybring-Customer-Number", bc.CustomerNumber)
	req.Header.Set("Accept", "application/json")
}

// truncate cuts s to at most n bytes without splitting a rune.
func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n] + "…"
}
