package tracking

import (
	"fmt"
	"packchicken-service/workers/fulfillment/models"
	"strings"
	"time"

	"github.com/gocolly/colly/v2"
	"go.uber.org/zap"
)

// Results is what one scrape of a tracking page found.
type Results struct {
	TrackingNumber string
	Status         models.ShipmentStatus
	Headline       string
	LastLocation   string
	ExpectedAt     *time.Time
	CheckedAt      time.Time
}

// Headline phrases, Norwegian and English, checked in order.
var statusPhrases = []struct {
	phrase string
	status models.ShipmentStatus
}{
	{"ikke levert", models.ShipmentInTransit},
	{"levert", models.ShipmentDelivered},
	{"delivered", models.ShipmentDelivered},
	{"ute for levering", models.ShipmentOutForDelivery},
	{"out for delivery", models.ShipmentOutForDelivery},
	{"klar til henting", models.ShipmentOutForDelivery},
	{"ready for pickup", models.ShipmentOutForDelivery},
	{"underveis", models.ShipmentInTransit},
	{"på vei", models.ShipmentInTransit},
	{"in transit", models.ShipmentInTransit},
	{"mottatt", models.ShipmentInTransit},
	{"received", models.ShipmentInTransit},
	{"registrert", models.ShipmentBooked},
	{"booked", models.ShipmentBooked},
	{"notified", models.ShipmentBooked},
}

func StatusFromHeadline(headline string) models.ShipmentStatus {
	h := strings.ToLower(strings.Join(strings.Fields(headline), " "))
	if h == "" {
		return models.ShipmentUnknown
	}
	for _, p := range statusPhrases {
		if strings.Contains(h, p.phrase) {
			return p.status
		}
	}
	return models.ShipmentUnknown
}

// Processor scrapes the public tracking page linked from the booking.
type Processor struct {
	logger  *zap.Logger
	timeout time.Duration
}

func NewProcessor(logger *zap.Logger) *Processor {
	return &Processor{logger: logger, timeout: 30 * time.Second}
}

// Process reads the status headline (first of [data-status], .status-headline
// or h1), the newest event location and an optional expected delivery time.
func (p *Processor) Process(shipment models.Shipment) (*Results, error) {
	if shipment.TrackingURL == "" {
		return nil, fmt.Errorf("shipment %s has no tracking url", shipment.TrackingNumber)
	}

	res := &Results{
		TrackingNumber: shipment.TrackingNumber,
		LastLocation:   shipment.LastLocation,
		ExpectedAt:     shipment.ExpectedAt,
	}

	c := colly.NewCollector(colly.UserAgent("packchicken-tracking/1.0"))
	c.SetRequestTimeout(p.timeout)

	var status, headline, heading string
	var scrapeErr error

	c.OnHTML("[data-status]", func(e *colly.HTMLElement) {
		if status == "" {
			status = strings.TrimSpace(e.Attr("data-status"))
		}
	})

	c.OnHTML(".status-headline", func(e *colly.HTMLElement) {
		if headline == "" {
			headline = clean(e.Text)
		}
	})

	c.OnHTML("h1", func(e *colly.HTMLElement) {
		if heading == "" {
			heading = clean(e.Text)
		}
	})

	// Events are listed newest first.
	c.OnHTML(".events", func(e *colly.HTMLElement) {
		if loc := clean(e.ChildText(".event:first-child .event-location")); loc != "" {
			res.LastLocation = loc
		}
	})

	c.OnHTML("time.expected-delivery", func(e *colly.HTMLElement) {
		raw := e.Attr("datetime")
		t, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			p.logger.Warn("Failed to parse expected delivery", zap.String("datetime", raw), zap.Error(err))
			return
		}
		utc := t.UTC()
		res.ExpectedAt = &utc
	})

	c.OnError(func(r *colly.Response, err error) {
		scrapeErr = fmt.Errorf("tracking page %s: HTTP %d: %w", r.Request.URL, r.StatusCode, err)
	})

	if err := c.Visit(shipment.TrackingURL); err != nil {
		if scrapeErr != nil {
			return nil, scrapeErr
		}
		return nil, err
	}
	if scrapeErr != nil {
		return nil, scrapeErr
	}

	res.Headline = firstNonEmpty(headline, heading)
	if s := models.ShipmentStatus(status); isKnown(s) {
		res.Status = s
	} else {
		res.Status = StatusFromHeadline(res.Headline)
	}
	res.CheckedAt = time.Now().UTC()
	return res, nil
}

func isKnown(s models.ShipmentStatus) bool {
	switch s {
	case models.ShipmentBooked, models.ShipmentInTransit, models.ShipmentOutForDelivery, models.ShipmentDelivered:
		return true
	}
	return false
}

func clean(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
