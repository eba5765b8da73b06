package normalize

import (
	"fmt"
	"packchicken-service/workers/fulfillment/models"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

var (
	orderNoRe = regexp.MustCompile(`(?:Order\s*#|Ordre\s*#|Bestilling\s*#)\s*(\d+)`)
	emailRe   = regexp.MustCompile(`[A-Za-z0-9_.+-]+@[A-Za-z0-9-]+\.[A-Za-z0-9.-]+`)
	phoneRe   = regexp.MustCompile(`\+?\d[\d\s().-]{6,}`)
	zipRe     = regexp.MustCompile(`\b\d{4}\b`)
	letterRe  = regexp.MustCompile(`\pL`)
)

// EmailMessage is an order confirmation mail. Text wins over HTML when both
// bodies are present.
type EmailMessage struct {
	MessageID   string
	Seq         string
	From        string
	Subject     string
	Text        string
	HTML        string
	Attachments []string
}

func (EmailMessage) sourceTag() string { return SourceEmail }

// ParsedEmail is what the free-text parser could recover.
type ParsedEmail struct {
	OrderNumber string
	Email       string
	Phone       string
	Address1    string
	Zip         string
	City        string
}

func fromEmail(msg EmailMessage) (Result, error) {
	text := msg.Text
	if strings.TrimSpace(text) == "" && msg.HTML != "" {
		var err error
		if text, err = HTMLToText(msg.HTML); err != nil {
			return Result{}, err
		}
	}
	if strings.TrimSpace(text) == "" {
		return Result{}, fmt.Errorf("%w: message %s has no body", ErrEmptySource, msg.MessageID)
	}

	parsed := ParseEmailText(text)
	if parsed.OrderNumber == "" {
		if m := orderNoRe.FindStringSubmatch(msg.Subject); m != nil {
			parsed.OrderNumber = m[1]
		}
	}

	orderID := firstNonEmpty(parsed.OrderNumber, msg.MessageID)
	if orderID == "" {
		orderID = "email-" + msg.Seq
	}

	attachments := msg.Attachments
	if attachments == nil {
		attachments = []string{}
	}

	return Result{
		OrderID: orderID,
		Source:  SourceEmail,
		Order: models.Order{
			OrderNumber: parsed.OrderNumber,
			Email:       parsed.Email,
			Phone:       parsed.Phone,
			ShippingAddress: &models.Address{
				Address1: parsed.Address1,
				Zip:      parsed.Zip,
				City:     parsed.City,
			},
		},
		EmailMeta: map[string]any{
			"subject":     msg.Subject,
			"from":        msg.From,
			"message_id":  msg.MessageID,
			"attachments": attachments,
		},
	}, nil
}

// ParseEmailText is a best-effort scrape of an order mail. The first line
// with a four digit number (other than the order number line) is taken as
// "<zip> <city>", and the line above it as the street address.
func ParseEmailText(text string) ParsedEmail {
	text = strings.NewReplacer("\u00a0", " ", "\u2007", " ", "\u202f", " ").Replace(text)

	var lines []string
	for _, l := range strings.Split(text, "\n") {
		if l = strings.TrimSpace(l); l != "" {
			lines = append(lines, l)
		}
	}
	blob := strings.Join(lines, "\n")

	var out ParsedEmail
	if m := orderNoRe.FindStringSubmatch(blob); m != nil {
		out.OrderNumber = m[1]
	}
	out.Email = emailRe.FindString(blob)
	out.Phone = findPhone(lines)

	for i, l := range lines {
		if orderNoRe.MatchString(l) || emailRe.MatchString(l) || findPhone([]string{l}) != "" {
			continue
		}
		zip := zipRe.FindString(l)
		if zip == "" {
			continue
		}
		out.Zip = zip
		out.City = strings.Trim(strings.ReplaceAll(l, zip, ""), ", ")
		if i > 0 && isStreetLine(lines[i-1]) {
			out.Address1 = lines[i-1]
		}
		break
	}
	return out
}

// findPhone scans line by line so a house number followed by a zip on the
// next line is not mistaken for a phone number.
func findPhone(lines []string) string {
	for _, l := range lines {
		for _, m := range phoneRe.FindAllString(l, -1) {
			digits := 0
			for _, r := range m {
				if r >= '0' && r <= '9' {
					digits++
				}
			}
			if digits >= 8 {
				return strings.TrimSpace(m)
			}
		}
	}
	return ""
}

func isStreetLine(l string) bool {
	return letterRe.MatchString(l) &&
		!orderNoRe.MatchString(l) &&
		!emailRe.MatchString(l) &&
		!strings.HasSuffix(l, ":")
}

// HTMLToText flattens an HTML body to one text line per block element.
func HTMLToText(html string) (string, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return "", fmt.Errorf("parse html body: %w", err)
	}

	doc.Find("script, style, head").Remove()
	doc.Find("br").ReplaceWithHtml("\n")
	doc.Find("p, div, tr, td, th, li, h1, h2, h3, h4, h5, h6, table").AppendHtml("\n")

	return doc.Text(), nil
}
