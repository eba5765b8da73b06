package bring

import "strings"

type ErrorMessage struct {
	Lang    string `json:"lang"`
	Message string `json:"message"`
}

type ConsignmentError struct {
	UniqueID string         `json:"uniqueId"`
	Code     string         `json:"code"`
	Messages []ErrorMessage `json:"messages"`
}

type Links struct {
	Labels   string `json:"labels"`
	Tracking string `json:"tracking"`
}

type PackageConfirmation struct {
	PackageNumber string `json:"packageNumber"`
	CorrelationID string `json:"correlationId"`
}

type Confirmation struct {
	ConsignmentNumber string                `json:"consignmentNumber"`
	Links             Links                 `json:"links"`
	Packages          []PackageConfirmation `json:"packages"`
}

type ConsignmentResponse struct {
	CorrelationID string             `json:"correlationId"`
	Confirmation  *Confirmation      `json:"confirmation"`
	Errors        []ConsignmentError `json:"errors"`
}

type BookingResponse struct {
	Consignments []ConsignmentResponse `json:"consignments"`
}

func (r *BookingResponse) first() *ConsignmentResponse {
	if len(r.Consignments) == 0 {
		return nil
	}
	return &r.Consignments[0]
}

// ErrorMessages flattens every consignment error to "code: message".
func (r *BookingResponse) ErrorMessages() []string {
	var out []string
	for _, c := range r.Consignments {
		for _, e := range c.Errors {
			var msgs []string
			for _, m := range e.Messages {
				msgs = append(msgs, m.Message)
			}
			out = append(out, strings.TrimSpace(e.Code+": "+strings.Join(msgs, " / ")))
		}
	}
	return out
}
