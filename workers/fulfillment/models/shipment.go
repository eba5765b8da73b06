package models

import "time"

type ShipmentStatus string

const (
	ShipmentBooked         ShipmentStatus = "booked"
	ShipmentInTransit      ShipmentStatus = "in_transit"
	ShipmentOutForDelivery ShipmentStatus = "out_for_delivery"
	ShipmentDelivered      ShipmentStatus = "delivered"
	ShipmentUnknown        ShipmentStatus = "unknown"
)

func (s ShipmentStatus) IsFinal() bool {
	return s == ShipmentDelivered
}

// Shipment is recorded for every successful booking and refreshed by the
// tracking worker.
type Shipment struct {
	ID             uint           `gorm:"primaryKey;autoIncrement" json:"id"`
	JobID          uint           `gorm:"index" json:"job_id"`
	OrderID        string         `gorm:"size:100;index" json:"order_id"`
	TrackingNumber string         `gorm:"size:100;not null" json:"tracking_number"`
	TrackingURL    string         `gorm:"size:256" json:"tracking_url,omitempty"`
	PackageNumber  string         `gorm:"size:100" json:"package_number,omitempty"`
	LabelPath      string         `gorm:"size:256" json:"label_path,omitempty"`
	Status         ShipmentStatus `gorm:"size:50;not null;default:booked" json:"status"`
	LastLocation   string         `gorm:"size:100" json:"last_location,omitempty"`
	ExpectedAt     *time.Time     `json:"expected_at,omitempty"`
	LastCheckedAt  *time.Time     `json:"last_checked_at,omitempty"`
	CreatedAt      time.Time      `json:"created_at"`
}
