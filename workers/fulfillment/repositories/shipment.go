package repositories

import (
	"context"
	"packchicken-service/workers/fulfillment/models"

	"gorm.io/gorm"
)

// ShipmentRepository is the repo for booked shipments and their tracking state
type ShipmentRepository struct {
	db *gorm.DB
}

// NewShipmentRepository creates a new repositories with DB dependency
func NewShipmentRepository(db *gorm.DB) *ShipmentRepository {
	return &ShipmentRepository{db: db}
}

// GetAllShipments returns every shipment, newest first
func (r *ShipmentRepository) GetAllShipments(ctx context.Context) ([]models.Shipment, error) {
	var shipments []models.Shipment
	err := r.db.WithContext(ctx).Order("id DESC").Find(&shipments).Error
	return shipments, err
}

// GetOpenShipments returns shipments that have not been delivered yet
func (r *ShipmentRepository) GetOpenShipments(ctx context.Context) ([]models.Shipment, error) {
	var shipments []models.Shipment
	err := r.db.WithContext(ctx).
		Where("status <> ?", models.ShipmentDelivered).
		Where("tracking_url <> ''").
		Order("id ASC").
		Find(&shipments).Error
	return shipments, err
}

// SaveShipment creates or updates a shipment
func (r *ShipmentRepository) SaveShipment(ctx context.Context, shipment *models.Shipment) error {
	return r.db.WithContext(ctx).Save(shipment).Error
}

// ReplaceLabelPaths points shipments at a merged label file
func (r *ShipmentRepository) ReplaceLabelPaths(ctx context.Context, old []string, merged string) error {
	if len(old) == 0 {
		return nil
	}
	return r.db.WithContext(ctx).
		Model(&models.Shipment{}).
		Where("label_path IN ?", old).
		Update("label_path", merged).Error
}
