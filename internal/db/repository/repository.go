package repository

import (
	"context"
	"errors"

	"smart-guard-go/internal/core/models"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// FaceRepository verwaltet den Registrierungsindex der gespeicherten Gesichtsbilder
type FaceRepository struct {
	db *gorm.DB
}

// NewFaceRepository erstellt eine neue Repository-Instanz
func NewFaceRepository(db *gorm.DB) *FaceRepository {
	return &FaceRepository{db: db}
}

// Upsert legt einen Indexeintrag an oder überschreibt den Eintrag mit demselben Dateinamen
func (r *FaceRepository) Upsert(ctx context.Context, face *models.RegisteredFace) error {
	return r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "filename"}},
		DoUpdates: clause.AssignmentColumns([]string{"label", "angle_index", "angle_name", "content_hash", "capture_box", "updated_at"}),
	}).Create(face).Error
}

// FindByFilename sucht einen Indexeintrag anhand des Dateinamens
func (r *FaceRepository) FindByFilename(ctx context.Context, filename string) (*models.RegisteredFace, error) {
	var face models.RegisteredFace
	result := r.db.WithContext(ctx).Where("filename = ?", filename).First(&face)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, result.Error
	}
	return &face, nil
}

// List gibt alle Indexeinträge nach Dateinamen sortiert zurück
func (r *FaceRepository) List(ctx context.Context) ([]models.RegisteredFace, error) {
	var faces []models.RegisteredFace
	if err := r.db.WithContext(ctx).Order("filename ASC").Find(&faces).Error; err != nil {
		return nil, err
	}
	return faces, nil
}

// Labels gibt die Namen aller registrierten Personen zurück
func (r *FaceRepository) Labels(ctx context.Context) ([]string, error) {
	var labels []string
	if err := r.db.WithContext(ctx).Model(&models.RegisteredFace{}).
		Distinct("label").Order("label ASC").Pluck("label", &labels).Error; err != nil {
		return nil, err
	}
	return labels, nil
}

// DeleteByFilename entfernt einen Indexeintrag endgültig
func (r *FaceRepository) DeleteByFilename(ctx context.Context, filename string) error {
	return r.db.WithContext(ctx).Unscoped().Where("filename = ?", filename).Delete(&models.RegisteredFace{}).Error
}
