package forms

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"gorm.io/datatypes"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"bookmentor/pkg/domain"
)

// FormModel is the GORM row backing one submission. QA pairs live in a
// JSONB column; they are always read and written as a whole, matching
// the document-store semantics.
type FormModel struct {
	RowID      string         `gorm:"primaryKey;column:row_id"`
	ReceivedAt time.Time      `gorm:"not null"`
	// autoUpdateTime is off: this timestamp marks processing completion,
	// not row modification.
	UpdatedAt *time.Time `gorm:"column:updated_at;autoUpdateTime:false"`
	UserEmail  string         `gorm:""`
	Processed  bool           `gorm:"not null"`
	QAPairs    datatypes.JSON `gorm:"column:qa_pairs;type:jsonb"`
}

// TableName keeps the table name stable across gorm pluralization.
func (FormModel) TableName() string { return "form_submissions" }

// GormStore implements Store on Postgres for deployments that outgrow
// the single JSON file.
type GormStore struct {
	db *gorm.DB
}

// NewGormStore opens the DB and runs auto-migration.
func NewGormStore(dsn string) (*GormStore, error) {
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Warn),
	})
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	if err := db.AutoMigrate(&FormModel{}); err != nil {
		return nil, fmt.Errorf("migrate form store: %w", err)
	}
	return &GormStore{db: db}, nil
}

func (s *GormStore) Save(submission domain.FormSubmission) (string, error) {
	rowID := submission.RowID
	if rowID == "" {
		var count int64
		if err := s.db.Model(&FormModel{}).Count(&count).Error; err != nil {
			return "", fmt.Errorf("count forms: %w", err)
		}
		rowID = fmt.Sprintf("%d", count+1)
		submission.RowID = rowID
	}
	model, err := toModel(submission)
	if err != nil {
		return "", err
	}
	if err := s.db.Save(&model).Error; err != nil {
		return "", fmt.Errorf("save form %s: %w", rowID, err)
	}
	return rowID, nil
}

func (s *GormStore) Get(rowID string) (domain.FormSubmission, bool, error) {
	var model FormModel
	err := s.db.First(&model, "row_id = ?", rowID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return domain.FormSubmission{}, false, nil
	}
	if err != nil {
		return domain.FormSubmission{}, false, fmt.Errorf("load form %s: %w", rowID, err)
	}
	submission, err := fromModel(model)
	if err != nil {
		return domain.FormSubmission{}, false, err
	}
	return submission, true, nil
}

func (s *GormStore) Update(rowID string, submission domain.FormSubmission) error {
	submission.RowID = rowID
	model, err := toModel(submission)
	if err != nil {
		return err
	}
	if err := s.db.Save(&model).Error; err != nil {
		return fmt.Errorf("update form %s: %w", rowID, err)
	}
	return nil
}

func toModel(submission domain.FormSubmission) (FormModel, error) {
	pairs, err := json.Marshal(submission.QAPairs)
	if err != nil {
		return FormModel{}, fmt.Errorf("encode qa pairs: %w", err)
	}
	return FormModel{
		RowID:      submission.RowID,
		ReceivedAt: submission.ReceivedAt,
		UpdatedAt:  submission.UpdatedAt,
		UserEmail:  submission.UserEmail,
		Processed:  submission.Processed,
		QAPairs:    datatypes.JSON(pairs),
	}, nil
}

func fromModel(model FormModel) (domain.FormSubmission, error) {
	var pairs []domain.QAPair
	if len(model.QAPairs) > 0 {
		if err := json.Unmarshal(model.QAPairs, &pairs); err != nil {
			return domain.FormSubmission{}, fmt.Errorf("decode qa pairs for %s: %w", model.RowID, err)
		}
	}
	return domain.FormSubmission{
		RowID:      model.RowID,
		ReceivedAt: model.ReceivedAt,
		UpdatedAt:  model.UpdatedAt,
		UserEmail:  model.UserEmail,
		Processed:  model.Processed,
		QAPairs:    pairs,
	}, nil
}
