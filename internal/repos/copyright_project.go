package repos

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/teachflow/teachflow-backend/internal/domain"
	"github.com/teachflow/teachflow-backend/internal/pkg/logger"
)

type CopyrightProjectRepo interface {
	Create(ctx context.Context, tx *gorm.DB, project *domain.CopyrightProject) (*domain.CopyrightProject, error)
	GetByIDForOwner(ctx context.Context, tx *gorm.DB, ownerUserID, id uuid.UUID) (*domain.CopyrightProject, error)
	ListByOwner(ctx context.Context, tx *gorm.DB, ownerUserID uuid.UUID) ([]*domain.CopyrightProject, error)
	UpdateFields(ctx context.Context, tx *gorm.DB, ownerUserID, id uuid.UUID, updates map[string]interface{}) error
	Delete(ctx context.Context, tx *gorm.DB, ownerUserID, id uuid.UUID) error
}

type copyrightProjectRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewCopyrightProjectRepo(db *gorm.DB, baseLog *logger.Logger) CopyrightProjectRepo {
	return &copyrightProjectRepo{db: db, log: baseLog.With("repo", "CopyrightProjectRepo")}
}

func (r *copyrightProjectRepo) Create(ctx context.Context, tx *gorm.DB, project *domain.CopyrightProject) (*domain.CopyrightProject, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	if err := transaction.WithContext(ctx).Create(project).Error; err != nil {
		return nil, err
	}
	return project, nil
}

func (r *copyrightProjectRepo) GetByIDForOwner(ctx context.Context, tx *gorm.DB, ownerUserID, id uuid.UUID) (*domain.CopyrightProject, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	if ownerUserID == uuid.Nil || id == uuid.Nil {
		return nil, nil
	}
	var project domain.CopyrightProject
	err := transaction.WithContext(ctx).
		Where("id = ? AND owner_user_id = ?", id, ownerUserID).
		First(&project).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &project, nil
}

func (r *copyrightProjectRepo) ListByOwner(ctx context.Context, tx *gorm.DB, ownerUserID uuid.UUID) ([]*domain.CopyrightProject, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	var out []*domain.CopyrightProject
	if ownerUserID == uuid.Nil {
		return out, nil
	}
	if err := transaction.WithContext(ctx).
		Where("owner_user_id = ?", ownerUserID).
		Order("created_at DESC").
		Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (r *copyrightProjectRepo) UpdateFields(ctx context.Context, tx *gorm.DB, ownerUserID, id uuid.UUID, updates map[string]interface{}) error {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	if ownerUserID == uuid.Nil || id == uuid.Nil || len(updates) == 0 {
		return nil
	}
	return transaction.WithContext(ctx).
		Model(&domain.CopyrightProject{}).
		Where("id = ? AND owner_user_id = ?", id, ownerUserID).
		Updates(updates).Error
}

func (r *copyrightProjectRepo) Delete(ctx context.Context, tx *gorm.DB, ownerUserID, id uuid.UUID) error {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	if ownerUserID == uuid.Nil || id == uuid.Nil {
		return nil
	}
	return transaction.WithContext(ctx).
		Where("id = ? AND owner_user_id = ?", id, ownerUserID).
		Delete(&domain.CopyrightProject{}).Error
}
