package repos

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/teachflow/teachflow-backend/internal/domain"
	"github.com/teachflow/teachflow-backend/internal/pkg/logger"
)

// docTypeFilter widens a lesson lookup to also match rows written under the
// legacy "lesson_plan" tag. New rows are always written with the canonical
// tag; the alias exists only on reads.
func docTypeFilter(docType string) []string {
	if docType == domain.DocTypeLesson {
		return []string{domain.DocTypeLesson, domain.DocTypeLessonLegacy}
	}
	return []string{docType}
}

type CourseDocumentRepo interface {
	Upsert(ctx context.Context, tx *gorm.DB, doc *domain.CourseDocument) (*domain.CourseDocument, error)
	GetPlan(ctx context.Context, tx *gorm.DB, courseID uuid.UUID) (*domain.CourseDocument, error)
	GetLesson(ctx context.Context, tx *gorm.DB, courseID uuid.UUID, lessonNumber int) (*domain.CourseDocument, error)
	ListLessons(ctx context.Context, tx *gorm.DB, courseID uuid.UUID) ([]*domain.CourseDocument, error)
	DeleteByCourse(ctx context.Context, tx *gorm.DB, courseID uuid.UUID) error
}

type courseDocumentRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewCourseDocumentRepo(db *gorm.DB, baseLog *logger.Logger) CourseDocumentRepo {
	return &courseDocumentRepo{db: db, log: baseLog.With("repo", "CourseDocumentRepo")}
}

// Upsert replaces any existing document with the same course, type and lesson
// number, so re-generation overwrites rather than duplicates.
func (r *courseDocumentRepo) Upsert(ctx context.Context, tx *gorm.DB, doc *domain.CourseDocument) (*domain.CourseDocument, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	err := transaction.WithContext(ctx).Transaction(func(txx *gorm.DB) error {
		q := txx.Where("course_id = ? AND doc_type IN ?", doc.CourseID, docTypeFilter(doc.DocType))
		if doc.LessonNumber > 0 {
			q = q.Where("lesson_number = ?", doc.LessonNumber)
		}
		if err := q.Delete(&domain.CourseDocument{}).Error; err != nil {
			return err
		}
		return txx.Create(doc).Error
	})
	if err != nil {
		return nil, err
	}
	return doc, nil
}

func (r *courseDocumentRepo) GetPlan(ctx context.Context, tx *gorm.DB, courseID uuid.UUID) (*domain.CourseDocument, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	if courseID == uuid.Nil {
		return nil, nil
	}
	var doc domain.CourseDocument
	err := transaction.WithContext(ctx).
		Where("course_id = ? AND doc_type = ?", courseID, domain.DocTypePlan).
		Order("created_at DESC").
		First(&doc).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &doc, nil
}

func (r *courseDocumentRepo) GetLesson(ctx context.Context, tx *gorm.DB, courseID uuid.UUID, lessonNumber int) (*domain.CourseDocument, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	if courseID == uuid.Nil {
		return nil, nil
	}
	var doc domain.CourseDocument
	err := transaction.WithContext(ctx).
		Where("course_id = ? AND doc_type IN ? AND lesson_number = ?",
			courseID, docTypeFilter(domain.DocTypeLesson), lessonNumber).
		Order("created_at DESC").
		First(&doc).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &doc, nil
}

func (r *courseDocumentRepo) ListLessons(ctx context.Context, tx *gorm.DB, courseID uuid.UUID) ([]*domain.CourseDocument, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	var out []*domain.CourseDocument
	if courseID == uuid.Nil {
		return out, nil
	}
	if err := transaction.WithContext(ctx).
		Where("course_id = ? AND doc_type IN ?", courseID, docTypeFilter(domain.DocTypeLesson)).
		Order("lesson_number ASC").
		Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (r *courseDocumentRepo) DeleteByCourse(ctx context.Context, tx *gorm.DB, courseID uuid.UUID) error {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	if courseID == uuid.Nil {
		return nil
	}
	return transaction.WithContext(ctx).
		Where("course_id = ?", courseID).
		Delete(&domain.CourseDocument{}).Error
}
