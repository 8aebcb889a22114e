package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/cppla/campusnews/models"
)

// GormRepository stores announcements in a relational database through gorm.
// Recipients, tags and attachments live in JSON columns of a single row so a
// Replace rewrites the whole aggregate in one statement.
type GormRepository struct {
	db *gorm.DB
}

// NewGormRepository wraps an opened gorm connection.
func NewGormRepository(db *gorm.DB) *GormRepository {
	return &GormRepository{db: db}
}

// Migrate creates the announcements table when it does not exist yet.
func (r *GormRepository) Migrate() error {
	if r.db.Migrator().HasTable(&models.Announcement{}) {
		return nil
	}
	return r.db.AutoMigrate(&models.Announcement{})
}

func (r *GormRepository) ValidID(id string) bool {
	return validUUID(id)
}

func (r *GormRepository) FindAll(ctx context.Context, filter Filter) ([]models.Announcement, error) {
	q := r.db.WithContext(ctx).Order("created_at DESC")
	if filter.AuthorID != "" {
		q = q.Where("author_id = ?", filter.AuthorID)
	}
	if category, ok := filter.categoryFilter(); ok {
		q = q.Where("category = ?", string(category))
	}
	var items []models.Announcement
	if err := q.Find(&items).Error; err != nil {
		return nil, fmt.Errorf("list announcements: %w", err)
	}
	for i := range items {
		items[i].Normalize()
	}
	return items, nil
}

func (r *GormRepository) FindByID(ctx context.Context, id string) (*models.Announcement, error) {
	if !r.ValidID(id) {
		return nil, ErrInvalidID
	}
	var a models.Announcement
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&a).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("load announcement %s: %w", id, err)
	}
	a.Normalize()
	return &a, nil
}

func (r *GormRepository) Insert(ctx context.Context, a *models.Announcement) (*models.Announcement, error) {
	rec := a.Clone()
	rec.ID = uuid.NewString()
	rec.CreatedAt = time.Now()
	assignAttachmentIDs(rec.Attachments, uuid.NewString)
	rec.Normalize()
	if err := r.db.WithContext(ctx).Create(rec).Error; err != nil {
		return nil, fmt.Errorf("insert announcement: %w", err)
	}
	return rec, nil
}

func (r *GormRepository) Replace(ctx context.Context, id string, a *models.Announcement) (*models.Announcement, error) {
	if !r.ValidID(id) {
		return nil, ErrInvalidID
	}
	rec := a.Clone()
	rec.ID = id
	assignAttachmentIDs(rec.Attachments, uuid.NewString)
	rec.Normalize()

	// author_id and created_at are immutable and deliberately left out.
	res := r.db.WithContext(ctx).Model(&models.Announcement{}).
		Where("id = ?", id).
		Select("title", "original_description", "summary", "image_url", "tags",
			"category", "audience", "students", "staff", "attachments").
		Updates(rec)
	if res.Error != nil {
		return nil, fmt.Errorf("replace announcement %s: %w", id, res.Error)
	}
	// MySQL reports zero affected rows for identical writes, so existence is
	// confirmed by reading the row back.
	return r.FindByID(ctx, id)
}

func (r *GormRepository) Delete(ctx context.Context, id string) error {
	if !r.ValidID(id) {
		return ErrInvalidID
	}
	res := r.db.WithContext(ctx).Where("id = ?", id).Delete(&models.Announcement{})
	if res.Error != nil {
		return fmt.Errorf("delete announcement %s: %w", id, res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}
