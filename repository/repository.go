package repository

import (
	"context"
	"errors"

	"github.com/cppla/campusnews/models"
)

var (
	// ErrNotFound is returned when no announcement matches the id.
	ErrNotFound = errors.New("announcement not found")
	// ErrInvalidID is returned for identifiers the store cannot represent.
	ErrInvalidID = errors.New("invalid identifier")
)

// Filter narrows FindAll. Empty fields match everything; CategoryAll is
// treated as no category filter.
type Filter struct {
	AuthorID string
	Category models.Category
}

func (f Filter) categoryFilter() (models.Category, bool) {
	if f.Category == "" || f.Category == models.CategoryAll {
		return "", false
	}
	return f.Category, true
}

// AnnouncementRepository persists announcement aggregates.
//
// Insert assigns the record id and createdAt. Insert and Replace assign ids
// to attachments that have none. Replace is last-writer-wins.
type AnnouncementRepository interface {
	ValidID(id string) bool
	FindAll(ctx context.Context, filter Filter) ([]models.Announcement, error)
	FindByID(ctx context.Context, id string) (*models.Announcement, error)
	Insert(ctx context.Context, a *models.Announcement) (*models.Announcement, error)
	Replace(ctx context.Context, id string, a *models.Announcement) (*models.Announcement, error)
	Delete(ctx context.Context, id string) error
}
