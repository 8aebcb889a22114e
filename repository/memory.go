package repository

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/cppla/campusnews/models"
)

// MemoryRepository keeps announcements in process memory. Ids are UUIDs.
type MemoryRepository struct {
	mu    sync.RWMutex
	items map[string]*models.Announcement
	now   func() time.Time
}

// NewMemoryRepository creates an empty in-memory repository.
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		items: make(map[string]*models.Announcement),
		now:   time.Now,
	}
}

// SetClock overrides the createdAt source.
func (r *MemoryRepository) SetClock(now func() time.Time) {
	r.mu.Lock()
	r.now = now
	r.mu.Unlock()
}

func (r *MemoryRepository) ValidID(id string) bool {
	return validUUID(id)
}

func (r *MemoryRepository) FindAll(ctx context.Context, filter Filter) ([]models.Announcement, error) {
	category, byCategory := filter.categoryFilter()

	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]models.Announcement, 0, len(r.items))
	for _, a := range r.items {
		if filter.AuthorID != "" && a.AuthorID != filter.AuthorID {
			continue
		}
		if byCategory && a.Category != category {
			continue
		}
		out = append(out, *a.Clone())
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out, nil
}

func (r *MemoryRepository) FindByID(ctx context.Context, id string) (*models.Announcement, error) {
	if !r.ValidID(id) {
		return nil, ErrInvalidID
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	a, ok := r.items[id]
	if !ok {
		return nil, ErrNotFound
	}
	return a.Clone(), nil
}

func (r *MemoryRepository) Insert(ctx context.Context, a *models.Announcement) (*models.Announcement, error) {
	rec := a.Clone()
	rec.ID = uuid.NewString()
	assignAttachmentIDs(rec.Attachments, uuid.NewString)
	rec.Normalize()

	r.mu.Lock()
	rec.CreatedAt = r.now()
	r.items[rec.ID] = rec
	r.mu.Unlock()
	return rec.Clone(), nil
}

func (r *MemoryRepository) Replace(ctx context.Context, id string, a *models.Announcement) (*models.Announcement, error) {
	if !r.ValidID(id) {
		return nil, ErrInvalidID
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	current, ok := r.items[id]
	if !ok {
		return nil, ErrNotFound
	}
	rec := a.Clone()
	rec.ID = id
	rec.AuthorID = current.AuthorID
	rec.CreatedAt = current.CreatedAt
	assignAttachmentIDs(rec.Attachments, uuid.NewString)
	rec.Normalize()
	r.items[id] = rec
	return rec.Clone(), nil
}

func (r *MemoryRepository) Delete(ctx context.Context, id string) error {
	if !r.ValidID(id) {
		return ErrInvalidID
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.items[id]; !ok {
		return ErrNotFound
	}
	delete(r.items, id)
	return nil
}

func validUUID(id string) bool {
	if id == "" {
		return false
	}
	_, err := uuid.Parse(id)
	return err == nil
}

func assignAttachmentIDs(atts []models.Attachment, next func() string) {
	for i := range atts {
		if atts[i].ID == "" {
			atts[i].ID = next()
		}
	}
}
