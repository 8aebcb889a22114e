package repository

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/cppla/campusnews/models"
)

func newGormRepository(t *testing.T) (*GormRepository, *gorm.DB) {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(filepath.Join(t.TempDir(), "announcements.db")), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})
	repo := NewGormRepository(db)
	require.NoError(t, repo.Migrate())
	require.NoError(t, repo.Migrate())
	return repo, db
}

func TestGormRepositoryInsertAndFind(t *testing.T) {
	repo, _ := newGormRepository(t)
	ctx := context.Background()

	saved, err := repo.Insert(ctx, &models.Announcement{
		Title:       "Library hours",
		AuthorID:    "teacher-1",
		Category:    models.CategoryAcademic,
		Audience:    models.AudienceStudents,
		Tags:        []string{"library"},
		Students:    []models.Student{{Name: "Ana", RegID: "R1", Email: "ana@uni.edu"}},
		Attachments: []models.Attachment{{FileName: "hours.pdf", FileURL: "/uploads/1-hours.pdf"}},
	})
	require.NoError(t, err)
	assert.True(t, repo.ValidID(saved.ID))
	require.Len(t, saved.Attachments, 1)
	assert.NotEmpty(t, saved.Attachments[0].ID)

	loaded, err := repo.FindByID(ctx, saved.ID)
	require.NoError(t, err)
	assert.Equal(t, "Library hours", loaded.Title)
	assert.Equal(t, "teacher-1", loaded.AuthorID)
	assert.Equal(t, []string{"library"}, loaded.Tags)
	assert.Equal(t, saved.Students, loaded.Students)
	assert.Equal(t, saved.Attachments[0].ID, loaded.Attachments[0].ID)
	assert.NotNil(t, loaded.Staff)
	assert.WithinDuration(t, saved.CreatedAt, loaded.CreatedAt, time.Millisecond)
}

func TestGormRepositoryFindAllOrderAndFilters(t *testing.T) {
	repo, db := newGormRepository(t)
	ctx := context.Background()
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	insert := func(title, author string, category models.Category, age time.Duration) string {
		saved, err := repo.Insert(ctx, &models.Announcement{Title: title, AuthorID: author, Category: category})
		require.NoError(t, err)
		require.NoError(t, db.Model(&models.Announcement{}).Where("id = ?", saved.ID).
			Update("created_at", base.Add(-age)).Error)
		return saved.ID
	}
	oldest := insert("oldest", "alice", models.CategoryAcademic, 3*time.Hour)
	newest := insert("newest", "alice", models.CategoryAll, time.Hour)
	middle := insert("middle", "bob", models.CategoryPlacement, 2*time.Hour)

	all, err := repo.FindAll(ctx, Filter{})
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, []string{newest, middle, oldest}, []string{all[0].ID, all[1].ID, all[2].ID})

	byAll, err := repo.FindAll(ctx, Filter{Category: models.CategoryAll})
	require.NoError(t, err)
	assert.Len(t, byAll, 3)

	placement, err := repo.FindAll(ctx, Filter{Category: models.CategoryPlacement})
	require.NoError(t, err)
	require.Len(t, placement, 1)
	assert.Equal(t, middle, placement[0].ID)

	mine, err := repo.FindAll(ctx, Filter{AuthorID: "alice"})
	require.NoError(t, err)
	assert.Equal(t, []string{newest, oldest}, []string{mine[0].ID, mine[1].ID})

	none, err := repo.FindAll(ctx, Filter{AuthorID: "carol"})
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestGormRepositoryReplaceKeepsImmutableFields(t *testing.T) {
	repo, _ := newGormRepository(t)
	ctx := context.Background()

	saved, err := repo.Insert(ctx, &models.Announcement{Title: "old", AuthorID: "teacher-1", Tags: []string{"a"}})
	require.NoError(t, err)

	next := saved.Clone()
	next.Title = "new"
	next.Tags = []string{}
	next.Summary = ""
	next.AuthorID = "intruder"
	next.CreatedAt = time.Date(2000, 1, 1, 0, 0, 0, 0, time.UTC)
	next.Attachments = []models.Attachment{{FileName: "late.pdf", FileURL: "/uploads/2-late.pdf"}}

	replaced, err := repo.Replace(ctx, saved.ID, next)
	require.NoError(t, err)
	assert.Equal(t, "new", replaced.Title)
	assert.Empty(t, replaced.Tags)
	assert.Equal(t, "teacher-1", replaced.AuthorID)
	assert.WithinDuration(t, saved.CreatedAt, replaced.CreatedAt, time.Millisecond)
	require.Len(t, replaced.Attachments, 1)
	assert.NotEmpty(t, replaced.Attachments[0].ID)

	// Writing identical content again still succeeds.
	again, err := repo.Replace(ctx, saved.ID, replaced)
	require.NoError(t, err)
	assert.Equal(t, replaced.Attachments[0].ID, again.Attachments[0].ID)

	_, err = repo.Replace(ctx, uuid.NewString(), next)
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = repo.Replace(ctx, "bogus", next)
	assert.ErrorIs(t, err, ErrInvalidID)
}

func TestGormRepositoryNotFoundAndInvalidIDs(t *testing.T) {
	repo, _ := newGormRepository(t)
	ctx := context.Background()

	saved, err := repo.Insert(ctx, &models.Announcement{Title: "t", AuthorID: "teacher-1"})
	require.NoError(t, err)
	require.NoError(t, repo.Delete(ctx, saved.ID))

	assert.ErrorIs(t, repo.Delete(ctx, saved.ID), ErrNotFound)
	_, err = repo.FindByID(ctx, saved.ID)
	assert.ErrorIs(t, err, ErrNotFound)

	assert.ErrorIs(t, repo.Delete(ctx, "../etc"), ErrInvalidID)
	_, err = repo.FindByID(ctx, "42")
	assert.ErrorIs(t, err, ErrInvalidID)
}
