package services

import (
	"context"
	"errors"
	"slices"
	"strings"

	"go.uber.org/zap"

	"github.com/cppla/campusnews/content"
	"github.com/cppla/campusnews/models"
	"github.com/cppla/campusnews/repository"
	"github.com/cppla/campusnews/storage"
)

// RoleTeacher is the only role allowed to author announcements.
const RoleTeacher = "teacher"

// Caller is the authenticated actor behind a request.
type Caller struct {
	ID   string
	Role string
}

// ContentGenerator derives summaries and images. Implementations never fail.
type ContentGenerator interface {
	Summarize(ctx context.Context, text string) string
	RenderImage(ctx context.Context, title string, tags []string) string
}

// UploadResult is returned by UploadAttachments.
type UploadResult struct {
	Attachments  []models.Attachment  `json:"attachments"`
	Announcement *models.Announcement `json:"announcement"`
}

// AnnouncementService owns the lifecycle of announcements: authoring,
// derived content and attachment files.
type AnnouncementService struct {
	repo    repository.AnnouncementRepository
	content ContentGenerator
	files   *storage.Store
	logger  *zap.Logger
}

// NewAnnouncementService wires the service with its collaborators.
func NewAnnouncementService(repo repository.AnnouncementRepository, gen ContentGenerator, files *storage.Store, logger *zap.Logger) *AnnouncementService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AnnouncementService{repo: repo, content: gen, files: files, logger: logger}
}

// List returns announcements newest first. It requires no caller.
func (s *AnnouncementService) List(ctx context.Context, authorID, category string) ([]models.Announcement, error) {
	authorID = strings.TrimSpace(authorID)
	category = strings.TrimSpace(category)
	if authorID != "" && !validAuthorID(authorID) {
		return nil, invalidID(CodeInvalidAuthorID, "Invalid author ID format")
	}
	filter := repository.Filter{AuthorID: authorID, Category: models.Category(category)}
	if category != "" && !filter.Category.Valid() {
		return nil, validationError(CodeInvalidCategory, "Invalid category: "+category)
	}
	items, err := s.repo.FindAll(ctx, filter)
	if err != nil {
		return nil, unexpected(CodeFetchError, "Failed to fetch announcements", err)
	}
	return items, nil
}

// Get returns one announcement.
func (s *AnnouncementService) Get(ctx context.Context, id string) (*models.Announcement, error) {
	if !s.repo.ValidID(id) {
		return nil, invalidID(CodeInvalidID, "Invalid announcement ID")
	}
	a, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, s.loadError(err, CodeFetchError)
	}
	return a, nil
}

// Create validates the request, derives summary and image, ingests the
// uploaded files and persists a new announcement owned by the caller.
func (s *AnnouncementService) Create(ctx context.Context, caller Caller, in AnnouncementInput, uploads []storage.UploadedFile) (_ *models.Announcement, err error) {
	defer s.discardOnError(ctx, uploads, &err)

	if err = requireTeacher(caller); err != nil {
		return nil, err
	}
	p, err := parseInput(in, true)
	if err != nil {
		return nil, err
	}

	attachments, dropped, err := s.ingest(ctx, nil, uploads, CodeCreateError)
	if err != nil {
		return nil, err
	}

	a := &models.Announcement{
		Title:               *p.title,
		OriginalDescription: *p.description,
		Category:            models.CategoryAll,
		Audience:            models.AudienceBoth,
		Tags:                []string{},
		Students:            []models.Student{},
		Staff:               []models.Staff{},
		Attachments:         attachments,
		AuthorID:            caller.ID,
	}
	if p.category != nil {
		a.Category = *p.category
	}
	if p.audience != nil {
		a.Audience = *p.audience
	}
	if p.tags != nil {
		a.Tags = *p.tags
	}
	if p.students != nil {
		a.Students = *p.students
	}
	if p.staff != nil {
		a.Staff = *p.staff
	}

	if p.summary != nil && *p.summary != "" {
		a.Summary = *p.summary
	} else {
		a.Summary = s.content.Summarize(ctx, a.OriginalDescription)
	}
	a.ImageURL = s.content.RenderImage(ctx, a.Title, a.Tags)

	saved, err := s.repo.Insert(ctx, a)
	if err != nil {
		return nil, unexpected(CodeCreateError, "Failed to create announcement", err)
	}
	s.files.RemoveAll(ctx, dropped)
	s.logger.Info("announcement created",
		zap.String("id", saved.ID),
		zap.String("author_id", saved.AuthorID),
		zap.Int("attachments", len(saved.Attachments)))
	return saved, nil
}

// Update applies a merge patch to an announcement owned by the caller and
// refreshes derived content when its inputs changed.
func (s *AnnouncementService) Update(ctx context.Context, caller Caller, id string, in AnnouncementInput, uploads []storage.UploadedFile) (_ *models.Announcement, err error) {
	defer s.discardOnError(ctx, uploads, &err)

	if err = s.precheck(caller, id); err != nil {
		return nil, err
	}
	p, err := parseInput(in, false)
	if err != nil {
		return nil, err
	}
	current, err := s.loadOwned(ctx, caller, id, CodeUpdateError)
	if err != nil {
		return nil, err
	}

	next := current.Clone()
	if p.title != nil {
		next.Title = *p.title
	}
	if p.description != nil {
		next.OriginalDescription = *p.description
	}
	if p.category != nil {
		next.Category = *p.category
	}
	if p.audience != nil {
		next.Audience = *p.audience
	}
	if p.tags != nil {
		next.Tags = *p.tags
	}
	if p.students != nil {
		next.Students = *p.students
	}
	if p.staff != nil {
		next.Staff = *p.staff
	}

	descriptionChanged := next.OriginalDescription != current.OriginalDescription
	switch {
	case p.summary != nil && *p.summary != "":
		next.Summary = *p.summary
	case descriptionChanged, p.summary != nil:
		next.Summary = s.content.Summarize(ctx, next.OriginalDescription)
	}

	if next.Title != current.Title || !slices.Equal(next.Tags, current.Tags) {
		next.ImageURL = s.content.RenderImage(ctx, next.Title, next.Tags)
	}

	var dropped []models.Attachment
	if len(uploads) > 0 {
		next.Attachments, dropped, err = s.ingest(ctx, current.Attachments, uploads, CodeUpdateError)
		if err != nil {
			return nil, err
		}
	}

	saved, err := s.repo.Replace(ctx, id, next)
	if err != nil {
		return nil, s.loadError(err, CodeUpdateError)
	}
	s.files.RemoveAll(ctx, dropped)
	s.logger.Info("announcement updated", zap.String("id", id), zap.String("author_id", caller.ID))
	return saved, nil
}

// RegenerateImage replaces the image with customURL when given, otherwise
// with a freshly rendered one.
func (s *AnnouncementService) RegenerateImage(ctx context.Context, caller Caller, id, customURL string) (*models.Announcement, error) {
	if err := s.precheck(caller, id); err != nil {
		return nil, err
	}
	customURL = strings.TrimSpace(customURL)
	if customURL != "" && !content.ValidImageURL(customURL) {
		return nil, validationError(CodeInvalidImageURL, "Custom image URL must be an http(s) URL")
	}
	current, err := s.loadOwned(ctx, caller, id, CodeImageGenerationError)
	if err != nil {
		return nil, err
	}

	next := current.Clone()
	if customURL != "" {
		next.ImageURL = customURL
	} else {
		next.ImageURL = s.content.RenderImage(ctx, next.Title, next.Tags)
	}
	saved, err := s.repo.Replace(ctx, id, next)
	if err != nil {
		return nil, s.loadError(err, CodeImageGenerationError)
	}
	return saved, nil
}

// UploadAttachments appends uploaded files to an announcement. Files whose
// name is already attached are ignored.
func (s *AnnouncementService) UploadAttachments(ctx context.Context, caller Caller, id string, uploads []storage.UploadedFile) (_ *UploadResult, err error) {
	defer s.discardOnError(ctx, uploads, &err)

	if err = s.precheck(caller, id); err != nil {
		return nil, err
	}
	if len(uploads) == 0 {
		return nil, validationError(CodeNoFiles, "No files uploaded")
	}
	current, err := s.loadOwned(ctx, caller, id, CodeUploadError)
	if err != nil {
		return nil, err
	}

	next := current.Clone()
	merged, dropped, err := s.ingest(ctx, current.Attachments, uploads, CodeUploadError)
	if err != nil {
		return nil, err
	}
	next.Attachments = merged

	saved, err := s.repo.Replace(ctx, id, next)
	if err != nil {
		return nil, s.loadError(err, CodeUploadError)
	}
	s.files.RemoveAll(ctx, dropped)

	added := make([]models.Attachment, 0, len(merged)-len(current.Attachments))
	known := make(map[string]struct{}, len(current.Attachments))
	for _, att := range current.Attachments {
		known[att.FileURL] = struct{}{}
	}
	for _, att := range saved.Attachments {
		if _, ok := known[att.FileURL]; !ok {
			added = append(added, att)
		}
	}
	s.logger.Info("attachments uploaded",
		zap.String("id", id),
		zap.Int("added", len(added)),
		zap.Int("duplicates", len(dropped)))
	return &UploadResult{Attachments: added, Announcement: saved}, nil
}

// DeleteAttachment removes one attachment and its file. File removal is
// best-effort; the record is updated regardless.
func (s *AnnouncementService) DeleteAttachment(ctx context.Context, caller Caller, id, attachmentID string) (*models.Announcement, error) {
	if err := s.precheck(caller, id); err != nil {
		return nil, err
	}
	if !s.repo.ValidID(attachmentID) {
		return nil, invalidID(CodeInvalidID, "Invalid ID format")
	}
	current, err := s.loadOwned(ctx, caller, id, CodeDeleteError)
	if err != nil {
		return nil, err
	}

	idx := slices.IndexFunc(current.Attachments, func(a models.Attachment) bool { return a.ID == attachmentID })
	if idx < 0 {
		return nil, notFound(CodeAttachmentNotFound, "Attachment not found")
	}

	if res := s.files.Remove(ctx, current.Attachments[idx]); !res.Removed {
		s.logger.Warn("attachment file not removed",
			zap.String("id", id),
			zap.String("attachment_id", attachmentID),
			zap.String("reason", res.Warning))
	}

	next := current.Clone()
	next.Attachments = slices.Delete(next.Attachments, idx, idx+1)
	saved, err := s.repo.Replace(ctx, id, next)
	if err != nil {
		return nil, s.loadError(err, CodeDeleteError)
	}
	return saved, nil
}

// Delete removes an announcement and, best-effort, all of its files.
func (s *AnnouncementService) Delete(ctx context.Context, caller Caller, id string) error {
	if err := s.precheck(caller, id); err != nil {
		return err
	}
	current, err := s.loadOwned(ctx, caller, id, CodeDeleteError)
	if err != nil {
		return err
	}

	removed := s.files.RemoveAll(ctx, current.Attachments)
	if err := s.repo.Delete(ctx, id); err != nil {
		return s.loadError(err, CodeDeleteError)
	}
	s.logger.Info("announcement deleted",
		zap.String("id", id),
		zap.Int("files_removed", removed),
		zap.Int("attachments", len(current.Attachments)))
	return nil
}

func requireTeacher(caller Caller) error {
	if strings.TrimSpace(caller.ID) == "" {
		return &Error{Kind: KindAuthentication, Code: CodeNoToken, Message: "Authentication required"}
	}
	if !validAuthorID(caller.ID) {
		return &Error{Kind: KindAuthentication, Code: CodeInvalidToken, Message: "Invalid user identity"}
	}
	if caller.Role != RoleTeacher {
		return forbidden("Access denied")
	}
	return nil
}

func (s *AnnouncementService) precheck(caller Caller, id string) error {
	if err := requireTeacher(caller); err != nil {
		return err
	}
	if !s.repo.ValidID(id) {
		return invalidID(CodeInvalidID, "Invalid announcement ID")
	}
	return nil
}

// loadOwned fetches the announcement and checks the caller wrote it.
func (s *AnnouncementService) loadOwned(ctx context.Context, caller Caller, id, failCode string) (*models.Announcement, error) {
	a, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, s.loadError(err, failCode)
	}
	if a.AuthorID != caller.ID {
		return nil, forbidden("Not authorized to modify this announcement")
	}
	return a, nil
}

func (s *AnnouncementService) loadError(err error, failCode string) error {
	switch {
	case errors.Is(err, repository.ErrNotFound):
		return notFound(CodeNotFound, "Announcement not found")
	case errors.Is(err, repository.ErrInvalidID):
		return invalidID(CodeInvalidID, "Invalid ID format")
	default:
		return unexpected(failCode, "Storage operation failed", err)
	}
}

// ingest turns uploads into attachments merged after existing ones.
// Attachments dropped as duplicates are returned for file cleanup once the
// record is committed.
func (s *AnnouncementService) ingest(ctx context.Context, existing []models.Attachment, uploads []storage.UploadedFile, failCode string) (merged, dropped []models.Attachment, err error) {
	if len(uploads) == 0 {
		return append([]models.Attachment{}, existing...), nil, nil
	}
	incoming, err := s.files.Ingest(ctx, uploads)
	if err != nil {
		return nil, nil, unexpected(failCode, "Failed to store uploaded files", err)
	}
	merged, dropped = storage.Merge(existing, incoming)
	return merged, dropped, nil
}

// discardOnError removes the request's uploaded files when the operation
// failed, since no record references them.
func (s *AnnouncementService) discardOnError(ctx context.Context, uploads []storage.UploadedFile, err *error) {
	if *err != nil && len(uploads) > 0 && s.files != nil {
		s.files.Discard(context.WithoutCancel(ctx), uploads)
	}
}
