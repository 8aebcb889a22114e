package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"regexp"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/cppla/campusnews/models"
)

var (
	// ErrObjectNotFound is returned by backends for missing files.
	ErrObjectNotFound = errors.New("object not found")
	// ErrUnsafeName is returned for names outside the safe pattern or root.
	ErrUnsafeName = errors.New("unsafe file name")
)

var safeName = regexp.MustCompile(`^[A-Za-z0-9._-]+$`)

// SafeName reports whether name may be used as a stored file name.
func SafeName(name string) bool {
	return safeName.MatchString(name) && name != "." && name != ".."
}

// Backend holds the bytes of stored attachments.
type Backend interface {
	Put(ctx context.Context, name string, r io.Reader) error
	Exists(ctx context.Context, name string) (bool, error)
	// Delete returns ErrObjectNotFound when the file is already gone.
	Delete(ctx context.Context, name string) error
}

// ObjectInfo describes one stored file.
type ObjectInfo struct {
	Name    string
	ModTime time.Time
}

// Lister is implemented by backends that can enumerate their files.
type Lister interface {
	List(ctx context.Context) ([]ObjectInfo, error)
}

// UploadedFile is what the upload middleware hands to the core after the
// bytes have been written to the backend.
type UploadedFile struct {
	OriginalName string
	StoredName   string
	Size         int64
	MimeType     string
}

// RemoveResult reports the outcome of a best-effort removal.
type RemoveResult struct {
	Removed bool
	Warning string
}

// Store manages attachment files for announcements.
type Store struct {
	backend   Backend
	urlPrefix string
	logger    *zap.Logger
	now       func() time.Time
}

// NewStore creates a Store. urlPrefix is prepended to stored names to build
// fileUrl, e.g. "/uploads/".
func NewStore(backend Backend, urlPrefix string, logger *zap.Logger) *Store {
	if logger == nil {
		logger = zap.NewNop()
	}
	if !strings.HasSuffix(urlPrefix, "/") {
		urlPrefix += "/"
	}
	return &Store{backend: backend, urlPrefix: urlPrefix, logger: logger, now: time.Now}
}

// Save writes bytes under a stored name.
func (s *Store) Save(ctx context.Context, storedName string, r io.Reader) error {
	if !SafeName(storedName) {
		return ErrUnsafeName
	}
	return s.backend.Put(ctx, storedName, r)
}

// Ingest turns uploaded files into attachment records. Every stored file
// must already exist in the backend.
func (s *Store) Ingest(ctx context.Context, files []UploadedFile) ([]models.Attachment, error) {
	out := make([]models.Attachment, 0, len(files))
	now := s.now()
	for _, f := range files {
		if !SafeName(f.StoredName) {
			return nil, fmt.Errorf("%w: %q", ErrUnsafeName, f.StoredName)
		}
		ok, err := s.backend.Exists(ctx, f.StoredName)
		if err != nil {
			return nil, fmt.Errorf("stat %s: %w", f.StoredName, err)
		}
		if !ok {
			return nil, fmt.Errorf("stored file %s: %w", f.StoredName, ErrObjectNotFound)
		}
		out = append(out, models.Attachment{
			FileName:   f.OriginalName,
			FileURL:    s.urlPrefix + f.StoredName,
			FileSize:   f.Size,
			FileType:   f.MimeType,
			UploadedAt: now,
		})
	}
	return out, nil
}

// Remove deletes the file behind an attachment. Failures are reported as a
// warning and logged; they never block the caller's database change.
func (s *Store) Remove(ctx context.Context, att models.Attachment) RemoveResult {
	if att.FileURL == "" {
		return RemoveResult{Warning: "attachment has no file url"}
	}
	name := FileName(att)
	if !SafeName(name) {
		s.logger.Warn("skip removal of unsafe attachment name", zap.String("file_url", att.FileURL))
		return RemoveResult{Warning: "unsafe file name"}
	}
	if err := s.backend.Delete(ctx, name); err != nil {
		if errors.Is(err, ErrObjectNotFound) {
			return RemoveResult{Warning: "file already absent"}
		}
		s.logger.Warn("attachment removal failed", zap.String("file", name), zap.Error(err))
		return RemoveResult{Warning: err.Error()}
	}
	return RemoveResult{Removed: true}
}

// RemoveAll removes every attachment's file and returns how many were
// actually deleted.
func (s *Store) RemoveAll(ctx context.Context, atts []models.Attachment) int {
	n := 0
	for _, att := range atts {
		if s.Remove(ctx, att).Removed {
			n++
		}
	}
	return n
}

// Discard deletes uploaded files that will not be referenced by any record.
func (s *Store) Discard(ctx context.Context, files []UploadedFile) {
	for _, f := range files {
		if !SafeName(f.StoredName) {
			continue
		}
		if err := s.backend.Delete(ctx, f.StoredName); err != nil && !errors.Is(err, ErrObjectNotFound) {
			s.logger.Warn("discard uploaded file failed", zap.String("file", f.StoredName), zap.Error(err))
		}
	}
}

// FileName returns the stored name behind an attachment url.
func FileName(att models.Attachment) string {
	return path.Base(att.FileURL)
}

// Sweep deletes stored files older than minAge that inUse does not claim.
// The age guard keeps files of requests still in flight.
func (s *Store) Sweep(ctx context.Context, minAge time.Duration, inUse func(name string) bool) (int, error) {
	lister, ok := s.backend.(Lister)
	if !ok {
		return 0, errors.New("storage backend cannot list files")
	}
	objects, err := lister.List(ctx)
	if err != nil {
		return 0, err
	}
	cutoff := s.now().Add(-minAge)
	n := 0
	for _, obj := range objects {
		if obj.ModTime.After(cutoff) || inUse(obj.Name) {
			continue
		}
		if err := s.backend.Delete(ctx, obj.Name); err != nil {
			if !errors.Is(err, ErrObjectNotFound) {
				s.logger.Warn("sweep removal failed", zap.String("file", obj.Name), zap.Error(err))
			}
			continue
		}
		n++
	}
	return n, nil
}

// Merge appends incoming attachments to existing ones, dropping any whose
// fileName is already present. Dropped entries are returned so their files
// can be discarded.
func Merge(existing, incoming []models.Attachment) (merged, dropped []models.Attachment) {
	seen := make(map[string]struct{}, len(existing)+len(incoming))
	merged = make([]models.Attachment, 0, len(existing)+len(incoming))
	for _, a := range existing {
		seen[a.FileName] = struct{}{}
		merged = append(merged, a)
	}
	for _, a := range incoming {
		if _, dup := seen[a.FileName]; dup {
			dropped = append(dropped, a)
			continue
		}
		seen[a.FileName] = struct{}{}
		merged = append(merged, a)
	}
	return merged, dropped
}
