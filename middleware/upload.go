package middleware

import (
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"path/filepath"
	"strings"
	"time"

	"github.com/gabriel-vasile/mimetype"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/cppla/campusnews/services"
	"github.com/cppla/campusnews/storage"
	"github.com/cppla/campusnews/utils"
)

// ContextUploadsKey stores the []storage.UploadedFile of the request.
const ContextUploadsKey = "uploads"

// DefaultAllowedTypes are the attachment types accepted unless configured
// otherwise: images, PDFs, office documents, plain text and archives.
var DefaultAllowedTypes = []string{
	"image/jpeg",
	"image/png",
	"image/gif",
	"image/webp",
	"application/pdf",
	"application/msword",
	"application/vnd.openxmlformats-officedocument.wordprocessingml.document",
	"application/vnd.ms-excel",
	"application/vnd.openxmlformats-officedocument.spreadsheetml.sheet",
	"application/vnd.ms-powerpoint",
	"application/vnd.openxmlformats-officedocument.presentationml.presentation",
	"text/plain",
	"text/csv",
	"application/zip",
}

// UploadPolicy bounds what one request may upload.
type UploadPolicy struct {
	MaxBytes     int64 // per file
	MaxFiles     int
	AllowedTypes []string
}

// Uploads stores multipart files sent as "files" or "files[]" and exposes
// them to handlers through UploadsFrom. Requests that are not multipart
// pass through with no uploads.
func Uploads(store *storage.Store, policy UploadPolicy) gin.HandlerFunc {
	if len(policy.AllowedTypes) == 0 {
		policy.AllowedTypes = DefaultAllowedTypes
	}
	return func(ctx *gin.Context) {
		if !strings.HasPrefix(ctx.ContentType(), "multipart/form-data") {
			ctx.Next()
			return
		}

		// Allow every file at full size plus room for text fields.
		limit := policy.MaxBytes*int64(policy.MaxFiles) + 1<<20
		ctx.Request.Body = http.MaxBytesReader(ctx.Writer, ctx.Request.Body, limit)
		form, err := ctx.MultipartForm()
		if err != nil {
			var tooLarge *http.MaxBytesError
			if errors.As(err, &tooLarge) {
				utils.AbortWithError(ctx, http.StatusBadRequest, services.CodeFileTooLarge, "Request body too large")
				return
			}
			utils.AbortWithError(ctx, http.StatusBadRequest, services.CodeInvalidInput, "Invalid multipart body")
			return
		}
		defer func() { _ = form.RemoveAll() }()

		headers := append(form.File["files"], form.File["files[]"]...)
		if len(headers) > policy.MaxFiles {
			utils.AbortWithError(ctx, http.StatusBadRequest, services.CodeTooManyFiles,
				fmt.Sprintf("At most %d files per request", policy.MaxFiles))
			return
		}

		saved := make([]storage.UploadedFile, 0, len(headers))
		for _, fh := range headers {
			up, code, err := saveOne(ctx, store, policy, fh)
			if err != nil {
				store.Discard(ctx.Request.Context(), saved)
				status := http.StatusBadRequest
				if code == services.CodeUploadError {
					status = http.StatusInternalServerError
				}
				utils.AbortWithError(ctx, status, code, err.Error())
				return
			}
			saved = append(saved, up)
		}

		ctx.Set(ContextUploadsKey, saved)
		ctx.Next()
	}
}

// UploadsFrom returns the files stored by Uploads for this request.
func UploadsFrom(ctx *gin.Context) []storage.UploadedFile {
	if v, ok := ctx.Get(ContextUploadsKey); ok {
		if files, ok := v.([]storage.UploadedFile); ok {
			return files
		}
	}
	return nil
}

func saveOne(ctx *gin.Context, store *storage.Store, policy UploadPolicy, fh *multipart.FileHeader) (storage.UploadedFile, string, error) {
	name := filepath.Base(strings.ReplaceAll(fh.Filename, "\\", "/"))
	if name == "." || name == "/" || name == "" {
		return storage.UploadedFile{}, services.CodeInvalidInput, errors.New("file name is required")
	}
	if fh.Size > policy.MaxBytes {
		return storage.UploadedFile{}, services.CodeFileTooLarge,
			fmt.Errorf("%s exceeds the %d MB limit", name, policy.MaxBytes>>20)
	}

	f, err := fh.Open()
	if err != nil {
		return storage.UploadedFile{}, services.CodeUploadError, errors.New("failed to read upload")
	}
	defer f.Close()

	mtype, err := mimetype.DetectReader(f)
	if err != nil {
		return storage.UploadedFile{}, services.CodeUploadError, errors.New("failed to read upload")
	}
	if !allowedType(mtype, policy.AllowedTypes) {
		return storage.UploadedFile{}, services.CodeUnsupportedFileType,
			fmt.Errorf("%s: file type %s is not allowed", name, mtype.String())
	}
	if _, err := f.Seek(0, io.SeekStart); err != nil {
		return storage.UploadedFile{}, services.CodeUploadError, errors.New("failed to read upload")
	}

	stored := fmt.Sprintf("%d-%s%s", time.Now().UnixNano(), uuid.NewString()[:8], mtype.Extension())
	if err := store.Save(ctx.Request.Context(), stored, io.LimitReader(f, policy.MaxBytes)); err != nil {
		return storage.UploadedFile{}, services.CodeUploadError, errors.New("failed to store upload")
	}
	return storage.UploadedFile{
		OriginalName: name,
		StoredName:   stored,
		Size:         fh.Size,
		MimeType:     baseMIME(mtype.String()),
	}, "", nil
}

func allowedType(m *mimetype.MIME, allowed []string) bool {
	for _, a := range allowed {
		if m.Is(a) {
			return true
		}
	}
	return false
}

func baseMIME(s string) string {
	if i := strings.IndexByte(s, ';'); i >= 0 {
		return strings.TrimSpace(s[:i])
	}
	return s
}
