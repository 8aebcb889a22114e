package controllers

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/cppla/campusnews/middleware"
	"github.com/cppla/campusnews/services"
	"github.com/cppla/campusnews/utils"
)

const (
	listCachePrefix = "cache:announcements:list:"
	// listGenerationKey sits outside listCachePrefix so prefix invalidation
	// never resets it.
	listGenerationKey = "cache:announcements:list-generation"
)

// AnnouncementController exposes the announcement lifecycle over HTTP.
type AnnouncementController struct {
	svc        *services.AnnouncementService
	cache      *utils.Cache
	cacheTTL   time.Duration
	production bool
	logger     *zap.Logger
}

// NewAnnouncementController creates a controller. cache may be nil.
func NewAnnouncementController(svc *services.AnnouncementService, cache *utils.Cache, cacheTTL time.Duration, production bool, logger *zap.Logger) *AnnouncementController {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AnnouncementController{svc: svc, cache: cache, cacheTTL: cacheTTL, production: production, logger: logger}
}

// List returns announcements filtered by the optional authorId and category
// query parameters.
func (a *AnnouncementController) List(ctx *gin.Context) {
	authorID := strings.TrimSpace(ctx.Query("authorId"))
	category := strings.TrimSpace(ctx.Query("category"))

	// A list read before a mutation is stored under the old generation, so a
	// late write cannot shadow the invalidation.
	gen, cached := a.cache.Generation(ctx.Request.Context(), listGenerationKey)
	cacheKey := listCacheKey(gen, authorID, category)
	if cached {
		if b, ok := a.cache.GetBytes(ctx.Request.Context(), cacheKey); ok {
			ctx.Data(http.StatusOK, "application/json; charset=utf-8", b)
			return
		}
	}

	items, err := a.svc.List(ctx.Request.Context(), authorID, category)
	if err != nil {
		a.fail(ctx, err)
		return
	}
	if cached {
		a.cache.SetJSON(ctx.Request.Context(), cacheKey, utils.JSONResponse{Success: true, Data: items}, a.cacheTTL)
	}
	utils.Success(ctx, items)
}

// Get returns a single announcement.
func (a *AnnouncementController) Get(ctx *gin.Context) {
	item, err := a.svc.Get(ctx.Request.Context(), ctx.Param("id"))
	if err != nil {
		a.fail(ctx, err)
		return
	}
	utils.Success(ctx, item)
}

// Create publishes a new announcement owned by the caller.
func (a *AnnouncementController) Create(ctx *gin.Context) {
	caller, in, ok := a.authorInput(ctx)
	if !ok {
		return
	}
	item, err := a.svc.Create(ctx.Request.Context(), caller, in, middleware.UploadsFrom(ctx))
	if err != nil {
		a.fail(ctx, err)
		return
	}
	a.invalidate(ctx)
	utils.Respond(ctx, http.StatusCreated, "", item)
}

// Update merge-patches an announcement owned by the caller.
func (a *AnnouncementController) Update(ctx *gin.Context) {
	caller, in, ok := a.authorInput(ctx)
	if !ok {
		return
	}
	item, err := a.svc.Update(ctx.Request.Context(), caller, ctx.Param("id"), in, middleware.UploadsFrom(ctx))
	if err != nil {
		a.fail(ctx, err)
		return
	}
	a.invalidate(ctx)
	utils.Success(ctx, item)
}

// RegenerateImage re-renders the illustration, or stores customImageUrl
// when one is sent.
func (a *AnnouncementController) RegenerateImage(ctx *gin.Context) {
	caller, _ := middleware.CallerFrom(ctx)
	var customURL string
	if strings.HasPrefix(ctx.ContentType(), "application/json") {
		var req struct {
			CustomImageURL string `json:"customImageUrl"`
		}
		if err := ctx.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
			a.fail(ctx, jsonError())
			return
		}
		customURL = req.CustomImageURL
	} else {
		customURL = ctx.PostForm("customImageUrl")
	}

	item, err := a.svc.RegenerateImage(ctx.Request.Context(), caller, ctx.Param("id"), customURL)
	if err != nil {
		a.fail(ctx, err)
		return
	}
	a.invalidate(ctx)
	utils.Success(ctx, item)
}

// UploadAttachments appends the uploaded files to an announcement.
func (a *AnnouncementController) UploadAttachments(ctx *gin.Context) {
	caller, _ := middleware.CallerFrom(ctx)
	res, err := a.svc.UploadAttachments(ctx.Request.Context(), caller, ctx.Param("id"), middleware.UploadsFrom(ctx))
	if err != nil {
		a.fail(ctx, err)
		return
	}
	a.invalidate(ctx)
	utils.Respond(ctx, http.StatusOK, "Files uploaded successfully", res)
}

// DeleteAttachment removes one attachment and its file.
func (a *AnnouncementController) DeleteAttachment(ctx *gin.Context) {
	caller, _ := middleware.CallerFrom(ctx)
	item, err := a.svc.DeleteAttachment(ctx.Request.Context(), caller, ctx.Param("id"), ctx.Param("attachmentId"))
	if err != nil {
		a.fail(ctx, err)
		return
	}
	a.invalidate(ctx)
	utils.Respond(ctx, http.StatusOK, "Attachment deleted", item)
}

// Delete removes an announcement together with its attachment files.
func (a *AnnouncementController) Delete(ctx *gin.Context) {
	caller, _ := middleware.CallerFrom(ctx)
	if err := a.svc.Delete(ctx.Request.Context(), caller, ctx.Param("id")); err != nil {
		a.fail(ctx, err)
		return
	}
	a.invalidate(ctx)
	utils.Respond(ctx, http.StatusOK, "Announcement deleted successfully", nil)
}

// announcementRequest binds create and update bodies. A nil field was not
// sent. Forms carry tags, students and staff as JSON text; JSON bodies may
// also send them as arrays.
type announcementRequest struct {
	Title       *string   `form:"title" json:"title"`
	Description *string   `form:"description" json:"description"`
	Summary     *string   `form:"summary" json:"summary"`
	Category    *string   `form:"category" json:"category"`
	Audience    *string   `form:"audience" json:"audience"`
	Tags        *jsonText `form:"tags" json:"tags"`
	Students    *jsonText `form:"students" json:"students"`
	Staff       *jsonText `form:"staff" json:"staff"`
}

func (r *announcementRequest) input() services.AnnouncementInput {
	return services.AnnouncementInput{
		Title:       r.Title,
		Description: r.Description,
		Summary:     r.Summary,
		Category:    r.Category,
		Audience:    r.Audience,
		Tags:        r.Tags.text(),
		Students:    r.Students.text(),
		Staff:       r.Staff.text(),
	}
}

// jsonText holds a serialized JSON value. A JSON string is taken as the
// text itself; arrays and objects keep their encoded form.
type jsonText string

func (t *jsonText) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err == nil {
		*t = jsonText(s)
		return nil
	}
	*t = jsonText(b)
	return nil
}

// UnmarshalParam binds a form value as is.
func (t *jsonText) UnmarshalParam(param string) error {
	*t = jsonText(param)
	return nil
}

func (t *jsonText) text() *string {
	if t == nil {
		return nil
	}
	s := string(*t)
	return &s
}

// authorInput reads the caller and binds the announcement fields.
func (a *AnnouncementController) authorInput(ctx *gin.Context) (services.Caller, services.AnnouncementInput, bool) {
	caller, _ := middleware.CallerFrom(ctx)
	var req announcementRequest
	if strings.HasPrefix(ctx.ContentType(), "application/json") {
		if err := ctx.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
			a.fail(ctx, jsonError())
			return caller, services.AnnouncementInput{}, false
		}
	} else if err := ctx.ShouldBind(&req); err != nil {
		a.fail(ctx, &services.Error{Kind: services.KindValidation, Code: services.CodeInvalidInput, Message: "Invalid form data"})
		return caller, services.AnnouncementInput{}, false
	}
	return caller, req.input(), true
}

func jsonError() error {
	return &services.Error{Kind: services.KindValidation, Code: services.CodeJSONParse, Message: "Invalid JSON format"}
}

func listCacheKey(gen int64, authorID, category string) string {
	return fmt.Sprintf("%sg%d:author=%s:cat=%s", listCachePrefix, gen, authorID, category)
}

func (a *AnnouncementController) invalidate(ctx *gin.Context) {
	a.cache.BumpGeneration(ctx.Request.Context(), listGenerationKey)
	a.cache.InvalidateByPrefix(ctx.Request.Context(), listCachePrefix)
}

// fail writes err in the error envelope with the status of its kind.
func (a *AnnouncementController) fail(ctx *gin.Context, err error) {
	svcErr, ok := services.AsError(err)
	if !ok {
		svcErr = &services.Error{Kind: services.KindUnexpected, Code: "INTERNAL_ERROR", Message: "Internal server error", Err: err}
	}

	status := statusFor(svcErr.Kind)
	msg := svcErr.Message
	if status == http.StatusInternalServerError {
		a.logger.Error("request failed",
			zap.String("path", ctx.FullPath()),
			zap.String("code", svcErr.Code),
			zap.Error(err))
		if !a.production && svcErr.Err != nil {
			msg = svcErr.Error()
		}
	}
	utils.AbortWithError(ctx, status, svcErr.Code, msg)
}

func statusFor(kind services.Kind) int {
	switch kind {
	case services.KindValidation, services.KindInvalidID:
		return http.StatusBadRequest
	case services.KindAuthentication:
		return http.StatusUnauthorized
	case services.KindAuthorization:
		return http.StatusForbidden
	case services.KindNotFound:
		return http.StatusNotFound
	case services.KindRateLimit:
		return http.StatusTooManyRequests
	default:
		return http.StatusInternalServerError
	}
}
