package services

import (
	"errors"
	"fmt"
)

// Kind classifies a service error for transport mapping.
type Kind int

const (
	KindUnexpected Kind = iota
	KindValidation
	KindAuthentication
	KindAuthorization
	KindNotFound
	KindInvalidID
	KindRateLimit
)

func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindAuthentication:
		return "authentication"
	case KindAuthorization:
		return "authorization"
	case KindNotFound:
		return "not_found"
	case KindInvalidID:
		return "invalid_id"
	case KindRateLimit:
		return "rate_limit"
	default:
		return "unexpected"
	}
}

// Error codes returned to clients.
const (
	CodeMissingFields       = "MISSING_FIELDS"
	CodeTitleTooLong        = "TITLE_TOO_LONG"
	CodeDescriptionTooLong  = "DESCRIPTION_TOO_LONG"
	CodeSummaryTooLong      = "SUMMARY_TOO_LONG"
	CodeInvalidInput        = "INVALID_INPUT"
	CodeTooManyTags         = "TOO_MANY_TAGS"
	CodeInvalidEmail        = "INVALID_EMAIL"
	CodeJSONParse           = "JSON_PARSE_ERROR"
	CodeInvalidCategory     = "INVALID_CATEGORY"
	CodeInvalidAudience     = "INVALID_AUDIENCE"
	CodeInvalidImageURL     = "INVALID_IMAGE_URL"
	CodeInvalidID           = "INVALID_ID"
	CodeInvalidAuthorID     = "INVALID_AUTHOR_ID"
	CodeNotFound            = "NOT_FOUND"
	CodeAttachmentNotFound  = "ATTACHMENT_NOT_FOUND"
	CodeForbidden           = "FORBIDDEN"
	CodeNoFiles             = "NO_FILES"
	CodeNoToken             = "NO_TOKEN"
	CodeTokenExpired        = "TOKEN_EXPIRED"
	CodeInvalidToken        = "INVALID_TOKEN"
	CodeRateLimitExceeded   = "RATE_LIMIT_EXCEEDED"
	CodeFileTooLarge        = "FILE_TOO_LARGE"
	CodeUnsupportedFileType = "UNSUPPORTED_FILE_TYPE"
	CodeTooManyFiles        = "TOO_MANY_FILES"

	CodeFetchError           = "FETCH_ERROR"
	CodeCreateError          = "CREATE_ERROR"
	CodeUpdateError          = "UPDATE_ERROR"
	CodeImageGenerationError = "IMAGE_GENERATION_ERROR"
	CodeUploadError          = "UPLOAD_ERROR"
	CodeDeleteError          = "DELETE_ERROR"
)

// Error is the error type returned by every service operation.
type Error struct {
	Kind    Kind
	Code    string
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.Err }

// AsError extracts a *Error from err.
func AsError(err error) (*Error, bool) {
	var se *Error
	if errors.As(err, &se) {
		return se, true
	}
	return nil, false
}

// IsKind reports whether err is a service error of the given kind.
func IsKind(err error, kind Kind) bool {
	se, ok := AsError(err)
	return ok && se.Kind == kind
}

func validationError(code, msg string) *Error {
	return &Error{Kind: KindValidation, Code: code, Message: msg}
}

func notFound(code, msg string) *Error {
	return &Error{Kind: KindNotFound, Code: code, Message: msg}
}

func forbidden(msg string) *Error {
	return &Error{Kind: KindAuthorization, Code: CodeForbidden, Message: msg}
}

func invalidID(code, msg string) *Error {
	return &Error{Kind: KindInvalidID, Code: code, Message: msg}
}

func unexpected(code, msg string, err error) *Error {
	return &Error{Kind: KindUnexpected, Code: code, Message: msg, Err: err}
}
