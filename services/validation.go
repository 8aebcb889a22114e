package services

import (
	"encoding/json"
	"fmt"
	"html"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/microcosm-cc/bluemonday"

	"github.com/cppla/campusnews/content"
	"github.com/cppla/campusnews/models"
)

const (
	MaxTitleLength       = 200
	MaxDescriptionLength = 5000
	MaxTags              = 5
	maxEmailLength       = 254
	maxAuthorIDLength    = 64 // author_id column size
)

var (
	emailRegex = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)
	strict     = bluemonday.StrictPolicy()

	authorIDRegex = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9._:@-]*$`)
)

// AnnouncementInput carries request fields as received. A nil field was not
// sent. Tags, Students and Staff hold serialized JSON arrays.
type AnnouncementInput struct {
	Title       *string
	Description *string
	Summary     *string
	Category    *string
	Audience    *string
	Tags        *string
	Students    *string
	Staff       *string
}

// parsedInput is AnnouncementInput after validation. Nil means "leave as is".
type parsedInput struct {
	title       *string
	description *string
	summary     *string // non-nil and empty asks for regeneration
	category    *models.Category
	audience    *models.Audience
	tags        *[]string
	students    *[]models.Student
	staff       *[]models.Staff
}

// present treats empty text as absent, matching form submissions where
// untouched fields arrive blank.
func present(s *string) (string, bool) {
	if s == nil {
		return "", false
	}
	v := strings.TrimSpace(*s)
	return v, v != ""
}

// safeText reports whether s carries no markup: strict sanitizing may
// re-encode entities but must not drop anything.
func safeText(s string) bool {
	if strings.ContainsRune(s, 0) {
		return false
	}
	return html.UnescapeString(strict.Sanitize(s)) == html.UnescapeString(s)
}

// validAuthorID checks the identity format of callers and of the authorId
// list filter. It does not depend on the store's announcement id format.
func validAuthorID(id string) bool {
	return len(id) <= maxAuthorIDLength && authorIDRegex.MatchString(id)
}

func validEmail(email string) bool {
	return len(email) <= maxEmailLength && emailRegex.MatchString(email)
}

// parseInput validates every field that is present. Create passes
// requireCore so title and description become mandatory.
func parseInput(in AnnouncementInput, requireCore bool) (*parsedInput, error) {
	var p parsedInput

	title, hasTitle := present(in.Title)
	description, hasDescription := present(in.Description)
	if requireCore && (!hasTitle || !hasDescription) {
		return nil, validationError(CodeMissingFields, "Title and description are required")
	}
	if hasTitle {
		if utf8.RuneCountInString(title) > MaxTitleLength {
			return nil, validationError(CodeTitleTooLong, fmt.Sprintf("Title must be less than %d characters", MaxTitleLength))
		}
		p.title = &title
	}
	if hasDescription {
		if utf8.RuneCountInString(description) > MaxDescriptionLength {
			return nil, validationError(CodeDescriptionTooLong, fmt.Sprintf("Description must be less than %d characters", MaxDescriptionLength))
		}
		p.description = &description
	}
	if (hasTitle && !safeText(title)) || (hasDescription && !safeText(description)) {
		return nil, validationError(CodeInvalidInput, "Invalid input format detected")
	}

	if in.Summary != nil {
		summary := strings.TrimSpace(*in.Summary)
		if summary != "" {
			if content.WordCount(summary) > content.SummaryWordLimit {
				return nil, validationError(CodeSummaryTooLong, fmt.Sprintf("Summary must be at most %d words", content.SummaryWordLimit))
			}
			if !safeText(summary) {
				return nil, validationError(CodeInvalidInput, "Invalid input format detected")
			}
		}
		p.summary = &summary
	}

	if v, ok := present(in.Category); ok {
		c := models.Category(v)
		if !c.Valid() {
			return nil, validationError(CodeInvalidCategory, fmt.Sprintf("Invalid category: %s", v))
		}
		p.category = &c
	}
	if v, ok := present(in.Audience); ok {
		a := models.Audience(v)
		if !a.Valid() {
			return nil, validationError(CodeInvalidAudience, fmt.Sprintf("Invalid audience: %s", v))
		}
		p.audience = &a
	}

	if err := parseStructured(in, &p); err != nil {
		return nil, err
	}
	return &p, nil
}

func jsonParseError() *Error {
	return validationError(CodeJSONParse, "Invalid JSON format in tags, students, or staff fields")
}

func parseStructured(in AnnouncementInput, p *parsedInput) error {
	if raw, ok := present(in.Tags); ok {
		var tags []string
		if err := json.Unmarshal([]byte(raw), &tags); err != nil {
			return jsonParseError()
		}
		if len(tags) > MaxTags {
			return validationError(CodeTooManyTags, fmt.Sprintf("Maximum %d tags allowed", MaxTags))
		}
		cleaned := make([]string, 0, len(tags))
		for _, t := range tags {
			t = strings.TrimSpace(t)
			if t == "" {
				continue
			}
			if !safeText(t) {
				return validationError(CodeInvalidInput, "Invalid input format detected")
			}
			cleaned = append(cleaned, t)
		}
		p.tags = &cleaned
	}

	if raw, ok := present(in.Students); ok {
		var students []models.Student
		if err := json.Unmarshal([]byte(raw), &students); err != nil {
			return jsonParseError()
		}
		if students == nil {
			students = []models.Student{}
		}
		for _, s := range students {
			if s.Email != "" && !validEmail(s.Email) {
				return validationError(CodeInvalidEmail, fmt.Sprintf("Invalid email format: %s", s.Email))
			}
		}
		p.students = &students
	}

	if raw, ok := present(in.Staff); ok {
		var staff []models.Staff
		if err := json.Unmarshal([]byte(raw), &staff); err != nil {
			return jsonParseError()
		}
		if staff == nil {
			staff = []models.Staff{}
		}
		for _, s := range staff {
			if s.Email != "" && !validEmail(s.Email) {
				return validationError(CodeInvalidEmail, fmt.Sprintf("Invalid email format: %s", s.Email))
			}
		}
		p.staff = &staff
	}
	return nil
}
