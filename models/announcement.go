package models

import (
	"slices"
	"time"
)

// Category classifies an announcement for filtering.
type Category string

const (
	CategoryAll            Category = "All"
	CategoryAcademic       Category = "Academic"
	CategoryAdministrative Category = "Administrative/Misc"
	CategorySportsCultural Category = "Sports/Cultural"
	CategoryCoCurricular   Category = "Co-curricular/Sports/Cultural"
	CategoryPlacement      Category = "Placement"
	CategoryBenefits       Category = "Benefits"
	CategoryCompetitions   Category = "Competitions"
)

// Categories lists every accepted category in display order.
var Categories = []Category{
	CategoryAll,
	CategoryAcademic,
	CategoryAdministrative,
	CategorySportsCultural,
	CategoryCoCurricular,
	CategoryPlacement,
	CategoryBenefits,
	CategoryCompetitions,
}

// Valid reports whether c is one of the known categories.
func (c Category) Valid() bool {
	for _, v := range Categories {
		if v == c {
			return true
		}
	}
	return false
}

// Audience defines who an announcement targets.
type Audience string

const (
	AudienceFaculty  Audience = "Faculty"
	AudienceStudents Audience = "Students"
	AudienceBoth     Audience = "Both"
)

// Valid reports whether a is one of the known audiences.
func (a Audience) Valid() bool {
	switch a {
	case AudienceFaculty, AudienceStudents, AudienceBoth:
		return true
	}
	return false
}

// Student is a student recipient of an announcement.
type Student struct {
	Name  string `json:"name" bson:"name"`
	RegID string `json:"regId" bson:"regId"`
	Email string `json:"email" bson:"email"`
}

// Staff is a staff recipient of an announcement.
type Staff struct {
	Name    string `json:"name" bson:"name"`
	StaffID string `json:"staffId" bson:"staffId"`
	Email   string `json:"email" bson:"email"`
}

// Attachment references an uploaded file bound to an announcement.
type Attachment struct {
	ID         string    `json:"id"`
	FileName   string    `json:"fileName"`
	FileURL    string    `json:"fileUrl"`
	FileSize   int64     `json:"fileSize"`
	FileType   string    `json:"fileType"`
	UploadedAt time.Time `json:"uploadedAt"`
}

// Announcement is the aggregate root: the notice, its derived summary and
// image, its recipients and its attachments.
type Announcement struct {
	ID                  string       `gorm:"type:char(36);primaryKey" json:"id"`
	Title               string       `gorm:"size:200;not null" json:"title"`
	OriginalDescription string       `gorm:"type:text;not null" json:"originalDescription"`
	Summary             string       `gorm:"type:text;not null" json:"summary"`
	ImageURL            string       `gorm:"size:2048;not null" json:"imageUrl"`
	Tags                []string     `gorm:"type:text;serializer:json" json:"tags"`
	Category            Category     `gorm:"size:64;index;default:'All'" json:"category"`
	Audience            Audience     `gorm:"size:16;default:'Both'" json:"audience"`
	Students            []Student    `gorm:"type:mediumtext;serializer:json" json:"students"`
	Staff               []Staff      `gorm:"type:mediumtext;serializer:json" json:"staff"`
	Attachments         []Attachment `gorm:"type:mediumtext;serializer:json" json:"attachments"`
	AuthorID            string       `gorm:"size:64;not null;index:idx_announcements_author_created,priority:1" json:"authorId"`
	CreatedAt           time.Time    `gorm:"index:idx_announcements_author_created,priority:2,sort:desc" json:"createdAt"`
}

// Clone returns a deep copy so callers can mutate slices without touching
// the original record.
func (a *Announcement) Clone() *Announcement {
	if a == nil {
		return nil
	}
	c := *a
	c.Tags = slices.Clone(a.Tags)
	c.Students = slices.Clone(a.Students)
	c.Staff = slices.Clone(a.Staff)
	c.Attachments = slices.Clone(a.Attachments)
	return &c
}

// Normalize replaces nil slices with empty ones so JSON encodes arrays.
func (a *Announcement) Normalize() {
	if a.Tags == nil {
		a.Tags = []string{}
	}
	if a.Students == nil {
		a.Students = []Student{}
	}
	if a.Staff == nil {
		a.Staff = []Staff{}
	}
	if a.Attachments == nil {
		a.Attachments = []Attachment{}
	}
}
