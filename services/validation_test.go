package services

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSafeText(t *testing.T) {
	assert.True(t, safeText("Fees & dues are due on 5 < 6 \"soon\""))
	assert.True(t, safeText("Line one\nLine two"))
	assert.False(t, safeText("<b>bold</b>"))
	assert.False(t, safeText(`<img src=x onerror="alert(1)">`))
	assert.False(t, safeText("nul\x00byte"))
	assert.False(t, safeText("hidden <!-- note --> text"))
}

func TestSafeTextAcceptsEntityText(t *testing.T) {
	assert.True(t, safeText("Use &amp; in HTML"))
	assert.True(t, safeText("a&nbsp;b"))
	assert.True(t, safeText("Write &lt;br&gt; for a line break"))
	assert.False(t, safeText("Use &amp; <script>alert(1)</script>"))
}

func TestValidAuthorID(t *testing.T) {
	assert.True(t, validAuthorID("teacher-1"))
	assert.True(t, validAuthorID("8a3d6f1e-5d2b-4f67-9a0c-1b2c3d4e5f60"))
	assert.True(t, validAuthorID("64b7f0c2e13a4f0012ab34cd"))
	assert.True(t, validAuthorID("jane.doe@uni.edu"))
	assert.False(t, validAuthorID(""))
	assert.False(t, validAuthorID("bad id"))
	assert.False(t, validAuthorID("-leading"))
	assert.False(t, validAuthorID("<img>"))
	assert.False(t, validAuthorID(strings.Repeat("a", 65)))
}

func TestValidEmail(t *testing.T) {
	assert.True(t, validEmail("student@uni.edu"))
	assert.False(t, validEmail("student@uni"))
	assert.False(t, validEmail("stu dent@uni.edu"))
	assert.False(t, validEmail("a@b.c"+string(make([]byte, 300))))
}

func TestParseInputTrimsTags(t *testing.T) {
	p, err := parseInput(AnnouncementInput{Tags: str(`[" exams ", "", "hall"]`)}, false)
	require.NoError(t, err)
	require.NotNil(t, p.tags)
	assert.Equal(t, []string{"exams", "hall"}, *p.tags)
	assert.Nil(t, p.title)
	assert.Nil(t, p.summary)
}

func TestParseInputEmptyArrayClears(t *testing.T) {
	p, err := parseInput(AnnouncementInput{Students: str(`[]`), Staff: str("null")}, false)
	require.NoError(t, err)
	require.NotNil(t, p.students)
	assert.Empty(t, *p.students)
	require.NotNil(t, p.staff)
	assert.Empty(t, *p.staff)
}
