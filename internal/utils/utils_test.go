package utils

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSlugify(t *testing.T) {
	cases := map[string]string{
		"Web Development":      "web-development",
		"  C++ & Rust!!  ":     "c-rust",
		"Machine   Learning":   "machine-learning",
		"already-a-slug":       "already-a-slug",
		"Dash -- Heavy--Name ": "dash-heavy-name",
	}
	for in, want := range cases {
		assert.Equal(t, want, Slugify(in), in)
	}
}

func TestGetUserLevel(t *testing.T) {
	name, _ := GetUserLevel(0)
	assert.Equal(t, "Newbie", name)
	name, _ = GetUserLevel(100)
	assert.Equal(t, "Apprentice", name)
	name, _ = GetUserLevel(999)
	assert.Equal(t, "Hacker", name)
	name, _ = GetUserLevel(1000)
	assert.Equal(t, "Elite", name)
	name, _ = GetUserLevel(5000)
	assert.Equal(t, "Legend", name)
}

func TestPopularityScore(t *testing.T) {
	now := time.Now()

	// 不足一小时按一小时算
	fresh := PopularityScore(now.Add(-10*time.Minute), now, 10, 100, 10)
	assert.InDelta(t, 25.0, fresh, 1e-9)

	older := PopularityScore(now.Add(-48*time.Hour), now, 10, 100, 10)
	assert.Less(t, older, fresh)
}

func TestTTLCache(t *testing.T) {
	c, err := NewTTLCache[string](10, time.Minute)
	require.NoError(t, err)

	c.Set("thread:1:newest", "a")
	c.Set("thread:1:oldest", "b")
	c.Set("thread:2:newest", "c")

	v, ok := c.Get("thread:1:newest")
	require.True(t, ok)
	assert.Equal(t, "a", v)

	c.DeletePrefix("thread:1:")
	_, ok = c.Get("thread:1:newest")
	assert.False(t, ok)
	_, ok = c.Get("thread:2:newest")
	assert.True(t, ok)

	expired, err := NewTTLCache[int](10, -time.Second)
	require.NoError(t, err)
	expired.Set("k", 1)
	_, ok = expired.Get("k")
	assert.False(t, ok)
}

func TestRenderMarkdownSanitizes(t *testing.T) {
	out := RenderMarkdown("**bold** <script>alert(1)</script>")
	assert.Contains(t, out, "<strong>bold</strong>")
	assert.NotContains(t, out, "<script>")
}

func TestPasswordHash(t *testing.T) {
	hash, err := HashPassword("hunter22")
	require.NoError(t, err)
	assert.True(t, CheckPassword(hash, "hunter22"))
	assert.False(t, CheckPassword(hash, "wrong"))
}

func TestPagination(t *testing.T) {
	p, l := Pagination(0, 0, 50, 100)
	assert.Equal(t, 1, p)
	assert.Equal(t, 50, l)
	_, l = Pagination(2, 500, 50, 100)
	assert.Equal(t, 100, l)
}
