package normalize

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTitle(t *testing.T) {
	assert.Equal(t, "acme raises series a", Title("  Acme   Raises\tSeries A "))
	assert.Equal(t, Title("ACME RAISES SERIES A"), Title("acme raises series a"))
}

func TestDedupeKey(t *testing.T) {
	a := DedupeKey("a.com", "Acme raises Series A")
	b := DedupeKey("a.com", "ACME  raises   Series A")
	c := DedupeKey("b.com", "Acme raises Series A")
	d := DedupeKey("a.com", "Acme raises Series B")

	assert.True(t, strings.HasPrefix(a, "ht:"))
	assert.Equal(t, a, b, "same host and folded title must collide")
	assert.NotEqual(t, a, c, "different host must not collide")
	assert.NotEqual(t, a, d, "different title must not collide")
}

func TestCanonicalName(t *testing.T) {
	tests := []struct {
		title    string
		hostname string
		want     string
	}{
		{"Acme raises $5M - TechCrunch", "techcrunch.com", "Acme raises $5M"},
		{"Acme raises $5M | The Verge", "theverge.com", "Acme raises $5M"},
		{"Acme raises $5M :: Reuters", "reuters.com", "Acme raises $5M"},
		{"Acme raises $5M", "a.com", "Acme raises $5M"},
		{"", "a.com", "a.com"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, CanonicalName(tt.title, tt.hostname), "title %q", tt.title)
	}
}

func TestOneLiner(t *testing.T) {
	short := "Acme closed a Series A round."
	assert.Equal(t, short, OneLiner(short, ""))

	collapsed := OneLiner("Acme\nclosed a\tround.", "")
	assert.Equal(t, "Acme closed a round.", collapsed)

	long := strings.Repeat("word ", 40) + "end. " + strings.Repeat("tail ", 20)
	got := OneLiner(long, "")
	assert.LessOrEqual(t, len([]rune(got)), 120)

	noPunct := strings.Repeat("a", 200)
	got = OneLiner(noPunct, "")
	assert.Len(t, []rune(got), 120)
	assert.True(t, strings.HasSuffix(got, "..."))

	assert.Equal(t, "Fallback Title", OneLiner("", "Fallback Title"))
	assert.Empty(t, OneLiner("", ""))
}
