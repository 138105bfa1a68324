package normalize

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestURL(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"plain", "https://a.com/x", "https://a.com/x"},
		{"http upgraded", "http://a.com/x", "https://a.com/x"},
		{"scheme added", "a.com/x", "https://a.com/x"},
		{"host lowercased", "https://A.COM/x", "https://a.com/x"},
		{"www stripped", "https://www.a.com/x", "https://a.com/x"},
		{"trailing slash stripped", "https://a.com/x/", "https://a.com/x"},
		{"root slash kept", "https://a.com/", "https://a.com/"},
		{"utm stripped", "https://a.com/x?utm_source=tw&utm_medium=feed", "https://a.com/x"},
		{"tracking stripped", "https://a.com/x?fbclid=abc&gclid=def&ref=hn", "https://a.com/x"},
		{"real params kept sorted", "https://a.com/x?b=2&a=1", "https://a.com/x?a=1&b=2"},
		{"repeated params kept", "https://a.com/x?a=1&a=2&b=3", "https://a.com/x?a=1&a=2&b=3"},
		{"mixed params", "https://a.com/x?page=2&utm_campaign=q3", "https://a.com/x?page=2"},
		{"fragment dropped", "https://a.com/x#section", "https://a.com/x"},
		{"surrounding space", "  https://a.com/x  ", "https://a.com/x"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := URL(tt.in)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestURL_Invalid(t *testing.T) {
	for _, in := range []string{"", "   ", "https://"} {
		_, err := URL(in)
		assert.Error(t, err, "input %q", in)
	}
}

func TestURLHash_TrackingParamsCollide(t *testing.T) {
	a, err := URL("https://a.com/x?utm_source=1")
	require.NoError(t, err)
	b, err := URL("https://a.com/x")
	require.NoError(t, err)
	assert.Equal(t, URLHash(a), URLHash(b))
}

func TestURLHash_RepeatedParamMultiplicityDiffers(t *testing.T) {
	a, err := URL("https://a.com/x?a=1&a=2")
	require.NoError(t, err)
	b, err := URL("https://a.com/x?a=1")
	require.NoError(t, err)
	assert.NotEqual(t, URLHash(a), URLHash(b))
}

func TestURLHash_DistinctPathsDiffer(t *testing.T) {
	a, err := URL("https://a.com/x")
	require.NoError(t, err)
	b, err := URL("https://a.com/y")
	require.NoError(t, err)
	assert.NotEqual(t, URLHash(a), URLHash(b))
}

func TestHostname(t *testing.T) {
	n, err := URL("https://www.Example.com/path/")
	require.NoError(t, err)
	assert.Equal(t, "example.com", Hostname(n))
	assert.Empty(t, Hostname("://bad"))
}
