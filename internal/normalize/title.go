package normalize

import (
	"crypto/sha1"
	"encoding/hex"
	"regexp"
	"strings"

	"golang.org/x/text/cases"
)

// siteSuffixes match trailing publisher decorations like " - TechCrunch",
// " | The Verge" or " :: Reuters" that headlines commonly carry.
var siteSuffixes = []*regexp.Regexp{
	regexp.MustCompile(`\s*[-–—]\s*[^-–—|]+$`),
	regexp.MustCompile(`\s*\|\s*[^|]+$`),
	regexp.MustCompile(`\s*::\s*[^:]+$`),
}

var whitespace = regexp.MustCompile(`\s+`)

var caseFolder = cases.Fold()

// Title folds case and collapses runs of whitespace so that visually equal
// headlines compare equal. Used as the title half of the dedupe key.
func Title(title string) string {
	t := whitespace.ReplaceAllString(strings.TrimSpace(title), " ")
	return caseFolder.String(t)
}

// DedupeKey fingerprints a (hostname, title) pair. Different URLs on the same
// host carrying the same headline collide intentionally.
func DedupeKey(hostname, title string) string {
	key := strings.ToLower(hostname) + "|" + Title(title)
	sum := sha1.Sum([]byte(key))
	return "ht:" + hex.EncodeToString(sum[:])
}

// CanonicalName strips the trailing site suffix from a headline. Falls back
// to the hostname, then the raw title, when stripping leaves nothing.
func CanonicalName(title, hostname string) string {
	cleaned := strings.TrimSpace(title)
	for _, re := range siteSuffixes {
		cleaned = re.ReplaceAllString(cleaned, "")
	}
	cleaned = strings.TrimSpace(cleaned)
	if cleaned != "" {
		return cleaned
	}
	if hostname != "" {
		return hostname
	}
	return strings.TrimSpace(title)
}

const oneLinerMax = 120

// OneLiner condenses a snippet into a single digest line of at most 120
// characters, preferring to cut at a sentence boundary past character 80.
// Falls back to the title when the snippet is empty.
func OneLiner(snippet, title string) string {
	text := whitespace.ReplaceAllString(strings.TrimSpace(snippet), " ")
	if text == "" {
		text = whitespace.ReplaceAllString(strings.TrimSpace(title), " ")
	}
	if text == "" {
		return ""
	}

	runes := []rune(text)
	if len(runes) <= oneLinerMax {
		return text
	}

	truncated := runes[:oneLinerMax]
	for i := len(truncated) - 1; i >= 80; i-- {
		switch truncated[i] {
		case '.', '!', '?', ';', '。', '！', '？', '；':
			return string(truncated[:i+1])
		}
	}
	return string(runes[:oneLinerMax-3]) + "..."
}
