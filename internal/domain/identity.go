package domain

import (
	"crypto/sha256"
	"encoding/hex"
	"net/url"
	"strings"
)

// Fingerprint derives the stable identity of a record. The normalized URL is
// preferred; records without a usable URL fall back to title + source so that
// re-fetches of the same item always collapse onto one identity.
func Fingerprint(r Record) string {
	if key := normalizeURL(r.URL); key != "" {
		return hashKey(string(r.ContentType), key)
	}
	if no := r.ExtraField(ExtraApplicationNo); no != "" {
		return hashKey(string(r.ContentType), "appno:"+no)
	}
	title := strings.ToLower(strings.TrimSpace(r.Title))
	source := strings.ToLower(strings.TrimSpace(r.SourceName))
	return hashKey(string(r.ContentType), title+"|"+source)
}

func hashKey(parts ...string) string {
	sum := sha256.Sum256([]byte(strings.Join(parts, "\n")))
	return hex.EncodeToString(sum[:])
}

func normalizeURL(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return ""
	}

	parsed, err := url.Parse(raw)
	if err != nil || parsed.Host == "" {
		return ""
	}

	parsed.Scheme = strings.ToLower(parsed.Scheme)
	parsed.Host = strings.ToLower(parsed.Host)
	parsed.Fragment = ""
	parsed.Path = strings.TrimSuffix(parsed.Path, "/")

	return parsed.String()
}
