package model

import (
	"net/url"
	"strings"
	"time"
)

// Layout is the directory layout of a Maven repository.
type Layout string

const (
	// LayoutDefault is the Maven 2+ layout (groupId path segments).
	LayoutDefault Layout = "default"
	// LayoutLegacy is the Maven 1 layout. Legacy repositories are never queried.
	LayoutLegacy Layout = "legacy"
)

// Ids and URLs of the central repositories seeded on first start.
const (
	CentralID1  = "central1"
	CentralID2  = "central2"
	CentralURL1 = "https://repo1.maven.org/maven2/"
	CentralURL2 = "https://repo.maven.apache.org/maven2/"
)

// Repository is a remote Maven repository.
type Repository struct {
	ID      string    `json:"id"`
	URL     string    `json:"url"` // always ends with "/"
	Layout  Layout    `json:"layout"`
	Invalid bool      `json:"invalid,omitempty"`
	Note    string    `json:"note,omitempty"`
	Created time.Time `json:"created"`
}

// IsCentral reports whether r is one of the central repositories.
func (r Repository) IsCentral() bool {
	return r.ID == CentralID1 || r.ID == CentralID2
}

// Valid reports whether the repository has not been invalidated.
func (r Repository) Valid() bool { return !r.Invalid }

// IsLegacy reports whether the repository uses the legacy layout.
func (r Repository) IsLegacy() bool { return r.Layout == LayoutLegacy }

// Usable reports whether the repository may be queried: valid and not legacy.
func (r Repository) Usable() bool { return r.Valid() && !r.IsLegacy() }

// SeedRepositories returns the central repositories every registry starts with.
func SeedRepositories(now time.Time) []Repository {
	return []Repository{
		{ID: CentralID1, URL: CentralURL1, Layout: LayoutDefault, Created: now},
		{ID: CentralID2, URL: CentralURL2, Layout: LayoutDefault, Created: now},
	}
}

// NormalizeURL trims s and guarantees a trailing slash. The empty string
// stays empty.
func NormalizeURL(s string) string {
	s = strings.TrimSpace(s)
	if s == "" || strings.HasSuffix(s, "/") {
		return s
	}
	return s + "/"
}

// ParseLayout maps a declared layout to a Layout; anything but "legacy"
// is the default layout.
func ParseLayout(s string) Layout {
	if strings.EqualFold(strings.TrimSpace(s), string(LayoutLegacy)) {
		return LayoutLegacy
	}
	return LayoutDefault
}

// RepositoryIDFromURL derives a file-name safe id from a repository URL's
// host and path, e.g. "https://repo.spring.io/release/" becomes
// "repo.spring.io-release".
func RepositoryIDFromURL(rawURL string) string {
	u, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil || u.Host == "" {
		return SanitizeID(rawURL)
	}
	return SanitizeID(u.Host + "/" + u.Path)
}

// SanitizeID replaces every character outside [A-Za-z0-9._-] with '-',
// collapses runs of '-' and trims leading and trailing separators.
func SanitizeID(s string) string {
	var sb strings.Builder
	dash := false
	for _, r := range strings.TrimSpace(s) {
		ok := r == '.' || r == '_' || r == '-' ||
			(r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9')
		if !ok || r == '-' {
			if !dash {
				sb.WriteByte('-')
			}
			dash = true
			continue
		}
		sb.WriteRune(r)
		dash = false
	}
	return strings.Trim(sb.String(), "-._")
}
