package version

import (
	"cmp"
	"regexp"
	"slices"
	"strings"
)

// Keywords Maven accepts in place of a concrete version.
const (
	Latest  = "LATEST"
	Release = "RELEASE"
)

// rank orders the keyword sentinels above every concrete version.
const (
	rankConcrete = iota
	rankRelease
	rankLatest
)

// Version is an immutable, parsed Maven version.
//
// Two versions are Equal only if their original strings match; Compare
// orders by the structured value, so "1.0" and "1.0.0" compare as equal
// without being Equal.
type Version struct {
	original     string
	rank         int
	major        int
	minor        int
	micro        int
	qualifier    string
	hasQualifier bool
	snapshot     bool
	release      bool
}

// Original returns the version string exactly as it was parsed, or "" for
// a nil version.
func (v *Version) Original() string {
	if v == nil {
		return ""
	}
	return v.original
}

// Major returns the major component.
func (v *Version) Major() int { return v.major }

// Minor returns the minor component.
func (v *Version) Minor() int { return v.minor }

// Micro returns the micro component.
func (v *Version) Micro() int { return v.micro }

// Qualifier returns the qualifier, or "" for a plain release.
func (v *Version) Qualifier() string { return v.qualifier }

// HasQualifier reports whether the version carries a qualifier.
func (v *Version) HasQualifier() bool { return v.hasQualifier }

// IsSnapshot reports whether the original string ends with "-SNAPSHOT".
func (v *Version) IsSnapshot() bool { return v.snapshot }

// IsRelease reports whether the version is a release, i.e. its qualifier
// (if any) does not mark a pre-release.
func (v *Version) IsRelease() bool { return v.release }

// IsKeyword reports whether the version is one of the LATEST/RELEASE keywords.
func (v *Version) IsKeyword() bool { return v.rank != rankConcrete }

// String renders the structured value: major.minor always, micro when it is
// non-zero or a qualifier follows, then the qualifier. Keywords render as
// themselves.
func (v *Version) String() string {
	if v == nil {
		return ""
	}
	if v.rank != rankConcrete {
		return v.original
	}
	return render(v.major, v.minor, v.micro, v.qualifier)
}

// Equal reports whether both versions were parsed from the same string.
// A nil version equals only another nil version.
func (v *Version) Equal(o *Version) bool {
	if v == nil || o == nil {
		return v == o
	}
	return v.original == o.original
}

// Compare orders v against o: keywords first, then major, minor and micro
// numerically, then the qualifier. A missing qualifier sorts above any
// present one; present qualifiers compare byte-wise.
func (v *Version) Compare(o *Version) int {
	if c := cmp.Compare(v.rank, o.rank); c != 0 {
		return c
	}
	if c := cmp.Compare(v.major, o.major); c != 0 {
		return c
	}
	if c := cmp.Compare(v.minor, o.minor); c != 0 {
		return c
	}
	if c := cmp.Compare(v.micro, o.micro); c != 0 {
		return c
	}
	switch {
	case !v.hasQualifier && !o.hasQualifier:
		return 0
	case !v.hasQualifier:
		return 1
	case !o.hasQualifier:
		return -1
	}
	return strings.Compare(v.qualifier, o.qualifier)
}

// GreaterThan reports whether v sorts strictly after o.
func (v *Version) GreaterThan(o *Version) bool { return v.Compare(o) > 0 }

// MarshalText encodes the version as its original string.
func (v *Version) MarshalText() ([]byte, error) {
	return []byte(v.original), nil
}

// UnmarshalText parses text into v.
func (v *Version) UnmarshalText(text []byte) error {
	*v = *Parse(string(text))
	return nil
}

// Compare orders two versions, treating nil as smaller than any version.
// It is suitable for [slices.SortFunc].
func Compare(a, b *Version) int {
	switch {
	case a == nil && b == nil:
		return 0
	case a == nil:
		return -1
	case b == nil:
		return 1
	}
	return a.Compare(b)
}

// Max returns the greater of a and b. Either may be nil; on a tie a wins.
func Max(a, b *Version) *Version {
	if Compare(b, a) > 0 {
		return b
	}
	return a
}

// Sort orders versions ascending in place.
func Sort(vs []*Version) {
	slices.SortStableFunc(vs, Compare)
}

// Optional parses s, returning nil for the empty string.
func Optional(s string) *Version {
	if s == "" {
		return nil
	}
	return Parse(s)
}

// prereleaseWords mark a qualifier as pre-release when contained anywhere.
var prereleaseWords = []string{"snapshot", "alpha", "beta", "incubator", "dev"}

// prereleasePatterns catch build markers like "b197", "M5", "pre7a" and "M2.1".
var prereleasePatterns = []*regexp.Regexp{
	regexp.MustCompile(`^.*(b|ea|m|rc|pre)[0-9]+[a-zA-Z]*$`),
	regexp.MustCompile(`^.*(b|ea|m|rc|pre)[0-9]+(?:\.[0-9]+)$`),
}

func isReleaseQualifier(qualifier string) bool {
	q := strings.ToLower(qualifier)
	for _, w := range prereleaseWords {
		if strings.Contains(q, w) {
			return false
		}
	}
	for _, re := range prereleasePatterns {
		if re.MatchString(q) {
			return false
		}
	}
	return true
}
