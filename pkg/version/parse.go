package version

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/charmbracelet/log"
	lru "github.com/hashicorp/golang-lru"
)

const cacheSize = 8192

var (
	parsed, _ = lru.New(cacheSize)

	numericStamp = regexp.MustCompile(`^[0-9]+(\.[0-9]+)+$`)
)

// Parse parses a Maven version string. It never fails: unrecognized input
// degrades to the qualifier of 0.0.0. Results are memoized by input string.
func Parse(s string) *Version {
	if v, ok := parsed.Get(s); ok {
		return v.(*Version)
	}
	v := parse(s)
	parsed.Add(s, v)
	return v
}

// structured is the intermediate (major, minor, micro, qualifier) tuple.
type structured struct {
	major, minor, micro int
	qualifier           string
}

func parse(s string) *Version {
	v := &Version{
		original: s,
		snapshot: strings.HasSuffix(s, "-SNAPSHOT"),
	}

	switch s {
	case Latest:
		v.rank = rankLatest
		v.release = true
		return v
	case Release:
		v.rank = rankRelease
		v.release = true
		return v
	}

	st := parseStructured(s)
	v.major, v.minor, v.micro = st.major, st.minor, st.micro
	v.qualifier = st.qualifier
	v.hasQualifier = st.qualifier != ""
	v.release = !v.hasQualifier || isReleaseQualifier(st.qualifier)
	return v
}

func parseStructured(s string) structured {
	switch {
	case len(s) == 8 && isUnsignedInt(s):
		return dotted(s[0:4] + "." + s[4:6] + "." + s[6:8])
	case len(s) == 9 && s[0] == 'v' && isUnsignedInt(s[1:]):
		return dotted(s[1:5] + "." + s[5:7] + "." + s[7:9])
	case len(s) > 8 && isUnsignedInt(s[:8]) && numericStamp.MatchString(s):
		// Early build stamps like "20041012.002804" must not outrank real versions.
		return dotted("0.0." + s)
	}

	if st := dotted(s); render(st.major, st.minor, st.micro, st.qualifier) == s {
		return st
	}
	return tokenized(s)
}

// dotted splits s on '.' into at most four fields: three numbers (0 when not
// numeric) and the remaining text as qualifier.
func dotted(s string) structured {
	var st structured
	parts := strings.SplitN(strings.TrimSpace(s), ".", 4)
	if len(parts) > 0 {
		st.major = atoi(parts[0], 0)
	}
	if len(parts) > 1 {
		st.minor = atoi(parts[1], 0)
	}
	if len(parts) > 2 {
		st.micro = atoi(parts[2], 0)
	}
	if len(parts) > 3 {
		st.qualifier = parts[3]
	}
	return st
}

func render(major, minor, micro int, qualifier string) string {
	var sb strings.Builder
	sb.WriteString(strconv.Itoa(major))
	sb.WriteByte('.')
	sb.WriteString(strconv.Itoa(minor))
	if micro > 0 || qualifier != "" {
		sb.WriteByte('.')
		sb.WriteString(strconv.Itoa(micro))
	}
	if qualifier != "" {
		sb.WriteByte('.')
		sb.WriteString(qualifier)
	}
	return sb.String()
}

func tokenized(s string) structured {
	tokens := tokenize(s)

	leading := 0
	for _, t := range tokens {
		if !isUnsignedInt(t) {
			break
		}
		leading++
	}

	switch {
	case leading == len(tokens):
		return dotted(strings.Join(tokens, "."))
	case leading > 0 && leading == len(tokens)-1:
		st := structured{qualifier: tokens[len(tokens)-1]}
		st.major = atoi(tokens[0], -1)
		if len(tokens) > 2 {
			st.minor = atoi(tokens[1], -1)
		}
		if len(tokens) > 3 {
			st.micro = atoi(tokens[2], -1)
		}
		return st
	case leading == 1:
		// "1.5R4.1": keep the original text after the major component.
		if off := len(tokens[0]) + 1; off < len(s) {
			return structured{major: atoi(tokens[0], -1), qualifier: s[off:]}
		}
	case leading == 2:
		// "1.0-dev-2.20021231.045254"
		if off := len(tokens[0]) + 1 + len(tokens[1]) + 1; off < len(s) {
			return structured{
				major:     atoi(tokens[0], -1),
				minor:     atoi(tokens[1], -1),
				qualifier: s[off:],
			}
		}
	}

	log.Debug("unrecognized version layout", "version", s, "tokens", tokens)
	return dotted("0.0.0." + s)
}

// tokenize splits s into at most four tokens. Only three top-level fields
// are split off so that "2.0.0-M2.1" keeps "M2.1" together.
func tokenize(s string) []string {
	fields := strings.SplitN(s, ".", 3)
	tokens := make([]string, 0, 4)

	for i, field := range fields {
		prev := len(tokens)
		sep := ""

		switch {
		case isUnsignedInt(field):
			tokens = append(tokens, field)
		case strings.Contains(field, "-"):
			sep = "-"
			tokens = scanWithSeparator(field, sep, tokens)
		case strings.Contains(field, "_"):
			sep = "_"
			tokens = scanWithSeparator(field, sep, tokens)
		case strings.HasPrefix(field, "r") && len(fields) == 1:
			tokens = appendRevision(tokens, field)
		default:
			// "1.7R2"
			tokens = append(tokens, field)
		}

		if len(tokens) <= 4 {
			continue
		}

		tokens = tokens[:prev]
		rest := ""
		if i+1 < len(fields) {
			rest = "." + strings.Join(fields[i+1:], ".")
		}
		switch {
		case prev >= 4:
			tokens[len(tokens)-1] += "." + field + rest
			return tokens
		case sep != "":
			tokens = append(tokens, strings.SplitN(field, sep, 4-prev)...)
		default:
			tokens = append(tokens, field)
		}
		tokens[len(tokens)-1] += rest
		return tokens
	}
	return tokens
}

// scanWithSeparator appends the leading numeric pieces of field and merges
// everything from the first non-numeric piece on into one token.
func scanWithSeparator(field, sep string, tokens []string) []string {
	pieces := strings.Split(field, sep)
	for i, p := range pieces {
		if !isUnsignedInt(p) {
			return append(tokens, strings.Join(pieces[i:], sep))
		}
		tokens = append(tokens, p)
	}
	return tokens
}

// appendRevision expands "r<digits><suffix>" (e.g. "r916", "r1554M") into
// three pseudo components plus the suffix.
func appendRevision(tokens []string, field string) []string {
	end := 1
	for end < len(field) && field[end] >= '0' && field[end] <= '9' {
		end++
	}
	n := atoi(field[1:end], -1)
	if n == -1 {
		return append(tokens, field)
	}
	tokens = append(tokens,
		strconv.Itoa(n/100),
		strconv.Itoa((n/10)%10),
		strconv.Itoa(n%10),
	)
	if suffix := field[end:]; strings.TrimSpace(suffix) != "" {
		tokens = append(tokens, suffix)
	}
	return tokens
}

// isUnsignedInt reports whether s is a non-empty run of ASCII digits that
// fits a 32-bit integer.
func isUnsignedInt(s string) bool {
	if s == "" {
		return false
	}
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	_, err := strconv.ParseInt(s, 10, 32)
	return err == nil
}

func atoi(s string, def int) int {
	if !isUnsignedInt(s) {
		return def
	}
	n, _ := strconv.Atoi(s)
	return n
}
