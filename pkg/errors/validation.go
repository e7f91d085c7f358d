package errors

import (
	"net/url"
	"regexp"
	"strings"
	"unicode"
)

// validateName checks the rules shared by every Maven identifier.
// It rejects names that could be used for path traversal when an identifier
// ends up in a repository URL.
//
// The validation rules are intentionally conservative:
//   - No empty names
//   - No control characters or whitespace
//   - No path traversal sequences (.., /, \)
//   - Maximum length of 256 characters
func validateName(kind, name string) error {
	if name == "" {
		return New(ErrCodeInvalidCoordinate, "%s cannot be empty", kind)
	}

	if len(name) > 256 {
		return New(ErrCodeInvalidCoordinate, "%s too long (max 256 characters)", kind)
	}

	for _, r := range name {
		if unicode.IsControl(r) || unicode.IsSpace(r) {
			return New(ErrCodeInvalidCoordinate, "%s contains invalid characters: %q", kind, name)
		}
	}

	for _, pattern := range []string{"..", "/", "\\", ":"} {
		if strings.Contains(name, pattern) {
			return New(ErrCodeInvalidCoordinate, "%s contains invalid characters: %q", kind, pattern)
		}
	}

	return nil
}

// groupIDRegex matches dotted Maven group ids such as "org.apache.commons".
var groupIDRegex = regexp.MustCompile(`^[A-Za-z0-9_\-]+(\.[A-Za-z0-9_\-]+)*$`)

// ValidateGroupID validates a Maven group id.
func ValidateGroupID(groupID string) error {
	if err := validateName("group id", groupID); err != nil {
		return err
	}
	if !groupIDRegex.MatchString(groupID) {
		return New(ErrCodeInvalidCoordinate, "invalid group id: %q", groupID)
	}
	return nil
}

// artifactIDRegex matches Maven artifact ids.
var artifactIDRegex = regexp.MustCompile(`^[A-Za-z0-9_\-.]+$`)

// ValidateArtifactID validates a Maven artifact id.
func ValidateArtifactID(artifactID string) error {
	if err := validateName("artifact id", artifactID); err != nil {
		return err
	}
	if !artifactIDRegex.MatchString(artifactID) {
		return New(ErrCodeInvalidCoordinate, "invalid artifact id: %q", artifactID)
	}
	return nil
}

// ValidateCoordinate validates a "groupId:artifactId" coordinate and returns
// its two parts.
func ValidateCoordinate(coord string) (groupID, artifactID string, err error) {
	parts := strings.Split(strings.TrimSpace(coord), ":")
	if len(parts) != 2 {
		return "", "", New(ErrCodeInvalidCoordinate, "invalid maven coordinate %q (expected groupId:artifactId)", coord)
	}
	if err := ValidateGroupID(parts[0]); err != nil {
		return "", "", err
	}
	if err := ValidateArtifactID(parts[1]); err != nil {
		return "", "", err
	}
	return parts[0], parts[1], nil
}

// repositoryIDRegex matches ids usable as file names.
var repositoryIDRegex = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9._\-]*$`)

// ValidateRepositoryID validates a repository id.
func ValidateRepositoryID(id string) error {
	if id == "" {
		return New(ErrCodeInvalidInput, "repository id cannot be empty")
	}
	if len(id) > 128 {
		return New(ErrCodeInvalidInput, "repository id too long (max 128 characters)")
	}
	if !repositoryIDRegex.MatchString(id) {
		return New(ErrCodeInvalidInput, "invalid repository id: %q", id)
	}
	return nil
}

// ValidateURL validates a repository URL.
// It ensures the URL parses, has a host and uses http or https.
func ValidateURL(rawURL string) error {
	if rawURL == "" {
		return New(ErrCodeInvalidURL, "URL cannot be empty")
	}

	u, err := url.Parse(rawURL)
	if err != nil {
		return Wrap(ErrCodeInvalidURL, err, "cannot parse URL %q", rawURL)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return New(ErrCodeInvalidURL, "URL must use http or https scheme: %q", rawURL)
	}
	if u.Host == "" {
		return New(ErrCodeInvalidURL, "URL has no host: %q", rawURL)
	}
	return nil
}
