package metadata

import (
	"strings"

	"github.com/matzehuels/lamacheck/pkg/errors"
)

// SnapshotIndex is the per-version maven-metadata.xml of a snapshot. It maps
// the unversioned file names of a snapshot to their timestamped names.
type SnapshotIndex struct {
	ArtifactID  string
	Version     string // as declared, e.g. "1.0-SNAPSHOT"
	LastUpdated string
	Timestamp   string
	BuildNumber string

	values map[string]string // snapshotKey(classifier, ext) -> value
}

func snapshotKey(classifier, ext string) string {
	if classifier == "" {
		return ext
	}
	return classifier + ":" + ext
}

// ParseSnapshotIndex parses the snapshot index of artifactID. The versioning
// element is required; snapshotVersions is optional.
func ParseSnapshotIndex(data []byte, artifactID string) (*SnapshotIndex, error) {
	doc, err := decodeMetadata(data)
	if err != nil {
		return nil, err
	}
	if doc.Versioning == nil {
		return nil, errors.Wrap(errors.ErrCodeMalformedDocument, ErrMalformed, "snapshot index of %s has no versioning element", artifactID)
	}

	idx := &SnapshotIndex{
		ArtifactID:  artifactID,
		Version:     strings.TrimSpace(doc.Version),
		LastUpdated: strings.TrimSpace(doc.Versioning.LastUpdated),
		values:      make(map[string]string),
	}
	if s := doc.Versioning.Snapshot; s != nil {
		idx.Timestamp = strings.TrimSpace(s.Timestamp)
		idx.BuildNumber = strings.TrimSpace(s.BuildNumber)
	}
	for _, sv := range doc.Versioning.SnapshotVersions {
		ext, value := strings.TrimSpace(sv.Extension), strings.TrimSpace(sv.Value)
		if ext == "" || value == "" {
			return nil, errors.Wrap(errors.ErrCodeMalformedDocument, ErrMalformed, "snapshot version of %s without extension or value", artifactID)
		}
		key := snapshotKey(strings.TrimSpace(sv.Classifier), ext)
		if _, dup := idx.values[key]; dup {
			return nil, errors.Wrap(errors.ErrCodeMalformedDocument, ErrMalformed, "duplicate snapshot version %q of %s", key, artifactID)
		}
		idx.values[key] = value
	}
	return idx, nil
}

// Len returns the number of explicit snapshot versions.
func (idx *SnapshotIndex) Len() int { return len(idx.values) }

// Filename returns the file name of the snapshot file with the given
// classifier (may be empty) and extension: "artifactId-value[-classifier].ext".
// Without an explicit entry the name is built from the snapshot timestamp and
// build number when present, else from the declared version.
func (idx *SnapshotIndex) Filename(classifier, ext string) string {
	if value, ok := idx.values[snapshotKey(classifier, ext)]; ok {
		name := idx.ArtifactID + "-" + value
		if classifier != "" {
			name += "-" + classifier
		}
		return name + "." + ext
	}

	v := idx.Version
	if idx.Timestamp != "" && idx.BuildNumber != "" {
		v = strings.TrimSuffix(v, "SNAPSHOT") + idx.Timestamp + "-" + idx.BuildNumber
	}
	return idx.ArtifactID + "-" + v + "." + ext
}
