// Package metadata parses the documents a Maven repository serves for an
// artifact: the version index (maven-metadata.xml), the per-version
// snapshot index and the project descriptor (POM).
//
// Parsers take raw bytes and never touch the network. Documents that are not
// well-formed or have an unexpected root element yield an error wrapping
// [ErrMalformed]; a version index without any version yields [ErrNoVersions].
package metadata

import (
	"bytes"
	"encoding/xml"
	stderrors "errors"
	"io"
	"slices"
	"strings"

	"github.com/matzehuels/lamacheck/pkg/errors"
	"github.com/matzehuels/lamacheck/pkg/version"
)

// Sentinel errors.
var (
	ErrMalformed  = stderrors.New("malformed document")
	ErrNoVersions = stderrors.New("no versions in version index")
)

// VersionIndex is the parsed maven-metadata.xml of an artifact.
type VersionIndex struct {
	GroupID     string
	ArtifactID  string
	LastUpdated string

	// Versions lists every version in document order, excluded ones included.
	Versions []*version.Version

	// LatestRelease is the greatest non-excluded release version, or nil.
	LatestRelease *version.Version
	// Latest is the greatest non-excluded version of any kind.
	Latest *version.Version
}

// Releases returns the release versions of the index in document order.
func (idx *VersionIndex) Releases() []*version.Version {
	var out []*version.Version
	for _, v := range idx.Versions {
		if v.IsRelease() {
			out = append(out, v)
		}
	}
	return out
}

// NewerThan returns the versions greater than ref in ascending order. A nil
// ref selects everything.
func (idx *VersionIndex) NewerThan(ref *version.Version, releasesOnly bool) []*version.Version {
	var out []*version.Version
	for _, v := range idx.Versions {
		if releasesOnly && !v.IsRelease() {
			continue
		}
		if ref == nil || v.GreaterThan(ref) {
			out = append(out, v)
		}
	}
	version.Sort(out)
	return out
}

type metadataDoc struct {
	XMLName    xml.Name
	GroupID    string         `xml:"groupId"`
	ArtifactID string         `xml:"artifactId"`
	Version    string         `xml:"version"`
	Versioning *versioningDoc `xml:"versioning"`
}

type versioningDoc struct {
	Release          string               `xml:"release"`
	Latest           string               `xml:"latest"`
	Versions         []string             `xml:"versions>version"`
	LastUpdated      string               `xml:"lastUpdated"`
	Snapshot         *snapshotDoc         `xml:"snapshot"`
	SnapshotVersions []snapshotVersionDoc `xml:"snapshotVersions>snapshotVersion"`
}

type snapshotDoc struct {
	Timestamp   string `xml:"timestamp"`
	BuildNumber string `xml:"buildNumber"`
}

type snapshotVersionDoc struct {
	Classifier string `xml:"classifier"`
	Extension  string `xml:"extension"`
	Value      string `xml:"value"`
}

func decodeMetadata(data []byte) (*metadataDoc, error) {
	var doc metadataDoc
	if err := decode(data, &doc); err != nil {
		return nil, err
	}
	if doc.XMLName.Local != "metadata" {
		return nil, errors.Wrap(errors.ErrCodeMalformedDocument, ErrMalformed, "unexpected root element %q", doc.XMLName.Local)
	}
	return &doc, nil
}

// decode unmarshals XML leniently: unknown entities are kept verbatim and
// non-UTF-8 charsets are read as-is.
func decode(data []byte, v any) error {
	d := xml.NewDecoder(bytes.NewReader(data))
	d.Strict = false
	d.Entity = xml.HTMLEntity
	d.CharsetReader = func(_ string, r io.Reader) (io.Reader, error) { return r, nil }
	if err := d.Decode(v); err != nil {
		return errors.Wrap(errors.ErrCodeMalformedDocument, stderrors.Join(ErrMalformed, err), "decode xml")
	}
	return nil
}

// ParseVersionIndex parses a maven-metadata.xml document. Versions whose
// original string is listed in excluded still appear in Versions but never
// become LatestRelease or Latest.
func ParseVersionIndex(data []byte, excluded []string) (*VersionIndex, error) {
	doc, err := decodeMetadata(data)
	if err != nil {
		return nil, err
	}

	idx := &VersionIndex{
		GroupID:    strings.TrimSpace(doc.GroupID),
		ArtifactID: strings.TrimSpace(doc.ArtifactID),
	}
	if vs := doc.Versioning; vs != nil {
		idx.LastUpdated = strings.TrimSpace(vs.LastUpdated)
		seen := make(map[string]bool)
		add := func(s string) {
			s = strings.TrimSpace(s)
			if s == "" || seen[s] {
				return
			}
			seen[s] = true
			v := version.Parse(s)
			idx.Versions = append(idx.Versions, v)
			if slices.Contains(excluded, s) {
				return
			}
			if v.IsRelease() {
				idx.LatestRelease = version.Max(idx.LatestRelease, v)
			}
			idx.Latest = version.Max(idx.Latest, v)
		}
		add(vs.Release)
		add(vs.Latest)
		for _, s := range vs.Versions {
			add(s)
		}
	}

	if idx.Latest == nil {
		return nil, ErrNoVersions
	}
	return idx, nil
}
