// Package version parses and orders Maven artifact version strings.
//
// Maven versions are free-form. Most follow "major.minor.micro[-qualifier]",
// but repositories contain date stamps ("20050911"), revision numbers
// ("r1554M"), vendor suffixes ("1.7R2") and assorted separators. [Parse]
// never fails: every input yields a [Version] with a structured
// (major, minor, micro, qualifier) tuple used for ordering, while the
// original string is kept for identity.
//
// # Parsing
//
// Parsing tries, in order:
//   - the "LATEST" and "RELEASE" keywords, which sort above everything
//   - 8-digit date stamps, optionally prefixed with "v"
//   - old numeric build stamps such as "20041012.002804", rebased under 0.0
//   - a plain dotted parse that must render back to the exact input
//   - a tokenizer that splits on '.', '-' and '_' and keeps the original
//     text of the qualifier
//
// A version without qualifier is a release of its numeric prefix and sorts
// above any qualified sibling, so 1.0 > 1.0-beta.
//
// # Classification
//
// [Version.IsRelease] rejects qualifiers that contain a pre-release stopword
// (snapshot, alpha, beta, incubator, dev) or look like short build markers
// ("b01", "ea3", "M2", "rc1", "pre5", "M2.1"). [Version.IsSnapshot] checks
// for the "-SNAPSHOT" suffix.
//
// # Usage
//
//	v := version.Parse("2.2-beta-5")
//	v.Major()     // 2
//	v.Qualifier() // "beta-5"
//	v.IsRelease() // false
//
//	version.Parse("1.0").GreaterThan(version.Parse("1.0-beta")) // true
//
// Results are memoized, so repeated parsing of the same string is cheap.
// All functions are safe for concurrent use.
package version
