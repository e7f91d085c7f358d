package cli

import (
	"github.com/matzehuels/lamacheck/pkg/buildinfo"
)

// SetVersion records the release version, commit and build date injected
// into main at link time. Empty values keep what buildinfo already holds,
// so development builds still report the module version.
func SetVersion(version, commit, date string) {
	for _, f := range []struct {
		dst *string
		val string
	}{
		{&buildinfo.Version, version},
		{&buildinfo.Commit, commit},
		{&buildinfo.Date, date},
	} {
		if f.val != "" {
			*f.dst = f.val
		}
	}
}
