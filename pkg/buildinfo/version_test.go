package buildinfo

import (
	"runtime"
	"runtime/debug"
	"strings"
	"testing"
)

func TestFillFromModule(t *testing.T) {
	bi := &debug.BuildInfo{
		Main: debug.Module{Path: "github.com/matzehuels/lamacheck", Version: "v0.3.0"},
		Settings: []debug.BuildSetting{
			{Key: "vcs.revision", Value: "4f2c1e9"},
			{Key: "vcs.time", Value: "2024-05-01T10:00:00Z"},
		},
	}

	tests := []struct {
		name string
		in   Info
		want Info
	}{
		{
			"defaults are completed",
			Info{Version: "dev", Commit: "none", Date: "unknown"},
			Info{Version: "v0.3.0", Commit: "4f2c1e9", Date: "2024-05-01T10:00:00Z"},
		},
		{
			"ldflags win",
			Info{Version: "v1.0.0", Commit: "abc123", Date: "2025-01-01"},
			Info{Version: "v1.0.0", Commit: "abc123", Date: "2025-01-01"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := tt.in
			fillFromModule(&got, bi)
			if got != tt.want {
				t.Errorf("fillFromModule() = %+v, want %+v", got, tt.want)
			}
		})
	}

	devel := Info{Version: "dev"}
	fillFromModule(&devel, &debug.BuildInfo{Main: debug.Module{Version: "(devel)"}})
	if devel.Version != "dev" {
		t.Errorf("(devel) module version should be ignored, got %q", devel.Version)
	}
}

func TestGetAndTemplate(t *testing.T) {
	old := Version
	t.Cleanup(func() { Version = old })
	Version = "v9.9.9"

	info := Get()
	if info.Version != "v9.9.9" || info.GoVersion != runtime.Version() {
		t.Errorf("Get() = %+v", info)
	}
	if tmpl := Template(); !strings.Contains(tmpl, "v9.9.9") || !strings.HasPrefix(tmpl, "{{.Name}} version") {
		t.Errorf("Template() = %q", tmpl)
	}
}
