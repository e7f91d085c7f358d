package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"

	"github.com/matzehuels/lamacheck/pkg/config"
	"github.com/matzehuels/lamacheck/pkg/errors"
	"github.com/matzehuels/lamacheck/pkg/model"
	"github.com/matzehuels/lamacheck/pkg/observability"
	"github.com/matzehuels/lamacheck/pkg/registry"
	"github.com/matzehuels/lamacheck/pkg/store"
	"github.com/matzehuels/lamacheck/pkg/updater"
)

// testEnv is a config file pointing the store and the cache into a
// temporary directory.
type testEnv struct {
	t        *testing.T
	config   string
	registry string
	cacheDir string
}

func newTestEnv(t *testing.T, extra ...string) *testEnv {
	t.Helper()
	t.Setenv(config.EnvStoreDSN, "")
	t.Setenv(config.EnvRedisAddr, "")
	t.Cleanup(observability.Reset)

	dir := t.TempDir()
	env := &testEnv{
		t:        t,
		config:   filepath.Join(dir, "config.toml"),
		registry: filepath.Join(dir, "data", "registry.json"),
		cacheDir: filepath.Join(dir, "cache"),
	}
	content := "[store]\ndsn = '" + env.registry + "'\n\n[cache]\ndir = '" + env.cacheDir + "'\n"
	for _, s := range extra {
		content += "\n" + s + "\n"
	}
	if err := os.WriteFile(env.config, []byte(content), 0600); err != nil {
		t.Fatal(err)
	}
	return env
}

// run executes the root command with args against the environment.
func (e *testEnv) run(args ...string) error {
	e.t.Helper()
	root := New(io.Discard, LogInfo).RootCommand()
	root.SetArgs(append([]string{"--config", e.config}, args...))
	root.SetOut(io.Discard)
	root.SetErr(io.Discard)
	return root.ExecuteContext(context.Background())
}

// snapshot reads the persisted registry.
func (e *testEnv) snapshot() *registry.Snapshot {
	e.t.Helper()
	fs, err := store.NewFileStore(e.registry)
	if err != nil {
		e.t.Fatal(err)
	}
	snap, err := fs.Load(context.Background())
	if err != nil {
		e.t.Fatal(err)
	}
	if snap == nil {
		e.t.Fatal("registry was never saved")
	}
	return snap
}

// seed persists snap as the registry contents.
func (e *testEnv) seed(snap *registry.Snapshot) {
	e.t.Helper()
	fs, err := store.NewFileStore(e.registry)
	if err != nil {
		e.t.Fatal(err)
	}
	if err := fs.Save(context.Background(), snap); err != nil {
		e.t.Fatal(err)
	}
}

func TestArtifactsLifecycle(t *testing.T) {
	env := newTestEnv(t)

	steps := [][]string{
		{"artifacts", "add", "org.apache.commons:commons-lang3", "pkg:maven/com.google.guava/guava@33.0.0-jre"},
		{"artifacts", "add", "org.apache.commons:commons-lang3"},
		{"artifacts", "exclude", "com.google.guava:guava", "1.0", "2.0"},
		{"artifacts", "exclude", "--undo", "com.google.guava:guava", "2.0"},
		{"artifacts", "list"},
		{"artifacts", "list", "--plugins"},
		{"artifacts", "show", "pkg:maven/com.google.guava/guava"},
		{"artifacts", "remove", "org.apache.commons:commons-lang3"},
	}
	for _, args := range steps {
		if err := env.run(args...); err != nil {
			t.Fatalf("%v: %v", args, err)
		}
	}

	snap := env.snapshot()
	if len(snap.Artifacts) != 1 {
		t.Fatalf("artifacts = %d, want 1", len(snap.Artifacts))
	}
	a := snap.Artifacts[0]
	if a.ID() != "com.google.guava:guava" {
		t.Errorf("artifact = %s", a.ID())
	}
	if len(a.ExcludedVersions) != 1 || a.ExcludedVersions[0] != "1.0" {
		t.Errorf("ExcludedVersions = %v, want [1.0]", a.ExcludedVersions)
	}
	if len(snap.Repositories) != 2 {
		t.Errorf("repositories = %d, want the two seeded central repositories", len(snap.Repositories))
	}
}

func TestArtifactsErrors(t *testing.T) {
	env := newTestEnv(t)

	tests := []struct {
		name string
		args []string
		code errors.Code
	}{
		{"malformed coordinate", []string{"artifacts", "add", "commons-lang3"}, errors.ErrCodeInvalidCoordinate},
		{"bad group id", []string{"artifacts", "add", "org/apache:lang"}, errors.ErrCodeInvalidCoordinate},
		{"show unknown", []string{"artifacts", "show", "org.example:missing"}, errors.ErrCodeNotFound},
		{"remove unknown", []string{"artifacts", "remove", "org.example:missing"}, errors.ErrCodeNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := env.run(tt.args...)
			if !errors.Is(err, tt.code) {
				t.Errorf("error = %v, want code %s", err, tt.code)
			}
		})
	}
}

func TestReposCommands(t *testing.T) {
	env := newTestEnv(t)
	env.seed(&registry.Snapshot{
		Repositories: []model.Repository{
			{ID: model.CentralID1, URL: model.CentralURL1, Layout: model.LayoutDefault},
			{ID: "spring", URL: "https://repo.spring.io/release/", Layout: model.LayoutDefault, Invalid: true, Note: "Found no artifacts"},
		},
	})

	steps := [][]string{
		{"repos", "add", "jboss", "https://repository.jboss.org/nexus/content/groups/public"},
		{"repos", "add", "--layout", "legacy", "old", "https://old.example.com/maven/"},
		{"repos", "list"},
		{"repos", "list", "--invalid"},
		{"repos", "list", "--empty"},
		{"repos", "reset", "spring", "old"},
	}
	for _, args := range steps {
		if err := env.run(args...); err != nil {
			t.Fatalf("%v: %v", args, err)
		}
	}

	got := map[string]model.Repository{}
	for _, r := range env.snapshot().Repositories {
		got[r.ID] = r
	}
	if len(got) != 4 {
		t.Fatalf("repositories = %v", got)
	}
	if r := got["spring"]; r.Invalid || r.Note != "" {
		t.Errorf("spring = %+v, want reset", r)
	}
	if r := got["old"]; !r.Invalid || r.Layout != model.LayoutLegacy {
		t.Errorf("old = %+v, want invalid legacy repository", r)
	}
	if r := got["jboss"]; r.Invalid || r.URL != "https://repository.jboss.org/nexus/content/groups/public/" {
		t.Errorf("jboss = %+v", r)
	}
}

func TestReposErrors(t *testing.T) {
	env := newTestEnv(t)

	if err := env.run("repos", "add", "central", model.CentralURL1); err == nil {
		t.Error("adding a known URL should fail")
	}
	if err := env.run("repos", "add", "bad", "ftp://example.com/"); !errors.Is(err, errors.ErrCodeInvalidURL) {
		t.Errorf("ftp URL error = %v", err)
	}
	if err := env.run("repos", "reset", "missing"); !errors.Is(err, errors.ErrCodeNotFound) {
		t.Errorf("reset unknown error = %v", err)
	}
}

func TestCompletion(t *testing.T) {
	env := newTestEnv(t)
	if err := env.run("artifacts", "add", "org.slf4j:slf4j-api", "org.slf4j:slf4j-simple", "junit:junit"); err != nil {
		t.Fatal(err)
	}
	env.seed(&registry.Snapshot{
		Artifacts: env.snapshot().Artifacts,
		Repositories: []model.Repository{
			{ID: model.CentralID1, URL: model.CentralURL1, Layout: model.LayoutDefault},
			{ID: "spring", URL: "https://repo.spring.io/release/", Layout: model.LayoutDefault, Invalid: true},
			{ID: "old", URL: "https://old.example.com/", Layout: model.LayoutLegacy, Invalid: true},
		},
	})

	c := New(io.Discard, LogInfo)
	c.configPath = env.config
	cmd := &cobra.Command{}
	cmd.SetContext(context.Background())

	tests := []struct {
		name string
		fn   func(*cobra.Command, []string, string) ([]string, cobra.ShellCompDirective)
		args []string
		arg  string
		want []string
	}{
		{"artifact prefix", c.completeArtifactIDs, nil, "org.slf4j:", []string{"org.slf4j:slf4j-api", "org.slf4j:slf4j-simple"}},
		{"artifact second arg", c.completeArtifactIDs, []string{"junit:junit"}, "", nil},
		{"remove skips given", c.completeTrackedArtifacts, []string{"org.slf4j:slf4j-api"}, "org.", []string{"org.slf4j:slf4j-simple"}},
		{"invalid repos", c.completeInvalidRepos, nil, "", []string{"spring"}},
		{"invalid repos given", c.completeInvalidRepos, []string{"spring"}, "", []string{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, dir := tt.fn(cmd, tt.args, tt.arg)
			if dir != cobra.ShellCompDirectiveNoFileComp {
				t.Errorf("directive = %v", dir)
			}
			if fmt.Sprint(got) != fmt.Sprint(tt.want) {
				t.Errorf("completions = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestVersionCommands(t *testing.T) {
	env := newTestEnv(t)
	for _, args := range [][]string{
		{"version", "parse", "1.0", "2.0-beta-1", "1.0-SNAPSHOT", "RELEASE"},
		{"version", "compare", "1.0", "1.0.1"},
	} {
		if err := env.run(args...); err != nil {
			t.Errorf("%v: %v", args, err)
		}
	}
}

func TestCompareSymbol(t *testing.T) {
	tests := map[int]string{-3: "<", 0: "=", 1: ">"}
	for cmp, want := range tests {
		if got := compareSymbol(cmp); got != want {
			t.Errorf("compareSymbol(%d) = %q, want %q", cmp, got, want)
		}
	}
}

func TestCycleProgress(t *testing.T) {
	tests := []struct {
		st   updater.Status
		want string
	}{
		{updater.Status{}, "Planning update cycle..."},
		{updater.Status{Running: true}, "Planning update cycle..."},
		{updater.Status{Running: true, Search: 2, Refresh: 5, Discover: 1, Done: 3}, "Update cycle: 3/8 tasks"},
		{updater.Status{Running: true, Refresh: 5, NewArtifacts: 2, NewRepos: 1, Done: 6}, "Update cycle: 6/8 tasks"},
	}
	for _, tt := range tests {
		if got := cycleProgress(tt.st); got != tt.want {
			t.Errorf("cycleProgress(%+v) = %q, want %q", tt.st, got, tt.want)
		}
	}
}

func TestLoadConfigLogLevel(t *testing.T) {
	env := newTestEnv(t, "[log]\nlevel = 'error'")

	c := New(io.Discard, LogInfo)
	c.configPath = env.config
	if _, err := c.loadConfig(); err != nil {
		t.Fatal(err)
	}
	if c.Logger.GetLevel() != log.ErrorLevel {
		t.Errorf("level = %v, want error from the config file", c.Logger.GetLevel())
	}

	c = New(io.Discard, LogInfo)
	c.configPath = env.config
	c.SetLogLevel(LogDebug)
	if _, err := c.loadConfig(); err != nil {
		t.Fatal(err)
	}
	if c.Logger.GetLevel() != log.DebugLevel {
		t.Errorf("level = %v, want --verbose to win", c.Logger.GetLevel())
	}
}

func TestNewCache(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	tests := []struct {
		name    string
		cfg     config.CacheConfig
		noCache bool
		want    string
	}{
		{"no-cache flag", config.CacheConfig{Backend: config.CacheFile, Dir: dir}, true, "cache.Noop"},
		{"none backend", config.CacheConfig{Backend: config.CacheNone}, false, "cache.Noop"},
		{"file backend", config.CacheConfig{Backend: config.CacheFile, Dir: dir}, false, "*cache.FileCache"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, err := newCache(ctx, tt.cfg, tt.noCache)
			if err != nil {
				t.Fatal(err)
			}
			defer c.Close()
			if got := typeName(c); got != tt.want {
				t.Errorf("newCache() = %s, want %s", got, tt.want)
			}
		})
	}
}

func typeName(v any) string {
	return fmt.Sprintf("%T", v)
}
