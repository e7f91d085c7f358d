package cli

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/matzehuels/lamacheck/pkg/cache"
)

func TestCacheDirXDG(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())
	t.Setenv("XDG_CACHE_HOME", "/tmp/custom-cache")

	dir, err := New(io.Discard, LogInfo).cacheDir()
	if err != nil {
		t.Fatalf("cacheDir() error: %v", err)
	}
	expected := filepath.Join("/tmp/custom-cache", appName)
	if dir != expected {
		t.Errorf("cacheDir() with XDG_CACHE_HOME = %q, want %q", dir, expected)
	}
}

func TestCacheDirStructure(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())
	t.Setenv("XDG_CACHE_HOME", "")

	dir, err := New(io.Discard, LogInfo).cacheDir()
	if err != nil {
		t.Fatalf("cacheDir() error: %v", err)
	}

	// Verify the expected structure: $HOME/.cache/lamacheck
	home, _ := os.UserHomeDir()
	expected := filepath.Join(home, ".cache", appName)
	if dir != expected {
		t.Errorf("cacheDir() = %q, want %q", dir, expected)
	}
}

func TestCacheDirFromConfig(t *testing.T) {
	env := newTestEnv(t)

	c := New(io.Discard, LogInfo)
	c.configPath = env.config
	dir, err := c.cacheDir()
	if err != nil {
		t.Fatalf("cacheDir() error: %v", err)
	}
	if dir != env.cacheDir {
		t.Errorf("cacheDir() = %q, want %q", dir, env.cacheDir)
	}
}

func TestCacheCommands(t *testing.T) {
	env := newTestEnv(t)

	if err := env.run("cache", "stats"); err != nil {
		t.Fatalf("cache stats on a missing dir: %v", err)
	}

	fc, err := cache.NewFileCache(env.cacheDir)
	if err != nil {
		t.Fatal(err)
	}
	ctx := context.Background()
	for _, u := range []string{
		"https://repo1.maven.org/maven2/junit/junit/maven-metadata.xml",
		"https://repo1.maven.org/maven2/junit/junit/4.13.2/junit-4.13.2.pom",
		"https://repo.spring.io/release/org/springframework/spring-core/maven-metadata.xml",
	} {
		if err := fc.Set(ctx, cache.DocumentKey(u), []byte("doc"), time.Hour); err != nil {
			t.Fatal(err)
		}
	}

	for _, args := range [][]string{
		{"cache", "stats"},
		{"cache", "path"},
		{"cache", "clear", "repo.spring.io"},
	} {
		if err := env.run(args...); err != nil {
			t.Fatalf("%v: %v", args, err)
		}
	}
	stats, err := fc.Stats()
	if err != nil {
		t.Fatal(err)
	}
	if len(stats) != 1 || stats[0].Host != "repo1.maven.org" || stats[0].Entries != 2 {
		t.Fatalf("stats after clearing one host = %+v", stats)
	}

	if err := env.run("cache", "clear"); err != nil {
		t.Fatalf("cache clear: %v", err)
	}
	entries, err := os.ReadDir(env.cacheDir)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 0 {
		t.Errorf("cache dir still holds %d entries", len(entries))
	}
}

func TestFormatBytes(t *testing.T) {
	tests := map[int64]string{
		0:       "0 B",
		1023:    "1023 B",
		1024:    "1.0 KiB",
		1536:    "1.5 KiB",
		5 << 20: "5.0 MiB",
		3 << 30: "3.0 GiB",
	}
	for n, want := range tests {
		if got := formatBytes(n); got != want {
			t.Errorf("formatBytes(%d) = %q, want %q", n, got, want)
		}
	}
}
