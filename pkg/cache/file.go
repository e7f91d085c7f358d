package cache

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"
)

// ErrInvalidKey is returned for keys that do not map to a path below the
// cache directory.
var ErrInvalidKey = errors.New("invalid cache key")

// entryMagic starts the header line of every cache file. The rest of the
// line is the expiry in Unix nanoseconds, 0 for none.
const entryMagic = "lamacheck-cache"

// FileCache stores one file per key below a root directory. Keys produced by
// [DocumentKey] put each document at <dir>/<host>/<path>.
type FileCache struct {
	dir string
	now func() time.Time
}

// NewFileCache creates the cache directory if needed.
func NewFileCache(dir string) (*FileCache, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create cache dir: %w", err)
	}
	return &FileCache{dir: dir, now: time.Now}, nil
}

// Dir returns the root directory.
func (c *FileCache) Dir() string { return c.dir }

// Get reads an entry. Expired or unreadable entries are removed and reported
// as a miss.
func (c *FileCache) Get(ctx context.Context, key string) ([]byte, bool, error) {
	p, err := c.path(key)
	if err != nil {
		return nil, false, err
	}
	raw, err := os.ReadFile(p)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}

	expires, data, ok := decodeEntry(raw)
	if !ok || (!expires.IsZero() && c.now().After(expires)) {
		_ = os.Remove(p)
		return nil, false, nil
	}
	return data, true, nil
}

// Set writes an entry through a temporary file so readers never observe a
// partial document.
func (c *FileCache) Set(ctx context.Context, key string, data []byte, ttl time.Duration) error {
	p, err := c.path(key)
	if err != nil {
		return err
	}
	var expires time.Time
	if ttl > 0 {
		expires = c.now().Add(ttl)
	}

	if err := os.MkdirAll(filepath.Dir(p), 0755); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(filepath.Dir(p), "."+filepath.Base(p)+"-*")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(encodeEntry(expires, data)); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), p)
}

// Delete removes an entry. Deleting a missing entry is not an error.
func (c *FileCache) Delete(ctx context.Context, key string) error {
	p, err := c.path(key)
	if err != nil {
		return err
	}
	if err := os.Remove(p); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	return nil
}

// Close is a no-op.
func (c *FileCache) Close() error { return nil }

// Purge removes every entry stored for host, or every entry when host is
// empty, and returns the number of entries removed.
func (c *FileCache) Purge(host string) (int, error) {
	var roots []string
	if host != "" {
		if !fs.ValidPath(host) || strings.Contains(host, "/") {
			return 0, fmt.Errorf("%w: host %q", ErrInvalidKey, host)
		}
		roots = []string{filepath.Join(c.dir, strings.ToLower(host))}
	} else {
		dirs, err := os.ReadDir(c.dir)
		if err != nil {
			return 0, err
		}
		for _, d := range dirs {
			roots = append(roots, filepath.Join(c.dir, d.Name()))
		}
	}

	removed := 0
	for _, root := range roots {
		n, err := countEntries(root)
		if errors.Is(err, fs.ErrNotExist) {
			continue
		}
		if err != nil {
			return removed, err
		}
		if err := os.RemoveAll(root); err != nil {
			return removed, err
		}
		removed += n
	}
	return removed, nil
}

// HostStats summarizes the entries stored for one host.
type HostStats struct {
	Host    string
	Entries int
	Bytes   int64
	Expired int
}

// Stats reports per-host usage, sorted by host.
func (c *FileCache) Stats() ([]HostStats, error) {
	dirs, err := os.ReadDir(c.dir)
	if err != nil {
		return nil, err
	}
	var out []HostStats
	for _, d := range dirs {
		if !d.IsDir() {
			continue
		}
		st := HostStats{Host: d.Name()}
		err := walkEntries(filepath.Join(c.dir, d.Name()), func(p string, info fs.FileInfo) {
			st.Entries++
			st.Bytes += info.Size()
			if c.expired(p) {
				st.Expired++
			}
		})
		if err != nil {
			return nil, err
		}
		out = append(out, st)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Host < out[j].Host })
	return out, nil
}

func (c *FileCache) expired(p string) bool {
	f, err := os.Open(p)
	if err != nil {
		return false
	}
	defer f.Close()
	line, err := bufio.NewReader(f).ReadBytes('\n')
	if err != nil {
		return true
	}
	expires, _, ok := decodeEntry(line)
	return !ok || (!expires.IsZero() && c.now().After(expires))
}

func (c *FileCache) path(key string) (string, error) {
	if !fs.ValidPath(key) || key == "." {
		return "", fmt.Errorf("%w: %q", ErrInvalidKey, key)
	}
	return filepath.Join(c.dir, filepath.FromSlash(key)), nil
}

func encodeEntry(expires time.Time, data []byte) []byte {
	var nanos int64
	if !expires.IsZero() {
		nanos = expires.UnixNano()
	}
	head := entryMagic + " " + strconv.FormatInt(nanos, 10) + "\n"
	return append([]byte(head), data...)
}

func decodeEntry(raw []byte) (time.Time, []byte, bool) {
	line, data, found := bytes.Cut(raw, []byte("\n"))
	if !found {
		return time.Time{}, nil, false
	}
	magic, nanos, found := strings.Cut(string(line), " ")
	if !found || magic != entryMagic {
		return time.Time{}, nil, false
	}
	n, err := strconv.ParseInt(nanos, 10, 64)
	if err != nil {
		return time.Time{}, nil, false
	}
	if n == 0 {
		return time.Time{}, data, true
	}
	return time.Unix(0, n), data, true
}

// walkEntries calls fn for every cache file below root. Temporary files of
// in-flight writes start with a dot and are skipped.
func walkEntries(root string, fn func(string, fs.FileInfo)) error {
	return filepath.WalkDir(root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || strings.HasPrefix(d.Name(), ".") {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return nil
		}
		fn(p, info)
		return nil
	})
}

func countEntries(root string) (int, error) {
	n := 0
	err := walkEntries(root, func(string, fs.FileInfo) { n++ })
	return n, err
}

var _ Cache = (*FileCache)(nil)
