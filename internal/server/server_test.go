package server

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/matzehuels/lamacheck/pkg/errors"
	"github.com/matzehuels/lamacheck/pkg/model"
	"github.com/matzehuels/lamacheck/pkg/registry"
	"github.com/matzehuels/lamacheck/pkg/updater"
	"github.com/matzehuels/lamacheck/pkg/version"
)

type fakeEngine struct {
	mu      sync.Mutex
	running bool
	cycles  int
	done    chan struct{}
}

func (f *fakeEngine) Status() updater.Status {
	f.mu.Lock()
	defer f.mu.Unlock()
	return updater.Status{RunID: "abc", Running: f.running, Updated: 4}
}

func (f *fakeEngine) Running() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.running
}

func (f *fakeEngine) RunUpdateCycle(context.Context) (int, error) {
	f.mu.Lock()
	f.cycles++
	f.mu.Unlock()
	if f.done != nil {
		close(f.done)
	}
	return 1, nil
}

func newTestServer(t *testing.T, engine Engine) (*Server, *registry.Registry) {
	t.Helper()
	reg := registry.New(nil, registry.Options{})
	if err := reg.Load(context.Background()); err != nil {
		t.Fatal(err)
	}
	if _, _, err := reg.AddArtifact("org.apache.commons", "commons-lang3"); err != nil {
		t.Fatal(err)
	}
	if _, _, err := reg.AddArtifact("org.apache.maven.plugins", "maven-jar-plugin"); err != nil {
		t.Fatal(err)
	}
	reg.AddDesiredRepository("org.apache.commons:commons-lang3", model.CentralID1)
	reg.SetLatestRelease("org.apache.commons:commons-lang3", version.Parse("3.14.0"))
	if _, _, err := reg.AddRepository(model.Repository{ID: "spring", URL: "https://repo.spring.io/release"}); err != nil {
		t.Fatal(err)
	}
	reg.SetInvalid("spring", true, "Found no artifacts")

	s := New(context.Background(), reg, engine, Options{Gatherer: prometheus.NewRegistry()})
	return s, reg
}

func do(t *testing.T, h http.Handler, method, target string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, target, nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.NewDecoder(rec.Body).Decode(&v); err != nil {
		t.Fatalf("decode %q: %v", rec.Body.String(), err)
	}
	return v
}

func TestHealth(t *testing.T) {
	s, _ := newTestServer(t, &fakeEngine{})
	rec := do(t, s, http.MethodGet, "/healthz")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("Content-Type = %q", ct)
	}
	type health struct {
		Status string `json:"status"`
		Build  struct {
			Version   string `json:"version"`
			GoVersion string `json:"go_version"`
		} `json:"build"`
	}
	body := decode[health](t, rec)
	if body.Status != "ok" || body.Build.Version == "" || body.Build.GoVersion == "" {
		t.Errorf("health = %+v", body)
	}
}

func TestArtifacts(t *testing.T) {
	s, _ := newTestServer(t, &fakeEngine{})

	rec := do(t, s, http.MethodGet, "/api/v1/artifacts")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	all := decode[[]artifactSummary](t, rec)
	if len(all) != 2 {
		t.Fatalf("got %d artifacts, want 2", len(all))
	}

	rec = do(t, s, http.MethodGet, "/api/v1/artifacts?plugins=true")
	plugins := decode[[]artifactSummary](t, rec)
	if len(plugins) != 1 || plugins[0].ID != "org.apache.maven.plugins:maven-jar-plugin" {
		t.Errorf("plugins = %+v", plugins)
	}
}

func TestArtifact(t *testing.T) {
	s, _ := newTestServer(t, &fakeEngine{})

	rec := do(t, s, http.MethodGet, "/api/v1/artifacts/org.apache.commons:commons-lang3")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body)
	}
	a := decode[model.Artifact](t, rec)
	if a.ArtifactID != "commons-lang3" || a.LatestRelease == nil || a.LatestRelease.Original() != "3.14.0" {
		t.Errorf("artifact = %+v", a)
	}

	rec = do(t, s, http.MethodGet, "/api/v1/artifacts/org.example:missing")
	if rec.Code != http.StatusNotFound {
		t.Fatalf("missing artifact status = %d", rec.Code)
	}
	body := decode[errorBody](t, rec)
	if body.Code != errors.ErrCodeNotFound {
		t.Errorf("code = %s", body.Code)
	}
}

func TestRepositories(t *testing.T) {
	s, _ := newTestServer(t, &fakeEngine{})

	tests := []struct {
		query string
		want  []string
	}{
		{"", []string{model.CentralID1, model.CentralID2, "spring"}},
		{"?state=invalid", []string{"spring"}},
		{"?state=empty", []string{model.CentralID2, "spring"}},
	}
	for _, tt := range tests {
		t.Run(tt.query, func(t *testing.T) {
			rec := do(t, s, http.MethodGet, "/api/v1/repositories"+tt.query)
			if rec.Code != http.StatusOK {
				t.Fatalf("status = %d", rec.Code)
			}
			repos := decode[[]repositoryView](t, rec)
			var ids []string
			for _, r := range repos {
				ids = append(ids, r.ID)
			}
			if strings.Join(ids, ",") != strings.Join(tt.want, ",") {
				t.Errorf("ids = %v, want %v", ids, tt.want)
			}
		})
	}

	rec := do(t, s, http.MethodGet, "/api/v1/repositories?state=bogus")
	if rec.Code != http.StatusBadRequest {
		t.Errorf("bogus state status = %d", rec.Code)
	}
}

func TestStatus(t *testing.T) {
	s, _ := newTestServer(t, &fakeEngine{})
	rec := do(t, s, http.MethodGet, "/api/v1/status")
	st := decode[updater.Status](t, rec)
	if st.RunID != "abc" || st.Updated != 4 {
		t.Errorf("status = %+v", st)
	}
}

func TestStartCycle(t *testing.T) {
	engine := &fakeEngine{done: make(chan struct{})}
	s, _ := newTestServer(t, engine)

	rec := do(t, s, http.MethodPost, "/api/v1/cycles")
	if rec.Code != http.StatusAccepted {
		t.Fatalf("status = %d", rec.Code)
	}
	select {
	case <-engine.done:
	case <-time.After(2 * time.Second):
		t.Fatal("cycle was not started")
	}
}

func TestStartCycleWhileRunning(t *testing.T) {
	engine := &fakeEngine{running: true}
	s, _ := newTestServer(t, engine)

	rec := do(t, s, http.MethodPost, "/api/v1/cycles")
	if rec.Code != http.StatusConflict {
		t.Fatalf("status = %d", rec.Code)
	}
	body := decode[errorBody](t, rec)
	if body.Code != errors.ErrCodeCycleRunning {
		t.Errorf("code = %s", body.Code)
	}
	if engine.cycles != 0 {
		t.Errorf("cycles = %d, want 0", engine.cycles)
	}
}

func TestMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	counter := prometheus.NewCounter(prometheus.CounterOpts{Name: "lamacheck_test_total", Help: "test"})
	reg.MustRegister(counter)
	counter.Inc()

	s := New(context.Background(), registry.New(nil, registry.Options{}), &fakeEngine{}, Options{Gatherer: reg})
	rec := do(t, s, http.MethodGet, "/metrics")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "lamacheck_test_total 1") {
		t.Errorf("metrics output missing counter:\n%s", rec.Body)
	}
}

func TestHTTPStatus(t *testing.T) {
	tests := map[errors.Code]int{
		errors.ErrCodeNotFound:          http.StatusNotFound,
		errors.ErrCodeUnknownRepository: http.StatusNotFound,
		errors.ErrCodeInvalidCoordinate: http.StatusBadRequest,
		errors.ErrCodeCycleRunning:      http.StatusConflict,
		errors.ErrCodeStorage:           http.StatusInternalServerError,
		"":                              http.StatusInternalServerError,
	}
	for code, want := range tests {
		if got := httpStatus(code); got != want {
			t.Errorf("httpStatus(%q) = %d, want %d", code, got, want)
		}
	}
}
