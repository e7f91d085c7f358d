package updater

import (
	"bytes"
	"context"
	stderrors "errors"
	"fmt"
	"slices"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/charmbracelet/log"

	"github.com/matzehuels/lamacheck/pkg/blacklist"
	"github.com/matzehuels/lamacheck/pkg/fetch"
	"github.com/matzehuels/lamacheck/pkg/metadata"
	"github.com/matzehuels/lamacheck/pkg/model"
	"github.com/matzehuels/lamacheck/pkg/registry"
	"github.com/matzehuels/lamacheck/pkg/source"
	"github.com/matzehuels/lamacheck/pkg/version"
)

// fakeSource serves version indexes and descriptors from memory.
type fakeSource struct {
	mu          sync.Mutex
	indexes     map[string]map[string][]string // repo -> artifact -> versions
	poms        map[string]string              // repo|artifact|version -> POM document
	down        map[string]bool                // repositories failing at the connection level
	calls       map[string]int                 // repo -> requests
	descriptors []string                       // repo|artifact|version of each descriptor request
}

func newFakeSource() *fakeSource {
	return &fakeSource{
		indexes: make(map[string]map[string][]string),
		poms:    make(map[string]string),
		down:    make(map[string]bool),
		calls:   make(map[string]int),
	}
}

func (f *fakeSource) publish(repo, artifact string, versions ...string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.indexes[repo] == nil {
		f.indexes[repo] = make(map[string][]string)
	}
	f.indexes[repo][artifact] = versions
}

func (f *fakeSource) descriptor(repo, artifact, v, doc string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.poms[repo+"|"+artifact+"|"+v] = doc
}

func (f *fakeSource) enter(repo model.Repository, bl *blacklist.Blacklist) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	if bl.Contains(repo.ID) {
		return false
	}
	f.calls[repo.ID]++
	if f.down[repo.ID] {
		bl.Add(context.Background(), repo.ID, repo.URL)
		return false
	}
	return true
}

func (f *fakeSource) FetchVersionIndex(ctx context.Context, repo model.Repository, a *model.Artifact, bl *blacklist.Blacklist) (*metadata.VersionIndex, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if !f.enter(repo, bl) {
		return nil, nil
	}
	f.mu.Lock()
	versions, ok := f.indexes[repo.ID][a.ID()]
	f.mu.Unlock()
	if !ok {
		return nil, nil
	}
	var sb strings.Builder
	sb.WriteString("<metadata><versioning><versions>")
	for _, v := range versions {
		fmt.Fprintf(&sb, "<version>%s</version>", v)
	}
	sb.WriteString("</versions></versioning></metadata>")
	idx, err := metadata.ParseVersionIndex([]byte(sb.String()), a.ExcludedVersions)
	if err != nil {
		return nil, nil
	}
	return idx, nil
}

func (f *fakeSource) FetchSnapshotIndex(context.Context, model.Repository, *model.Artifact, *version.Version, *blacklist.Blacklist) (*metadata.SnapshotIndex, error) {
	return nil, nil
}

func (f *fakeSource) FetchDescriptor(ctx context.Context, repo model.Repository, a *model.Artifact, v *version.Version, bl *blacklist.Blacklist) (*metadata.POM, error) {
	if !f.enter(repo, bl) {
		return nil, nil
	}
	key := repo.ID + "|" + a.ID() + "|" + v.Original()
	f.mu.Lock()
	f.descriptors = append(f.descriptors, key)
	doc, ok := f.poms[key]
	f.mu.Unlock()
	if !ok {
		return nil, nil
	}
	pom, err := metadata.ParsePOM([]byte(doc))
	if err != nil {
		return nil, nil
	}
	return pom, nil
}

type clock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

type fixture struct {
	reg   *registry.Registry
	store *registry.MemoryStore
	src   *fakeSource
	clock *clock
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	clk := &clock{now: time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)}
	store := registry.NewMemoryStore(nil)
	reg := registry.New(store, registry.Options{Clock: clk.Now})
	if err := reg.Load(context.Background()); err != nil {
		t.Fatal(err)
	}
	return &fixture{reg: reg, store: store, src: newFakeSource(), clock: clk}
}

func (f *fixture) engine(opts Options) *Engine {
	opts.Clock = f.clock.Now
	if opts.Workers == 0 {
		opts.Workers = 4
	}
	return New(f.reg, f.src, opts)
}

func (f *fixture) addRepo(t *testing.T, id string) {
	t.Helper()
	if _, _, err := f.reg.AddRepository(model.Repository{ID: id, URL: "https://" + id + ".example.com/"}); err != nil {
		t.Fatal(err)
	}
}

func (f *fixture) addArtifact(t *testing.T, g, a string, repos ...string) string {
	t.Helper()
	art, _, err := f.reg.AddArtifact(g, a)
	if err != nil {
		t.Fatal(err)
	}
	for _, r := range repos {
		f.reg.AddDesiredRepository(art.ID(), r)
	}
	return art.ID()
}

func mustRun(t *testing.T, e *Engine) int {
	t.Helper()
	n, err := e.RunUpdateCycle(context.Background())
	if err != nil {
		t.Fatalf("RunUpdateCycle() error = %v", err)
	}
	return n
}

func TestRefreshUpdatesLatestVersions(t *testing.T) {
	f := newFixture(t)
	id := f.addArtifact(t, "org.example", "lib", model.CentralID1)
	f.src.publish(model.CentralID1, id, "1.0", "1.1", "2.0-SNAPSHOT")
	f.src.descriptor(model.CentralID1, id, "1.1", `<project><groupId>org.example</groupId><artifactId>lib</artifactId><packaging>bundle</packaging></project>`)

	if n := mustRun(t, f.engine(Options{})); n != 1 {
		t.Errorf("updated = %d, want 1", n)
	}
	a := f.reg.Artifact(id)
	if a.LatestRelease.Original() != "1.1" || a.LatestBeta.Original() != "2.0-SNAPSHOT" {
		t.Errorf("latest = %v / %v, want 1.1 / 2.0-SNAPSHOT", a.LatestRelease, a.LatestBeta)
	}
	if a.Packaging != model.PackagingBundle {
		t.Errorf("packaging = %q, want bundle", a.Packaging)
	}
	if a.LastMetadataCheck == nil || a.LastMetadataError != nil {
		t.Errorf("timestamps = %v / %v", a.LastMetadataCheck, a.LastMetadataError)
	}
	rs := a.Repo(model.CentralID1)
	if rs == nil || rs.Release.Original() != "1.1" || rs.LastSuccess == nil {
		t.Errorf("repo state = %+v", rs)
	}
	if f.store.Saves() == 0 {
		t.Error("cycle should persist the registry")
	}
}

func TestSecondCycleIsIdempotent(t *testing.T) {
	f := newFixture(t)
	id := f.addArtifact(t, "org.example", "lib", model.CentralID1)
	f.src.publish(model.CentralID1, id, "1.0", "1.1")

	e := f.engine(Options{})
	mustRun(t, e)

	f.clock.Advance(49 * time.Hour)
	if n := mustRun(t, e); n != 0 {
		t.Errorf("second cycle updated = %d, want 0", n)
	}
	if got := f.reg.Artifact(id).LatestRelease.Original(); got != "1.1" {
		t.Errorf("LatestRelease = %s, want 1.1", got)
	}
}

func TestRefreshRespectsThreshold(t *testing.T) {
	f := newFixture(t)
	id := f.addArtifact(t, "org.example", "lib", model.CentralID1)
	f.src.publish(model.CentralID1, id, "1.0")

	e := f.engine(Options{})
	mustRun(t, e)
	f.src.publish(model.CentralID1, id, "1.0", "1.1")

	f.clock.Advance(48 * time.Hour)
	if n := mustRun(t, e); n != 0 {
		t.Errorf("cycle at the threshold updated = %d, want 0", n)
	}
	f.clock.Advance(time.Second)
	if n := mustRun(t, e); n != 1 {
		t.Errorf("cycle past the threshold updated = %d, want 1", n)
	}
}

func TestDowngradeSafety(t *testing.T) {
	tests := []struct {
		name           string
		allowDowngrade bool
		want           string
	}{
		{"kept", false, "2.0"},
		{"allowed", true, "1.5"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			id := f.addArtifact(t, "org.example", "lib", model.CentralID1)
			f.src.publish(model.CentralID1, id, "2.0")
			e := f.engine(Options{AllowDowngrade: tt.allowDowngrade})
			mustRun(t, e)

			f.src.publish(model.CentralID1, id, "1.0", "1.5")
			f.clock.Advance(72 * time.Hour)
			mustRun(t, e)
			if got := f.reg.Artifact(id).LatestRelease.Original(); got != tt.want {
				t.Errorf("LatestRelease = %s, want %s", got, tt.want)
			}
		})
	}
}

func TestExcludedVersionNeverWins(t *testing.T) {
	f := newFixture(t)
	id := f.addArtifact(t, "org.example", "lib", model.CentralID1)
	f.src.publish(model.CentralID1, id, "1.0", "1.1")
	f.reg.ExcludeVersion(id, "1.1")

	mustRun(t, f.engine(Options{}))
	if got := f.reg.Artifact(id).LatestRelease.Original(); got != "1.0" {
		t.Errorf("LatestRelease = %s, want 1.0", got)
	}
}

func TestNoVersionsStampsError(t *testing.T) {
	f := newFixture(t)
	id := f.addArtifact(t, "org.example", "gone", model.CentralID1)

	if n := mustRun(t, f.engine(Options{})); n != 0 {
		t.Errorf("updated = %d, want 0", n)
	}
	a := f.reg.Artifact(id)
	if a.LastMetadataError == nil || a.LastMetadataCheck != nil {
		t.Errorf("timestamps = check %v, error %v", a.LastMetadataCheck, a.LastMetadataError)
	}
	if rs := a.Repo(model.CentralID1); rs == nil || rs.LastError == nil {
		t.Errorf("repo state = %+v, want error stamp", rs)
	}
}

func TestCentralFirstDescriptor(t *testing.T) {
	f := newFixture(t)
	f.addRepo(t, "mirror")
	id := f.addArtifact(t, "org.example", "lib", "mirror", model.CentralID2)
	f.src.publish("mirror", id, "1.0")
	f.src.publish(model.CentralID2, id, "1.0")
	f.src.descriptor("mirror", id, "1.0", `<project><groupId>org.example</groupId><artifactId>lib</artifactId></project>`)

	mustRun(t, f.engine(Options{}))

	want := []string{
		model.CentralID2 + "|" + id + "|1.0",
		"mirror|" + id + "|1.0",
	}
	if fmt.Sprint(f.src.descriptors) != fmt.Sprint(want) {
		t.Errorf("descriptor requests = %v, want %v", f.src.descriptors, want)
	}
	if got := f.reg.Artifact(id).Packaging; got != model.PackagingJAR {
		t.Errorf("packaging = %q, want jar", got)
	}
}

func TestBlacklistContainment(t *testing.T) {
	f := newFixture(t)
	f.addRepo(t, "flaky")
	f.src.down["flaky"] = true
	var ids []string
	for i := 0; i < 5; i++ {
		id := f.addArtifact(t, "org.example", fmt.Sprintf("lib%d", i), "flaky", model.CentralID1)
		f.src.publish(model.CentralID1, id, "1.0")
		ids = append(ids, id)
	}

	e := f.engine(Options{Workers: 1})
	if n := mustRun(t, e); n != len(ids) {
		t.Errorf("updated = %d, want %d", n, len(ids))
	}
	if calls := f.src.calls["flaky"]; calls != 1 {
		t.Errorf("requests to the blacklisted repository = %d, want 1", calls)
	}
	repo := f.reg.Repository("flaky")
	if !repo.Invalid || !strings.HasPrefix(repo.Note, "Was added to blacklist around ") {
		t.Errorf("flaky = %+v, want invalid with blacklist note", repo)
	}
	if s := e.Status(); len(s.Blacklisted) != 1 || s.Blacklisted[0] != "flaky" {
		t.Errorf("Status().Blacklisted = %v", s.Blacklisted)
	}
}

func TestSearchNewArtifact(t *testing.T) {
	f := newFixture(t)
	f.addRepo(t, "extra")
	found := f.addArtifact(t, "org.example", "found")
	missing := f.addArtifact(t, "org.example", "missing")
	f.src.publish("extra", found, "3.0")

	mustRun(t, f.engine(Options{}))

	a := f.reg.Artifact(found)
	if !a.HasRepo("extra") || a.HasRepo(model.CentralID1) {
		t.Errorf("found repos = %+v, want only extra", a.Repos)
	}
	if a.LastRepoSearchError != nil {
		t.Error("successful search should not stamp an error")
	}
	if m := f.reg.Artifact(missing); m.LastRepoSearchError == nil || len(m.Repos) != 0 {
		t.Errorf("missing = %+v, want search error stamp", m)
	}
}

func TestDiscoveryWave(t *testing.T) {
	f := newFixture(t)
	id := f.addArtifact(t, "org.example", "app", model.CentralID1)
	f.src.publish(model.CentralID1, id, "1.0")
	f.src.descriptor(model.CentralID1, id, "1.0", `<project><groupId>org.example</groupId><artifactId>app</artifactId>
		<dependencies><dependency><groupId>org.example</groupId><artifactId>core</artifactId><version>1.0</version></dependency></dependencies>
		<repositories>
			<repository><id>libs</id><url>https://libs.example.com/</url></repository>
			<repository><id>empty</id><url>https://empty.example.com/</url></repository>
		</repositories></project>`)
	f.src.publish("libs", "org.example:core", "0.9")

	e := f.engine(Options{})
	mustRun(t, e)

	core := f.reg.Artifact("org.example:core")
	if core == nil || !core.HasRepo("libs") {
		t.Fatalf("core = %+v, want discovered in libs", core)
	}
	if r := f.reg.Repository("empty"); !r.Invalid || !strings.HasPrefix(r.Note, "Found no artifacts. Last update ") {
		t.Errorf("empty = %+v, want invalid with note", r)
	}
	if r := f.reg.Repository("libs"); r.Invalid {
		t.Errorf("libs = %+v, want valid", r)
	}
	s := e.Status()
	if s.NewArtifacts != 1 || s.NewRepos != 2 || s.Running || s.RunID == "" {
		t.Errorf("Status() = %+v", s)
	}
	if want := s.Search + s.Refresh + s.Discover + s.NewArtifacts + s.NewRepos; s.Done != want {
		t.Errorf("Status().Done = %d, want every task of both waves (%d)", s.Done, want)
	}
}

func TestPluginPackaging(t *testing.T) {
	f := newFixture(t)
	id := f.addArtifact(t, "org.example", "foo-maven-plugin", model.CentralID1)
	f.src.publish(model.CentralID1, id, "1.0")
	f.src.descriptor(model.CentralID1, id, "1.0", `<project><groupId>org.example</groupId><artifactId>foo-maven-plugin</artifactId></project>`)

	mustRun(t, f.engine(Options{}))
	if got := f.reg.Artifact(id).Packaging; got != model.PackagingMavenPlugin {
		t.Errorf("packaging = %q, want maven-plugin", got)
	}
}

func TestConcurrentCycleRefused(t *testing.T) {
	f := newFixture(t)
	e := f.engine(Options{})
	e.running.Store(true)
	if _, err := e.RunUpdateCycle(context.Background()); !stderrors.Is(err, ErrCycleRunning) {
		t.Errorf("RunUpdateCycle() error = %v, want ErrCycleRunning", err)
	}
}

func TestCancelledCycle(t *testing.T) {
	f := newFixture(t)
	id := f.addArtifact(t, "org.example", "lib", model.CentralID1)
	f.src.publish(model.CentralID1, id, "1.0")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	n, err := f.engine(Options{}).RunUpdateCycle(ctx)
	if err != nil || n != 0 {
		t.Errorf("RunUpdateCycle() = %d, %v, want 0, nil", n, err)
	}
	if f.reg.Artifact(id).LatestRelease != nil {
		t.Error("a cancelled cycle must not update artifacts")
	}
}

// docGetter serves repository documents by URL and records every request.
type docGetter struct {
	mu       sync.Mutex
	docs     map[string]string
	requests []string
}

func (g *docGetter) Get(_ context.Context, url string) ([]byte, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.requests = append(g.requests, url)
	doc, ok := g.docs[url]
	if !ok {
		return nil, fmt.Errorf("%w: %s", fetch.ErrNotFound, url)
	}
	return []byte(doc), nil
}

func TestSnapshotDescriptorUsesTimestampedPOM(t *testing.T) {
	f := newFixture(t)
	id := f.addArtifact(t, "org.example", "lib", model.CentralID1)

	base := model.CentralURL1 + "org/example/lib/"
	pomURL := base + "2.0-SNAPSHOT/lib-2.0-20240301.120000-7.pom"
	getter := &docGetter{docs: map[string]string{
		base + "maven-metadata.xml": `<metadata><groupId>org.example</groupId><artifactId>lib</artifactId>
			<versioning><versions><version>1.0</version><version>2.0-SNAPSHOT</version></versions></versioning></metadata>`,
		base + "2.0-SNAPSHOT/maven-metadata.xml": `<metadata><groupId>org.example</groupId><artifactId>lib</artifactId><version>2.0-SNAPSHOT</version>
			<versioning>
				<snapshot><timestamp>20240301.120000</timestamp><buildNumber>7</buildNumber></snapshot>
				<snapshotVersions><snapshotVersion><extension>pom</extension><value>2.0-20240301.120000-7</value></snapshotVersion></snapshotVersions>
			</versioning></metadata>`,
		pomURL: `<project><groupId>org.example</groupId><artifactId>lib</artifactId><version>2.0-SNAPSHOT</version><packaging>war</packaging>
			<dependencies><dependency><groupId>org.example</groupId><artifactId>snapshot-dep</artifactId></dependency></dependencies></project>`,
	}}

	e := New(f.reg, source.NewHTTP(getter, nil), Options{Clock: f.clock.Now, Workers: 2})
	mustRun(t, e)

	a := f.reg.Artifact(id)
	if a.LatestBeta == nil || a.LatestBeta.Original() != "2.0-SNAPSHOT" {
		t.Fatalf("LatestBeta = %v, want 2.0-SNAPSHOT", a.LatestBeta)
	}
	if !slices.Contains(getter.requests, pomURL) {
		t.Errorf("timestamped POM never requested, requests = %v", getter.requests)
	}
	if slices.Contains(getter.requests, base+"2.0-SNAPSHOT/lib-2.0-SNAPSHOT.pom") {
		t.Error("snapshot POM requested under its unversioned name")
	}
	if a.Packaging != model.PackagingWAR {
		t.Errorf("packaging = %q, want war from the snapshot POM", a.Packaging)
	}
	if f.reg.Artifact("org.example:snapshot-dep") == nil {
		t.Error("references of the snapshot POM were not discovered")
	}
}

func TestDiscoveredRepositoryIDsAreDisambiguated(t *testing.T) {
	f := newFixture(t)
	f.addRepo(t, "libs")
	id := f.addArtifact(t, "org.example", "app", model.CentralID1)
	f.src.publish(model.CentralID1, id, "1.0")
	f.src.descriptor(model.CentralID1, id, "1.0", `<project><groupId>org.example</groupId><artifactId>app</artifactId><repositories>
		<repository><id>libs</id><url>https://libs-eu.example.com/</url></repository>
		<repository><id>libs</id><url>https://libs-us.example.com/</url></repository>
	</repositories></project>`)
	f.src.publish("libs0", id, "1.0")

	e := f.engine(Options{})
	mustRun(t, e)

	eu, us := f.reg.Repository("libs0"), f.reg.Repository("libs1")
	if eu == nil || eu.URL != "https://libs-eu.example.com/" || eu.Invalid {
		t.Errorf("libs0 = %+v, want the first declared libs repository, valid", eu)
	}
	if us == nil || us.URL != "https://libs-us.example.com/" || !us.Invalid {
		t.Errorf("libs1 = %+v, want the second declared libs repository, invalid after an empty search", us)
	}
	if !f.reg.Artifact(id).HasRepo("libs0") {
		t.Error("second wave should find app in libs0")
	}
	if s := e.Status(); s.NewRepos != 2 {
		t.Errorf("Status().NewRepos = %d, want 2", s.NewRepos)
	}
}

func TestDiscoveryKeepsPropertyVersionedReferences(t *testing.T) {
	f := newFixture(t)
	id := f.addArtifact(t, "org.example", "app", model.CentralID1)
	f.src.publish(model.CentralID1, id, "1.0")
	f.src.descriptor(model.CentralID1, id, "1.0", `<project><groupId>org.example</groupId><artifactId>app</artifactId>
		<properties><slf4j.version>2.0.9</slf4j.version></properties>
		<dependencies><dependency><groupId>org.slf4j</groupId><artifactId>slf4j-api</artifactId><version>${slf4j.version}</version></dependency></dependencies>
		<build><plugins><plugin><groupId>org.apache.felix</groupId><artifactId>maven-bundle-plugin</artifactId><version>${bundle.version}</version></plugin></plugins></build>
	</project>`)
	f.src.publish(model.CentralID1, "org.slf4j:slf4j-api", "2.0.9")

	e := f.engine(Options{})
	mustRun(t, e)

	slf4j := f.reg.Artifact("org.slf4j:slf4j-api")
	if slf4j == nil || slf4j.LatestRelease == nil || slf4j.LatestRelease.Original() != "2.0.9" {
		t.Errorf("slf4j-api = %+v, want discovered and resolved to 2.0.9", slf4j)
	}
	if f.reg.Artifact("org.apache.felix:maven-bundle-plugin") == nil {
		t.Error("maven-bundle-plugin was not discovered")
	}
	if s := e.Status(); s.NewArtifacts != 2 {
		t.Errorf("Status().NewArtifacts = %d, want 2", s.NewArtifacts)
	}
}

func TestSearchReconcilesFoundVersions(t *testing.T) {
	f := newFixture(t)
	id := f.addArtifact(t, "org.example", "lib")
	f.src.publish(model.CentralID1, id, "1.0", "1.1")

	e := f.engine(Options{})
	if n := mustRun(t, e); n != 1 {
		t.Errorf("first cycle updated = %d, want 1", n)
	}
	a := f.reg.Artifact(id)
	if a.LatestRelease == nil || a.LatestRelease.Original() != "1.1" || a.LastMetadataCheck == nil {
		t.Errorf("after search: latest %v, last check %v", a.LatestRelease, a.LastMetadataCheck)
	}
	for cycle := 2; cycle <= 3; cycle++ {
		if n := mustRun(t, e); n != 0 {
			t.Errorf("cycle %d updated = %d, want 0", cycle, n)
		}
	}
}

func TestEmptyRegistryKeepsRepositoriesValid(t *testing.T) {
	f := newFixture(t)
	mustRun(t, f.engine(Options{}))

	for _, id := range []string{model.CentralID1, model.CentralID2} {
		if r := f.reg.Repository(id); r == nil || r.Invalid {
			t.Errorf("%s = %+v, want valid", id, r)
		}
	}
}

func TestChangeLogCountsDistinctNewerVersions(t *testing.T) {
	f := newFixture(t)
	id := f.addArtifact(t, "org.example", "lib", model.CentralID1, model.CentralID2)
	f.src.publish(model.CentralID1, id, "1.0", "1.1")
	f.src.publish(model.CentralID2, id, "1.0", "1.1")

	var buf bytes.Buffer
	mustRun(t, f.engine(Options{Logger: log.New(&buf)}))

	out := buf.String()
	if !strings.Contains(out, "latest version changed") {
		t.Fatalf("no change logged:\n%s", out)
	}
	if !strings.Contains(out, "newer=2") {
		t.Errorf("versions mirrored by both repositories should count once:\n%s", out)
	}
}
