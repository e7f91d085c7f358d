package metadata

import (
	"encoding/xml"
	"strings"

	"github.com/matzehuels/lamacheck/pkg/errors"
)

// DefaultPluginGroupID is the group id Maven assumes for plugins declared
// without one.
const DefaultPluginGroupID = "org.apache.maven.plugins"

// Coordinate identifies an artifact referenced from a POM.
type Coordinate struct {
	GroupID    string `xml:"groupId"`
	ArtifactID string `xml:"artifactId"`
	Version    string `xml:"version"`
}

// ID returns "groupId:artifactId".
func (c Coordinate) ID() string { return c.GroupID + ":" + c.ArtifactID }

// Unresolved reports whether the group or artifact id still contains a
// "${...}" property reference. A property in the version does not matter:
// the artifact is known by its group and artifact id alone.
func (c Coordinate) Unresolved() bool {
	return strings.Contains(c.GroupID, "${") || strings.Contains(c.ArtifactID, "${")
}

// Dependency is a dependency or managed dependency.
type Dependency struct {
	Coordinate
	Type       string `xml:"type"`
	Classifier string `xml:"classifier"`
	Scope      string `xml:"scope"`
	Optional   string `xml:"optional"`
}

// Plugin is a build plugin with its own dependencies.
type Plugin struct {
	Coordinate
	Dependencies []Dependency `xml:"dependencies>dependency"`
}

// Repository is a repository or plugin repository declared in a POM.
type Repository struct {
	ID     string `xml:"id"`
	Name   string `xml:"name"`
	URL    string `xml:"url"`
	Layout string `xml:"layout"`
}

// License is a declared license.
type License struct {
	Name         string `xml:"name"`
	URL          string `xml:"url"`
	Distribution string `xml:"distribution"`
}

// POM is the subset of a Maven project descriptor needed to discover new
// artifacts and repositories. Inheritance and property substitution are not
// applied.
type POM struct {
	Parent *Coordinate `xml:"parent"`

	GroupID     string `xml:"groupId"`
	ArtifactID  string `xml:"artifactId"`
	Version     string `xml:"version"`
	Packaging   string `xml:"packaging"`
	Name        string `xml:"name"`
	Description string `xml:"description"`
	URL         string `xml:"url"`

	Dependencies         []Dependency `xml:"dependencies>dependency"`
	DependencyManagement []Dependency `xml:"dependencyManagement>dependencies>dependency"`
	Extensions           []Coordinate `xml:"build>extensions>extension"`
	Plugins              []Plugin     `xml:"build>plugins>plugin"`
	PluginManagement     []Plugin     `xml:"build>pluginManagement>plugins>plugin"`
	Repositories         []Repository `xml:"repositories>repository"`
	PluginRepositories   []Repository `xml:"pluginRepositories>pluginRepository"`
	Licenses             []License    `xml:"licenses>license"`
	Modules              []string     `xml:"modules>module"`
}

type pomDoc struct {
	XMLName xml.Name `xml:"project"`
	POM
}

// ParsePOM parses a project descriptor. The root element must be "project".
// Text values are trimmed and plugins without a group id get
// [DefaultPluginGroupID].
func ParsePOM(data []byte) (*POM, error) {
	var doc pomDoc
	if err := decode(data, &doc); err != nil {
		return nil, err
	}
	p := &doc.POM
	if p.ArtifactID == "" && p.Parent == nil {
		return nil, errors.Wrap(errors.ErrCodeMalformedDocument, ErrMalformed, "descriptor has neither artifactId nor parent")
	}
	p.normalize()
	return p, nil
}

// ID returns the effective "groupId:artifactId" of the project, inheriting
// the group id from the parent when it is not declared.
func (p *POM) ID() string {
	g := p.GroupID
	if g == "" && p.Parent != nil {
		g = p.Parent.GroupID
	}
	return g + ":" + p.ArtifactID
}

// PackagingOrDefault returns the declared packaging, or "jar".
func (p *POM) PackagingOrDefault() string {
	if p.Packaging == "" {
		return "jar"
	}
	return p.Packaging
}

// References returns every artifact the POM points to (parent, dependencies,
// managed dependencies, build extensions, plugins and managed plugins with
// their dependencies) and every repository it declares. Order follows the
// document; nothing is filtered.
func (p *POM) References() (artifacts []Coordinate, repos []Repository) {
	if p.Parent != nil {
		artifacts = append(artifacts, *p.Parent)
	}
	for _, d := range p.Dependencies {
		artifacts = append(artifacts, d.Coordinate)
	}
	for _, d := range p.DependencyManagement {
		artifacts = append(artifacts, d.Coordinate)
	}
	artifacts = append(artifacts, p.Extensions...)
	for _, plugins := range [][]Plugin{p.PluginManagement, p.Plugins} {
		for _, pl := range plugins {
			artifacts = append(artifacts, pl.Coordinate)
			for _, d := range pl.Dependencies {
				artifacts = append(artifacts, d.Coordinate)
			}
		}
	}
	repos = append(repos, p.Repositories...)
	repos = append(repos, p.PluginRepositories...)
	return artifacts, repos
}

func (p *POM) normalize() {
	trim := strings.TrimSpace
	if p.Parent != nil {
		p.Parent.trim()
	}
	p.GroupID, p.ArtifactID, p.Version = trim(p.GroupID), trim(p.ArtifactID), trim(p.Version)
	p.Packaging, p.Name, p.URL = trim(p.Packaging), trim(p.Name), trim(p.URL)
	p.Description = trim(p.Description)

	for _, deps := range [][]Dependency{p.Dependencies, p.DependencyManagement} {
		trimDependencies(deps)
	}
	for i := range p.Extensions {
		p.Extensions[i].trim()
	}
	for _, plugins := range [][]Plugin{p.Plugins, p.PluginManagement} {
		for i := range plugins {
			plugins[i].trim()
			if plugins[i].GroupID == "" {
				plugins[i].GroupID = DefaultPluginGroupID
			}
			trimDependencies(plugins[i].Dependencies)
		}
	}
	for _, repos := range [][]Repository{p.Repositories, p.PluginRepositories} {
		for i := range repos {
			r := &repos[i]
			r.ID, r.Name, r.URL, r.Layout = trim(r.ID), trim(r.Name), trim(r.URL), trim(r.Layout)
		}
	}
	for i := range p.Licenses {
		l := &p.Licenses[i]
		l.Name, l.URL, l.Distribution = trim(l.Name), trim(l.URL), trim(l.Distribution)
	}
	for i := range p.Modules {
		p.Modules[i] = trim(p.Modules[i])
	}
}

func (c *Coordinate) trim() {
	c.GroupID = strings.TrimSpace(c.GroupID)
	c.ArtifactID = strings.TrimSpace(c.ArtifactID)
	c.Version = strings.TrimSpace(c.Version)
}

func trimDependencies(deps []Dependency) {
	for i := range deps {
		d := &deps[i]
		d.trim()
		d.Type = strings.TrimSpace(d.Type)
		d.Classifier = strings.TrimSpace(d.Classifier)
		d.Scope = strings.TrimSpace(d.Scope)
		d.Optional = strings.TrimSpace(d.Optional)
	}
}
