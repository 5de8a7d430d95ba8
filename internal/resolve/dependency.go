package resolve

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/pirakansa/compinst/internal/transport"
)

const (
	// LatestVersion selects the highest published version.
	LatestVersion = "latest"
	// SnapshotSuffix marks a mutable build resolved through per-version
	// metadata.
	SnapshotSuffix = "-SNAPSHOT"
	// DescriptorType is the type and extension of component descriptors.
	DescriptorType = "component"
)

// Dependency is an immutable group:module:version coordinate. Version may be
// exact, "latest", "+" or a prefix pattern such as "2.3.+".
type Dependency struct {
	Group   string
	Module  string
	Version string
}

// ParseDependency parses "group:module:version".
func ParseDependency(value string) (Dependency, error) {
	parts := strings.Split(strings.TrimSpace(value), ":")
	if len(parts) != 3 || parts[0] == "" || parts[1] == "" || parts[2] == "" {
		return Dependency{}, fmt.Errorf("dependency %q must be group:module:version", value)
	}
	return Dependency{Group: parts[0], Module: parts[1], Version: parts[2]}, nil
}

func (d Dependency) String() string {
	return d.Group + ":" + d.Module + ":" + d.Version
}

// HasLatestVersion is true for "+" and "latest".
func (d Dependency) HasLatestVersion() bool {
	return d.Version == "+" || d.Version == LatestVersion
}

// HasVersionPattern is true for prefix patterns like "1.2.+".
func (d Dependency) HasVersionPattern() bool {
	return strings.HasSuffix(d.Version, "+") && d.Version != "+"
}

// HasLatestPattern is true when the version is not exact.
func (d Dependency) HasLatestPattern() bool {
	return d.HasLatestVersion() || d.HasVersionPattern()
}

// VersionPattern converts the version into an anchored expression: literal
// characters are quoted and "+" matches any suffix.
func (d Dependency) VersionPattern() string {
	return "^" + strings.ReplaceAll(regexp.QuoteMeta(d.Version), `\+`, ".*") + "$"
}

// versionFilter returns nil when every candidate is acceptable.
func (d Dependency) versionFilter() *regexp.Regexp {
	if d.HasLatestVersion() {
		return nil
	}
	return regexp.MustCompile(d.VersionPattern())
}

// Kind is the repository layout.
type Kind string

const (
	// KindIvy is a pattern based layout whose versions are discovered from a
	// directory listing.
	KindIvy Kind = "ivy"
	// KindMaven derives paths from group segments and publishes a
	// maven-metadata.xml version list per module.
	KindMaven Kind = "maven"
)

// Repository is one candidate location. It is never modified by resolution.
type Repository struct {
	Name            string
	Kind            Kind
	URL             string
	Pattern         string
	Credentials     transport.Credentials
	Headers         map[string]string
	VerifyChecksums bool
}

// Request builds a transport request carrying the repository credentials.
func (r Repository) Request(url string) transport.Request {
	return transport.Request{URL: url, Credentials: r.Credentials, Headers: r.Headers}
}

// Artifact names one published file of a resolved module.
type Artifact struct {
	Name       string
	Type       string
	Ext        string
	Classifier string
}

// ResolvedLocation is the result of a resolution: the repository that
// answered, the concrete version and, for maven snapshots, the unique
// artifact file stem.
type ResolvedLocation struct {
	Dependency   Dependency
	Repository   Repository
	Version      string
	ArtifactStem string
}

// Resolved returns the dependency pinned to the resolved version.
func (l ResolvedLocation) Resolved() Dependency {
	d := l.Dependency
	d.Version = l.Version
	return d
}

// ArtifactURL computes where an artifact of the resolved module lives.
func (l ResolvedLocation) ArtifactURL(a Artifact) string {
	if a.Name == "" {
		a.Name = l.Dependency.Module
	}
	switch l.Repository.Kind {
	case KindMaven:
		stem := l.ArtifactStem
		if stem == "" {
			stem = l.Dependency.Module + "-" + l.Version
		}
		if a.Name != l.Dependency.Module {
			stem = a.Name + strings.TrimPrefix(stem, l.Dependency.Module)
		}
		name := stem
		if qualifier := mavenQualifier(a); qualifier != "" {
			name += "-" + qualifier
		}
		if a.Ext != "" {
			name += "." + a.Ext
		}
		return transport.JoinURL(mavenModuleURL(l.Repository.URL, l.Dependency), l.Version+"/"+name)
	default:
		rel := Substitute(l.Repository.Pattern, Tokens{
			Organisation: l.Dependency.Group,
			Module:       l.Dependency.Module,
			Revision:     l.Version,
			Artifact:     a.Name,
			Type:         a.Type,
			Ext:          a.Ext,
			Classifier:   a.Classifier,
		})
		return transport.JoinURL(l.Repository.URL, rel)
	}
}

// mavenQualifier is the classifier, or the type when it differs from the
// extension ("jar.jar" libraries have none). Component descriptors always
// carry their type.
func mavenQualifier(a Artifact) string {
	switch {
	case a.Classifier != "":
		return a.Classifier
	case a.Type == DescriptorType:
		return a.Type
	case a.Type != "" && a.Type != a.Ext:
		return a.Type
	}
	return ""
}
