// Package resolve finds the concrete version of a dependency and the
// location of its artifacts without resolving a dependency graph.
package resolve

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/pirakansa/compinst/internal/fault"
	"github.com/pirakansa/compinst/internal/transport"
	"github.com/rs/zerolog"
)

// Fetcher retrieves listings and metadata documents.
type Fetcher interface {
	Fetch(ctx context.Context, req transport.Request) ([]byte, error)
}

// Resolver picks versions across repositories. It holds no per-call state
// and is safe for concurrent use.
type Resolver struct {
	fetcher Fetcher
	logger  zerolog.Logger
}

func New(fetcher Fetcher, logger zerolog.Logger) *Resolver {
	return &Resolver{fetcher: fetcher, logger: logger}
}

type candidate struct {
	repo Repository
	stem string
}

// Resolve returns the repository and version to install dep from.
//
// An exact version stops at the first repository publishing it. A pattern
// or "latest" request asks every repository and keeps the highest version;
// when two repositories publish the same version the first one wins.
// Repositories that do not know the module are skipped; any other transport
// failure is returned immediately.
func (r *Resolver) Resolve(ctx context.Context, dep Dependency, repos []Repository) (ResolvedLocation, error) {
	logger := r.logger.With().Str("dependency", dep.String()).Logger()
	found := map[string]candidate{}
	var order []string

	for _, repo := range repos {
		if !dep.HasLatestPattern() && len(found) > 0 {
			break
		}
		version, stem, err := r.resolveIn(ctx, dep, repo)
		if err != nil {
			if errors.Is(err, transport.ErrNotFound) {
				logger.Debug().Str("repository", repo.Name).Msg("Dependency is not available in repository")
				continue
			}
			if fault.KindOf(err) != "" {
				return ResolvedLocation{}, err
			}
			return ResolvedLocation{}, fault.Wrapf(err, fault.KindIO, "resolve %s in %s", dep, repo.Name)
		}
		if version == "" {
			logger.Debug().Str("repository", repo.Name).Msg("No matching version in repository")
			continue
		}
		logger.Debug().Str("repository", repo.Name).Str("version", version).Msg("Version candidate")
		if _, ok := found[version]; !ok {
			found[version] = candidate{repo: repo, stem: stem}
			order = append(order, version)
		}
	}

	best := MaxVersion(order)
	if best == "" {
		return ResolvedLocation{}, fault.Newf(fault.KindResolution, "no repository provides %s", dep)
	}
	winner := found[best]
	logger.Info().Str("repository", winner.repo.Name).Str("version", best).Msg("Resolved dependency")
	return ResolvedLocation{
		Dependency:   dep,
		Repository:   winner.repo,
		Version:      best,
		ArtifactStem: winner.stem,
	}, nil
}

func (r *Resolver) resolveIn(ctx context.Context, dep Dependency, repo Repository) (string, string, error) {
	switch repo.Kind {
	case KindIvy:
		version, err := r.ivyVersion(ctx, dep, repo)
		return version, "", err
	case KindMaven:
		return r.mavenVersion(ctx, dep, repo)
	default:
		return "", "", fault.Newf(fault.KindUnsupportedRepository, "repository %q has unsupported kind %q", repo.Name, repo.Kind)
	}
}

// ivyVersion lists the directory above [revision]. Exact versions must be
// present in the listing as well.
func (r *Resolver) ivyVersion(ctx context.Context, dep Dependency, repo Repository) (string, error) {
	parent, ok := RevisionParent(repo.Pattern)
	if !ok {
		return "", fault.Newf(fault.KindUnsupportedRepository, "repository %q pattern has no [revision] token", repo.Name)
	}
	location := transport.JoinURL(repo.URL, Substitute(parent, Tokens{
		Organisation: dep.Group,
		Module:       dep.Module,
		Artifact:     dep.Module,
	}))

	var names []string
	var err error
	if transport.IsLocal(location) {
		names, err = transport.ListLocalDir(location)
	} else {
		var page []byte
		page, err = r.fetcher.Fetch(ctx, repo.Request(strings.TrimRight(location, "/")+"/"))
		if err == nil {
			names, err = ParseIndexListing(page)
		}
	}
	if err != nil {
		return "", err
	}
	return pick(names, dep.versionFilter()), nil
}

func (r *Resolver) mavenVersion(ctx context.Context, dep Dependency, repo Repository) (string, string, error) {
	moduleURL := mavenModuleURL(repo.URL, dep)
	metadata, err := r.fetcher.Fetch(ctx, repo.Request(transport.JoinURL(moduleURL, mavenMetadataFile)))
	if err != nil {
		return "", "", err
	}
	versions, err := ParseMavenVersions(metadata)
	if err != nil {
		return "", "", fault.Wrapf(err, fault.KindIO, "metadata of %s in %s", dep, repo.Name)
	}
	version := pick(versions, dep.versionFilter())
	if version == "" || !isSnapshot(version) {
		return version, "", nil
	}

	snapshotMeta, err := r.fetcher.Fetch(ctx, repo.Request(transport.JoinURL(moduleURL, version+"/"+mavenMetadataFile)))
	if errors.Is(err, transport.ErrNotFound) {
		r.logger.Debug().Str("dependency", dep.String()).Str("version", version).Msg("No snapshot metadata available")
		return version, "", nil
	}
	if err != nil {
		return "", "", err
	}
	stem, ok, err := ParseSnapshotStem(snapshotMeta, dep.Module, version)
	if err != nil {
		return "", "", fault.Wrapf(err, fault.KindIO, "snapshot metadata of %s in %s", dep, repo.Name)
	}
	if !ok {
		return version, "", nil
	}
	return version, stem, nil
}

func isSnapshot(version string) bool {
	return strings.HasSuffix(version, SnapshotSuffix)
}

func pick(names []string, filter *regexp.Regexp) string {
	var matching []string
	for _, name := range names {
		if filter == nil || filter.MatchString(name) {
			matching = append(matching, name)
		}
	}
	return MaxVersion(matching)
}

// String is used in log fields and error messages.
func (l ResolvedLocation) String() string {
	return fmt.Sprintf("%s:%s:%s@%s", l.Dependency.Group, l.Dependency.Module, l.Version, l.Repository.Name)
}
