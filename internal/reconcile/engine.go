// Package reconcile runs one installation pass per component: resolve the
// component, read its descriptor, plan every item, sync the planned
// directories and clean up what is no longer declared.
package reconcile

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/rs/zerolog"

	"github.com/pirakansa/compinst/internal/cleanup"
	"github.com/pirakansa/compinst/internal/cli/hookrun"
	"github.com/pirakansa/compinst/internal/fault"
	"github.com/pirakansa/compinst/internal/filter"
	"github.com/pirakansa/compinst/internal/platform"
	"github.com/pirakansa/compinst/internal/policy"
	"github.com/pirakansa/compinst/internal/resolve"
	"github.com/pirakansa/compinst/internal/syncer"
	"github.com/pirakansa/compinst/internal/transport"
	"github.com/pirakansa/compinst/pkg/descriptor"
	"github.com/pirakansa/compinst/pkg/installconf"
)

// Fetcher downloads repository documents.
type Fetcher interface {
	Fetch(ctx context.Context, req transport.Request) ([]byte, error)
	FetchVerified(ctx context.Context, req transport.Request) ([]byte, error)
}

// Options control how a pass touches the filesystem and what it reports.
type Options struct {
	DryRun    bool
	SkipHooks bool
	Now       func() time.Time
	Logger    zerolog.Logger
	OnFile    func(syncer.FileProgress)
	OnOrphan  func(component string, d cleanup.Decision)
	// Stdout and Stderr receive hook output.
	Stdout io.Writer
	Stderr io.Writer
}

// Engine reconciles the components of one installation configuration.
type Engine struct {
	cfg      *installconf.InstallConfig
	repos    []resolve.Repository
	fetcher  Fetcher
	resolver *resolve.Resolver
	platform platform.Platform
	filters  filter.Chain
	hooks    *hookrun.Runner
	opts     Options
}

// ComponentResult summarizes one reconciled component.
type ComponentResult struct {
	Component string
	Root      string
	Location  resolve.ResolvedLocation
	Update    bool
	Plan      *policy.Plan
	Sync      syncer.Result
	Links     []LinkResult
	Cleanup   *cleanup.Result
}

// New prepares an engine. The configuration must already be normalized
// and validated.
func New(cfg *installconf.InstallConfig, fetcher Fetcher, opts Options) (*Engine, error) {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	filters, err := filter.Compile(cfg.Filters)
	if err != nil {
		return nil, fault.Wrap(err, fault.KindConfig, "compile filters")
	}
	return &Engine{
		cfg:      cfg,
		repos:    Repositories(cfg),
		fetcher:  fetcher,
		resolver: resolve.New(fetcher, opts.Logger.With().Str("component", "resolve").Logger()),
		platform: platform.New(cfg.OS, cfg.Environment),
		filters:  filters,
		hooks: &hookrun.Runner{
			Hooks:  cfg.Hooks,
			Stdout: opts.Stdout,
			Stderr: opts.Stderr,
			DryRun: opts.DryRun,
			Logger: opts.Logger.With().Str("component", "hooks").Logger(),
		},
		opts: opts,
	}, nil
}

// Repositories converts the configured repositories for the resolver.
func Repositories(cfg *installconf.InstallConfig) []resolve.Repository {
	repos := make([]resolve.Repository, 0, len(cfg.Repositories))
	for _, r := range cfg.Repositories {
		repos = append(repos, resolve.Repository{
			Name:            r.Name,
			Kind:            resolve.Kind(r.Kind),
			URL:             r.URL,
			Pattern:         r.Pattern,
			Credentials:     transport.Credentials{Username: r.Username, Password: r.Password},
			Headers:         r.Headers,
			VerifyChecksums: r.VerifyChecksums,
		})
	}
	return repos
}

// Platform is the OS and environment items are checked against.
func (e *Engine) Platform() platform.Platform {
	return e.platform
}

// Resolve finds the version and repository for a group:module:version
// coordinate.
func (e *Engine) Resolve(ctx context.Context, coordinate string) (resolve.ResolvedLocation, error) {
	dep, err := resolve.ParseDependency(coordinate)
	if err != nil {
		return resolve.ResolvedLocation{}, fault.Wrap(err, fault.KindConfig, "parse dependency")
	}
	return e.resolver.Resolve(ctx, dep, e.repos)
}

// Install reconciles one component into its install root.
func (e *Engine) Install(ctx context.Context, comp installconf.Component) (*ComponentResult, error) {
	root := e.cfg.ComponentRoot(comp)
	logger := e.opts.Logger.With().Str("dependency", comp.Dependency).Str("path", root).Logger()

	loc, err := e.Resolve(ctx, comp.Dependency)
	if err != nil {
		return nil, err
	}
	res := &ComponentResult{Component: loc.Resolved().String(), Root: root, Location: loc}

	desc, descFile, err := e.loadDescriptor(ctx, loc)
	if err != nil {
		return nil, err
	}
	res.Update = pathExists(filepath.Join(root, filepath.FromSlash(desc.DescriptorPath)))
	logger.Info().Str("version", loc.Version).Bool("update", res.Update).Msg("Reconciling component")

	localFiles, err := e.localFiles(comp)
	if err != nil {
		return nil, err
	}
	plan, err := policy.Evaluate(policy.Input{
		Descriptor:     desc,
		Component:      loc.Resolved(),
		DescriptorFile: descFile,
		IsUpdate:       res.Update,
		Platform:       e.platform,
		LocalFiles:     localFiles,
		Exists: func(rel string) bool {
			return pathExists(filepath.Join(root, filepath.FromSlash(rel)))
		},
	})
	if err != nil {
		if fault.KindOf(err) != "" {
			return nil, err
		}
		return nil, fault.Wrap(err, fault.KindConfig, "plan component").WithItem(res.Component)
	}
	res.Plan = plan
	for _, skip := range plan.Skipped {
		logger.Debug().Str("item", skip.Item).Str("reason", skip.Reason).Msg("Skipping item")
	}

	m := &materializer{engine: e, locations: map[string]resolve.ResolvedLocation{loc.Resolved().String(): loc}}
	if err := m.resolveAll(ctx, plan); err != nil {
		return nil, err
	}

	hookEnv := map[string]string{
		"COMPINST_ROOT":      root,
		"COMPINST_COMPONENT": res.Component,
		"COMPINST_VERSION":   loc.Version,
		"COMPINST_UPDATE":    strconv.FormatBool(res.Update),
	}
	if err := e.runHooks(ctx, comp.PreInstall, root, hookEnv); err != nil {
		return nil, err
	}

	chain, err := e.chainFor(plan)
	if err != nil {
		return nil, err
	}
	for _, op := range syncOrder(plan.Operations) {
		result, err := e.syncOperation(ctx, m, root, op, chain)
		if err != nil {
			return nil, err
		}
		res.Sync.Add(result)
	}
	for _, op := range plan.Operations {
		if op.Kind != policy.KindLink {
			continue
		}
		link, err := e.applyLink(root, *op.Link)
		if err != nil {
			return nil, err
		}
		res.Links = append(res.Links, link)
	}

	res.Cleanup, err = cleanup.Run(root, plan.DeclaredPaths, cleanup.Options{
		BackupDir: e.cfg.BackupDir,
		Component: loc.Dependency.Module,
		DryRun:    e.opts.DryRun,
		Now:       e.opts.Now,
		Logger:    logger,
		OnOrphan: func(d cleanup.Decision) {
			if e.opts.OnOrphan != nil {
				e.opts.OnOrphan(res.Component, d)
			}
		},
	})
	if err != nil {
		return nil, err
	}

	if err := e.runHooks(ctx, comp.PostInstall, root, hookEnv); err != nil {
		return nil, err
	}
	logger.Info().
		Int("created", res.Sync.Created).
		Int("updated", res.Sync.Updated).
		Int("deleted", res.Sync.Deleted).
		Int("orphans", len(res.Cleanup.Decisions)).
		Msg("Component reconciled")
	return res, nil
}

// loadDescriptor fetches the component descriptor into the admin dir,
// checks its format version and parses it.
func (e *Engine) loadDescriptor(ctx context.Context, loc resolve.ResolvedLocation) (*descriptor.Component, string, error) {
	dep := loc.Resolved()
	url := loc.ArtifactURL(resolve.Artifact{Name: dep.Module, Type: resolve.DescriptorType, Ext: resolve.DescriptorType})
	content, err := e.fetch(ctx, loc.Repository, url)
	if err != nil {
		return nil, "", err
	}

	file := filepath.Join(e.cfg.AdminDir, "descriptors", dep.Group, dep.Module, dep.Version, dep.Module+"."+resolve.DescriptorType)
	if err := os.MkdirAll(filepath.Dir(file), 0o755); err != nil {
		return nil, "", fault.Wrap(err, fault.KindIO, "create admin dir").WithPath(filepath.Dir(file))
	}
	if err := os.WriteFile(file, content, 0o644); err != nil {
		return nil, "", fault.Wrap(err, fault.KindIO, "store descriptor").WithPath(file)
	}

	meta, err := descriptor.ParseMetadata(content)
	if err != nil {
		return nil, "", fault.Wrap(err, fault.KindConfig, "read descriptor metadata").WithPath(url)
	}
	if meta.FormatVersion != descriptor.FormatVersion {
		return nil, "", fault.Newf(fault.KindFormatMismatch, "descriptor format %q is not supported, expected %q", meta.FormatVersion, descriptor.FormatVersion).WithPath(url)
	}
	desc, err := descriptor.Parse(content)
	if err != nil {
		return nil, "", fault.Wrap(err, fault.KindConfig, "parse descriptor").WithPath(url)
	}
	return desc, file, nil
}

// fetch downloads url from repo, checking the sidecar checksum when the
// repository asks for it.
func (e *Engine) fetch(ctx context.Context, repo resolve.Repository, url string) ([]byte, error) {
	req := repo.Request(url)
	var (
		content []byte
		err     error
	)
	if repo.VerifyChecksums {
		content, err = e.fetcher.FetchVerified(ctx, req)
	} else {
		content, err = e.fetcher.Fetch(ctx, req)
	}
	switch {
	case err == nil:
		return content, nil
	case errors.Is(err, transport.ErrNotFound):
		return nil, fault.Wrap(err, fault.KindNotFound, "fetch").WithPath(url)
	default:
		return nil, fault.Wrap(err, fault.KindIO, "fetch").WithPath(url)
	}
}

// localFiles turns the configured local file items into policy file items.
// TargetPath names the destination directory; the file keeps its name.
func (e *Engine) localFiles(comp installconf.Component) ([]policy.FileItem, error) {
	var items []policy.FileItem
	for i, fi := range comp.FileItems {
		if !e.platform.Applies(fi.Classifier, fi.Types) {
			continue
		}
		ct, err := descriptor.ParseContentType(fi.ContentType)
		if err != nil {
			return nil, fault.Wrapf(err, fault.KindConfig, "file_items[%d]", i)
		}
		items = append(items, policy.FileItem{
			Name:              "file " + fi.File,
			Local:             fi.File,
			Path:              descriptor.JoinRel(fi.TargetPath, filepath.Base(fi.File)),
			ContentType:       ct.OrDefault(),
			Updatable:         fi.Updatable == nil || *fi.Updatable,
			ExcludeFromUpdate: fi.ExcludeFromUpdate,
		})
	}
	return items, nil
}

// chainFor appends the descriptor property overrides to the configured
// filters.
func (e *Engine) chainFor(plan *policy.Plan) (filter.Chain, error) {
	chain := append(filter.Chain(nil), e.filters...)
	for i, prop := range plan.Properties {
		f, err := filter.PropertyOverride(fmt.Sprintf("property-%d", i), prop.Pattern, prop.Key, prop.Value)
		if err != nil {
			return nil, fault.Wrapf(err, fault.KindConfig, "property %s", prop.Key)
		}
		chain = append(chain, f)
	}
	return chain, nil
}

func (e *Engine) syncOperation(ctx context.Context, m *materializer, root string, op policy.Operation, chain filter.Chain) (*syncer.Result, error) {
	sources, err := m.sources(ctx, op)
	if err != nil {
		return nil, err
	}
	exclude, err := op.ExcludeList()
	if err != nil {
		return nil, fault.Wrap(err, fault.KindConfig, "compile excludes").WithItem(op.Item)
	}
	preserve, err := op.PreserveLayers()
	if err != nil {
		return nil, fault.Wrap(err, fault.KindConfig, "compile preserve patterns").WithItem(op.Item)
	}
	return syncer.Sync(syncer.Request{
		Item:         op.Item,
		DestDir:      filepath.Join(root, filepath.FromSlash(op.DestDir)),
		Sources:      sources,
		Exclude:      exclude,
		Preserve:     preserve,
		Mode:         op.Mode,
		ContentType:  op.ContentType,
		WriteMarker:  op.WriteMarker,
		Filters:      chain,
		FilterPrefix: op.DestDir,
	}, syncer.Options{
		DryRun: e.opts.DryRun,
		Now:    e.opts.Now,
		Logger: e.opts.Logger.With().Str("item", op.Item).Logger(),
		OnFile: e.opts.OnFile,
	})
}

// syncOrder drops links and moves the descriptor last. Its directory marks
// the root as installed, so it is only written once everything else is.
func syncOrder(ops []policy.Operation) []policy.Operation {
	var ordered, last []policy.Operation
	for _, op := range ops {
		switch op.Kind {
		case policy.KindLink:
		case policy.KindDescriptor:
			last = append(last, op)
		default:
			ordered = append(ordered, op)
		}
	}
	return append(ordered, last...)
}

func (e *Engine) runHooks(ctx context.Context, names []string, root string, env map[string]string) error {
	if e.opts.SkipHooks || len(names) == 0 {
		return nil
	}
	return e.hooks.Run(ctx, names, root, env)
}

func pathExists(path string) bool {
	_, err := os.Lstat(path)
	return err == nil
}
