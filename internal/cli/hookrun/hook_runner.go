// Package hookrun runs the shell hooks a component declares before and
// after it is reconciled.
package hookrun

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strings"

	"github.com/rs/zerolog"

	"github.com/pirakansa/compinst/pkg/installconf"
)

// ErrHookFailed wraps every failure of a hook command.
var ErrHookFailed = errors.New("hook failed")

// Runner executes hooks from one installation configuration.
type Runner struct {
	Hooks  map[string]installconf.HookDef
	Stdout io.Writer
	Stderr io.Writer
	DryRun bool
	Logger zerolog.Logger
}

// ListHookNames returns the configured hook names, sorted.
func ListHookNames(hooks map[string]installconf.HookDef) []string {
	names := make([]string, 0, len(hooks))
	for name := range hooks {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Run executes names in order, each after its depends_on chain. A hook
// shared by several chains runs once. rootDir is the default working
// directory; env is added to every hook environment.
func (r *Runner) Run(ctx context.Context, names []string, rootDir string, env map[string]string) error {
	running := map[string]bool{}
	completed := map[string]bool{}
	for _, name := range names {
		if err := r.run(ctx, name, rootDir, env, running, completed); err != nil {
			return err
		}
	}
	return nil
}

func (r *Runner) run(ctx context.Context, name, rootDir string, env map[string]string, running, completed map[string]bool) error {
	if completed[name] {
		return nil
	}
	hook, ok := r.Hooks[name]
	if !ok {
		return fmt.Errorf("hook %q is not defined", name)
	}
	if running[name] {
		return fmt.Errorf("hook dependency cycle detected at %q", name)
	}
	running[name] = true
	for _, dep := range hook.DependsOn {
		if err := r.run(ctx, dep, rootDir, env, running, completed); err != nil {
			return err
		}
	}
	running[name] = false

	if strings.TrimSpace(hook.Run) != "" {
		cwd := rootDir
		if hook.CWD != "" {
			if filepath.IsAbs(hook.CWD) {
				cwd = hook.CWD
			} else {
				cwd = filepath.Join(rootDir, hook.CWD)
			}
		}
		r.Logger.Info().Str("hook", name).Str("cwd", cwd).Bool("dry_run", r.DryRun).Msg("Running hook")
		if !r.DryRun {
			if err := r.exec(ctx, hook, cwd, env); err != nil {
				return fmt.Errorf("%w: %q: %v", ErrHookFailed, name, err)
			}
		}
	}
	completed[name] = true
	return nil
}

func (r *Runner) exec(ctx context.Context, hook installconf.HookDef, cwd string, env map[string]string) error {
	if err := os.MkdirAll(cwd, 0o755); err != nil {
		return err
	}
	cmd := exec.CommandContext(ctx, "bash", "-lc", hook.Run)
	cmd.Dir = cwd
	cmd.Stdout = writerOr(r.Stdout, os.Stdout)
	cmd.Stderr = writerOr(r.Stderr, os.Stderr)
	cmd.Env = os.Environ()
	for _, k := range sortedKeys(env) {
		cmd.Env = append(cmd.Env, fmt.Sprintf("%s=%s", k, env[k]))
	}
	for _, k := range sortedKeys(hook.Env) {
		cmd.Env = append(cmd.Env, fmt.Sprintf("%s=%s", k, hook.Env[k]))
	}
	return cmd.Run()
}

func writerOr(w, fallback io.Writer) io.Writer {
	if w != nil {
		return w
	}
	return fallback
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
