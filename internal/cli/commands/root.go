package commands

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/pirakansa/compinst/internal/cli/hookrun"
	"github.com/pirakansa/compinst/internal/cli/logging"
	"github.com/pirakansa/compinst/internal/cli/shared"
	"github.com/pirakansa/compinst/internal/config"
	"github.com/pirakansa/compinst/internal/fault"
	"github.com/pirakansa/compinst/internal/reconcile"
	"github.com/pirakansa/compinst/internal/transport"
	"github.com/pirakansa/compinst/pkg/installconf"
)

type appContext struct {
	configPath string
	verbosity  int
}

func NewRootCmd(version string) *cobra.Command {
	ctx := &appContext{}
	cmd := &cobra.Command{
		Use:   "compinst",
		Short: "Install and update components from ivy and maven repositories",
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			logging.Setup(ctx.verbosity)
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.PersistentFlags().StringVar(&ctx.configPath, "config", installconf.DefaultConfigFile, "path or URL of the installation config")
	cmd.PersistentFlags().CountVarP(&ctx.verbosity, "verbose", "v", "increase log verbosity (-v info, -vv debug, -vvv trace)")

	cmd.AddCommand(newInstallCmd(ctx))
	cmd.AddCommand(newPlanCmd(ctx))
	cmd.AddCommand(newResolveCmd(ctx))
	cmd.AddCommand(newHooksCmd(ctx))
	cmd.AddCommand(newInitCmd())
	cmd.AddCommand(newVersionCmd(version))

	return cmd
}

func Execute(version string) int {
	if err := NewRootCmd(version).Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err.Error())
		return mapExitCode(err)
	}
	return shared.ExitOK
}

func mapExitCode(err error) int {
	var codeErr *exitCodeError
	if errors.As(err, &codeErr) {
		return codeErr.code
	}
	return shared.ExitFailure
}

// exitCodeFor maps reconciliation failures to exit codes. Joined errors
// take the code of the first matching kind in this order.
func exitCodeFor(err error) int {
	switch {
	case errors.Is(err, hookrun.ErrHookFailed):
		return shared.ExitHookFailed
	case errors.Is(err, fault.ErrConfig):
		return shared.ExitConfigError
	case errors.Is(err, fault.ErrResolution),
		errors.Is(err, fault.ErrUnsupportedRepository),
		errors.Is(err, fault.ErrNotFound):
		return shared.ExitResolveFailed
	case errors.Is(err, fault.ErrFormatMismatch):
		return shared.ExitFormatMismatch
	case errors.Is(err, fault.ErrPathConflict):
		return shared.ExitPathConflict
	default:
		return shared.ExitInstallFailed
	}
}

func loadConfig(ctx *appContext) (*installconf.InstallConfig, error) {
	cfg, err := config.Load(ctx.configPath)
	if err != nil {
		return nil, newExitCodeError(shared.ExitConfigError, err)
	}
	return cfg, nil
}

func newEngine(cfg *installconf.InstallConfig, opts reconcile.Options) (*reconcile.Engine, error) {
	client := transport.New(transport.Options{
		ProxyHTTP:  cfg.Proxy.HTTP,
		ProxyHTTPS: cfg.Proxy.HTTPS,
		Logger:     logging.GetLogger("transport"),
	})
	opts.Logger = logging.GetLogger("reconcile")
	engine, err := reconcile.New(cfg, client, opts)
	if err != nil {
		return nil, newExitCodeError(exitCodeFor(err), err)
	}
	return engine, nil
}

// selectComponents keeps the components whose dependency starts with one
// of the given group:module prefixes. No prefix selects everything.
func selectComponents(comps []installconf.Component, prefixes []string) ([]installconf.Component, error) {
	if len(prefixes) == 0 {
		return comps, nil
	}
	var out []installconf.Component
	for _, comp := range comps {
		for _, prefix := range prefixes {
			if strings.HasPrefix(comp.Dependency, prefix) {
				out = append(out, comp)
				break
			}
		}
	}
	if len(out) == 0 {
		return nil, newExitCodeError(shared.ExitConfigError, fmt.Errorf("no configured component matches %s", strings.Join(prefixes, ", ")))
	}
	return out, nil
}

type exitCodeError struct {
	code int
	err  error
}

func newExitCodeError(code int, err error) *exitCodeError {
	return &exitCodeError{code: code, err: err}
}

func (e *exitCodeError) Error() string {
	return e.err.Error()
}

func (e *exitCodeError) Unwrap() error {
	return e.err
}
