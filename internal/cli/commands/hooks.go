package commands

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/pirakansa/compinst/internal/cli/hookrun"
	"github.com/pirakansa/compinst/internal/cli/logging"
	"github.com/pirakansa/compinst/internal/cli/shared"
)

func newHooksCmd(ctx *appContext) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "hooks",
		Short: "Hook helpers",
	}
	cmd.AddCommand(newHooksListCmd(ctx))
	cmd.AddCommand(newHooksRunCmd(ctx))
	return cmd
}

func newHooksListCmd(ctx *appContext) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List configured hooks",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(ctx)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			for _, name := range hookrun.ListHookNames(cfg.Hooks) {
				desc := cfg.Hooks[name].Desc
				if desc == "" {
					fmt.Fprintln(out, name)
					continue
				}
				fmt.Fprintf(out, "%s\t%s\n", name, desc)
			}
			return nil
		},
	}
}

func newHooksRunCmd(ctx *appContext) *cobra.Command {
	return &cobra.Command{
		Use:   "run <hook>...",
		Short: "Run hooks in the install directory",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(ctx)
			if err != nil {
				return err
			}
			for _, name := range args {
				if _, ok := cfg.Hooks[name]; !ok {
					return newExitCodeError(shared.ExitConfigError, fmt.Errorf("hook %q is not defined", name))
				}
			}
			runner := &hookrun.Runner{
				Hooks:  cfg.Hooks,
				Stdout: cmd.OutOrStdout(),
				Stderr: os.Stderr,
				Logger: logging.GetLogger("hooks"),
			}
			env := map[string]string{"COMPINST_ROOT": cfg.InstallDir}
			if err := runner.Run(context.Background(), args, cfg.InstallDir, env); err != nil {
				if errors.Is(err, hookrun.ErrHookFailed) {
					return newExitCodeError(shared.ExitHookFailed, err)
				}
				return newExitCodeError(shared.ExitConfigError, err)
			}
			return nil
		},
	}
}
