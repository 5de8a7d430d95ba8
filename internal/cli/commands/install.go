package commands

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/pirakansa/compinst/internal/reconcile"
)

type installCommandOptions struct {
	dryRun    bool
	skipHooks bool
	jobs      int
}

func newInstallCmd(ctx *appContext) *cobra.Command {
	opts := installCommandOptions{}

	cmd := &cobra.Command{
		Use:   "install [group:module...]",
		Short: "Install or update the configured components",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runInstallWithOptions(cmd, ctx, args, opts)
		},
	}
	cmd.Flags().BoolVar(&opts.dryRun, "dry-run", false, "show actions without writing files")
	cmd.Flags().BoolVar(&opts.skipHooks, "skip-hooks", false, "do not run pre/post install hooks")
	cmd.Flags().IntVar(&opts.jobs, "jobs", 0, "components reconciled in parallel (default from config)")
	return cmd
}

func runInstallWithOptions(cmd *cobra.Command, ctx *appContext, args []string, opts installCommandOptions) error {
	cfg, err := loadConfig(ctx)
	if err != nil {
		return err
	}
	comps, err := selectComponents(cfg.Components, args)
	if err != nil {
		return err
	}
	engine, err := newEngine(cfg, reconcile.Options{
		DryRun:    opts.dryRun,
		SkipHooks: opts.skipHooks,
		Stdout:    cmd.OutOrStdout(),
		Stderr:    os.Stderr,
	})
	if err != nil {
		return err
	}
	jobs := cfg.Jobs
	if opts.jobs > 0 {
		jobs = opts.jobs
	}

	results, err := engine.InstallAll(context.Background(), comps, jobs)
	out := cmd.OutOrStdout()
	for i, res := range results {
		if res == nil {
			fmt.Fprintf(out, "%s: failed\n", comps[i].Dependency)
			continue
		}
		fmt.Fprintf(out, "%s: update=%t created=%d updated=%d unchanged=%d kept=%d deleted=%d preserved=%d orphans=%d\n",
			res.Component, res.Update, res.Sync.Created, res.Sync.Updated, res.Sync.Unchanged,
			res.Sync.Kept, res.Sync.Deleted, res.Sync.Preserved, len(res.Cleanup.Decisions))
	}
	if err != nil {
		return newExitCodeError(exitCodeFor(err), err)
	}
	return nil
}
