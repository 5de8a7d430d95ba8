package commands

import (
	"context"
	"fmt"
	"io"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/pirakansa/compinst/internal/cleanup"
	"github.com/pirakansa/compinst/internal/cli/shared"
	"github.com/pirakansa/compinst/internal/reconcile"
	"github.com/pirakansa/compinst/internal/syncer"
)

type planReport struct {
	Components []componentReport `yaml:"components"`
}

type componentReport struct {
	Component  string            `yaml:"component"`
	Root       string            `yaml:"root"`
	Repository string            `yaml:"repository"`
	Update     bool              `yaml:"update"`
	Skipped    []string          `yaml:"skipped,omitempty"`
	Operations []operationReport `yaml:"operations"`
	Files      []fileReport      `yaml:"files,omitempty"`
	Orphans    []orphanReport    `yaml:"orphans,omitempty"`
	Error      string            `yaml:"error,omitempty"`
}

type operationReport struct {
	Item        string `yaml:"item"`
	Dest        string `yaml:"dest"`
	Mode        string `yaml:"mode,omitempty"`
	ContentType string `yaml:"content_type"`
}

type fileReport struct {
	Item    string `yaml:"item"`
	Path    string `yaml:"path"`
	Outcome string `yaml:"outcome"`
}

type orphanReport struct {
	Path   string `yaml:"path"`
	Action string `yaml:"action"`
}

func newPlanCmd(ctx *appContext) *cobra.Command {
	var output string

	cmd := &cobra.Command{
		Use:   "plan [group:module...]",
		Short: "Preview install changes without touching the install root",
		RunE: func(cmd *cobra.Command, args []string) error {
			report, err := buildPlan(ctx, args)
			if report != nil {
				if werr := writePlan(cmd.OutOrStdout(), report, output); werr != nil {
					return werr
				}
			}
			return err
		},
	}
	cmd.Flags().StringVarP(&output, "output", "o", "text", "output format: text|yaml")
	return cmd
}

// buildPlan runs a dry pass per component, one after the other, so file
// and orphan events can be attributed to their component.
func buildPlan(ctx *appContext, args []string) (*planReport, error) {
	cfg, err := loadConfig(ctx)
	if err != nil {
		return nil, err
	}
	comps, err := selectComponents(cfg.Components, args)
	if err != nil {
		return nil, err
	}

	var current *componentReport
	engine, err := newEngine(cfg, reconcile.Options{
		DryRun:    true,
		SkipHooks: true,
		OnFile: func(p syncer.FileProgress) {
			if p.Outcome != syncer.OutcomeUnchanged {
				current.Files = append(current.Files, fileReport{Item: p.Item, Path: p.Path, Outcome: p.Outcome})
			}
		},
		OnOrphan: func(_ string, d cleanup.Decision) {
			current.Orphans = append(current.Orphans, orphanReport{Path: d.Path, Action: string(d.Action)})
		},
	})
	if err != nil {
		return nil, err
	}

	report := &planReport{}
	var firstErr error
	for _, comp := range comps {
		current = &componentReport{Component: comp.Dependency, Root: cfg.ComponentRoot(comp)}
		res, err := engine.Install(context.Background(), comp)
		if err != nil {
			current.Error = err.Error()
			if firstErr == nil {
				firstErr = newExitCodeError(exitCodeFor(err), err)
			}
		}
		if res != nil {
			current.Component = res.Component
			current.Repository = res.Location.Repository.Name
			current.Update = res.Update
			for _, skip := range res.Plan.Skipped {
				current.Skipped = append(current.Skipped, skip.Item+": "+skip.Reason)
			}
			for _, op := range res.Plan.Operations {
				current.Operations = append(current.Operations, operationReport{
					Item:        op.Item,
					Dest:        op.DestDir,
					Mode:        string(op.Mode),
					ContentType: string(op.ContentType),
				})
			}
		}
		report.Components = append(report.Components, *current)
	}
	return report, firstErr
}

func writePlan(w io.Writer, report *planReport, format string) error {
	switch format {
	case "yaml":
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(report); err != nil {
			return err
		}
		return enc.Close()
	case "text", "":
		for _, c := range report.Components {
			fmt.Fprintf(w, "%s -> %s (update=%t, repository=%s)\n", c.Component, c.Root, c.Update, c.Repository)
			for _, op := range c.Operations {
				fmt.Fprintf(w, "  %-10s %-14s %s [%s]\n", op.Mode, op.ContentType, op.Dest, op.Item)
			}
			for _, s := range c.Skipped {
				fmt.Fprintf(w, "  skip       %s\n", s)
			}
			for _, f := range c.Files {
				fmt.Fprintf(w, "  %-10s %s [%s]\n", f.Outcome, f.Path, f.Item)
			}
			for _, o := range c.Orphans {
				fmt.Fprintf(w, "  orphan     %s (%s)\n", o.Path, o.Action)
			}
			if c.Error != "" {
				fmt.Fprintf(w, "  error      %s\n", c.Error)
			}
		}
		return nil
	default:
		return newExitCodeError(shared.ExitConfigError, fmt.Errorf("unsupported output format %q", format))
	}
}
