package commands

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/pirakansa/compinst/internal/reconcile"
	"github.com/pirakansa/compinst/internal/resolve"
)

func newResolveCmd(ctx *appContext) *cobra.Command {
	return &cobra.Command{
		Use:   "resolve <group:module:version>...",
		Short: "Show which version and repository a coordinate resolves to",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(ctx)
			if err != nil {
				return err
			}
			engine, err := newEngine(cfg, reconcile.Options{DryRun: true})
			if err != nil {
				return err
			}
			for _, coordinate := range args {
				loc, err := engine.Resolve(context.Background(), coordinate)
				if err != nil {
					return newExitCodeError(exitCodeFor(err), err)
				}
				descriptorURL := loc.ArtifactURL(resolve.Artifact{Type: resolve.DescriptorType, Ext: resolve.DescriptorType})
				fmt.Fprintf(cmd.OutOrStdout(), "%s -> %s (%s) %s\n", coordinate, loc.Version, loc.Repository.Name, descriptorURL)
			}
			return nil
		},
	}
}
