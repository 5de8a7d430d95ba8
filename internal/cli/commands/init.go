package commands

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/pirakansa/compinst/pkg/installconf"
)

func newInitCmd() *cobra.Command {
	var path string
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Create a " + installconf.DefaultConfigFile + " template",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := writeIfNotExists(path, installconf.Template); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "initialized:", path)
			return nil
		},
	}
	cmd.Flags().StringVar(&path, "file", installconf.DefaultConfigFile, "path of the config file to create")
	return cmd
}

func writeIfNotExists(path, content string) error {
	_, err := os.Stat(path)
	if err == nil {
		return fmt.Errorf("%s already exists", path)
	}
	if !errors.Is(err, os.ErrNotExist) {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return os.WriteFile(path, []byte(content), 0o644)
}
