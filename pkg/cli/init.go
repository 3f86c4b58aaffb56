package cli

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"cronhook/internal/config"
)

func (r *runner) initCommand() *cobra.Command {
	var (
		force bool
		name  string
	)
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Write a starter project file and create the workflow directory",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if _, err := os.Stat(r.cfgPath); err == nil && !force {
				return fmt.Errorf("%s already exists (use --force to overwrite)", r.cfgPath)
			} else if err != nil && !errors.Is(err, os.ErrNotExist) {
				return err
			}

			data := config.Starter(config.StarterOptions{Name: name})
			cfg, err := config.Decode(r.cfgPath, data)
			if err != nil {
				return fmt.Errorf("starter file: %w", err)
			}
			cfg.ApplyDefaults()

			if dir := filepath.Dir(r.cfgPath); dir != "." {
				if err := os.MkdirAll(dir, 0o755); err != nil {
					return err
				}
			}
			if err := os.WriteFile(r.cfgPath, data, 0o644); err != nil {
				return err
			}
			wfDir := r.workflowDir(cfg)
			if err := os.MkdirAll(wfDir, 0o755); err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "wrote %s\n", r.cfgPath)
			fmt.Fprintf(out, "created %s\n", wfDir)
			fmt.Fprintf(out, "next: set %s in your environment and as a GitHub Actions secret, then run `%s generate`\n", cfg.SecretEnv, cmd.Root().Name())
			return nil
		},
	}
	cmd.Flags().BoolVar(&force, "force", false, "overwrite an existing project file")
	cmd.Flags().StringVar(&name, "name", "", "workflow name (default \"Cron Jobs\")")
	return cmd
}
