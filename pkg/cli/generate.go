package cli

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"cronhook/internal/config"
	"cronhook/internal/devloop"
	"cronhook/pkg/logx"
	"cronhook/pkg/workflow"
)

func (r *runner) generateCommand() *cobra.Command {
	var (
		out    string
		strict bool
		check  bool
	)
	cmd := &cobra.Command{
		Use:   "generate",
		Short: "Render the GitHub Actions workflow for the registered jobs",
		Long: `Render the GitHub Actions workflow for the registered jobs.

The file is written to <workflow_dir>/<slug(name)>.yml unless --out is given.
Use --out - to print it instead. --check exits 1 if the file on disk differs.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := r.setup(); err != nil {
				return err
			}
			defer r.close()

			entries := r.reg.List()
			if strict {
				if err := devloop.CheckSchedules(entries); err != nil {
					return err
				}
			}
			wf := r.cfg.Workflow()
			doc, err := workflow.Generate(entries, wf)
			if err != nil {
				return err
			}

			if out == "-" {
				_, err := fmt.Fprint(cmd.OutOrStdout(), doc)
				return err
			}
			path := out
			if path == "" {
				path = filepath.Join(r.workflowDir(r.cfg), workflow.FileName(wf))
			}

			if check {
				cur, err := os.ReadFile(path)
				if err != nil && !errors.Is(err, os.ErrNotExist) {
					return err
				}
				if !bytes.Equal(cur, []byte(doc)) {
					fmt.Fprintf(cmd.ErrOrStderr(), "%s is out of date; run `%s generate`\n", path, cmd.Root().Name())
					return &ExitError{Code: 1}
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s is up to date\n", path)
				return nil
			}

			if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
				return err
			}
			if err := os.WriteFile(path, []byte(doc), 0o644); err != nil {
				return err
			}
			r.log.Info("workflow written", logx.String("path", path), logx.Int("jobs", len(entries)))
			fmt.Fprintf(cmd.OutOrStdout(), "wrote %s (%d jobs)\n", path, len(entries))
			return nil
		},
	}
	cmd.Flags().StringVarP(&out, "out", "o", "", "output path, or - for stdout")
	cmd.Flags().BoolVar(&strict, "strict", false, "also range-check every cron expression")
	cmd.Flags().BoolVar(&check, "check", false, "fail if the workflow file is stale instead of writing it")
	return cmd
}

// workflowDir resolves a relative workflow_dir against the project file.
func (r *runner) workflowDir(cfg *config.Config) string {
	dir := cfg.WorkflowDir
	if filepath.IsAbs(dir) {
		return dir
	}
	return filepath.Join(filepath.Dir(r.cfgPath), dir)
}
