package cli

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/spf13/cobra"

	"cronhook/pkg/cronjob"
)

type testOutput struct {
	Status int                  `json:"status"`
	Body   cronjob.ResponseBody `json:"body"`
}

func (r *runner) testCommand() *cobra.Command {
	var (
		secret string
		body   string
	)
	cmd := &cobra.Command{
		Use:   "test <job>",
		Short: "Run one job in-process, exactly as a trigger would",
		Long: `Run one job in-process through the same dispatch path an HTTP trigger takes.

The secret header defaults to the value of the configured secret env var.
Exits 1 if the response status is not 200.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := r.setup(); err != nil {
				return err
			}
			defer r.close()

			hdr := http.Header{}
			presented := secret
			if !cmd.Flags().Changed("secret") {
				presented = r.cfg.Secret()
			}
			if presented != "" {
				hdr.Set(cronjob.SecretHeader, presented)
			}
			hdr.Set("Content-Type", "application/json")

			eng := r.engine(r.opts.Observers)
			resp := eng.HandleRequest(cmd.Context(), cronjob.Request{
				JobName:  strings.TrimSpace(args[0]),
				Headers:  hdr,
				Body:     []byte(body),
				Metadata: map[string]any{"source": "cli"},
			})

			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			if err := enc.Encode(testOutput{Status: resp.Status, Body: resp.Body}); err != nil {
				return err
			}
			if resp.Status != http.StatusOK {
				return &ExitError{Code: 1}
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&secret, "secret", "", "secret to present (default: the configured secret)")
	cmd.Flags().StringVar(&body, "body", "{}", "request body")
	return cmd
}
