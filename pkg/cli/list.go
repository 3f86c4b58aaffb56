package cli

import (
	"encoding/json"
	"fmt"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"cronhook/internal/devloop"
	"cronhook/pkg/cronjob"
)

type jobRow struct {
	Name        string    `json:"name"`
	Schedule    []string  `json:"schedule"`
	Next        time.Time `json:"next,omitempty"`
	Timeout     string    `json:"timeout,omitempty"`
	Retry       bool      `json:"retry"`
	Description string    `json:"description,omitempty"`
}

func rows(entries []cronjob.Entry, now time.Time) []jobRow {
	out := make([]jobRow, 0, len(entries))
	for _, e := range entries {
		d := e.Definition
		row := jobRow{
			Name:        e.Name,
			Schedule:    append([]string(nil), d.Schedule...),
			Retry:       d.RetryEnabled(),
			Description: d.Description,
		}
		if d.Timeout > 0 {
			row.Timeout = d.Timeout.String()
		}
		for _, expr := range d.Schedule {
			s, err := devloop.ParseSchedule(expr)
			if err != nil {
				continue
			}
			if n := s.Next(now); row.Next.IsZero() || n.Before(row.Next) {
				row.Next = n
			}
		}
		out = append(out, row)
	}
	return out
}

func (r *runner) listCommand() *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "list",
		Short: "Show registered jobs and their next run (UTC)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			jobs := rows(r.reg.List(), time.Now().UTC())
			if asJSON {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(jobs)
			}
			if len(jobs) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "no jobs registered")
				return nil
			}
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "JOB\tSCHEDULE\tNEXT (UTC)\tTIMEOUT\tRETRY\tDESCRIPTION")
			for _, j := range jobs {
				next := "-"
				if !j.Next.IsZero() {
					next = j.Next.Format("2006-01-02 15:04")
				}
				timeout := j.Timeout
				if timeout == "" {
					timeout = "-"
				}
				fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%t\t%s\n", j.Name, strings.Join(j.Schedule, ", "), next, timeout, j.Retry, j.Description)
			}
			return tw.Flush()
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "print JSON")
	return cmd
}
