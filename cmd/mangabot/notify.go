package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"mangabot/internal/app"
	"mangabot/internal/httpapi"
	"mangabot/internal/reminder"
	"mangabot/internal/schedule"
)

func newNotifyCommand(ctx *commandContext) *cobra.Command {
	var dryRun bool
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "notify",
		Short: "Run one reminder pass now",
		Long: "Run one reminder pass now and print the counts.\n" +
			"With --dry-run only the evaluation is printed; nothing is sent or saved.",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			opt := app.OneshotOptions{Send: !dryRun, Lock: !dryRun, ReadOnly: dryRun}
			return ctx.withOneshot(cmd.Context(), opt, func(o *app.Oneshot) error {
				if dryRun {
					ev, err := o.Dispatcher.Preview(cmd.Context())
					if err != nil {
						return err
					}
					if asJSON {
						return writeJSON(cmd, httpapi.NewEvaluationView(ev))
					}
					fmt.Fprint(cmd.OutOrStdout(), renderEvaluation(ev))
					return nil
				}

				res, err := o.Dispatcher.RunOnce(reminder.WithTrigger(cmd.Context(), "cli"))
				if asJSON {
					if jerr := writeJSON(cmd, res); jerr != nil {
						return jerr
					}
				} else {
					fmt.Fprintf(cmd.OutOrStdout(), "run %s: sent %d of %d (failed %d, malformed %d)\n",
						res.RunID, res.Sent, res.Attempted, res.Failed, res.Malformed)
				}
				return err
			})
		},
	}
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "Evaluate only; do not send or advance")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print JSON")
	return cmd
}

func renderEvaluation(ev schedule.Evaluation) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Evaluated at %s\n\n", ev.Now.Format("Mon 2006-01-02 15:04 MST"))

	if len(ev.Due) == 0 {
		b.WriteString("Nothing due.\n")
	} else {
		rows := make([][]string, 0, len(ev.Due))
		for _, it := range ev.Due {
			rows = append(rows, []string{fmt.Sprint(it.ID), it.Title, it.Cadence.Describe(), releaseLabel(it.ReleaseTime)})
		}
		b.WriteString("Due now\n")
		b.WriteString(renderTable([]string{"ID", "Title", "Cadence", "Release"}, rows, []columnAlignment{alignRight}))
		b.WriteString("\n")
	}

	if len(ev.Upcoming) > 0 {
		rows := make([][]string, 0, len(ev.Upcoming))
		for _, u := range ev.Upcoming {
			rows = append(rows, []string{fmt.Sprint(u.Item.ID), u.Item.Title, u.At.Format("15:04"), "in " + u.In.Round(time.Minute).String()})
		}
		b.WriteString("\nLater today\n")
		b.WriteString(renderTable([]string{"ID", "Title", "At", "In"}, rows, []columnAlignment{alignRight}))
		b.WriteString("\n")
	}

	if len(ev.Malformed) > 0 {
		rows := make([][]string, 0, len(ev.Malformed))
		for _, m := range ev.Malformed {
			rows = append(rows, []string{fmt.Sprint(m.Item.ID), m.Item.Title, m.Err.Error()})
		}
		b.WriteString("\nSkipped (malformed)\n")
		b.WriteString(renderTable([]string{"ID", "Title", "Problem"}, rows, []columnAlignment{alignRight}))
		b.WriteString("\n")
	}
	return b.String()
}

func releaseLabel(t *schedule.TimeOfDay) string {
	if t == nil {
		return "-"
	}
	return t.String()
}
