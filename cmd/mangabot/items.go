package main

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"mangabot/internal/app"
	"mangabot/internal/httpapi"
	"mangabot/internal/schedule"
	"mangabot/internal/storage"
)

func newItemsCommand(ctx *commandContext) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "items",
		Short: "Manage tracked releases",
	}
	cmd.AddCommand(newItemsListCommand(ctx))
	cmd.AddCommand(newItemsAddCommand(ctx))
	cmd.AddCommand(newItemsSetCadenceCommand(ctx))
	cmd.AddCommand(newItemsStatusCommand(ctx))
	cmd.AddCommand(newItemsDeleteCommand(ctx))
	return cmd
}

func newItemsListCommand(ctx *commandContext) *cobra.Command {
	var all, asJSON bool
	cmd := &cobra.Command{
		Use:     "list",
		Aliases: []string{"ls"},
		Short:   "List tracked releases (DONE hidden unless --all)",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withOneshot(cmd.Context(), app.OneshotOptions{ReadOnly: true}, func(o *app.Oneshot) error {
				items, err := o.Store.List(cmd.Context(), storage.ListFilter{IncludeDone: all})
				if err != nil {
					return err
				}
				if asJSON {
					views := make([]httpapi.ItemView, 0, len(items))
					for _, it := range items {
						views = append(views, httpapi.NewItemView(it))
					}
					return writeJSON(cmd, views)
				}
				out := cmd.OutOrStdout()
				if len(items) == 0 {
					fmt.Fprintln(out, "No items.")
					return nil
				}
				fmt.Fprintln(out, renderItems(items, time.Now(), func(s string) string { return dim(out, s) }))
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&all, "all", false, "Include DONE items")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print JSON")
	return cmd
}

func renderItems(items []schedule.Item, now time.Time, faint func(string) string) string {
	rows := make([][]string, 0, len(items))
	for _, it := range items {
		last := faint("never")
		if it.LastNotifiedAt != nil {
			last = humanize.RelTime(*it.LastNotifiedAt, now, "ago", "from now")
		}
		next := "-"
		if it.Cadence.IsInterval() && it.Cadence.NextDue != nil {
			next = it.Cadence.NextDue.Format("2006-01-02")
		}
		rows = append(rows, []string{
			strconv.FormatInt(it.ID, 10),
			it.Title,
			it.Cadence.Describe(),
			releaseLabel(it.ReleaseTime),
			next,
			string(it.Status),
			last,
		})
	}
	return renderTable(
		[]string{"ID", "Title", "Schedule", "Release", "Next due", "Status", "Last notified"},
		rows,
		[]columnAlignment{alignRight},
	)
}

type cadenceFlags struct {
	day     string
	every   int
	next    string
	release string
}

func (f *cadenceFlags) bind(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.day, "day", "", "Weekly release day (monday..sunday, or everyday)")
	cmd.Flags().IntVar(&f.every, "every", 0, "Release every N days instead of weekly")
	cmd.Flags().StringVar(&f.next, "next", "", "First due date for --every (YYYY-MM-DD, default: today)")
	cmd.Flags().StringVar(&f.release, "release", "", "Release time of day (HH:MM)")
	cmd.MarkFlagsMutuallyExclusive("day", "every")
}

func (f *cadenceFlags) cadence(loc *time.Location) (schedule.Cadence, error) {
	switch {
	case f.every > 0:
		var next *time.Time
		if strings.TrimSpace(f.next) != "" {
			t, err := time.ParseInLocation("2006-01-02", strings.TrimSpace(f.next), loc)
			if err != nil {
				return schedule.Cadence{}, fmt.Errorf("--next: %w", err)
			}
			next = &t
		}
		return schedule.Interval(f.every, next), nil
	case strings.TrimSpace(f.day) != "":
		d, err := schedule.ParseWeekday(f.day)
		if err != nil {
			return schedule.Cadence{}, err
		}
		return schedule.Weekly(d), nil
	default:
		return schedule.Cadence{}, errors.New("one of --day or --every is required")
	}
}

func (f *cadenceFlags) releaseTime() (*schedule.TimeOfDay, error) {
	if strings.TrimSpace(f.release) == "" {
		return nil, nil
	}
	t, err := schedule.ParseTimeOfDay(f.release)
	if err != nil {
		return nil, fmt.Errorf("--release: %w", err)
	}
	return &t, nil
}

func newItemsAddCommand(ctx *commandContext) *cobra.Command {
	var (
		cf                      cadenceFlags
		link, creator, imageURL string
	)
	cmd := &cobra.Command{
		Use:   "add TITLE",
		Short: "Track a new release",
		Example: "  mangabot items add \"One Piece\" --day sunday --release 22:00\n" +
			"  mangabot items add \"Daily Strip\" --every 1",
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withOneshot(cmd.Context(), app.OneshotOptions{}, func(o *app.Oneshot) error {
				c, err := cf.cadence(o.Config.Location())
				if err != nil {
					return err
				}
				rt, err := cf.releaseTime()
				if err != nil {
					return err
				}
				it, err := o.Store.Create(cmd.Context(), storage.NewItem{
					Title:       strings.TrimSpace(args[0]),
					Link:        link,
					Creator:     creator,
					ImageURL:    imageURL,
					Cadence:     c,
					ReleaseTime: rt,
				})
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Added #%d %s (%s)\n", it.ID, it.Title, it.Cadence.Describe())
				return nil
			})
		},
	}
	cf.bind(cmd)
	cmd.Flags().StringVar(&link, "link", "", "Reading link")
	cmd.Flags().StringVar(&creator, "creator", "", "Author or circle")
	cmd.Flags().StringVar(&imageURL, "image", "", "Cover image URL")
	return cmd
}

func newItemsSetCadenceCommand(ctx *commandContext) *cobra.Command {
	var cf cadenceFlags
	cmd := &cobra.Command{
		Use:   "set-cadence ID",
		Short: "Switch an item between weekly and every-N-days",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			return ctx.withOneshot(cmd.Context(), app.OneshotOptions{}, func(o *app.Oneshot) error {
				c, err := cf.cadence(o.Config.Location())
				if err != nil {
					return err
				}
				rt, err := cf.releaseTime()
				if err != nil {
					return err
				}
				it, err := o.Store.SetCadence(cmd.Context(), id, c, rt)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "#%d %s: %s\n", it.ID, it.Title, it.Cadence.Describe())
				return nil
			})
		},
	}
	cf.bind(cmd)
	return cmd
}

func newItemsStatusCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "status ID waiting|pending|done",
		Short: "Set an item's status (waiting also resets a stalled interval)",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			st, err := schedule.ParseStatus(args[1])
			if err != nil {
				return err
			}
			return ctx.withOneshot(cmd.Context(), app.OneshotOptions{}, func(o *app.Oneshot) error {
				it, err := o.Store.SetStatus(cmd.Context(), id, st)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "#%d %s: %s\n", it.ID, it.Title, it.Status)
				return nil
			})
		},
	}
}

func newItemsDeleteCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:     "delete ID",
		Aliases: []string{"rm"},
		Short:   "Stop tracking an item",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			return ctx.withOneshot(cmd.Context(), app.OneshotOptions{}, func(o *app.Oneshot) error {
				if err := o.Store.Delete(cmd.Context(), id); err != nil {
					if errors.Is(err, storage.ErrNotFound) {
						return fmt.Errorf("item #%d not found", id)
					}
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Deleted #%d\n", id)
				return nil
			})
		},
	}
}

func parseID(s string) (int64, error) {
	id, err := strconv.ParseInt(strings.TrimPrefix(strings.TrimSpace(s), "#"), 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid item id %q", s)
	}
	return id, nil
}
