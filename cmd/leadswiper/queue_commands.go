package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"leadswiper/internal/api"
	"leadswiper/internal/queue"
	"leadswiper/internal/queueaccess"
	"leadswiper/internal/ranking"
	"leadswiper/internal/session"
)

func newQueueCommand(ctx *commandContext) *cobra.Command {
	queueCmd := &cobra.Command{
		Use:   "queue",
		Short: "Inspect and edit leads",
	}

	queueCmd.AddCommand(newQueueStatusCommand(ctx))
	queueCmd.AddCommand(newQueueListCommand(ctx))
	queueCmd.AddCommand(newQueueShowCommand(ctx))
	queueCmd.AddCommand(newQueueRestoreCommand(ctx))
	queueCmd.AddCommand(newQueueContactCommand(ctx))
	queueCmd.AddCommand(newQueueNotesCommand(ctx))
	queueCmd.AddCommand(newQueueImportCommand(ctx))

	return queueCmd
}

func newQueueStatusCommand(ctx *commandContext) *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show lead counts by status",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withStore(cmd.Context(), func(access *queueaccess.Session) error {
				stats, err := access.Store.Stats(cmd.Context())
				if err != nil {
					return err
				}
				if asJSON {
					return writeJSON(cmd, api.StatsFromCounts(stats))
				}
				color := shouldColorize(cmd.OutOrStdout())
				rows := make([][]string, 0, len(queue.AllStatuses()))
				total := 0
				for _, status := range queue.AllStatuses() {
					count := stats[status]
					total += count
					rows = append(rows, []string{colorize(statusLabel(status), statusColor(status), color), strconv.Itoa(count)})
				}
				rows = append(rows, []string{"Total", strconv.Itoa(total)})
				fmt.Fprintln(cmd.OutOrStdout(), renderTable([]string{"Status", "Leads"}, rows, []columnAlignment{alignLeft, alignRight}))
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "Output JSON")
	return cmd
}

func newQueueListCommand(ctx *commandContext) *cobra.Command {
	var statusFlag string
	var limit int
	var sortFlag string
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List leads with a given status",
		RunE: func(cmd *cobra.Command, args []string) error {
			status, ok := queue.ParseStatus(statusFlag)
			if !ok {
				return fmt.Errorf("%w: %q", queue.ErrInvalidStatus, statusFlag)
			}
			return ctx.withStore(cmd.Context(), func(access *queueaccess.Session) error {
				leads, err := access.Store.List(cmd.Context(), status, limit)
				if err != nil {
					return err
				}
				key := ranking.DefaultKey
				now := time.Now()
				if sortFlag != "" {
					if key, err = ranking.ParseKey(sortFlag); err != nil {
						return err
					}
					leads = ranking.Rank(leads, key, now)
				}
				if asJSON {
					return writeJSON(cmd, api.LeadListResponse{Leads: api.FromLeads(leads)})
				}
				if len(leads) == 0 {
					fmt.Fprintf(cmd.OutOrStdout(), "No %s leads\n", status)
					return nil
				}
				rows := make([][]string, 0, len(leads))
				for _, lead := range leads {
					rows = append(rows, []string{
						lead.ID,
						lead.Username,
						strconv.FormatInt(lead.Karma, 10),
						formatScore(ranking.Score(lead, key, now)),
						strconv.Itoa(len(lead.Posts)),
						lead.ClaimedBy,
						lead.UpdatedAt.Local().Format("2006-01-02 15:04"),
					})
				}
				fmt.Fprintln(cmd.OutOrStdout(), renderTable(
					[]string{"ID", "User", "Karma", string(key), "Posts", "Claimed By", "Updated"},
					rows,
					[]columnAlignment{alignLeft, alignLeft, alignRight, alignRight, alignRight, alignLeft, alignLeft},
				))
				return nil
			})
		},
	}
	cmd.Flags().StringVarP(&statusFlag, "status", "s", string(queue.StatusPending), "Lead status")
	cmd.Flags().IntVarP(&limit, "limit", "n", 50, "Maximum leads to list (0 for all)")
	cmd.Flags().StringVar(&sortFlag, "sort", "", "Re-rank by key")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Output JSON")
	return cmd
}

func newQueueShowCommand(ctx *commandContext) *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "show <id>",
		Short: "Show one lead with its posts and decision log",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withStore(cmd.Context(), func(access *queueaccess.Session) error {
				lead, err := access.Store.GetByID(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				if lead == nil {
					return fmt.Errorf("%w: %s", queue.ErrNotFound, args[0])
				}
				if asJSON {
					return writeJSON(cmd, api.LeadResponse{Lead: api.FromLead(lead)})
				}
				out := cmd.OutOrStdout()
				color := shouldColorize(out)
				fmt.Fprintf(out, "%s (%s)\n", lead.Username, lead.ID)
				fmt.Fprintf(out, "  Status:     %s\n", colorize(statusLabel(lead.Status), statusColor(lead.Status), color))
				fmt.Fprintf(out, "  Karma:      %d post, %d comment\n", lead.Karma, lead.CommentKarma)
				if lead.ProfileURL != "" {
					fmt.Fprintf(out, "  Profile:    %s\n", lead.ProfileURL)
				}
				if lead.Notes != "" {
					fmt.Fprintf(out, "  Notes:      %s\n", lead.Notes)
				}
				if lead.ClaimedBy != "" {
					fmt.Fprintf(out, "  Claimed by: %s for %s\n", lead.ClaimedBy, formatAge(time.Now(), lead.ClaimedAt))
				}
				for _, key := range ranking.Keys() {
					fmt.Fprintf(out, "  %-14s %s\n", string(key)+":", formatScore(ranking.Score(lead, key, time.Now())))
				}
				if len(lead.Posts) > 0 {
					rows := make([][]string, 0, len(lead.Posts))
					for _, post := range lead.Posts {
						rows = append(rows, []string{post.Group, post.Title, strconv.FormatInt(post.Upvotes, 10), formatWhen(post.PostedAt)})
					}
					fmt.Fprintln(out, renderTable([]string{"Group", "Title", "Upvotes", "Posted"}, rows,
						[]columnAlignment{alignLeft, alignLeft, alignRight, alignLeft}))
				}
				if local, ok := access.Store.(*queue.Store); ok {
					decisions, err := local.Decisions(cmd.Context(), lead.ID)
					if err != nil {
						return err
					}
					for _, d := range decisions {
						fmt.Fprintf(out, "  %s  %s\n", d.DecidedAt.Local().Format("2006-01-02 15:04:05"), statusLabel(d.Status))
					}
				}
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "Output JSON")
	return cmd
}

func newQueueRestoreCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "restore <id>...",
		Short: "Move decided leads back to pending",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			leads, err := ctx.loadLeads(cmd.Context(), args)
			if err != nil {
				return err
			}
			return ctx.withSession(cmd.Context(), func(s *session.Session) error {
				for _, lead := range leads {
					if err := s.Restore(cmd.Context(), lead); err != nil {
						return err
					}
					fmt.Fprintf(cmd.OutOrStdout(), "Restored %s (%s) from %s\n", lead.Username, lead.ID, lead.Status)
				}
				return nil
			})
		},
	}
}

func newQueueContactCommand(ctx *commandContext) *cobra.Command {
	var notes string
	cmd := &cobra.Command{
		Use:   "contact <id>",
		Short: "Mark a lead as contacted",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			leads, err := ctx.loadLeads(cmd.Context(), args)
			if err != nil {
				return err
			}
			return ctx.withSession(cmd.Context(), func(s *session.Session) error {
				if err := s.Contact(cmd.Context(), leads[0], notes); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Marked %s contacted\n", args[0])
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&notes, "notes", "", "Contact notes")
	return cmd
}

func newQueueNotesCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "notes <id> <text>",
		Short: "Replace a lead's notes",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			notes := strings.Join(args[1:], " ")
			return ctx.withStore(cmd.Context(), func(access *queueaccess.Session) error {
				if err := access.Store.UpdateNotes(cmd.Context(), args[0], notes, time.Now()); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Updated notes for %s\n", args[0])
				return nil
			})
		},
	}
}

func newQueueImportCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "import <file.json>",
		Short: "Insert or refresh leads from a JSON array",
		Long: "Reads a JSON array of leads in the gateway wire format. Existing leads keep " +
			"their status, notes, and claim; profile fields and posts are refreshed.",
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			raw, err := os.ReadFile(args[0])
			if err != nil {
				return fmt.Errorf("read leads: %w", err)
			}
			var dtos []api.Lead
			if err := json.Unmarshal(raw, &dtos); err != nil {
				return fmt.Errorf("parse leads: %w", err)
			}
			leads, err := api.ToLeads(dtos)
			if err != nil {
				return err
			}
			return ctx.withStore(cmd.Context(), func(access *queueaccess.Session) error {
				var errs []error
				imported := 0
				now := time.Now()
				for _, lead := range leads {
					if err := access.Store.Upsert(cmd.Context(), lead, now); err != nil {
						errs = append(errs, err)
						continue
					}
					imported++
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Imported %d of %d leads\n", imported, len(leads))
				return errors.Join(errs...)
			})
		},
	}
}

func (c *commandContext) loadLeads(ctx context.Context, ids []string) ([]*queue.Lead, error) {
	leads := make([]*queue.Lead, 0, len(ids))
	err := c.withStore(ctx, func(access *queueaccess.Session) error {
		for _, id := range ids {
			lead, err := access.Store.GetByID(ctx, id)
			if err != nil {
				return err
			}
			if lead == nil {
				return fmt.Errorf("%w: %s", queue.ErrNotFound, id)
			}
			leads = append(leads, lead)
		}
		return nil
	})
	return leads, err
}
