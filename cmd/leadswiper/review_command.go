package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"leadswiper/internal/claims"
	"leadswiper/internal/logging"
	"leadswiper/internal/metrics"
	"leadswiper/internal/queue"
	"leadswiper/internal/queueaccess"
	"leadswiper/internal/ranking"
	"leadswiper/internal/session"
)

const reviewHelp = "[a]pprove [r]eject [s]uperlike [u]ndo [c]ontact [k]sort [l]reload [q]uit"

func newReviewCommand(ctx *commandContext) *cobra.Command {
	var sortKey string
	var metricsBind string

	cmd := &cobra.Command{
		Use:   "review",
		Short: "Start an interactive reviewer session",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			worker, err := ctx.workerID()
			if err != nil {
				return err
			}
			runCtx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			logger := ctx.log()
			return ctx.withStore(runCtx, func(access *queueaccess.Session) error {
				registry := prometheus.NewRegistry()
				manager := claims.NewManager(access.Store, cfg.LeaseDuration(),
					claims.WithLogger(logger),
					claims.WithMetrics(metrics.NewClaims(registry)),
					claims.WithConcurrency(cfg.Leases.AcquireConcurrency),
				)
				if metricsBind != "" {
					stopMetrics := serveMetrics(metricsBind, registry, logger)
					defer stopMetrics()
				}

				opts := session.OptionsFromConfig(cfg, worker)
				opts.Logger = logger
				if sortKey != "" {
					key, err := ranking.ParseKey(sortKey)
					if err != nil {
						return err
					}
					opts.SortKey = key
				}
				s := session.New(access.Store, manager, access.Teardown(manager, cfg), opts)
				defer func() {
					s.Wait()
					s.Teardown()
				}()

				return runReview(runCtx, s, cmd.InOrStdin(), cmd.OutOrStdout())
			})
		},
	}

	cmd.Flags().StringVar(&sortKey, "sort", "", fmt.Sprintf("Ranking key (%s)", joinKeys()))
	cmd.Flags().StringVar(&metricsBind, "metrics-bind", "", "Expose claim metrics on this address while reviewing")
	return cmd
}

func joinKeys() string {
	keys := ranking.Keys()
	out := make([]string, len(keys))
	for i, k := range keys {
		out[i] = string(k)
	}
	return strings.Join(out, ", ")
}

func serveMetrics(bind string, registry *prometheus.Registry, logger *slog.Logger) func() {
	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler(registry))
	server := &http.Server{Addr: bind, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Warn("metrics listener failed", logging.Error(err))
		}
	}()
	return func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
	}
}

// runReview loads a batch and drives the interactive loop until the input
// ends or the reviewer quits. Writes still unconfirmed at exit are reconciled
// and reported as an error.
func runReview(ctx context.Context, s *session.Session, in io.Reader, out io.Writer) error {
	if err := s.Load(ctx); err != nil {
		return err
	}
	r := &reviewer{
		session: s,
		in:      bufio.NewScanner(in),
		out:     out,
		color:   shouldColorize(out),
	}
	if err := r.run(ctx); err != nil {
		return err
	}
	return settleWrites(s)
}

type reviewer struct {
	session *session.Session
	in      *bufio.Scanner
	out     io.Writer
	color   bool
}

func (r *reviewer) run(ctx context.Context) error {
	for {
		if ctx.Err() != nil {
			return nil
		}
		r.session.Reconcile()
		r.show()
		line, ok := r.prompt("> ")
		if !ok {
			return nil
		}
		quit, err := r.handle(ctx, line)
		if err != nil {
			fmt.Fprintf(r.out, "error: %v\n", err)
		}
		if quit {
			return nil
		}
	}
}

func (r *reviewer) prompt(label string) (string, bool) {
	fmt.Fprint(r.out, label)
	if !r.in.Scan() {
		return "", false
	}
	return strings.TrimSpace(r.in.Text()), true
}

func (r *reviewer) handle(ctx context.Context, line string) (bool, error) {
	switch strings.ToLower(line) {
	case "a":
		return false, r.decide(ctx, queue.StatusApproved)
	case "r":
		return false, r.decide(ctx, queue.StatusRejected)
	case "s":
		return false, r.decide(ctx, queue.StatusSuperliked)
	case "u":
		lead, ok, err := r.session.Undo(ctx)
		if err != nil {
			return false, err
		}
		if !ok {
			fmt.Fprintln(r.out, "nothing to undo")
			return false, nil
		}
		fmt.Fprintf(r.out, "restored %s\n", lead.Username)
	case "c":
		current := r.session.Current()
		if current == nil {
			return false, session.ErrNotQueued
		}
		notes, _ := r.prompt("notes: ")
		return false, r.session.Contact(ctx, current, notes)
	case "k":
		return false, r.cycleSort()
	case "l":
		return false, r.session.Load(ctx)
	case "q", "quit", "exit":
		return true, nil
	case "", "?", "h":
		fmt.Fprintln(r.out, reviewHelp)
	default:
		fmt.Fprintf(r.out, "unknown command %q\n%s\n", line, reviewHelp)
	}
	return false, nil
}

func (r *reviewer) decide(ctx context.Context, action queue.Status) error {
	lead, err := r.session.DecideCurrent(ctx, action)
	if err != nil {
		return err
	}
	fmt.Fprintf(r.out, "%s %s\n", colorize(statusLabel(action), statusColor(action), r.color), lead.Username)
	return nil
}

func (r *reviewer) cycleSort() error {
	keys := ranking.Keys()
	current := r.session.SortKey()
	next := keys[0]
	for i, k := range keys {
		if k == current {
			next = keys[(i+1)%len(keys)]
			break
		}
	}
	if err := r.session.SetSortKey(next); err != nil {
		return err
	}
	fmt.Fprintf(r.out, "sorting by %s\n", next)
	return nil
}

func (r *reviewer) show() {
	counters := r.session.Counters()
	fmt.Fprintf(r.out, "\npending %d | approved %d | rejected %d | superliked %d | contacted %d\n",
		counters[queue.StatusPending], counters[queue.StatusApproved], counters[queue.StatusRejected],
		counters[queue.StatusSuperliked], counters[queue.StatusContacted])

	if failed := r.session.Unconfirmed(); len(failed) > 0 {
		fmt.Fprintln(r.out, colorize(fmt.Sprintf("unsaved: %s", strings.Join(failed, ", ")), ansiRed, r.color))
	}

	lead := r.session.Current()
	if lead == nil {
		fmt.Fprintln(r.out, "queue empty: [l]reload or [q]uit")
		return
	}
	key := r.session.SortKey()
	fmt.Fprintf(r.out, "%s  karma %d (+%d comment)  %s %s  queue %d\n",
		colorize(lead.Username, ansiBlue, r.color), lead.Karma, lead.CommentKarma,
		key, formatScore(ranking.Score(lead, key, time.Now())), len(r.session.Queue()))
	if lead.ProfileURL != "" {
		fmt.Fprintln(r.out, lead.ProfileURL)
	}
	for i, post := range lead.Posts {
		if i == 3 {
			fmt.Fprintf(r.out, "  ... %d more posts\n", len(lead.Posts)-i)
			break
		}
		fmt.Fprintf(r.out, "  [%s] %s (%d up, %d comments)\n", post.Group, post.Title, post.Upvotes, post.NumComments)
	}
	fmt.Fprintln(r.out, reviewHelp)
}
