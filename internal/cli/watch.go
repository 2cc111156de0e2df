package cli

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/spf13/cobra"

	"github.com/iliyamo/league-client/internal/guard"
	"github.com/iliyamo/league-client/internal/metrics"
	"github.com/iliyamo/league-client/internal/realtime"
	"github.com/iliyamo/league-client/internal/session"
)

// ErrSessionEnded is returned by watch when the session stops being
// authenticated while streaming.
var ErrSessionEnded = errors.New("session ended: run `leaguectl login` to continue")

// WatchOptions holds watch flags.
type WatchOptions struct {
	Topics      []string
	MetricsAddr string
	Count       int
}

// NewWatchCommand creates the watch command.
func NewWatchCommand(opts *RootOptions) *cobra.Command {
	wopts := &WatchOptions{}

	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Stream live events for one or more topics",
		Long: `Follow topics on the push channel and print every event as it arrives,
with the unread counter and connection state.

Subscriptions survive reconnects; the command exits on interrupt or when the
session ends.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if len(wopts.Topics) == 0 {
				return errors.New("at least one --topic is required")
			}
			return runWatch(cmd, opts, wopts)
		},
	}

	cmd.Flags().StringSliceVarP(&wopts.Topics, "topic", "t", nil, "topic to follow (repeatable)")
	cmd.Flags().StringVar(&wopts.MetricsAddr, "metrics-addr", "", "serve Prometheus metrics on this address")
	cmd.Flags().IntVarP(&wopts.Count, "count", "n", 0, "exit after this many events (0 = unlimited)")

	return opts.stream(opts.route(cmd, guard.Route{Path: "/watch"}))
}

func runWatch(cmd *cobra.Command, opts *RootOptions, wopts *WatchOptions) error {
	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	a := opts.rt.App
	p := newPrinter(cmd, opts)
	var outMu sync.Mutex
	emit := func(fn func() error) {
		outMu.Lock()
		defer outMu.Unlock()
		if err := fn(); err != nil {
			a.Log.Warn("write output", "err", err)
		}
	}

	if wopts.MetricsAddr != "" {
		stop, err := serveMetrics(wopts.MetricsAddr, opts)
		if err != nil {
			return err
		}
		defer stop()
	}

	ended := make(chan struct{})
	var endOnce sync.Once
	defer a.Session.OnChange(func(_, next session.State) {
		if next.Status != session.Authenticated {
			endOnce.Do(func() { close(ended) })
		}
	})()

	defer a.Channel.OnStateChange(func(_, next realtime.ConnectionState) {
		emit(func() error { return p.state(next) })
	})()

	done := make(chan struct{})
	var (
		seenMu sync.Mutex
		seen   = a.Notifications.Appended()
		shown  int
	)
	defer a.Notifications.OnChange(func() {
		seenMu.Lock()
		defer seenMu.Unlock()
		if wopts.Count > 0 && shown >= wopts.Count {
			return
		}
		events, unread, total := a.Notifications.Snapshot()

		fresh := int(total - seen)
		seen = total
		if fresh > len(events) {
			fresh = len(events)
		}
		for i := fresh - 1; i >= 0; i-- {
			ev := events[i]
			emit(func() error { return p.event(ev, unread) })
			shown++
			if wopts.Count > 0 && shown == wopts.Count {
				close(done)
				return
			}
		}
	})()

	emit(func() error { return p.state(a.Channel.State()) })
	for _, t := range wopts.Topics {
		a.Channel.Subscribe(t)
	}

	select {
	case <-ctx.Done():
		return nil
	case <-done:
		return nil
	case <-ended:
		return ErrSessionEnded
	}
}

// serveMetrics exposes opts.reg on addr until the returned stop is called.
func serveMetrics(addr string, opts *RootOptions) (stop func(), err error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("metrics listener: %w", err)
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler(opts.reg))
	srv := &http.Server{Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			opts.rt.App.Log.Error("metrics server", "err", err)
		}
	}()
	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctx)
	}, nil
}
