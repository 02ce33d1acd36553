package due

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/julianstephens/fieldcall/internal/cli"
	"github.com/julianstephens/fieldcall/internal/config"
	"github.com/julianstephens/fieldcall/internal/logger"
	"github.com/julianstephens/fieldcall/internal/metrics"
	"github.com/julianstephens/fieldcall/internal/notifier"
	"github.com/julianstephens/fieldcall/internal/scanner"
)

type DueScanCmd struct {
	Agents []string `help:"Also show activities owned by these agents."`
}

func (c *DueScanCmd) Run(ctx *cli.Context) error {
	agent, err := ctx.AgentID()
	if err != nil {
		return err
	}
	items, err := ctx.Engine.ScanDue(ctx.Context(), agent, ownership(agent, c.Agents))
	if err != nil {
		return err
	}
	if len(items) == 0 {
		ctx.Println("Nothing due.")
		return nil
	}

	loc := ctx.Location()
	w := tabwriter.NewWriter(ctx.Writer(), 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "KIND\tSINCE\tCOMPANY\tTYPE\tSTATUS\tOUTCOME\tACTIVITY")
	for _, it := range items {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
			it.Kind, cli.FormatTime(&it.At, loc), it.Company, it.Type, it.Status, it.Outcome, it.ActivityID)
	}
	return w.Flush()
}

type DueWatchCmd struct {
	Agents      []string `help:"Also surface activities owned by these agents."`
	MetricsAddr string   `help:"Serve Prometheus metrics on this address. Defaults to metrics.addr from the config; empty disables."`
}

func (c *DueWatchCmd) Run(ctx *cli.Context) error {
	agent, err := ctx.AgentID()
	if err != nil {
		return err
	}
	cfgs := config.NewManager(ctx.ConfigPath)
	cfg, err := cfgs.Load()
	if err != nil {
		return err
	}

	runCtx, cancel := context.WithCancel(ctx.Context())
	defer cancel()

	runner := scanner.NewRunner(ctx.Engine.Scanner(), sink(cfg, ctx), agent,
		scanner.WithInterval(cfg.Scan.Interval),
		scanner.WithJitter(cfg.Scan.Jitter),
		scanner.WithOwnership(ownership(agent, c.Agents)),
		scanner.WithRunnerClock(ctx.Engine.Now),
	)

	go func() {
		if err := cfgs.Watch(runCtx); err != nil {
			logger.Warn("config watch stopped", "path", ctx.ConfigPath, "error", err)
		}
	}()
	go func(updates <-chan *config.Config) {
		for {
			select {
			case <-runCtx.Done():
				return
			case next := <-updates:
				if err := runner.Apply(next.Scan.Interval, next.Scan.Jitter); err != nil {
					logger.Warn("scan settings rejected", "error", err)
				}
			}
		}
	}(cfgs.Subscribe())

	addr := c.MetricsAddr
	if addr == "" {
		addr = cfg.Metrics.Addr
	}
	if addr != "" {
		srv := serveMetrics(addr)
		defer func() {
			shutdownCtx, done := context.WithTimeout(context.Background(), 5*time.Second)
			defer done()
			_ = srv.Shutdown(shutdownCtx)
		}()
	}

	ctx.Printf("Watching due items for %s every %s (Ctrl+C to stop)\n", agent, cfg.Scan.Interval)
	return runner.Start(runCtx)
}

type DueCmd struct {
	Scan  DueScanCmd  `cmd:"" default:"withargs" help:"List the agent's due items now."`
	Watch DueWatchCmd `cmd:"" help:"Scan on a timer and notify about new due items."`
}

func sink(cfg *config.Config, ctx *cli.Context) scanner.Sink {
	var n notifier.Notifier = notifier.Log{}
	if cfg.NotificationsEnabled() {
		n = notifier.NewLimited(notifier.Fallback{Primary: notifier.NewTray(), Secondary: notifier.Log{}}, cfg.Notify.RatePerSec)
	}
	return scanner.NotifySink{Notifier: n, Location: ctx.Location()}
}

// ownership lets agent see its own activities plus those of extra.
func ownership(agent string, extra []string) scanner.Owns {
	if len(extra) == 0 {
		return nil
	}
	allowed := map[string]bool{agent: true}
	for _, a := range extra {
		if a = strings.TrimSpace(a); a != "" {
			allowed[a] = true
		}
	}
	return func(owner string) bool { return allowed[owner] }
}

func serveMetrics(addr string) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(metrics.Registry, promhttp.HandlerOpts{}))
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("metrics server failed", "addr", addr, "error", err)
		}
	}()
	logger.Info("serving metrics", "addr", addr)
	return srv
}
