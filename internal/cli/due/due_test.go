package due

import (
	"bytes"
	"context"
	"strings"
	"testing"
	"time"

	"github.com/julianstephens/fieldcall/internal/cli"
	"github.com/julianstephens/fieldcall/internal/config"
	"github.com/julianstephens/fieldcall/internal/engine"
	"github.com/julianstephens/fieldcall/internal/models"
	"github.com/julianstephens/fieldcall/internal/notifier"
	"github.com/julianstephens/fieldcall/internal/scanner"
	"github.com/julianstephens/fieldcall/internal/storage/memory"
)

func setupTestContext(t *testing.T, agent string) (*cli.Context, *bytes.Buffer) {
	t.Helper()
	store := memory.New()
	now := time.Date(2024, 3, 4, 9, 0, 0, 0, time.UTC)
	out := &bytes.Buffer{}
	return &cli.Context{
		Store: store,
		Engine: engine.New(store, engine.Options{
			Location: time.UTC,
			Now:      func() time.Time { return now },
		}),
		Agent: agent,
		Out:   out,
	}, out
}

func TestDueScanCmd(t *testing.T) {
	ctx, out := setupTestContext(t, "a1")

	if err := (&DueScanCmd{}).Run(ctx); err != nil {
		t.Fatalf("scan failed: %v", err)
	}
	if !strings.Contains(out.String(), "Nothing due.") {
		t.Errorf("output = %q", out.String())
	}

	_, err := ctx.Engine.CreateActivity(context.Background(), engine.CreateActivityRequest{
		AgentID: "a1",
		Type:    models.ActivityInboundInquiry,
		Company: models.CompanySnapshot{Name: "Walk-in"},
	})
	if err != nil {
		t.Fatalf("create failed: %v", err)
	}

	out.Reset()
	if err := (&DueScanCmd{}).Run(ctx); err != nil {
		t.Fatalf("scan failed: %v", err)
	}
	if !strings.Contains(out.String(), "inquiry") || !strings.Contains(out.String(), "Walk-in") {
		t.Errorf("output:\n%s", out.String())
	}
}

func TestDueScanCmd_OtherAgents(t *testing.T) {
	ctx, out := setupTestContext(t, "lead")
	_, err := ctx.Engine.CreateActivity(context.Background(), engine.CreateActivityRequest{
		AgentID: "a2",
		Type:    models.ActivityInboundInquiry,
		Company: models.CompanySnapshot{Name: "Teammate Lead"},
	})
	if err != nil {
		t.Fatalf("create failed: %v", err)
	}

	if err := (&DueScanCmd{}).Run(ctx); err != nil {
		t.Fatalf("scan failed: %v", err)
	}
	if strings.Contains(out.String(), "Teammate Lead") {
		t.Errorf("another agent's item surfaced without --agents:\n%s", out.String())
	}

	out.Reset()
	if err := (&DueScanCmd{Agents: []string{"a2"}}).Run(ctx); err != nil {
		t.Fatalf("scan failed: %v", err)
	}
	if !strings.Contains(out.String(), "Teammate Lead") {
		t.Errorf("output:\n%s", out.String())
	}
}

func TestOwnership(t *testing.T) {
	if ownership("a1", nil) != nil {
		t.Error("expected nil ownership without extra agents")
	}
	owns := ownership("a1", []string{" a2 ", ""})
	for owner, want := range map[string]bool{"a1": true, "a2": true, "a3": false, "": false} {
		if got := owns(owner); got != want {
			t.Errorf("owns(%q) = %v, want %v", owner, got, want)
		}
	}
}

func TestSink(t *testing.T) {
	ctx, _ := setupTestContext(t, "a1")

	cfg := config.Default()
	off := false
	cfg.Notify.Enabled = &off
	s, ok := sink(cfg, ctx).(scanner.NotifySink)
	if !ok {
		t.Fatalf("sink is %T", sink(cfg, ctx))
	}
	if _, ok := s.Notifier.(notifier.Log); !ok {
		t.Errorf("disabled notifications use %T, want notifier.Log", s.Notifier)
	}

	on := true
	cfg.Notify.Enabled = &on
	s = sink(cfg, ctx).(scanner.NotifySink)
	if _, ok := s.Notifier.(*notifier.Limited); !ok {
		t.Errorf("enabled notifications use %T, want *notifier.Limited", s.Notifier)
	}
}
