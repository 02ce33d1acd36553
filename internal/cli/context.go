package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/julianstephens/fieldcall/internal/backup"
	"github.com/julianstephens/fieldcall/internal/config"
	"github.com/julianstephens/fieldcall/internal/constants"
	"github.com/julianstephens/fieldcall/internal/engine"
	apperrors "github.com/julianstephens/fieldcall/internal/errors"
	"github.com/julianstephens/fieldcall/internal/logger"
	"github.com/julianstephens/fieldcall/internal/storage"
	"github.com/julianstephens/fieldcall/internal/storage/sqlite"
	"github.com/julianstephens/fieldcall/internal/utils"
)

type Context struct {
	Store      storage.Provider
	Engine     *engine.Engine
	Config     *config.Config
	ConfigPath string
	Agent      string
	Out        io.Writer
	// Ctx is cancelled on SIGINT/SIGTERM.
	Ctx context.Context
}

func (c *Context) Context() context.Context {
	if c.Ctx == nil {
		return context.Background()
	}
	return c.Ctx
}

// Writer is where command output goes.
func (c *Context) Writer() io.Writer { return c.out() }

func (c *Context) out() io.Writer {
	if c.Out == nil {
		return os.Stdout
	}
	return c.Out
}

func (c *Context) Printf(format string, args ...interface{}) {
	fmt.Fprintf(c.out(), format, args...)
}

func (c *Context) Println(args ...interface{}) {
	fmt.Fprintln(c.out(), args...)
}

// AgentID returns the agent the command acts for.
func (c *Context) AgentID() (string, error) {
	agent := strings.TrimSpace(c.Agent)
	if agent == "" {
		return "", apperrors.Invalid("agent", "set --agent or FIELDCALL_AGENT")
	}
	return agent, nil
}

func (c *Context) Location() *time.Location {
	if c.Engine != nil {
		return c.Engine.Location()
	}
	return time.Local
}

// PerformAutomaticBackup snapshots a SQLite database before destructive
// commands. Failures are logged and otherwise ignored.
func (c *Context) PerformAutomaticBackup() {
	if _, ok := c.Store.(*sqlite.Store); !ok {
		return
	}
	mgr := backup.NewManager(c.Store.GetConfigPath())
	if _, err := mgr.Create(context.Background()); err != nil {
		logger.Warn("automatic backup failed", "error", err)
	}
}

// ParseTimestamp accepts RFC 3339, "YYYY-MM-DD HH:MM" or a bare date, which
// means 09:00 that day.
func ParseTimestamp(s string, loc *time.Location) (time.Time, error) {
	s = strings.TrimSpace(s)
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, nil
	}
	if date, clock, ok := strings.Cut(s, " "); ok {
		return utils.CombineDateAndTime(date, strings.TrimSpace(clock), loc)
	}
	if _, err := time.Parse(constants.DateFormat, s); err == nil {
		return utils.CombineDateAndTime(s, "09:00", loc)
	}
	return time.Time{}, fmt.Errorf("invalid timestamp %q, use YYYY-MM-DD [HH:MM] or RFC 3339", s)
}

// FormatTime renders an optional timestamp in loc, "-" when unset.
func FormatTime(t *time.Time, loc *time.Location) string {
	if t == nil {
		return "-"
	}
	return t.In(loc).Format(constants.DateFormat + " " + constants.TimeFormat)
}
