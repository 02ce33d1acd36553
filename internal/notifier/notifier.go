// Package notifier surfaces due items to the agent, either through the
// fieldcall tray app or through the log.
package notifier

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/mitchellh/go-ps"
	"golang.org/x/time/rate"

	"github.com/julianstephens/fieldcall/internal/constants"
	"github.com/julianstephens/fieldcall/internal/logger"
)

const trayExecutable = "fieldcall-tray"

var (
	userConfigDirFunc = os.UserConfigDir
	findProcessFunc   = ps.FindProcess
)

// ErrTrayNotRunning is returned when no live tray app owns the lockfile.
var ErrTrayNotRunning = errors.New("fieldcall-tray is not running")

// Notifier delivers one line of text to the agent.
type Notifier interface {
	Notify(ctx context.Context, text string) error
}

type Tray struct {
	client *http.Client
}

type trayPayload struct {
	Text       string `json:"text"`
	DurationMs uint32 `json:"duration_ms"`
}

func NewTray() *Tray {
	return &Tray{client: &http.Client{Timeout: 5 * time.Second}}
}

func (n *Tray) Notify(ctx context.Context, text string) error {
	dir, err := TrayConfigDir()
	if err != nil {
		return err
	}
	port, secret, err := readLockfile(filepath.Join(dir, constants.NotifierLockfileName))
	if err != nil {
		return err
	}
	return n.send(ctx, port, secret, trayPayload{Text: text, DurationMs: constants.NotificationDurationMs})
}

// TrayConfigDir returns the tray app's directory, honouring a lockfile_dir
// override in its settings.json.
func TrayConfigDir() (string, error) {
	configDir, err := userConfigDirFunc()
	if err != nil {
		return "", fmt.Errorf("failed to get user config dir: %w", err)
	}
	dir := filepath.Join(configDir, constants.TrayAppIdentifier)

	data, err := os.ReadFile(filepath.Join(dir, "settings.json"))
	if err != nil {
		return dir, nil
	}
	var store struct {
		Settings struct {
			LockfileDir string `json:"lockfile_dir"`
		} `json:"settings"`
	}
	if json.Unmarshal(data, &store) == nil && store.Settings.LockfileDir != "" {
		return store.Settings.LockfileDir, nil
	}
	return dir, nil
}

// readLockfile parses "port|pid|secret" and checks that pid is the tray app.
func readLockfile(path string) (port, secret string, err error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return "", "", ErrTrayNotRunning
	}

	parts := strings.Split(strings.TrimSpace(string(content)), "|")
	if len(parts) != 3 {
		return "", "", errors.New("lockfile is malformed")
	}
	port, secret = strings.TrimSpace(parts[0]), strings.TrimSpace(parts[2])

	n, err := strconv.Atoi(port)
	if err != nil {
		return "", "", errors.New("invalid port number in lockfile")
	}
	if n < 1 || n > 65535 {
		return "", "", fmt.Errorf("port number %d is outside valid range (1-65535)", n)
	}
	pid, err := strconv.Atoi(strings.TrimSpace(parts[1]))
	if err != nil {
		return "", "", errors.New("invalid process ID in lockfile")
	}
	if secret == "" {
		return "", "", errors.New("secret in lockfile is empty")
	}

	proc, err := findProcessFunc(pid)
	if err != nil || proc == nil {
		return "", "", ErrTrayNotRunning
	}
	if !strings.HasPrefix(proc.Executable(), trayExecutable) {
		return "", "", fmt.Errorf("process with PID %d is not %s (is %s)", pid, trayExecutable, proc.Executable())
	}
	return port, secret, nil
}

func (n *Tray) send(ctx context.Context, port, secret string, p trayPayload) error {
	body, err := json.Marshal(p)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, "http://127.0.0.1:"+port, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Fieldcall-Secret", secret)

	res, err := n.client.Do(req)
	if err != nil {
		return err
	}
	defer res.Body.Close()

	if res.StatusCode == http.StatusOK {
		return nil
	}
	msg, _ := io.ReadAll(io.LimitReader(res.Body, 512))
	return fmt.Errorf("notification failed with status %d: %s", res.StatusCode, strings.TrimSpace(string(msg)))
}

// Log writes notifications to the application log.
type Log struct{}

func (Log) Notify(_ context.Context, text string) error {
	logger.Info("due", "item", text)
	return nil
}

// Fallback tries the tray first and falls back to the log when the tray app
// is not running.
type Fallback struct {
	Primary   Notifier
	Secondary Notifier
}

func (f Fallback) Notify(ctx context.Context, text string) error {
	err := f.Primary.Notify(ctx, text)
	if err == nil {
		return nil
	}
	logger.Debug("primary notifier failed, falling back", "error", err)
	return f.Secondary.Notify(ctx, text)
}

// Limited drops notifications beyond the configured rate rather than queueing
// them.
type Limited struct {
	next    Notifier
	limiter *rate.Limiter
}

func NewLimited(next Notifier, perSec float64) *Limited {
	if perSec <= 0 {
		return &Limited{next: next}
	}
	burst := int(perSec)
	if burst < 1 {
		burst = 1
	}
	return &Limited{next: next, limiter: rate.NewLimiter(rate.Limit(perSec), burst)}
}

// ErrRateLimited is returned for a dropped notification.
var ErrRateLimited = errors.New("notification rate limited")

func (l *Limited) Notify(ctx context.Context, text string) error {
	if l.limiter != nil && !l.limiter.Allow() {
		return ErrRateLimited
	}
	return l.next.Notify(ctx, text)
}
