package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/mitchellh/go-ps"

	"github.com/julianstephens/habitual/internal/constants"
	"github.com/julianstephens/habitual/internal/models"
)

var findProcessFunc = ps.FindProcess

// WebhookPayload is the body posted to the tray app
type WebhookPayload struct {
	Text       string `json:"text"`
	DurationMs uint32 `json:"duration_ms"`
}

// TrayNotifier shows a desktop toast through a locally running tray app.
// The tray advertises itself with a "port|pid|secret" lockfile.
type TrayNotifier struct {
	LockfilePath string
	Client       *http.Client
}

func NewTrayNotifier(lockfilePath string) *TrayNotifier {
	return &TrayNotifier{
		LockfilePath: lockfilePath,
		Client:       &http.Client{Timeout: 2 * time.Second},
	}
}

// EntryToggled only announces completions; un-completing is silent.
func (n *TrayNotifier) EntryToggled(ctx context.Context, habit models.HabitWithCategory, entry models.HabitEntry) error {
	if !entry.IsCompleted {
		return nil
	}

	port, secret, err := findAndValidateTrayProcess(n.LockfilePath)
	if err != nil {
		return err
	}

	payload := WebhookPayload{
		Text:       fmt.Sprintf("%s done for %s", habit.Name, entry.EntryDate),
		DurationMs: constants.NotificationDurationMs,
	}
	return n.send(ctx, port, secret, payload)
}

func findAndValidateTrayProcess(lockfilePath string) (string, string, error) {
	content, err := os.ReadFile(lockfilePath)
	if err != nil {
		return "", "", errors.New("tray app is not running")
	}

	parts := strings.Split(strings.TrimSpace(string(content)), "|")
	if len(parts) != 3 {
		return "", "", errors.New("lockfile is malformed")
	}

	port := strings.TrimSpace(parts[0])
	portNum, err := strconv.Atoi(port)
	if err != nil {
		return "", "", errors.New("invalid port number in lockfile")
	}
	if portNum < 1 || portNum > 65535 {
		return "", "", fmt.Errorf("port number %d is outside valid range (1-65535)", portNum)
	}

	pid, err := strconv.Atoi(strings.TrimSpace(parts[1]))
	if err != nil {
		return "", "", errors.New("invalid process ID in lockfile")
	}
	secret := strings.TrimSpace(parts[2])
	if secret == "" {
		return "", "", errors.New("secret in lockfile is empty")
	}

	// A stale lockfile can point at a recycled pid
	process, err := findProcessFunc(pid)
	if err != nil || process == nil {
		return "", "", errors.New("tray process not running")
	}
	if !strings.HasPrefix(process.Executable(), constants.TrayAppExecutable) {
		return "", "", fmt.Errorf("process with PID %d is not %s (is %s)", pid, constants.TrayAppExecutable, process.Executable())
	}

	return port, secret, nil
}

func (n *TrayNotifier) send(ctx context.Context, port, secret string, payload WebhookPayload) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, "http://127.0.0.1:"+port, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Habitual-Secret", secret)

	res, err := n.Client.Do(req)
	if err != nil {
		return err
	}
	defer res.Body.Close()

	if res.StatusCode == http.StatusOK {
		return nil
	}
	msg, _ := io.ReadAll(res.Body)
	return fmt.Errorf("notification failed with status %d: %s", res.StatusCode, string(msg))
}
