package notify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"testing"

	ps "github.com/mitchellh/go-ps"

	"github.com/julianstephens/habitual/internal/constants"
	"github.com/julianstephens/habitual/internal/models"
)

type mockProcess struct {
	pid        int
	executable string
}

func (m *mockProcess) Pid() int           { return m.pid }
func (m *mockProcess) PPid() int          { return 0 }
func (m *mockProcess) Executable() string { return m.executable }

func withProcess(t *testing.T, executable string) {
	t.Helper()
	old := findProcessFunc
	t.Cleanup(func() { findProcessFunc = old })
	findProcessFunc = func(pid int) (ps.Process, error) {
		if executable == "" {
			return nil, nil
		}
		return &mockProcess{pid: pid, executable: executable}, nil
	}
}

func TestFindAndValidateTrayProcess(t *testing.T) {
	tests := []struct {
		name       string
		content    string // empty means no lockfile
		executable string
		wantErr    string
	}{
		{"missing lockfile", "", constants.TrayAppExecutable, "not running"},
		{"two parts", "8080|12345", constants.TrayAppExecutable, "malformed"},
		{"garbage", "invalid", constants.TrayAppExecutable, "malformed"},
		{"empty secret", "8080|12345|", constants.TrayAppExecutable, "secret"},
		{"empty port", "|12345|s3cret", constants.TrayAppExecutable, "port"},
		{"port out of range", "99999|12345|s3cret", constants.TrayAppExecutable, "range"},
		{"bad pid", "8080|abc|s3cret", constants.TrayAppExecutable, "process ID"},
		{"process gone", "8080|12345|s3cret", "", "not running"},
		{"recycled pid", "8080|12345|s3cret", "bash", "is not"},
		{"ok", "8080|12345|s3cret\n", constants.TrayAppExecutable, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			withProcess(t, tt.executable)
			path := filepath.Join(t.TempDir(), constants.TrayLockfileName)
			if tt.content != "" {
				if err := os.WriteFile(path, []byte(tt.content), 0600); err != nil {
					t.Fatal(err)
				}
			}

			port, secret, err := findAndValidateTrayProcess(path)
			if tt.wantErr != "" {
				if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
					t.Fatalf("expected error containing %q, got %v", tt.wantErr, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if port != "8080" || secret != "s3cret" {
				t.Errorf("got port %q secret %q", port, secret)
			}
		})
	}
}

func TestTrayNotifierPostsCompletion(t *testing.T) {
	var got WebhookPayload
	var gotSecret string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotSecret = r.Header.Get("X-Habitual-Secret")
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	u, _ := url.Parse(server.URL)
	withProcess(t, constants.TrayAppExecutable)
	path := filepath.Join(t.TempDir(), constants.TrayLockfileName)
	os.WriteFile(path, []byte(fmt.Sprintf("%s|42|s3cret", u.Port())), 0600)

	n := NewTrayNotifier(path)
	habit := models.HabitWithCategory{Habit: models.Habit{Name: "Read"}}
	entry := models.HabitEntry{EntryDate: "2024-03-01", IsCompleted: true}
	if err := n.EntryToggled(context.Background(), habit, entry); err != nil {
		t.Fatalf("EntryToggled failed: %v", err)
	}

	if gotSecret != "s3cret" {
		t.Errorf("expected secret header, got %q", gotSecret)
	}
	if !strings.Contains(got.Text, "Read") || got.DurationMs != constants.NotificationDurationMs {
		t.Errorf("unexpected payload %+v", got)
	}
}

func TestTrayNotifierReportsServerError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusForbidden)
	}))
	defer server.Close()

	u, _ := url.Parse(server.URL)
	withProcess(t, constants.TrayAppExecutable)
	path := filepath.Join(t.TempDir(), constants.TrayLockfileName)
	os.WriteFile(path, []byte(u.Port()+"|42|s3cret"), 0600)

	err := NewTrayNotifier(path).EntryToggled(context.Background(), models.HabitWithCategory{}, models.HabitEntry{IsCompleted: true})
	if err == nil || !strings.Contains(err.Error(), "403") {
		t.Errorf("expected status error, got %v", err)
	}
}

func TestTrayNotifierSkipsUncompleted(t *testing.T) {
	// No lockfile: any delivery attempt would fail
	n := NewTrayNotifier(filepath.Join(t.TempDir(), "missing.lock"))
	if err := n.EntryToggled(context.Background(), models.HabitWithCategory{}, models.HabitEntry{IsCompleted: false}); err != nil {
		t.Errorf("expected no delivery for un-completion, got %v", err)
	}
}

type recordingNotifier struct {
	calls int
	err   error
}

func (r *recordingNotifier) EntryToggled(context.Context, models.HabitWithCategory, models.HabitEntry) error {
	r.calls++
	return r.err
}

func TestMultiCallsEveryNotifier(t *testing.T) {
	failing := &recordingNotifier{err: errors.New("boom")}
	ok := &recordingNotifier{}
	m := Multi{failing, LogNotifier{}, ok}

	err := m.EntryToggled(context.Background(), models.HabitWithCategory{}, models.HabitEntry{})
	if !errors.Is(err, failing.err) {
		t.Errorf("expected joined error, got %v", err)
	}
	if failing.calls != 1 || ok.calls != 1 {
		t.Errorf("expected each notifier once, got %d and %d", failing.calls, ok.calls)
	}
}
