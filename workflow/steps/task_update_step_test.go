package steps

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/c360studio/maestro/dashboard"
	"github.com/c360studio/maestro/workflow"
)

func TestTaskUpdateStepSendsStatus(t *testing.T) {
	var gotStatus string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body dashboard.TaskStatusUpdate
		json.NewDecoder(r.Body).Decode(&body)
		gotStatus = body.Status
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	s := &TaskUpdateStep{Dashboard: dashboard.NewClient(srv.URL)}
	wctx := workflow.NewContext(map[string]any{"task_id": "t1"}, "main")
	cfg := workflow.StepConfig{Params: map[string]any{"status": "in_progress"}}

	if _, err := s.Execute(context.Background(), wctx, cfg); err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if gotStatus != "in_progress" {
		t.Fatal("expected dashboard to be called")
	}
}

func TestTaskUpdateStepPrunesLogsOnTerminalStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	logDir := t.TempDir()
	now := time.Now()
	for i := 0; i < 7; i++ {
		path := filepath.Join(logDir, string(rune('a'+i))+".log")
		os.WriteFile(path, []byte("x"), 0o644)
		mtime := now.Add(time.Duration(i) * time.Minute)
		os.Chtimes(path, mtime, mtime)
	}

	s := &TaskUpdateStep{Dashboard: dashboard.NewClient(srv.URL), KeepLogs: 5}
	wctx := workflow.NewContext(map[string]any{"task_id": "t1"}, "main")
	cfg := workflow.StepConfig{Params: map[string]any{"status": "completed", "planning_log_dir": logDir}}

	if _, err := s.Execute(context.Background(), wctx, cfg); err != nil {
		t.Fatalf("Execute: %v", err)
	}

	entries, _ := os.ReadDir(logDir)
	if len(entries) != 5 {
		t.Fatalf("expected 5 files kept, got %d", len(entries))
	}
}

func TestTaskUpdateStepSkipsLogPruneForNonTerminalStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	logDir := t.TempDir()
	for i := 0; i < 7; i++ {
		os.WriteFile(filepath.Join(logDir, string(rune('a'+i))+".log"), []byte("x"), 0o644)
	}

	s := &TaskUpdateStep{Dashboard: dashboard.NewClient(srv.URL)}
	wctx := workflow.NewContext(map[string]any{"task_id": "t1"}, "main")
	cfg := workflow.StepConfig{Params: map[string]any{"status": "in_progress", "planning_log_dir": logDir}}

	if _, err := s.Execute(context.Background(), wctx, cfg); err != nil {
		t.Fatalf("Execute: %v", err)
	}
	entries, _ := os.ReadDir(logDir)
	if len(entries) != 7 {
		t.Fatalf("expected all 7 files kept for non-terminal status, got %d", len(entries))
	}
}
