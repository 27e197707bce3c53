package dashboard

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestUpdateTaskStatusSendsPatch(t *testing.T) {
	var gotMethod, gotPath string
	var gotBody TaskStatusUpdate

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotMethod = r.Method
		gotPath = r.URL.Path
		json.NewDecoder(r.Body).Decode(&gotBody)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	c := NewClient(srv.URL)
	if err := c.UpdateTaskStatus(context.Background(), "task-1", TaskStatusUpdate{Status: "completed"}); err != nil {
		t.Fatalf("UpdateTaskStatus: %v", err)
	}
	if gotMethod != http.MethodPatch || gotPath != "/tasks/task-1/status" {
		t.Fatalf("unexpected request: %s %s", gotMethod, gotPath)
	}
	if gotBody.Status != "completed" {
		t.Fatalf("unexpected body: %+v", gotBody)
	}
}

func TestUpdateTaskStatusPropagatesHTTPError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		w.Write([]byte("boom"))
	}))
	defer srv.Close()

	c := NewClient(srv.URL)
	if err := c.UpdateTaskStatus(context.Background(), "task-1", TaskStatusUpdate{Status: "completed"}); err == nil {
		t.Fatal("expected error on 500 response")
	}
}

func TestGetTaskDecodesResponse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(Task{ID: "task-1", Status: "in_progress", DependsOn: []string{"task-0"}})
	}))
	defer srv.Close()

	c := NewClient(srv.URL)
	task, err := c.GetTask(context.Background(), "task-1")
	if err != nil {
		t.Fatalf("GetTask: %v", err)
	}
	if task.Status != "in_progress" || len(task.DependsOn) != 1 {
		t.Fatalf("unexpected task: %+v", task)
	}
}

func TestUpdateBlockedDependenciesSendsList(t *testing.T) {
	var gotBody BlockedDependenciesUpdate
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewDecoder(r.Body).Decode(&gotBody)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	c := NewClient(srv.URL)
	if err := c.UpdateBlockedDependencies(context.Background(), "task-1", BlockedDependenciesUpdate{DependsOn: []string{"task-2", "task-3"}}); err != nil {
		t.Fatalf("UpdateBlockedDependencies: %v", err)
	}
	if len(gotBody.DependsOn) != 2 {
		t.Fatalf("unexpected body: %+v", gotBody)
	}
}
