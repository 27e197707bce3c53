package steps

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/c360studio/maestro/dashboard"
	"github.com/c360studio/maestro/workflow"
)

func TestRegisterBlockedDependenciesDedupsAndExcludesSelf(t *testing.T) {
	var gotUpdate dashboard.BlockedDependenciesUpdate
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodGet {
			json.NewEncoder(w).Encode(dashboard.Task{ID: "t1", DependsOn: []string{"t2"}})
			return
		}
		json.NewDecoder(r.Body).Decode(&gotUpdate)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	s := &RegisterBlockedDependenciesStep{Dashboard: dashboard.NewClient(srv.URL)}
	wctx := workflow.NewContext(map[string]any{"task_id": "t1"}, "main")
	cfg := workflow.StepConfig{Params: map[string]any{"depends_on": []any{"t2", "t3", "t1"}}}

	result, err := s.Execute(context.Background(), wctx, cfg)
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	deps := result.Outputs["depends_on"].([]string)
	if len(deps) != 2 || deps[0] != "t2" || deps[1] != "t3" {
		t.Fatalf("unexpected merged deps: %+v", deps)
	}
	if len(gotUpdate.DependsOn) != 2 {
		t.Fatalf("unexpected dashboard update: %+v", gotUpdate)
	}
}

func TestRegisterBlockedDependenciesSkipsClearWithoutAllowClear(t *testing.T) {
	var updateCalled bool
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodGet {
			json.NewEncoder(w).Encode(dashboard.Task{ID: "t1"})
			return
		}
		updateCalled = true
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	s := &RegisterBlockedDependenciesStep{Dashboard: dashboard.NewClient(srv.URL)}
	wctx := workflow.NewContext(map[string]any{"task_id": "t1"}, "main")
	cfg := workflow.StepConfig{Params: map[string]any{}}

	result, err := s.Execute(context.Background(), wctx, cfg)
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if updateCalled {
		t.Fatal("expected no update call without allow_clear when the merged list is empty")
	}
	if result.Outputs["cleared"] != false {
		t.Fatalf("expected cleared=false, got %+v", result.Outputs)
	}
}

func TestRegisterBlockedDependenciesClearsWhenAllowed(t *testing.T) {
	var gotUpdate dashboard.BlockedDependenciesUpdate
	var updateCalled bool
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodGet {
			json.NewEncoder(w).Encode(dashboard.Task{ID: "t1", DependsOn: []string{"t2"}})
			return
		}
		updateCalled = true
		json.NewDecoder(r.Body).Decode(&gotUpdate)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	s := &RegisterBlockedDependenciesStep{Dashboard: dashboard.NewClient(srv.URL)}
	wctx := workflow.NewContext(map[string]any{"task_id": "t1"}, "main")
	cfg := workflow.StepConfig{Params: map[string]any{"allow_clear": true}}

	result, err := s.Execute(context.Background(), wctx, cfg)
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if !updateCalled {
		t.Fatal("expected update call when allow_clear=true")
	}
	if result.Outputs["cleared"] != true || len(gotUpdate.DependsOn) != 0 {
		t.Fatalf("expected cleared dependency list, got outputs=%+v update=%+v", result.Outputs, gotUpdate)
	}
}
