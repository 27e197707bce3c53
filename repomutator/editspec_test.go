package repomutator

import (
	"reflect"
	"testing"
)

func TestApplyHunksContextAndReplace(t *testing.T) {
	original := []string{"a", "b", "c"}
	hunks := []Hunk{{OldStart: 1, OldCount: 3, Lines: []string{" a", "-b", "+B", " c"}}}

	got, err := applyHunks(original, hunks)
	if err != nil {
		t.Fatalf("applyHunks: %v", err)
	}
	want := []string{"a", "B", "c"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("got %v, want %v", got, want)
	}
}

func TestApplyHunksContextMismatchFails(t *testing.T) {
	original := []string{"a", "b", "c"}
	hunks := []Hunk{{OldStart: 1, OldCount: 1, Lines: []string{" z", "-b", "+B"}}}

	_, err := applyHunks(original, hunks)
	if err != ErrHunkMismatch {
		t.Fatalf("expected ErrHunkMismatch, got %v", err)
	}
}

func TestApplyHunksInsertOnly(t *testing.T) {
	original := []string{"a", "c"}
	hunks := []Hunk{{OldStart: 2, OldCount: 0, Lines: []string{"+b"}}}

	got, err := applyHunks(original, hunks)
	if err != nil {
		t.Fatalf("applyHunks: %v", err)
	}
	want := []string{"a", "b", "c"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("got %v, want %v", got, want)
	}
}

func TestApplyHunksCumulativeOffset(t *testing.T) {
	original := []string{"1", "2", "3", "4", "5"}
	hunks := []Hunk{
		{OldStart: 1, OldCount: 1, Lines: []string{"-1", "+one"}},
		{OldStart: 4, OldCount: 1, Lines: []string{"-4", "+four"}},
	}
	got, err := applyHunks(original, hunks)
	if err != nil {
		t.Fatalf("applyHunks: %v", err)
	}
	want := []string{"one", "2", "3", "four", "5"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("got %v, want %v", got, want)
	}
}
