package repomutator

import "testing"

func TestCheckBlockedPaths(t *testing.T) {
	p := Policy{BlockedPaths: []string{".git", "secrets"}}
	if err := p.checkBlockedPaths("secrets/key.pem"); err != ErrPathBlocked {
		t.Fatalf("expected ErrPathBlocked, got %v", err)
	}
	if err := p.checkBlockedPaths("src/main.go"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestCheckExtensionDenyList(t *testing.T) {
	p := Policy{DeniedExtensions: []string{".env"}}
	if err := p.checkExtension("config/.env", nil); err != ErrExtensionDenied {
		t.Fatalf("expected ErrExtensionDenied, got %v", err)
	}
	if err := p.checkExtension("main.go", nil); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := p.checkExtension("main.go", []string{".go"}); err != ErrExtensionDenied {
		t.Fatalf("expected call-level override to deny, got %v", err)
	}
}

func TestResolvePathRejectsEscape(t *testing.T) {
	if _, err := resolvePath("/repo/root", "../outside.txt"); err != ErrPathEscape {
		t.Fatalf("expected ErrPathEscape, got %v", err)
	}
	path, err := resolvePath("/repo/root", "pkg/file.go")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if path != "/repo/root/pkg/file.go" {
		t.Fatalf("unexpected resolved path: %s", path)
	}
}

func TestCheckSizeLimit(t *testing.T) {
	p := Policy{MaxBytes: 4}
	if err := p.checkSizeLimit("12345"); err != ErrSizeLimit {
		t.Fatalf("expected ErrSizeLimit, got %v", err)
	}
	if err := p.checkSizeLimit("1234"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}
