package repomutator

import "errors"

// Policy and operational failures, per spec's repo mutation error taxonomy.
var (
	ErrWorkspaceBlocked = errors.New("repomutator: workspace git operations are blocked")
	ErrPathBlocked      = errors.New("repomutator: path is globally blocked")
	ErrExtensionDenied  = errors.New("repomutator: file extension is denied")
	ErrPathEscape       = errors.New("repomutator: resolved path escapes repo root")
	ErrSizeLimit        = errors.New("repomutator: content exceeds the configured size limit")
	ErrHunkMismatch     = errors.New("repomutator: hunk context does not match file content")
)
