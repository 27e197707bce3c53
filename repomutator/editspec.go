package repomutator

// OpAction tags an Op as an upsert or a delete.
type OpAction string

const (
	OpUpsert OpAction = "upsert"
	OpDelete OpAction = "delete"
)

// Hunk is a unified-diff change region. Lines carry their own prefix:
// ' ' for context, '+' for additions, '-' for deletions; any other prefix
// is treated as context.
type Hunk struct {
	OldStart int      `json:"oldStart"`
	OldCount int      `json:"oldCount"`
	Lines    []string `json:"lines"`
}

// Op is a single tagged edit operation within an EditSpec.
type Op struct {
	Action  OpAction `json:"action"`
	Path    string   `json:"path"`
	Content *string  `json:"content,omitempty"`
	Hunks   []Hunk   `json:"hunks,omitempty"`
}

// EditSpec is an ordered batch of file edits to apply to a working tree.
type EditSpec struct {
	Ops []Op `json:"ops"`
}

func linePrefix(line string) (byte, string) {
	if line == "" {
		return ' ', ""
	}
	switch line[0] {
	case ' ', '+', '-':
		return line[0], line[1:]
	default:
		return ' ', line
	}
}

// applyHunks applies hunks to the lines of a file's current content. Each
// hunk's OldStart is in the original file's numbering, so its context and
// deletion lines are verified against original at that index, which is
// their projected index in the output less the cumulative offset of prior
// hunks. Returns ErrHunkMismatch on any verification failure.
func applyHunks(original []string, hunks []Hunk) ([]string, error) {
	result := make([]string, 0, len(original))
	cursor := 0 // index into original, 0-based

	for _, h := range hunks {
		// oldStart is 1-based per unified-diff convention.
		start := h.OldStart - 1
		if start < cursor || start > len(original) {
			return nil, ErrHunkMismatch
		}
		result = append(result, original[cursor:start]...)

		idx := start
		for _, raw := range h.Lines {
			prefix, text := linePrefix(raw)
			switch prefix {
			case ' ':
				if idx >= len(original) || original[idx] != text {
					return nil, ErrHunkMismatch
				}
				result = append(result, text)
				idx++
			case '-':
				if idx >= len(original) || original[idx] != text {
					return nil, ErrHunkMismatch
				}
				idx++
			case '+':
				result = append(result, text)
			}
		}
		cursor = idx
	}
	result = append(result, original[cursor:]...)
	return result, nil
}
