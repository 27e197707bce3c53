package transport

import (
	"fmt"
	"strconv"
	"strings"
)

// StreamID is a totally-ordered stream entry identifier, "{timestampMs}-{seq}".
type StreamID struct {
	TimeMs int64
	Seq    int64
}

// Zero is the smallest possible StreamID, used as the "before anything" sentinel.
var Zero = StreamID{}

// String renders the ID in "{timestampMs}-{seq}" form.
func (id StreamID) String() string {
	return fmt.Sprintf("%d-%d", id.TimeMs, id.Seq)
}

// ParseStreamID parses a "{timestampMs}-{seq}" string. A bare integer is
// accepted with an implicit "-0" suffix, matching Redis Streams' tolerance.
func ParseStreamID(s string) (StreamID, error) {
	parts := strings.SplitN(s, "-", 2)
	timeMs, err := strconv.ParseInt(parts[0], 10, 64)
	if err != nil {
		return StreamID{}, fmt.Errorf("transport: invalid stream id %q: %w", s, err)
	}
	if len(parts) == 1 {
		return StreamID{TimeMs: timeMs}, nil
	}
	seq, err := strconv.ParseInt(parts[1], 10, 64)
	if err != nil {
		return StreamID{}, fmt.Errorf("transport: invalid stream id %q: %w", s, err)
	}
	return StreamID{TimeMs: timeMs, Seq: seq}, nil
}

// Compare returns -1, 0, or 1 as id is less than, equal to, or greater than
// other, comparing lexicographically as a (timeMs, seq) pair — never as a
// raw string.
func (id StreamID) Compare(other StreamID) int {
	if id.TimeMs != other.TimeMs {
		if id.TimeMs < other.TimeMs {
			return -1
		}
		return 1
	}
	if id.Seq != other.Seq {
		if id.Seq < other.Seq {
			return -1
		}
		return 1
	}
	return 0
}

// Less reports whether id sorts strictly before other.
func (id StreamID) Less(other StreamID) bool { return id.Compare(other) < 0 }

// Max returns the greater of id and other.
func Max(id, other StreamID) StreamID {
	if id.Less(other) {
		return other
	}
	return id
}
