// Package localstream provides an in-process emulator of the transport.Transport
// primitive, used for tests and for single-process deployments that don't
// need a distributed broker (config's transportType=="local").
package localstream

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/c360studio/maestro/transport"
)

// errInvalidIDOrder is returned when an explicit XAdd id is not strictly
// greater than the stream's current last ID.
var errInvalidIDOrder = errors.New("localstream: id must be strictly greater than the last stream id")

// clock is overridable in tests.
type clock func() time.Time

type stream struct {
	messages []transport.Message
	groups   map[string]*groupState
}

type groupState struct {
	lastDelivered transport.StreamID
	// pending maps consumer name -> set of pending message IDs.
	pending map[string]map[transport.StreamID]transport.Message
}

func newGroupState(start transport.StreamID) *groupState {
	return &groupState{
		lastDelivered: start,
		pending:       make(map[string]map[transport.StreamID]transport.Message),
	}
}

// Transport is an in-process, mutex-guarded implementation of
// transport.Transport. The zero value is not usable; construct with New.
//
// Blocked XReadGroup calls are woken via notify: every mutation closes the
// current channel (broadcasting to all waiters) and installs a fresh one,
// avoiding the lock hand-off race a sync.Cond-based notifier would have
// between Unlock and a waiter's Wait.
type Transport struct {
	mu      sync.Mutex
	notify  chan struct{}
	streams map[string]*stream
	now     clock
	seq     int64
	lastMs  int64
	closed  bool
}

// New creates an in-process transport.
func New() *Transport {
	return &Transport{
		streams: make(map[string]*stream),
		now:     time.Now,
		notify:  make(chan struct{}),
	}
}

// wake broadcasts to all current waiters. Caller holds t.mu.
func (t *Transport) wake() {
	close(t.notify)
	t.notify = make(chan struct{})
}

// Connect is a no-op lifecycle hook; the in-process backend has no external
// connection to establish.
func (t *Transport) Connect(ctx context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.closed = false
	return nil
}

// Disconnect releases all cached streams and wakes any blocked readers so
// they observe the closed state and return immediately.
func (t *Transport) Disconnect(ctx context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.closed = true
	t.streams = make(map[string]*stream)
	t.wake()
	return nil
}

// Quit is an alias for Disconnect.
func (t *Transport) Quit(ctx context.Context) error { return t.Disconnect(ctx) }

func (t *Transport) getStream(name string, create bool) *stream {
	s, ok := t.streams[name]
	if !ok && create {
		s = &stream{groups: make(map[string]*groupState)}
		t.streams[name] = s
	}
	return s
}

// nextID allocates a StreamID strictly greater than any previously allocated
// one, combining wall-clock milliseconds with a monotonic sequence counter
// per spec.md §4.A.
func (t *Transport) nextID() transport.StreamID {
	ms := t.now().UnixMilli()
	if ms <= t.lastMs {
		t.seq++
	} else {
		t.lastMs = ms
		t.seq = 0
	}
	return transport.StreamID{TimeMs: t.lastMs, Seq: t.seq}
}

// XAdd appends fields to stream under id, allocating the next strictly
// increasing ID when id == "*".
func (t *Transport) XAdd(ctx context.Context, streamName string, id string, fields transport.Fields) (transport.StreamID, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	s := t.getStream(streamName, true)

	var assigned transport.StreamID
	if id == "*" || id == "" {
		assigned = t.nextID()
	} else {
		parsed, err := transport.ParseStreamID(id)
		if err != nil {
			return transport.StreamID{}, err
		}
		if len(s.messages) > 0 {
			last := s.messages[len(s.messages)-1].ID
			if !last.Less(parsed) {
				return transport.StreamID{}, errInvalidIDOrder
			}
		}
		assigned = parsed
		if assigned.TimeMs > t.lastMs || (assigned.TimeMs == t.lastMs && assigned.Seq > t.seq) {
			t.lastMs, t.seq = assigned.TimeMs, assigned.Seq
		}
	}

	fieldsCopy := make(transport.Fields, len(fields))
	for k, v := range fields {
		fieldsCopy[k] = v
	}
	s.messages = append(s.messages, transport.Message{ID: assigned, Fields: fieldsCopy})
	t.wake()
	return assigned, nil
}

// XGroupCreate creates group on streamName at startID.
func (t *Transport) XGroupCreate(ctx context.Context, streamName, group, startID string, opts transport.GroupCreateOptions) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	s := t.getStream(streamName, opts.MKSTREAM)
	if s == nil {
		return transport.ErrNoSuchKey
	}
	if _, exists := s.groups[group]; exists {
		return transport.ErrGroupExists
	}

	var start transport.StreamID
	switch startID {
	case "0":
		start = transport.Zero
	case "$":
		if len(s.messages) > 0 {
			start = s.messages[len(s.messages)-1].ID
		}
	default:
		parsed, err := transport.ParseStreamID(startID)
		if err != nil {
			return err
		}
		start = parsed
	}
	s.groups[group] = newGroupState(start)
	return nil
}

// XGroupDestroy removes group from streamName.
func (t *Transport) XGroupDestroy(ctx context.Context, streamName, group string) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	s := t.getStream(streamName, false)
	if s == nil {
		return transport.ErrNoSuchKey
	}
	delete(s.groups, group)
	return nil
}

// XReadGroup implements the ">" / "0" / explicit-ID semantics from spec.md §4.A.
func (t *Transport) XReadGroup(ctx context.Context, group, consumer string, streams []transport.StreamSpec, opts transport.ReadGroupOptions) (map[string][]transport.Message, error) {
	deadline := time.Time{}
	if opts.Block > 0 {
		deadline = t.now().Add(opts.Block)
	}

	for {
		t.mu.Lock()
		result, err := t.tryReadGroup(group, consumer, streams, opts)
		if err != nil {
			t.mu.Unlock()
			return nil, err
		}
		if len(result) > 0 || opts.Block <= 0 || t.closed {
			t.mu.Unlock()
			return result, nil
		}
		// Capture the current notify channel before releasing the lock so a
		// wake() that runs between Unlock and the select below is not missed.
		waitCh := t.notify
		t.mu.Unlock()

		remaining := time.Until(deadline)
		if remaining <= 0 {
			return nil, nil
		}
		select {
		case <-waitCh:
			// A mutation happened; loop and re-check.
		case <-time.After(remaining):
			return nil, nil
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}

// tryReadGroup performs a single non-blocking read attempt. Caller holds t.mu.
func (t *Transport) tryReadGroup(group, consumer string, streams []transport.StreamSpec, opts transport.ReadGroupOptions) (map[string][]transport.Message, error) {
	result := make(map[string][]transport.Message)
	for _, spec := range streams {
		s := t.getStream(spec.Stream, false)
		if s == nil {
			return nil, transport.ErrNoSuchKey
		}
		gs, ok := s.groups[group]
		if !ok {
			return nil, transport.ErrNoGroup
		}

		var msgs []transport.Message
		switch spec.ID {
		case ">":
			for _, m := range s.messages {
				if !gs.lastDelivered.Less(m.ID) {
					continue
				}
				msgs = append(msgs, m)
				if opts.Count > 0 && int64(len(msgs)) >= opts.Count {
					break
				}
			}
			if len(msgs) > 0 {
				gs.lastDelivered = msgs[len(msgs)-1].ID
				if gs.pending[consumer] == nil {
					gs.pending[consumer] = make(map[transport.StreamID]transport.Message)
				}
				for _, m := range msgs {
					gs.pending[consumer][m.ID] = m
				}
			}
		case "0":
			pending := gs.pending[consumer]
			ids := make([]transport.StreamID, 0, len(pending))
			for id := range pending {
				ids = append(ids, id)
			}
			sortIDs(ids)
			for _, id := range ids {
				msgs = append(msgs, pending[id])
			}
		default:
			explicit, err := transport.ParseStreamID(spec.ID)
			if err != nil {
				return nil, err
			}
			for _, m := range s.messages {
				if explicit.Less(m.ID) {
					msgs = append(msgs, m)
					if opts.Count > 0 && int64(len(msgs)) >= opts.Count {
						break
					}
				}
			}
		}
		if len(msgs) > 0 {
			result[spec.Stream] = msgs
		}
	}
	return result, nil
}

func sortIDs(ids []transport.StreamID) {
	for i := 1; i < len(ids); i++ {
		for j := i; j > 0 && ids[j-1].Compare(ids[j]) > 0; j-- {
			ids[j-1], ids[j] = ids[j], ids[j-1]
		}
	}
}

// XAck removes id from whichever consumer's pending set holds it.
func (t *Transport) XAck(ctx context.Context, streamName, group string, id transport.StreamID) (int64, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	s := t.getStream(streamName, false)
	if s == nil {
		return 0, transport.ErrNoSuchKey
	}
	gs, ok := s.groups[group]
	if !ok {
		return 0, transport.ErrNoGroup
	}
	for _, pending := range gs.pending {
		if _, found := pending[id]; found {
			delete(pending, id)
			return 1, nil
		}
	}
	return 0, nil
}

// XLen returns the number of entries in streamName.
func (t *Transport) XLen(ctx context.Context, streamName string) (int64, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	s := t.getStream(streamName, false)
	if s == nil {
		return 0, nil
	}
	return int64(len(s.messages)), nil
}

// Del removes streamName entirely, including all group state.
func (t *Transport) Del(ctx context.Context, streamName string) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.streams, streamName)
	return nil
}

// XInfoGroups returns the state of every consumer group on streamName.
func (t *Transport) XInfoGroups(ctx context.Context, streamName string) ([]transport.GroupInfo, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	s := t.getStream(streamName, false)
	if s == nil {
		return nil, transport.ErrNoSuchKey
	}
	infos := make([]transport.GroupInfo, 0, len(s.groups))
	for name, gs := range s.groups {
		pending := 0
		for _, p := range gs.pending {
			pending += len(p)
		}
		infos = append(infos, transport.GroupInfo{
			Name:            name,
			Consumers:       len(gs.pending),
			Pending:         pending,
			LastDeliveredID: gs.lastDelivered,
		})
	}
	return infos, nil
}
