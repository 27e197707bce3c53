// Package transport abstracts a Redis-Streams-like stream and consumer-group
// primitive, with two interchangeable implementations: a distributed backend
// (package redisstream) and an in-process emulator (package localstream).
package transport

import (
	"context"
	"errors"
	"time"
)

// Error categories returned by Transport implementations. Implementations
// must map their backend-specific failures onto these sentinels so callers
// never branch on which backend is in use.
var (
	// ErrNoSuchKey is returned by XGroupCreate when the target stream does
	// not exist and MKSTREAM was not requested.
	ErrNoSuchKey = errors.New("transport: no such stream")

	// ErrGroupExists is returned by XGroupCreate when the group already
	// exists on the stream.
	ErrGroupExists = errors.New("transport: consumer group already exists")

	// ErrNoGroup is returned by XReadGroup and XAck when the named group
	// does not exist on the stream.
	ErrNoGroup = errors.New("transport: no such consumer group")

	// ErrTransportUnavailable is returned for connection-level failures.
	ErrTransportUnavailable = errors.New("transport: unavailable")
)

// Fields is the short string->string payload mapping carried by a Message,
// per spec.md's stream message data model.
type Fields map[string]string

// Message is a single stream entry with a totally-ordered ID.
type Message struct {
	ID     StreamID
	Fields Fields
}

// GroupCreateOptions configures XGroupCreate.
type GroupCreateOptions struct {
	// MKSTREAM creates the stream if it does not already exist.
	MKSTREAM bool
}

// ReadGroupOptions configures XReadGroup.
type ReadGroupOptions struct {
	// Count bounds the number of messages returned per stream.
	Count int64
	// Block is the maximum wait duration for new messages when no backlog
	// is available. Zero means do not block.
	Block time.Duration
}

// StreamSpec names a stream together with the delivery cursor to read from:
// ">" for new messages, "0" for this consumer's pending set, or an explicit
// StreamID for historical reads.
type StreamSpec struct {
	Stream string
	ID     string
}

// GroupInfo is the result of XInfoGroups for a single (stream, group) pair.
type GroupInfo struct {
	Name            string
	Consumers       int
	Pending         int
	LastDeliveredID StreamID
}

// Transport is the stream + consumer-group primitive required by every
// component that sends or receives persona traffic. Implementations must
// satisfy the invariants in spec.md §3/§4.A/§8.
type Transport interface {
	// Connect establishes the backend connection. It must be idempotent.
	Connect(ctx context.Context) error
	// Disconnect releases listeners and any cached state. Safe to call
	// multiple times.
	Disconnect(ctx context.Context) error
	// Quit is an alias for Disconnect kept for parity with the Redis client
	// vocabulary the spec's operation table borrows from.
	Quit(ctx context.Context) error

	// XAdd appends fields to stream under id ("*" to auto-allocate) and
	// returns the assigned ID. For "*", the assigned ID is strictly greater
	// than every prior ID appended to stream.
	XAdd(ctx context.Context, stream string, id string, fields Fields) (StreamID, error)

	// XGroupCreate creates group on stream starting at startID ("0" or "$").
	XGroupCreate(ctx context.Context, stream, group, startID string, opts GroupCreateOptions) error

	// XReadGroup reads up to opts.Count messages per stream spec for
	// consumer in group. See spec.md §4.A for the ">" / "0" / explicit-ID
	// semantics. Returns (nil, nil) on a BLOCK timeout with no matches.
	XReadGroup(ctx context.Context, group, consumer string, streams []StreamSpec, opts ReadGroupOptions) (map[string][]Message, error)

	// XAck removes id from whichever consumer's pending set in group holds
	// it. Returns the number of messages acknowledged (0 or 1).
	XAck(ctx context.Context, stream, group string, id StreamID) (int64, error)

	// XLen returns the number of entries in stream.
	XLen(ctx context.Context, stream string) (int64, error)

	// Del removes stream entirely, including all group state.
	Del(ctx context.Context, stream string) error

	// XInfoGroups returns the state of every consumer group on stream.
	XInfoGroups(ctx context.Context, stream string) ([]GroupInfo, error)

	// XGroupDestroy removes group from stream.
	XGroupDestroy(ctx context.Context, stream, group string) error
}
