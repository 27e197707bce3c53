// Package redisstream implements transport.Transport over a real Redis
// server's native stream and consumer-group commands, using go-redis/v9 as
// the wire client.
package redisstream

import (
	"context"
	"errors"
	"strconv"
	"strings"

	"github.com/redis/go-redis/v9"

	"github.com/c360studio/maestro/transport"
)

// Transport adapts *redis.Client to transport.Transport, translating Redis's
// error-string vocabulary into the shared sentinel errors.
type Transport struct {
	client *redis.Client
}

// New wraps an existing go-redis client. The caller owns the client's
// lifecycle outside of Connect/Disconnect/Quit.
func New(client *redis.Client) *Transport {
	return &Transport{client: client}
}

// NewFromOptions dials a new client from opts.
func NewFromOptions(opts *redis.Options) *Transport {
	return New(redis.NewClient(opts))
}

func (t *Transport) Connect(ctx context.Context) error {
	if err := t.client.Ping(ctx).Err(); err != nil {
		return errors.Join(transport.ErrTransportUnavailable, err)
	}
	return nil
}

func (t *Transport) Disconnect(ctx context.Context) error {
	return t.client.Close()
}

func (t *Transport) Quit(ctx context.Context) error {
	return t.client.Close()
}

// XAdd appends fields to stream under id, translating the returned Redis
// entry ID into a transport.StreamID.
func (t *Transport) XAdd(ctx context.Context, stream string, id string, fields transport.Fields) (transport.StreamID, error) {
	if id == "" {
		id = "*"
	}
	values := make(map[string]any, len(fields))
	for k, v := range fields {
		values[k] = v
	}
	raw, err := t.client.XAdd(ctx, &redis.XAddArgs{
		Stream: stream,
		ID:     id,
		Values: values,
	}).Result()
	if err != nil {
		return transport.StreamID{}, translateErr(err)
	}
	return transport.ParseStreamID(raw)
}

// XGroupCreate creates group on stream starting at startID, translating
// Redis's BUSYGROUP reply into transport.ErrGroupExists.
func (t *Transport) XGroupCreate(ctx context.Context, stream, group, startID string, opts transport.GroupCreateOptions) error {
	var err error
	if opts.MKSTREAM {
		err = t.client.XGroupCreateMkStream(ctx, stream, group, startID).Err()
	} else {
		err = t.client.XGroupCreate(ctx, stream, group, startID).Err()
	}
	return translateErr(err)
}

// XGroupDestroy removes group from stream.
func (t *Transport) XGroupDestroy(ctx context.Context, stream, group string) error {
	return translateErr(t.client.XGroupDestroy(ctx, stream, group).Err())
}

// XReadGroup reads from stream(s) for consumer in group, returning (nil, nil)
// on a BLOCK timeout with no matches, matching the local emulator's contract.
func (t *Transport) XReadGroup(ctx context.Context, group, consumer string, streams []transport.StreamSpec, opts transport.ReadGroupOptions) (map[string][]transport.Message, error) {
	names := make([]string, 0, len(streams)*2)
	for _, s := range streams {
		names = append(names, s.Stream)
	}
	for _, s := range streams {
		names = append(names, s.ID)
	}

	res, err := t.client.XReadGroup(ctx, &redis.XReadGroupArgs{
		Group:    group,
		Consumer: consumer,
		Streams:  names,
		Count:    opts.Count,
		Block:    opts.Block,
	}).Result()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		if strings.Contains(err.Error(), "NOGROUP") {
			return nil, transport.ErrNoGroup
		}
		return nil, translateErr(err)
	}

	out := make(map[string][]transport.Message, len(res))
	for _, streamRes := range res {
		msgs := make([]transport.Message, 0, len(streamRes.Messages))
		for _, m := range streamRes.Messages {
			sid, err := transport.ParseStreamID(m.ID)
			if err != nil {
				return nil, err
			}
			fields := make(transport.Fields, len(m.Values))
			for k, v := range m.Values {
				fields[k] = stringify(v)
			}
			msgs = append(msgs, transport.Message{ID: sid, Fields: fields})
		}
		if len(msgs) > 0 {
			out[streamRes.Stream] = msgs
		}
	}
	return out, nil
}

// XAck acknowledges id in group on stream.
func (t *Transport) XAck(ctx context.Context, stream, group string, id transport.StreamID) (int64, error) {
	n, err := t.client.XAck(ctx, stream, group, id.String()).Result()
	return n, translateErr(err)
}

// XLen returns the number of entries in stream.
func (t *Transport) XLen(ctx context.Context, stream string) (int64, error) {
	n, err := t.client.XLen(ctx, stream).Result()
	return n, translateErr(err)
}

// Del removes stream entirely.
func (t *Transport) Del(ctx context.Context, stream string) error {
	return translateErr(t.client.Del(ctx, stream).Err())
}

// XInfoGroups returns the state of every consumer group on stream.
func (t *Transport) XInfoGroups(ctx context.Context, stream string) ([]transport.GroupInfo, error) {
	groups, err := t.client.XInfoGroups(ctx, stream).Result()
	if err != nil {
		if strings.Contains(err.Error(), "no such key") {
			return nil, transport.ErrNoSuchKey
		}
		return nil, translateErr(err)
	}
	infos := make([]transport.GroupInfo, 0, len(groups))
	for _, g := range groups {
		lastID, err := transport.ParseStreamID(g.LastDeliveredID)
		if err != nil {
			return nil, err
		}
		infos = append(infos, transport.GroupInfo{
			Name:            g.Name,
			Consumers:       int(g.Consumers),
			Pending:         int(g.Pending),
			LastDeliveredID: lastID,
		})
	}
	return infos, nil
}

// translateErr maps Redis's string-typed error replies onto the shared
// transport sentinels so callers never branch on the backend in use.
func translateErr(err error) error {
	if err == nil {
		return nil
	}
	msg := err.Error()
	switch {
	case strings.Contains(msg, "BUSYGROUP"):
		return transport.ErrGroupExists
	case strings.Contains(msg, "NOGROUP"):
		return transport.ErrNoGroup
	case strings.Contains(msg, "no such key"):
		return transport.ErrNoSuchKey
	default:
		return err
	}
}

func stringify(v any) string {
	switch val := v.(type) {
	case string:
		return val
	case []byte:
		return string(val)
	case int64:
		return strconv.FormatInt(val, 10)
	default:
		return ""
	}
}
