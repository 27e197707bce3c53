package persona

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/c360studio/maestro/transport"
)

// Request is the inbound argument to SendRequest.
type Request struct {
	WorkflowID string
	ToPersona  string
	Step       string
	Intent     string
	Payload    any
	CorrID     string
	Repo       string
	Branch     string
	ProjectID  string
	TaskID     string
	From       string
}

// Client implements sendPersonaRequest/waitForPersonaCompletion/
// parseEventResult over a transport.Transport.
type Client struct {
	tr             transport.Transport
	requestStream  string
	responseStream string
}

// NewClient constructs a Client bound to requestStream/responseStream.
func NewClient(tr transport.Transport, requestStream, responseStream string) *Client {
	return &Client{tr: tr, requestStream: requestStream, responseStream: responseStream}
}

// SendRequest JSON-encodes req.Payload and publishes it to the request
// stream, returning the assigned correlation ID. If req.CorrID is empty, a
// UUID v4 is generated.
func (c *Client) SendRequest(ctx context.Context, req Request) (string, error) {
	corrID := req.CorrID
	if corrID == "" {
		corrID = uuid.NewString()
	}

	payloadJSON, err := json.Marshal(req.Payload)
	if err != nil {
		return "", err
	}

	fields := transport.Fields{
		"workflow_id": req.WorkflowID,
		"to_persona":  req.ToPersona,
		"step":        req.Step,
		"intent":      req.Intent,
		"payload":     string(payloadJSON),
		"corr_id":     corrID,
	}
	if req.From != "" {
		fields["from"] = req.From
	}
	if req.TaskID != "" {
		fields["task_id"] = req.TaskID
	}
	if req.Repo != "" {
		fields["repo"] = req.Repo
	}
	if req.Branch != "" {
		fields["branch"] = req.Branch
	}
	if req.ProjectID != "" {
		fields["project_id"] = req.ProjectID
	}

	if _, err := c.tr.XAdd(ctx, c.requestStream, "*", fields); err != nil {
		return "", err
	}
	return corrID, nil
}

// EventResult is the canonical decoding of a response stream event.
type EventResult struct {
	WorkflowID string
	CorrID     string
	From       string
	Status     string
	Output     map[string]any
	Raw        string
}

// ParseEventResult JSON-decodes a response event's "result" field with
// best-effort tolerance: status/output are read if present; the raw string
// is always preserved.
func ParseEventResult(raw string) EventResult {
	result := EventResult{Raw: raw}
	var decoded map[string]any
	if err := json.Unmarshal([]byte(raw), &decoded); err != nil {
		return result
	}
	if status, ok := decoded["status"].(string); ok {
		result.Status = status
	}
	if output, ok := decoded["output"].(map[string]any); ok {
		result.Output = output
	}
	return result
}

// WaitForCompletion consumes the response stream (via a consumer group
// private to callerGroup/callerConsumer) until it observes an event matching
// both workflowID and corrID, or the deadline implied by timeout elapses.
func (c *Client) WaitForCompletion(ctx context.Context, callerGroup, callerConsumer, workflowID, corrID string, timeout time.Duration) (EventResult, error) {
	deadline := time.Now().Add(timeout)

	err := c.tr.XGroupCreate(ctx, c.responseStream, callerGroup, "$", transport.GroupCreateOptions{MKSTREAM: true})
	if err != nil && err != transport.ErrGroupExists {
		return EventResult{}, err
	}

	for {
		remaining := time.Until(deadline)
		if remaining <= 0 {
			return EventResult{}, ErrPersonaTimeout
		}

		result, err := c.tr.XReadGroup(ctx, callerGroup, callerConsumer,
			[]transport.StreamSpec{{Stream: c.responseStream, ID: ">"}},
			transport.ReadGroupOptions{Count: 50, Block: remaining})
		if err != nil {
			return EventResult{}, err
		}

		for _, msg := range result[c.responseStream] {
			c.tr.XAck(ctx, c.responseStream, callerGroup, msg.ID)

			if msg.Fields["workflow_id"] != workflowID || msg.Fields["corr_id"] != corrID {
				continue
			}
			event := ParseEventResult(msg.Fields["result"])
			event.WorkflowID = msg.Fields["workflow_id"]
			event.CorrID = msg.Fields["corr_id"]
			event.From = strings.ToLower(msg.Fields["from"])
			return event, nil
		}
	}
}
