package persona

import (
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/c360studio/maestro/duptracker"
	"github.com/c360studio/maestro/transport"
)

// Handler executes a persona's business logic for one delivered message and
// returns the JSON-encodable result to publish to the response stream.
type Handler func(ctx context.Context, msg transport.Message) (any, error)

// WorkerConfig configures one persona worker within the pool.
type WorkerConfig struct {
	Persona      string
	ConsumerName string
	Handler      Handler
}

// Pool runs one cooperative worker per persona, all sharing a single
// consumer group on the request stream, each under a distinct consumer
// name, grounded on the teacher's per-component Start/goroutine/Stop
// lifecycle shape (processor/*/component.go).
type Pool struct {
	tr             transport.Transport
	dup            *duptracker.Tracker
	logger         *slog.Logger
	requestStream  string
	responseStream string
	group          string
	batchSize      int64
	blockDuration  time.Duration

	mu       sync.Mutex
	running  bool
	cancel   context.CancelFunc
	wg       sync.WaitGroup
	workers  []WorkerConfig
}

// Option configures a Pool.
type Option func(*Pool)

// WithBatchSize overrides the default XReadGroup COUNT.
func WithBatchSize(n int64) Option {
	return func(p *Pool) { p.batchSize = n }
}

// WithBlockDuration overrides the default XReadGroup BLOCK.
func WithBlockDuration(d time.Duration) Option {
	return func(p *Pool) { p.blockDuration = d }
}

// NewPool constructs a Pool over tr, reading requestStream into group and
// publishing responses to responseStream.
func NewPool(tr transport.Transport, dup *duptracker.Tracker, logger *slog.Logger, requestStream, responseStream, group string, workers []WorkerConfig, opts ...Option) *Pool {
	p := &Pool{
		tr:             tr,
		dup:            dup,
		logger:         logger,
		requestStream:  requestStream,
		responseStream: responseStream,
		group:          group,
		batchSize:      10,
		blockDuration:  5 * time.Second,
		workers:        workers,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Start creates the shared consumer group (idempotently) and launches one
// goroutine per configured worker.
func (p *Pool) Start(ctx context.Context) error {
	p.mu.Lock()
	if p.running {
		p.mu.Unlock()
		return nil
	}

	err := p.tr.XGroupCreate(ctx, p.requestStream, p.group, "0", transport.GroupCreateOptions{MKSTREAM: true})
	if err != nil && err != transport.ErrGroupExists {
		p.mu.Unlock()
		return err
	}

	workerCtx, cancel := context.WithCancel(ctx)
	p.cancel = cancel
	p.running = true
	workers := p.workers
	p.mu.Unlock()

	for _, w := range workers {
		p.wg.Add(1)
		go p.runWorker(workerCtx, w)
	}
	return nil
}

// Stop cancels all workers and waits for them to exit.
func (p *Pool) Stop() {
	p.mu.Lock()
	if !p.running {
		p.mu.Unlock()
		return
	}
	cancel := p.cancel
	p.running = false
	p.mu.Unlock()

	cancel()
	p.wg.Wait()
}

func (p *Pool) runWorker(ctx context.Context, w WorkerConfig) {
	defer p.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		result, err := p.tr.XReadGroup(ctx, p.group, w.ConsumerName,
			[]transport.StreamSpec{{Stream: p.requestStream, ID: ">"}},
			transport.ReadGroupOptions{Count: p.batchSize, Block: p.blockDuration})
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			p.logger.Error("persona worker read failed", "persona", w.Persona, "error", err)
			continue
		}

		for _, msg := range result[p.requestStream] {
			p.handleMessage(ctx, w, msg)
		}
	}
}

// handleMessage implements spec's delivery algorithm: persona filter
// (fail-open on missing to_persona), duplicate check, then business logic.
func (p *Pool) handleMessage(ctx context.Context, w WorkerConfig, msg transport.Message) {
	toPersona := msg.Fields["to_persona"]
	if toPersona != "" && !strings.EqualFold(toPersona, w.Persona) {
		p.tr.XAck(ctx, p.requestStream, p.group, msg.ID)
		return
	}

	taskID := msg.Fields["task_id"]
	corrID := msg.Fields["corr_id"]
	if p.dup.IsDuplicate(taskID, corrID, w.Persona) {
		p.tr.XAck(ctx, p.requestStream, p.group, msg.ID)
		return
	}

	output, err := w.Handler(ctx, msg)
	p.tr.XAck(ctx, p.requestStream, p.group, msg.ID)
	p.dup.MarkProcessed(taskID, corrID, w.Persona, msg.Fields["workflow_id"])

	status := "pass"
	if err != nil {
		status = "fail"
		p.logger.Error("persona handler failed", "persona", w.Persona, "corr_id", corrID, "error", err)
	}

	resultJSON, marshalErr := json.Marshal(map[string]any{"status": status, "output": output})
	if marshalErr != nil {
		p.logger.Error("failed to encode persona result", "persona", w.Persona, "error", marshalErr)
		return
	}

	responseFields := transport.Fields{
		"workflow_id": msg.Fields["workflow_id"],
		"corr_id":     corrID,
		"from":        w.Persona,
		"result":      string(resultJSON),
	}
	if _, err := p.tr.XAdd(ctx, p.responseStream, "*", responseFields); err != nil {
		p.logger.Error("failed to publish persona response", "persona", w.Persona, "error", err)
	}
}
