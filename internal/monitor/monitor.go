// Package monitor tails marketplace contract events and feeds them through
// the event store into the read-model projector.
//
// Start sequence: load the last-processed checkpoint, attach the live
// subscription (arriving logs queue in a buffered channel), replay the
// historical range up to the chain head, then consume live logs. Replay and
// live delivery share one dispatch path, so an event is persisted before it
// is projected and duplicates collapse on (tx_hash, log_index) either way.
package monitor

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"agromart/internal/model"
	"agromart/internal/projector"
	"agromart/internal/storage"
)

// ChainSource is the chain access the monitor needs. *chain.Client
// implements it; tests use a fake.
type ChainSource interface {
	LatestBlockNumber(ctx context.Context) (uint64, error)
	FilterLogs(ctx context.Context, fromBlock, toBlock uint64, addresses []common.Address, topic0 []common.Hash) ([]types.Log, error)
	SubscribeLogs(ctx context.Context, addresses []common.Address, topic0 []common.Hash, sink chan<- types.Log) (ethereum.Subscription, error)
}

// LogDecoder turns raw logs into typed payloads. *contract.Decoder
// implements it.
type LogDecoder interface {
	Topics() []common.Hash
	Decode(log types.Log) (model.EventPayload, error)
}

// Applier projects one stored event. *projector.Projector implements it.
type Applier interface {
	Apply(ctx context.Context, event model.ContractEvent) (projector.Result, error)
}

// Config holds monitor settings.
type Config struct {
	ContractAddress common.Address
	// StartBlock is the first block to backfill when the event store holds
	// no checkpoint yet.
	StartBlock uint64
	BatchSize  uint64
	// LiveBuffer sizes the queue that absorbs live logs during replay.
	LiveBuffer int
	Retry      RetryPolicy
}

// Monitor drives the replay-then-subscribe pipeline.
type Monitor struct {
	cfg       Config
	source    ChainSource
	decoder   LogDecoder
	events    storage.EventStore
	projector Applier
	audit     *storage.JsonlAudit
	logger    *zap.Logger
	metrics   *Metrics

	mu      sync.Mutex
	running bool
	cancel  context.CancelFunc
	done    chan struct{}
}

func New(
	cfg Config,
	source ChainSource,
	decoder LogDecoder,
	events storage.EventStore,
	proj Applier,
	logger *zap.Logger,
	metrics *Metrics,
) *Monitor {
	if cfg.BatchSize == 0 {
		cfg.BatchSize = 2000
	}
	if cfg.LiveBuffer == 0 {
		cfg.LiveBuffer = 1024
	}
	if cfg.Retry.MaxAttempts == 0 {
		cfg.Retry = DefaultRetryPolicy()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Monitor{
		cfg:       cfg,
		source:    source,
		decoder:   decoder,
		events:    events,
		projector: proj,
		logger:    logger,
		metrics:   metrics,
	}
}

// SetAudit attaches an optional JSONL export of every stored event.
func (m *Monitor) SetAudit(audit *storage.JsonlAudit) {
	m.audit = audit
}

// SetMetrics attaches instrumentation. Call before Start.
func (m *Monitor) SetMetrics(metrics *Metrics) {
	m.metrics = metrics
}

// Running reports whether the live loop is active.
func (m *Monitor) Running() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.running
}

// Start replays the missed range and then consumes live events. Calling
// Start while running is a no-op. Start returns once replay is complete;
// live consumption continues in the background until Stop or a terminal
// subscription failure.
func (m *Monitor) Start(ctx context.Context) error {
	m.mu.Lock()
	if m.running {
		m.mu.Unlock()
		return nil
	}
	runCtx, cancel := context.WithCancel(ctx)
	m.cancel = cancel
	m.running = true
	m.done = make(chan struct{})
	m.mu.Unlock()

	fail := func(err error) error {
		cancel()
		m.mu.Lock()
		m.running = false
		close(m.done)
		m.mu.Unlock()
		return err
	}

	sink := make(chan types.Log, m.cfg.LiveBuffer)
	sub, err := m.subscribe(runCtx, sink)
	if err != nil {
		return fail(fmt.Errorf("subscribe: %w", err))
	}

	if err := m.replay(runCtx); err != nil {
		sub.Unsubscribe()
		return fail(fmt.Errorf("replay: %w", err))
	}

	go m.liveLoop(runCtx, sub, sink, m.done)
	return nil
}

// Stop cancels monitoring. It is idempotent and does not wait for in-flight
// event handling; handlers may finish their projection write, but no event
// is marked processed once the stop is acknowledged.
func (m *Monitor) Stop() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.running {
		return
	}
	m.cancel()
	m.running = false
}

// Done is closed when the live loop exits, for tests and shutdown hooks.
func (m *Monitor) Done() <-chan struct{} {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.done
}

func (m *Monitor) subscribe(ctx context.Context, sink chan types.Log) (ethereum.Subscription, error) {
	var sub ethereum.Subscription
	err := m.cfg.Retry.Do(ctx, func(ctx context.Context) error {
		var err error
		sub, err = m.source.SubscribeLogs(ctx, []common.Address{m.cfg.ContractAddress}, m.decoder.Topics(), sink)
		if err != nil {
			m.logger.Warn("subscribe failed", zap.Error(err))
		}
		return err
	})
	return sub, err
}

// replay processes the inclusive range (checkpoint, head] through the
// shared dispatch path.
func (m *Monitor) replay(ctx context.Context) error {
	from := m.cfg.StartBlock
	checkpoint, ok, err := m.events.LastProcessedBlock(ctx)
	if err != nil {
		return fmt.Errorf("load checkpoint: %w", err)
	}
	if ok && checkpoint+1 > from {
		from = checkpoint + 1
	}

	head, err := m.source.LatestBlockNumber(ctx)
	if err != nil {
		return fmt.Errorf("chain head: %w", err)
	}

	if from > head {
		m.logger.Info("nothing to replay", zap.Uint64("from", from), zap.Uint64("head", head))
		return nil
	}

	ranges, err := SplitRange(from, head, m.cfg.BatchSize)
	if err != nil {
		return err
	}

	m.logger.Info("replay start", zap.Uint64("from", from), zap.Uint64("to", head), zap.Int("batches", len(ranges)))

	for _, blockRange := range ranges {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		logs, err := m.filterLogsWithRetry(ctx, blockRange.From, blockRange.To)
		if err != nil {
			return fmt.Errorf("filter logs %d-%d: %w", blockRange.From, blockRange.To, err)
		}
		for _, log := range logs {
			if err := m.handleLog(ctx, log); err != nil {
				return err
			}
		}
	}

	m.logger.Info("replay complete", zap.Uint64("from", from), zap.Uint64("to", head))
	return nil
}

func (m *Monitor) filterLogsWithRetry(ctx context.Context, fromBlock, toBlock uint64) ([]types.Log, error) {
	var logs []types.Log
	err := m.cfg.Retry.Do(ctx, func(ctx context.Context) error {
		var err error
		logs, err = m.source.FilterLogs(ctx, fromBlock, toBlock, []common.Address{m.cfg.ContractAddress}, m.decoder.Topics())
		if err != nil {
			m.logger.Warn("filter logs failed", zap.Error(err), zap.Uint64("from", fromBlock), zap.Uint64("to", toBlock))
		}
		return err
	})
	return logs, err
}

func (m *Monitor) liveLoop(ctx context.Context, sub ethereum.Subscription, sink chan types.Log, done chan struct{}) {
	defer func() {
		sub.Unsubscribe()
		m.mu.Lock()
		close(done)
		// A restart may already own m.done; only clear state for this run.
		if m.done == done {
			m.running = false
		}
		m.mu.Unlock()
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case log := <-sink:
			if err := m.handleLog(ctx, log); err != nil {
				// The event stays unprocessed in the store; Sweep picks
				// it up. Business-rule skips never reach this branch.
				m.logger.Error("event handling failed", zap.Error(err), zap.String("tx", log.TxHash.Hex()))
			}
		case err := <-sub.Err():
			if ctx.Err() != nil {
				return
			}
			if err != nil {
				m.logger.Warn("subscription lost", zap.Error(err))
			}
			next, reconnectErr := m.reconnect(ctx, sink)
			if reconnectErr != nil {
				// Fail-stop: operators must restart monitoring explicitly.
				m.logger.Error("reconnect attempts exhausted, monitoring stopped", zap.Error(reconnectErr))
				return
			}
			sub.Unsubscribe()
			sub = next
		}
	}
}

// reconnect re-establishes the subscription and replays the gap that opened
// while disconnected.
func (m *Monitor) reconnect(ctx context.Context, sink chan types.Log) (ethereum.Subscription, error) {
	var sub ethereum.Subscription
	err := m.cfg.Retry.Do(ctx, func(ctx context.Context) error {
		if m.metrics != nil {
			m.metrics.ReconnectAttempts.Inc()
		}
		var err error
		sub, err = m.source.SubscribeLogs(ctx, []common.Address{m.cfg.ContractAddress}, m.decoder.Topics(), sink)
		if err != nil {
			m.logger.Warn("resubscribe failed", zap.Error(err))
			return err
		}
		if err := m.replay(ctx); err != nil {
			sub.Unsubscribe()
			return err
		}
		return nil
	})
	return sub, err
}

// handleLog is the single dispatch path for live and replayed logs:
// decode, persist (write-ahead), project, mark processed.
func (m *Monitor) handleLog(ctx context.Context, log types.Log) error {
	if log.Removed {
		// Reorged-out log; the canonical replacement arrives separately.
		m.logger.Warn("removed log ignored", zap.String("tx", log.TxHash.Hex()), zap.Uint("index", log.Index))
		return nil
	}

	payload, err := m.decoder.Decode(log)
	if err != nil {
		m.logger.Warn("undecodable log ignored", zap.Error(err), zap.String("tx", log.TxHash.Hex()))
		return nil
	}

	if m.metrics != nil {
		m.metrics.EventsObserved.Inc()
	}

	event := model.ContractEvent{
		ID:              uuid.NewString(),
		Kind:            payload.Kind(),
		ContractAddress: log.Address.Hex(),
		TxHash:          log.TxHash.Hex(),
		BlockNumber:     log.BlockNumber,
		LogIndex:        uint64(log.Index),
		Payload:         payload,
		CreatedAt:       time.Now().UTC(),
	}

	inserted, err := m.events.AppendEvent(ctx, event)
	if err != nil {
		return fmt.Errorf("append event: %w", err)
	}
	if !inserted {
		stored, found, err := m.events.EventByKey(ctx, event.TxHash, event.LogIndex)
		if err != nil {
			return fmt.Errorf("load stored event: %w", err)
		}
		if !found {
			return fmt.Errorf("event %s vanished after duplicate append", event.Key())
		}
		if stored.Processed {
			if m.metrics != nil {
				m.metrics.DuplicateEvents.Inc()
			}
			return nil
		}
		// Stored by an earlier run that crashed before projecting; finish it.
		event = stored
	}

	if m.audit != nil {
		if err := m.audit.Append(event); err != nil {
			m.logger.Warn("audit append failed", zap.Error(err))
		}
	}

	return m.process(ctx, event)
}

// process projects one stored event and marks it processed. A stop request
// acknowledged before the mark leaves the event unprocessed on purpose.
func (m *Monitor) process(ctx context.Context, event model.ContractEvent) error {
	result, err := m.projector.Apply(ctx, event)
	if err != nil {
		return fmt.Errorf("project %s: %w", event.Key(), err)
	}

	if ctx.Err() != nil {
		return ctx.Err()
	}

	if err := m.events.MarkProcessed(ctx, event.ID, result.Note); err != nil {
		return fmt.Errorf("mark processed %s: %w", event.Key(), err)
	}

	if m.metrics != nil {
		m.metrics.EventsProcessed.Inc()
		if result.Skipped {
			m.metrics.EventsSkipped.Inc()
		}
		m.metrics.LastProcessedBlock.Set(float64(event.BlockNumber))
	}
	return nil
}

// Sweep projects stored events that were observed but never processed,
// typically after a crash between persistence and projection. Per-event
// failures are logged and left for the next sweep.
func (m *Monitor) Sweep(ctx context.Context) error {
	pending, err := m.events.UnprocessedEvents(ctx)
	if err != nil {
		return fmt.Errorf("list unprocessed: %w", err)
	}

	for _, event := range pending {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if err := m.process(ctx, event); err != nil {
			m.logger.Error("sweep event failed", zap.Error(err), zap.String("key", event.Key()))
		}
	}

	m.logger.Info("sweep complete", zap.Int("events", len(pending)))
	return nil
}
