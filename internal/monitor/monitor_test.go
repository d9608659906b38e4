package monitor

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"agromart/internal/model"
	"agromart/internal/projector"
	"agromart/internal/storage/memory"
)

var stockTopic = common.HexToHash("0x00000000000000000000000000000000000000000000000000000000000000aa")

// fakeDecoder reads the product ID out of topic 1; no ABI involved.
type fakeDecoder struct{}

func (fakeDecoder) Topics() []common.Hash { return []common.Hash{stockTopic} }

func (fakeDecoder) Decode(log types.Log) (model.EventPayload, error) {
	if len(log.Topics) < 2 || log.Topics[0] != stockTopic {
		return nil, fmt.Errorf("unknown log")
	}
	return model.StockUpdatedData{
		ProductID: log.Topics[1].Big().String(),
		NewAmount: "5",
	}, nil
}

type fakeSub struct {
	errCh chan error
	once  sync.Once
}

func newFakeSub() *fakeSub { return &fakeSub{errCh: make(chan error, 1)} }

func (s *fakeSub) Unsubscribe()      { s.once.Do(func() { close(s.errCh) }) }
func (s *fakeSub) Err() <-chan error { return s.errCh }
func (s *fakeSub) fail(err error)    { s.errCh <- err }

type fakeSource struct {
	mu        sync.Mutex
	head      uint64
	logs      []types.Log
	sinks     []chan<- types.Log
	subs      []*fakeSub
	subErr    error
	subCalls  int
	onReplay  func() // invoked at the start of FilterLogs, once
	replayRan bool
}

func (f *fakeSource) LatestBlockNumber(context.Context) (uint64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.head, nil
}

func (f *fakeSource) FilterLogs(_ context.Context, from, to uint64, _ []common.Address, _ []common.Hash) ([]types.Log, error) {
	f.mu.Lock()
	hook := f.onReplay
	ran := f.replayRan
	f.replayRan = true
	f.mu.Unlock()
	if hook != nil && !ran {
		hook()
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	var out []types.Log
	for _, log := range f.logs {
		if log.BlockNumber >= from && log.BlockNumber <= to {
			out = append(out, log)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].BlockNumber != out[j].BlockNumber {
			return out[i].BlockNumber < out[j].BlockNumber
		}
		return out[i].Index < out[j].Index
	})
	return out, nil
}

func (f *fakeSource) SubscribeLogs(_ context.Context, _ []common.Address, _ []common.Hash, sink chan<- types.Log) (ethereum.Subscription, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.subCalls++
	if f.subErr != nil {
		return nil, f.subErr
	}
	sub := newFakeSub()
	f.subs = append(f.subs, sub)
	f.sinks = append(f.sinks, sink)
	return sub, nil
}

func (f *fakeSource) emit(log types.Log) {
	f.mu.Lock()
	sinks := append([]chan<- types.Log(nil), f.sinks...)
	f.mu.Unlock()
	for _, sink := range sinks {
		sink <- log
	}
}

func (f *fakeSource) lastSub() *fakeSub {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.subs[len(f.subs)-1]
}

// recordingApplier wraps the real projector and records dispatch order.
type recordingApplier struct {
	mu    sync.Mutex
	inner *projector.Projector
	seen  []uint64
}

func (r *recordingApplier) Apply(ctx context.Context, event model.ContractEvent) (projector.Result, error) {
	r.mu.Lock()
	r.seen = append(r.seen, event.BlockNumber)
	r.mu.Unlock()
	return r.inner.Apply(ctx, event)
}

func (r *recordingApplier) blocks() []uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]uint64(nil), r.seen...)
}

func stockLog(block uint64, tx string, index uint) types.Log {
	return types.Log{
		Address:     common.HexToAddress("0x99"),
		Topics:      []common.Hash{stockTopic, common.BigToHash(common.Big1)},
		BlockNumber: block,
		TxHash:      common.HexToHash(tx),
		Index:       index,
	}
}

type fixture struct {
	source  *fakeSource
	events  *memory.EventStore
	applier *recordingApplier
	monitor *Monitor
}

func newFixture(source *fakeSource) *fixture {
	events := memory.NewEventStore()
	applier := &recordingApplier{inner: projector.New(memory.NewReadModel(), "KES", nil)}
	mon := New(Config{
		ContractAddress: common.HexToAddress("0x99"),
		BatchSize:       2,
		Retry:           RetryPolicy{MaxAttempts: 2, Delay: time.Millisecond},
	}, source, fakeDecoder{}, events, applier, nil, nil)
	return &fixture{source: source, events: events, applier: applier, monitor: mon}
}

func processedKeys(t *testing.T, events *memory.EventStore, keys ...[2]interface{}) {
	t.Helper()
	for _, key := range keys {
		stored, ok, err := events.EventByKey(context.Background(), key[0].(string), uint64(key[1].(int)))
		require.NoError(t, err)
		require.True(t, ok, "event %v not stored", key)
		assert.True(t, stored.Processed, "event %v not processed", key)
	}
}

func TestNoGapReplay(t *testing.T) {
	t.Parallel()

	source := &fakeSource{head: 12}
	fix := newFixture(source)
	ctx := context.Background()

	// Checkpoint at block 9.
	_, err := fix.events.AppendEvent(ctx, model.ContractEvent{
		ID: "cp", Kind: model.EventStockUpdated, TxHash: "0xcp", BlockNumber: 9,
		Payload: model.StockUpdatedData{ProductID: "1", NewAmount: "1"},
	})
	require.NoError(t, err)
	require.NoError(t, fix.events.MarkProcessed(ctx, "cp", ""))

	source.logs = []types.Log{
		stockLog(11, "0xb", 0),
		stockLog(10, "0xa", 0),
		stockLog(12, "0xc", 0),
	}

	require.NoError(t, fix.monitor.Start(ctx))
	defer fix.monitor.Stop()

	// Blocks 10-12 each processed exactly once, ascending.
	assert.Equal(t, []uint64{10, 11, 12}, fix.applier.blocks())

	block, ok, err := fix.events.LastProcessedBlock(ctx)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, uint64(12), block)
}

func TestLiveEventsWaitForReplay(t *testing.T) {
	t.Parallel()

	source := &fakeSource{head: 11}
	source.logs = []types.Log{stockLog(10, "0xa", 0), stockLog(11, "0xb", 0)}
	fix := newFixture(source)

	// A live log lands while the backfill query is in flight; it must be
	// applied only after the replayed range.
	source.onReplay = func() {
		source.emit(stockLog(13, "0xd", 0))
	}

	require.NoError(t, fix.monitor.Start(context.Background()))
	defer fix.monitor.Stop()

	require.Eventually(t, func() bool {
		return len(fix.applier.blocks()) == 3
	}, time.Second, time.Millisecond)

	assert.Equal(t, []uint64{10, 11, 13}, fix.applier.blocks())
}

func TestDuplicateDeliveryIsNoop(t *testing.T) {
	t.Parallel()

	source := &fakeSource{head: 10}
	source.logs = []types.Log{stockLog(10, "0xa", 0)}
	fix := newFixture(source)

	require.NoError(t, fix.monitor.Start(context.Background()))
	defer fix.monitor.Stop()

	require.Equal(t, []uint64{10}, fix.applier.blocks())

	// The same log arrives again on the live path.
	source.emit(stockLog(10, "0xa", 0))

	require.Eventually(t, func() bool {
		unprocessed, err := fix.events.UnprocessedEvents(context.Background())
		return err == nil && len(unprocessed) == 0
	}, time.Second, time.Millisecond)

	// Still exactly one application.
	assert.Equal(t, []uint64{10}, fix.applier.blocks())
}

func TestCrashRecoveryFinishesStoredEvent(t *testing.T) {
	t.Parallel()

	source := &fakeSource{head: 10}
	fix := newFixture(source)
	ctx := context.Background()

	// A previous run stored the event but crashed before projecting it.
	log := stockLog(10, "0xa", 0)
	_, err := fix.events.AppendEvent(ctx, model.ContractEvent{
		ID: "stale", Kind: model.EventStockUpdated,
		TxHash: log.TxHash.Hex(), BlockNumber: 10, LogIndex: 0,
		Payload: model.StockUpdatedData{ProductID: "1", NewAmount: "5"},
	})
	require.NoError(t, err)

	source.logs = []types.Log{log}
	require.NoError(t, fix.monitor.Start(ctx))
	defer fix.monitor.Stop()

	processedKeys(t, fix.events, [2]interface{}{log.TxHash.Hex(), 0})
}

func TestFailStopOnExhaustedReconnect(t *testing.T) {
	t.Parallel()

	source := &fakeSource{head: 5}
	fix := newFixture(source)

	require.NoError(t, fix.monitor.Start(context.Background()))
	require.True(t, fix.monitor.Running())
	done := fix.monitor.Done()

	// Every resubscription attempt fails from here on.
	source.mu.Lock()
	source.subErr = fmt.Errorf("connection refused")
	source.mu.Unlock()
	source.lastSub().fail(fmt.Errorf("websocket closed"))

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("monitor did not fail-stop")
	}
	assert.False(t, fix.monitor.Running())
}

func TestReconnectReplaysGap(t *testing.T) {
	t.Parallel()

	source := &fakeSource{head: 10}
	source.logs = []types.Log{stockLog(10, "0xa", 0)}
	fix := newFixture(source)

	require.NoError(t, fix.monitor.Start(context.Background()))
	defer fix.monitor.Stop()
	require.Equal(t, []uint64{10}, fix.applier.blocks())

	// Connection drops; blocks 11-12 happen while offline.
	source.mu.Lock()
	source.head = 12
	source.logs = append(source.logs, stockLog(11, "0xb", 0), stockLog(12, "0xc", 0))
	source.mu.Unlock()
	source.lastSub().fail(fmt.Errorf("websocket closed"))

	require.Eventually(t, func() bool {
		return len(fix.applier.blocks()) == 3
	}, 2*time.Second, time.Millisecond)
	assert.Equal(t, []uint64{10, 11, 12}, fix.applier.blocks())
	assert.True(t, fix.monitor.Running())
}

func TestStartStopIdempotent(t *testing.T) {
	t.Parallel()

	source := &fakeSource{head: 0}
	fix := newFixture(source)

	// Stop before any start is a no-op.
	fix.monitor.Stop()

	ctx := context.Background()
	require.NoError(t, fix.monitor.Start(ctx))
	require.NoError(t, fix.monitor.Start(ctx)) // second start: no-op
	assert.Equal(t, 1, source.subCalls)

	fix.monitor.Stop()
	fix.monitor.Stop()
	assert.False(t, fix.monitor.Running())
}

func TestRestartSupersedesOldLoop(t *testing.T) {
	t.Parallel()

	source := &fakeSource{head: 0}
	fix := newFixture(source)
	ctx := context.Background()

	require.NoError(t, fix.monitor.Start(ctx))
	oldDone := fix.monitor.Done()

	fix.monitor.Stop()
	require.NoError(t, fix.monitor.Start(ctx))

	// The first run's loop finishes its cleanup after the restart; it must
	// not clear the new run's state.
	select {
	case <-oldDone:
	case <-time.After(time.Second):
		t.Fatal("old live loop did not exit")
	}
	assert.True(t, fix.monitor.Running())

	fix.monitor.Stop()
	select {
	case <-fix.monitor.Done():
	case <-time.After(time.Second):
		t.Fatal("restarted loop did not exit")
	}
	assert.False(t, fix.monitor.Running())
}

func TestSweepProcessesStoredBacklog(t *testing.T) {
	t.Parallel()

	source := &fakeSource{head: 0}
	fix := newFixture(source)
	ctx := context.Background()

	for i, block := range []uint64{7, 5, 6} {
		_, err := fix.events.AppendEvent(ctx, model.ContractEvent{
			ID:          fmt.Sprintf("e%d", i),
			Kind:        model.EventStockUpdated,
			TxHash:      fmt.Sprintf("0x%d", i),
			BlockNumber: block,
			Payload:     model.StockUpdatedData{ProductID: "1", NewAmount: "5"},
		})
		require.NoError(t, err)
	}

	require.NoError(t, fix.monitor.Sweep(ctx))

	unprocessed, err := fix.events.UnprocessedEvents(ctx)
	require.NoError(t, err)
	assert.Empty(t, unprocessed)
	assert.Equal(t, []uint64{5, 6, 7}, fix.applier.blocks())
}
