package publisher

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/fjod/go_fulfill/internal/repository"
)

type mockSource struct {
	events   []*repository.OutboxEvent
	fetchErr error
	markErr  error
	marked   []int64
}

func (m *mockSource) GetUnprocessedEvents(_ context.Context, limit int) ([]*repository.OutboxEvent, error) {
	if m.fetchErr != nil {
		return nil, m.fetchErr
	}
	if len(m.events) > limit {
		return m.events[:limit], nil
	}
	return m.events, nil
}

func (m *mockSource) MarkEventAsProcessed(_ context.Context, eventID int64) error {
	if m.markErr != nil {
		return m.markErr
	}
	m.marked = append(m.marked, eventID)
	for i, ev := range m.events {
		if ev.ID == eventID {
			m.events = append(m.events[:i], m.events[i+1:]...)
			break
		}
	}
	return nil
}

type mockWriter struct {
	written  []kafka.Message
	writeErr error
}

func (m *mockWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	if m.writeErr != nil {
		return m.writeErr
	}
	m.written = append(m.written, msgs...)
	return nil
}

func newPoller(repo eventSource, writer messageWriter) *OutboxPoller {
	return &OutboxPoller{
		tick:   10 * time.Millisecond,
		batch:  defaultBatchSize,
		repo:   repo,
		writer: writer,
		logger: zap.NewNop(),
	}
}

func event(id int64, aggregate, eventType string) *repository.OutboxEvent {
	return &repository.OutboxEvent{
		ID:          id,
		AggregateID: aggregate,
		EventType:   eventType,
		Payload:     []byte(`{"order_id":"` + aggregate + `"}`),
		CreatedAt:   time.Now(),
	}
}

func TestDrainPublishesAndMarks(t *testing.T) {
	repo := &mockSource{events: []*repository.OutboxEvent{
		event(1, "order-1", "order.created"),
		event(2, "order-2", "order.status_changed"),
	}}
	writer := &mockWriter{}

	newPoller(repo, writer).drain(context.Background())

	require.Len(t, writer.written, 2)
	assert.Equal(t, "order-1", string(writer.written[0].Key))
	require.Len(t, writer.written[0].Headers, 1)
	assert.Equal(t, "event_type", writer.written[0].Headers[0].Key)
	assert.Equal(t, "order.created", string(writer.written[0].Headers[0].Value))
	assert.Equal(t, []int64{1, 2}, repo.marked)
	assert.Empty(t, repo.events)
}

func TestDrainLeavesEventOnPublishFailure(t *testing.T) {
	repo := &mockSource{events: []*repository.OutboxEvent{event(1, "order-1", "order.created")}}
	writer := &mockWriter{writeErr: errors.New("broker down")}

	newPoller(repo, writer).drain(context.Background())

	assert.Empty(t, repo.marked)
	require.Len(t, repo.events, 1)

	// Broker back up: the same event goes out on the next tick.
	writer.writeErr = nil
	newPoller(repo, writer).drain(context.Background())
	assert.Equal(t, []int64{1}, repo.marked)
}

func TestDrainSurvivesFetchError(t *testing.T) {
	repo := &mockSource{fetchErr: errors.New("db gone")}
	writer := &mockWriter{}

	newPoller(repo, writer).drain(context.Background())
	assert.Empty(t, writer.written)
}

func TestDrainContinuesAfterMarkError(t *testing.T) {
	repo := &mockSource{
		events:  []*repository.OutboxEvent{event(1, "order-1", "order.created")},
		markErr: errors.New("deadlock"),
	}
	writer := &mockWriter{}

	newPoller(repo, writer).drain(context.Background())

	// Published but unmarked: redelivered next tick, consumers dedupe.
	require.Len(t, writer.written, 1)
	assert.Empty(t, repo.marked)
}

func TestRunStopsOnContextCancel(t *testing.T) {
	repo := &mockSource{events: []*repository.OutboxEvent{event(1, "order-1", "order.created")}}
	writer := &mockWriter{}
	poller := newPoller(repo, writer)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		poller.Run(ctx)
		close(done)
	}()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("poller did not stop on cancel")
	}
	assert.NotEmpty(t, writer.written)
}
