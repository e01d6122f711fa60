package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cyberchat-go/internal/model"
	"cyberchat-go/pkg/tasks"
)

// fakeReader hands out each message once, like a consumer group reader, then blocks until ctx is done.
type fakeReader struct {
	msgs      []kafka.Message
	committed []int64
	closed    bool
}

func (f *fakeReader) FetchMessage(ctx context.Context) (kafka.Message, error) {
	if len(f.msgs) == 0 {
		<-ctx.Done()
		return kafka.Message{}, ctx.Err()
	}
	m := f.msgs[0]
	f.msgs = f.msgs[1:]
	return m, nil
}

func (f *fakeReader) CommitMessages(_ context.Context, msgs ...kafka.Message) error {
	for _, m := range msgs {
		f.committed = append(f.committed, m.Offset)
	}
	return nil
}

func (f *fakeReader) Close() error {
	f.closed = true
	return nil
}

type fakeProcessor struct {
	failures map[string]int
	done     []tasks.ChatRecordTask
	cancel   context.CancelFunc
	stopAt   int
	calls    int
}

func (p *fakeProcessor) Process(_ context.Context, task tasks.ChatRecordTask) error {
	p.calls++
	defer func() {
		if p.calls == p.stopAt {
			p.cancel()
		}
	}()
	if p.failures[task.SessionID] > 0 {
		p.failures[task.SessionID]--
		return errors.New("mysql down")
	}
	p.done = append(p.done, task)
	return nil
}

func message(t *testing.T, offset int64, sessionID string) kafka.Message {
	t.Helper()
	value, err := json.Marshal(tasks.NewChatRecordTask(model.ChatRecord{
		SessionID: sessionID, UserMessage: "q", BotResponse: "a", Timestamp: time.Unix(1700000000, 0),
	}))
	require.NoError(t, err)
	return kafka.Message{Offset: offset, Value: value}
}

func TestMain(m *testing.M) {
	retryBackoff = time.Millisecond
	os.Exit(m.Run())
}

func TestConsume_CommitsProcessedAndPoisoned(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	r := &fakeReader{msgs: []kafka.Message{
		message(t, 1, "ok"),
		{Offset: 2, Value: []byte("not json")},
		message(t, 3, "bad"),
		message(t, 4, "next"),
	}}
	p := &fakeProcessor{failures: map[string]int{"bad": 10}, cancel: cancel, stopAt: 5}
	attempts := NewMemoryAttempts()

	consume(ctx, r, p, attempts)

	assert.True(t, r.closed)
	assert.Equal(t, 5, p.calls)
	require.Len(t, p.done, 2)
	assert.Equal(t, "ok", p.done[0].SessionID)
	assert.Equal(t, "next", p.done[1].SessionID)
	// offset 3 is retried in place and committed after its third failure
	assert.Equal(t, []int64{1, 2, 3, 4}, r.committed)
	assert.Empty(t, attempts.counts)
}

func TestConsume_RetrySucceedsWithoutRedelivery(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	r := &fakeReader{msgs: []kafka.Message{message(t, 7, "flaky")}}
	p := &fakeProcessor{failures: map[string]int{"flaky": 2}, cancel: cancel, stopAt: 3}
	attempts := NewMemoryAttempts()

	consume(ctx, r, p, attempts)

	assert.Equal(t, 3, p.calls)
	require.Len(t, p.done, 1)
	assert.Equal(t, []int64{7}, r.committed)
	assert.Empty(t, attempts.counts)
}

func TestConsume_StopDuringRetryLeavesOffsetUncommitted(t *testing.T) {
	retryBackoff = time.Hour
	t.Cleanup(func() { retryBackoff = time.Millisecond })
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	r := &fakeReader{msgs: []kafka.Message{message(t, 9, "down")}}
	p := &fakeProcessor{failures: map[string]int{"down": 10}, cancel: cancel, stopAt: 1}

	consume(ctx, r, p, NewMemoryAttempts())

	assert.Equal(t, 1, p.calls)
	assert.Empty(t, r.committed)
	assert.True(t, r.closed)
}

func TestBrokers(t *testing.T) {
	assert.Equal(t, []string{"a:9092", "b:9092"}, brokers(" a:9092, ,b:9092"))
	assert.Nil(t, brokers(""))
}
