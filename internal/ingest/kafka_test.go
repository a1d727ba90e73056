package ingest

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/IBM/sarama"
	"github.com/IBM/sarama/mocks"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/Priyanshiguptaaa/mvp-beta-bss/config"
	"github.com/Priyanshiguptaaa/mvp-beta-bss/internal/store"
	"github.com/Priyanshiguptaaa/mvp-beta-bss/types"
)

const logContent = `{"type":"log","data":{"level":"error","message":"timeout","timestamp":"2024-03-01T12:00:00Z"}}`

type memorySink struct {
	mu     sync.Mutex
	traces []*store.Trace
	err    error
}

func (s *memorySink) CreateTrace(_ context.Context, t *store.Trace) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	t.ID = uint(len(s.traces) + 1)
	s.traces = append(s.traces, t)
	return nil
}

type fakeSession struct {
	sarama.ConsumerGroupSession
	ctx    context.Context
	mu     sync.Mutex
	marked []int64
}

func (s *fakeSession) Context() context.Context { return s.ctx }

func (s *fakeSession) MarkMessage(msg *sarama.ConsumerMessage, _ string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.marked = append(s.marked, msg.Offset)
}

type fakeClaim struct {
	sarama.ConsumerGroupClaim
	msgs chan *sarama.ConsumerMessage
}

func (c *fakeClaim) Messages() <-chan *sarama.ConsumerMessage { return c.msgs }

func claimOf(values ...string) *fakeClaim {
	ch := make(chan *sarama.ConsumerMessage, len(values))
	for i, v := range values {
		ch <- &sarama.ConsumerMessage{Topic: "echosys.traces", Offset: int64(i), Value: []byte(v)}
	}
	close(ch)
	return &fakeClaim{msgs: ch}
}

func message(t *testing.T, userID uint, content string) string {
	t.Helper()
	b, err := json.Marshal(TraceMessage{UserID: &userID, FileName: " app.log ", Content: json.RawMessage(content)})
	require.NoError(t, err)
	return string(b)
}

func TestConsumer_StoresValidRecordsAndSkipsBadOnes(t *testing.T) {
	sink := &memorySink{}
	c := newConsumer(nil, "echosys.traces", sink, zaptest.NewLogger(t), nil)
	session := &fakeSession{ctx: context.Background()}

	claim := claimOf(
		message(t, 7, logContent),
		"not json",
		message(t, 7, `{"type":"span","data":{}}`),
		message(t, 8, logContent),
	)
	require.NoError(t, c.ConsumeClaim(session, claim))

	assert.Equal(t, []int64{0, 1, 2, 3}, session.marked)
	require.Len(t, sink.traces, 2)
	assert.Equal(t, uint(7), *sink.traces[0].UserID)
	assert.Equal(t, "app.log", sink.traces[0].FileName)
	assert.Equal(t, len(logContent), sink.traces[0].FileSize)
	assert.JSONEq(t, logContent, string(sink.traces[0].Content))
	assert.Equal(t, uint(8), *sink.traces[1].UserID)
}

func TestConsumer_StoreFailureStopsWithoutCommit(t *testing.T) {
	sink := &memorySink{err: errors.New("database is locked")}
	c := newConsumer(nil, "echosys.traces", sink, zaptest.NewLogger(t), nil)
	session := &fakeSession{ctx: context.Background()}

	err := c.ConsumeClaim(session, claimOf(message(t, 1, logContent)))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "database is locked")
	assert.Empty(t, session.marked)
}

func TestConsumer_StopsWhenSessionEnds(t *testing.T) {
	c := newConsumer(nil, "echosys.traces", &memorySink{}, nil, nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	claim := &fakeClaim{msgs: make(chan *sarama.ConsumerMessage)}
	done := make(chan error, 1)
	go func() { done <- c.ConsumeClaim(&fakeSession{ctx: ctx}, claim) }()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("ConsumeClaim did not return")
	}
}

func TestDecode(t *testing.T) {
	tr, kind, err := decode([]byte(message(t, 3, logContent)))
	require.NoError(t, err)
	assert.Equal(t, types.TraceTypeLog, kind)
	assert.Equal(t, uint(3), *tr.UserID)

	_, _, err = decode([]byte(`{"content":{"type":"log","data":[1]}}`))
	assert.True(t, types.IsErrorCode(err, types.ErrMalformedTrace))

	_, _, err = decode([]byte(`{"content":{"type":"span"}}`))
	assert.True(t, types.IsErrorCode(err, types.ErrUnknownTraceType))
}

func TestPublisher_Publish(t *testing.T) {
	producer := mocks.NewSyncProducer(t, nil)
	defer func() { assert.NoError(t, producer.Close()) }()

	producer.ExpectSendMessageWithCheckerFunctionAndSucceed(func(val []byte) error {
		var msg TraceMessage
		if err := json.Unmarshal(val, &msg); err != nil {
			return err
		}
		if msg.UserID == nil || *msg.UserID != 5 {
			return errors.New("user_id not propagated")
		}
		return nil
	})
	producer.ExpectSendMessageAndFail(sarama.ErrOutOfBrokers)

	p := &Publisher{producer: producer, topic: "echosys.traces"}
	uid := uint(5)
	require.NoError(t, p.Publish(context.Background(), TraceMessage{UserID: &uid, Content: json.RawMessage(logContent)}))

	err := p.Publish(context.Background(), TraceMessage{Content: json.RawMessage(logContent)})
	assert.ErrorIs(t, err, sarama.ErrOutOfBrokers)

	// 校验失败的 trace 不会发送
	err = p.Publish(context.Background(), TraceMessage{Content: json.RawMessage(`{"type":"nope"}`)})
	assert.True(t, types.IsErrorCode(err, types.ErrUnknownTraceType))
}

func TestNewSaramaConfig(t *testing.T) {
	_, err := NewSaramaConfig(config.KafkaConfig{})
	assert.True(t, types.IsErrorCode(err, types.ErrValidation))

	_, err = NewSaramaConfig(config.KafkaConfig{Brokers: []string{"k:9092"}, Version: "banana"})
	assert.True(t, types.IsErrorCode(err, types.ErrValidation))

	sc, err := NewSaramaConfig(config.KafkaConfig{Brokers: []string{"k:9092"}, Version: "2.8.0", Timeout: 5 * time.Second})
	require.NoError(t, err)
	assert.Equal(t, "echosys", sc.ClientID)
	assert.Equal(t, sarama.OffsetOldest, sc.Consumer.Offsets.Initial)
	assert.Equal(t, 5*time.Second, sc.Net.DialTimeout)
	assert.NoError(t, sc.Validate())
	assert.False(t, sc.Net.TLS.Enable)

	sc, err = NewSaramaConfig(config.KafkaConfig{Brokers: []string{"k:9093"}, TLS: true})
	require.NoError(t, err)
	assert.True(t, sc.Net.TLS.Enable)
	require.NotNil(t, sc.Net.TLS.Config)
	assert.Empty(t, sc.Net.TLS.Config.ServerName)

	_, err = NewConsumer(config.KafkaConfig{Brokers: []string{"k:9092"}}, &memorySink{}, nil, nil)
	assert.True(t, types.IsErrorCode(err, types.ErrValidation))
}

func TestParseBrokers(t *testing.T) {
	assert.Nil(t, ParseBrokers(""))
	assert.Equal(t, []string{"a:9092", "b:9092"}, ParseBrokers(" a:9092, ,b:9092 "))
}
