package nats

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Strob0t/tcof/internal/logger"
	"github.com/Strob0t/tcof/internal/port/messagequeue"
)

const (
	testStream  = "TCOF_TEST"
	waitTimeout = 10 * time.Second
)

var errHandlerFailed = errors.New("handler failed")

// delivery is one message seen by a test subscriber.
type delivery struct {
	requestID string
	data      []byte
}

func connectOrSkip(t *testing.T) *Queue {
	t.Helper()
	url := os.Getenv("NATS_URL")
	if url == "" {
		t.Skip("requires NATS_URL")
	}
	q, err := Connect(context.Background(), url, testStream)
	require.NoError(t, err)
	t.Cleanup(func() { assert.NoError(t, q.Close()) })
	return q
}

// testSubject is unique per test and captured by the "tasks.>" stream filter.
func testSubject(t *testing.T) string {
	return "tasks.test." + t.Name()
}

// subscribe forwards every delivery on subject to the returned channel.
func subscribe(t *testing.T, q *Queue, subject string, fail bool) <-chan delivery {
	t.Helper()
	out := make(chan delivery, 16)
	stop, err := q.Subscribe(context.Background(), subject, func(ctx context.Context, _ string, data []byte) error {
		out <- delivery{requestID: logger.RequestID(ctx), data: data}
		if fail {
			return errHandlerFailed
		}
		return nil
	})
	require.NoError(t, err)
	t.Cleanup(stop)
	return out
}

// watchDLQ reads dead letters of subject with a raw consumer, bypassing
// payload validation.
func watchDLQ(t *testing.T, q *Queue, subject string) <-chan []byte {
	t.Helper()
	ctx := context.Background()
	consumer, err := q.js.CreateOrUpdateConsumer(ctx, q.stream, jetstream.ConsumerConfig{
		FilterSubject: subject + dlqSuffix,
		AckPolicy:     jetstream.AckExplicitPolicy,
		DeliverPolicy: jetstream.DeliverNewPolicy,
	})
	require.NoError(t, err)

	out := make(chan []byte, 4)
	cc, err := consumer.Consume(func(msg jetstream.Msg) {
		select {
		case out <- msg.Data():
		default:
		}
		_ = msg.Ack()
	})
	require.NoError(t, err)
	t.Cleanup(cc.Stop)
	return out
}

func receive[T any](t *testing.T, ch <-chan T) T {
	t.Helper()
	select {
	case v := <-ch:
		return v
	case <-time.After(waitTimeout):
		t.Fatal("timed out waiting for message")
		var zero T
		return zero
	}
}

func TestQueueDeliversTaskEvent(t *testing.T) {
	q := connectOrSkip(t)
	got := subscribe(t, q, messagequeue.SubjectTaskUpdated, false)

	event := messagequeue.TaskEventPayload{ProjectID: "p1", TaskID: "sf-42", Strategy: "source_id"}
	data, err := json.Marshal(event)
	require.NoError(t, err)

	ctx := logger.WithRequestID(context.Background(), "req-abc-123")
	require.NoError(t, q.Publish(ctx, messagequeue.SubjectTaskUpdated, data))

	d := receive(t, got)
	var decoded messagequeue.TaskEventPayload
	require.NoError(t, json.Unmarshal(d.data, &decoded))
	assert.Equal(t, event.TaskID, decoded.TaskID)
	assert.Equal(t, "req-abc-123", d.requestID)
}

func TestQueuePublishRejectsInvalidPayload(t *testing.T) {
	q := connectOrSkip(t)

	err := q.Publish(context.Background(), messagequeue.SubjectTaskUpdated, []byte(`{"project_id":"p"}`))
	assert.Error(t, err, "payload without task_id must not be published")
}

func TestQueueInvalidMessageGoesToDLQ(t *testing.T) {
	q := connectOrSkip(t)
	subject := messagequeue.SubjectTaskCreated
	handled := subscribe(t, q, subject, false)
	dead := watchDLQ(t, q, subject)

	_, err := q.js.Publish(context.Background(), subject, []byte("not-json"))
	require.NoError(t, err)

	assert.Equal(t, "not-json", string(receive(t, dead)))
	select {
	case d := <-handled:
		assert.NotEqual(t, "not-json", string(d.data), "invalid payload reached the handler")
	default:
	}
}

func TestQueueExhaustedRetriesGoToDLQ(t *testing.T) {
	q := connectOrSkip(t)
	subject := testSubject(t)
	dead := watchDLQ(t, q, subject)
	attempts := subscribe(t, q, subject, true)

	msg := nats.NewMsg(subject)
	msg.Data = []byte(`{"exhausted":true}`)
	msg.Header.Set(headerRetryCount, "3")
	_, err := q.js.PublishMsg(context.Background(), msg)
	require.NoError(t, err)

	receive(t, attempts)
	assert.JSONEq(t, `{"exhausted":true}`, string(receive(t, dead)))
}

func TestQueueFailingHandlerIsRetried(t *testing.T) {
	q := connectOrSkip(t)
	subject := testSubject(t)
	attempts := subscribe(t, q, subject, true)

	require.NoError(t, q.Publish(context.Background(), subject, []byte(`{"n":1}`)))

	receive(t, attempts)
	receive(t, attempts)
}

func TestQueueKeyValueBucket(t *testing.T) {
	q := connectOrSkip(t)
	ctx := context.Background()

	kv, err := q.KeyValue(ctx, "tcof-test-kv", 30*time.Second)
	require.NoError(t, err)

	_, err = kv.Put(ctx, "catalog", []byte("v1"))
	require.NoError(t, err)
	entry, err := kv.Get(ctx, "catalog")
	require.NoError(t, err)
	assert.Equal(t, "v1", string(entry.Value()))

	require.NoError(t, kv.Delete(ctx, "catalog"))
	_, err = kv.Get(ctx, "catalog")
	assert.ErrorIs(t, err, jetstream.ErrKeyNotFound)
}

func TestQueueReportsConnection(t *testing.T) {
	q := connectOrSkip(t)
	assert.True(t, q.IsConnected())
}

func TestRetryCountFromHeader(t *testing.T) {
	for _, tt := range []struct {
		header string
		want   int
	}{
		{"", 0},
		{"2", 2},
		{"garbage", 0},
	} {
		msg := stubMsg{headers: nats.Header{}}
		if tt.header != "" {
			msg.headers.Set(headerRetryCount, tt.header)
		}
		assert.Equal(t, tt.want, retryCount(msg), "header %q", tt.header)
	}
}

// stubMsg satisfies jetstream.Msg for retryCount; metadata is unavailable
// so only the header counts.
type stubMsg struct {
	jetstream.Msg
	headers nats.Header
}

func (m stubMsg) Headers() nats.Header { return m.headers }

func (m stubMsg) Metadata() (*jetstream.MsgMetadata, error) {
	return nil, errors.New("no metadata")
}
