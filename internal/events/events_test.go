package events

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"saffy-workflow/internal/domain"
)

func sampleEvent() Event {
	return Event{
		Type:       AlertRaised,
		EntityType: "alert",
		EntityID:   "a-1",
		Status:     "active",
		Version:    1,
		ActorID:    "sensor-7",
		Severity:   "high",
		OccurredAt: time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC),
	}
}

func TestStreamPublisher_XAdd(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()

	p := NewStreamPublisher(client, "")
	assert.Equal(t, DefaultStream, p.Stream())
	require.NoError(t, p.Publish(context.Background(), sampleEvent()))

	msgs, err := client.XRange(context.Background(), DefaultStream, "-", "+").Result()
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	assert.Equal(t, "alert.raised", msgs[0].Values["type"])
	assert.Equal(t, "a-1", msgs[0].Values["entity_id"])

	var decoded Event
	require.NoError(t, json.Unmarshal([]byte(msgs[0].Values["data"].(string)), &decoded))
	assert.Equal(t, sampleEvent(), decoded)
}

type fakeTransport struct {
	topics   []string
	payloads [][]byte
	err      error
}

func (f *fakeTransport) Publish(topic string, _ byte, _ bool, payload []byte) error {
	if f.err != nil {
		return f.err
	}
	f.topics = append(f.topics, topic)
	f.payloads = append(f.payloads, payload)
	return nil
}

func TestMQTTPublisher_Topic(t *testing.T) {
	tr := &fakeTransport{}
	p := NewMQTTPublisher(tr, "site-a/", 1)

	require.NoError(t, p.Publish(context.Background(), sampleEvent()))
	require.Len(t, tr.topics, 1)
	assert.Equal(t, "site-a/alert/raised", tr.topics[0])

	e := sampleEvent()
	e.Type = PermitStageDecided
	e.EntityType = "permit"
	assert.Equal(t, "site-a/permit/stage_decided", p.Topic(e))
}

func TestMulti_ContinuesAfterFailure(t *testing.T) {
	failing := &fakeTransport{err: errors.New("broker down")}
	rec := &Recorder{}
	m := Multi{NewMQTTPublisher(failing, "", 0), nil, rec}

	err := m.Publish(context.Background(), sampleEvent())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "broker down")
	assert.Equal(t, []string{AlertRaised}, rec.Types())
}

func TestWebhookNotifier_SeverityFilter(t *testing.T) {
	var hits int32
	var last Event
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		body, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(body, &last)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	n := NewWebhookNotifier(srv.URL, domain.SeverityHigh, zap.NewNop())
	ctx := context.Background()

	low := sampleEvent()
	low.Severity = "medium"
	require.NoError(t, n.Publish(ctx, low))

	permitEvent := sampleEvent()
	permitEvent.EntityType = "permit"
	require.NoError(t, n.Publish(ctx, permitEvent))
	assert.Equal(t, int32(0), atomic.LoadInt32(&hits))

	require.NoError(t, n.Publish(ctx, sampleEvent()))
	assert.Equal(t, int32(1), atomic.LoadInt32(&hits))
	assert.Equal(t, "a-1", last.EntityID)
}

func TestWebhookNotifier_ErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer srv.Close()

	n := NewWebhookNotifier(srv.URL, "", zap.NewNop())
	err := n.Publish(context.Background(), sampleEvent())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "400")
}
