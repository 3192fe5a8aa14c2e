package mqtt

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"testing/synctest"
	"time"

	"github.com/stretchr/testify/require"

	domain "github.com/oshokin/alarm-silencer/internal/domain/alarm"
)

// message is a recorded publication.
type message struct {
	topic   string
	payload map[string]any
	qos     byte
}

// fakePublisher records publications and optionally fails them.
type fakePublisher struct {
	mu       sync.Mutex
	messages []message
	err      error
}

// Publish implements Publisher.
func (p *fakePublisher) Publish(topic string, qos byte, payload []byte) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.err != nil {
		return p.err
	}

	var decoded map[string]any
	if err := json.Unmarshal(payload, &decoded); err != nil {
		return err
	}

	p.messages = append(p.messages, message{topic: topic, payload: decoded, qos: qos})

	return nil
}

// published returns a copy of the recorded messages.
func (p *fakePublisher) published() []message {
	p.mu.Lock()
	defer p.mu.Unlock()

	return append([]message(nil), p.messages...)
}

// TestMirror_PublishesEvents sends kind topics and the plain face feed.
func TestMirror_PublishesEvents(t *testing.T) {
	t.Parallel()

	synctest.Test(t, func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		publisher := &fakePublisher{}
		mirror := NewMirror(publisher, Options{
			Topic: "iot_alarm/face_detection",
			QoS:   1,
			Host:  &domain.Actor{Hostname: "desk", Username: "o.shokin"},
		})

		go mirror.Run(ctx)

		at := time.Date(2026, 5, 1, 7, 0, 0, 500000000, time.UTC)

		mirror.Observe(ctx, domain.Event{At: at, Kind: domain.EventAlarm, CycleID: "c1", Active: true})
		mirror.Observe(ctx, domain.Event{At: at, Kind: domain.EventFace, CycleID: "c1", Active: true})
		synctest.Wait()

		got := publisher.published()
		require.Len(t, got, 3)

		require.Equal(t, "iot_alarm/face_detection/alarm", got[0].topic)
		require.Equal(t, byte(1), got[0].qos)
		require.Equal(t, "alarm", got[0].payload["kind"])
		require.Equal(t, true, got[0].payload["active"])
		require.Equal(t, "c1", got[0].payload["cycle_id"])
		require.Equal(t, "o.shokin@desk", got[0].payload["host"])

		require.Equal(t, "iot_alarm/face_detection/face", got[1].topic)

		require.Equal(t, "iot_alarm/face_detection", got[2].topic)
		require.Equal(t, true, got[2].payload["face_detected"])
		require.InDelta(t, float64(at.Unix())+0.5, got[2].payload["timestamp"], 1e-3)
	})
}

// TestMirror_FailuresAreAbsorbed keeps running when the broker rejects messages.
func TestMirror_FailuresAreAbsorbed(t *testing.T) {
	t.Parallel()

	synctest.Test(t, func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())

		publisher := &fakePublisher{err: errors.New("not connected")}
		mirror := NewMirror(publisher, Options{Topic: "t"})

		done := make(chan struct{})

		go func() {
			mirror.Run(ctx)
			close(done)
		}()

		mirror.Observe(ctx, domain.Event{Kind: domain.EventCamera})
		synctest.Wait()

		publisher.mu.Lock()
		publisher.err = nil
		publisher.mu.Unlock()

		mirror.Observe(ctx, domain.Event{Kind: domain.EventAudio, Active: true})
		synctest.Wait()

		cancel()
		<-done

		got := publisher.published()
		require.Len(t, got, 1)
		require.Equal(t, "t/audio", got[0].topic)
	})
}

// TestMirror_ObserveNeverBlocks drops events once the queue is full.
func TestMirror_ObserveNeverBlocks(t *testing.T) {
	t.Parallel()

	mirror := NewMirror(&fakePublisher{}, Options{Topic: "t"})

	for range queueSize + 10 {
		mirror.Observe(context.Background(), domain.Event{Kind: domain.EventFace})
	}

	require.Len(t, mirror.queue, queueSize)
}

// TestMirror_FlushesOnCancel publishes queued events before Run returns.
func TestMirror_FlushesOnCancel(t *testing.T) {
	t.Parallel()

	publisher := &fakePublisher{}
	mirror := NewMirror(publisher, Options{Topic: "t"})

	mirror.Observe(context.Background(), domain.Event{Kind: domain.EventAlarm})
	mirror.Observe(context.Background(), domain.Event{Kind: domain.EventAudio})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	mirror.Run(ctx)

	require.Len(t, publisher.published(), 2)
}
