package messaging

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/darb-academy/lifecycle-worker/internal/domain/notification"
	"github.com/darb-academy/lifecycle-worker/pkg/logger"
)

type stubSender struct {
	mu   sync.Mutex
	sent []notification.Message
	fn   func(msg notification.Message) error
}

func (s *stubSender) Send(_ context.Context, msg notification.Message) error {
	if s.fn != nil {
		if err := s.fn(msg); err != nil {
			return err
		}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sent = append(s.sent, msg)
	return nil
}

func (s *stubSender) students() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	ids := make([]string, 0, len(s.sent))
	for _, m := range s.sent {
		ids = append(ids, m.StudentID)
	}
	return ids
}

func newTestDispatcher(sender notification.Sender) *Dispatcher {
	cfg := DefaultDispatcherConfig(sender)
	cfg.Logger = logger.Discard()
	cfg.Timeout = time.Second
	return NewDispatcher(cfg)
}

func TestDispatcher_DeliversAll(t *testing.T) {
	sender := &stubSender{}
	d := newTestDispatcher(sender)

	for _, id := range []string{"s1", "s2", "s3"} {
		d.Notify(notification.Absence(id, "2024-01-01"))
	}
	d.Wait()

	assert.ElementsMatch(t, []string{"s1", "s2", "s3"}, sender.students())
	assert.Equal(t, DispatcherStats{Sent: 3}, d.Stats())
}

func TestDispatcher_FailureIsIsolated(t *testing.T) {
	sender := &stubSender{fn: func(msg notification.Message) error {
		switch msg.StudentID {
		case "bad":
			return errors.New("device token expired")
		case "panic":
			panic("nil token")
		}
		return nil
	}}
	d := newTestDispatcher(sender)

	for _, id := range []string{"a", "bad", "panic", "b"} {
		d.Notify(notification.Absence(id, "2024-01-01"))
	}
	d.Wait()

	assert.ElementsMatch(t, []string{"a", "b"}, sender.students())
	assert.Equal(t, DispatcherStats{Sent: 2, Failed: 2}, d.Stats())
}

func TestDispatcher_NotifyDoesNotBlock(t *testing.T) {
	release := make(chan struct{})
	sender := &stubSender{fn: func(notification.Message) error {
		<-release
		return nil
	}}
	d := newTestDispatcher(sender)

	start := time.Now()
	d.Notify(notification.Promotion("s1", "g1", "Main"))
	assert.Less(t, time.Since(start), 100*time.Millisecond)

	close(release)
	d.Wait()
	assert.Equal(t, int64(1), d.Stats().Sent)
}

func TestDispatcher_CloseTimesOut(t *testing.T) {
	sender := &stubSender{fn: func(notification.Message) error {
		time.Sleep(200 * time.Millisecond)
		return nil
	}}
	d := newTestDispatcher(sender)
	d.Notify(notification.Absence("s1", "2024-01-01"))

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	err := d.Close(ctx)
	require.Error(t, err)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestLogSender_NeverFails(t *testing.T) {
	s := NewLogSender(logger.Discard())
	assert.NoError(t, s.Send(context.Background(), notification.Demotion("s1", "reason")))
}
