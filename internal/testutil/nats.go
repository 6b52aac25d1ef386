// Package testutil runs an in-process NATS JetStream server for event tests.
package testutil

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/nats-io/nats-server/v2/server"
	"github.com/nats-io/nats.go"
	"github.com/stretchr/testify/require"

	"github.com/t77yq/nitrite-automation/internal/model"
)

// StartJetStream starts a JetStream-enabled server on a free loopback port,
// storing its data under t.TempDir(). The returned func closes the client
// connection and shuts the server down.
func StartJetStream(t *testing.T) (*server.Server, nats.JetStreamContext, func()) {
	t.Helper()

	s, err := server.NewServer(&server.Options{
		Host:      "127.0.0.1",
		Port:      -1,
		NoLog:     true,
		NoSigs:    true,
		JetStream: true,
		StoreDir:  t.TempDir(),
	})
	require.NoError(t, err)

	go s.Start()
	if !s.ReadyForConnections(10 * time.Second) {
		s.Shutdown()
		t.Fatal("embedded nats server did not become ready")
	}

	nc, err := nats.Connect(s.ClientURL(), nats.Timeout(5*time.Second))
	require.NoError(t, err)

	js, err := nc.JetStream(nats.MaxWait(5 * time.Second))
	require.NoError(t, err)

	return s, js, func() {
		nc.Close()
		s.Shutdown()
		s.WaitForShutdown()
	}
}

// WaitForStream polls until the named stream exists
func WaitForStream(t *testing.T, js nats.JetStreamContext, name string, timeout time.Duration) error {
	t.Helper()

	deadline := time.Now().Add(timeout)
	for {
		_, err := js.StreamInfo(name)
		if err == nil {
			return nil
		}
		if !errors.Is(err, nats.ErrStreamNotFound) {
			return err
		}
		if time.Now().After(deadline) {
			return err
		}
		time.Sleep(50 * time.Millisecond)
	}
}

// CollectEvents replays the events stored on subject and keeps collecting
// until want events arrived or timeout elapsed
func CollectEvents(t *testing.T, js nats.JetStreamContext, subject string, want int, timeout time.Duration) []model.Event {
	t.Helper()

	ch := make(chan *nats.Msg, 64)
	sub, err := js.ChanSubscribe(subject, ch, nats.DeliverAll())
	require.NoError(t, err)
	defer sub.Unsubscribe()

	var events []model.Event
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	for len(events) < want {
		select {
		case msg := <-ch:
			var e model.Event
			require.NoError(t, json.Unmarshal(msg.Data, &e), "decode %s", msg.Subject)
			events = append(events, e)
		case <-timer.C:
			return events
		}
	}
	return events
}
