package client

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"pulse-backend/internal/models"
)

// scriptedSend records forwarded events and can be told to start failing.
type scriptedSend struct {
	sent []models.ClientEvent
	fail bool
}

func (s *scriptedSend) send(ev models.ClientEvent) error {
	if s.fail {
		return errors.New("transport down")
	}
	s.sent = append(s.sent, ev)
	return nil
}

func joinEv(channelID string) models.ClientEvent {
	return models.ClientEvent{Event: models.EvChannelJoin, ChannelID: channelID}
}

func sendEv(channelID, content string) models.ClientEvent {
	return models.ClientEvent{Event: models.EvMessageSend, ChannelID: channelID, Content: content}
}

func TestSessionLifecycle(t *testing.T) {
	t.Run("join then ack reaches joined", func(t *testing.T) {
		tr := &scriptedSend{}
		s := NewSession(tr.send)

		require.NoError(t, s.Join("channel:c1", joinEv("c1")))
		require.Equal(t, Joining, s.State("channel:c1"))
		require.Len(t, tr.sent, 1)

		require.NoError(t, s.Ack("channel:c1"))
		require.Equal(t, Joined, s.State("channel:c1"))
	})

	t.Run("send to unknown room fails", func(t *testing.T) {
		s := NewSession((&scriptedSend{}).send)
		require.ErrorIs(t, s.Send("channel:c1", sendEv("c1", "x")), ErrNotJoined)
		require.ErrorIs(t, s.Ack("channel:c1"), ErrNotJoined)
	})

	t.Run("send while joined forwards immediately", func(t *testing.T) {
		tr := &scriptedSend{}
		s := NewSession(tr.send)
		require.NoError(t, s.Join("channel:c1", joinEv("c1")))
		require.NoError(t, s.Ack("channel:c1"))

		require.NoError(t, s.Send("channel:c1", sendEv("c1", "hello")))
		require.Len(t, tr.sent, 2)
		require.Equal(t, "hello", tr.sent[1].Content)
	})

	t.Run("leave resets to idle and drops the queue", func(t *testing.T) {
		tr := &scriptedSend{}
		s := NewSession(tr.send)
		require.NoError(t, s.Join("channel:c1", joinEv("c1")))
		s.TransportLost()
		require.NoError(t, s.Send("channel:c1", sendEv("c1", "queued")))
		require.Equal(t, 1, s.Pending("channel:c1"))

		s.Leave("channel:c1")
		require.Equal(t, Idle, s.State("channel:c1"))
		require.Zero(t, s.Pending("channel:c1"))
	})
}

func TestSessionReconnect(t *testing.T) {
	t.Run("sends queued while disconnected flush in order after rejoin ack", func(t *testing.T) {
		tr := &scriptedSend{}
		s := NewSession(tr.send)
		require.NoError(t, s.Join("channel:c1", joinEv("c1")))
		require.NoError(t, s.Ack("channel:c1"))

		s.TransportLost()
		require.Equal(t, Disconnected, s.State("channel:c1"))

		require.NoError(t, s.Send("channel:c1", sendEv("c1", "a")))
		require.NoError(t, s.Send("channel:c1", sendEv("c1", "b")))
		require.Equal(t, 2, s.Pending("channel:c1"))

		tr.sent = nil
		s.Reconnect()
		require.Equal(t, Rejoining, s.State("channel:c1"))
		require.Len(t, tr.sent, 1) // join replay only, queue holds for the ack
		require.Equal(t, models.EvChannelJoin, tr.sent[0].Event)

		require.NoError(t, s.Ack("channel:c1"))
		require.Equal(t, Joined, s.State("channel:c1"))
		require.Zero(t, s.Pending("channel:c1"))

		require.Len(t, tr.sent, 3)
		require.Equal(t, "a", tr.sent[1].Content)
		require.Equal(t, "b", tr.sent[2].Content)
	})

	t.Run("send failure while joined re-queues and marks disconnected", func(t *testing.T) {
		tr := &scriptedSend{}
		s := NewSession(tr.send)
		require.NoError(t, s.Join("channel:c1", joinEv("c1")))
		require.NoError(t, s.Ack("channel:c1"))

		tr.fail = true
		require.NoError(t, s.Send("channel:c1", sendEv("c1", "kept")))
		require.Equal(t, Disconnected, s.State("channel:c1"))
		require.Equal(t, 1, s.Pending("channel:c1"))

		tr.fail = false
		s.Reconnect()
		require.NoError(t, s.Ack("channel:c1"))
		require.Zero(t, s.Pending("channel:c1"))
		require.Equal(t, "kept", tr.sent[len(tr.sent)-1].Content)
	})

	t.Run("transport failure mid-flush keeps the remainder queued", func(t *testing.T) {
		tr := &scriptedSend{}
		s := NewSession(tr.send)
		require.NoError(t, s.Join("channel:c1", joinEv("c1")))
		require.NoError(t, s.Ack("channel:c1"))

		s.TransportLost()
		require.NoError(t, s.Send("channel:c1", sendEv("c1", "a")))
		require.NoError(t, s.Send("channel:c1", sendEv("c1", "b")))

		s.Reconnect()
		tr.fail = true
		require.Error(t, s.Ack("channel:c1"))
		require.Equal(t, Disconnected, s.State("channel:c1"))
		require.Equal(t, 2, s.Pending("channel:c1"))
	})

	t.Run("only disconnected rooms replay their join", func(t *testing.T) {
		tr := &scriptedSend{}
		s := NewSession(tr.send)
		require.NoError(t, s.Join("channel:c1", joinEv("c1")))
		require.NoError(t, s.Ack("channel:c1"))
		s.TransportLost()
		require.NoError(t, s.Join("channel:c2", joinEv("c2")))

		tr.sent = nil
		s.Reconnect()
		require.Len(t, tr.sent, 1)
		require.Equal(t, "c1", tr.sent[0].ChannelID)
	})
}

func TestRoomStateString(t *testing.T) {
	require.Equal(t, "idle", Idle.String())
	require.Equal(t, "joined", Joined.String())
	require.Equal(t, "rejoining", Rejoining.String())
	require.Equal(t, "unknown", RoomState(99).String())
}
