package store

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sudooom.social.client/internal/model"
)

func TestState_CountersClampAtZero(t *testing.T) {
	s := New()

	s.AddUnreadMessages(2)
	s.AddUnreadMessages(-5)
	assert.Equal(t, 0, s.UnreadMessages())

	s.SetUnreadNotifications(-3)
	assert.Equal(t, 0, s.UnreadNotifications())

	s.AddUnreadNotifications(4)
	s.AddUnreadNotifications(-1)
	assert.Equal(t, 3, s.UnreadNotifications())

	s.IncrementUnreadMessages(1)
	assert.Equal(t, 1, s.UnreadMessages())
}

func TestState_ClearUserKeepsCounters(t *testing.T) {
	s := New()
	s.SetUser(model.User{ID: "u1", Username: "ada"})
	s.SetUnreadMessages(3)
	s.SetUnreadNotifications(2)

	s.ClearUser()

	assert.Nil(t, s.User())
	assert.Equal(t, Counters{UnreadMessages: 3, UnreadNotifications: 2}, s.Counters())
}

func TestState_ReturnsCopies(t *testing.T) {
	s := New()
	s.SetUser(model.User{ID: "u1", Username: "ada"})

	u := s.User()
	u.Username = "mallory"

	assert.Equal(t, "ada", s.User().Username)
}

func TestState_SnapshotExcludesCounters(t *testing.T) {
	s := New()
	s.SetUser(model.User{ID: "u1"})
	s.SetRecipient(model.User{ID: "u2"})
	s.SetUnreadMessages(9)

	snap := s.Snapshot()
	require.NotNil(t, snap.User)
	require.NotNil(t, snap.Recipient)

	restored := New()
	restored.SetUnreadMessages(1)
	restored.Restore(snap)

	assert.Equal(t, "u1", restored.User().ID)
	assert.Equal(t, "u2", restored.Recipient().ID)
	assert.Equal(t, 1, restored.UnreadMessages(), "restore never touches counters")
}

func TestState_Recipient(t *testing.T) {
	s := New()
	assert.Nil(t, s.Recipient())

	s.SetRecipient(model.User{ID: "u9"})
	assert.Equal(t, "u9", s.Recipient().ID)

	s.ClearRecipient()
	assert.Nil(t, s.Recipient())
}

func TestState_Watch(t *testing.T) {
	s := New()

	var views []View
	cancel := s.Watch(func(v View) { views = append(views, v) })

	s.AddUnreadMessages(1)
	s.SetUser(model.User{ID: "u1"})
	cancel()
	s.AddUnreadMessages(1)

	require.Len(t, views, 2)
	assert.Equal(t, 1, views[0].UnreadMessages)
	assert.Equal(t, "u1", views[1].User.ID)
}

func TestState_WatcherMayReadState(t *testing.T) {
	s := New()
	var seen int
	s.Watch(func(View) { seen = s.UnreadMessages() })

	s.AddUnreadMessages(2)
	assert.Equal(t, 2, seen)
}
