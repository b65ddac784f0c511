package uistate

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReduceNotificationsAddCapsNewestFirst(t *testing.T) {
	list := []Notification{}
	for i := 0; i < 60; i++ {
		list = ReduceNotifications(list, NotificationAction{
			Kind:         ActionAdd,
			Notification: Notification{ID: fmt.Sprintf("n%d", i)},
		})
	}
	require.Len(t, list, NotificationLimit)
	assert.Equal(t, "n59", list[0].ID)
	assert.Equal(t, "n10", list[len(list)-1].ID)
}

func TestReduceNotificationsDoesNotMutateInput(t *testing.T) {
	in := []Notification{{ID: "a"}, {ID: "b"}}
	out := ReduceNotifications(in, NotificationAction{Kind: ActionRead, ID: "a"})
	assert.False(t, in[0].IsRead)
	assert.True(t, out[0].IsRead)
	assert.False(t, out[1].IsRead)

	out = ReduceNotifications(in, NotificationAction{Kind: ActionRemove, ID: "a"})
	require.Len(t, out, 1)
	assert.Equal(t, "b", out[0].ID)
	assert.Len(t, in, 2)
}

func TestReduceNotificationsClearAndUnknown(t *testing.T) {
	in := []Notification{{ID: "a"}}
	assert.Empty(t, ReduceNotifications(in, NotificationAction{Kind: ActionClear}))
	assert.NotNil(t, ReduceNotifications(in, NotificationAction{Kind: ActionClear}))
	assert.Equal(t, in, ReduceNotifications(in, NotificationAction{Kind: "bogus"}))
	assert.Empty(t, ReduceNotifications(in, NotificationAction{Kind: ActionRemove, ID: "a"}))
}

func TestReduceSidebar(t *testing.T) {
	s := Sidebar{IsOpen: true}
	s = ReduceSidebar(s, SidebarAction{Kind: ActionToggle})
	assert.False(t, s.IsOpen)
	s = ReduceSidebar(s, SidebarAction{Kind: ActionCollapse, Collapsed: true})
	assert.True(t, s.IsCollapsed)
	assert.False(t, s.IsOpen)
}
