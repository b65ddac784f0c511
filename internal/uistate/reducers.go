package uistate

import "faultline-go/internal/constants"

// ActionKind names a reducer action.
type ActionKind string

const (
	ActionAdd      ActionKind = "add"
	ActionRemove   ActionKind = "remove"
	ActionRead     ActionKind = "read"
	ActionClear    ActionKind = "clear"
	ActionToggle   ActionKind = "toggle"
	ActionCollapse ActionKind = "collapse"
)

// NotificationLimit caps the notification list.
const NotificationLimit = constants.NotificationCapacity

// NotificationAction is applied by ReduceNotifications.
type NotificationAction struct {
	Kind         ActionKind
	Notification Notification
	ID           string
}

// ReduceNotifications returns the list after a. The input is not modified.
// add prepends and keeps the newest NotificationLimit entries, remove filters
// by id, read marks the matching id as read, clear empties the list.
func ReduceNotifications(list []Notification, a NotificationAction) []Notification {
	switch a.Kind {
	case ActionAdd:
		n := len(list) + 1
		if n > NotificationLimit {
			n = NotificationLimit
		}
		out := make([]Notification, 0, n)
		out = append(out, a.Notification)
		return append(out, list[:n-1]...)
	case ActionRemove:
		out := make([]Notification, 0, len(list))
		for _, item := range list {
			if item.ID != a.ID {
				out = append(out, item)
			}
		}
		return out
	case ActionRead:
		out := make([]Notification, len(list))
		for i, item := range list {
			if item.ID == a.ID {
				item.IsRead = true
			}
			out[i] = item
		}
		return out
	case ActionClear:
		return []Notification{}
	}
	return cloneNotifications(list)
}

// SidebarAction is applied by ReduceSidebar.
type SidebarAction struct {
	Kind      ActionKind
	Collapsed bool
}

// ReduceSidebar returns the sidebar after a.
func ReduceSidebar(s Sidebar, a SidebarAction) Sidebar {
	switch a.Kind {
	case ActionToggle:
		s.IsOpen = !s.IsOpen
	case ActionCollapse:
		s.IsCollapsed = a.Collapsed
	}
	return s
}

func cloneNotifications(list []Notification) []Notification {
	if list == nil {
		return []Notification{}
	}
	return append([]Notification(nil), list...)
}
