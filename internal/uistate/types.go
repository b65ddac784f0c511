// Package uistate holds low-stakes, frequently toggled UI state (sidebar,
// notifications, theme, connectivity, system health) with optimistic updates
// that are persisted in the background.
package uistate

import "time"

// Storage keys of the persisted slots.
const (
	KeySidebar       = "ui:sidebar"
	KeyTheme         = "ui:theme"
	KeyNotifications = "ui:notifications"
	KeyToken         = "auth:token"
)

// Sidebar is the persisted sidebar layout.
type Sidebar struct {
	IsOpen      bool `json:"isOpen"`
	IsCollapsed bool `json:"isCollapsed"`
}

// NotificationType selects how a notification is rendered.
type NotificationType string

const (
	NotificationInfo    NotificationType = "info"
	NotificationSuccess NotificationType = "success"
	NotificationWarning NotificationType = "warning"
	NotificationError   NotificationType = "error"
)

// Notification is one entry of the newest-first notification list.
type Notification struct {
	ID        string           `json:"id"`
	Type      NotificationType `json:"type"`
	Title     string           `json:"title"`
	Message   string           `json:"message"`
	Timestamp time.Time        `json:"timestamp"`
	IsRead    bool             `json:"isRead"`
}

// HealthStatus is the state of the system or of one service.
type HealthStatus string

const (
	StatusHealthy  HealthStatus = "healthy"
	StatusDegraded HealthStatus = "degraded"
	StatusDown     HealthStatus = "down"
)

// Services holds per-service probe results.
type Services struct {
	Database HealthStatus `json:"database"`
	API      HealthStatus `json:"api"`
	Cache    HealthStatus `json:"cache"`
}

// SystemHealth is the last health check result.
type SystemHealth struct {
	Status    HealthStatus `json:"status"`
	LastCheck time.Time    `json:"lastCheck"`
	Services  Services     `json:"services"`
}

// State is the visible UI state.
type State struct {
	Sidebar       Sidebar        `json:"sidebar"`
	Notifications []Notification `json:"notifications"`
	SystemHealth  *SystemHealth  `json:"systemHealth,omitempty"`
	IsOnline      bool           `json:"isOnline"`
	Theme         string         `json:"theme"`
}

// UnreadCount returns the number of unread notifications.
func (s State) UnreadCount() int {
	n := 0
	for _, item := range s.Notifications {
		if !item.IsRead {
			n++
		}
	}
	return n
}
