package uistate

import (
	"context"
	"strings"
	"sync"
	"time"

	apperrors "faultline-go/internal/errors"
	"faultline-go/internal/events"
	"faultline-go/internal/storage"
	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
)

// DefaultTheme is used until a persisted theme is loaded.
const DefaultTheme = "light"

// Options configures a Store.
type Options struct {
	// Backend is read by Load and the token helpers. When Persister is nil
	// writes go to Backend as well; with neither, state stays in memory.
	Backend   storage.Backend
	Persister Persister
	Events    events.Publisher
	// BackOff builds the retry policy of one persistence write.
	BackOff func() backoff.BackOff
	Now     func() time.Time
}

// Store is the UI state container. Every action updates the visible state
// synchronously; persistence follows in the background.
type Store struct {
	sidebar       *Slot[Sidebar]
	theme         *Slot[string]
	notifications *Slot[[]Notification]

	mu     sync.RWMutex
	online bool
	health *SystemHealth

	subMu  sync.RWMutex
	subs   map[int]func(State)
	subSeq int

	backend    storage.Backend
	persister  Persister
	events     events.Publisher
	newBackOff func() backoff.BackOff
	now        func() time.Time
	locks      keyLocks
	wg         sync.WaitGroup
	ctx        context.Context
	cancel     context.CancelFunc
}

// New returns a store with default state: sidebar open, online, light theme.
func New(opts Options) *Store {
	if opts.Persister == nil && opts.Backend != nil {
		opts.Persister = BackendPersister(opts.Backend)
	}
	if opts.BackOff == nil {
		opts.BackOff = defaultBackOff
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Store{
		sidebar:       NewSlot(Sidebar{IsOpen: true}, nil),
		theme:         NewSlot(DefaultTheme, nil),
		notifications: NewSlot([]Notification{}, cloneNotifications),
		online:        true,
		subs:          make(map[int]func(State)),
		backend:       opts.Backend,
		persister:     opts.Persister,
		events:        opts.Events,
		newBackOff:    opts.BackOff,
		now:           opts.Now,
		ctx:           ctx,
		cancel:        cancel,
	}
}

// Load replaces the committed state with what the backend holds. Missing
// keys keep their defaults.
func (s *Store) Load(ctx context.Context) error {
	if s.backend == nil {
		return nil
	}
	var sidebar Sidebar
	switch err := storage.GetJSON(ctx, s.backend, KeySidebar, &sidebar); {
	case err == nil:
		s.sidebar.Reset(sidebar)
	case !storage.IsNotFound(err):
		return err
	}
	var theme string
	switch err := storage.GetJSON(ctx, s.backend, KeyTheme, &theme); {
	case err == nil:
		if theme = strings.TrimSpace(theme); theme != "" {
			s.theme.Reset(theme)
		}
	case !storage.IsNotFound(err):
		return err
	}
	var list []Notification
	switch err := storage.GetJSON(ctx, s.backend, KeyNotifications, &list); {
	case err == nil:
		if len(list) > NotificationLimit {
			list = list[:NotificationLimit]
		}
		s.notifications.Reset(cloneNotifications(list))
	case !storage.IsNotFound(err):
		return err
	}
	s.broadcast()
	return nil
}

// Snapshot returns a copy of the visible state.
func (s *Store) Snapshot() State {
	s.mu.RLock()
	online := s.online
	var health *SystemHealth
	if s.health != nil {
		h := *s.health
		health = &h
	}
	s.mu.RUnlock()
	return State{
		Sidebar:       s.sidebar.Visible(),
		Notifications: s.notifications.Visible(),
		SystemHealth:  health,
		IsOnline:      online,
		Theme:         s.theme.Visible(),
	}
}

// Subscribe registers fn for visible-state changes and returns its cancel func.
func (s *Store) Subscribe(fn func(State)) func() {
	s.subMu.Lock()
	defer s.subMu.Unlock()
	s.subSeq++
	id := s.subSeq
	s.subs[id] = fn
	var once sync.Once
	return func() {
		once.Do(func() {
			s.subMu.Lock()
			delete(s.subs, id)
			s.subMu.Unlock()
		})
	}
}

func (s *Store) broadcast() {
	s.subMu.RLock()
	fns := make([]func(State), 0, len(s.subs))
	for _, fn := range s.subs {
		fns = append(fns, fn)
	}
	s.subMu.RUnlock()
	if len(fns) == 0 {
		return
	}
	state := s.Snapshot()
	for _, fn := range fns {
		fn(state)
	}
}

// ToggleSidebar flips the sidebar open state.
func (s *Store) ToggleSidebar() {
	s.applySidebar(SidebarAction{Kind: ActionToggle})
}

// SetSidebarCollapsed sets the collapsed flag.
func (s *Store) SetSidebarCollapsed(collapsed bool) {
	s.applySidebar(SidebarAction{Kind: ActionCollapse, Collapsed: collapsed})
}

func (s *Store) applySidebar(a SidebarAction) {
	version, value := s.sidebar.Apply(func(cur Sidebar) Sidebar { return ReduceSidebar(cur, a) })
	s.broadcast()
	persistSlot(s, KeySidebar, s.sidebar, version, value)
}

// AddNotification prepends n with a fresh id and timestamp and returns it.
func (s *Store) AddNotification(n Notification) Notification {
	n.ID = uuid.NewString()
	n.Timestamp = s.now()
	n.IsRead = false
	if n.Type == "" {
		n.Type = NotificationInfo
	}
	s.applyNotifications(NotificationAction{Kind: ActionAdd, Notification: n})
	if s.events != nil {
		s.events.Publish(context.Background(), events.TopicNotificationAdded, n, map[string]string{"type": string(n.Type)})
	}
	return n
}

// RemoveNotification drops the notification with id.
func (s *Store) RemoveNotification(id string) {
	s.applyNotifications(NotificationAction{Kind: ActionRemove, ID: id})
}

// MarkNotificationAsRead flags the notification with id as read.
func (s *Store) MarkNotificationAsRead(id string) {
	s.applyNotifications(NotificationAction{Kind: ActionRead, ID: id})
}

// ClearNotifications empties the list.
func (s *Store) ClearNotifications() {
	s.applyNotifications(NotificationAction{Kind: ActionClear})
}

func (s *Store) applyNotifications(a NotificationAction) {
	version, value := s.notifications.Apply(func(cur []Notification) []Notification {
		return ReduceNotifications(cur, a)
	})
	s.broadcast()
	persistSlot(s, KeyNotifications, s.notifications, version, value)
}

// SetTheme sets the theme name.
func (s *Store) SetTheme(theme string) {
	version, value := s.theme.Apply(func(string) string { return theme })
	s.broadcast()
	persistSlot(s, KeyTheme, s.theme, version, value)
}

// SetOnline records connectivity. It is not persisted.
func (s *Store) SetOnline(online bool) {
	s.mu.Lock()
	changed := s.online != online
	s.online = online
	s.mu.Unlock()
	if changed {
		log.WithField("online", online).Info("connectivity changed")
	}
	s.broadcast()
}

// SetSystemHealth records the latest health check. It is not persisted.
func (s *Store) SetSystemHealth(h SystemHealth) {
	s.mu.Lock()
	s.health = &h
	s.mu.Unlock()
	s.broadcast()
}

// WatchConnectivity applies connectivity events as they arrive and returns
// a func that stops watching.
func (s *Store) WatchConnectivity(sub events.Subscriber) func() {
	offOnline := sub.Subscribe(events.TopicConnectivityOnline, func(context.Context, events.Event) {
		s.SetOnline(true)
	})
	offOffline := sub.Subscribe(events.TopicConnectivityOffline, func(context.Context, events.Event) {
		s.SetOnline(false)
	})
	return func() {
		offOnline()
		offOffline()
	}
}

// Notify turns a reported error into a notification.
func (s *Store) Notify(_ context.Context, rec *apperrors.ErrorRecord, severity apperrors.Severity) {
	if rec == nil {
		return
	}
	title := rec.Title
	if title == "" {
		title = "Error"
	}
	message := rec.UserMessage
	if message == "" {
		message = rec.Message
	}
	if hint := rec.RetryHint(); hint != "" && rec.Category == apperrors.CategoryRateLimit {
		message += " " + hint
	}
	s.AddNotification(Notification{
		Type:    notificationType(severity),
		Title:   title,
		Message: message,
	})
}

func notificationType(severity apperrors.Severity) NotificationType {
	switch severity {
	case apperrors.SeverityCritical, apperrors.SeverityHigh:
		return NotificationError
	case apperrors.SeverityMedium:
		return NotificationWarning
	default:
		return NotificationInfo
	}
}

// Token returns the stored auth token, or "" when none is set.
func (s *Store) Token(ctx context.Context) (string, error) {
	if s.backend == nil {
		return "", nil
	}
	var token string
	if err := storage.GetJSON(ctx, s.backend, KeyToken, &token); err != nil {
		if storage.IsNotFound(err) {
			return "", nil
		}
		return "", err
	}
	return token, nil
}

// SetToken stores the auth token synchronously.
func (s *Store) SetToken(ctx context.Context, token string) error {
	if s.backend == nil {
		return nil
	}
	return storage.SetJSON(ctx, s.backend, KeyToken, token)
}

// ClearToken removes the auth token.
func (s *Store) ClearToken(ctx context.Context) error {
	if s.backend == nil {
		return nil
	}
	return storage.DeleteIfExists(ctx, s.backend, KeyToken)
}

// WaitIdle blocks until in-flight persistence settles.
func (s *Store) WaitIdle() {
	s.wg.Wait()
}

// Close stops retrying pending writes and waits for them to settle.
func (s *Store) Close() {
	s.cancel()
	s.wg.Wait()
}
