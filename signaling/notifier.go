package signaling

import (
	"context"
	"fmt"
	"time"

	"github.com/gofiber/fiber/v2/log"
	"github.com/okemsocial/okem_social/models"
	"github.com/okemsocial/okem_social/websocket"
)

type NotificationStore interface {
	Create(ctx context.Context, n *models.Notification) error
}

// UserDirectory resolves display names for notification text.
type UserDirectory interface {
	GetByID(ctx context.Context, id uint) (*models.User, error)
}

type NotificationInput struct {
	UserID  uint    `json:"user_id" validate:"required"`
	Type    string  `json:"type" validate:"required,max=50"`
	Title   string  `json:"title" validate:"required,max=255"`
	Content string  `json:"content" validate:"max=2000"`
	URL     *string `json:"url" validate:"omitempty,max=500"`
}

// Notifier persists notifications and pushes them to the recipient's
// user-{id} group.
type Notifier struct {
	registry *websocket.Registry
	store    NotificationStore
	users    UserDirectory
	timeout  time.Duration
}

func NewNotifier(registry *websocket.Registry, store NotificationStore, users UserDirectory) *Notifier {
	return &Notifier{registry: registry, store: store, users: users, timeout: 5 * time.Second}
}

func (n *Notifier) Registry() *websocket.Registry {
	return n.registry
}

func (n *Notifier) Connect(c *websocket.Client) {
	n.registry.Join(c, websocket.UserGroup(c.UserID))
}

func (n *Notifier) Disconnect(c *websocket.Client) int {
	return n.registry.Unregister(c)
}

// Notify stores the notification, then pushes it to every live connection
// of the recipient. An offline recipient finds it on the next list call.
func (n *Notifier) Notify(ctx context.Context, in NotificationInput) (*models.Notification, error) {
	if err := validateStruct(in); err != nil {
		return nil, err
	}

	notification := &models.Notification{
		UserID:  in.UserID,
		Type:    in.Type,
		Title:   in.Title,
		Content: in.Content,
		URL:     in.URL,
	}
	if err := n.store.Create(ctx, notification); err != nil {
		return nil, fmt.Errorf("persist notification: %w", err)
	}

	n.registry.SendToGroup(websocket.UserGroup(in.UserID), websocket.Event{
		Type: EventNotificationReceived,
		Data: NewNotificationPayload(notification),
	})
	return notification, nil
}

// MissedCall has the signature of a CallManager missed-call hook.
func (n *Notifier) MissedCall(callerID, targetID uint, isVideo bool) {
	ctx, cancel := context.WithTimeout(context.Background(), n.timeout)
	defer cancel()

	kind := "voice"
	if isVideo {
		kind = "video"
	}
	caller := fmt.Sprintf("user #%d", callerID)
	if n.users != nil {
		if u, err := n.users.GetByID(ctx, callerID); err == nil && u.FullName != "" {
			caller = u.FullName
		}
	}

	_, err := n.Notify(ctx, NotificationInput{
		UserID:  targetID,
		Type:    models.NotificationMissedCall,
		Title:   "Missed call",
		Content: fmt.Sprintf("You missed a %s call from %s", kind, caller),
	})
	if err != nil {
		log.Errorf("missed call notification for user %d: %v", targetID, err)
	}
}
