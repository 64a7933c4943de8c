// Package notify tells the user when a session finishes.
package notify

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/gregdel/pushover"
	"go.uber.org/zap"
	"gopkg.in/ini.v1"

	rip_stream "github.com/alanbriolat/rip-stream"
	"github.com/alanbriolat/rip-stream/internal/pubsub"
)

const Title = "Rip-Stream Finished"

var ErrNoCredentials = errors.New("pushover credentials not configured")

// Notification is one message for the user.
type Notification struct {
	Title    string
	Message  string
	Priority int
}

// Notifier delivers notifications. Implementations decide the transport.
type Notifier interface {
	Notify(ctx context.Context, n Notification) error
}

// FromEvent builds the notification for a finished session.
func FromEvent(e rip_stream.SessionFinished, priority int) Notification {
	n := Notification{Title: Title, Priority: priority}
	switch {
	case !e.Success:
		n.Message = fmt.Sprintf("'%s' failed: %v", e.Name, e.Err)
	case e.Incomplete:
		n.Message = fmt.Sprintf("'%s' finished transcoding, but some segments could not be downloaded.", e.Name)
	default:
		n.Message = fmt.Sprintf("'%s' finished transcoding.", e.Name)
	}
	return n
}

// Watch delivers a notification for every SessionFinished event until sub is closed. Delivery failures are logged.
func Watch(ctx context.Context, sub *pubsub.Subscription[rip_stream.Event], notifier Notifier, priority int) {
	log := rip_stream.Logger(ctx).Sugar().Named("notify")
	for event := range sub.Receive() {
		e, ok := event.(rip_stream.SessionFinished)
		if !ok {
			continue
		}
		if err := notifier.Notify(ctx, FromEvent(e, priority)); err != nil {
			log.Warnw("failed to send notification", "error", err)
		}
	}
}

// LogNotifier writes notifications to the log.
type LogNotifier struct {
	Logger *zap.Logger
}

func (n LogNotifier) Notify(_ context.Context, msg Notification) error {
	logger := n.Logger
	if logger == nil {
		logger = zap.L()
	}
	logger.Info(msg.Message, zap.String("title", msg.Title), zap.Int("priority", msg.Priority))
	return nil
}

// messageSender is the part of *pushover.Pushover used here.
type messageSender interface {
	SendMessage(message *pushover.Message, recipient *pushover.Recipient) (*pushover.Response, error)
}

// PushoverNotifier sends notifications with the Pushover API.
type PushoverNotifier struct {
	app       messageSender
	recipient *pushover.Recipient
}

func NewPushoverNotifier(creds PushoverCredentials) (*PushoverNotifier, error) {
	if creds.APIToken == "" || creds.UserKey == "" {
		return nil, ErrNoCredentials
	}
	return &PushoverNotifier{
		app:       pushover.New(creds.APIToken),
		recipient: pushover.NewRecipient(creds.UserKey),
	}, nil
}

func (n *PushoverNotifier) Notify(_ context.Context, msg Notification) error {
	if msg.Priority < pushover.PriorityLowest || msg.Priority > pushover.PriorityEmergency {
		return fmt.Errorf("invalid notification priority %d", msg.Priority)
	}
	message := pushover.NewMessageWithTitle(msg.Message, msg.Title)
	message.Priority = msg.Priority
	if msg.Priority == pushover.PriorityEmergency {
		// Emergency messages repeat until acknowledged, and the API requires both values
		message.Retry = time.Minute
		message.Expire = time.Hour
	}
	if _, err := n.app.SendMessage(message, n.recipient); err != nil {
		return fmt.Errorf("pushover: %w", err)
	}
	return nil
}

// PushoverCredentials are read from a ~/.pushoverrc style file:
//
//	[Default]
//	api_token=...
//	user_key=...
type PushoverCredentials struct {
	APIToken string
	UserKey  string
}

// DefaultPushoverConfigPath is ~/.pushoverrc.
func DefaultPushoverConfigPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".pushoverrc"
	}
	return filepath.Join(home, ".pushoverrc")
}

// LoadPushoverCredentials reads path, with PUSHOVER_API_TOKEN and PUSHOVER_USER_KEY taking precedence. A missing
// file is not an error if the environment provides both values.
func LoadPushoverCredentials(path string) (PushoverCredentials, error) {
	var creds PushoverCredentials
	cfg, err := ini.LoadSources(ini.LoadOptions{Loose: true}, path)
	if err != nil {
		return creds, fmt.Errorf("failed to read %s: %w", path, err)
	}
	section := cfg.Section("Default")
	creds.APIToken = section.Key("api_token").String()
	creds.UserKey = section.Key("user_key").String()
	if v := os.Getenv("PUSHOVER_API_TOKEN"); v != "" {
		creds.APIToken = v
	}
	if v := os.Getenv("PUSHOVER_USER_KEY"); v != "" {
		creds.UserKey = v
	}
	if creds.APIToken == "" || creds.UserKey == "" {
		return creds, ErrNoCredentials
	}
	return creds, nil
}
