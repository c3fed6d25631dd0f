package notify

import (
	"context"

	"github.com/ApparyllisOrg/SimplyPluralApi-sub000/logger"
	"go.uber.org/zap"
)

// Notifier is the logical "who should be notified" boundary. Actual
// delivery to offline devices lives outside this core; the realtime
// dispatcher and a push pipeline both satisfy this.
type Notifier interface {
	PushNotification(ctx context.Context, uid, title, message string) error
}

// LogNotifier is the default sink when no push pipeline is wired.
type LogNotifier struct{}

func (LogNotifier) PushNotification(ctx context.Context, uid, title, message string) error {
	logger.Info("notification",
		zap.String("uid", uid), zap.String("title", title), zap.String("message", message))
	return nil
}

// Multi fans a notification out to several sinks; the first error wins
// but every sink is attempted.
type Multi []Notifier

func (m Multi) PushNotification(ctx context.Context, uid, title, message string) error {
	var firstErr error
	for _, n := range m {
		if err := n.PushNotification(ctx, uid, title, message); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// ReminderEvaluator is the hook into the automated-reminder feature,
// keyed on whether the new fronter is a member or a custom front.
type ReminderEvaluator interface {
	OnFrontChange(ctx context.Context, uid string, removed bool, entityId string, isCustomFront bool) error
}

type NoopReminders struct{}

func (NoopReminders) OnFrontChange(ctx context.Context, uid string, removed bool, entityId string, isCustomFront bool) error {
	return nil
}
