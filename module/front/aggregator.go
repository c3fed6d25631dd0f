package front

import (
	"context"
	"strings"
	"time"

	"github.com/ApparyllisOrg/SimplyPluralApi-sub000/data/store"
	"github.com/ApparyllisOrg/SimplyPluralApi-sub000/logger"
	"github.com/ApparyllisOrg/SimplyPluralApi-sub000/module/friends"
	"github.com/ApparyllisOrg/SimplyPluralApi-sub000/module/notify"
	"github.com/ApparyllisOrg/SimplyPluralApi-sub000/module/privacy"
	"github.com/ApparyllisOrg/SimplyPluralApi-sub000/module/scheduler"
	"github.com/pkg/errors"
	"go.uber.org/zap"
	"golang.org/x/text/collate"
	"golang.org/x/text/language"
)

// Aggregator rebuilds the derived "who is fronting" projections on
// every front change and debounces friend notifications through the
// scheduler's upsert-by-key queue.
type Aggregator struct {
	store     store.Store
	graph     *friends.Graph
	sched     *scheduler.Scheduler
	notifier  notify.Notifier
	reminders notify.ReminderEvaluator
	collator  *collate.Collator
	clock     func() time.Time
	delay     time.Duration
}

type Option func(*Aggregator)

func WithClock(clock func() time.Time) Option {
	return func(a *Aggregator) { a.clock = clock }
}

// WithNotifDelay overrides the debounce window (default 10s).
func WithNotifDelay(d time.Duration) Option {
	return func(a *Aggregator) { a.delay = d }
}

func WithReminders(r notify.ReminderEvaluator) Option {
	return func(a *Aggregator) { a.reminders = r }
}

func NewAggregator(st store.Store, graph *friends.Graph, sched *scheduler.Scheduler, notifier notify.Notifier, opts ...Option) *Aggregator {
	a := &Aggregator{
		store:     st,
		graph:     graph,
		sched:     sched,
		notifier:  notifier,
		reminders: notify.NoopReminders{},
		collator:  collate.New(language.Und, collate.IgnoreCase),
		clock:     time.Now,
		delay:     10 * time.Second,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// RegisterHandlers binds the debounced notification events. Must run
// before the scheduler starts ticking.
func (a *Aggregator) RegisterHandlers() {
	a.sched.Register(EventFrontChangeShared, func(ctx context.Context, ev scheduler.QueuedEvent) error {
		return a.fireNotification(ctx, ev.Uid, CollSharedFront, false)
	})
	a.sched.Register(EventFrontChangePrivate, func(ctx context.Context, ev scheduler.QueuedEvent) error {
		return a.fireNotification(ctx, ev.Uid, CollPrivateFront, true)
	})
}

// frontView accumulates one of the two parallel projections.
type frontView struct {
	fronters       []string
	customFronters []string
	notifFronters  []string // members that additionally permit front notifications
}

// OnFrontChange recomputes both aggregated views for uid. removed and
// memberOrFrontId describe the entry that triggered the change and only
// feed the reminder hook; the projections are always rebuilt from the
// full live set.
func (a *Aggregator) OnFrontChange(ctx context.Context, uid string, removed bool, memberOrFrontId string, notifyReminders bool) error {
	var entries []FrontHistoryEntry
	if err := a.store.Find(ctx, CollFrontHistory, store.M{"uid": uid, "live": true}, &entries); err != nil {
		return errors.Wrap(err, "load live front entries")
	}

	var shared, trusted frontView
	for _, entry := range entries {
		coll := CollMembers
		if entry.Custom {
			coll = CollCustomFronts
		}
		var doc store.M
		err := a.store.FindOne(ctx, coll, store.M{"uid": uid, "id": entry.Member}, &doc)
		if errors.Is(err, store.ErrNotFound) {
			// Entry outlived its record; skip rather than fail the rebuild.
			continue
		}
		if err != nil {
			return errors.Wrap(err, "resolve fronting record")
		}

		name, _ := doc["name"].(string)
		p := privacy.FromDoc(doc)
		allowNotif, _ := doc["preventFrontNotifs"].(bool)
		allowNotif = !allowNotif

		if p.Unrestricted() {
			shared.add(name, entry.Custom, allowNotif)
		}
		if !p.FullyPrivate() {
			trusted.add(name, entry.Custom, allowNotif)
		}
	}

	a.sortView(&shared)
	a.sortView(&trusted)

	if err := a.persistView(ctx, uid, CollSharedFront, shared, EventFrontChangeShared); err != nil {
		return err
	}
	if err := a.persistView(ctx, uid, CollPrivateFront, trusted, EventFrontChangePrivate); err != nil {
		return err
	}

	if notifyReminders {
		isCustom, err := a.isCustomFront(ctx, uid, memberOrFrontId)
		if err != nil {
			return err
		}
		if err := a.reminders.OnFrontChange(ctx, uid, removed, memberOrFrontId, isCustom); err != nil {
			logger.Error("front: reminder evaluation", zap.String("uid", uid), zap.Error(err))
		}
	}
	return nil
}

// add places a fronter in the view. Custom fronts have no separate
// notification subset: the custom front string itself feeds the
// notification comparison, so preventFrontNotifs only filters members.
func (v *frontView) add(name string, custom, allowNotif bool) {
	if custom {
		v.customFronters = append(v.customFronters, name)
		return
	}
	v.fronters = append(v.fronters, name)
	if allowNotif {
		v.notifFronters = append(v.notifFronters, name)
	}
}

func (a *Aggregator) sortView(v *frontView) {
	a.collator.SortStrings(v.fronters)
	a.collator.SortStrings(v.customFronters)
	a.collator.SortStrings(v.notifFronters)
}

// persistView upserts the aggregated state and, when the notification
// strings moved, schedules the debounced event and advances the
// before-strings immediately so the next comparison runs against the
// latest intended state.
func (a *Aggregator) persistView(ctx context.Context, uid, coll string, v frontView, event string) error {
	var prev AggregatedFrontState
	err := a.store.FindOne(ctx, coll, store.M{"uid": uid}, &prev)
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		return errors.Wrapf(err, "load %s state", coll)
	}

	frontString := strings.Join(v.fronters, ", ")
	customFrontString := strings.Join(v.customFronters, ", ")
	notifString := strings.Join(v.notifFronters, ", ")

	err = a.store.Upsert(ctx, coll, store.M{"uid": uid}, store.M{"$set": store.M{
		"fronters":                v.fronters,
		"customFronters":          v.customFronters,
		"frontString":             frontString,
		"customFrontString":       customFrontString,
		"frontNotificationString": notifString,
	}})
	if err != nil {
		return errors.Wrapf(err, "upsert %s state", coll)
	}

	if notifString == prev.BeforeFrontNotificationString && customFrontString == prev.BeforeCustomFrontString {
		return nil
	}

	dueAt := a.clock().Add(a.delay)
	if err := a.sched.Enqueue(ctx, uid, event, dueAt, nil); err != nil {
		return errors.Wrap(err, "enqueue front notification")
	}
	return a.store.UpdateOne(ctx, coll, store.M{"uid": uid}, store.M{"$set": store.M{
		"beforeFrontNotificationString": notifString,
		"beforeCustomFrontString":       customFrontString,
	}})
}

// fireNotification runs when the debounced event comes due. It composes
// the message from the state as it is now, not as it was when the
// change happened; intermediate states never notify.
func (a *Aggregator) fireNotification(ctx context.Context, uid, coll string, trustedView bool) error {
	var state AggregatedFrontState
	err := a.store.FindOne(ctx, coll, store.M{"uid": uid}, &state)
	if errors.Is(err, store.ErrNotFound) {
		return nil
	}
	if err != nil {
		return err
	}

	title, err := a.displayName(ctx, uid)
	if err != nil {
		return err
	}
	message := composeMessage(state)

	edges, err := a.graph.Edges(ctx, uid)
	if err != nil {
		return err
	}
	for _, edge := range edges {
		if !edge.GetFrontNotif || !edge.SeeFront {
			continue
		}
		// A trusted friend gets the trusted-view string only, never both.
		if edge.Trusted != trustedView {
			continue
		}
		if err := a.notifier.PushNotification(ctx, edge.FriendUid, title, message); err != nil {
			logger.Error("front: notify friend",
				zap.String("uid", uid), zap.String("friend", edge.FriendUid), zap.Error(err))
		}
	}
	return nil
}

func composeMessage(state AggregatedFrontState) string {
	parts := make([]string, 0, 2)
	if state.FrontNotificationString != "" {
		parts = append(parts, "Fronting: "+state.FrontNotificationString)
	}
	if state.CustomFrontString != "" {
		parts = append(parts, "Custom front: "+state.CustomFrontString)
	}
	if len(parts) == 0 {
		return "No one is fronting"
	}
	return strings.Join(parts, "\n")
}

func (a *Aggregator) displayName(ctx context.Context, uid string) (string, error) {
	var user store.M
	err := a.store.FindOne(ctx, "users", store.M{"uid": uid}, &user)
	if errors.Is(err, store.ErrNotFound) {
		return uid, nil
	}
	if err != nil {
		return "", err
	}
	if name, ok := user["username"].(string); ok && name != "" {
		return name, nil
	}
	return uid, nil
}

func (a *Aggregator) isCustomFront(ctx context.Context, uid, id string) (bool, error) {
	var doc store.M
	err := a.store.FindOne(ctx, CollCustomFronts, store.M{"uid": uid, "id": id}, &doc)
	if err == nil {
		return true, nil
	}
	if errors.Is(err, store.ErrNotFound) {
		return false, nil
	}
	return false, err
}
