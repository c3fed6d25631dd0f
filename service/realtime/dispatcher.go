package realtime

import (
	"context"

	"github.com/ApparyllisOrg/SimplyPluralApi-sub000/data/store"
	"github.com/ApparyllisOrg/SimplyPluralApi-sub000/logger"
	"github.com/ApparyllisOrg/SimplyPluralApi-sub000/module/friends"
	"github.com/ApparyllisOrg/SimplyPluralApi-sub000/module/privacy"
	"github.com/ApparyllisOrg/SimplyPluralApi-sub000/service/natsx"
	"github.com/pkg/errors"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"
)

// Dispatcher fans document mutations out to connected friends,
// re-checking access against current edge and document state at send
// time. Write-time visibility is never trusted.
type Dispatcher struct {
	store store.Store
	graph *friends.Graph
	eval  *privacy.Evaluator
	conns *ConnManager
	bus   *natsx.Bus // nil in single-process setups and tests
}

func NewDispatcher(st store.Store, graph *friends.Graph, eval *privacy.Evaluator, conns *ConnManager, bus *natsx.Bus) *Dispatcher {
	return &Dispatcher{store: st, graph: graph, eval: eval, conns: conns, bus: bus}
}

// BindBus subscribes this process to the change subject. Every process
// runs the same Dispatch against its own connection registry, so it
// does not matter which process accepted the original write.
func (d *Dispatcher) BindBus() error {
	if d.bus == nil {
		return nil
	}
	return d.bus.Subscribe(func(data []byte) {
		ev, err := DecodeChangeEvent(data)
		if err != nil {
			logger.Error("dispatch: bad bus payload", zap.Error(err))
			return
		}
		if err := d.Dispatch(context.Background(), ev); err != nil {
			logger.Error("dispatch: failed", zap.String("uid", ev.Uid),
				zap.String("collection", ev.Collection), zap.Error(err))
		}
	})
}

// OnWrite is what route handlers call after every insert/update/delete.
// With a bus attached the event round-trips through it (the publishing
// process receives its own event); without one it dispatches locally.
func (d *Dispatcher) OnWrite(ctx context.Context, ev ChangeEvent) error {
	if d.bus != nil {
		raw, err := EncodeChangeEvent(ev)
		if err != nil {
			return err
		}
		return errors.Wrap(d.bus.Publish(raw), "publish change event")
	}
	return d.Dispatch(ctx, ev)
}

// PushNotification delivers a notification frame to every live
// connection of uid on this node. Offline delivery belongs to the push
// pipeline, not here; presence tells the two cases apart in the logs.
func (d *Dispatcher) PushNotification(ctx context.Context, uid, title, message string) error {
	if n := d.conns.SendToUid(uid, BuildNotificationFrame(title, message)); n > 0 {
		return nil
	}
	online, err := d.conns.IsOnline(ctx, uid)
	if err != nil {
		logger.Debug("notify: presence lookup", zap.String("uid", uid), zap.Error(err))
		return nil
	}
	if !online {
		logger.Debug("notify: uid offline, deferring to push delivery", zap.String("uid", uid))
	}
	return nil
}

// Dispatch applies the fan-out rules for one mutation event.
func (d *Dispatcher) Dispatch(ctx context.Context, ev ChangeEvent) error {
	if !privacy.IsFriendReadable(ev.Collection) {
		// Friends can never read this collection; only the owner's own
		// devices sync it.
		return d.selfSync(ctx, ev)
	}

	if ev.OperationType == OpDelete {
		return d.broadcastTombstone(ctx, ev)
	}

	doc, err := d.fetch(ctx, ev)
	if err != nil {
		return err
	}
	if doc == nil {
		// Gone between write and dispatch; the delete event will follow.
		return nil
	}

	payload := BuildUpdateFrame(ev.Collection, []UpdateResult{{
		OperationType: ev.OperationType,
		Id:            ev.DocumentId,
		Content:       transformContent(doc),
	}})
	d.conns.SendToUid(ev.Uid, payload)

	edges, err := d.graph.Edges(ctx, ev.Uid)
	if err != nil {
		return err
	}
	p := privacy.FromDoc(doc)
	for _, edge := range edges {
		allowed := false
		if p.BucketMode {
			// Bucket shortcut: trust tier is irrelevant, intersection
			// decides.
			allowed = p.Intersects(edge.Buckets)
		} else {
			res, err := d.eval.Evaluate(ctx, doc, edge.FriendUid, ev.Collection)
			if err != nil {
				return err
			}
			allowed = res.Allowed
		}
		if allowed {
			d.conns.SendToUid(edge.FriendUid, payload)
		}
	}

	// A pending relationship may follow the user document itself, in
	// redacted form only.
	if ev.Collection == "users" {
		partners, err := d.graph.PendingPartners(ctx, ev.Uid)
		if err != nil {
			return err
		}
		for _, uid := range partners {
			res, err := d.eval.Evaluate(ctx, doc, uid, ev.Collection)
			if err != nil {
				return err
			}
			if !res.Allowed {
				continue
			}
			frame := payload
			if res.Redacted {
				frame = BuildUpdateFrame(ev.Collection, []UpdateResult{{
					OperationType: ev.OperationType,
					Id:            ev.DocumentId,
					Content:       privacy.RedactUser(doc),
				}})
			}
			d.conns.SendToUid(uid, frame)
		}
	}
	return nil
}

func (d *Dispatcher) selfSync(ctx context.Context, ev ChangeEvent) error {
	if ev.OperationType == OpDelete {
		d.conns.SendToUid(ev.Uid, tombstoneFrame(ev))
		return nil
	}
	doc, err := d.fetch(ctx, ev)
	if err != nil || doc == nil {
		return err
	}
	d.conns.SendToUid(ev.Uid, BuildUpdateFrame(ev.Collection, []UpdateResult{{
		OperationType: ev.OperationType,
		Id:            ev.DocumentId,
		Content:       transformContent(doc),
	}}))
	return nil
}

// broadcastTombstone delivers a delete marker to the owner and every
// friend edge. Access cannot be evaluated against a deleted document,
// so deletes over-deliver by design; a stricter variant would snapshot
// the document's privacy just before deletion and gate the tombstone
// through Evaluate.
func (d *Dispatcher) broadcastTombstone(ctx context.Context, ev ChangeEvent) error {
	payload := tombstoneFrame(ev)
	d.conns.SendToUid(ev.Uid, payload)

	uids, err := d.graph.FriendUids(ctx, ev.Uid)
	if err != nil {
		return err
	}
	for _, uid := range uids {
		d.conns.SendToUid(uid, payload)
	}
	return nil
}

func tombstoneFrame(ev ChangeEvent) []byte {
	return BuildUpdateFrame(ev.Collection, []UpdateResult{{
		OperationType: OpDelete,
		Id:            ev.DocumentId,
	}})
}

func (d *Dispatcher) fetch(ctx context.Context, ev ChangeEvent) (store.M, error) {
	var doc store.M
	err := d.store.FindOne(ctx, ev.Collection, store.M{"uid": ev.Uid, "id": ev.DocumentId}, &doc)
	if errors.Is(err, store.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrap(err, "refetch document")
	}
	return doc, nil
}

// transformContent strips the storage id and flattens bson types so the
// frame marshals to the same JSON the read path returns.
func transformContent(doc store.M) store.M {
	out := make(store.M, len(doc))
	for k, v := range doc {
		if k == "_id" {
			continue
		}
		out[k] = jsonValue(v)
	}
	return out
}

func jsonValue(v any) any {
	switch t := v.(type) {
	case primitive.D:
		m := make(store.M, len(t))
		for _, e := range t {
			m[e.Key] = jsonValue(e.Value)
		}
		return m
	case primitive.M:
		m := make(store.M, len(t))
		for k, e := range t {
			m[k] = jsonValue(e)
		}
		return m
	case primitive.A:
		out := make([]any, len(t))
		for i, e := range t {
			out[i] = jsonValue(e)
		}
		return out
	case primitive.ObjectID:
		return t.Hex()
	case primitive.DateTime:
		return t.Time().UnixMilli()
	}
	return v
}
