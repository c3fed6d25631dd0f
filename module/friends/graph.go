package friends

import (
	"context"
	"time"

	"github.com/ApparyllisOrg/SimplyPluralApi-sub000/data/store"
	lru "github.com/hashicorp/golang-lru"
	"github.com/pkg/errors"
)

const (
	defaultCacheSize = 10000
	defaultCacheTTL  = 5 * time.Second
)

// Graph answers relationship questions between users, read-through
// cached. Entries expire only by TTL; a permission change becomes
// visible everywhere within one TTL window, which is the accepted
// staleness bound for these checks.
type Graph struct {
	store store.Store
	clock func() time.Time
	ttl   time.Duration

	tiers      *lru.Cache // "owner|requestor" -> tierEntry
	seeMembers *lru.Cache // "owner|requestor" -> boolEntry
}

type tierEntry struct {
	tier     Tier
	expireAt time.Time
}

type boolEntry struct {
	val      bool
	expireAt time.Time
}

type GraphOption func(*Graph)

// WithClock injects a clock for TTL tests.
func WithClock(clock func() time.Time) GraphOption {
	return func(g *Graph) { g.clock = clock }
}

func WithTTL(ttl time.Duration) GraphOption {
	return func(g *Graph) { g.ttl = ttl }
}

func NewGraph(st store.Store, opts ...GraphOption) *Graph {
	tiers, _ := lru.New(defaultCacheSize)
	seeMembers, _ := lru.New(defaultCacheSize)
	g := &Graph{
		store:      st,
		clock:      time.Now,
		ttl:        defaultCacheTTL,
		tiers:      tiers,
		seeMembers: seeMembers,
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

func cacheKey(owner, requestor string) string {
	return owner + "|" + requestor
}

// Tier resolves the directed relationship tier owner->requestor.
// Absent edge and absent pending request is a normal TierNone, never an
// error.
func (g *Graph) Tier(ctx context.Context, owner, requestor string) (Tier, error) {
	key := cacheKey(owner, requestor)
	if v, ok := g.tiers.Get(key); ok {
		if e := v.(tierEntry); g.clock().Before(e.expireAt) {
			return e.tier, nil
		}
	}

	tier, err := g.lookupTier(ctx, owner, requestor)
	if err != nil {
		return TierNone, err
	}
	g.tiers.Add(key, tierEntry{tier: tier, expireAt: g.clock().Add(g.ttl)})
	return tier, nil
}

func (g *Graph) lookupTier(ctx context.Context, owner, requestor string) (Tier, error) {
	var edge FriendEdge
	err := g.store.FindOne(ctx, CollFriends, store.M{"uid": owner, "frienduid": requestor}, &edge)
	if err == nil {
		if edge.Trusted {
			return TierTrusted, nil
		}
		return TierFriend, nil
	}
	if !errors.Is(err, store.ErrNotFound) {
		return TierNone, err
	}

	// No edge: a pending request in either direction reads as Pending.
	var req PendingFriendRequest
	err = g.store.FindOne(ctx, CollPendingRequests, store.M{"sender": owner, "receiver": requestor}, &req)
	if err == nil {
		return TierPending, nil
	}
	if !errors.Is(err, store.ErrNotFound) {
		return TierNone, err
	}
	err = g.store.FindOne(ctx, CollPendingRequests, store.M{"sender": requestor, "receiver": owner}, &req)
	if err == nil {
		return TierPending, nil
	}
	if !errors.Is(err, store.ErrNotFound) {
		return TierNone, err
	}
	return TierNone, nil
}

// CanSeeMembers is the cached seeMembers bit of owner->requestor.
func (g *Graph) CanSeeMembers(ctx context.Context, owner, requestor string) (bool, error) {
	key := cacheKey(owner, requestor)
	if v, ok := g.seeMembers.Get(key); ok {
		if e := v.(boolEntry); g.clock().Before(e.expireAt) {
			return e.val, nil
		}
	}

	var edge FriendEdge
	err := g.store.FindOne(ctx, CollFriends, store.M{"uid": owner, "frienduid": requestor}, &edge)
	val := false
	switch {
	case err == nil:
		val = edge.SeeMembers
	case errors.Is(err, store.ErrNotFound):
	default:
		return false, err
	}
	g.seeMembers.Add(key, boolEntry{val: val, expireAt: g.clock().Add(g.ttl)})
	return val, nil
}

// Edge fetches owner->friend uncached. The dispatch path wants bucket
// sets and notification flags as fresh as the store can give.
func (g *Graph) Edge(ctx context.Context, owner, friend string) (*FriendEdge, error) {
	var edge FriendEdge
	err := g.store.FindOne(ctx, CollFriends, store.M{"uid": owner, "frienduid": friend}, &edge)
	if errors.Is(err, store.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &edge, nil
}

// Edges returns all of owner's outgoing friend edges.
func (g *Graph) Edges(ctx context.Context, owner string) ([]FriendEdge, error) {
	var edges []FriendEdge
	if err := g.store.Find(ctx, CollFriends, store.M{"uid": owner}, &edges); err != nil {
		return nil, err
	}
	return edges, nil
}

// PendingPartners returns the uids with an open friend request to or
// from owner.
func (g *Graph) PendingPartners(ctx context.Context, owner string) ([]string, error) {
	var sent, received []PendingFriendRequest
	if err := g.store.Find(ctx, CollPendingRequests, store.M{"sender": owner}, &sent); err != nil {
		return nil, err
	}
	if err := g.store.Find(ctx, CollPendingRequests, store.M{"receiver": owner}, &received); err != nil {
		return nil, err
	}
	uids := make([]string, 0, len(sent)+len(received))
	for _, r := range sent {
		uids = append(uids, r.Receiver)
	}
	for _, r := range received {
		uids = append(uids, r.Sender)
	}
	return uids, nil
}

// FriendUids returns the uids of all of owner's friends.
func (g *Graph) FriendUids(ctx context.Context, owner string) ([]string, error) {
	edges, err := g.Edges(ctx, owner)
	if err != nil {
		return nil, err
	}
	uids := make([]string, 0, len(edges))
	for _, e := range edges {
		uids = append(uids, e.FriendUid)
	}
	return uids, nil
}
