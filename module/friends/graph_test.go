package friends

import (
	"context"
	"testing"
	"time"

	"github.com/ApparyllisOrg/SimplyPluralApi-sub000/data/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTierOrdering(t *testing.T) {
	assert.True(t, TierTrusted.AtLeast(TierFriend))
	assert.True(t, TierFriend.AtLeast(TierFriend))
	assert.False(t, TierPending.AtLeast(TierFriend))
	assert.False(t, TierNone.AtLeast(TierPending))
}

func TestTierNoRelationship(t *testing.T) {
	st := store.NewMemoryStore()
	g := NewGraph(st)

	tier, err := g.Tier(context.Background(), "alice", "bob")
	require.NoError(t, err)
	assert.Equal(t, TierNone, tier)
}

func TestTierPendingEitherDirection(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemoryStore()
	require.NoError(t, st.InsertOne(ctx, CollPendingRequests, PendingFriendRequest{
		Sender: "alice", Receiver: "bob",
	}))

	g := NewGraph(st)
	tier, err := g.Tier(ctx, "alice", "bob")
	require.NoError(t, err)
	assert.Equal(t, TierPending, tier)

	tier, err = g.Tier(ctx, "bob", "alice")
	require.NoError(t, err)
	assert.Equal(t, TierPending, tier)
}

func TestTierFromEdge(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemoryStore()
	require.NoError(t, st.InsertOne(ctx, CollFriends, FriendEdge{
		Uid: "alice", FriendUid: "bob", Trusted: false,
	}))
	require.NoError(t, st.InsertOne(ctx, CollFriends, FriendEdge{
		Uid: "alice", FriendUid: "carol", Trusted: true,
	}))

	g := NewGraph(st)
	tier, err := g.Tier(ctx, "alice", "bob")
	require.NoError(t, err)
	assert.Equal(t, TierFriend, tier)

	tier, err = g.Tier(ctx, "alice", "carol")
	require.NoError(t, err)
	assert.Equal(t, TierTrusted, tier)

	// Directed: bob never granted alice anything.
	tier, err = g.Tier(ctx, "bob", "alice")
	require.NoError(t, err)
	assert.Equal(t, TierNone, tier)
}

func TestTierCacheTTL(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemoryStore()

	now := time.Unix(1000, 0)
	clock := func() time.Time { return now }
	g := NewGraph(st, WithClock(clock), WithTTL(5*time.Second))

	tier, err := g.Tier(ctx, "alice", "bob")
	require.NoError(t, err)
	require.Equal(t, TierNone, tier)

	// The edge appears, but the cached None is served until TTL expiry.
	require.NoError(t, st.InsertOne(ctx, CollFriends, FriendEdge{Uid: "alice", FriendUid: "bob"}))

	tier, err = g.Tier(ctx, "alice", "bob")
	require.NoError(t, err)
	assert.Equal(t, TierNone, tier, "stale value expected inside TTL window")

	now = now.Add(6 * time.Second)
	tier, err = g.Tier(ctx, "alice", "bob")
	require.NoError(t, err)
	assert.Equal(t, TierFriend, tier)
}

func TestCanSeeMembers(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemoryStore()
	require.NoError(t, st.InsertOne(ctx, CollFriends, FriendEdge{
		Uid: "alice", FriendUid: "bob", SeeMembers: true,
	}))
	require.NoError(t, st.InsertOne(ctx, CollFriends, FriendEdge{
		Uid: "alice", FriendUid: "carol", SeeMembers: false,
	}))

	g := NewGraph(st)
	ok, err := g.CanSeeMembers(ctx, "alice", "bob")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = g.CanSeeMembers(ctx, "alice", "carol")
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = g.CanSeeMembers(ctx, "alice", "mallory")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestFriendUids(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemoryStore()
	require.NoError(t, st.InsertOne(ctx, CollFriends, FriendEdge{Uid: "alice", FriendUid: "bob"}))
	require.NoError(t, st.InsertOne(ctx, CollFriends, FriendEdge{Uid: "alice", FriendUid: "carol"}))
	require.NoError(t, st.InsertOne(ctx, CollFriends, FriendEdge{Uid: "bob", FriendUid: "alice"}))

	g := NewGraph(st)
	uids, err := g.FriendUids(ctx, "alice")
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"bob", "carol"}, uids)
}
