package friends

import (
	"context"
	"testing"

	"github.com/ApparyllisOrg/SimplyPluralApi-sub000/data/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSendRequestValidation(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemoryStore()
	svc := NewService(st)

	assert.ErrorIs(t, svc.SendRequest(ctx, "alice", "alice", EdgeSettings{}), ErrSelfRequest)

	require.NoError(t, svc.SendRequest(ctx, "alice", "bob", EdgeSettings{}))
	assert.ErrorIs(t, svc.SendRequest(ctx, "alice", "bob", EdgeSettings{}), ErrRequestExists)
	// Reverse direction is also blocked while one is pending.
	assert.ErrorIs(t, svc.SendRequest(ctx, "bob", "alice", EdgeSettings{}), ErrRequestExists)
}

func TestAcceptRequestMakesSymmetricFriendship(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemoryStore()
	svc := NewService(st)

	proposed := EdgeSettings{SeeMembers: true, SeeFront: true, Trusted: true}
	require.NoError(t, svc.SendRequest(ctx, "alice", "bob", proposed))
	require.NoError(t, svc.AcceptRequest(ctx, "bob", "alice", EdgeSettings{SeeMembers: true}))

	g := NewGraph(st)
	tier, err := g.Tier(ctx, "alice", "bob")
	require.NoError(t, err)
	assert.True(t, tier.AtLeast(TierFriend))
	assert.Equal(t, TierTrusted, tier, "sender proposed trusted for their edge")

	tier, err = g.Tier(ctx, "bob", "alice")
	require.NoError(t, err)
	assert.Equal(t, TierFriend, tier)

	// Pending row is gone.
	assert.Equal(t, 0, st.Count(CollPendingRequests, store.M{"sender": "alice"}))

	// Accepting twice fails: the request no longer exists.
	assert.ErrorIs(t, svc.AcceptRequest(ctx, "bob", "alice", EdgeSettings{}), ErrNoRequest)
}

func TestRejectRequest(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemoryStore()
	svc := NewService(st)

	require.NoError(t, svc.SendRequest(ctx, "alice", "bob", EdgeSettings{}))
	require.NoError(t, svc.RejectRequest(ctx, "bob", "alice"))

	g := NewGraph(st)
	tier, err := g.Tier(ctx, "alice", "bob")
	require.NoError(t, err)
	assert.Equal(t, TierNone, tier)

	// Idempotent.
	require.NoError(t, svc.RejectRequest(ctx, "bob", "alice"))
}

func TestRemoveFriendDeletesBothEdges(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemoryStore()
	svc := NewService(st)

	require.NoError(t, svc.SendRequest(ctx, "alice", "bob", EdgeSettings{}))
	require.NoError(t, svc.AcceptRequest(ctx, "bob", "alice", EdgeSettings{}))
	require.NoError(t, svc.RemoveFriend(ctx, "alice", "bob"))

	assert.Equal(t, 0, st.Count(CollFriends, store.M{"uid": "alice"}))
	assert.Equal(t, 0, st.Count(CollFriends, store.M{"uid": "bob"}))
}

func TestBucketLifecycle(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemoryStore()
	svc := NewService(st)

	require.NoError(t, svc.SendRequest(ctx, "alice", "bob", EdgeSettings{}))
	require.NoError(t, svc.AcceptRequest(ctx, "bob", "alice", EdgeSettings{}))

	bucket, err := svc.CreateBucket(ctx, "alice", "close friends")
	require.NoError(t, err)

	assert.ErrorIs(t, svc.AssignBuckets(ctx, "alice", "bob", []string{"nope"}), ErrBucketNotFound)
	require.NoError(t, svc.AssignBuckets(ctx, "alice", "bob", []string{bucket.Id}))

	g := NewGraph(st)
	edge, err := g.Edge(ctx, "alice", "bob")
	require.NoError(t, err)
	require.NotNil(t, edge)
	assert.Equal(t, []string{bucket.Id}, edge.Buckets)

	// A document tagged with the bucket.
	require.NoError(t, st.InsertOne(ctx, "members",
		store.M{"uid": "alice", "id": "m1", "buckets": []string{bucket.Id}}))

	// Deleting the bucket pulls it off every edge and tagged document.
	require.NoError(t, svc.DeleteBucket(ctx, "alice", bucket.Id))
	edge, err = g.Edge(ctx, "alice", "bob")
	require.NoError(t, err)
	require.NotNil(t, edge)
	assert.Empty(t, edge.Buckets)

	var member store.M
	require.NoError(t, st.FindOne(ctx, "members", store.M{"uid": "alice", "id": "m1"}, &member))
	assert.Empty(t, member["buckets"])
}

func TestUpdateEdge(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemoryStore()
	svc := NewService(st)

	assert.ErrorIs(t, svc.UpdateEdge(ctx, "alice", "bob", EdgeSettings{}), ErrEdgeNotFound)

	require.NoError(t, svc.SendRequest(ctx, "alice", "bob", EdgeSettings{}))
	require.NoError(t, svc.AcceptRequest(ctx, "bob", "alice", EdgeSettings{}))
	require.NoError(t, svc.UpdateEdge(ctx, "alice", "bob", EdgeSettings{Trusted: true, GetFrontNotif: true}))

	g := NewGraph(st)
	edge, err := g.Edge(ctx, "alice", "bob")
	require.NoError(t, err)
	require.NotNil(t, edge)
	assert.True(t, edge.Trusted)
	assert.True(t, edge.GetFrontNotif)
	assert.False(t, edge.SeeMembers)
}
