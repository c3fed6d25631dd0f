package privacy

import (
	"context"
	"testing"

	"github.com/ApparyllisOrg/SimplyPluralApi-sub000/data/store"
	"github.com/ApparyllisOrg/SimplyPluralApi-sub000/module/friends"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newEvaluator(t *testing.T, st *store.MemoryStore) *Evaluator {
	t.Helper()
	return NewEvaluator(friends.NewGraph(st))
}

func addEdge(t *testing.T, st *store.MemoryStore, edge friends.FriendEdge) {
	t.Helper()
	require.NoError(t, st.InsertOne(context.Background(), friends.CollFriends, edge))
}

func TestOwnerAlwaysAllowed(t *testing.T) {
	st := store.NewMemoryStore()
	e := newEvaluator(t, st)

	doc := store.M{"uid": "alice", "private": true, "preventTrusted": true}
	res, err := e.Evaluate(context.Background(), doc, "alice", "members")
	require.NoError(t, err)
	assert.True(t, res.Allowed)
}

func TestBucketModeIgnoresTrust(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemoryStore()
	addEdge(t, st, friends.FriendEdge{Uid: "alice", FriendUid: "bob", Buckets: []string{"B"}})
	addEdge(t, st, friends.FriendEdge{Uid: "alice", FriendUid: "carol", Trusted: true, Buckets: []string{"C"}})
	e := newEvaluator(t, st)

	doc := store.M{"uid": "alice", "buckets": []string{"B"}}

	res, err := e.Evaluate(ctx, doc, "bob", "members")
	require.NoError(t, err)
	assert.True(t, res.Allowed, "friend assigned to B sees a B-tagged document")

	res, err = e.Evaluate(ctx, doc, "carol", "members")
	require.NoError(t, err)
	assert.False(t, res.Allowed, "trust is irrelevant under buckets")
}

func TestBucketModeEmptySetHidesFromAll(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemoryStore()
	addEdge(t, st, friends.FriendEdge{Uid: "alice", FriendUid: "bob", Trusted: true, Buckets: []string{"B"}})
	e := newEvaluator(t, st)

	doc := store.M{"uid": "alice", "buckets": []string{}}
	res, err := e.Evaluate(ctx, doc, "bob", "members")
	require.NoError(t, err)
	assert.False(t, res.Allowed)
}

func TestFullyPrivateDeniesEveryTier(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemoryStore()
	addEdge(t, st, friends.FriendEdge{Uid: "alice", FriendUid: "bob"})
	addEdge(t, st, friends.FriendEdge{Uid: "alice", FriendUid: "carol", Trusted: true})
	e := newEvaluator(t, st)

	doc := store.M{"uid": "alice", "private": true, "preventTrusted": true}
	for _, requestor := range []string{"bob", "carol", "stranger"} {
		res, err := e.Evaluate(ctx, doc, requestor, "members")
		require.NoError(t, err)
		assert.False(t, res.Allowed, "requestor %s", requestor)
	}
}

func TestPrivateVisibleToTrustedOnly(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemoryStore()
	addEdge(t, st, friends.FriendEdge{Uid: "alice", FriendUid: "bob", SeeMembers: true})
	addEdge(t, st, friends.FriendEdge{Uid: "alice", FriendUid: "carol", Trusted: true})
	e := newEvaluator(t, st)

	// The member M scenario: private, not preventTrusted.
	doc := store.M{"uid": "alice", "private": true, "preventTrusted": false}

	res, err := e.Evaluate(ctx, doc, "bob", "members")
	require.NoError(t, err)
	assert.False(t, res.Allowed, "plain friend denied")

	res, err = e.Evaluate(ctx, doc, "carol", "members")
	require.NoError(t, err)
	assert.True(t, res.Allowed, "trusted friend allowed")
}

func TestPublicDocVisibleToFriend(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemoryStore()
	addEdge(t, st, friends.FriendEdge{Uid: "alice", FriendUid: "bob"})
	e := newEvaluator(t, st)

	doc := store.M{"uid": "alice", "private": false}
	res, err := e.Evaluate(ctx, doc, "bob", "members")
	require.NoError(t, err)
	assert.True(t, res.Allowed)

	res, err = e.Evaluate(ctx, doc, "stranger", "members")
	require.NoError(t, err)
	assert.False(t, res.Allowed)
}

func TestNonFriendReadableCollectionDenied(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemoryStore()
	addEdge(t, st, friends.FriendEdge{Uid: "alice", FriendUid: "bob", Trusted: true})
	e := newEvaluator(t, st)

	doc := store.M{"uid": "alice"}
	res, err := e.Evaluate(ctx, doc, "bob", "tokens")
	require.NoError(t, err)
	assert.False(t, res.Allowed)
}

func TestPendingSeesRedactedUserDoc(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemoryStore()
	require.NoError(t, st.InsertOne(ctx, friends.CollPendingRequests, friends.PendingFriendRequest{
		Sender: "alice", Receiver: "bob",
	}))
	e := newEvaluator(t, st)

	userDoc := store.M{"uid": "alice", "username": "Alice", "desc": "secret bio"}
	res, err := e.Evaluate(ctx, userDoc, "bob", "users")
	require.NoError(t, err)
	assert.True(t, res.Allowed)
	assert.True(t, res.Redacted)

	redacted := RedactUser(userDoc)
	assert.Equal(t, store.M{"uid": "alice", "username": "Alice"}, redacted)

	// Pending gets nothing outside the users collection.
	res, err = e.Evaluate(ctx, store.M{"uid": "alice"}, "bob", "members")
	require.NoError(t, err)
	assert.False(t, res.Allowed)
}

func TestFromDocDiscriminator(t *testing.T) {
	p := FromDoc(store.M{"uid": "a", "buckets": []string{"B"}, "private": true, "preventTrusted": true})
	assert.True(t, p.BucketMode, "bucket presence wins; legacy flags never evaluated")

	p = FromDoc(store.M{"uid": "a", "private": true})
	assert.False(t, p.BucketMode)
	assert.True(t, p.Private)
	assert.False(t, p.PreventTrusted)

	p = FromDoc(store.M{"uid": "a", "buckets": nil})
	assert.False(t, p.BucketMode, "explicit null is not bucket mode")
}
