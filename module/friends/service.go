package friends

import (
	"context"

	"github.com/ApparyllisOrg/SimplyPluralApi-sub000/data/store"
	"github.com/google/uuid"
	"github.com/pkg/errors"
)

var (
	ErrRequestExists  = errors.New("friends: request already pending")
	ErrAlreadyFriends = errors.New("friends: already friends")
	ErrNoRequest      = errors.New("friends: no pending request")
	ErrSelfRequest    = errors.New("friends: cannot friend yourself")
	ErrBucketNotFound = errors.New("friends: bucket not found")
	ErrEdgeNotFound   = errors.New("friends: not friends")
)

// Service manages the friend-request lifecycle and bucket assignment.
// Route handlers sit on top of this; the core keeps it here because
// accept/reject directly feeds the relationship graph the evaluator
// reads.
type Service struct {
	store store.Store
}

func NewService(st store.Store) *Service {
	return &Service{store: st}
}

// SendRequest creates a pending request sender->receiver carrying the
// settings the sender proposes for their own outgoing edge.
func (s *Service) SendRequest(ctx context.Context, sender, receiver string, proposed EdgeSettings) error {
	if sender == receiver {
		return ErrSelfRequest
	}

	var edge FriendEdge
	err := s.store.FindOne(ctx, CollFriends, store.M{"uid": sender, "frienduid": receiver}, &edge)
	if err == nil {
		return ErrAlreadyFriends
	}
	if !errors.Is(err, store.ErrNotFound) {
		return err
	}

	var req PendingFriendRequest
	for _, filter := range []store.M{
		{"sender": sender, "receiver": receiver},
		{"sender": receiver, "receiver": sender},
	} {
		err := s.store.FindOne(ctx, CollPendingRequests, filter, &req)
		if err == nil {
			return ErrRequestExists
		}
		if !errors.Is(err, store.ErrNotFound) {
			return err
		}
	}

	return s.store.InsertOne(ctx, CollPendingRequests, PendingFriendRequest{
		Sender:           sender,
		Receiver:         receiver,
		ProposedSettings: proposed,
	})
}

// AcceptRequest turns the pending row into two directed edges: the
// sender's proposed settings for sender->receiver, the receiver's own
// settings for receiver->sender. The pending row is deleted; after this
// both directions report at least TierFriend (modulo cache TTL).
func (s *Service) AcceptRequest(ctx context.Context, receiver, sender string, receiverSettings EdgeSettings) error {
	var req PendingFriendRequest
	err := s.store.FindOne(ctx, CollPendingRequests, store.M{"sender": sender, "receiver": receiver}, &req)
	if errors.Is(err, store.ErrNotFound) {
		return ErrNoRequest
	}
	if err != nil {
		return err
	}

	senderEdge := FriendEdge{
		Uid:           sender,
		FriendUid:     receiver,
		SeeMembers:    req.ProposedSettings.SeeMembers,
		SeeFront:      req.ProposedSettings.SeeFront,
		GetFrontNotif: req.ProposedSettings.GetFrontNotif,
		Trusted:       req.ProposedSettings.Trusted,
	}
	receiverEdge := FriendEdge{
		Uid:           receiver,
		FriendUid:     sender,
		SeeMembers:    receiverSettings.SeeMembers,
		SeeFront:      receiverSettings.SeeFront,
		GetFrontNotif: receiverSettings.GetFrontNotif,
		Trusted:       receiverSettings.Trusted,
	}
	if err := s.store.InsertOne(ctx, CollFriends, senderEdge); err != nil {
		return err
	}
	if err := s.store.InsertOne(ctx, CollFriends, receiverEdge); err != nil {
		return err
	}
	return s.store.DeleteMany(ctx, CollPendingRequests, store.M{"sender": sender, "receiver": receiver})
}

// RejectRequest deletes the pending row. Idempotent.
func (s *Service) RejectRequest(ctx context.Context, receiver, sender string) error {
	return s.store.DeleteMany(ctx, CollPendingRequests, store.M{"sender": sender, "receiver": receiver})
}

// RemoveFriend deletes both directed edges.
func (s *Service) RemoveFriend(ctx context.Context, uid, friend string) error {
	if err := s.store.DeleteMany(ctx, CollFriends, store.M{"uid": uid, "frienduid": friend}); err != nil {
		return err
	}
	return s.store.DeleteMany(ctx, CollFriends, store.M{"uid": friend, "frienduid": uid})
}

// UpdateEdge rewrites the configurable settings of owner->friend.
func (s *Service) UpdateEdge(ctx context.Context, owner, friend string, settings EdgeSettings) error {
	var edge FriendEdge
	err := s.store.FindOne(ctx, CollFriends, store.M{"uid": owner, "frienduid": friend}, &edge)
	if errors.Is(err, store.ErrNotFound) {
		return ErrEdgeNotFound
	}
	if err != nil {
		return err
	}
	return s.store.UpdateOne(ctx, CollFriends,
		store.M{"uid": owner, "frienduid": friend},
		store.M{"$set": store.M{
			"seeMembers":    settings.SeeMembers,
			"seeFront":      settings.SeeFront,
			"getFrontNotif": settings.GetFrontNotif,
			"trusted":       settings.Trusted,
		}})
}

// AssignBuckets replaces the bucket set of owner->friend. Every id must
// be one of the owner's buckets.
func (s *Service) AssignBuckets(ctx context.Context, owner, friend string, bucketIds []string) error {
	for _, id := range bucketIds {
		var bucket PrivacyBucket
		err := s.store.FindOne(ctx, CollPrivacyBuckets, store.M{"uid": owner, "id": id}, &bucket)
		if errors.Is(err, store.ErrNotFound) {
			return ErrBucketNotFound
		}
		if err != nil {
			return err
		}
	}
	return s.store.UpdateOne(ctx, CollFriends,
		store.M{"uid": owner, "frienduid": friend},
		store.M{"$set": store.M{"buckets": bucketIds}})
}

// CreateBucket makes a new visibility tag for owner.
func (s *Service) CreateBucket(ctx context.Context, owner, name string) (PrivacyBucket, error) {
	bucket := PrivacyBucket{Id: uuid.NewString(), Uid: owner, Name: name}
	return bucket, s.store.InsertOne(ctx, CollPrivacyBuckets, bucket)
}

// bucketedCollections are the document collections whose records may be
// tagged with bucket ids.
var bucketedCollections = []string{
	"members", "groups", "customFronts", "customFields", "frontStatuses",
}

// DeleteBucket removes the bucket row and pulls its id out of every
// edge and document that carried it, so nothing retains a dangling
// grant or tag.
func (s *Service) DeleteBucket(ctx context.Context, owner, bucketId string) error {
	if err := s.store.DeleteMany(ctx, CollPrivacyBuckets, store.M{"uid": owner, "id": bucketId}); err != nil {
		return err
	}
	if err := s.store.UpdateMany(ctx, CollFriends,
		store.M{"uid": owner},
		store.M{"$pull": store.M{"buckets": bucketId}}); err != nil {
		return err
	}
	for _, coll := range bucketedCollections {
		if err := s.store.UpdateMany(ctx, coll,
			store.M{"uid": owner},
			store.M{"$pull": store.M{"buckets": bucketId}}); err != nil {
			return err
		}
	}
	return nil
}
