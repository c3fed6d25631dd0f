package friends

// Tier is the ordered relationship level between two users, always
// recomputed from stored edges, never persisted. Ordering matters:
// every "is at least a friend" style check goes through AtLeast.
type Tier int

const (
	TierNone Tier = iota
	TierPending
	TierFriend
	TierTrusted
)

func (t Tier) AtLeast(threshold Tier) bool { return t >= threshold }

func (t Tier) String() string {
	switch t {
	case TierPending:
		return "pending"
	case TierFriend:
		return "friend"
	case TierTrusted:
		return "trusted"
	default:
		return "none"
	}
}

const (
	CollFriends         = "friends"
	CollPendingRequests = "pendingFriendRequests"
	CollPrivacyBuckets  = "privacyBuckets"
)

// FriendEdge is directed: mutual friendship is two edges with
// independently configured permissions.
type FriendEdge struct {
	Uid           string   `bson:"uid"`     // owner
	FriendUid     string   `bson:"frienduid"`
	SeeMembers    bool     `bson:"seeMembers"`
	SeeFront      bool     `bson:"seeFront"`
	GetFrontNotif bool     `bson:"getFrontNotif"`
	Trusted       bool     `bson:"trusted"`
	Buckets       []string `bson:"buckets,omitempty"` // owner's bucket ids this friend is assigned to
}

// EdgeSettings is the configurable part of an edge.
type EdgeSettings struct {
	SeeMembers    bool `bson:"seeMembers" json:"seeMembers"`
	SeeFront      bool `bson:"seeFront" json:"seeFront"`
	GetFrontNotif bool `bson:"getFrontNotif" json:"getFrontNotif"`
	Trusted       bool `bson:"trusted" json:"trusted"`
}

// PendingFriendRequest exists only between send and accept/reject.
type PendingFriendRequest struct {
	Sender           string       `bson:"sender"`
	Receiver         string       `bson:"receiver"`
	ProposedSettings EdgeSettings `bson:"settings"`
}

// PrivacyBucket is an owner-defined visibility tag.
type PrivacyBucket struct {
	Id   string `bson:"id"`
	Uid  string `bson:"uid"`
	Name string `bson:"name"`
}
