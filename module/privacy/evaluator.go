package privacy

import (
	"context"
	"net/http"

	"github.com/ApparyllisOrg/SimplyPluralApi-sub000/data/store"
	"github.com/ApparyllisOrg/SimplyPluralApi-sub000/module/friends"
)

// friendReadCollections are the only collections a friend can ever read
// under the legacy model. Bucket-mode documents carry their own grant
// and skip this list.
var friendReadCollections = map[string]bool{
	"users":         true,
	"members":       true,
	"groups":        true,
	"customFronts":  true,
	"customFields":  true,
	"frontStatuses": true,
}

func IsFriendReadable(collection string) bool {
	return friendReadCollections[collection]
}

// Result is an access decision. Redacted marks the pending-users case
// where only a minimal projection may be returned.
type Result struct {
	Allowed    bool
	StatusCode int
	Message    string
	Redacted   bool
}

func allow() Result {
	return Result{Allowed: true, StatusCode: http.StatusOK}
}

func deny(msg string) Result {
	return Result{Allowed: false, StatusCode: http.StatusForbidden, Message: msg}
}

// Evaluator decides per-document visibility. Both the HTTP read path
// and the realtime dispatch path must call Evaluate; the rule set lives
// nowhere else.
type Evaluator struct {
	graph *friends.Graph
}

func NewEvaluator(graph *friends.Graph) *Evaluator {
	return &Evaluator{graph: graph}
}

// Evaluate answers "can requestor see doc in collection". The caller
// guarantees doc exists; a nil document is a caller bug, not a decision
// this function makes.
func (e *Evaluator) Evaluate(ctx context.Context, doc store.M, requestor, collection string) (Result, error) {
	owner, _ := doc["uid"].(string)
	if owner == requestor {
		return allow(), nil
	}

	p := FromDoc(doc)

	if p.BucketMode {
		// Under buckets the trust tier is irrelevant: visibility is
		// purely set intersection with the requestor's edge.
		edge, err := e.graph.Edge(ctx, owner, requestor)
		if err != nil {
			return Result{}, err
		}
		if edge != nil && p.Intersects(edge.Buckets) {
			return allow(), nil
		}
		return deny("access denied"), nil
	}

	if p.FullyPrivate() {
		return deny("access denied"), nil
	}

	if !IsFriendReadable(collection) {
		return deny("access denied"), nil
	}

	tier, err := e.graph.Tier(ctx, owner, requestor)
	if err != nil {
		return Result{}, err
	}

	if !tier.AtLeast(friends.TierFriend) {
		// A pending relationship may see a minimal projection of the
		// user document itself, nothing more.
		if collection == "users" && tier == friends.TierPending {
			return Result{Allowed: true, StatusCode: http.StatusOK, Redacted: true}, nil
		}
		return deny("not friends"), nil
	}

	if p.Private && tier != friends.TierTrusted {
		return deny("access denied"), nil
	}
	return allow(), nil
}

// RedactUser is the minimal projection allowed for pending
// relationships on the users collection.
func RedactUser(doc store.M) store.M {
	out := store.M{}
	if v, ok := doc["uid"]; ok {
		out["uid"] = v
	}
	if v, ok := doc["username"]; ok {
		out["username"] = v
	}
	return out
}
