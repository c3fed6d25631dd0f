package front

import "time"

const (
	CollFrontHistory = "frontHistory"
	CollMembers      = "members"
	CollCustomFronts = "customFronts"
	CollSharedFront  = "sharedFront"
	CollPrivateFront = "privateFront"
)

// FrontHistoryEntry is one fronting interval. Live entries have no end
// time yet.
type FrontHistoryEntry struct {
	Uid       string     `bson:"uid"`
	Member    string     `bson:"member"` // member id, or custom front id when Custom
	Custom    bool       `bson:"custom"`
	StartTime time.Time  `bson:"startTime"`
	EndTime   *time.Time `bson:"endTime,omitempty"`
	Live      bool       `bson:"live"`
}

// AggregatedFrontState is the derived projection, one row per uid in
// each of sharedFront and privateFront. The before-strings are the last
// values a notification was scheduled for; comparing against them is
// what makes notification emission idempotent.
type AggregatedFrontState struct {
	Uid                           string   `bson:"uid"`
	Fronters                      []string `bson:"fronters"`
	CustomFronters                []string `bson:"customFronters"`
	FrontString                   string   `bson:"frontString"`
	CustomFrontString             string   `bson:"customFrontString"`
	FrontNotificationString       string   `bson:"frontNotificationString"`
	BeforeFrontNotificationString string   `bson:"beforeFrontNotificationString"`
	BeforeCustomFrontString       string   `bson:"beforeCustomFrontString"`
}

const (
	EventFrontChangeShared  = "frontChangeShared"
	EventFrontChangePrivate = "frontChangePrivate"
)
