package global

import (
	"os"
	"strconv"
	"time"
)

// AppConfig is the per-process configuration. One instance per server
// process; every process is identical (no role split), they share state
// only through mongo, redis and the nats subject.
type AppConfig struct {
	NodeId string // this process, used for presence keys

	MongoUri      string
	MongoDatabase string

	RedisAddr     string
	RedisPassword string
	RedisDB       int

	NatsUrl     string
	NatsSubject string // single change-event subject

	Port      int
	JwtSecret []byte

	// tuning knobs; defaults match the documented staleness bounds
	RelationCacheTTL  time.Duration
	RelationCacheSize int
	SchedulerTick     time.Duration
	FrontNotifDelay   time.Duration
}

var Global = defaults()

func defaults() AppConfig {
	return AppConfig{
		NodeId:            "node_1",
		MongoUri:          "mongodb://localhost:27017",
		MongoDatabase:     "pluralApi",
		RedisAddr:         "127.0.0.1:6379",
		NatsUrl:           "nats://127.0.0.1:4222",
		NatsSubject:       "sp.changes",
		Port:              8080,
		JwtSecret:         []byte("dev-only-secret-change-me"),
		RelationCacheTTL:  5 * time.Second,
		RelationCacheSize: 10000,
		SchedulerTick:     300 * time.Millisecond,
		FrontNotifDelay:   10 * time.Second,
	}
}

// ConfigAll overlays environment variables on the defaults.
func ConfigAll() {
	if v := os.Getenv("SP_NODE_ID"); v != "" {
		Global.NodeId = v
	}
	if v := os.Getenv("SP_MONGO_URI"); v != "" {
		Global.MongoUri = v
	}
	if v := os.Getenv("SP_MONGO_DB"); v != "" {
		Global.MongoDatabase = v
	}
	if v := os.Getenv("SP_REDIS_ADDR"); v != "" {
		Global.RedisAddr = v
	}
	if v := os.Getenv("SP_REDIS_PASSWORD"); v != "" {
		Global.RedisPassword = v
	}
	if v := os.Getenv("SP_NATS_URL"); v != "" {
		Global.NatsUrl = v
	}
	if v := os.Getenv("SP_PORT"); v != "" {
		if p, err := strconv.Atoi(v); err == nil {
			Global.Port = p
		}
	}
	if v := os.Getenv("SP_JWT_SECRET"); v != "" {
		Global.JwtSecret = []byte(v)
	}
}

func GetJwtSecret() []byte {
	return Global.JwtSecret
}
