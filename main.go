package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ApparyllisOrg/SimplyPluralApi-sub000/global"
	"github.com/ApparyllisOrg/SimplyPluralApi-sub000/logger"
	"github.com/ApparyllisOrg/SimplyPluralApi-sub000/module/friends"
	"github.com/ApparyllisOrg/SimplyPluralApi-sub000/module/front"
	"github.com/ApparyllisOrg/SimplyPluralApi-sub000/module/notify"
	"github.com/ApparyllisOrg/SimplyPluralApi-sub000/module/privacy"
	"github.com/ApparyllisOrg/SimplyPluralApi-sub000/module/scheduler"
	"github.com/ApparyllisOrg/SimplyPluralApi-sub000/service/mgo"
	"github.com/ApparyllisOrg/SimplyPluralApi-sub000/service/natsx"
	"github.com/ApparyllisOrg/SimplyPluralApi-sub000/service/realtime"
	"github.com/ApparyllisOrg/SimplyPluralApi-sub000/service/redisx"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

func main() {
	global.ConfigAll()
	cfg := global.Global

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	mgo.StartAsync(ctx, &mgo.Config{
		Uri:         cfg.MongoUri,
		Database:    cfg.MongoDatabase,
		MaxPoolSize: 20,
	})
	waitCtx, waitCancel := context.WithTimeout(ctx, 30*time.Second)
	defer waitCancel()
	if err := mgo.WaitReady(waitCtx); err != nil {
		logger.Error("mongo not reachable", zap.Error(err))
		os.Exit(1)
	}
	st, err := mgo.GetStore()
	if err != nil {
		logger.Error("mongo store", zap.Error(err))
		os.Exit(1)
	}

	var presence *redisx.Presence
	if err := redisx.InitRedis(redisx.Config{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	}); err != nil {
		logger.Warnf("redis unavailable, presence disabled: %v", err)
	} else {
		presence = redisx.NewPresence(redisx.GetRedis(), cfg.NodeId, 2*time.Minute)
	}

	bus, err := natsx.Connect(natsx.Config{
		Url:     cfg.NatsUrl,
		Name:    "sp-" + cfg.NodeId,
		Subject: cfg.NatsSubject,
	})
	if err != nil {
		logger.Error("nats connect", zap.Error(err))
		os.Exit(1)
	}

	graph := friends.NewGraph(st,
		friends.WithTTL(cfg.RelationCacheTTL))
	eval := privacy.NewEvaluator(graph)
	conns := realtime.NewConnManager(presence)
	dispatcher := realtime.NewDispatcher(st, graph, eval, conns, bus)
	if err := dispatcher.BindBus(); err != nil {
		logger.Error("bus subscribe", zap.Error(err))
		os.Exit(1)
	}

	sched := scheduler.New(st,
		scheduler.WithTick(cfg.SchedulerTick),
		scheduler.WithReadyCheck(func(ctx context.Context) error {
			return mgo.WaitReady(ctx)
		}))
	notifier := notify.Multi{dispatcher, notify.LogNotifier{}}
	aggregator := front.NewAggregator(st, graph, sched, notifier,
		front.WithNotifDelay(cfg.FrontNotifDelay))
	aggregator.RegisterHandlers()
	go sched.Run(ctx)

	socket := realtime.NewSocketServer(conns, global.GetJwtSecret())

	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery())
	r.GET("/v1/socket", socket.HandleWS)
	r.GET("/health", func(c *gin.Context) {
		select {
		case <-mgo.Ready():
			c.JSON(http.StatusOK, gin.H{"ok": true, "node": cfg.NodeId})
		default:
			msg := "connecting"
			if err := mgo.Err(); err != nil {
				msg = err.Error()
			}
			c.JSON(http.StatusServiceUnavailable, gin.H{"ok": false, "mongo": msg})
		}
	})

	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Port),
		Handler: r,
	}
	go func() {
		logger.Infof("listening on :%d node=%s", cfg.Port, cfg.NodeId)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("http server", zap.Error(err))
			cancel()
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-sigCh:
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	cancel()
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	_ = srv.Shutdown(shutdownCtx)
	conns.Close()
	_ = bus.Close()
	_ = redisx.CloseRedis()
}
