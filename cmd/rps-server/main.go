package main

import (
    "context"
    "errors"
    "log"
    "os"
    "os/signal"
    "syscall"
    "time"

    "github.com/joho/godotenv"
    "github.com/prometheus/client_golang/prometheus"
    "github.com/prometheus/client_golang/prometheus/collectors"
    "github.com/redis/go-redis/v9"
    "go.uber.org/zap"
    "golang.org/x/sync/errgroup"

    "github.com/park285/rps-room-server/internal/archive"
    appcfg "github.com/park285/rps-room-server/internal/config"
    "github.com/park285/rps-room-server/internal/gameplay"
    "github.com/park285/rps-room-server/internal/httpapi"
    "github.com/park285/rps-room-server/internal/lobby"
    "github.com/park285/rps-room-server/internal/metrics"
    "github.com/park285/rps-room-server/internal/notify"
    "github.com/park285/rps-room-server/internal/obslog"
    "github.com/park285/rps-room-server/internal/roomstore"
    "github.com/park285/rps-room-server/internal/rps"
)

func main() {
    // .env is optional; real deployments set the environment directly
    if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
        log.Printf("dotenv: %v", err)
    }
    if err := obslog.InitFromEnv(); err != nil {
        log.Fatalf("logger init error: %v", err)
    }
    logger := obslog.L()
    defer func() { _ = logger.Sync() }()

    cfg, err := appcfg.Load()
    if err != nil {
        log.Fatalf("config error: %v", err)
    }

    ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
    defer stop()

    if err := run(ctx, cfg, logger); err != nil {
        logger.Error("server_exit", zap.Error(err))
        os.Exit(1)
    }
}

func run(ctx context.Context, cfg *appcfg.AppConfig, logger *zap.Logger) error {
    opt, err := redis.ParseURL(cfg.RedisURL)
    if err != nil { return err }
    rdb := redis.NewClient(opt)
    defer rdb.Close()
    pctx, cancel := context.WithTimeout(ctx, 5*time.Second)
    err = rdb.Ping(pctx).Err()
    cancel()
    if err != nil { return err }

    store := roomstore.NewRedisStore(rdb, roomstore.Options{
        MaxAttempts: cfg.RoomUpdateMaxAttempts,
        Timeout:     cfg.RoomUpdateTimeout(),
    })

    reg := prometheus.NewRegistry()
    reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
    rec, err := metrics.NewPrometheus(reg)
    if err != nil { return err }

    sink, closeSink := newSink(cfg, rdb, logger)
    defer closeSink()
    var pub notify.Publisher = notify.Discard{}
    var dispatcher *notify.Dispatcher
    if sink != nil {
        n := cfg.Notifications
        dispatcher = notify.NewDispatcher(sink,
            notify.WithMaxAttempts(n.MaxAttempts),
            notify.WithBackoff(n.Backoff(), 10*n.Backoff()),
            notify.WithQueueSize(n.QueueSize),
            notify.WithWorkers(n.Workers),
            notify.WithLogger(logger),
        )
        pub = dispatcher
    }

    rules := rps.Rules{TargetRounds: cfg.GameNumRounds}
    gameOpts := []gameplay.Option{gameplay.WithLogger(logger)}
    if cfg.DatabaseURL != "" {
        repo, err := archive.NewRepository(cfg.DatabaseURL, rules)
        if err != nil { return err }
        defer repo.Close()
        if err := repo.EnsureSchema(ctx); err != nil { return err }
        gameOpts = append(gameOpts, gameplay.WithArchiver(repo))
    } else {
        logger.Info("archive_disabled", zap.String("reason", "DATABASE_URL not set"))
    }

    rooms := lobby.NewService(store, pub, rec, lobby.Settings{
        MachineName:  cfg.MachinePlayerName,
        MaxWait:      cfg.MaxWaitRandomPlayer(),
        TopicPattern: cfg.RoomsTopicPattern,
    }, lobby.WithLogger(logger))
    games := gameplay.NewService(store, pub, rec, gameplay.Settings{
        Rules:        rules,
        TopicPattern: cfg.RoomsTopicPattern,
    }, gameOpts...)

    sweeper := lobby.NewSweeper(store, cfg.MaxWaitRandomPlayer())
    if err := sweeper.Start(cfg.LobbySweepInterval()); err != nil { return err }
    defer func() { _ = sweeper.Stop() }()

    app := httpapi.New(rooms, games,
        httpapi.WithMetrics(reg),
        httpapi.WithHealthCheck(func(ctx context.Context) error { return rdb.Ping(ctx).Err() }),
        httpapi.WithLogger(logger),
    )

    g, gctx := errgroup.WithContext(ctx)
    g.Go(func() error {
        logger.Info("http_listen", zap.String("addr", cfg.HTTPAddr), zap.String("notifications", cfg.Notifications.Mode))
        return app.Listen(cfg.HTTPAddr)
    })
    g.Go(func() error {
        <-gctx.Done()
        sctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
        defer cancel()
        err := app.ShutdownWithContext(sctx)
        if dispatcher != nil {
            if derr := dispatcher.Close(sctx); derr != nil {
                logger.Warn("notify_close_timeout", zap.Error(derr))
            }
        }
        logger.Info("http_shutdown")
        return err
    })
    return g.Wait()
}

// newSink picks the notification transport. A nil sink disables notifications.
func newSink(cfg *appcfg.AppConfig, rdb *redis.Client, logger *zap.Logger) (notify.Sink, func()) {
    n := cfg.Notifications
    switch n.Mode {
    case "log":
        return notify.LogSink{Logger: logger}, func() {}
    case "redis":
        return notify.NewRedisSink(rdb), func() {}
    case "webhook":
        return notify.NewWebhookSink(n.WebhookURL), func() {}
    case "broker":
        b := notify.NewBrokerSink(n.BrokerURL)
        return b, func() { _ = b.Close() }
    default:
        return nil, func() {}
    }
}
