package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-co-op/gocron/v2"
	"github.com/jonboulle/clockwork"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"github.com/atc-pixel/yks-arena-sub001/internal/config"
	"github.com/atc-pixel/yks-arena-sub001/internal/duel"
	"github.com/atc-pixel/yks-arena-sub001/internal/engine"
	"github.com/atc-pixel/yks-arena-sub001/internal/httpapi"
	"github.com/atc-pixel/yks-arena-sub001/internal/hub"
	"github.com/atc-pixel/yks-arena-sub001/internal/league"
	"github.com/atc-pixel/yks-arena-sub001/internal/matchmaking"
	"github.com/atc-pixel/yks-arena-sub001/internal/profile"
	"github.com/atc-pixel/yks-arena-sub001/internal/questions"
	"github.com/atc-pixel/yks-arena-sub001/internal/rewards"
	"github.com/atc-pixel/yks-arena-sub001/internal/store"
	"github.com/atc-pixel/yks-arena-sub001/internal/timer"
	"github.com/atc-pixel/yks-arena-sub001/pkg/logger"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

type backends struct {
	matches  store.MatchStore
	profiles profile.Store
	bank     questions.Bank
}

func run(ctx context.Context) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	log, err := logger.New(cfg.LogLevel, cfg.Env)
	if err != nil {
		return err
	}
	defer func() { _ = log.Sync() }()

	clock := clockwork.NewRealClock()
	rules := cfg.Rules()

	be, err := openBackends(ctx, cfg, rules, log)
	if err != nil {
		return err
	}

	// --- Redis (optional) ---
	var (
		queue  matchmaking.Queue = matchmaking.NewMemoryQueue()
		locker gocron.Locker
	)
	if cfg.RedisURL != "" {
		rdb, err := openRedis(ctx, cfg.RedisURL)
		if err != nil {
			return fmt.Errorf("connecting to redis: %w", err)
		}
		defer rdb.Close()
		queue = matchmaking.NewRedisQueue(rdb, cfg.QueueName)
		locker = timer.NewRedisLocker(rdb, "yks:lock:", 10*time.Minute)
		log.Info("connected to redis")
	}

	// --- Services ---
	svc := duel.New(duel.Config{
		Rules:        rules,
		CASRetries:   cfg.Game.CASRetries,
		WinBonus:     cfg.Economy.WinBonus,
		PerfectBonus: cfg.Economy.PerfectBonus,
	}, be.matches, be.bank, be.profiles, log, duel.WithClock(clock))

	mm := matchmaking.NewService(matchmaking.Config{
		EnergyPerMatch: cfg.Economy.EnergyPerMatch,
		AvgPairSeconds: cfg.Economy.AvgPairSeconds,
		CASRetries:     cfg.Game.CASRetries,
	}, queue, svc, be.profiles, log, clock)

	catalog := rewards.NewCatalog(nil)
	if cfg.RewardsFile != "" {
		if catalog, err = rewards.LoadCatalog(cfg.RewardsFile); err != nil {
			return err
		}
		log.Info("reward catalog loaded", zap.Int("keys", catalog.Len()))
	}
	granter := rewards.NewGranter(be.profiles, catalog, log)
	leagues := league.NewEngine(league.Config{BandSize: cfg.Economy.LeagueBandSize, CASRetries: cfg.Game.CASRetries},
		be.profiles, granter, log, clock)

	h := hub.NewHub(ctx)
	auth := timer.NewAuthority(ctx, svc, clock, log)
	defer auth.Close()

	// publish first: a timer firing must never overtake the snapshot it follows
	svc.OnCommit(h.Publish)
	svc.OnCommit(auth.Arm)

	sched, err := timer.NewScheduler(ctx, timer.SchedulerConfig{
		SweepInterval:  cfg.Schedule.SweepInterval,
		RewardInterval: cfg.Schedule.RewardInterval,
		LeagueCron:     cfg.Schedule.LeagueCron,
	}, auth, granter, leagues, locker, clock, log)
	if err != nil {
		return err
	}

	// pick up whatever was due while we were down
	if n, err := auth.Sweep(ctx); err != nil {
		log.Warn("startup sweep finished with errors", zap.Int("due", n), zap.Error(err))
	}

	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           httpapi.SetupRoutes(httpapi.Deps{Duel: svc, Queue: mm, Hub: h, Clock: clock, Log: log}),
		ReadHeaderTimeout: 10 * time.Second,
	}

	// --- Run ---
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		log.Info("starting http server", zap.String("addr", cfg.HTTPAddr))
		if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	g.Go(func() error {
		sched.Start()
		<-gctx.Done()
		return sched.Shutdown()
	})

	g.Go(func() error {
		<-gctx.Done()
		log.Info("shutting down http server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	return g.Wait()
}

func openBackends(ctx context.Context, cfg *config.Config, rules engine.Rules, log *zap.Logger) (backends, error) {
	wake := func(m engine.Match) (time.Time, bool) { return engine.NextWake(m, rules) }

	var seed []questions.Question
	if cfg.QuestionsFile != "" {
		qs, err := questions.LoadFile(cfg.QuestionsFile)
		if err != nil {
			return backends{}, err
		}
		seed = qs
	}

	if cfg.DatabaseURL == "" {
		if len(seed) == 0 {
			log.Warn("no QUESTIONS_FILE set, the in-memory bank is empty")
		}
		log.Info("using in-memory storage")
		return backends{
			matches:  store.NewMemoryStore(wake),
			profiles: profile.NewMemoryStore(cfg.Economy.StartingEnergy),
			bank:     questions.NewMemoryBank(seed),
		}, nil
	}

	db, err := gorm.Open(postgres.Open(cfg.DatabaseURL), &gorm.Config{})
	if err != nil {
		return backends{}, fmt.Errorf("connecting to postgres: %w", err)
	}
	matches := store.NewPostgresStore(db, wake)
	profiles := profile.NewPostgresStore(db, cfg.Economy.StartingEnergy)
	bank := questions.NewPostgresBank(db)
	for _, m := range []interface{ Migrate() error }{matches, profiles, bank} {
		if err := m.Migrate(); err != nil {
			return backends{}, fmt.Errorf("running migrations: %w", err)
		}
	}
	if len(seed) > 0 {
		if err := bank.Seed(ctx, seed); err != nil {
			return backends{}, err
		}
		log.Info("question bank seeded", zap.Int("questions", len(seed)))
	}
	log.Info("connected to postgres")
	return backends{matches: matches, profiles: profiles, bank: bank}, nil
}

func openRedis(ctx context.Context, rawURL string) (*redis.Client, error) {
	opt, err := redis.ParseURL(rawURL)
	if err != nil {
		return nil, fmt.Errorf("parsing redis url: %w", err)
	}
	rdb := redis.NewClient(opt)
	if err := rdb.Ping(ctx).Err(); err != nil {
		rdb.Close()
		return nil, fmt.Errorf("pinging redis: %w", err)
	}
	return rdb, nil
}
