package cli

import (
	"context"
	"database/sql"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/driver/pgdriver"

	"kuizu-session-service/internal/app"
	"kuizu-session-service/internal/config"
	"kuizu-session-service/internal/domain"
	"kuizu-session-service/internal/infra/memory"
	pginfra "kuizu-session-service/internal/infra/postgres"
	redisinfra "kuizu-session-service/internal/infra/redis"
	transport "kuizu-session-service/internal/transport/http"
)

// NewStartCmd builds the CLI subcommand to start the server.
func NewStartCmd(configPath, port *string) *cobra.Command {
	return &cobra.Command{
		Use:   "start",
		Short: "Start the session service",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer(cmd.Context(), *configPath, *port)
		},
	}
}

func runServer(ctx context.Context, configPath, portFlag string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	if cfg.Postgres.URL != "" {
		if err := runMigrationsWithConfig(ctx, cfg); err != nil {
			return err
		}
	}

	finalPort := portFlag
	if finalPort == "" {
		finalPort = cfg.Server.Port
	}
	if finalPort == "" {
		finalPort = "8080"
	}
	baseURL := cfg.Server.BaseURL
	if baseURL == "" {
		baseURL = "http://localhost:" + finalPort
	}

	var redisClient *redis.Client
	if cfg.Redis.Addr != "" {
		redisClient = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
	}
	redisTTL := config.TTLDuration(cfg.Redis.TTL, 10*time.Minute)
	quizTTL := config.TTLDuration(cfg.Quiz.TTL, 10*time.Minute)

	var (
		store        app.Store
		catalogStore app.CatalogStore
		loader       memory.QuizLoader
	)
	if cfg.Postgres.URL != "" {
		sqldb := sql.OpenDB(pgdriver.NewConnector(pgdriver.WithDSN(cfg.Postgres.URL)))
		bunDB := bun.NewDB(sqldb, pgdialect.New())
		defer bunDB.Close()

		pool, err := pgxpool.Connect(ctx, cfg.Postgres.URL)
		if err != nil {
			return err
		}
		defer pool.Close()

		pgStore := pginfra.NewStore(bunDB)
		store = pgStore
		catalogStore = pgStore
		loader = pginfra.NewQuizLoader(pool)
	} else {
		memStore := memory.NewStore()
		seedDemoQuiz(ctx, memStore)
		store = memStore
		catalogStore = memStore
		loader = memStore
	}

	var quizzes app.QuizRepository
	if redisClient != nil {
		quizzes = redisinfra.NewQuizCache(redisClient, loader, quizTTL)
	} else {
		quizzes = memory.NewQuizCache(loader, quizTTL)
	}

	var live app.LiveRegistry
	if redisClient != nil {
		live = redisinfra.NewLiveRegistry(redisClient, redisTTL)
	} else {
		live = memory.NewLiveRegistry()
	}

	sessions := app.NewSessionService(store, quizzes, live, baseURL)
	scoring := app.NewScoringService(store, quizzes, live)
	catalog := app.NewCatalogService(catalogStore)

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("ok"))
	})
	transport.NewHandler(sessions, scoring, catalog).Register(mux)
	mux.HandleFunc("/ws", transport.NewWSHandler(sessions, scoring, live).ServeWS)

	server := &http.Server{
		Addr:         ":" + finalPort,
		Handler:      mux,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
	}

	go func() {
		log.Printf("starting session service on :%s", finalPort)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Printf("failed to start server: %v", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-stop:
		log.Println("shutting down server...")
	case <-ctx.Done():
		log.Println("context canceled, shutting down server...")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}

// seedDemoQuiz loads a small training quiz so the memory mode is playable
// out of the box.
func seedDemoQuiz(ctx context.Context, store *memory.Store) {
	quizID := uuid.NewString()
	mc := func(text string, limit, points int, answers ...domain.Answer) domain.Question {
		id := uuid.NewString()
		for i := range answers {
			answers[i].ID = uuid.NewString()
			answers[i].QuestionID = id
			answers[i].Position = i + 1
		}
		return domain.Question{
			ID:               id,
			QuizID:           quizID,
			Text:             text,
			Type:             domain.QuestionMultipleChoice,
			TimeLimitSeconds: limit,
			Points:           points,
			Answers:          answers,
		}
	}
	quiz := domain.Quiz{
		ID:          quizID,
		Title:       "Fire safety basics",
		Description: "Warm-up round for junior firefighter training",
		Active:      true,
		Questions: []domain.Question{
			mc("Which extinguisher class covers electrical fires?", 30, 100,
				domain.Answer{Text: "Class A"},
				domain.Answer{Text: "Class C", Correct: true},
				domain.Answer{Text: "Class K"},
			),
			mc("What is the first step when discovering a fire?", 20, 100,
				domain.Answer{Text: "Raise the alarm", Correct: true},
				domain.Answer{Text: "Open the windows"},
				domain.Answer{Text: "Collect valuables"},
			),
		},
	}
	for i := range quiz.Questions {
		quiz.Questions[i].Position = i + 1
	}
	if err := store.CreateQuiz(ctx, &quiz); err != nil {
		log.Printf("seed demo quiz: %v", err)
		return
	}
	log.Printf("seeded demo quiz %s", quizID)
}
