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

	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/driver/pgdriver"

	"cybersafe-assessment-service/internal/app"
	"cybersafe-assessment-service/internal/auth"
	"cybersafe-assessment-service/internal/config"
	"cybersafe-assessment-service/internal/domain"
	"cybersafe-assessment-service/internal/grading"
	"cybersafe-assessment-service/internal/infra/memory"
	pgstore "cybersafe-assessment-service/internal/infra/postgres"
	redisrepo "cybersafe-assessment-service/internal/infra/redis"
	transport "cybersafe-assessment-service/internal/transport/http"
)

// NewStartCmd builds the CLI subcommand to start the server.
func NewStartCmd(configPath, port *string) *cobra.Command {
	return &cobra.Command{
		Use:   "start",
		Short: "Start the assessment server",
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

	var redisClient *redis.Client
	if cfg.Redis.Addr != "" {
		redisClient = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
	}

	var pool *pgxpool.Pool
	var bunDB *bun.DB
	if cfg.Postgres.URL != "" {
		pool, err = pgxpool.Connect(ctx, cfg.Postgres.URL)
		if err != nil {
			return err
		}
		sqldb := sql.OpenDB(pgdriver.NewConnector(pgdriver.WithDSN(cfg.Postgres.URL)))
		bunDB = bun.NewDB(sqldb, pgdialect.New())
	}

	var loader memory.QuizLoader = memory.NewStaticQuizLoader(sampleQuizzes())
	if pool != nil {
		loader = pgstore.NewQuizLoader(pool)
	}

	quizTTL := config.TTLDuration(cfg.Quiz.TTL, 10*time.Minute)
	var quizRepo app.QuizRepository
	if redisClient != nil {
		quizRepo = redisrepo.NewQuizRepository(redisClient, loader, quizTTL)
	} else {
		quizRepo = memory.NewQuizRepository(loader, quizTTL)
	}

	var sessions app.SessionRepository = memory.NewSessionStore()
	var certificates app.CertificateStore = memory.NewCertificateStore()
	if bunDB != nil {
		sessions = pgstore.NewSessionStore(bunDB)
		certificates = pgstore.NewCertificateStore(bunDB)
	}

	secret := cfg.Auth.JWTSecret
	if secret == "" {
		secret = "dev-secret"
		log.Printf("auth.jwtSecret not configured, using development secret")
	}
	verifier := auth.NewVerifier(secret)

	engine := grading.NewEngine(grading.ParsePolicy(cfg.Quiz.OpenEndedPolicy))
	gate := app.NewCertificateGate(certificates)
	grace := config.TTLDuration(cfg.Quiz.Grace, 30*time.Second)
	service := app.NewAssessmentService(quizRepo, sessions, gate, engine, app.WithGrace(grace))

	handler := transport.NewHandler(service, verifier)
	mux := handler.Routes()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("ok"))
	})

	server := &http.Server{
		Addr:         ":" + finalPort,
		Handler:      mux,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
	}

	sweepCtx, stopSweep := context.WithCancel(ctx)
	defer stopSweep()
	go sweepLoop(sweepCtx, service, config.TTLDuration(cfg.Quiz.SweepInterval, time.Minute))

	go func() {
		log.Printf("starting assessment service on :%s", finalPort)
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

// sweepLoop periodically expires abandoned sessions whose deadline passed.
func sweepLoop(ctx context.Context, service *app.AssessmentService, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			expired, err := service.SweepExpired(ctx)
			if err != nil {
				log.Printf("expiry sweep failed: %v", err)
				continue
			}
			if expired > 0 {
				log.Printf("expired %d overdue sessions", expired)
			}
		}
	}
}

// sampleQuizzes provides demo content for running without Postgres; real
// deployments read quiz documents seeded by the portal's authoring side.
func sampleQuizzes() map[string]domain.QuizDefinition {
	return map[string]domain.QuizDefinition{
		"phishing-basics": {
			ID:    "phishing-basics",
			Title: "Phishing Basics",
			Questions: []domain.Question{
				{
					ID:   "q1",
					Text: "An email urges you to reset your bank password via an embedded link. What should you do first?",
					Type: domain.MultipleChoice,
					Options: []string{
						"Click the link and reset quickly",
						"Check the sender address and navigate to the bank site manually",
						"Forward it to colleagues to warn them",
					},
					Points:        5,
					CorrectAnswer: 1,
					Explanation:   "Never follow embedded credential links; type the known address yourself.",
				},
				{
					ID:            "q2",
					Text:          "Attackers can spoof the display name of an email sender.",
					Type:          domain.TrueFalse,
					Options:       []string{"True", "False"},
					Points:        5,
					CorrectAnswer: 0,
				},
				{
					ID:     "q3",
					Text:   "Describe one sign that a login page might be fraudulent.",
					Type:   domain.OpenEnded,
					Points: 2,
				},
			},
			TimeLimitMinutes:    10,
			PassingScorePercent: 50,
			AllowRetries:        true,
			CertificateEnabled:  true,
			Published:           true,
		},
	}
}
