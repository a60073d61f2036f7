package main

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v3"
	"github.com/redis/go-redis/v9"

	"github.com/TryMightyAI/decoy/pkg/agent"
	"github.com/TryMightyAI/decoy/pkg/config"
	"github.com/TryMightyAI/decoy/pkg/detect"
	"github.com/TryMightyAI/decoy/pkg/engage"
	"github.com/TryMightyAI/decoy/pkg/intel"
	"github.com/TryMightyAI/decoy/pkg/notify"
	"github.com/TryMightyAI/decoy/pkg/patterns"
	"github.com/TryMightyAI/decoy/pkg/session"
	"github.com/TryMightyAI/decoy/pkg/storage"
)

const Version = "0.1.0"

// Components holds the assembled service. Redis, Postgres and the LLM are
// all optional and degrade gracefully: the honeypot keeps answering with the
// rule classifier and canned replies even when everything external is down.
type Components struct {
	store      *session.Store
	archiver   *storage.PostgresArchiver // nil when no durable tier
	dispatcher *notify.Dispatcher
	engine     *engage.Engine
	config     *config.Config
}

func NewComponents(cfg *config.Config) *Components {
	if cfg == nil {
		cfg = config.NewDefaultConfig()
	}

	c := &Components{config: cfg}

	// Extra suspicious keywords - optional
	if cfg.KeywordFile != "" {
		if err := patterns.Get().LoadKeywordFile(cfg.KeywordFile); err != nil {
			log.Printf("○ Keyword overlay disabled (load failed: %v)", err)
		} else {
			log.Printf("✓ Keyword overlay loaded (%s)", cfg.KeywordFile)
		}
	}

	// Session fast tier (redis) - optional
	storeOpts := []session.Option{
		session.WithTTL(cfg.SessionTTL),
		session.WithMirrorConcurrency(cfg.MirrorConcurrency),
	}
	if cfg.RedisURL != "" {
		if rdb := connectRedis(cfg.RedisURL); rdb != nil {
			storeOpts = append(storeOpts, session.WithRedis(rdb))
			log.Println("✓ Session fast tier enabled (redis)")
		} else {
			log.Println("○ Session fast tier disabled - using process-local storage (single instance only)")
		}
	} else {
		log.Println("○ Session fast tier disabled - using process-local storage (single instance only)")
	}

	// Durable tier (postgres) - optional
	if cfg.PostgresDSN != "" {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		archiver, err := storage.NewPostgresArchiver(ctx, cfg.PostgresDSN)
		cancel()
		if err != nil {
			log.Printf("○ Durable tier disabled (init failed: %v)", err)
		} else {
			c.archiver = archiver
			storeOpts = append(storeOpts, session.WithArchiver(archiver))
			log.Println("✓ Durable tier enabled (postgres)")
		}
	} else {
		log.Println("○ Durable tier disabled (no DSN configured)")
	}

	c.store = session.New(storeOpts...)

	// Reply generation (LLM) - optional
	var responder *agent.Responder
	if cfg.LLMProvider != config.ProviderNone &&
		(cfg.LLMAPIKey != "" || cfg.LLMProvider == config.ProviderOllama || cfg.LLMProvider == config.ProviderCustom) {
		responder = agent.NewResponder(agent.Config{
			Provider:    agent.Provider(cfg.LLMProvider),
			APIKey:      cfg.LLMAPIKey,
			Model:       cfg.LLMModel,
			BaseURL:     cfg.LLMBaseURL,
			Temperature: cfg.LLMTemperature,
		})
		log.Printf("✓ Reply generation enabled (provider: %s)", cfg.LLMProvider)
	} else {
		log.Println("○ Reply generation disabled (no API key) - using canned fallback replies")
	}

	c.dispatcher = notify.NewDispatcher(cfg.CallbackURL, cfg.CallbackQueueSize)
	c.engine = engage.New(c.store, responder, c.dispatcher)

	log.Printf("✓ Pattern registry ready (%d patterns across %d categories)",
		patterns.Get().TotalPatterns(), len(patterns.ScamCategories))

	return c
}

// Close drains in-flight work: queued callbacks first, then pending durable
// mirrors, then the pool.
func (c *Components) Close() {
	c.dispatcher.Close()
	c.store.Close()
	if c.archiver != nil {
		c.archiver.Close()
	}
}

func connectRedis(rawURL string) *redis.Client {
	opts, err := redis.ParseURL(rawURL)
	if err != nil {
		log.Printf("[STARTUP] invalid redis URL: %v", err)
		return nil
	}
	rdb := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		log.Printf("[STARTUP] redis unreachable: %v", err)
		_ = rdb.Close()
		return nil
	}
	return rdb
}

func main() {
	log.SetFlags(log.LstdFlags | log.Lshortfile)

	cmd := "serve"
	if len(os.Args) > 1 {
		cmd = os.Args[1]
	}

	switch cmd {
	case "serve":
		runServer()
	case "classify":
		if len(os.Args) < 3 {
			fmt.Println("Usage: honeypot classify <text>")
			os.Exit(1)
		}
		runCLIClassify(strings.Join(os.Args[2:], " "))
	case "version":
		fmt.Printf("Decoy Honeypot v%s\n", Version)
	default:
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Printf("Decoy Honeypot v%s - Scam Engagement API\n\n", Version)
	fmt.Println("Usage:")
	fmt.Println("  honeypot serve             Start HTTP server (default: 8080)")
	fmt.Println("  honeypot classify <text>   Classify text with the rule engine")
	fmt.Println("  honeypot version           Show version")
	fmt.Println("")
	fmt.Println("Environment Variables:")
	fmt.Println("  DECOY_PORT           HTTP listen port")
	fmt.Println("  DECOY_API_KEY        API key required on every request")
	fmt.Println("  DECOY_REDIS_URL      Session fast tier (redis://...)")
	fmt.Println("  DECOY_POSTGRES_DSN   Durable tier (postgres://...)")
	fmt.Println("  DECOY_CALLBACK_URL   Evaluation callback endpoint")
	fmt.Println("  DECOY_LLM_API_KEY    API key for reply generation")
	fmt.Println("  DECOY_LLM_PROVIDER   Provider: openrouter, ollama, groq, custom, none")
}

func runServer() {
	cfg := config.NewDefaultConfig()
	cfg.MustValidate()

	comps := NewComponents(cfg)

	app := fiber.New(fiber.Config{
		AppName: "Decoy Honeypot",
	})

	// Health check - unauthenticated so load balancers can probe it
	app.Get("/health", func(c fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "healthy", "service": "honeypot-api", "version": Version})
	})

	api := app.Group("/api", apiKeyAuth(cfg.APIKey))

	api.Post("/detect-scam", func(c fiber.Ctx) error {
		var req engage.TurnRequest
		if err := c.Bind().Body(&req); err != nil {
			return c.Status(400).JSON(fiber.Map{"status": "error", "error": "invalid request body"})
		}
		if req.SessionID == "" {
			return c.Status(400).JSON(fiber.Map{"status": "error", "error": "sessionId is required"})
		}
		if req.Message.Text == "" {
			return c.Status(400).JSON(fiber.Map{"status": "error", "error": "message.text is required"})
		}

		result, err := comps.engine.HandleTurn(c.Context(), req)
		if err != nil {
			log.Printf("[API] detect-scam failed for session %s: %v", req.SessionID, err)
			return c.Status(500).JSON(fiber.Map{"status": "error", "error": "internal server error"})
		}
		return c.JSON(result)
	})

	api.Get("/session/:id", func(c fiber.Ctx) error {
		conv, err := comps.engine.Snapshot(c.Context(), c.Params("id"))
		if err != nil {
			log.Printf("[API] session lookup failed: %v", err)
			return c.Status(500).JSON(fiber.Map{"status": "error", "error": "internal server error"})
		}
		if conv == nil {
			return c.Status(404).JSON(fiber.Map{"status": "error", "error": "session not found"})
		}
		return c.JSON(fiber.Map{"status": "success", "data": conv})
	})

	api.Post("/reset-session/:id", func(c fiber.Ctx) error {
		id := c.Params("id")
		if err := comps.engine.Reset(c.Context(), id); err != nil {
			log.Printf("[API] reset failed for session %s: %v", id, err)
			return c.Status(500).JSON(fiber.Map{"status": "error", "error": "internal server error"})
		}
		return c.JSON(fiber.Map{"status": "success", "message": fmt.Sprintf("Session %s reset", id)})
	})

	// Serve in the background so shutdown can drain queued callbacks and
	// durable mirrors before exit.
	go func() {
		log.Printf("Decoy Honeypot v%s listening on :%s", Version, cfg.Port)
		log.Printf("Endpoints:")
		log.Printf("  GET  /health                  - Health check")
		log.Printf("  POST /api/detect-scam         - Detect and engage")
		log.Printf("  GET  /api/session/:id         - Session snapshot")
		log.Printf("  POST /api/reset-session/:id   - Reset a session")
		if err := app.Listen(":" + cfg.Port); err != nil {
			log.Fatal(err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("[SHUTDOWN] draining...")
	if err := app.Shutdown(); err != nil {
		log.Printf("[SHUTDOWN] server shutdown: %v", err)
	}
	comps.Close()
	log.Println("[SHUTDOWN] done")
}

// apiKeyAuth rejects requests whose x-api-key header does not match. An
// empty configured key disables auth for local development; MustValidate
// already refuses that in production.
func apiKeyAuth(key string) fiber.Handler {
	if key == "" {
		log.Println("[STARTUP] Warning: DECOY_API_KEY not set - API authentication disabled")
		return func(c fiber.Ctx) error { return c.Next() }
	}
	expected := []byte(key)
	return func(c fiber.Ctx) error {
		got := []byte(c.Get("x-api-key"))
		if subtle.ConstantTimeCompare(expected, got) != 1 {
			return c.Status(401).JSON(fiber.Map{"status": "error", "error": "invalid or missing API key"})
		}
		return c.Next()
	}
}

func runCLIClassify(text string) {
	lang := patterns.ResolveLanguage(config.GetEnv("DECOY_LANGUAGE", "English"))

	verdict := detect.Classify(text, lang)
	evidence := intel.Extract(text, lang)

	out, _ := json.MarshalIndent(fiber.Map{
		"verdict":  verdict,
		"evidence": evidence,
	}, "", "  ")
	fmt.Println(string(out))
}
