package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"qline/internal/broadcast"
	"qline/internal/config"
	"qline/internal/httpapi"
	"qline/internal/hub"
	"qline/internal/queue"
	"qline/internal/relay"
	"qline/internal/store/postgres"
	"qline/internal/telemetry"

	"github.com/google/uuid"
	"github.com/igm/sockjs-go/sockjs"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

func main() {
	cfg := config.Load()
	shutdownTelemetry := telemetry.Setup("qline", cfg.OTLPEndpoint, cfg.OTLPInsecure)
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = shutdownTelemetry(ctx)
	}()

	pool, err := pgxpool.New(context.Background(), cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("db connect: %v", err)
	}
	defer pool.Close()

	location := time.UTC
	if cfg.QueueTimezone != "" {
		loc, err := time.LoadLocation(cfg.QueueTimezone)
		if err != nil {
			log.Fatalf("invalid QUEUE_TIMEZONE %q: %v", cfg.QueueTimezone, err)
		}
		location = loc
	}

	st := postgres.NewStore(pool, postgres.Options{Location: location})
	engine := queue.New(st)

	h := hub.New()
	publishers := broadcast.Fanout{h}
	if cfg.RedisURL != "" {
		redisOpts, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			log.Fatalf("invalid REDIS_URL: %v", err)
		}
		redisClient := redis.NewClient(redisOpts)
		defer redisClient.Close()
		publishers = append(publishers, broadcast.NewRedisPublisher(redisClient, ""))
	}

	relayCtx, stopRelay := context.WithCancel(context.Background())
	defer stopRelay()
	go relay.New(st, publishers, cfg.RelayPollInterval, cfg.RelayBatchSize).Run(relayCtx)

	handler := httpapi.NewHandler(engine)
	limiter := httpapi.NewRateLimiter(httpapi.RateLimitConfig{
		PerMinute: cfg.RateLimitPerMinute,
		Burst:     cfg.RateLimitBurst,
	})

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.Handle("/realtime/", sockjs.NewHandler("/realtime", sockjs.DefaultOptions, func(session sockjs.Session) {
		client := h.Register(uuid.NewString(), 16)
		defer h.Unregister(client)

		go func() {
			for msg := range client.Send {
				_ = session.Send(string(msg))
			}
		}()

		for {
			msg, err := session.Recv()
			if err != nil {
				return
			}
			parsed, ok := hub.ParseSubscribe([]byte(msg))
			if !ok {
				continue
			}
			switch parsed.Action {
			case "subscribe":
				h.Subscribe(client, parsed.Topics)
			case "unsubscribe":
				h.Unsubscribe(client, parsed.Topics)
			}
		}
	}))
	mux.Handle("/", httpapi.LoggingMiddleware(limiter.Middleware(handler.Routes())))

	server := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      otelhttp.NewHandler(mux, "qline"),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Printf("qline listening on %s", server.Addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("server error: %v", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	stopRelay()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		log.Printf("shutdown error: %v", err)
	}
}
