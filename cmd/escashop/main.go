package main

import (
	"context"
	"encoding/json"
	"expvar"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/v10ss/escashop/internal/config"
	"github.com/v10ss/escashop/internal/httpapi"
	"github.com/v10ss/escashop/internal/hub"
	"github.com/v10ss/escashop/internal/store"
	"github.com/v10ss/escashop/internal/store/postgres"
	"github.com/v10ss/escashop/internal/telemetry"

	"github.com/google/uuid"
	"github.com/igm/sockjs-go/sockjs"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

type eventEnvelope struct {
	Type      string          `json:"type"`
	Payload   json.RawMessage `json:"payload"`
	CreatedAt time.Time       `json:"created_at"`
}

func main() {
	cfg := config.Load()
	shutdownTelemetry := telemetry.Setup("escashop")
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

	st := postgres.NewStore(pool, postgres.Options{
		AvgServiceMinutes: cfg.AvgServiceMinutes,
	})
	if err := st.EnsureSchema(context.Background()); err != nil {
		log.Fatalf("schema: %v", err)
	}

	handler := httpapi.NewHandler(st, httpapi.Options{
		SessionTTL:  cfg.SessionTTL,
		ResetPolicy: cfg.QueueResetPolicy,
	})
	limiter := httpapi.NewRateLimiter(httpapi.RateLimitConfig{
		PerMinute: cfg.RateLimitPerMinute,
		Burst:     cfg.RateLimitBurst,
	})
	h := hub.New()

	mux := http.NewServeMux()
	mux.Handle("/metrics", expvar.Handler())
	mux.Handle("/realtime/", newRealtimeHandler(st, h))
	mux.Handle("/", httpapi.AuthMiddleware(st, handler.Routes()))

	otelHandler := otelhttp.NewHandler(httpapi.LoggingMiddleware(limiter.Middleware(mux)), "escashop")
	server := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      otelHandler,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Printf("escashop listening on %s", server.Addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("server error: %v", err)
		}
	}()

	go pollOutbox(st, h, cfg.OutboxPollInterval, cfg.OutboxBatchSize)
	go scheduleDailyReset(st, cfg.QueueResetHour, cfg.QueueResetPolicy)

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		log.Printf("shutdown error: %v", err)
	}
}

// newRealtimeHandler serves the sockjs endpoint. Connections must carry
// a valid session; after that clients narrow what they receive with
// subscribe messages.
func newRealtimeHandler(st store.Store, h *hub.Hub) http.Handler {
	return sockjs.NewHandler("/realtime", sockjs.DefaultOptions, func(session sockjs.Session) {
		req := session.Request()
		sessionID := sessionIDFromRequest(req)
		if sessionID == "" {
			_ = session.Close(4001, "missing session")
			return
		}
		if _, _, err := st.GetSession(context.Background(), sessionID); err != nil {
			_ = session.Close(4002, "invalid session")
			return
		}

		client := &hub.Client{ID: uuid.NewString(), Send: make(chan []byte, 16)}
		h.Register(client)
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
			if parsed.Action == "unsubscribe" {
				h.Unsubscribe(client, parsed.Topics)
			} else {
				h.Subscribe(client, parsed.Topics)
			}
		}
	})
}

// pollOutbox tails outbox_events and fans each one out to the hub. The
// cursor is the (created_at, event_id) pair of the last event seen, so
// rows sharing a timestamp across a batch boundary are not skipped. It
// starts at process start; catch-up for missed history goes through
// GET /api/events instead.
func pollOutbox(st store.Store, h *hub.Hub, interval time.Duration, batchSize int) {
	if interval <= 0 {
		interval = time.Second
	}
	if batchSize <= 0 {
		batchSize = 100
	}
	after := time.Now().UTC()
	afterID := ""
	var running int32

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for range ticker.C {
		if !atomic.CompareAndSwapInt32(&running, 0, 1) {
			continue
		}
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		events, err := st.ListOutboxEvents(ctx, after, afterID, batchSize)
		cancel()
		if err != nil {
			log.Printf("outbox poll error: %v", err)
		} else {
			for _, event := range events {
				after = event.CreatedAt
				afterID = event.EventID
				env := eventEnvelope{Type: event.Type, Payload: event.Payload, CreatedAt: event.CreatedAt}
				payload, _ := json.Marshal(env)
				for _, topic := range hub.TopicFor(event.Type) {
					h.Broadcast(topic, payload)
				}
			}
		}
		atomic.StoreInt32(&running, 0)
	}
}

// scheduleDailyReset fires ResetQueue once a day at the configured
// local hour. A negative hour disables the schedule.
func scheduleDailyReset(st store.Store, hour int, policy string) {
	if hour < 0 || hour > 23 {
		return
	}
	for {
		time.Sleep(untilNextHour(time.Now(), hour))
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		result, err := st.ResetQueue(ctx, store.ResetQueueInput{
			Policy:   policy,
			Reason:   "scheduled daily reset",
			OccursAt: time.Now().UTC(),
		})
		cancel()
		if err != nil {
			log.Printf("scheduled reset error: %v", err)
			continue
		}
		log.Printf("scheduled reset policy=%s affected=%d", result.Policy, result.Affected)
	}
}

func untilNextHour(now time.Time, hour int) time.Duration {
	next := time.Date(now.Year(), now.Month(), now.Day(), hour, 0, 0, 0, now.Location())
	if !next.After(now) {
		next = next.AddDate(0, 0, 1)
	}
	return next.Sub(now)
}

func sessionIDFromRequest(r *http.Request) string {
	if r == nil {
		return ""
	}
	if token := bearerToken(r.Header.Get("Authorization")); token != "" {
		return token
	}
	if cookie, err := r.Cookie("escashop_session"); err == nil && cookie.Value != "" {
		return cookie.Value
	}
	return strings.TrimSpace(r.URL.Query().Get("session_id"))
}

func bearerToken(header string) string {
	if header == "" {
		return ""
	}
	parts := strings.Fields(header)
	if len(parts) != 2 {
		return ""
	}
	if strings.ToLower(parts[0]) != "bearer" {
		return ""
	}
	return parts[1]
}
