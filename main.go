package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	"github.com/rs/cors"
	"golang.org/x/sync/errgroup"

	"md-fashion-studio/modules/common/config"
	"md-fashion-studio/modules/common/redis"
	"md-fashion-studio/modules/common/storage"
	"md-fashion-studio/modules/export"
	"md-fashion-studio/modules/generation"
	"md-fashion-studio/modules/realtime"
	"md-fashion-studio/modules/tryon"
)

const cleanupInterval = 30 * time.Minute

type server struct {
	manager *tryon.Manager
	hub     *realtime.Hub
}

// 헬스 체크 엔드포인트
func healthCheck(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(map[string]string{
		"status":  "healthy",
		"service": "md-fashion-studio",
	})
}

// 서버 메트릭 조회 엔드포인트
func (s *server) getMetrics(w http.ResponseWriter, r *http.Request) {
	metrics := s.manager.Metrics()
	currentClients, totalConnections := s.hub.Stats()

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"server": map[string]interface{}{
			"uptime":           time.Since(metrics.StartTime).String(),
			"startTime":        metrics.StartTime,
			"totalSessions":    metrics.TotalSessions,
			"activeSessions":   metrics.ActiveSessions,
			"expiredSessions":  metrics.ExpiredSessions,
			"totalConnections": totalConnections,
			"currentClients":   currentClients,
		},
		"sessions": s.manager.Sessions(),
	})
}

// 만료 세션 강제 정리 (관리자용)
func (s *server) forceCleanupSessions(w http.ResponseWriter, r *http.Request) {
	cleaned := s.manager.CleanupExpired()

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"status":  "Cleanup completed",
		"cleaned": cleaned,
	})
}

func main() {
	if err := run(); err != nil {
		log.Fatalf("❌ Server stopped with error: %v", err)
	}
}

func run() error {
	// 환경변수 로드
	cfg, err := config.LoadConfig()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Gemini 생성 서비스
	generator, err := generation.NewService(ctx, cfg)
	if err != nil {
		return fmt.Errorf("failed to initialize generation service: %w", err)
	}

	hub := realtime.NewHub(cfg.AllowedOrigins)

	// 이벤트 발행 (Redis 설정 시 인스턴스 간 중계)
	var publisher tryon.Publisher = hub
	var relay *realtime.Relay
	if cfg.RedisEnabled() {
		if rdb := redis.Connect(cfg); rdb != nil {
			defer rdb.Close()
			relay = realtime.NewRelay(hub, rdb, cfg.SessionIdleTimeout)
			publisher = relay
			log.Println("✅ Redis event relay enabled")
		} else {
			log.Println("⚠️ Redis unavailable, events stay on this instance")
		}
	}

	// 결과 보관 (Supabase 설정 시)
	archiver := export.NewArchiver(storage.NewClient(cfg))
	if !archiver.Enabled() {
		log.Println("ℹ️ Supabase not configured, export archive disabled")
	}

	manager := tryon.NewManager(generator, tryon.NewMemoryGuard(), publisher, cfg.SessionIdleTimeout, cfg.SessionMaxAge)
	hub.SetSnapshotSource(func(sessionID string) (any, bool) {
		if session, err := manager.Get(sessionID); err == nil {
			return session.Controller.Snapshot(), true
		}
		// 다른 인스턴스가 소유한 세션은 캐시된 상태로
		if relay != nil {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if snap, ok := relay.Snapshot(ctx, sessionID); ok {
				return snap, true
			}
		}
		return nil, false
	})

	srv := &server{manager: manager, hub: hub}

	// 라우터 설정
	r := mux.NewRouter()
	r.HandleFunc("/", healthCheck).Methods("GET")
	r.HandleFunc("/health", healthCheck).Methods("GET")
	r.HandleFunc("/metrics", srv.getMetrics).Methods("GET")
	r.HandleFunc("/admin/cleanup", srv.forceCleanupSessions).Methods("POST")
	r.HandleFunc("/ws", hub.ServeWS)
	tryon.NewHandler(manager, archiver).RegisterRoutes(r)

	// CORS 미들웨어 적용
	c := cors.New(cors.Options{
		AllowedOrigins: cfg.AllowedOrigins,
		AllowedMethods: []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Content-Type", "Authorization"},
	})

	httpServer := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           c.Handler(r),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gCtx := errgroup.WithContext(ctx)

	// 세션 정리 루틴
	g.Go(func() error {
		return manager.StartCleanupRoutine(gCtx, cleanupInterval)
	})

	// Redis 이벤트 구독
	if relay != nil {
		g.Go(func() error {
			return relay.Run(gCtx)
		})
	}

	g.Go(func() error {
		log.Printf("🚀 MD Fashion Studio server starting on port %s", cfg.Port)
		log.Printf("📡 WebSocket endpoint: ws://localhost:%s/ws?session={id}", cfg.Port)
		log.Printf("❤️  Health check: http://localhost:%s/health", cfg.Port)
		log.Printf("📊 Metrics: http://localhost:%s/metrics", cfg.Port)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server failed: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-gCtx.Done()
		log.Println("🛑 Shutting down server...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return httpServer.Shutdown(shutdownCtx)
	})

	return g.Wait()
}
