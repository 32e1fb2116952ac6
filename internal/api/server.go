// 本文件用于 API 服务的路由装配与进程内生命周期
package api

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"manifest-watch/internal/logger"
	"manifest-watch/internal/models"
	"manifest-watch/internal/service"
)

// Server 封装 HTTP API 服务
type Server struct {
	httpServer *http.Server
}

type handler struct {
	cfg *models.Config
	svc *service.AlertService
}

// NewServer 构建面向看板与运维控制台的 HTTP 服务
func NewServer(cfg *models.Config, svc *service.AlertService) *Server {
	h := &handler{cfg: cfg, svc: svc}
	mux := http.NewServeMux()
	mux.HandleFunc("/api/board", h.board)
	mux.HandleFunc("/api/acknowledge", h.acknowledge)
	mux.HandleFunc("/api/acknowledge/clear", h.clearAcknowledge)
	mux.HandleFunc("/api/mute", h.mute)
	mux.HandleFunc("/api/mute/extend", h.extendMute)
	mux.HandleFunc("/api/reload", h.reload)
	mux.HandleFunc("/api/history", h.history)
	mux.HandleFunc("/api/health", h.health)
	mux.HandleFunc("/metrics", h.prometheusMetrics)

	srv := &http.Server{
		Addr:         cfg.APIBind,
		Handler:      withCORS(cfg, withAPIAuth(cfg, mux)),
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
	}
	return &Server{httpServer: srv}
}

// Start 异步启动 API 服务
func (s *Server) Start() {
	go func() {
		logger.Info("API 服务监听 %s", s.httpServer.Addr)
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("API 服务异常退出: %v", err)
		}
	}()
}

// Shutdown 优雅停止 API 服务
func (s *Server) Shutdown(ctx context.Context) error {
	if s.httpServer == nil {
		return nil
	}
	return s.httpServer.Shutdown(ctx)
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
