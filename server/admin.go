package server

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"fpsync/protocol"
)

// adminConfig 管理接口的配置载荷，时长以毫秒表示
type adminConfig struct {
	TickPeriodMs      *int64 `json:"tickPeriodMs,omitempty"`
	LivenessTimeoutMs *int64 `json:"livenessTimeoutMs,omitempty"`
	MaxPlayers        *int   `json:"maxPlayers,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func msPtr(d time.Duration) *int64 {
	v := d.Milliseconds()
	return &v
}

// HandleAdminConfig 提供配置的读取与更新（热更新基本规则）
// GET /admin/config  返回当前配置
// POST /admin/config 以 JSON 载荷更新部分字段，在下一次轮询时生效
func (s *Server) HandleAdminConfig(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		cfg := s.Config()
		maxPlayers := cfg.MaxPlayers
		writeJSON(w, http.StatusOK, adminConfig{
			TickPeriodMs:      msPtr(cfg.TickPeriod),
			LivenessTimeoutMs: msPtr(cfg.LivenessTimeout),
			MaxPlayers:        &maxPlayers,
		})
	case http.MethodPost:
		var body adminConfig
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			http.Error(w, "invalid json", http.StatusBadRequest)
			return
		}
		var patch ConfigPatch
		if body.TickPeriodMs != nil {
			if *body.TickPeriodMs <= 0 {
				http.Error(w, "tickPeriodMs must be positive", http.StatusBadRequest)
				return
			}
			d := time.Duration(*body.TickPeriodMs) * time.Millisecond
			patch.TickPeriod = &d
		}
		if body.LivenessTimeoutMs != nil {
			if *body.LivenessTimeoutMs <= 0 {
				http.Error(w, "livenessTimeoutMs must be positive", http.StatusBadRequest)
				return
			}
			d := time.Duration(*body.LivenessTimeoutMs) * time.Millisecond
			patch.LivenessTimeout = &d
		}
		if body.MaxPlayers != nil {
			if *body.MaxPlayers <= 0 || *body.MaxPlayers > protocol.MaxSnapshotPlayers {
				http.Error(w, fmt.Sprintf("maxPlayers must be in 1..%d", protocol.MaxSnapshotPlayers), http.StatusBadRequest)
				return
			}
			patch.MaxPlayers = body.MaxPlayers
		}
		if err := s.UpdateConfig(patch); err != nil {
			http.Error(w, err.Error(), http.StatusServiceUnavailable)
			return
		}
		writeJSON(w, http.StatusAccepted, map[string]any{"ok": true})
	default:
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

// HandleMetrics 输出运行指标
// GET /metrics
func (s *Server) HandleMetrics(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"metrics":    s.metrics.Snapshot(),
		"spectators": s.spectators.Len(),
	})
}

// HandlePlayers 输出最近一次广播的玩家列表
// GET /players
func (s *Server) HandlePlayers(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.LatestFrame())
}

// Routes 注册管理、监控与观战接口
func (s *Server) Routes(mux *http.ServeMux) {
	mux.HandleFunc("/admin/config", s.HandleAdminConfig)
	mux.HandleFunc("/metrics", s.HandleMetrics)
	mux.HandleFunc("/players", s.HandlePlayers)
	mux.HandleFunc("/ws", s.spectators.HandleWS)
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("ok"))
	})
}
