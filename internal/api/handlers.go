// 本文件用于看板与操作接口的请求处理
package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"manifest-watch/internal/alerterr"
	"manifest-watch/internal/metrics"
)

const defaultHistoryDays = 14

func (h *handler) board(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
		return
	}
	writeJSON(w, http.StatusOK, h.svc.Board())
}

func (h *handler) acknowledge(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
		return
	}
	var req struct {
		Time    string `json:"time"`
		Carrier string `json:"carrier"`
		User    string `json:"user"`
		Reason  string `json:"reason"`
		Edit    bool   `json:"edit"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || strings.TrimSpace(req.Time) == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid payload"})
		return
	}

	// 不带承运商时确认整个班次
	if strings.TrimSpace(req.Carrier) == "" {
		records, err := h.svc.AcknowledgeManifest(req.Time, req.User, req.Reason)
		if err != nil {
			writeJSON(w, ackErrorStatus(err), map[string]string{"error": err.Error()})
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"ok":           true,
			"acknowledged": len(records),
			"records":      records,
		})
		return
	}

	record, err := h.svc.Acknowledge(req.Time, req.Carrier, req.User, req.Reason, req.Edit)
	if err != nil {
		writeJSON(w, ackErrorStatus(err), map[string]string{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"ok":     true,
		"record": record,
	})
}

func (h *handler) clearAcknowledge(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
		return
	}
	var req struct {
		Time    string `json:"time"`
		Carrier string `json:"carrier"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || strings.TrimSpace(req.Time) == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid payload"})
		return
	}
	removed, err := h.svc.ClearAcknowledgment(req.Time, req.Carrier)
	if err != nil {
		writeJSON(w, ackErrorStatus(err), map[string]string{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"ok":      true,
		"removed": removed,
	})
}

func (h *handler) mute(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		muted, by, record, remaining := h.svc.MuteStatus()
		writeJSON(w, http.StatusOK, map[string]any{
			"muted":            muted,
			"mutedBy":          by,
			"record":           record,
			"remainingSeconds": int(remaining.Seconds()),
		})
	case http.MethodPost:
		var req struct {
			Muted   bool   `json:"muted"`
			User    string `json:"user"`
			Minutes int    `json:"minutes"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid payload"})
			return
		}
		record, err := h.svc.ToggleMute(req.Muted, req.User, req.Minutes)
		if err != nil {
			writeJSON(w, ackErrorStatus(err), map[string]string{"error": err.Error()})
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"ok":     true,
			"record": record,
		})
	default:
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
	}
}

func (h *handler) extendMute(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
		return
	}
	var req struct {
		User    string `json:"user"`
		Minutes int    `json:"minutes"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Minutes <= 0 {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid payload"})
		return
	}
	record, err := h.svc.ExtendMute(req.User, req.Minutes)
	if err != nil {
		writeJSON(w, ackErrorStatus(err), map[string]string{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"ok":     true,
		"record": record,
	})
}

func (h *handler) reload(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
		return
	}
	h.svc.ReloadConfiguration()
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

func (h *handler) history(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
		return
	}
	date := strings.TrimSpace(r.URL.Query().Get("date"))
	if date != "" {
		records, err := h.svc.HistoryByDate(date)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"date":    date,
			"records": records,
		})
		return
	}
	days := defaultHistoryDays
	if raw := strings.TrimSpace(r.URL.Query().Get("days")); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid days"})
			return
		}
		days = parsed
	}
	stats, err := h.svc.HistoryRecentDays(days)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"days": stats})
}

func (h *handler) health(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
		return
	}
	writeJSON(w, http.StatusOK, h.svc.Health())
}

func (h *handler) prometheusMetrics(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
		return
	}
	w.Header().Set("Content-Type", "text/plain; version=0.0.4; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(metrics.MustGlobalPrometheus()))
}

// ackErrorStatus 把服务层错误映射为 HTTP 状态码
func ackErrorStatus(err error) int {
	switch {
	case errors.Is(err, alerterr.ErrAlreadyAcknowledged):
		return http.StatusConflict
	case errors.Is(err, alerterr.ErrStorageUnavailable):
		return http.StatusServiceUnavailable
	default:
		return http.StatusBadRequest
	}
}
