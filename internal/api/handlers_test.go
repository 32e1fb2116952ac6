// 本文件用于看板与操作接口的测试用例
package api

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"manifest-watch/internal/alert"
	"manifest-watch/internal/models"
	"manifest-watch/internal/service"
	"manifest-watch/internal/state"
)

func newTestHandler(t *testing.T) *handler {
	t.Helper()
	dir := t.TempDir()
	configJSON := `{"manifests":[{"time":"08:00","carriers":["顺丰","圆通"]},{"time":"16:30","carriers":["中通"]}]}`
	if err := os.WriteFile(filepath.Join(dir, "config.json"), []byte(configJSON), 0o644); err != nil {
		t.Fatalf("写入清单配置失败: %v", err)
	}
	off := false
	cfg := &models.Config{
		DataDir:               dir,
		AckFile:               "acknowledgments.json",
		MuteFile:              "mute_status.json",
		ManifestFile:          "config.json",
		OperatorName:          "测试员",
		AlertWindow:           "30m",
		FastCacheTTL:          "5s",
		NetworkCacheTTL:       "30s",
		ReadTimeout:           "1s",
		FastRefreshInterval:   "10s",
		NormalRefreshInterval: "30s",
		AckCooldown:           "60s",
		ReadWorkers:           2,
		WatchEnabled:          &off,
		HistoryEnabled:        &off,
	}
	svc, err := service.NewAlertService(cfg, "")
	if err != nil {
		t.Fatalf("构建告警服务失败: %v", err)
	}
	t.Cleanup(func() { _ = svc.Stop() })
	return &handler{cfg: cfg, svc: svc}
}

func postJSON(t *testing.T, h http.HandlerFunc, target, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, target, strings.NewReader(body))
	rec := httptest.NewRecorder()
	h(rec, req)
	return rec
}

func TestAcknowledgeHandler_SingleCarrier(t *testing.T) {
	h := newTestHandler(t)

	rec := postJSON(t, h.acknowledge, "/api/acknowledge",
		`{"time":"08:00","carrier":"顺丰","user":"张三","reason":"车辆晚到"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("首次确认期望 200 实际 %d: %s", rec.Code, rec.Body.String())
	}
	var resp struct {
		OK     bool             `json:"ok"`
		Record models.AckRecord `json:"record"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("解析响应失败: %v", err)
	}
	if !resp.OK || resp.Record.Carrier != "顺丰" || resp.Record.User != "张三" {
		t.Fatalf("响应内容不符: %+v", resp)
	}

	rec = postJSON(t, h.acknowledge, "/api/acknowledge",
		`{"time":"08:00","carrier":"顺丰","user":"李四"}`)
	if rec.Code != http.StatusConflict {
		t.Fatalf("重复确认期望 409 实际 %d", rec.Code)
	}
}

func TestAcknowledgeHandler_WholeManifest(t *testing.T) {
	h := newTestHandler(t)

	rec := postJSON(t, h.acknowledge, "/api/acknowledge", `{"time":"08:00","user":"张三"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("整班确认期望 200 实际 %d: %s", rec.Code, rec.Body.String())
	}
	var resp struct {
		Acknowledged int `json:"acknowledged"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("解析响应失败: %v", err)
	}
	if resp.Acknowledged != 2 {
		t.Fatalf("应确认两个承运商 实际 %d", resp.Acknowledged)
	}
}

func TestAcknowledgeHandler_InvalidPayload(t *testing.T) {
	h := newTestHandler(t)

	rec := postJSON(t, h.acknowledge, "/api/acknowledge", `{bad-json`)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("非法负载期望 400 实际 %d", rec.Code)
	}
	rec = postJSON(t, h.acknowledge, "/api/acknowledge", `{"carrier":"顺丰"}`)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("缺少班次时刻期望 400 实际 %d", rec.Code)
	}

	req := httptest.NewRequest(http.MethodGet, "/api/acknowledge", nil)
	rec2 := httptest.NewRecorder()
	h.acknowledge(rec2, req)
	if rec2.Code != http.StatusMethodNotAllowed {
		t.Fatalf("GET 确认期望 405 实际 %d", rec2.Code)
	}
}

func TestClearAcknowledgeHandler(t *testing.T) {
	h := newTestHandler(t)

	postJSON(t, h.acknowledge, "/api/acknowledge", `{"time":"08:00","user":"张三"}`)
	rec := postJSON(t, h.clearAcknowledge, "/api/acknowledge/clear", `{"time":"08:00"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("整班撤销期望 200 实际 %d: %s", rec.Code, rec.Body.String())
	}
	var resp struct {
		Removed int `json:"removed"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("解析响应失败: %v", err)
	}
	if resp.Removed != 2 {
		t.Fatalf("应撤销两条记录 实际 %d", resp.Removed)
	}
}

func TestMuteHandler_ReadYourWrites(t *testing.T) {
	h := newTestHandler(t)

	rec := postJSON(t, h.mute, "/api/mute", `{"muted":true,"user":"王五","minutes":10}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("设置静音期望 200 实际 %d: %s", rec.Code, rec.Body.String())
	}

	req := httptest.NewRequest(http.MethodGet, "/api/mute", nil)
	rec2 := httptest.NewRecorder()
	h.mute(rec2, req)
	if rec2.Code != http.StatusOK {
		t.Fatalf("查询静音期望 200 实际 %d", rec2.Code)
	}
	var status struct {
		Muted            bool   `json:"muted"`
		MutedBy          string `json:"mutedBy"`
		RemainingSeconds int    `json:"remainingSeconds"`
	}
	if err := json.Unmarshal(rec2.Body.Bytes(), &status); err != nil {
		t.Fatalf("解析响应失败: %v", err)
	}
	if !status.Muted || status.MutedBy != "王五" {
		t.Fatalf("写入后应立即读到静音: %+v", status)
	}
	if status.RemainingSeconds <= 0 || status.RemainingSeconds > 600 {
		t.Fatalf("剩余秒数不符: %d", status.RemainingSeconds)
	}
}

func TestExtendMuteHandler_RequiresPositiveMinutes(t *testing.T) {
	h := newTestHandler(t)

	rec := postJSON(t, h.extendMute, "/api/mute/extend", `{"user":"王五","minutes":0}`)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("零分钟延长期望 400 实际 %d", rec.Code)
	}
}

func TestBoardHandler_ReturnsSnapshot(t *testing.T) {
	h := newTestHandler(t)

	snapshots := make(chan alert.Snapshot, 1)
	h.svc.Subscribe(func(s alert.Snapshot) {
		select {
		case snapshots <- s:
		default:
		}
	})
	if err := h.svc.Start(); err != nil {
		t.Fatalf("启动服务失败: %v", err)
	}
	select {
	case <-snapshots:
	case <-time.After(3 * time.Second):
		t.Fatal("等待首轮快照超时")
	}

	req := httptest.NewRequest(http.MethodGet, "/api/board", nil)
	rec := httptest.NewRecorder()
	h.board(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("看板接口期望 200 实际 %d", rec.Code)
	}
	var board state.BoardData
	if err := json.Unmarshal(rec.Body.Bytes(), &board); err != nil {
		t.Fatalf("解析看板数据失败: %v", err)
	}
	if board.Date != models.FormatDate(time.Now()) || len(board.Alerts) != 2 {
		t.Fatalf("看板数据不符: date=%s alerts=%d", board.Date, len(board.Alerts))
	}
}

func TestHistoryHandler_DisabledReturnsError(t *testing.T) {
	h := newTestHandler(t)

	req := httptest.NewRequest(http.MethodGet, "/api/history?date=2026-02-14", nil)
	rec := httptest.NewRecorder()
	h.history(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("历史未启用期望 400 实际 %d", rec.Code)
	}
}

func TestHealthHandler(t *testing.T) {
	h := newTestHandler(t)

	req := httptest.NewRequest(http.MethodGet, "/api/health", nil)
	rec := httptest.NewRecorder()
	h.health(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("健康接口期望 200 实际 %d", rec.Code)
	}
	var health models.HealthSnapshot
	if err := json.Unmarshal(rec.Body.Bytes(), &health); err != nil {
		t.Fatalf("解析健康数据失败: %v", err)
	}
	if health.AckStore.StoreFile == "" {
		t.Fatal("健康数据应包含确认存储路径")
	}
}

func TestReloadHandler(t *testing.T) {
	h := newTestHandler(t)

	rec := postJSON(t, h.reload, "/api/reload", ``)
	if rec.Code != http.StatusOK {
		t.Fatalf("重载接口期望 200 实际 %d", rec.Code)
	}
}
