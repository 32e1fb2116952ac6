package dingtalk

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"strings"
	"testing"

	"manifest-watch/internal/models"
)

func TestNewRobotFromConfig(t *testing.T) {
	if robot := NewRobotFromConfig(nil); robot != nil {
		t.Fatalf("expected nil robot for nil config")
	}
	if robot := NewRobotFromConfig(&models.Config{DingTalkWebhook: "   "}); robot != nil {
		t.Fatalf("expected nil robot for blank webhook")
	}
	robot := NewRobotFromConfig(&models.Config{DingTalkWebhook: " https://oapi.dingtalk.com/robot/send?access_token=x ", DingTalkSecret: "sec"})
	if robot == nil {
		t.Fatalf("expected robot")
	}
	if robot.webhook != "https://oapi.dingtalk.com/robot/send?access_token=x" {
		t.Fatalf("webhook not trimmed: %q", robot.webhook)
	}
}

func TestBuildWebhookURLWithoutSecret(t *testing.T) {
	robot := NewRobot("https://oapi.dingtalk.com/robot/send?access_token=x", "")
	got, err := robot.buildWebhookURL()
	if err != nil {
		t.Fatalf("build webhook url failed: %v", err)
	}
	if got != robot.webhook {
		t.Fatalf("unexpected url: %s", got)
	}
}

func TestBuildWebhookURLSignsWithSecret(t *testing.T) {
	secret := "SEC000"
	robot := NewRobot("https://oapi.dingtalk.com/robot/send?access_token=x", secret)
	got, err := robot.buildWebhookURL()
	if err != nil {
		t.Fatalf("build webhook url failed: %v", err)
	}
	parsed, err := url.Parse(got)
	if err != nil {
		t.Fatalf("parse signed url failed: %v", err)
	}
	query := parsed.Query()
	timestamp := query.Get("timestamp")
	sign := query.Get("sign")
	if timestamp == "" || sign == "" {
		t.Fatalf("missing timestamp or sign: %s", got)
	}
	if _, err := strconv.ParseInt(timestamp, 10, 64); err != nil {
		t.Fatalf("timestamp not numeric: %s", timestamp)
	}

	mac := hmac.New(sha256.New, []byte(secret))
	_, _ = mac.Write([]byte(fmt.Sprintf("%s\n%s", timestamp, secret)))
	want := base64.StdEncoding.EncodeToString(mac.Sum(nil))
	if sign != want {
		t.Fatalf("signature mismatch: got %s want %s", sign, want)
	}
	if query.Get("access_token") != "x" {
		t.Fatalf("original query lost: %s", got)
	}
}

func TestSendMarkdown(t *testing.T) {
	var received message
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := json.NewDecoder(r.Body).Decode(&received); err != nil {
			t.Errorf("decode request failed: %v", err)
		}
		_, _ = w.Write([]byte(`{"errcode":0,"errmsg":"ok"}`))
	}))
	defer server.Close()

	robot := NewRobot(server.URL, "")
	if err := robot.SendMarkdown(nil, "截单超时 08:00", "### 截单超时\n\n- 班次: 08:00"); err != nil {
		t.Fatalf("send markdown failed: %v", err)
	}
	if received.MsgType != "markdown" {
		t.Fatalf("unexpected msgtype: %s", received.MsgType)
	}
	if received.Markdown.Title != "截单超时 08:00" {
		t.Fatalf("unexpected title: %s", received.Markdown.Title)
	}
	if !strings.Contains(received.Markdown.Text, "班次: 08:00") {
		t.Fatalf("text missing manifest time: %s", received.Markdown.Text)
	}
}

func TestSendMarkdownDefaultsBlankTitle(t *testing.T) {
	var received message
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewDecoder(r.Body).Decode(&received)
		_, _ = w.Write([]byte(`{"errcode":0,"errmsg":"ok"}`))
	}))
	defer server.Close()

	robot := NewRobot(server.URL, "")
	if err := robot.SendMarkdown(nil, "   ", "正文"); err != nil {
		t.Fatalf("send markdown failed: %v", err)
	}
	if received.Markdown.Title != "通知" {
		t.Fatalf("blank title not defaulted: %q", received.Markdown.Title)
	}
}

func TestSendMarkdownReportsAPIError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"errcode":310000,"errmsg":"sign not match"}`))
	}))
	defer server.Close()

	robot := NewRobot(server.URL, "")
	err := robot.SendMarkdown(nil, "标题", "正文")
	if err == nil {
		t.Fatalf("expected error from dingtalk errcode")
	}
	if !strings.Contains(err.Error(), "310000") {
		t.Fatalf("error missing errcode: %v", err)
	}
}

func TestSendMarkdownRequiresWebhook(t *testing.T) {
	robot := NewRobot("   ", "")
	if err := robot.SendMarkdown(nil, "标题", "正文"); err == nil {
		t.Fatalf("expected error for empty webhook")
	}
}
