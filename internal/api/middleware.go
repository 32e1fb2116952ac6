// 本文件用于 API 的跨域与令牌校验中间件
package api

import (
	"net"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"strings"

	"manifest-watch/internal/models"
)

// authDisabled 判断令牌校验是否关闭
// 未配置令牌 占位符未展开 或显式关闭时均视为关闭
func authDisabled(cfg *models.Config) bool {
	if disabled, err := strconv.ParseBool(os.Getenv("API_AUTH_DISABLED")); err == nil && disabled {
		return true
	}
	if cfg == nil {
		return true
	}
	token := strings.TrimSpace(cfg.APIAuthToken)
	if token == "" {
		return true
	}
	if strings.HasPrefix(token, "${") && strings.HasSuffix(token, "}") {
		return true
	}
	return false
}

// withAPIAuth 校验 Bearer 令牌 未启用令牌时直接放行
func withAPIAuth(cfg *models.Config, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if authDisabled(cfg) {
			next.ServeHTTP(w, r)
			return
		}
		token := strings.TrimSpace(cfg.APIAuthToken)
		header := strings.TrimSpace(r.Header.Get("Authorization"))
		if header != "Bearer "+token {
			writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "unauthorized"})
			return
		}
		next.ServeHTTP(w, r)
	})
}

// withCORS 处理跨域请求
// 配置了白名单时只放行名单内来源 未配置时的默认策略见 originAllowed
func withCORS(cfg *models.Config, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := strings.TrimSpace(r.Header.Get("Origin"))
		if origin == "" {
			next.ServeHTTP(w, r)
			return
		}
		if !originAllowed(cfg, r, origin) {
			writeJSON(w, http.StatusForbidden, map[string]string{"error": "origin not allowed"})
			return
		}
		w.Header().Set("Access-Control-Allow-Origin", origin)
		w.Header().Set("Vary", "Origin")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type,Authorization")
		w.Header().Set("Access-Control-Allow-Methods", "GET,POST,OPTIONS")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// originAllowed 未配置白名单时：令牌校验关闭放行任意来源
// 令牌校验开启只放行回环地址与同主机来源 避免看板令牌被任意站点套取
func originAllowed(cfg *models.Config, r *http.Request, origin string) bool {
	allowList := splitOrigins(cfg)
	if len(allowList) > 0 {
		for _, allowed := range allowList {
			if strings.EqualFold(allowed, origin) {
				return true
			}
		}
		return false
	}
	if authDisabled(cfg) {
		return true
	}
	parsed, err := url.Parse(origin)
	if err != nil || parsed.Host == "" {
		return false
	}
	host := parsed.Hostname()
	switch host {
	case "localhost", "127.0.0.1", "::1":
		return true
	}
	requestHost := r.Host
	if splitHost, _, err := net.SplitHostPort(requestHost); err == nil {
		requestHost = splitHost
	}
	return strings.EqualFold(host, requestHost)
}

func splitOrigins(cfg *models.Config) []string {
	if cfg == nil {
		return nil
	}
	raw := strings.ReplaceAll(cfg.APICORSOrigins, ";", ",")
	parts := strings.Split(raw, ",")
	origins := make([]string, 0, len(parts))
	for _, part := range parts {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			origins = append(origins, trimmed)
		}
	}
	return origins
}
