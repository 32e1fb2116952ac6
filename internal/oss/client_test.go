package oss

import (
	"context"
	"io"
	"strings"
	"testing"

	"manifest-watch/internal/models"
)

func TestNormalizeOSSEndpoint(t *testing.T) {
	cases := []struct {
		name       string
		endpoint   string
		disableSSL bool
		want       string
		wantErr    bool
	}{
		{
			name:     "with scheme",
			endpoint: "https://oss-cn-hangzhou.aliyuncs.com",
			want:     "https://oss-cn-hangzhou.aliyuncs.com",
		},
		{
			name:     "bare host defaults https",
			endpoint: "oss-cn-hangzhou.aliyuncs.com",
			want:     "https://oss-cn-hangzhou.aliyuncs.com",
		},
		{
			name:       "bare host ssl disabled",
			endpoint:   "oss-cn-hangzhou.aliyuncs.com",
			disableSSL: true,
			want:       "http://oss-cn-hangzhou.aliyuncs.com",
		},
		{
			name:     "trailing slash trimmed",
			endpoint: "oss-cn-hangzhou.aliyuncs.com/",
			want:     "https://oss-cn-hangzhou.aliyuncs.com",
		},
		{
			name:     "spaces trimmed",
			endpoint: "  oss-internal.example.com  ",
			want:     "https://oss-internal.example.com",
		},
		{
			name:     "empty",
			endpoint: "   ",
			wantErr:  true,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := normalizeOSSEndpoint(tc.endpoint, tc.disableSSL)
			if tc.wantErr {
				if err == nil {
					t.Fatalf("expected error, got %s", got)
				}
				return
			}
			if err != nil {
				t.Fatalf("expected no error, got %v", err)
			}
			if got != tc.want {
				t.Fatalf("expected %s, got %s", tc.want, got)
			}
		})
	}
}

func TestBuildObjectKey(t *testing.T) {
	cases := []struct {
		name     string
		hostName string
		filePath string
		want     string
	}{
		{
			name:     "normal archive",
			hostName: "warehouse-01",
			filePath: "/share/acknowledgments-2026-02-14.json",
			want:     "manifest-alerts/warehouse-01/acknowledgments-2026-02-14.json",
		},
		{
			name:     "empty host falls back",
			hostName: "",
			filePath: "/share/acknowledgments-2026-02-14.json",
			want:     "manifest-alerts/unknown-host/acknowledgments-2026-02-14.json",
		},
		{
			name:     "empty path keeps prefix",
			hostName: "warehouse-01",
			filePath: "   ",
			want:     "manifest-alerts/warehouse-01",
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			c := &Client{hostName: tc.hostName}
			got := c.buildObjectKey(tc.filePath)
			if got != tc.want {
				t.Fatalf("expected %s, got %s", tc.want, got)
			}
		})
	}
}

func TestBuildDownloadURL(t *testing.T) {
	c := &Client{
		endpoint: "https://oss-cn-hangzhou.aliyuncs.com",
		config:   &models.Config{Bucket: "manifest-archive"},
	}
	got := c.buildDownloadURL("manifest-alerts/warehouse-01/acknowledgments-2026-02-14.json")
	want := "https://manifest-archive.oss-cn-hangzhou.aliyuncs.com/manifest-alerts/warehouse-01/acknowledgments-2026-02-14.json"
	if got != want {
		t.Fatalf("expected %s, got %s", want, got)
	}
}

func TestContextReader(t *testing.T) {
	t.Run("cancelled context stops read", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		r := &contextReader{ctx: ctx, reader: strings.NewReader("payload")}
		buf := make([]byte, 4)
		if _, err := r.Read(buf); err != context.Canceled {
			t.Fatalf("expected context.Canceled, got %v", err)
		}
	})

	t.Run("nil reader returns EOF", func(t *testing.T) {
		r := &contextReader{ctx: context.Background()}
		buf := make([]byte, 4)
		if _, err := r.Read(buf); err != io.EOF {
			t.Fatalf("expected io.EOF, got %v", err)
		}
	})

	t.Run("passthrough", func(t *testing.T) {
		r := &contextReader{ctx: context.Background(), reader: strings.NewReader("ok")}
		data, err := io.ReadAll(r)
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if string(data) != "ok" {
			t.Fatalf("expected ok, got %s", string(data))
		}
	})
}
