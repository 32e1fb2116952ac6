// 本文件用于共享确认与静音存储的运维命令入口
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"manifest-watch/internal/ackstore"
	"manifest-watch/internal/archive"
	"manifest-watch/internal/models"
	"manifest-watch/internal/mute"
	"manifest-watch/internal/netio"
	"manifest-watch/internal/pathutil"
	"manifest-watch/internal/sharedstore"
)

const (
	exitCodeOK       = 0
	exitCodeUsage    = 1
	exitCodeStoreErr = 2
	exitCodeDegraded = 3
)

type cliOptions struct {
	dataDir      string
	ackFile      string
	muteFile     string
	manifestFile string
	action       string
	date         string
	manifestTime string
	carrier      string
	user         string
	reason       string
	minutes      int
	window       time.Duration
}

func main() {
	os.Exit(runWithArgs(os.Args[1:], os.Stdout, os.Stderr))
}

func runWithArgs(args []string, stdout io.Writer, stderr io.Writer) int {
	options, err := parseOptions(args, stderr)
	if err != nil {
		fmt.Fprintf(stderr, "ack-admin 参数错误: %v\n", err)
		return exitCodeUsage
	}
	code, err := execute(options, stdout)
	if err == nil {
		return code
	}
	fmt.Fprintf(stderr, "ack-admin 执行失败: %v\n", err)
	return code
}

func parseOptions(args []string, stderr io.Writer) (cliOptions, error) {
	fs := flag.NewFlagSet("ack-admin", flag.ContinueOnError)
	fs.SetOutput(stderr)

	dataDir := fs.String("dir", "", "共享数据目录")
	ackFile := fs.String("ack-file", "acknowledgments.json", "确认记录文件名")
	muteFile := fs.String("mute-file", "mute_status.json", "静音状态文件名")
	manifestFile := fs.String("manifest-file", "config.json", "清单配置文件名")
	action := fs.String("action", "list", "操作类型：list|stats|clear|clear-manifest|archive|mute-status|mute|unmute|check")
	date := fs.String("date", "", "日期 YYYY-MM-DD 默认当天")
	manifestTime := fs.String("time", "", "班次时刻 HH:MM")
	carrier := fs.String("carrier", "", "承运商名称")
	user := fs.String("user", "", "操作员名称")
	reason := fs.String("reason", "", "操作原因")
	minutes := fs.Int("minutes", 0, "静音时长分钟 0 表示无限期")
	window := fs.Duration("window", 30*time.Minute, "告警窗口 迟确认判定用")
	fs.Usage = func() {
		fmt.Fprintln(stderr, "用法：ack-admin -dir <共享目录> -action <list|stats|clear|clear-manifest|archive|mute-status|mute|unmute|check> [选项]")
		fs.PrintDefaults()
	}
	if err := fs.Parse(args); err != nil {
		return cliOptions{}, err
	}

	options := cliOptions{
		dataDir:      pathutil.NormalizeShareDir(*dataDir),
		ackFile:      strings.TrimSpace(*ackFile),
		muteFile:     strings.TrimSpace(*muteFile),
		manifestFile: strings.TrimSpace(*manifestFile),
		action:       strings.ToLower(strings.TrimSpace(*action)),
		date:         strings.TrimSpace(*date),
		manifestTime: strings.TrimSpace(*manifestTime),
		carrier:      strings.TrimSpace(*carrier),
		user:         strings.TrimSpace(*user),
		reason:       strings.TrimSpace(*reason),
		minutes:      *minutes,
		window:       *window,
	}
	if options.dataDir == "" {
		fs.Usage()
		return cliOptions{}, fmt.Errorf("-dir 不能为空")
	}
	if options.date == "" {
		options.date = models.FormatDate(time.Now())
	}

	switch options.action {
	case "list", "stats", "archive", "mute-status", "check":
		return options, nil
	case "clear":
		if options.manifestTime == "" || options.carrier == "" {
			fs.Usage()
			return cliOptions{}, fmt.Errorf("clear 操作必须传入 -time 与 -carrier")
		}
		return options, nil
	case "clear-manifest":
		if options.manifestTime == "" {
			fs.Usage()
			return cliOptions{}, fmt.Errorf("clear-manifest 操作必须传入 -time")
		}
		return options, nil
	case "mute", "unmute":
		if options.user == "" {
			fs.Usage()
			return cliOptions{}, fmt.Errorf("%s 操作必须传入 -user", options.action)
		}
		return options, nil
	default:
		fs.Usage()
		return cliOptions{}, fmt.Errorf("不支持的 action: %s", options.action)
	}
}

func execute(options cliOptions, stdout io.Writer) (int, error) {
	switch options.action {
	case "list":
		return handleList(options, stdout)
	case "stats":
		return handleStats(options, stdout)
	case "clear":
		return handleClear(options, stdout)
	case "clear-manifest":
		return handleClearManifest(options, stdout)
	case "archive":
		return handleArchive(options, stdout)
	case "mute-status":
		return handleMuteStatus(options, stdout)
	case "mute":
		return handleMute(options, stdout, true)
	case "unmute":
		return handleMute(options, stdout, false)
	case "check":
		return handleCheck(options, stdout)
	default:
		return exitCodeUsage, fmt.Errorf("不支持的 action: %s", options.action)
	}
}

func buildAckStore(options cliOptions) (*ackstore.Store, error) {
	file, err := sharedstore.NewFile(filepath.Join(options.dataDir, options.ackFile))
	if err != nil {
		return nil, err
	}
	store := ackstore.New(file)
	if err := store.Refresh(); err != nil {
		return nil, err
	}
	return store, nil
}

func buildMuteCoordinator(options cliOptions) (*mute.Coordinator, *netio.Pool, error) {
	file, err := sharedstore.NewFile(filepath.Join(options.dataDir, options.muteFile))
	if err != nil {
		return nil, nil, err
	}
	pool := netio.NewPool(1, 4)
	coordinator := mute.New(mute.Options{
		File:        file,
		Pool:        pool,
		FastTTL:     time.Second,
		NetworkTTL:  time.Second,
		ReadTimeout: 3 * time.Second,
	})
	return coordinator, pool, nil
}

func handleList(options cliOptions, stdout io.Writer) (int, error) {
	store, err := buildAckStore(options)
	if err != nil {
		return exitCodeStoreErr, err
	}
	records := store.ForDate(options.date)
	fmt.Fprintf(stdout, "date=%s total=%d\n", options.date, len(records))
	for index, rec := range records {
		line := fmt.Sprintf("%d. %s %s user=%s at=%s", index+1, rec.ManifestTime, rec.Carrier, rec.User, rec.Timestamp)
		if rec.Reason != "" {
			line += " reason=" + rec.Reason
		}
		if len(rec.ReasonHistory) > 0 {
			line += fmt.Sprintf(" edits=%d", len(rec.ReasonHistory))
		}
		fmt.Fprintln(stdout, line)
	}
	return exitCodeOK, nil
}

func handleStats(options cliOptions, stdout io.Writer) (int, error) {
	store, err := buildAckStore(options)
	if err != nil {
		return exitCodeStoreErr, err
	}
	stats := store.Stats(options.date, options.window)
	fmt.Fprintf(stdout, "date=%s total=%d late=%d\n", stats.Date, stats.Total, stats.Late)
	for user, count := range stats.ByUser {
		fmt.Fprintf(stdout, "user=%s acks=%d\n", user, count)
	}
	return exitCodeOK, nil
}

func handleClear(options cliOptions, stdout io.Writer) (int, error) {
	store, err := buildAckStore(options)
	if err != nil {
		return exitCodeStoreErr, err
	}
	key := ackstore.Key{Date: options.date, ManifestTime: options.manifestTime, Carrier: options.carrier}
	removed, err := store.Clear(key)
	if err != nil {
		return exitCodeStoreErr, err
	}
	if !removed {
		fmt.Fprintf(stdout, "no record: %s %s %s\n", options.date, options.manifestTime, options.carrier)
		return exitCodeOK, nil
	}
	fmt.Fprintf(stdout, "clear ok: %s %s %s\n", options.date, options.manifestTime, options.carrier)
	return exitCodeOK, nil
}

func handleClearManifest(options cliOptions, stdout io.Writer) (int, error) {
	store, err := buildAckStore(options)
	if err != nil {
		return exitCodeStoreErr, err
	}
	removed, err := store.ClearManifest(options.date, options.manifestTime)
	if err != nil {
		return exitCodeStoreErr, err
	}
	fmt.Fprintf(stdout, "clear-manifest ok: %s %s removed=%d\n", options.date, options.manifestTime, removed)
	return exitCodeOK, nil
}

// handleArchive 把早于指定日期的确认结转到日期归档文件后再清理
func handleArchive(options cliOptions, stdout io.Writer) (int, error) {
	store, err := buildAckStore(options)
	if err != nil {
		return exitCodeStoreErr, err
	}
	older := store.OlderThan(options.date)
	if len(older) == 0 {
		fmt.Fprintf(stdout, "nothing to archive before %s\n", options.date)
		return exitCodeOK, nil
	}
	writer, err := archive.NewWriter(archive.Options{
		Dir:     options.dataDir,
		AckFile: options.ackFile,
		Window:  options.window,
	})
	if err != nil {
		return exitCodeStoreErr, err
	}
	if err := writer.ArchiveDays(older); err != nil {
		return exitCodeStoreErr, err
	}
	moved, err := store.ArchiveBefore(options.date)
	if err != nil {
		return exitCodeStoreErr, err
	}
	for date, records := range moved {
		fmt.Fprintf(stdout, "archived %s: %d records -> %s\n", date, len(records), writer.ArchivePath(date))
	}
	return exitCodeOK, nil
}

func handleMuteStatus(options cliOptions, stdout io.Writer) (int, error) {
	coordinator, pool, err := buildMuteCoordinator(options)
	if err != nil {
		return exitCodeStoreErr, err
	}
	defer pool.Shutdown()

	muted, by := coordinator.IsCurrentlyMuted()
	fmt.Fprintf(stdout, "muted=%t\n", muted)
	if !muted {
		return exitCodeOK, nil
	}
	fmt.Fprintf(stdout, "mutedBy=%s\n", by)
	record := coordinator.Status()
	if record.UnmuteAt == nil {
		fmt.Fprintln(stdout, "until=indefinite")
		return exitCodeOK, nil
	}
	fmt.Fprintf(stdout, "until=%s\n", *record.UnmuteAt)
	if remaining, ok := coordinator.Remaining(); ok {
		fmt.Fprintf(stdout, "remaining=%s\n", remaining.Round(time.Second))
	}
	return exitCodeOK, nil
}

func handleMute(options cliOptions, stdout io.Writer, muted bool) (int, error) {
	coordinator, pool, err := buildMuteCoordinator(options)
	if err != nil {
		return exitCodeStoreErr, err
	}
	defer pool.Shutdown()

	record, err := coordinator.SetMute(muted, options.user, time.Duration(options.minutes)*time.Minute)
	if err != nil {
		return exitCodeStoreErr, err
	}
	if !muted {
		fmt.Fprintf(stdout, "unmute ok: by=%s\n", options.user)
		return exitCodeOK, nil
	}
	if record.UnmuteAt == nil {
		fmt.Fprintf(stdout, "mute ok: by=%s until=indefinite\n", options.user)
	} else {
		fmt.Fprintf(stdout, "mute ok: by=%s until=%s\n", options.user, *record.UnmuteAt)
	}
	return exitCodeOK, nil
}

// handleCheck 逐个加载共享文件并检查降级计数 发现问题返回降级退出码
func handleCheck(options cliOptions, stdout io.Writer) (int, error) {
	checks := []struct {
		name   string
		file   string
		decode func([]byte) error
	}{
		{"acks", options.ackFile, func(data []byte) error {
			var records []models.AckRecord
			return json.Unmarshal(data, &records)
		}},
		{"mute", options.muteFile, func(data []byte) error {
			var record models.MuteRecord
			return json.Unmarshal(data, &record)
		}},
		{"manifests", options.manifestFile, func(data []byte) error {
			var cfg models.ManifestConfig
			return json.Unmarshal(data, &cfg)
		}},
	}

	degraded := false
	for _, check := range checks {
		file, err := sharedstore.NewFile(filepath.Join(options.dataDir, check.file))
		if err != nil {
			return exitCodeStoreErr, err
		}
		if err := file.Load(check.decode); err != nil {
			fmt.Fprintf(stdout, "store=%s status=unreachable error=%v\n", check.name, err)
			degraded = true
			continue
		}
		health := file.Health()
		if health.CorruptFallbackTotal > 0 || health.WriteFailureTotal > 0 {
			fmt.Fprintf(stdout, "store=%s status=degraded corruptFallbacks=%d backupRecovered=%d writeFailures=%d\n",
				check.name, health.CorruptFallbackTotal, health.BackupRecoveredTotal, health.WriteFailureTotal)
			degraded = true
			continue
		}
		fmt.Fprintf(stdout, "store=%s status=ok file=%s\n", check.name, health.StoreFile)
	}
	if degraded {
		return exitCodeDegraded, nil
	}
	return exitCodeOK, nil
}
