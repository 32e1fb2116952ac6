// 本文件用于主机资源概览采集 供健康检查接口输出
package sysinfo

import (
	"os"
	"sync"
	"time"

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/host"
	"github.com/shirou/gopsutil/v3/mem"

	"manifest-watch/internal/models"
)

const defaultCacheTTL = 1 * time.Second

// Options 用于配置采集器的默认行为
type Options struct {
	CacheTTL time.Duration
	DataDir  string //共享数据目录 剩余空间按该目录所在分区统计
}

type cpuSample struct {
	total float64
	idle  float64
}

// Collector 负责采集主机资源概览
type Collector struct {
	mu       sync.Mutex
	cacheTTL time.Duration
	dataDir  string

	lastStatus   models.SystemStatus
	lastStatusAt time.Time

	lastCPU cpuSample
}

// NewCollector 创建系统信息采集器
func NewCollector(opts Options) *Collector {
	cacheTTL := opts.CacheTTL
	if cacheTTL <= 0 {
		cacheTTL = defaultCacheTTL
	}
	return &Collector{
		cacheTTL: cacheTTL,
		dataDir:  opts.DataDir,
	}
}

// Status 返回主机资源概览 短时间内重复调用返回缓存结果
func (c *Collector) Status() models.SystemStatus {
	if c == nil {
		return models.SystemStatus{}
	}
	now := time.Now()

	c.mu.Lock()
	if now.Sub(c.lastStatusAt) < c.cacheTTL && !c.lastStatusAt.IsZero() {
		status := c.lastStatus
		c.mu.Unlock()
		return status
	}
	prevCPU := c.lastCPU
	c.mu.Unlock()

	hostName, uptime := collectHostInfo()
	cpuUsage, currCPU := collectCPUUsage(prevCPU)
	memUsage := collectMemUsage()
	freeMB := collectDataDirFreeMB(c.dataDir)

	status := models.SystemStatus{
		Hostname:      hostName,
		UptimeSeconds: uptime,
		CPUPercent:    cpuUsage,
		MemPercent:    memUsage,
		DataDirFreeMB: freeMB,
	}

	c.mu.Lock()
	c.lastStatus = status
	c.lastStatusAt = now
	c.lastCPU = currCPU
	c.mu.Unlock()

	return status
}

func collectHostInfo() (string, uint64) {
	info, err := host.Info()
	if err != nil {
		name, _ := os.Hostname()
		return name, 0
	}
	return info.Hostname, info.Uptime
}

func collectCPUUsage(prev cpuSample) (float64, cpuSample) {
	times, err := cpu.Times(false)
	if err != nil || len(times) == 0 {
		return 0, cpuSample{}
	}
	curr := cpuSample{
		total: sumCPUTimes(times[0]),
		idle:  times[0].Idle + times[0].Iowait,
	}
	if prev.total <= 0 {
		// 第一次采样用短间隔获取更接近实时的 CPU 使用率
		percents, err := cpu.Percent(120*time.Millisecond, false)
		if err == nil && len(percents) > 0 {
			return clampPct(percents[0]), curr
		}
	}
	deltaTotal := curr.total - prev.total
	deltaIdle := curr.idle - prev.idle
	if deltaTotal > 0 {
		// 通过总量差值计算整体 CPU 使用率，避免每次阻塞采样
		used := (deltaTotal - deltaIdle) / deltaTotal * 100
		return clampPct(used), curr
	}
	return 0, curr
}

func collectMemUsage() float64 {
	vm, err := mem.VirtualMemory()
	if err != nil {
		return 0
	}
	return clampPct(vm.UsedPercent)
}

func collectDataDirFreeMB(dir string) uint64 {
	if dir == "" {
		return 0
	}
	freeBytes, err := dataDirFreeBytes(dir)
	if err != nil {
		return 0
	}
	return freeBytes / (1024 * 1024)
}

func sumCPUTimes(t cpu.TimesStat) float64 {
	return t.User + t.System + t.Idle + t.Nice + t.Iowait + t.Irq + t.Softirq + t.Steal + t.Guest + t.GuestNice
}

func clampPct(value float64) float64 {
	if value < 0 {
		return 0
	}
	if value > 100 {
		return 100
	}
	return value
}
