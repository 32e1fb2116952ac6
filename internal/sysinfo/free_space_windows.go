//go:build windows
// +build windows

// 本文件用于 Windows 下的分区剩余空间读取
package sysinfo

import "github.com/shirou/gopsutil/v3/disk"

// dataDirFreeBytes 返回目录所在分区的剩余字节数
func dataDirFreeBytes(dir string) (uint64, error) {
	usage, err := disk.Usage(dir)
	if err != nil {
		return 0, err
	}
	return usage.Free, nil
}
