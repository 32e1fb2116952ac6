//go:build !windows
// +build !windows

// 本文件用于类 Unix 系统的分区剩余空间读取
package sysinfo

import "golang.org/x/sys/unix"

// dataDirFreeBytes 返回目录所在分区对非特权进程可用的剩余字节数
func dataDirFreeBytes(dir string) (uint64, error) {
	var stat unix.Statfs_t
	if err := unix.Statfs(dir, &stat); err != nil {
		return 0, err
	}
	return uint64(stat.Bavail) * uint64(stat.Bsize), nil
}
