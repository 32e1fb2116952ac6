// 本文件用于定义共享状态引擎的错误分类
package alerterr

import "errors"

// 所有错误通过 %w 包装 由调用方用 errors.Is 判定分类
var (
	// ErrStorageUnavailable 网络路径不可达或读取超时 调用方应退回缓存或默认值
	ErrStorageUnavailable = errors.New("shared storage unavailable")
	// ErrRecordCorrupt 共享文件解析失败 原始内容已另存备份
	ErrRecordCorrupt = errors.New("shared record corrupt")
	// ErrAlreadyAcknowledged 同一日期同一承运商重复确认
	ErrAlreadyAcknowledged = errors.New("carrier already acknowledged")
	// ErrConfigurationInvalid 清单配置条目非法
	ErrConfigurationInvalid = errors.New("manifest configuration invalid")
)
