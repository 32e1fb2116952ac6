// 本文件用于时间源注入 便于测试模拟时钟
package clock

import "time"

// Clock 提供当前时间
type Clock interface {
	Now() time.Time
}

// System 返回使用本机时钟的时间源
func System() Clock {
	return systemClock{}
}

type systemClock struct{}

func (systemClock) Now() time.Time {
	return time.Now()
}
