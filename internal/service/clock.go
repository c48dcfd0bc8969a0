package service

import "time"

// Clock 时间源，测试中可注入固定时间
type Clock interface {
	Now() time.Time
}

type SystemClock struct{}

func (SystemClock) Now() time.Time {
	return time.Now().UTC()
}

// ClockFunc 适配普通函数为 Clock
type ClockFunc func() time.Time

func (f ClockFunc) Now() time.Time {
	return f()
}
