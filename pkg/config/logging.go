package config

import (
	"log"
	"sync/atomic"
)

var debugEnabled atomic.Bool

// SetLogLevel 根据 general.log_level 打开或关闭调试日志
func SetLogLevel(level string) {
	debugEnabled.Store(level == "debug")
}

// DebugEnabled 是否输出调试日志
func DebugEnabled() bool {
	return debugEnabled.Load()
}

// Debugf 仅在 log_level=debug 时输出
func Debugf(format string, args ...any) {
	if debugEnabled.Load() {
		log.Printf("🔍 "+format, args...)
	}
}
