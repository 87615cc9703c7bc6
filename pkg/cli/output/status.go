package output

// FormatState 格式化任务或运行状态
func FormatState(state string) string {
	if icon := StateIcon(state); icon != "" {
		return icon + " " + state
	}
	return state
}

// StateIcon 状态图标
func StateIcon(state string) string {
	switch state {
	case "DONE", "SUCCESS":
		return "✅"
	case "UP_TO_DATE":
		return "⏭️"
	case "FAILED":
		return "❌"
	case "UPSTREAM_FAILED":
		return "⛔"
	case "CANCELLED":
		return "🛑"
	case "RUNNING":
		return "🔄"
	case "PENDING":
		return "⏳"
	default:
		return ""
	}
}
