package output

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/fatih/color"
)

// summaryStates 运行汇总行中各状态的顺序
var summaryStates = []string{"DONE", "UP_TO_DATE", "FAILED", "UPSTREAM_FAILED", "CANCELLED"}

// PrintJSON 输出JSON格式
func PrintJSON(data interface{}) error {
	return PrintJSONTo(os.Stdout, data)
}

// PrintJSONTo 输出JSON到指定Writer
func PrintJSONTo(w io.Writer, data interface{}) error {
	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	return encoder.Encode(data)
}

// RunSummary 输出一次运行的汇总行，只列出数量大于0的状态
// 例如: Run 1b2c: ✅ SUCCESS (DONE=5, UP_TO_DATE=1)
func RunSummary(w io.Writer, runID, status string, counts map[string]int) {
	parts := make([]string, 0, len(summaryStates))
	for _, state := range summaryStates {
		if n := counts[state]; n > 0 {
			parts = append(parts, stateColor(state).Sprintf("%s=%d", state, n))
		}
	}
	fmt.Fprintf(w, "\nRun %s: %s (%s)\n", runID, stateColor(status).Sprint(FormatState(status)), strings.Join(parts, ", "))
}

func stateColor(state string) *color.Color {
	switch state {
	case "DONE", "SUCCESS":
		return color.New(color.FgGreen)
	case "UP_TO_DATE":
		return color.New(color.FgCyan)
	case "FAILED", "UPSTREAM_FAILED":
		return color.New(color.FgRed)
	case "CANCELLED":
		return color.New(color.FgYellow)
	default:
		return color.New(color.Reset)
	}
}

// Success 输出成功消息
func Success(format string, args ...interface{}) {
	green := color.New(color.FgGreen, color.Bold)
	green.Printf("✅ "+format+"\n", args...)
}

// Error 输出错误消息到标准错误
func Error(format string, args ...interface{}) {
	red := color.New(color.FgRed, color.Bold)
	red.Fprintf(os.Stderr, "❌ "+format+"\n", args...)
}

// Info 输出信息
func Info(format string, args ...interface{}) {
	cyan := color.New(color.FgCyan)
	cyan.Printf("ℹ️  "+format+"\n", args...)
}

// Warning 输出警告
func Warning(format string, args ...interface{}) {
	yellow := color.New(color.FgYellow)
	yellow.Printf("⚠️  "+format+"\n", args...)
}
