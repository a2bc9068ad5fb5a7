package accounts

import (
	"fmt"
)

// Logger is the minimal structured logging surface the package needs. The
// glog loggers from goliatone/go-logger satisfy it directly.
type Logger interface {
	Debug(message string, args ...any)
	Info(message string, args ...any)
	Warn(message string, args ...any)
	Error(message string, args ...any)
}

type defLogger struct{}

func (d defLogger) Error(message string, args ...any) {
	fmt.Printf("[ERR] ACCOUNTS "+newline(message), args...)
}

func (d defLogger) Warn(message string, args ...any) {
	fmt.Printf("[WRN] ACCOUNTS "+newline(message), args...)
}

func (d defLogger) Info(message string, args ...any) {
	fmt.Printf("[INF] ACCOUNTS "+newline(message), args...)
}

func (d defLogger) Debug(message string, args ...any) {
	fmt.Printf("[DBG] ACCOUNTS "+newline(message), args...)
}

func newline(s string) string {
	if len(s) > 0 && s[len(s)-1] != '\n' {
		s += "\n"
	}
	return s
}
