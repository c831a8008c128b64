package logger

import (
	"fmt"
	"net/http"
	"time"
)

import (
	"github.com/fatih/color"
	"github.com/gofiber/fiber/v2"
)

// StartupMessage prints the banner shown once at process start.
func StartupMessage(version string) {
	banner := color.New(color.FgHiMagenta, color.Bold)
	fmt.Println(banner.Sprintf("mockproxy v%s", version))
}

// GetServerHost returns the formatted listener URL, cyan for console output.
func GetServerHost(port string) string {
	serverUrlColor := color.New(color.FgCyan).SprintFunc()
	_host := "localhost"
	serverUrl := fmt.Sprintf("http://%s%s", _host, port)

	return serverUrlColor(serverUrl)
}

// LogServerStart prints a standardized success message when the listener binds.
func LogServerStart(port string) {
	LogSuccess(fmt.Sprintf("Proxy listening on %s", GetServerHost(port)), 1)
}

// LogRoute logs one intercepted request: method, path, matched rule id (if
// any), status, and handling duration.
func LogRoute(method, path, ruleID string, status int, duration time.Duration) {
	methodColors := map[string]*color.Color{
		"GET":     color.New(color.FgHiGreen),
		"POST":    color.New(color.FgHiCyan),
		"PUT":     color.New(color.FgYellow),
		"DELETE":  color.New(color.FgHiRed),
		"PATCH":   color.New(color.FgMagenta),
		"OPTIONS": color.New(color.FgHiWhite),
	}

	methodColor, ok := methodColors[method]
	if !ok {
		methodColor = color.New(color.FgWhite, color.Bold)
	}

	var statusColor *color.Color
	switch {
	case status >= 500:
		statusColor = color.New(color.FgRed, color.Bold)
	case status >= 400:
		statusColor = color.New(color.FgHiYellow)
	case status >= 300:
		statusColor = color.New(color.FgYellow)
	case status >= 200:
		statusColor = color.New(color.FgGreen)
	default:
		statusColor = color.New(color.FgWhite)
	}

	pathColor := color.New(color.FgHiBlack)
	durationColor := color.New(color.FgMagenta)
	ruleColor := color.New(color.FgHiBlue, color.Bold)

	ruleLog := ""
	if ruleID != "" {
		ruleLog = ruleColor.Sprintf("rule=%s", ruleID)
	} else {
		ruleLog = ruleColor.Sprint("rule=fallback")
	}

	msg := fmt.Sprintf(
		"%s %s %s",
		methodColor.Sprintf("%-7s", method),
		pathColor.Sprint(path),
		ruleLog,
	)

	if status > 0 {
		statusText := http.StatusText(status)
		msg += " " + statusColor.Sprintf("%d %s", status, statusText)
	}

	if duration > 0 {
		msg += " " + durationColor.Sprintf("%.2fms", float64(duration.Microseconds())/1000)
	}

	fmt.Println(msg)
}

// LogEvent logs an event-bus notification (see package events), color-coded
// by topic severity.
func LogEvent(topic string, detail string) {
	var style *color.Color
	switch topic {
	case "abort", "tls-client-error", "client-error":
		style = color.New(color.FgRed)
	case "passthrough-websocket-connect":
		style = color.New(color.FgHiCyan)
	default:
		style = color.New(color.FgBlue)
	}
	fmt.Printf("%s %s\n", style.Sprintf("[event:%s]", topic), detail)
}

// RequestLogger is a Fiber middleware that logs every intercepted request.
func RequestLogger() fiber.Handler {
	return func(c *fiber.Ctx) error {
		start := time.Now()
		err := c.Next()
		duration := time.Since(start)

		status := c.Response().StatusCode()
		method := c.Method()
		path := c.OriginalURL()
		ruleID, _ := c.Locals("ruleID").(string)

		LogRoute(method, path, ruleID, status, duration)
		return err
	}
}

// --- Log Helpers --- //

func LogSuccess(msg string, addEmptyLines ...int) {
	logWithType("OK", successStyle, msg, addEmptyLines...)
}

func LogError(msg string, addEmptyLines ...int) {
	logWithType("ERROR", errorStyle, msg, addEmptyLines...)
}

func LogWarn(msg string, addEmptyLines ...int) {
	logWithType("WARN", warnStyle, msg, addEmptyLines...)
}

func LogInfo(msg string, addEmptyLines ...int) {
	logWithType("INFO", infoStyle, msg, addEmptyLines...)
}
