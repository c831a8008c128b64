package appinfo

import (
	"time"
)

var (
	Name        = "mockproxy"
	Title       = "Mock Proxy"
	Description = "Programmable HTTP/1.1, HTTP/2 and WebSocket intercepting mock proxy."

	// Application version
	Version = "0.1.0"

	StartTime = time.Now()
)
