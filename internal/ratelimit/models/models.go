package models

import (
	"strings"
	"time"
)

// EndpointClass groups endpoints that share rate limits.
type EndpointClass string

const (
	ClassAuth   EndpointClass = "auth"
	ClassUpload EndpointClass = "upload"
	ClassAdmin  EndpointClass = "admin"
	ClassAPI    EndpointClass = "api"
)

// ClassForPath maps a request path to its endpoint class. Anything not
// matched falls into the general API class.
func ClassForPath(path string) EndpointClass {
	switch {
	case strings.HasPrefix(path, "/api/auth"):
		return ClassAuth
	case strings.HasPrefix(path, "/api/upload"):
		return ClassUpload
	case strings.Contains(path, "/admin"):
		return ClassAdmin
	default:
		return ClassAPI
	}
}

// Window is one enforcement window of a class limit.
type Window struct {
	Label    string
	Duration time.Duration
	Limit    int
}

// Limits holds both enforcement windows for one endpoint class.
type Limits struct {
	PerMinute int
	PerHour   int
}

// Windows expands the limits into the concrete enforcement windows.
func (l Limits) Windows() []Window {
	return []Window{
		{Label: "1m", Duration: time.Minute, Limit: l.PerMinute},
		{Label: "1h", Duration: time.Hour, Limit: l.PerHour},
	}
}

// Result is the outcome of a rate limit check. When both the IP and the
// user scope were checked, the headline fields describe the tighter scope
// and UserLimit/UserRemaining carry the user scope separately.
type Result struct {
	Allowed   bool
	Limit     int
	Remaining int
	ResetAt   time.Time

	// RetryAfter is seconds until the client may try again. Zero when
	// the request was allowed.
	RetryAfter int

	// UserLimit and UserRemaining are set only for authenticated checks.
	UserLimit     int
	UserRemaining int
}

// sanitizeSegment keeps user-controlled values from corrupting the key
// structure.
func sanitizeSegment(s string) string {
	return strings.NewReplacer(":", "_", " ", "_", "\n", "_").Replace(s)
}

// IPKey builds the bucket key for an IP scope check.
func IPKey(class EndpointClass, window, ip string) string {
	return "ratelimit:ip:" + string(class) + ":" + window + ":" + sanitizeSegment(ip)
}

// UserKey builds the bucket key for a user scope check.
func UserKey(class EndpointClass, window, userID string) string {
	return "ratelimit:user:" + string(class) + ":" + window + ":" + sanitizeSegment(userID)
}
