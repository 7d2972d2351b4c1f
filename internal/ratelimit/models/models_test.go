package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestClassForPath(t *testing.T) {
	tests := []struct {
		path string
		want EndpointClass
	}{
		{"/api/auth/login", ClassAuth},
		{"/api/auth/register", ClassAuth},
		{"/api/upload", ClassUpload},
		{"/api/upload/chunk", ClassUpload},
		{"/api/analytics/admin/overview", ClassAdmin},
		{"/api/ratelimit/admin/blocked-ips", ClassAdmin},
		{"/api/analytics/views/file/42", ClassAPI},
		{"/api/analytics/trending", ClassAPI},
		{"/", ClassAPI},
	}
	for _, tt := range tests {
		require.Equal(t, tt.want, ClassForPath(tt.path), tt.path)
	}
}

func TestLimitsWindows(t *testing.T) {
	windows := Limits{PerMinute: 5, PerHour: 20}.Windows()
	require.Len(t, windows, 2)
	require.Equal(t, Window{Label: "1m", Duration: time.Minute, Limit: 5}, windows[0])
	require.Equal(t, Window{Label: "1h", Duration: time.Hour, Limit: 20}, windows[1])
}

func TestKeySanitization(t *testing.T) {
	require.Equal(t, "ratelimit:ip:api:1m:203.0.113.7", IPKey(ClassAPI, "1m", "203.0.113.7"))
	require.Equal(t, "ratelimit:ip:api:1m:2001_db8__1", IPKey(ClassAPI, "1m", "2001:db8::1"))
	require.Equal(t, "ratelimit:user:auth:1h:42", UserKey(ClassAuth, "1h", "42"))
	require.Equal(t, "ratelimit:user:api:1m:a_b", UserKey(ClassAPI, "1m", "a:b"))
}
