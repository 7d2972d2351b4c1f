package client

import (
	"net/http"
	"strconv"
)

// Transport wraps an http.RoundTripper and captures X-RateLimit-*
// headers from every response into a Snapshot. The wrapped transport is
// otherwise untouched: requests and bodies pass straight through.
type Transport struct {
	base     http.RoundTripper
	snapshot *Snapshot
}

func NewTransport(base http.RoundTripper, snapshot *Snapshot) *Transport {
	if base == nil {
		base = http.DefaultTransport
	}
	return &Transport{base: base, snapshot: snapshot}
}

func (t *Transport) RoundTrip(req *http.Request) (*http.Response, error) {
	resp, err := t.base.RoundTrip(req)
	if err != nil {
		return resp, err
	}
	if info, ok := parseRateLimitHeaders(resp.Header); ok {
		t.snapshot.Store(info)
	}
	return resp, nil
}

func parseRateLimitHeaders(h http.Header) (RateLimitInfo, bool) {
	limit, err := strconv.Atoi(h.Get("X-RateLimit-Limit"))
	if err != nil {
		return RateLimitInfo{}, false
	}
	remaining, err := strconv.Atoi(h.Get("X-RateLimit-Remaining"))
	if err != nil {
		return RateLimitInfo{}, false
	}
	reset, err := strconv.ParseInt(h.Get("X-RateLimit-Reset"), 10, 64)
	if err != nil {
		return RateLimitInfo{}, false
	}

	info := RateLimitInfo{Limit: limit, Remaining: remaining, Reset: reset}

	// User-scoped headers only appear on authenticated responses.
	if userLimit, err := strconv.Atoi(h.Get("X-RateLimit-UserLimit")); err == nil {
		if userRemaining, err := strconv.Atoi(h.Get("X-RateLimit-UserRemaining")); err == nil {
			info.UserLimit = userLimit
			info.UserRemaining = userRemaining
		}
	}
	return info, true
}
