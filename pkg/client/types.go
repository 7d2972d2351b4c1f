package client

import "time"

// ContentType distinguishes the two kinds of viewable content.
type ContentType string

const (
	ContentFile    ContentType = "file"
	ContentProfile ContentType = "profile"
)

// TimePeriod selects a trending window.
type TimePeriod string

const (
	Period24h TimePeriod = "24h"
	Period7d  TimePeriod = "7d"
	Period30d TimePeriod = "30d"
)

// ViewEvent is the client-supplied portion of a view record. It exists
// only for the duration of the recording call and is discarded after the
// request resolves or fails.
type ViewEvent struct {
	UserAgent string `json:"user_agent,omitempty"`
	Referer   string `json:"referer,omitempty"`
}

// ViewStats is the lightweight per-content counter surface.
type ViewStats struct {
	TotalViews    int64      `json:"total_views"`
	UniqueViewers int64      `json:"unique_viewers"`
	LastViewed    *time.Time `json:"last_viewed,omitempty"`
}

// CountBucket is a label/count pair in a breakdown.
type CountBucket struct {
	Label string `json:"label"`
	Views int64  `json:"views"`
}

// RecentView is one privacy-safe recent view record.
type RecentView struct {
	ViewedAt     time.Time `json:"viewed_at"`
	Country      string    `json:"country,omitempty"`
	Referer      string    `json:"referer,omitempty"`
	ViewerUserID int64     `json:"viewer_user_id,omitempty"`
}

// ViewAnalytics is the full analytics payload for one piece of content.
type ViewAnalytics struct {
	ContentID      int64         `json:"content_id"`
	ContentType    ContentType   `json:"content_type"`
	TotalViews     int64         `json:"total_views"`
	UniqueViewers  int64         `json:"unique_viewers"`
	ViewsToday     int64         `json:"views_today"`
	ViewsThisWeek  int64         `json:"views_this_week"`
	ViewsThisMonth int64         `json:"views_this_month"`
	RecentViews    []RecentView  `json:"recent_views"`
	TopCountries   []CountBucket `json:"top_countries"`
	TopBrowsers    []CountBucket `json:"top_browsers"`
}

// TrendingEntry is one ranked item in a trending list.
type TrendingEntry struct {
	ContentID     int64 `json:"content_id"`
	ViewCount     int64 `json:"view_count"`
	UniqueViewers int64 `json:"unique_viewers"`
}

// TrendingContent holds the ranked files and profiles for a window.
type TrendingContent struct {
	TrendingFiles    []TrendingEntry `json:"trending_files"`
	TrendingProfiles []TrendingEntry `json:"trending_profiles"`
	TimePeriod       TimePeriod      `json:"time_period"`
}
