package models

import "time"

// ContentType distinguishes the two kinds of viewable content.
type ContentType string

const (
	ContentFile    ContentType = "file"
	ContentProfile ContentType = "profile"
)

// IsValid checks if the content type is one of the supported enum values.
func (c ContentType) IsValid() bool {
	return c == ContentFile || c == ContentProfile
}

// String returns the string representation.
func (c ContentType) String() string {
	return string(c)
}

// TimePeriod is the trending window selector.
type TimePeriod string

const (
	Period24h TimePeriod = "24h"
	Period7d  TimePeriod = "7d"
	Period30d TimePeriod = "30d"
)

// IsValid checks if the time period is one of the supported enum values.
func (p TimePeriod) IsValid() bool {
	switch p {
	case Period24h, Period7d, Period30d:
		return true
	}
	return false
}

// Cutoff returns the start of the trending window relative to now.
func (p TimePeriod) Cutoff(now time.Time) time.Time {
	switch p {
	case Period7d:
		return now.AddDate(0, 0, -7)
	case Period30d:
		return now.AddDate(0, 0, -30)
	default:
		return now.Add(-24 * time.Hour)
	}
}

// ViewEvent is the client-supplied portion of a view record. It exists only
// for the duration of the recording call.
type ViewEvent struct {
	UserAgent string `json:"user_agent"`
	Referer   string `json:"referer,omitempty"`
}

// FileView records a single view of an uploaded file. The viewer IP is
// stored hashed, never raw.
type FileView struct {
	ID        int64     `json:"id"`
	UploadID  int64     `json:"upload_id"`
	ViewerIP  string    `json:"viewer_ip"`
	UserAgent string    `json:"user_agent,omitempty"`
	Referer   string    `json:"referer,omitempty"`
	Country   string    `json:"country,omitempty"`
	ViewedAt  time.Time `json:"viewed_at"`
}

// ProfileView records a single visit to a user profile page.
type ProfileView struct {
	ID            int64     `json:"id"`
	ProfileUserID int64     `json:"profile_user_id"`
	ViewerIP      string    `json:"viewer_ip"`
	ViewerUserID  int64     `json:"viewer_user_id,omitempty"` // 0 when anonymous
	UserAgent     string    `json:"user_agent,omitempty"`
	Referer       string    `json:"referer,omitempty"`
	Country       string    `json:"country,omitempty"`
	ViewedAt      time.Time `json:"viewed_at"`
}

// ViewSummary is a daily rollup of views for one piece of content, produced
// by the aggregation job to keep trending queries cheap.
type ViewSummary struct {
	ID            int64       `json:"id"`
	ContentType   ContentType `json:"content_type"`
	ContentID     int64       `json:"content_id"`
	Date          time.Time   `json:"date"` // truncated to day, UTC
	ViewCount     int64       `json:"view_count"`
	UniqueViewers int64       `json:"unique_viewers"`
}

// ViewStats is the lightweight per-content counter surface.
type ViewStats struct {
	TotalViews    int64      `json:"total_views"`
	UniqueViewers int64      `json:"unique_viewers"`
	LastViewed    *time.Time `json:"last_viewed,omitempty"`
}

// RecentView is the privacy-safe projection of a raw view row.
type RecentView struct {
	ViewedAt     time.Time `json:"viewed_at"`
	Country      string    `json:"country,omitempty"`
	Referer      string    `json:"referer,omitempty"`
	ViewerUserID int64     `json:"viewer_user_id,omitempty"`
}

// CountBucket is a generic label/count pair for breakdowns.
type CountBucket struct {
	Label string `json:"label"`
	Views int64  `json:"views"`
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

// AdminOverview is the site-wide snapshot served to administrators.
type AdminOverview struct {
	FileViewsToday    int64           `json:"file_views_today"`
	ProfileViewsToday int64           `json:"profile_views_today"`
	ActiveFiles       int64           `json:"active_files"`
	ActiveProfiles    int64           `json:"active_profiles"`
	TrendingFiles     []TrendingEntry `json:"trending_files"`
	TrendingProfiles  []TrendingEntry `json:"trending_profiles"`
	GeneratedAt       time.Time       `json:"generated_at"`
}
