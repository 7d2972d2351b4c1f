package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/bulletdrop/analytics/internal/analytics/models"
	"github.com/bulletdrop/analytics/internal/analytics/store"
)

// Store is an in-memory ViewStore and ContentDirectory. It backs unit tests
// and redis-less development deployments.
type Store struct {
	mu sync.RWMutex

	nextID       int64
	fileViews    []models.FileView
	profileViews []models.ProfileView

	summaries map[summaryKey]*models.ViewSummary

	uploads map[int64]int64 // upload ID -> owner user ID
	users   map[int64]bool
}

type summaryKey struct {
	ct  models.ContentType
	id  int64
	day time.Time
}

func New() *Store {
	return &Store{
		summaries: make(map[summaryKey]*models.ViewSummary),
		uploads:   make(map[int64]int64),
		users:     make(map[int64]bool),
	}
}

// RegisterUpload seeds an upload owned by the given user.
func (s *Store) RegisterUpload(uploadID, ownerID int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.uploads[uploadID] = ownerID
}

// RegisterUser seeds a known profile user.
func (s *Store) RegisterUser(userID int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.users[userID] = true
}

func (s *Store) UploadExists(ctx context.Context, uploadID int64) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.uploads[uploadID]
	return ok, nil
}

func (s *Store) UserExists(ctx context.Context, userID int64) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.users[userID], nil
}

func (s *Store) UploadOwner(ctx context.Context, uploadID int64) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	owner, ok := s.uploads[uploadID]
	if !ok {
		return 0, store.ErrNotFound
	}
	return owner, nil
}

func (s *Store) InsertFileView(ctx context.Context, view *models.FileView) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextID++
	view.ID = s.nextID
	s.fileViews = append(s.fileViews, *view)
	return nil
}

func (s *Store) InsertProfileView(ctx context.Context, view *models.ProfileView) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextID++
	view.ID = s.nextID
	s.profileViews = append(s.profileViews, *view)
	return nil
}

func (s *Store) HasRecentProfileView(ctx context.Context, profileUserID int64, viewerIP string, since time.Time) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for i := range s.profileViews {
		v := &s.profileViews[i]
		if v.ProfileUserID == profileUserID && v.ViewerIP == viewerIP && v.ViewedAt.After(since) {
			return true, nil
		}
	}
	return false, nil
}

// row is the shared projection of file and profile views used by the
// aggregate queries below.
type row struct {
	contentID    int64
	viewerIP     string
	userAgent    string
	referer      string
	country      string
	viewerUserID int64
	viewedAt     time.Time
}

func (s *Store) rows(ct models.ContentType) []row {
	if ct == models.ContentFile {
		out := make([]row, 0, len(s.fileViews))
		for i := range s.fileViews {
			v := &s.fileViews[i]
			out = append(out, row{v.UploadID, v.ViewerIP, v.UserAgent, v.Referer, v.Country, 0, v.ViewedAt})
		}
		return out
	}
	out := make([]row, 0, len(s.profileViews))
	for i := range s.profileViews {
		v := &s.profileViews[i]
		out = append(out, row{v.ProfileUserID, v.ViewerIP, v.UserAgent, v.Referer, v.Country, v.ViewerUserID, v.ViewedAt})
	}
	return out
}

func (s *Store) CountViews(ctx context.Context, ct models.ContentType, contentID int64, since time.Time) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var n int64
	for _, r := range s.rows(ct) {
		if r.contentID == contentID && (since.IsZero() || !r.viewedAt.Before(since)) {
			n++
		}
	}
	return n, nil
}

func (s *Store) CountUniqueViewers(ctx context.Context, ct models.ContentType, contentID int64) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	seen := make(map[string]bool)
	for _, r := range s.rows(ct) {
		if r.contentID == contentID {
			seen[r.viewerIP] = true
		}
	}
	return int64(len(seen)), nil
}

func (s *Store) LastViewed(ctx context.Context, ct models.ContentType, contentID int64) (*time.Time, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var last *time.Time
	for _, r := range s.rows(ct) {
		if r.contentID != contentID {
			continue
		}
		t := r.viewedAt
		if last == nil || t.After(*last) {
			last = &t
		}
	}
	return last, nil
}

func (s *Store) RecentViews(ctx context.Context, ct models.ContentType, contentID int64, limit int) ([]models.RecentView, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var matched []row
	for _, r := range s.rows(ct) {
		if r.contentID == contentID {
			matched = append(matched, r)
		}
	}
	sort.Slice(matched, func(i, j int) bool { return matched[i].viewedAt.After(matched[j].viewedAt) })
	if len(matched) > limit {
		matched = matched[:limit]
	}
	out := make([]models.RecentView, 0, len(matched))
	for _, r := range matched {
		out = append(out, models.RecentView{
			ViewedAt:     r.viewedAt,
			Country:      r.country,
			Referer:      r.referer,
			ViewerUserID: r.viewerUserID,
		})
	}
	return out, nil
}

func (s *Store) TopCountries(ctx context.Context, ct models.ContentType, contentID int64, limit int) ([]models.CountBucket, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	counts := make(map[string]int64)
	for _, r := range s.rows(ct) {
		if r.contentID == contentID && r.country != "" {
			counts[r.country]++
		}
	}
	return topBuckets(counts, limit), nil
}

func (s *Store) ListUserAgents(ctx context.Context, ct models.ContentType, contentID int64, limit int) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []string
	for _, r := range s.rows(ct) {
		if r.contentID == contentID && r.userAgent != "" {
			out = append(out, r.userAgent)
			if len(out) == limit {
				break
			}
		}
	}
	return out, nil
}

func (s *Store) Trending(ctx context.Context, ct models.ContentType, cutoff time.Time, limit int) ([]models.TrendingEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	views := make(map[int64]int64)
	unique := make(map[int64]map[string]bool)
	for _, r := range s.rows(ct) {
		if r.viewedAt.Before(cutoff) {
			continue
		}
		views[r.contentID]++
		if unique[r.contentID] == nil {
			unique[r.contentID] = make(map[string]bool)
		}
		unique[r.contentID][r.viewerIP] = true
	}

	entries := make([]models.TrendingEntry, 0, len(views))
	for id, count := range views {
		entries = append(entries, models.TrendingEntry{
			ContentID:     id,
			ViewCount:     count,
			UniqueViewers: int64(len(unique[id])),
		})
	}
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].ViewCount != entries[j].ViewCount {
			return entries[i].ViewCount > entries[j].ViewCount
		}
		return entries[i].ContentID < entries[j].ContentID
	})
	if len(entries) > limit {
		entries = entries[:limit]
	}
	return entries, nil
}

func (s *Store) DailyAggregates(ctx context.Context, ct models.ContentType, start, end time.Time) ([]models.ViewSummary, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	views := make(map[int64]int64)
	unique := make(map[int64]map[string]bool)
	for _, r := range s.rows(ct) {
		if r.viewedAt.Before(start) || !r.viewedAt.Before(end) {
			continue
		}
		views[r.contentID]++
		if unique[r.contentID] == nil {
			unique[r.contentID] = make(map[string]bool)
		}
		unique[r.contentID][r.viewerIP] = true
	}

	out := make([]models.ViewSummary, 0, len(views))
	for id, count := range views {
		out = append(out, models.ViewSummary{
			ContentType:   ct,
			ContentID:     id,
			Date:          store.Day(start),
			ViewCount:     count,
			UniqueViewers: int64(len(unique[id])),
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ContentID < out[j].ContentID })
	return out, nil
}

func (s *Store) UpsertSummary(ctx context.Context, summary *models.ViewSummary) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := summaryKey{summary.ContentType, summary.ContentID, store.Day(summary.Date)}
	cp := *summary
	cp.Date = key.day
	s.summaries[key] = &cp
	return nil
}

func (s *Store) IncrementSummary(ctx context.Context, ct models.ContentType, contentID int64, day time.Time, delta int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := summaryKey{ct, contentID, store.Day(day)}
	if existing := s.summaries[key]; existing != nil {
		existing.ViewCount += delta
		return nil
	}
	s.summaries[key] = &models.ViewSummary{
		ContentType: ct,
		ContentID:   contentID,
		Date:        key.day,
		ViewCount:   delta,
	}
	return nil
}

// Summary returns the stored rollup for tests.
func (s *Store) Summary(ct models.ContentType, contentID int64, day time.Time) *models.ViewSummary {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if sum := s.summaries[summaryKey{ct, contentID, store.Day(day)}]; sum != nil {
		cp := *sum
		return &cp
	}
	return nil
}

func topBuckets(counts map[string]int64, limit int) []models.CountBucket {
	out := make([]models.CountBucket, 0, len(counts))
	for label, n := range counts {
		out = append(out, models.CountBucket{Label: label, Views: n})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Views != out[j].Views {
			return out[i].Views > out[j].Views
		}
		return out[i].Label < out[j].Label
	})
	if len(out) > limit {
		out = out[:limit]
	}
	return out
}
