package store

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/jmeijer/socmon/internal/domain"
)

// MemoryStore keeps everything in maps for local development and tests.
type MemoryStore struct {
	mu        sync.RWMutex
	accounts  map[string]domain.Account
	posts     map[string]domain.Post // key: accountID + "\x00" + externalID
	snapshots map[string]domain.FollowerSnapshot
	metrics   map[string]domain.MonthlyMetrics
	logs      []domain.CollectionLog
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		accounts:  make(map[string]domain.Account),
		posts:     make(map[string]domain.Post),
		snapshots: make(map[string]domain.FollowerSnapshot),
		metrics:   make(map[string]domain.MonthlyMetrics),
	}
}

func (s *MemoryStore) UpsertAccount(_ context.Context, account domain.Account) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.accounts[account.ID] = account
	return nil
}

func (s *MemoryStore) GetAccount(_ context.Context, id string) (*domain.Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	account, ok := s.accounts[id]
	if !ok {
		return nil, fmt.Errorf("%w: account %s", ErrNotFound, id)
	}
	return &account, nil
}

func (s *MemoryStore) ListAccounts(_ context.Context, filter AccountFilter) ([]domain.Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	accounts := make([]domain.Account, 0, len(s.accounts))
	for _, account := range s.accounts {
		if filter.Country != "" && account.Country != filter.Country {
			continue
		}
		if filter.Platform != "" && account.Platform != filter.Platform {
			continue
		}
		if filter.ActiveOnly && !account.Active() {
			continue
		}
		accounts = append(accounts, account)
	}
	sort.Slice(accounts, func(i, j int) bool { return accounts[i].ID < accounts[j].ID })
	return accounts, nil
}

func postKey(accountID, externalID string) string {
	return accountID + "\x00" + externalID
}

func (s *MemoryStore) UpsertPosts(_ context.Context, posts []domain.Post) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, post := range posts {
		key := postKey(post.AccountID, post.ExternalID)
		if existing, ok := s.posts[key]; ok {
			post.CollectedAt = existing.CollectedAt
		}
		s.posts[key] = post
	}
	return nil
}

func (s *MemoryStore) ListPostsByMonth(_ context.Context, accountID, month string) ([]domain.Post, error) {
	start, end, err := monthBounds(month)
	if err != nil {
		return nil, fmt.Errorf("parse month %q: %w", month, err)
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	var posts []domain.Post
	for _, post := range s.posts {
		if post.AccountID != accountID {
			continue
		}
		if post.PostedAt.Before(start) || !post.PostedAt.Before(end) {
			continue
		}
		posts = append(posts, post)
	}
	sort.Slice(posts, func(i, j int) bool { return posts[i].PostedAt.Before(posts[j].PostedAt) })
	return posts, nil
}

func (s *MemoryStore) LatestPostTime(_ context.Context, accountID string) (time.Time, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var latest time.Time
	for _, post := range s.posts {
		if post.AccountID == accountID && post.PostedAt.After(latest) {
			latest = post.PostedAt
		}
	}
	return latest, nil
}

func (s *MemoryStore) CountPosts(_ context.Context, accountID string) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	count := 0
	for _, post := range s.posts {
		if post.AccountID == accountID {
			count++
		}
	}
	return count, nil
}

func snapshotKey(accountID string, day time.Time) string {
	return accountID + "\x00" + day.Format("2006-01-02")
}

func (s *MemoryStore) UpsertSnapshot(_ context.Context, snapshot domain.FollowerSnapshot) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.snapshots[snapshotKey(snapshot.AccountID, snapshot.Date)] = snapshot
	return nil
}

func (s *MemoryStore) ListSnapshotsByMonth(_ context.Context, accountID, month string) ([]domain.FollowerSnapshot, error) {
	start, end, err := monthBounds(month)
	if err != nil {
		return nil, fmt.Errorf("parse month %q: %w", month, err)
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	var snapshots []domain.FollowerSnapshot
	for _, snapshot := range s.snapshots {
		if snapshot.AccountID != accountID {
			continue
		}
		if snapshot.Date.Before(start) || !snapshot.Date.Before(end) {
			continue
		}
		snapshots = append(snapshots, snapshot)
	}
	sort.Slice(snapshots, func(i, j int) bool { return snapshots[i].Date.Before(snapshots[j].Date) })
	return snapshots, nil
}

func metricsKey(accountID, month string) string {
	return accountID + "\x00" + month
}

func (s *MemoryStore) UpsertMetrics(_ context.Context, metrics domain.MonthlyMetrics) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.metrics[metricsKey(metrics.AccountID, metrics.Month)] = metrics
	return nil
}

func (s *MemoryStore) GetMetrics(_ context.Context, accountID, month string) (*domain.MonthlyMetrics, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	metrics, ok := s.metrics[metricsKey(accountID, month)]
	if !ok {
		return nil, fmt.Errorf("%w: metrics %s %s", ErrNotFound, accountID, month)
	}
	return &metrics, nil
}

func (s *MemoryStore) ListMetricsByMonth(_ context.Context, month string) ([]domain.MonthlyMetrics, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []domain.MonthlyMetrics
	for _, metrics := range s.metrics {
		if metrics.Month == month {
			result = append(result, metrics)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].AccountID < result[j].AccountID })
	return result, nil
}

func (s *MemoryStore) AppendCollectionLog(_ context.Context, log domain.CollectionLog) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.logs = append(s.logs, log)
	return nil
}

// CollectionLogs returns a copy of the appended logs; tests only.
func (s *MemoryStore) CollectionLogs() []domain.CollectionLog {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]domain.CollectionLog(nil), s.logs...)
}
