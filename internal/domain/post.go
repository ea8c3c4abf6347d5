package domain

import "time"

type ContentType string

const (
	ContentTypeImage    ContentType = "image"
	ContentTypeVideo    ContentType = "video"
	ContentTypeCarousel ContentType = "carousel"
	ContentTypeReel     ContentType = "reel"
	ContentTypeText     ContentType = "text"
	ContentTypeLink     ContentType = "link"
)

// RawPost is what a collector hands back before normalization. ExternalID
// is the platform's own post identifier and drives upsert deduplication.
type RawPost struct {
	ExternalID  string
	PostedAt    time.Time
	ContentType ContentType
	Likes       int
	Comments    int
	Shares      int
	Views       int
	URL         string
	Caption     string
}

// Post is the normalized, stored record. The (AccountID, ExternalID) pair
// is the upsert key: collecting the same post twice overwrites engagement
// counters instead of duplicating the row, which is what makes
// at-least-once collection safe.
type Post struct {
	AccountID   string
	ExternalID  string
	Platform    Platform
	PostedAt    time.Time
	ContentType ContentType
	Likes       int
	Comments    int
	Shares      int
	Views       int
	URL         string
	Caption     string
	CollectedAt time.Time
	UpdatedAt   time.Time
}

// Normalize converts a collector result into a stored record.
func (r RawPost) Normalize(account Account, collectedAt time.Time) Post {
	return Post{
		AccountID:   account.ID,
		ExternalID:  r.ExternalID,
		Platform:    account.Platform,
		PostedAt:    r.PostedAt,
		ContentType: r.ContentType,
		Likes:       r.Likes,
		Comments:    r.Comments,
		Shares:      r.Shares,
		Views:       r.Views,
		URL:         r.URL,
		Caption:     r.Caption,
		CollectedAt: collectedAt,
		UpdatedAt:   collectedAt,
	}
}

// FollowerSnapshot records follower counts for one account on one day.
// Upsert key: (AccountID, Date).
type FollowerSnapshot struct {
	AccountID   string
	Date        time.Time
	Followers   int
	Following   int
	CollectedAt time.Time
}

// MonthlyMetrics is the computed metric set for one account and month.
// Upsert key: (AccountID, Month).
type MonthlyMetrics struct {
	AccountID         string
	Month             string
	TotalPosts        int
	TotalLikes        int
	TotalComments     int
	TotalShares       int
	AvgFollowers      int
	FollowerGrowth    int
	FollowerGrowthPct float64
	EngagementRate    float64
	TopPostID         string
	CalculatedAt      time.Time
}

// CollectionLog is the audit row written after every collect run.
type CollectionLog struct {
	ID             string
	AccountID      string
	Platform       Platform
	Status         string
	PostsCollected int
	Error          string
	StartedAt      time.Time
	CompletedAt    time.Time
}
