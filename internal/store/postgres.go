package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/jmeijer/socmon/internal/domain"
)

// PostgresStore is the production repository backed by pgx.
type PostgresStore struct {
	pool *pgxpool.Pool
}

func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

func (s *PostgresStore) UpsertAccount(ctx context.Context, account domain.Account) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO accounts (id, country, platform, handle, display_name, status, notes, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, now())
		ON CONFLICT (id) DO UPDATE SET
			display_name = EXCLUDED.display_name,
			status = EXCLUDED.status,
			notes = EXCLUDED.notes
	`, account.ID, account.Country, string(account.Platform), account.Handle,
		account.DisplayName, string(account.Status), account.Notes)
	if err != nil {
		return fmt.Errorf("upsert account: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetAccount(ctx context.Context, id string) (*domain.Account, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT id, country, platform, handle, display_name, status, notes, created_at
		FROM accounts WHERE id = $1
	`, id)
	account, err := scanAccount(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("%w: account %s", ErrNotFound, id)
		}
		return nil, fmt.Errorf("get account: %w", err)
	}
	return account, nil
}

func (s *PostgresStore) ListAccounts(ctx context.Context, filter AccountFilter) ([]domain.Account, error) {
	query := `
		SELECT id, country, platform, handle, display_name, status, notes, created_at
		FROM accounts
		WHERE ($1 = '' OR country = $1)
		  AND ($2 = '' OR platform = $2)
		  AND (NOT $3 OR status = 'active')
		ORDER BY id
	`
	rows, err := s.pool.Query(ctx, query, filter.Country, string(filter.Platform), filter.ActiveOnly)
	if err != nil {
		return nil, fmt.Errorf("list accounts: %w", err)
	}
	defer rows.Close()

	var accounts []domain.Account
	for rows.Next() {
		account, err := scanAccount(rows)
		if err != nil {
			return nil, fmt.Errorf("scan account: %w", err)
		}
		accounts = append(accounts, *account)
	}
	return accounts, rows.Err()
}

func (s *PostgresStore) UpsertPosts(ctx context.Context, posts []domain.Post) error {
	if len(posts) == 0 {
		return nil
	}

	batch := &pgx.Batch{}
	for _, post := range posts {
		batch.Queue(`
			INSERT INTO posts (account_id, external_id, platform, posted_at, content_type,
				likes, comments, shares, views, url, caption, collected_at, updated_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $12)
			ON CONFLICT (account_id, external_id) DO UPDATE SET
				likes = EXCLUDED.likes,
				comments = EXCLUDED.comments,
				shares = EXCLUDED.shares,
				views = EXCLUDED.views,
				caption = EXCLUDED.caption,
				updated_at = EXCLUDED.updated_at
		`, post.AccountID, post.ExternalID, string(post.Platform), post.PostedAt,
			string(post.ContentType), post.Likes, post.Comments, post.Shares,
			post.Views, post.URL, post.Caption, post.CollectedAt)
	}

	results := s.pool.SendBatch(ctx, batch)
	defer results.Close()
	for range posts {
		if _, err := results.Exec(); err != nil {
			return fmt.Errorf("upsert post: %w", err)
		}
	}
	return nil
}

func (s *PostgresStore) ListPostsByMonth(ctx context.Context, accountID, month string) ([]domain.Post, error) {
	start, end, err := monthBounds(month)
	if err != nil {
		return nil, fmt.Errorf("parse month %q: %w", month, err)
	}

	rows, err := s.pool.Query(ctx, `
		SELECT account_id, external_id, platform, posted_at, content_type,
			likes, comments, shares, views, url, caption, collected_at, updated_at
		FROM posts
		WHERE account_id = $1 AND posted_at >= $2 AND posted_at < $3
		ORDER BY posted_at
	`, accountID, start, end)
	if err != nil {
		return nil, fmt.Errorf("list posts: %w", err)
	}
	defer rows.Close()

	var posts []domain.Post
	for rows.Next() {
		var post domain.Post
		var platform, contentType string
		err := rows.Scan(&post.AccountID, &post.ExternalID, &platform, &post.PostedAt,
			&contentType, &post.Likes, &post.Comments, &post.Shares, &post.Views,
			&post.URL, &post.Caption, &post.CollectedAt, &post.UpdatedAt)
		if err != nil {
			return nil, fmt.Errorf("scan post: %w", err)
		}
		post.Platform = domain.Platform(platform)
		post.ContentType = domain.ContentType(contentType)
		posts = append(posts, post)
	}
	return posts, rows.Err()
}

func (s *PostgresStore) LatestPostTime(ctx context.Context, accountID string) (time.Time, error) {
	var latest *time.Time
	err := s.pool.QueryRow(ctx, `
		SELECT MAX(posted_at) FROM posts WHERE account_id = $1
	`, accountID).Scan(&latest)
	if err != nil {
		return time.Time{}, fmt.Errorf("latest post time: %w", err)
	}
	if latest == nil {
		return time.Time{}, nil
	}
	return *latest, nil
}

func (s *PostgresStore) CountPosts(ctx context.Context, accountID string) (int, error) {
	var count int
	err := s.pool.QueryRow(ctx, `SELECT COUNT(*) FROM posts WHERE account_id = $1`, accountID).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count posts: %w", err)
	}
	return count, nil
}

func (s *PostgresStore) UpsertSnapshot(ctx context.Context, snapshot domain.FollowerSnapshot) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO follower_snapshots (account_id, date, followers, following, collected_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (account_id, date) DO UPDATE SET
			followers = EXCLUDED.followers,
			following = EXCLUDED.following,
			collected_at = EXCLUDED.collected_at
	`, snapshot.AccountID, snapshot.Date, snapshot.Followers, snapshot.Following, snapshot.CollectedAt)
	if err != nil {
		return fmt.Errorf("upsert follower snapshot: %w", err)
	}
	return nil
}

func (s *PostgresStore) ListSnapshotsByMonth(ctx context.Context, accountID, month string) ([]domain.FollowerSnapshot, error) {
	start, end, err := monthBounds(month)
	if err != nil {
		return nil, fmt.Errorf("parse month %q: %w", month, err)
	}

	rows, err := s.pool.Query(ctx, `
		SELECT account_id, date, followers, following, collected_at
		FROM follower_snapshots
		WHERE account_id = $1 AND date >= $2 AND date < $3
		ORDER BY date
	`, accountID, start, end)
	if err != nil {
		return nil, fmt.Errorf("list follower snapshots: %w", err)
	}
	defer rows.Close()

	var snapshots []domain.FollowerSnapshot
	for rows.Next() {
		var snapshot domain.FollowerSnapshot
		err := rows.Scan(&snapshot.AccountID, &snapshot.Date, &snapshot.Followers,
			&snapshot.Following, &snapshot.CollectedAt)
		if err != nil {
			return nil, fmt.Errorf("scan follower snapshot: %w", err)
		}
		snapshots = append(snapshots, snapshot)
	}
	return snapshots, rows.Err()
}

func (s *PostgresStore) UpsertMetrics(ctx context.Context, metrics domain.MonthlyMetrics) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO monthly_metrics (account_id, month, total_posts, total_likes, total_comments,
			total_shares, avg_followers, follower_growth, follower_growth_pct,
			engagement_rate, top_post_id, calculated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		ON CONFLICT (account_id, month) DO UPDATE SET
			total_posts = EXCLUDED.total_posts,
			total_likes = EXCLUDED.total_likes,
			total_comments = EXCLUDED.total_comments,
			total_shares = EXCLUDED.total_shares,
			avg_followers = EXCLUDED.avg_followers,
			follower_growth = EXCLUDED.follower_growth,
			follower_growth_pct = EXCLUDED.follower_growth_pct,
			engagement_rate = EXCLUDED.engagement_rate,
			top_post_id = EXCLUDED.top_post_id,
			calculated_at = EXCLUDED.calculated_at
	`, metrics.AccountID, metrics.Month, metrics.TotalPosts, metrics.TotalLikes,
		metrics.TotalComments, metrics.TotalShares, metrics.AvgFollowers,
		metrics.FollowerGrowth, metrics.FollowerGrowthPct, metrics.EngagementRate,
		metrics.TopPostID, metrics.CalculatedAt)
	if err != nil {
		return fmt.Errorf("upsert metrics: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetMetrics(ctx context.Context, accountID, month string) (*domain.MonthlyMetrics, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT account_id, month, total_posts, total_likes, total_comments, total_shares,
			avg_followers, follower_growth, follower_growth_pct, engagement_rate,
			top_post_id, calculated_at
		FROM monthly_metrics
		WHERE account_id = $1 AND month = $2
	`, accountID, month)
	metrics, err := scanMetrics(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("%w: metrics %s %s", ErrNotFound, accountID, month)
		}
		return nil, fmt.Errorf("get metrics: %w", err)
	}
	return metrics, nil
}

func (s *PostgresStore) ListMetricsByMonth(ctx context.Context, month string) ([]domain.MonthlyMetrics, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT account_id, month, total_posts, total_likes, total_comments, total_shares,
			avg_followers, follower_growth, follower_growth_pct, engagement_rate,
			top_post_id, calculated_at
		FROM monthly_metrics
		WHERE month = $1
		ORDER BY account_id
	`, month)
	if err != nil {
		return nil, fmt.Errorf("list metrics: %w", err)
	}
	defer rows.Close()

	var result []domain.MonthlyMetrics
	for rows.Next() {
		metrics, err := scanMetrics(rows)
		if err != nil {
			return nil, fmt.Errorf("scan metrics: %w", err)
		}
		result = append(result, *metrics)
	}
	return result, rows.Err()
}

func (s *PostgresStore) AppendCollectionLog(ctx context.Context, log domain.CollectionLog) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO collection_log (id, account_id, platform, status, posts_collected, error, started_at, completed_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`, log.ID, log.AccountID, string(log.Platform), log.Status, log.PostsCollected,
		log.Error, log.StartedAt, log.CompletedAt)
	if err != nil {
		return fmt.Errorf("append collection log: %w", err)
	}
	return nil
}

func scanAccount(row pgx.Row) (*domain.Account, error) {
	var account domain.Account
	var platform, status string
	err := row.Scan(&account.ID, &account.Country, &platform, &account.Handle,
		&account.DisplayName, &status, &account.Notes, &account.CreatedAt)
	if err != nil {
		return nil, err
	}
	account.Platform = domain.Platform(platform)
	account.Status = domain.AccountStatus(status)
	return &account, nil
}

func scanMetrics(row pgx.Row) (*domain.MonthlyMetrics, error) {
	var metrics domain.MonthlyMetrics
	err := row.Scan(&metrics.AccountID, &metrics.Month, &metrics.TotalPosts,
		&metrics.TotalLikes, &metrics.TotalComments, &metrics.TotalShares,
		&metrics.AvgFollowers, &metrics.FollowerGrowth, &metrics.FollowerGrowthPct,
		&metrics.EngagementRate, &metrics.TopPostID, &metrics.CalculatedAt)
	if err != nil {
		return nil, err
	}
	return &metrics, nil
}
