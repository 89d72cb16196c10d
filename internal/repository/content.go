package repository

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/pulsetrack/pulsetrack/internal/model"
)

// MergeContent creates the metric on first sight of its key and adds the
// delta on every later one. The referrer is replaced only by a non-empty
// value; child button tallies are summed per label.
func (r *Repository) MergeContent(ctx context.Context, delta *model.ContentDelta) error {
	children, err := countsJSON(delta.ChildButtons)
	if err != nil {
		return fmt.Errorf("encode child buttons: %w", err)
	}

	query := `
		INSERT INTO content_metrics (
			domain_name, title, type, views, sum_watch_time, sum_completion_rate, sum_scroll_depth,
			cta_clicks, likes, subscribers, clicks, referrer, child_buttons, updated_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, NOW())
		ON CONFLICT (domain_name, title, type) DO UPDATE SET
			views               = content_metrics.views + EXCLUDED.views,
			sum_watch_time      = content_metrics.sum_watch_time + EXCLUDED.sum_watch_time,
			sum_completion_rate = content_metrics.sum_completion_rate + EXCLUDED.sum_completion_rate,
			sum_scroll_depth    = content_metrics.sum_scroll_depth + EXCLUDED.sum_scroll_depth,
			cta_clicks          = content_metrics.cta_clicks + EXCLUDED.cta_clicks,
			likes               = content_metrics.likes + EXCLUDED.likes,
			subscribers         = content_metrics.subscribers + EXCLUDED.subscribers,
			clicks              = content_metrics.clicks + EXCLUDED.clicks,
			referrer            = CASE WHEN EXCLUDED.referrer <> '' THEN EXCLUDED.referrer ELSE content_metrics.referrer END,
			child_buttons       = jsonb_add_counts(content_metrics.child_buttons, EXCLUDED.child_buttons),
			updated_at          = NOW()
	`

	_, err = r.pool.Exec(ctx, query,
		delta.Key.DomainName,
		delta.Key.Title,
		string(delta.Key.Type),
		delta.Views,
		delta.WatchTime,
		delta.CompletionRate,
		delta.ScrollDepth,
		delta.CTAClicks,
		delta.Likes,
		delta.Subscribers,
		delta.Clicks,
		delta.Referrer,
		children,
	)
	if err != nil {
		return fmt.Errorf("failed to merge content metric: %w", err)
	}
	return nil
}

// ListContentMetrics returns the domain's metrics, busiest first.
// An empty typ matches every type.
func (r *Repository) ListContentMetrics(ctx context.Context, domainName string, typ model.ContentType) ([]*model.ContentMetric, error) {
	query := `
		SELECT domain_name, title, type, views, sum_watch_time, sum_completion_rate, sum_scroll_depth,
		       cta_clicks, likes, subscribers, clicks, referrer, child_buttons
		FROM content_metrics
		WHERE domain_name = $1 AND ($2 = '' OR type = $2)
		ORDER BY views + clicks DESC, title
	`

	rows, err := r.pool.Query(ctx, query, domainName, string(typ))
	if err != nil {
		return nil, fmt.Errorf("failed to list content metrics: %w", err)
	}
	defer rows.Close()

	metrics := make([]*model.ContentMetric, 0)
	for rows.Next() {
		m, err := scanContentMetric(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan content metric: %w", err)
		}
		metrics = append(metrics, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating content metrics: %w", err)
	}

	return metrics, nil
}

// GetContentMetric returns one metric by key.
func (r *Repository) GetContentMetric(ctx context.Context, key model.ContentKey) (*model.ContentMetric, error) {
	query := `
		SELECT domain_name, title, type, views, sum_watch_time, sum_completion_rate, sum_scroll_depth,
		       cta_clicks, likes, subscribers, clicks, referrer, child_buttons
		FROM content_metrics
		WHERE domain_name = $1 AND title = $2 AND type = $3
	`

	m, err := scanContentMetric(r.pool.QueryRow(ctx, query, key.DomainName, key.Title, string(key.Type)))
	if err != nil {
		return nil, fmt.Errorf("failed to get content metric: %w", err)
	}
	return m, nil
}

func scanContentMetric(row pgx.Row) (*model.ContentMetric, error) {
	var m model.ContentMetric
	var typ string
	var children []byte

	err := row.Scan(
		&m.DomainName,
		&m.Title,
		&typ,
		&m.Views,
		&m.SumWatchTime,
		&m.SumCompletionRate,
		&m.SumScrollDepth,
		&m.CTAClicks,
		&m.Likes,
		&m.Subscribers,
		&m.Clicks,
		&m.Referrer,
		&children,
	)
	if err != nil {
		return nil, err
	}

	m.Type = model.ContentType(typ)
	if m.ChildButtons, err = decodeCounts(children); err != nil {
		return nil, fmt.Errorf("decode child buttons: %w", err)
	}
	return &m, nil
}
