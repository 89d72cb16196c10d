package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/pulsetrack/pulsetrack/internal/model"
)

// IncrementCounts adds delta to the domain's counters, creating the row on
// the first write.
func (r *Repository) IncrementCounts(ctx context.Context, delta *model.CountsDelta) error {
	pages, err := countsJSON(delta.PageCounts)
	if err != nil {
		return fmt.Errorf("encode page counts: %w", err)
	}
	oses, err := countsJSON(delta.OSCounts)
	if err != nil {
		return fmt.Errorf("encode os counts: %w", err)
	}
	browsers, err := countsJSON(delta.BrowserCounts)
	if err != nil {
		return fmt.Errorf("encode browser counts: %w", err)
	}
	devices, err := countsJSON(delta.DeviceCounts)
	if err != nil {
		return fmt.Errorf("encode device counts: %w", err)
	}
	bouncePages, err := countsJSON(delta.BounceCountsPerPage)
	if err != nil {
		return fmt.Errorf("encode bounce pages: %w", err)
	}

	query := `
		INSERT INTO counts (
			domain_name, page_counts, os_counts, browser_counts, device_counts,
			bounce_counts, bounce_counts_per_page, updated_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, NOW())
		ON CONFLICT (domain_name) DO UPDATE SET
			page_counts            = jsonb_add_counts(counts.page_counts, EXCLUDED.page_counts),
			os_counts              = jsonb_add_counts(counts.os_counts, EXCLUDED.os_counts),
			browser_counts         = jsonb_add_counts(counts.browser_counts, EXCLUDED.browser_counts),
			device_counts          = jsonb_add_counts(counts.device_counts, EXCLUDED.device_counts),
			bounce_counts          = counts.bounce_counts + EXCLUDED.bounce_counts,
			bounce_counts_per_page = jsonb_add_counts(counts.bounce_counts_per_page, EXCLUDED.bounce_counts_per_page),
			updated_at             = NOW()
	`

	_, err = r.pool.Exec(ctx, query,
		delta.DomainName,
		pages,
		oses,
		browsers,
		devices,
		delta.BounceCounts,
		bouncePages,
	)
	if err != nil {
		return fmt.Errorf("failed to increment counts: %w", err)
	}
	return nil
}

// GetCounts returns the domain's counters. A domain without events yields
// an empty aggregate.
func (r *Repository) GetCounts(ctx context.Context, domainName string) (*model.CountsAggregate, error) {
	query := `
		SELECT page_counts, os_counts, browser_counts, device_counts, bounce_counts, bounce_counts_per_page
		FROM counts
		WHERE domain_name = $1
	`

	var pages, oses, browsers, devices, bouncePages []byte
	agg := model.NewCountsAggregate(domainName)

	err := r.pool.QueryRow(ctx, query, domainName).Scan(
		&pages,
		&oses,
		&browsers,
		&devices,
		&agg.BounceCounts,
		&bouncePages,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return agg, nil
		}
		return nil, fmt.Errorf("failed to get counts: %w", err)
	}

	for _, f := range []struct {
		dst  *map[string]int64
		data []byte
	}{
		{&agg.PageCounts, pages},
		{&agg.OSCounts, oses},
		{&agg.BrowserCounts, browsers},
		{&agg.DeviceCounts, devices},
		{&agg.BounceCountsPerPage, bouncePages},
	} {
		m, err := decodeCounts(f.data)
		if err != nil {
			return nil, fmt.Errorf("decode counts: %w", err)
		}
		*f.dst = m
	}

	return agg, nil
}
