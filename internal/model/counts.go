package model

// CountsAggregate holds the monotonically increasing domain-wide counters.
type CountsAggregate struct {
	DomainName          string           `json:"domain_name"`
	PageCounts          map[string]int64 `json:"page_counts"`
	OSCounts            map[string]int64 `json:"os_counts"`
	BrowserCounts       map[string]int64 `json:"browser_counts"`
	DeviceCounts        map[string]int64 `json:"device_counts"`
	BounceCounts        int64            `json:"bounce_counts"`
	BounceCountsPerPage map[string]int64 `json:"bounce_counts_per_page"`
}

// NewCountsAggregate returns an empty aggregate with initialized maps.
func NewCountsAggregate(domain string) *CountsAggregate {
	return &CountsAggregate{
		DomainName:          domain,
		PageCounts:          map[string]int64{},
		OSCounts:            map[string]int64{},
		BrowserCounts:       map[string]int64{},
		DeviceCounts:        map[string]int64{},
		BounceCountsPerPage: map[string]int64{},
	}
}

// CountsDelta is a single incremental update to a CountsAggregate.
type CountsDelta struct {
	DomainName          string
	PageCounts          map[string]int64
	OSCounts            map[string]int64
	BrowserCounts       map[string]int64
	DeviceCounts        map[string]int64
	BounceCounts        int64
	BounceCountsPerPage map[string]int64
}

// IsEmpty reports whether the delta would change nothing.
func (d *CountsDelta) IsEmpty() bool {
	return len(d.PageCounts) == 0 && len(d.OSCounts) == 0 && len(d.BrowserCounts) == 0 &&
		len(d.DeviceCounts) == 0 && d.BounceCounts == 0 && len(d.BounceCountsPerPage) == 0
}

// ApplyTo adds the delta to agg.
func (d *CountsDelta) ApplyTo(agg *CountsAggregate) {
	addCounts(agg.PageCounts, d.PageCounts)
	addCounts(agg.OSCounts, d.OSCounts)
	addCounts(agg.BrowserCounts, d.BrowserCounts)
	addCounts(agg.DeviceCounts, d.DeviceCounts)
	addCounts(agg.BounceCountsPerPage, d.BounceCountsPerPage)
	agg.BounceCounts += d.BounceCounts
}

func addCounts(dst, src map[string]int64) {
	for k, v := range src {
		dst[k] += v
	}
}
