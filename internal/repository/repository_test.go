package repository

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgconn"

	"github.com/pulsetrack/pulsetrack/internal/analytics"
	"github.com/pulsetrack/pulsetrack/internal/model"
	"github.com/pulsetrack/pulsetrack/internal/service"
)

var (
	_ analytics.Store             = (*Repository)(nil)
	_ service.DashboardRepository = (*Repository)(nil)
	_ service.AdminRepository     = (*Repository)(nil)
)

func TestRangeArgs(t *testing.T) {
	t.Parallel()

	from, to := rangeArgs(model.TimeRange{})
	if from != nil || to != nil {
		t.Errorf("unbounded range gave %v, %v", from, to)
	}

	march := model.MonthRange(2024, time.March)
	from, to = rangeArgs(march)
	if from == nil || !from.Equal(march.From) || to == nil || !to.Equal(march.To) {
		t.Errorf("rangeArgs(march) = %v, %v", from, to)
	}

	from, to = rangeArgs(model.TimeRange{From: march.From})
	if from == nil || to != nil {
		t.Errorf("open-ended range gave %v, %v", from, to)
	}
}

func TestUniqueConstraint(t *testing.T) {
	t.Parallel()

	unique := &pgconn.PgError{Code: "23505", ConstraintName: "idx_admins_domain"}
	tests := []struct {
		name string
		err  error
		want string
	}{
		{"unique violation", unique, "idx_admins_domain"},
		{"wrapped", fmt.Errorf("insert: %w", unique), "idx_admins_domain"},
		{"other pg error", &pgconn.PgError{Code: "23503", ConstraintName: "fk"}, ""},
		{"plain error", errors.New("unique"), ""},
		{"nil", nil, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := uniqueConstraint(tt.err); got != tt.want {
				t.Errorf("uniqueConstraint() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestCountsJSON(t *testing.T) {
	t.Parallel()

	data, err := countsJSON(nil)
	if err != nil || string(data) != "{}" {
		t.Errorf("countsJSON(nil) = %s, %v", data, err)
	}

	data, err = countsJSON(map[string]int64{"/": 2})
	if err != nil {
		t.Fatal(err)
	}
	m, err := decodeCounts(data)
	if err != nil || m["/"] != 2 {
		t.Errorf("decodeCounts() = %v, %v", m, err)
	}
}

func TestDecodeCounts_Empty(t *testing.T) {
	t.Parallel()

	for _, in := range []string{"", "null", "{}"} {
		m, err := decodeCounts([]byte(in))
		if err != nil {
			t.Fatalf("decodeCounts(%q) error = %v", in, err)
		}
		if m == nil {
			t.Errorf("decodeCounts(%q) returned nil map", in)
		}
	}

	if _, err := decodeCounts([]byte(`{"/": "many"}`)); err == nil {
		t.Error("non-numeric count accepted")
	}
}

func TestNullableJSON(t *testing.T) {
	t.Parallel()

	data, err := nullableJSON[model.DeviceStats](nil)
	if err != nil || data != nil {
		t.Errorf("nullableJSON(nil) = %s, %v", data, err)
	}

	data, err = nullableJSON(&model.DeviceStats{OS: "Linux"})
	if err != nil {
		t.Fatal(err)
	}
	back, err := decodeNullableJSON[model.DeviceStats](data)
	if err != nil || back == nil || back.OS != "Linux" {
		t.Errorf("decodeNullableJSON() = %+v, %v", back, err)
	}

	if v, err := decodeNullableJSON[model.DeviceStats]([]byte("null")); err != nil || v != nil {
		t.Errorf("decodeNullableJSON(null) = %+v, %v", v, err)
	}
}
