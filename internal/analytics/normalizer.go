// Package analytics ingests session events and folds them into per-domain aggregates.
package analytics

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/pulsetrack/pulsetrack/internal/model"
)

// ErrMalformedEvent is matched by every RejectError.
var ErrMalformedEvent = errors.New("malformed session event")

// errNULByte rejects text that PostgreSQL cannot store in TEXT or JSONB.
var errNULByte = errors.New("text contains NUL byte")

// RejectError reports a message that could not be coerced into a SessionEvent.
// Only the message is rejected; the connection that sent it stays open.
type RejectError struct {
	Field string
	Err   error
}

func (e *RejectError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("reject session event: field %q: %v", e.Field, e.Err)
	}
	return fmt.Sprintf("reject session event: %v", e.Err)
}

func (e *RejectError) Unwrap() error { return e.Err }

// Is makes errors.Is(err, ErrMalformedEvent) true for any rejection.
func (e *RejectError) Is(target error) bool { return target == ErrMalformedEvent }

// Normalize decodes a raw JSON message into a SessionEvent.
//
// Every field is optional. Missing nested structures become empty values.
// An event without user or domain identity is returned as-is; callers check
// Identified before acting on it.
func Normalize(raw []byte) (*model.SessionEvent, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 {
		return nil, &RejectError{Err: errors.New("empty message")}
	}

	var w wireEvent
	if err := json.Unmarshal(raw, &w); err != nil {
		var typeErr *json.UnmarshalTypeError
		if errors.As(err, &typeErr) {
			return nil, &RejectError{Field: typeErr.Field, Err: err}
		}
		return nil, &RejectError{Err: err}
	}

	ev := w.toModel()
	if field := nulField(ev); field != "" {
		return nil, &RejectError{Field: field, Err: errNULByte}
	}
	return ev, nil
}

// wireEvent mirrors the tracker payload. Numeric fields go through flex types
// because the browser SDK sends some of them as strings.
type wireEvent struct {
	Event        string           `json:"event"`
	UserID       string           `json:"user_id"`
	Username     string           `json:"username"`
	DomainName   string           `json:"domain_name"`
	SessionStart flexTime         `json:"session_start"`
	SessionEnd   flexTime         `json:"session_end"`
	PathHistory  []string         `json:"path_history"`
	Bounce       flexBool         `json:"bounce"`
	Location     *wireLocation    `json:"location"`
	DeviceStats  *wireDevice      `json:"device_stats"`
	Referrer     *wireReferrer    `json:"referrer"`
	Interaction  *wireInteraction `json:"interaction"`
}

type wireLocation struct {
	Latitude  flexFloat `json:"latitude"`
	Longitude flexFloat `json:"longitude"`
}

type wireDevice struct {
	DeviceType string `json:"deviceType"`
	Browser    string `json:"browser"`
	OS         string `json:"os"`
}

type wireReferrer struct {
	Source   string `json:"utm_source"`
	Medium   string `json:"utm_medium"`
	Campaign string `json:"utm_campaign"`
}

type wireInteraction struct {
	Videos       []wireVideo       `json:"video_data"`
	Buttons      []wireButton      `json:"button_data"`
	Contents     []wireContent     `json:"contents_data"`
	ChildButtons []wireChildButton `json:"child_buttons_data"`
}

type wireVideo struct {
	ContentType     string        `json:"content_type"`
	Title           string        `json:"title"`
	StartedWatching flexTime      `json:"started_watching"`
	LastInteraction flexTime      `json:"last_interaction"`
	TotalWatchTime  flexFloat     `json:"total_watch_time"`
	Segments        []wireSegment `json:"session_information"`
	Ended           flexBool      `json:"ended"`
}

type wireSegment struct {
	StartTime flexTime  `json:"start_time"`
	EndTime   flexTime  `json:"end_time"`
	Duration  flexFloat `json:"duration"`
	Completed flexBool  `json:"completed"`
}

type wireButton struct {
	ContentType  string  `json:"content_type"`
	Click        flexInt `json:"click"`
	Title        string  `json:"content_title"`
	ContentsType string  `json:"contents_type"`
}

type wireContent struct {
	ContentType    string    `json:"content_type"`
	Title          string    `json:"content_title"`
	WordCount      flexInt   `json:"word_count"`
	ScrolledDepth  flexFloat `json:"scrolled_depth"`
	StartWatchTime flexTime  `json:"start_watch_time"`
	EndWatchTime   flexTime  `json:"ended_watch_time"`
	IsActive       flexBool  `json:"isactive"`
}

type wireChildButton struct {
	ContentType        string  `json:"content_type"`
	Click              flexInt `json:"click"`
	Title              string  `json:"content_title"`
	ContentsType       string  `json:"contents_type"`
	ParentContentTitle string  `json:"parent_content_title"`
}

func (w *wireEvent) toModel() *model.SessionEvent {
	ev := &model.SessionEvent{
		Event:        strings.TrimSpace(w.Event),
		UserID:       strings.TrimSpace(w.UserID),
		Username:     w.Username,
		DomainName:   model.NormalizeDomain(w.DomainName),
		SessionStart: w.SessionStart.v,
		SessionEnd:   w.SessionEnd.v,
		PathHistory:  w.PathHistory,
		Bounce:       w.Bounce.v,
	}

	if w.Location != nil {
		ev.Location = &model.Location{
			Latitude:  w.Location.Latitude.v,
			Longitude: w.Location.Longitude.v,
		}
	}
	if w.DeviceStats != nil {
		ev.DeviceStats = &model.DeviceStats{
			DeviceType: w.DeviceStats.DeviceType,
			Browser:    w.DeviceStats.Browser,
			OS:         w.DeviceStats.OS,
		}
	}
	if w.Referrer != nil {
		ev.Referrer = &model.Attribution{
			Source:   w.Referrer.Source,
			Medium:   w.Referrer.Medium,
			Campaign: w.Referrer.Campaign,
		}
	}
	if w.Interaction != nil {
		ev.Interaction = w.Interaction.toModel()
	}

	return ev
}

func (w *wireInteraction) toModel() model.Interaction {
	var in model.Interaction

	for _, v := range w.Videos {
		play := model.VideoPlay{
			ContentType:     v.ContentType,
			Title:           v.Title,
			StartedWatching: v.StartedWatching.v,
			LastInteraction: v.LastInteraction.v,
			TotalWatchTime:  v.TotalWatchTime.v,
			Ended:           v.Ended.value(),
		}
		for _, s := range v.Segments {
			play.Segments = append(play.Segments, model.VideoSegment{
				StartTime: s.StartTime.v,
				EndTime:   s.EndTime.v,
				Duration:  s.Duration.v,
				Completed: s.Completed.value(),
			})
		}
		in.Videos = append(in.Videos, play)
	}

	for _, b := range w.Buttons {
		in.Buttons = append(in.Buttons, model.ButtonClick{
			ContentType:  b.ContentType,
			Title:        b.Title,
			Click:        b.Click.v,
			ContentsType: b.ContentsType,
		})
	}

	for _, c := range w.Contents {
		var words *int
		if c.WordCount.v != nil {
			n := int(*c.WordCount.v)
			words = &n
		}
		in.Contents = append(in.Contents, model.ContentView{
			ContentType:    c.ContentType,
			Title:          c.Title,
			WordCount:      words,
			ScrolledDepth:  c.ScrolledDepth.v,
			StartWatchTime: c.StartWatchTime.v,
			EndWatchTime:   c.EndWatchTime.v,
			IsActive:       c.IsActive.value(),
		})
	}

	for _, cb := range w.ChildButtons {
		in.ChildButtons = append(in.ChildButtons, model.ChildButton{
			ContentType:        cb.ContentType,
			Title:              cb.Title,
			Click:              cb.Click.v,
			ContentsType:       cb.ContentsType,
			ParentContentTitle: cb.ParentContentTitle,
		})
	}

	return in
}

// nulField names the first text field of ev that contains a NUL byte, or "".
func nulField(ev *model.SessionEvent) string {
	hasNUL := func(s string) bool { return strings.IndexByte(s, 0) >= 0 }

	switch {
	case hasNUL(ev.Event):
		return "event"
	case hasNUL(ev.UserID):
		return "user_id"
	case hasNUL(ev.Username):
		return "username"
	case hasNUL(ev.DomainName):
		return "domain_name"
	}
	for _, p := range ev.PathHistory {
		if hasNUL(p) {
			return "path_history"
		}
	}
	if d := ev.DeviceStats; d != nil && (hasNUL(d.DeviceType) || hasNUL(d.Browser) || hasNUL(d.OS)) {
		return "device_stats"
	}
	if r := ev.Referrer; r != nil && (hasNUL(r.Source) || hasNUL(r.Medium) || hasNUL(r.Campaign)) {
		return "referrer"
	}

	in := ev.Interaction
	for _, v := range in.Videos {
		if hasNUL(v.Title) || hasNUL(v.ContentType) {
			return "interaction.video_data"
		}
	}
	for _, b := range in.Buttons {
		if hasNUL(b.Title) || hasNUL(b.ContentType) || hasNUL(b.ContentsType) {
			return "interaction.button_data"
		}
	}
	for _, c := range in.Contents {
		if hasNUL(c.Title) || hasNUL(c.ContentType) {
			return "interaction.contents_data"
		}
	}
	for _, cb := range in.ChildButtons {
		if hasNUL(cb.Title) || hasNUL(cb.ParentContentTitle) || hasNUL(cb.ContentType) || hasNUL(cb.ContentsType) {
			return "interaction.child_buttons_data"
		}
	}
	return ""
}

// flexFloat accepts a JSON number, a numeric string ("42", "87.5%") or null.
// NaN and infinities are rejected.
type flexFloat struct{ v *float64 }

func (f *flexFloat) UnmarshalJSON(b []byte) error {
	s, isNull, err := scalarText(b)
	if err != nil || isNull {
		return err
	}
	s = strings.TrimSuffix(s, "%")
	if s == "" {
		return nil
	}
	x, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return fmt.Errorf("expected number, got %q", s)
	}
	if math.IsNaN(x) || math.IsInf(x, 0) {
		return fmt.Errorf("expected finite number, got %q", s)
	}
	f.v = &x
	return nil
}

// flexInt accepts an integral JSON number, a numeric string or null.
type flexInt struct{ v *int64 }

func (f *flexInt) UnmarshalJSON(b []byte) error {
	s, isNull, err := scalarText(b)
	if err != nil || isNull {
		return err
	}
	if s == "" {
		return nil
	}
	if n, err := strconv.ParseInt(s, 10, 64); err == nil {
		f.v = &n
		return nil
	}
	x, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(x) || math.IsInf(x, 0) || x != float64(int64(x)) {
		return fmt.Errorf("expected integer, got %q", s)
	}
	n := int64(x)
	f.v = &n
	return nil
}

// flexBool accepts true/false, "true"/"false", 0/1 or null.
type flexBool struct{ v *bool }

func (f *flexBool) UnmarshalJSON(b []byte) error {
	s, isNull, err := scalarText(b)
	if err != nil || isNull {
		return err
	}
	if s == "" {
		return nil
	}
	v, err := strconv.ParseBool(s)
	if err != nil {
		return fmt.Errorf("expected boolean, got %q", s)
	}
	f.v = &v
	return nil
}

func (f flexBool) value() bool {
	return f.v != nil && *f.v
}

// Accepted timestamp layouts, tried in order. Naive layouts are read as UTC.
var timeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
}

// flexTime accepts an ISO-8601 string, Unix milliseconds or null.
type flexTime struct{ v *time.Time }

func (f *flexTime) UnmarshalJSON(b []byte) error {
	s, isNull, err := scalarText(b)
	if err != nil || isNull {
		return err
	}
	if s == "" {
		return nil
	}
	if !bytes.HasPrefix(bytes.TrimSpace(b), []byte(`"`)) {
		ms, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return fmt.Errorf("expected timestamp, got %q", s)
		}
		t := time.UnixMilli(int64(ms)).UTC()
		f.v = &t
		return nil
	}
	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			t = t.UTC()
			f.v = &t
			return nil
		}
	}
	return fmt.Errorf("expected timestamp, got %q", s)
}

// scalarText extracts the text of a JSON scalar. Objects and arrays are errors.
func scalarText(b []byte) (string, bool, error) {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || bytes.Equal(b, []byte("null")) {
		return "", true, nil
	}
	switch b[0] {
	case '"':
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return "", false, err
		}
		return strings.TrimSpace(s), false, nil
	case '{', '[':
		return "", false, fmt.Errorf("expected scalar, got %s", kindOf(b[0]))
	default:
		return string(b), false, nil
	}
}

func kindOf(c byte) string {
	if c == '{' {
		return "object"
	}
	return "array"
}
