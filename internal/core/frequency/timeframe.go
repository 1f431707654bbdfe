package frequency

import (
	"fmt"
	"strings"
	"time"

	"github.com/ewilliams-labs/setlist/internal/core/domain"
)

// TimeFrame limits history to a trailing window.
type TimeFrame string

const (
	FrameAll     TimeFrame = "all"
	FrameDay     TimeFrame = "day"
	FrameWeek    TimeFrame = "week"
	FrameMonth   TimeFrame = "month"
	FrameQuarter TimeFrame = "quarter"
	FrameYear    TimeFrame = "year"
)

// ParseTimeFrame accepts the frame names case-insensitively; "" means all.
func ParseTimeFrame(s string) (TimeFrame, error) {
	switch f := TimeFrame(strings.ToLower(strings.TrimSpace(s))); f {
	case "":
		return FrameAll, nil
	case FrameAll, FrameDay, FrameWeek, FrameMonth, FrameQuarter, FrameYear:
		return f, nil
	default:
		return "", fmt.Errorf("unknown time frame %q: %w", s, domain.ErrInvalidArgs)
	}
}

// Cutoff returns the earliest play time kept by the frame. ok is false for FrameAll.
func (f TimeFrame) Cutoff(now time.Time) (cutoff time.Time, ok bool) {
	switch f {
	case FrameDay:
		return now.Add(-24 * time.Hour), true
	case FrameWeek:
		return now.AddDate(0, 0, -7), true
	case FrameMonth:
		return now.AddDate(0, -1, 0), true
	case FrameQuarter:
		return now.AddDate(0, -3, 0), true
	case FrameYear:
		return now.AddDate(-1, 0, 0), true
	default:
		return time.Time{}, false
	}
}

// FilterTimeFrame keeps records played at or after the frame's cutoff.
// Records without a play time are dropped by every frame except all.
func FilterTimeFrame(records []domain.ListeningRecord, frame TimeFrame, now time.Time) []domain.ListeningRecord {
	cutoff, ok := frame.Cutoff(now)
	if !ok {
		return records
	}
	out := make([]domain.ListeningRecord, 0, len(records))
	for _, r := range records {
		if r.PlayedAt.IsZero() || r.PlayedAt.Before(cutoff) {
			continue
		}
		out = append(out, r)
	}
	return out
}
