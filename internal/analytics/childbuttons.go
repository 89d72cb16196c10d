package analytics

import "github.com/pulsetrack/pulsetrack/internal/model"

// Child button titles with toggle semantics.
const (
	LikeButton      = "LIKE"
	SubscribeButton = "SUBSCRIBE"
)

// ChildTally is what the child buttons of one parent contributed in one event.
type ChildTally struct {
	CTAClicks   int64
	Likes       int64
	Subscribers int64
	Buttons     map[string]int64
}

// ResolveChildButtons tallies the child buttons that belong to parentTitle.
//
// Every matching button counts toward CTAClicks. A LIKE or SUBSCRIBE button
// with an odd click count is read as "currently on" and adds exactly one like
// or subscriber; an even count adds nothing. There is no stored toggle state,
// so the rule depends on the client reporting cumulative click counts.
// Any other label is summed into Buttons.
func ResolveChildButtons(children []model.ChildButton, parentTitle string) ChildTally {
	tally := ChildTally{Buttons: map[string]int64{}}

	for _, child := range children {
		if child.ParentContentTitle != parentTitle {
			continue
		}

		var clicks int64
		if child.Click != nil {
			clicks = max(*child.Click, 0)
		}
		tally.CTAClicks += clicks

		switch child.Title {
		case LikeButton:
			if isOdd(clicks) {
				tally.Likes++
			}
		case SubscribeButton:
			if isOdd(clicks) {
				tally.Subscribers++
			}
		default:
			tally.Buttons[child.Title] += clicks
		}
	}

	return tally
}

func isOdd(n int64) bool {
	return n%2 != 0
}
