package polls

import (
	"fmt"
	"time"
)

// EndedLabel is shown instead of a countdown once the deadline has passed.
const EndedLabel = "Poll ended"

// FormatRemaining renders the time left as HH:MM:SS. Hours are not capped at 24.
func FormatRemaining(diff time.Duration) string {
	if diff <= 0 {
		return EndedLabel
	}
	total := int64(diff / time.Second)
	hours := total / 3600
	minutes := (total % 3600) / 60
	seconds := total % 60
	return fmt.Sprintf("%02d:%02d:%02d", hours, minutes, seconds)
}
