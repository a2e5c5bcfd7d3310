package qa

import "fmt"

// DefaultNumberPrefix and DefaultNumberWidth give codes like FS01, FS02, ... FS100.
const (
	DefaultNumberPrefix = "FS"
	DefaultNumberWidth  = 2
)

// NumberFormat derives display codes from sequence numbers.
type NumberFormat struct {
	Prefix string
	Width  int
}

// Format returns the display code for a sequence number. Numbers wider than
// Width are never truncated.
func (f NumberFormat) Format(seq int64) string {
	width := f.Width
	if width <= 0 {
		width = DefaultNumberWidth
	}
	return fmt.Sprintf("%s%0*d", f.Prefix, width, seq)
}
