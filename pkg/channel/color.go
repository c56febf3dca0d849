package channel

import (
	"fmt"
	"math/rand"
)

// mutedColor returns a random hex color with each RGB channel capped to
// the lower half of its range, so user accents stay readable against
// light text.
func mutedColor() string {
	r := rand.Intn(128)
	g := rand.Intn(128)
	b := rand.Intn(128)
	return fmt.Sprintf("#%02x%02x%02x", r, g, b)
}
