package vision

import (
	"fmt"
	"image"
	"math/rand"
	"regexp"
	"sync"
	"time"
)

// PlatePrefix is the fixed alphabetic part of every placeholder plate.
const PlatePrefix = "ABC"

// PlatePattern matches every string PlateSynthesizer can produce.
var PlatePattern = regexp.MustCompile(`^[A-Z]{3}[0-9]{4}$`)

// PlateSynthesizer produces placeholder plate strings. No characters are
// recognised: the value has the shape of a plate and nothing more.
type PlateSynthesizer struct {
	mu  sync.Mutex
	rnd *rand.Rand
}

// NewPlateSynthesizer uses src for the numeric suffix. A nil src seeds from the clock.
func NewPlateSynthesizer(src rand.Source) *PlateSynthesizer {
	if src == nil {
		src = rand.NewSource(time.Now().UnixNano())
	}
	return &PlateSynthesizer{rnd: rand.New(src)}
}

// Synthesize returns a placeholder plate. It takes the image and plate region
// so a real recogniser can take its place later.
func (p *PlateSynthesizer) Synthesize(_ image.Image, _ image.Rectangle) string {
	p.mu.Lock()
	suffix := 1000 + p.rnd.Intn(9000)
	p.mu.Unlock()
	return fmt.Sprintf("%s%04d", PlatePrefix, suffix)
}

// PlateRegion is the fixed region hint inside the working frame where a plate is assumed to be.
var PlateRegion = image.Rect(50, 50, 590, 430)
