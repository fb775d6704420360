package ytdlp

// maxReported keeps progress below 1 until the terminal event.
const maxReported = 0.99

// progressTracker converts per-file byte counts into an item fraction.
//
// Collections download an unknown number of files. Each finished file halves the
// remaining distance to 1, so the reported value is continuous and never decreases.
type progressTracker struct {
	collection bool
	files      int
	lastBytes  int
	last       float64
}

func newProgressTracker(collection bool) *progressTracker {
	return &progressTracker{collection: collection}
}

// update returns the new fraction and whether it advanced.
func (p *progressTracker) update(downloaded, total int) (float64, bool) {
	if total <= 0 || downloaded < 0 {
		return 0, false
	}
	f := float64(downloaded) / float64(total)
	if f > 1 {
		f = 1
	}

	var v float64
	if p.collection {
		if downloaded < p.lastBytes {
			p.files++
		}
		p.lastBytes = downloaded
		remaining := 1.0
		for i := 0; i < p.files; i++ {
			remaining /= 2
		}
		v = 1 - remaining*(1-f/2)
	} else {
		v = f
	}

	if v > maxReported {
		v = maxReported
	}
	if v <= p.last {
		return p.last, false
	}
	p.last = v
	return v, true
}
