package phd2

import (
	"fmt"
	"math"
	"sync"
	"time"
)

// starState is the tri-state guide-star-available flag.
type starState int8

const (
	starUnknown starState = iota
	starFound
	starLost
)

// Tracker holds the connection-scoped pixel scale and the process-scoped
// guide-star flag, and decides what an incoming observation changes.
//
// The pixel scale is connection-local RPC state: it is cleared on every new
// connection and set at most once per connection. The guide-star flag
// reflects external sky reality and deliberately survives reconnects.
//
// Thread Safety: all methods are safe for concurrent use. In the bridge the
// tracker is only touched from the protocol client's read loop, but the
// status API may inspect it from another goroutine.
type Tracker struct {
	mu         sync.Mutex
	pixelScale *float64
	guideStar  starState
}

// NewTracker returns a Tracker with no learned state.
func NewTracker() *Tracker {
	return &Tracker{}
}

// Derived is the outcome of processing one guiding sample.
//
// The arcsecond fields are nil when the pixel scale is not yet known for
// the current connection: absence, not zero, so the publisher can skip
// them rather than publish misleading values. The pixel-domain fields pass
// through from the sample unchanged.
type Derived struct {
	RAArcsec    *float64
	DecArcsec   *float64
	TotalArcsec *float64

	DX      *float64
	DY      *float64
	SNR     *float64
	AvgDist *float64

	// Time is the sample timestamp, when the event carried one.
	Time *time.Time

	// StarRecovered is true when processing this sample flipped the
	// guide-star flag to available.
	StarRecovered bool
}

// OnConnectionEstablished clears the pixel scale to unknown.
//
// Called once per new connection to PHD2, before any RPC requests are
// issued, so stale scale from a previous connection can never leak into
// metrics for the new one.
func (t *Tracker) OnConnectionEstablished() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.pixelScale = nil
}

// OnPixelScaleLearned stores the guider image scale for the current connection.
//
// Parameters:
//   - value: Scale in arcsec/pixel from the get_pixel_scale response
//
// Returns:
//   - error: ErrInvalidPixelScale if value is NaN or infinite; the scale
//     stays unknown (no partial update)
func (t *Tracker) OnPixelScaleLearned(value float64) error {
	if math.IsNaN(value) || math.IsInf(value, 0) {
		return fmt.Errorf("%w: %v", ErrInvalidPixelScale, value)
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	t.pixelScale = &value
	return nil
}

// PixelScale returns the current scale factor and whether it is known.
func (t *Tracker) PixelScale() (float64, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.pixelScale == nil {
		return 0, false
	}
	return *t.pixelScale, true
}

// Observe processes one guiding sample.
//
// When the pixel scale is known and the sample carries both raw error
// values, the RA/Dec/Total arcsecond errors are derived; otherwise those
// fields stay absent. dx, dy, snr and avg_dist always pass through.
//
// A guiding sample is only ever produced while PHD2 is actively tracking a
// star, so processing one marks guide-star-available true as a side effect;
// StarRecovered reports whether that was a transition worth publishing.
func (t *Tracker) Observe(s GuideSample) Derived {
	t.mu.Lock()
	defer t.mu.Unlock()

	d := Derived{
		DX:      s.DX,
		DY:      s.DY,
		SNR:     s.SNR,
		AvgDist: s.AvgDist,
		Time:    s.Time,
	}

	if t.pixelScale != nil && s.RARaw != nil && s.DecRaw != nil {
		scale := *t.pixelScale
		ra := ToArcsec(*s.RARaw, scale)
		dec := ToArcsec(*s.DecRaw, scale)
		total := ToArcsec(TotalMagnitude(*s.RARaw, *s.DecRaw), scale)
		d.RAArcsec = &ra
		d.DecArcsec = &dec
		d.TotalArcsec = &total
	}

	d.StarRecovered = t.guideStarTransitioned(starFound)
	return d
}

// ObserveStarLost marks guide-star-available false.
//
// Returns:
//   - bool: true if this represents a transition (i.e. whether to publish)
func (t *Tracker) ObserveStarLost() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.guideStarTransitioned(starLost)
}

// GuideStar returns the current flag value and whether it is known yet.
func (t *Tracker) GuideStar() (available, known bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.guideStar == starFound, t.guideStar != starUnknown
}

// guideStarTransitioned is the transition decision rule: true iff the new
// value differs from the current one (unknown → anything always counts).
// The current value is updated only on a transition.
//
// Callers must hold t.mu.
func (t *Tracker) guideStarTransitioned(newValue starState) bool {
	if t.guideStar == newValue {
		return false
	}
	t.guideStar = newValue
	return true
}
