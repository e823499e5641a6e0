package impact

import (
	"github.com/bikehood/twin/internal/domain"
	"github.com/bikehood/twin/pkg/utils"
)

// keyPrecision is the number of decimal places a marker position is rounded to
const keyPrecision = 6

// Key identifies one application of a marker position to a target
type Key struct {
	Lat      float64
	Lng      float64
	TargetID string
}

// NewKey rounds the marker position so sub-micro-degree jitter maps to the same key
func NewKey(pos domain.GeoPoint, targetID string) Key {
	return Key{
		Lat:      utils.RoundTo(pos.Lat, keyPrecision),
		Lng:      utils.RoundTo(pos.Lng, keyPrecision),
		TargetID: targetID,
	}
}

// Ledger records which impacts have already been applied. It is not safe
// for concurrent use; the owning session serialises access.
type Ledger struct {
	applied map[Key]struct{}
}

// NewLedger creates an empty ledger
func NewLedger() *Ledger {
	return &Ledger{applied: make(map[Key]struct{})}
}

// Has reports whether the key was recorded
func (l *Ledger) Has(k Key) bool {
	_, ok := l.applied[k]
	return ok
}

// Record marks the key as applied
func (l *Ledger) Record(k Key) {
	l.applied[k] = struct{}{}
}

// Len returns the number of recorded keys
func (l *Ledger) Len() int {
	return len(l.applied)
}

// Reset forgets every recorded key
func (l *Ledger) Reset() {
	l.applied = make(map[Key]struct{})
}
