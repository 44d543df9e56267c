package live

import "github.com/Broadcast-Mate/lcc-dbupdater/game"

// Decision is the outcome of comparing a fetched game with its stored copy.
type Decision int

const (
	// NoChange: same position and metadata. Nothing is written.
	NoChange Decision = iota
	// MetadataUpdate: same position, result or live flag changed.
	MetadataUpdate
	// FullUpdate: new game or new position. All fields are written and
	// the position may be enriched.
	FullUpdate
)

func (d Decision) String() string {
	switch d {
	case NoChange:
		return "no_change"
	case MetadataUpdate:
		return "metadata_update"
	case FullUpdate:
		return "full_update"
	}
	return "unknown"
}

// Reconcile diffs position first, metadata second. A stored nil means the
// game has never been written.
func Reconcile(stored, fetched *game.State) Decision {
	if stored == nil || stored.LatestFEN != fetched.LatestFEN {
		return FullUpdate
	}
	if stored.Result != fetched.Result || stored.IsLive != fetched.IsLive {
		return MetadataUpdate
	}
	return NoChange
}

// ShouldEnrich reports whether a decision warrants commentary. Once a
// terminal result is stored the game is never enriched again.
func ShouldEnrich(d Decision, stored *game.State) bool {
	if d != FullUpdate {
		return false
	}
	return stored == nil || !stored.Result.IsTerminal()
}
