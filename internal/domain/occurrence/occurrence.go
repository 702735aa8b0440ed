package occurrence

import (
	"math"
	"sort"
	"strconv"
	"time"
)

// DateFormat is the canonical layout for occurrence keys, e.g. "2024/06/03".
const DateFormat = "2006/01/02"

// MaxSpeakers is the capacity of the speaker roster per occurrence.
const MaxSpeakers = 2

// JST is the fixed timezone every occurrence key is derived in.
var JST = mustLoadJST()

func mustLoadJST() *time.Location {
	loc, err := time.LoadLocation("Asia/Tokyo")
	if err != nil {
		// Asia/Tokyo has a fixed +9 offset; fall back if tzdata is absent.
		return time.FixedZone("JST", 9*60*60)
	}
	return loc
}

// Key identifies one calendar instance of the recurring meeting.
type Key string

// KeyFor returns the occurrence key for the given instant, evaluated in JST.
func KeyFor(t time.Time) Key {
	return Key(t.In(JST).Format(DateFormat))
}

// Clock abstracts "now" so services and the scheduler can be tested
// against a pinned time.
type Clock interface {
	Now() time.Time
}

// SystemClock is the production Clock.
type SystemClock struct{}

func (SystemClock) Now() time.Time { return time.Now() }

// PromptRef links an occurrence to the declaration message used for
// reaction correlation. At most one per occurrence; re-posting overwrites.
type PromptRef struct {
	Channel   string
	Timestamp string
}

// SpeakerRequest is one participant's speaker sign-up state for an
// occurrence. Toggling off keeps the entry with Active=false; toggling
// back on overwrites RequestedAt with the new event timestamp.
type SpeakerRequest struct {
	Active      bool
	RequestedAt string
}

// TopSpeakers derives the active roster from a speaker-request ledger:
// active entries sorted ascending by their numeric request timestamp,
// truncated to MaxSpeakers. Ties break by user ID so the result is
// deterministic regardless of map iteration order. The capacity limit is
// applied here, at read time; the ledger itself may hold more actives.
func TopSpeakers(requests map[string]SpeakerRequest) []string {
	type entry struct {
		userID string
		at     float64
	}
	active := make([]entry, 0, len(requests))
	for userID, req := range requests {
		if !req.Active {
			continue
		}
		at, err := strconv.ParseFloat(req.RequestedAt, 64)
		if err != nil {
			// Unparsable tokens sort last rather than poisoning the roster.
			at = math.MaxFloat64
		}
		active = append(active, entry{userID: userID, at: at})
	}
	sort.Slice(active, func(i, j int) bool {
		if active[i].at != active[j].at {
			return active[i].at < active[j].at
		}
		return active[i].userID < active[j].userID
	})
	if len(active) > MaxSpeakers {
		active = active[:MaxSpeakers]
	}
	speakers := make([]string, len(active))
	for i, e := range active {
		speakers[i] = e.userID
	}
	return speakers
}
