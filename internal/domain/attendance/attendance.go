package attendance

import "context"

// Status is the attendance state recorded for a participant, stored as the
// localized string used in the spreadsheet.
type Status string

const (
	StatusInPerson Status = "対面"
	StatusRemote   Status = "オンライン"
	StatusAbsent   Status = "欠席"
)

// ReactionStatuses maps reaction names on the declaration message to
// attendance statuses. Any reaction outside this table (other than
// SpeakerReaction) is ignored.
var ReactionStatuses = map[string]Status{
	"white_check_mark": StatusInPerson,
	"computer":         StatusRemote,
	"zzz":              StatusAbsent,
}

// SpeakerReaction is the reserved reaction for speaker sign-up.
const SpeakerReaction = "microphone"

// SpeakerMark is the cell value marking a speaker row in the sheet.
const SpeakerMark = "○"

// Record is one (occurrence, participant) row of the attendance sheet.
type Record struct {
	Date        string
	Participant string
	Status      Status
	Speaker     bool
	Topic       string
	UserID      string
}

// Repository defines the operations against the external attendance sheet.
// Implementations are selected once at startup and never swapped at runtime.
type Repository interface {
	// UpsertAttendance writes the participant's status for an occurrence,
	// keyed by (date, userID) with a display-name fallback for rows written
	// under the legacy schema. At most one row per key.
	UpsertAttendance(ctx context.Context, date, userID, participant string, status Status) error
	// UpdateSpeakerFlags recomputes the speaker column for every row of the
	// occurrence from the given roster. Full rewrite from current truth:
	// idempotent and self-healing, but not guarded against concurrent
	// writers (see DESIGN.md).
	UpdateSpeakerFlags(ctx context.Context, date string, speakerIDs []string) error
	// UpdateTopic sets the topic cell for the participant's row. No-op when
	// the row does not exist yet.
	UpdateTopic(ctx context.Context, date, userID, topic string) error
	// ListByDate returns every record for the occurrence.
	ListByDate(ctx context.Context, date string) ([]Record, error)
}
