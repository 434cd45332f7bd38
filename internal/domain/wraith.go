package domain

import "time"

// Mood is one of the four states of the wraith engine. Transitions form a
// complete graph: any mood may follow any other.
type Mood string

const (
	MoodCalm       Mood = "calm"
	MoodPlayful    Mood = "playful"
	MoodMelancholy Mood = "melancholy"
	MoodVengeful   Mood = "vengeful"
)

// Moods lists every valid mood in a fixed order.
var Moods = []Mood{MoodCalm, MoodPlayful, MoodMelancholy, MoodVengeful}

func (m Mood) Valid() bool {
	switch m {
	case MoodCalm, MoodPlayful, MoodMelancholy, MoodVengeful:
		return true
	}
	return false
}

// Persona is the display name the wraith signs its messages with.
func (m Mood) Persona() string {
	switch m {
	case MoodPlayful:
		return "the Trickster Wraith"
	case MoodMelancholy:
		return "the Mourning Wraith"
	case MoodVengeful:
		return "the Hollow Wraith"
	default:
		return "the Quiet Wraith"
	}
}

type TriggerType string

const (
	TriggerKeyword   TriggerType = "keyword"
	TriggerSilence   TriggerType = "silence"
	TriggerSentiment TriggerType = "sentiment"
	TriggerTime      TriggerType = "time"
	TriggerNarrative TriggerType = "narrative"
)

// TriggerEvent records one intervention in the wraith's history. Events are
// append-only; only Reset clears them.
type TriggerEvent struct {
	Type      TriggerType    `json:"type"`
	Payload   map[string]any `json:"payload,omitempty"`
	Mood      Mood           `json:"mood,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
}

const (
	DefaultMood      = MoodCalm
	DefaultIntensity = 20
)

// WraithState is the single shared mutable state of the deployment. Exactly
// one exists system-wide; it lives as one JSON blob in the shared store and
// every mutation must go through the store's atomic mutate.
// Field names follow the shared-store schema the bulletin-board app reads.
type WraithState struct {
	Mood             Mood           `json:"mood"`
	Intensity        int            `json:"intensity"`
	LastIntervention time.Time      `json:"lastInterventionTime"`
	History          []TriggerEvent `json:"triggerHistory"`
}

// NewWraithState returns the default state used on first access and on reset.
// LastIntervention starts at creation time so the silence rule measures from
// boot, not from the zero time.
func NewWraithState() *WraithState {
	return &WraithState{
		Mood:             DefaultMood,
		Intensity:        DefaultIntensity,
		LastIntervention: time.Now().UTC(),
	}
}

// ClampIntensity bounds an intensity value to [0,100].
func ClampIntensity(v int) int {
	if v < 0 {
		return 0
	}
	if v > 100 {
		return 100
	}
	return v
}

// Normalize repairs a state read from the store so invariants hold even if
// the blob predates the current schema.
func (s *WraithState) Normalize() {
	if !s.Mood.Valid() {
		s.Mood = DefaultMood
	}
	s.Intensity = ClampIntensity(s.Intensity)
}
