package trigger

import (
	"math/rand"
	"strconv"
	"strings"
	"time"
	"unicode"

	"github.com/AtharvaKatiyar/WRAITHNET-sub000/internal/domain"
)

// Rule priorities. Results are returned sorted descending; ties keep the
// evaluation order keyword > sentiment > silence.
const (
	PriorityKeyword   = 80
	PrioritySentiment = 60
	PrioritySilence   = 50
)

// Sentiment thresholds, applied to the summed lexicon score.
const (
	scoreVengeful   = -5
	scoreMelancholy = -2
	scoreCalm       = 5
	scorePlayful    = 2
)

// Context is what a single evaluation sees: the (possibly empty) message and
// the time elapsed since the wraith last intervened.
type Context struct {
	Message      string
	SinceLastAct time.Duration
}

// Result is a proposed mood transition. Rules never apply anything
// themselves; the wraith engine picks the highest-priority proposal.
type Result struct {
	Type     domain.TriggerType
	Mood     domain.Mood
	Priority int
	Reason   string
}

// keywordSet maps a fixed set of substrings to one mood. Sets are scanned in
// slice order and the first set with a match wins.
type keywordSet struct {
	mood     domain.Mood
	keywords []string
}

var keywordSets = []keywordSet{
	{domain.MoodCalm, []string{"help", "lost", "afraid", "scared"}},
	{domain.MoodVengeful, []string{"hate", "curse", "revenge", "rage"}},
	{domain.MoodPlayful, []string{"play", "game", "joke", "riddle"}},
	{domain.MoodMelancholy, []string{"sorrow", "grief", "mourn", "weep"}},
}

// silenceMoods are the non-hostile moods the silence rule picks from.
var silenceMoods = []domain.Mood{domain.MoodCalm, domain.MoodPlayful, domain.MoodMelancholy}

type Evaluator struct {
	silenceThreshold time.Duration
}

func NewEvaluator(silenceThreshold time.Duration) *Evaluator {
	return &Evaluator{silenceThreshold: silenceThreshold}
}

// Evaluate runs every rule against ctx. Each rule is independent and
// side-effect free; a rule that does not apply simply contributes nothing.
func (e *Evaluator) Evaluate(ctx Context) []Result {
	results := make([]Result, 0, 3)

	if r, ok := evalKeyword(ctx.Message); ok {
		results = append(results, r)
	}
	if r, ok := evalSentiment(ctx.Message); ok {
		results = append(results, r)
	}
	if r, ok := e.evalSilence(ctx.SinceLastAct); ok {
		results = append(results, r)
	}

	return results
}

func evalKeyword(message string) (Result, bool) {
	lowered := strings.ToLower(strings.TrimSpace(message))
	if lowered == "" {
		return Result{}, false
	}

	for _, set := range keywordSets {
		for _, keyword := range set.keywords {
			if strings.Contains(lowered, keyword) {
				return Result{
					Type:     domain.TriggerKeyword,
					Mood:     set.mood,
					Priority: PriorityKeyword,
					Reason:   "keyword: " + keyword,
				}, true
			}
		}
	}
	return Result{}, false
}

func evalSentiment(message string) (Result, bool) {
	if strings.TrimSpace(message) == "" {
		return Result{}, false
	}

	score := Score(message)

	var mood domain.Mood
	switch {
	case score <= scoreVengeful:
		mood = domain.MoodVengeful
	case score <= scoreMelancholy:
		mood = domain.MoodMelancholy
	case score >= scoreCalm:
		mood = domain.MoodCalm
	case score >= scorePlayful:
		mood = domain.MoodPlayful
	default:
		return Result{}, false
	}

	return Result{
		Type:     domain.TriggerSentiment,
		Mood:     mood,
		Priority: PrioritySentiment,
		Reason:   "sentiment score " + strconv.Itoa(score),
	}, true
}

func (e *Evaluator) evalSilence(elapsed time.Duration) (Result, bool) {
	if elapsed <= e.silenceThreshold {
		return Result{}, false
	}

	mood := silenceMoods[rand.Intn(len(silenceMoods))]
	return Result{
		Type:     domain.TriggerSilence,
		Mood:     mood,
		Priority: PrioritySilence,
		Reason:   "silence exceeded " + e.silenceThreshold.String(),
	}, true
}

// Score sums the lexicon valence of every token in the message.
func Score(message string) int {
	score := 0
	for _, token := range tokenize(message) {
		score += sentimentLexicon[token]
	}
	return score
}

func tokenize(message string) []string {
	return strings.FieldsFunc(strings.ToLower(message), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsNumber(r)
	})
}
