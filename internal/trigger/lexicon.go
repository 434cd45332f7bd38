package trigger

// sentimentLexicon is an AFINN-style valence map used by the sentiment rule.
// Scores run from -5 (hostile) to +5 (warm). The list is intentionally small:
// the rule only needs enough signal to cross the +-2 / +-5 thresholds.
var sentimentLexicon = map[string]int{
	// negative
	"abandoned": -2,
	"afraid":    -2,
	"angry":     -3,
	"awful":     -3,
	"betrayed":  -3,
	"cruel":     -3,
	"cursed":    -3,
	"dead":      -3,
	"despair":   -4,
	"die":       -3,
	"dread":     -3,
	"evil":      -3,
	"fear":      -2,
	"furious":   -4,
	"grief":     -3,
	"hate":      -3,
	"haunted":   -2,
	"horrible":  -3,
	"hurt":      -2,
	"kill":      -4,
	"lonely":    -2,
	"loss":      -2,
	"miserable": -3,
	"nightmare": -3,
	"pain":      -2,
	"rage":      -4,
	"sad":       -2,
	"scream":    -2,
	"suffer":    -3,
	"terrible":  -3,
	"terror":    -4,
	"torment":   -4,
	"worst":     -3,

	// positive
	"amazing":   4,
	"beautiful": 3,
	"calm":      2,
	"delight":   3,
	"friend":    2,
	"gentle":    2,
	"glad":      2,
	"great":     3,
	"happy":     3,
	"hope":      2,
	"joy":       3,
	"kind":      2,
	"laugh":     2,
	"love":      3,
	"lovely":    3,
	"peace":     3,
	"peaceful":  3,
	"perfect":   3,
	"serene":    3,
	"smile":     2,
	"warm":      2,
	"wonderful": 4,
}
