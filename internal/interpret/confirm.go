package interpret

import "strings"

// Confirmation is the intent of a yes/no answer.
type Confirmation int

const (
	Ambiguous Confirmation = iota
	Affirmative
	Negative
)

// String returns the lower-case name of c.
func (c Confirmation) String() string {
	switch c {
	case Affirmative:
		return "affirmative"
	case Negative:
		return "negative"
	default:
		return "ambiguous"
	}
}

var (
	affirmativeCues = []string{"sim", "correto", "isso mesmo"}
	negativeCues    = []string{"não", "errado", "incorreto"}

	// hedges express uncertainty. Their words never count as cues, and an
	// answer containing one is ambiguous unless another cue remains.
	hedges = []string{"não sei", "talvez", "acho que"}
)

// ClassifyConfirmation classifies transcript by case-insensitive substring
// match against the affirmative and negative cue sets. Matching both or
// neither is [Ambiguous]. "correto" inside "incorreto" only counts as
// negative, and hedge phrases such as "não sei" are not read as "não".
func ClassifyConfirmation(transcript string) Confirmation {
	t := strings.ToLower(transcript)
	for _, h := range hedges {
		t = strings.ReplaceAll(t, h, " ")
	}

	neg := containsAny(t, negativeCues)
	// Blank out "incorreto" so its "correto" does not read as a yes.
	aff := containsAny(strings.ReplaceAll(t, "incorreto", " "), affirmativeCues)

	switch {
	case aff && !neg:
		return Affirmative
	case neg && !aff:
		return Negative
	default:
		return Ambiguous
	}
}

func containsAny(s string, cues []string) bool {
	for _, c := range cues {
		if strings.Contains(s, c) {
			return true
		}
	}
	return false
}
