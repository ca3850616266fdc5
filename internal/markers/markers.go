package markers

import (
	"math/rand"
)

// Set holds the eight delimiter strings that frame tool-call regions in model
// text. A Set is chosen once at process start and never changes afterwards:
// tool-call encodings written into conversation history on one turn must still
// parse on later turns of the same process.
type Set struct {
	TCStart     string
	TCEnd       string
	NameStart   string
	NameEnd     string
	ArgsStart   string
	ArgsEnd     string
	ResultStart string
	ResultEnd   string
}

// triples are the (open, close, mid) delimiter rows the set is built from.
var triples = [][3]string{
	{"༒", "༒", "࿇"},
	{"꧁", "꧂", "࿔"},
	{"᎒", "᎒", "᎓"},
	{"ꆈ", "ꆈ", "ꊰ"},
	{"꩜", "꩜", "꩟"},
	{"ꓸ", "ꓸ", "ꓹ"},
}

// suffixes is the pool of rare CJK glyphs appended to the outer delimiters.
var suffixes = []string{
	"龘", "靐", "齉", "麤", "爨", "驫", "鱻", "羴", "犇", "骉",
	"飝", "厵", "靇", "飍", "馫", "灥", "厽", "叒", "叕", "芔",
}

// New picks a delimiter triple and two suffix glyphs uniformly at random and
// builds the marker set. The joint space (6 x 20 x 20 combinations over
// uncommon code points) makes collision with real model output vanishingly
// unlikely, so no escaping scheme exists; restart the process for a fresh set
// if one is ever observed.
func New() Set {
	return Pick(rand.Intn(len(triples)), rand.Intn(len(suffixes)), rand.Intn(len(suffixes)))
}

// Pick builds the marker set from explicit pool indices. Tests use it to get a
// deterministic set.
func Pick(triple, s1, s2 int) Set {
	opener, closer, mid := triples[triple][0], triples[triple][1], triples[triple][2]
	g1, g2 := suffixes[s1], suffixes[s2]

	return Set{
		TCStart:     opener + g1 + "ᐅ",
		TCEnd:       "ᐊ" + g1 + closer,
		NameStart:   mid + "▸",
		NameEnd:     "◂" + mid,
		ArgsStart:   mid + "▹",
		ArgsEnd:     "◃" + mid,
		ResultStart: opener + g2 + "⟫",
		ResultEnd:   "⟪" + g2 + closer,
	}
}
