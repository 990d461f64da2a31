package classifier

import "strings"

// acceptedPhrases only names explicit plastic bottles and metal cans. Generic
// terms such as "bottle" or "container" are deliberately absent.
var acceptedPhrases = []string{
	"plastic bottle", "water bottle", "soda bottle", "drink bottle",
	"bottled water", "drinking water",

	"aluminum can", "tin can", "soda can", "beer can", "drink can",
	"steel and tin cans", "soft drink can",
}

var rejectedPhrases = []string{
	// glass and ceramics
	"glass", "glass bottle", "wine bottle", "beer bottle", "glass container",
	"jar", "glass jar", "ceramic", "porcelain",

	// generic containers
	"container", "drinkware", "beverage", "drink",
	"bottle",
	"can",

	// electronics
	"flashlight", "torch", "light", "lamp", "electronic device", "device",
	"battery", "metal scrap",

	"bin", "trash can", "garbage can", "wastebasket",
	"bag", "plastic bag", "paper bag",
	"box", "cardboard box",
	"cup", "mug", "coffee cup",
	"food", "fruit", "vegetable",
	"book", "paper", "newspaper",
}

// genericContainers are never accepted on their own.
var genericContainers = map[string]struct{}{
	"container": {},
	"drinkware": {},
	"beverage":  {},
	"drink":     {},
}

var (
	bottleQualifiers = []string{"plastic", "water", "soda", "drink"}
	canQualifiers    = []string{"aluminum", "tin", "steel", "soda", "beer", "drink"}
)

type phrase struct {
	text  string
	words []string
}

var (
	acceptedVocabulary = compilePhrases(acceptedPhrases)
	rejectedWords      = wordSet(rejectedPhrases)
)

func compilePhrases(list []string) []phrase {
	out := make([]phrase, 0, len(list))
	for _, p := range list {
		out = append(out, phrase{text: p, words: strings.Fields(p)})
	}
	return out
}

func wordSet(list []string) []string {
	seen := make(map[string]struct{})
	var out []string
	for _, p := range list {
		for _, w := range strings.Fields(p) {
			if _, ok := seen[w]; ok {
				continue
			}
			seen[w] = struct{}{}
			out = append(out, w)
		}
	}
	return out
}
