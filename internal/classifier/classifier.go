// Package classifier turns a noisy label set from an image-labelling service
// into a single PLASTIC / NON_PLASTIC / REJECTED decision.
//
// Each label runs through an ordered pipeline: phrase acceptance, qualifier
// re-validation, the "plastic" context rescue, rejection checks, and a final
// glass override. Set-wide context flags are computed once per call. When no
// label is accepted, a small set of discounted fallback rules favours recall
// for clear plastic bottles that the labeller tends to call "glass".
package classifier

import (
	"strings"

	"vendotrash/internal/domain"
)

const plasticRescueName = "Plastic bottle (from: Plastic + context)"

// Options holds the fallback discount factors. The zero value is not useful;
// start from DefaultOptions.
type Options struct {
	TransparentBottleDiscount float64
	GlassTransparencyDiscount float64
	MetallicCanDiscount       float64
}

func DefaultOptions() Options {
	return Options{
		TransparentBottleDiscount: 0.70,
		GlassTransparencyDiscount: 0.65,
		MetallicCanDiscount:       0.70,
	}
}

// Context is the set of flags derived from all labels of one call.
type Context struct {
	Bottle         bool `json:"has_bottle_context"`
	Can            bool `json:"has_can_context"`
	Plastic        bool `json:"has_plastic_context"`
	Glass          bool `json:"has_glass_context"`
	Transparency   bool `json:"has_transparency"`
	SilverMetallic bool `json:"has_silver_metallic"`
}

// Rule names the path that produced a verdict.
type Rule string

const (
	RuleAccepted          Rule = "accepted_label"
	RuleTransparentBottle Rule = "fallback_transparent_bottle"
	RuleGlassTransparency Rule = "fallback_glass_transparency"
	RuleMetallicCan       Rule = "fallback_metallic_can"
	RuleNoMatch           Rule = "no_match"
)

type Result struct {
	Verdict   domain.ClassificationVerdict
	Rule      Rule
	BestLabel string
	Context   Context
	Decisions []domain.LabelDecision
}

// Classifier is stateless and safe for concurrent use.
type Classifier struct {
	opts Options
}

func New(opts Options) *Classifier {
	return &Classifier{opts: opts}
}

func (c *Classifier) Classify(labels domain.LabelSet) domain.ClassificationVerdict {
	return c.Evaluate(labels).Verdict
}

// Evaluate classifies labels and keeps the per-label decisions for diagnostics.
func (c *Classifier) Evaluate(labels domain.LabelSet) Result {
	parsed := make([]label, len(labels))
	for i, l := range labels {
		parsed[i] = newLabel(i, l)
	}
	ctx := newContext(parsed)

	res := Result{
		Context:   ctx,
		Decisions: make([]domain.LabelDecision, 0, len(parsed)),
	}

	var best *domain.LabelDecision
	for i := range parsed {
		d := judge(parsed[i], parsed, ctx)
		res.Decisions = append(res.Decisions, d)
		if d.Outcome == domain.OutcomeAccepted && (best == nil || d.Confidence > best.Confidence) {
			dd := d
			best = &dd
		}
	}

	if best != nil {
		res.Rule = RuleAccepted
		res.BestLabel = best.Name
		res.Verdict = domain.ClassificationVerdict{
			Material:   materialOf(best.Name),
			Confidence: best.Confidence,
		}
		return res
	}

	base := fallbackBase(parsed, res.Decisions)
	switch {
	case ctx.Transparency && ctx.Bottle:
		res.Rule = RuleTransparentBottle
		res.Verdict = domain.ClassificationVerdict{Material: domain.MaterialPlastic, Confidence: base * c.opts.TransparentBottleDiscount}
	case ctx.Glass && ctx.Transparency:
		res.Rule = RuleGlassTransparency
		res.Verdict = domain.ClassificationVerdict{Material: domain.MaterialPlastic, Confidence: base * c.opts.GlassTransparencyDiscount}
	case ctx.SilverMetallic && ctx.Can && !ctx.Glass:
		res.Rule = RuleMetallicCan
		res.Verdict = domain.ClassificationVerdict{Material: domain.MaterialNonPlastic, Confidence: base * c.opts.MetallicCanDiscount}
	default:
		res.Rule = RuleNoMatch
		res.Verdict = domain.ClassificationVerdict{Material: domain.MaterialRejected, Confidence: 0}
	}
	return res
}

// materialOf maps the winning label to a material. Bottles are plastic, cans
// are metal, anything else accepted defaults to plastic.
func materialOf(name string) domain.Material {
	n := strings.ToLower(name)
	switch {
	case strings.Contains(n, "bottle") && !strings.Contains(n, "glass"):
		return domain.MaterialPlastic
	case strings.Contains(n, "can"):
		return domain.MaterialNonPlastic
	default:
		return domain.MaterialPlastic
	}
}

// fallbackBase is the confidence the fallback discounts apply to: the best
// label that was not itself rejected, or the best label overall when every
// label was rejected.
func fallbackBase(labels []label, decisions []domain.LabelDecision) float64 {
	var base, overall float64
	found := false
	for i, l := range labels {
		if l.confidence > overall {
			overall = l.confidence
		}
		if decisions[i].Outcome != domain.OutcomeRejected && (!found || l.confidence > base) {
			base = l.confidence
			found = true
		}
	}
	if !found {
		return overall
	}
	return base
}

type label struct {
	index      int
	name       string
	lower      string
	words      map[string]struct{}
	confidence float64
}

func newLabel(i int, l domain.DetectedLabel) label {
	lower := strings.ToLower(l.Name)
	fields := strings.Fields(lower)
	words := make(map[string]struct{}, len(fields))
	for _, w := range fields {
		words[w] = struct{}{}
	}
	return label{index: i, name: l.Name, lower: lower, words: words, confidence: l.Confidence}
}

func (l label) has(word string) bool {
	_, ok := l.words[word]
	return ok
}

func (l label) hasAny(words ...string) bool {
	for _, w := range words {
		if l.has(w) {
			return true
		}
	}
	return false
}

func newContext(labels []label) Context {
	var ctx Context
	for _, l := range labels {
		ctx.Bottle = ctx.Bottle || l.hasAny("bottle", "water", "soda", "drink")
		ctx.Can = ctx.Can || l.hasAny("can", "aluminum", "tin", "steel")
		ctx.Plastic = ctx.Plastic || l.has("plastic")
		ctx.Glass = ctx.Glass || l.hasAny("glass", "jar")
		ctx.Transparency = ctx.Transparency || l.hasAny("transparency", "transparent")
		ctx.SilverMetallic = ctx.SilverMetallic || l.hasAny("silver", "metallic")
	}
	return ctx
}
