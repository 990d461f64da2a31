package classifier

import (
	"strings"

	"vendotrash/internal/domain"
)

// judge runs one label through the pipeline. The order of the steps matters:
// an explicit phrase match beats the glass override, and the rejection checks
// only run for labels that were not accepted.
func judge(l label, all []label, ctx Context) domain.LabelDecision {
	name := l.name
	accepted, explicit := matchAccepted(l)
	if accepted && !explicit && !qualified(l) {
		accepted = false
	}

	if !accepted && rescuePlastic(l, all, ctx) {
		accepted = true
		name = plasticRescueName
	}

	rejected := !accepted && matchRejected(l, ctx)

	if l.hasAny("glass", "jar") && !explicit && !(ctx.Transparency && ctx.Bottle) {
		rejected = true
		accepted = false
	}

	outcome := domain.OutcomeUnknown
	switch {
	case rejected:
		outcome = domain.OutcomeRejected
	case accepted && keepAccepted(l, ctx):
		outcome = domain.OutcomeAccepted
	case accepted:
		outcome = domain.OutcomeRejected
	}
	return domain.LabelDecision{Name: name, Confidence: l.confidence, Outcome: outcome}
}

// matchAccepted reports whether the label hits an accepted phrase, and whether
// that hit is exact or near-exact (phrase inside the label or label inside the
// phrase).
func matchAccepted(l label) (accepted, explicit bool) {
	for _, p := range acceptedVocabulary {
		if containsAll(l, p.words) || strings.Contains(l.lower, p.text) {
			explicit = p.text == l.lower || strings.Contains(l.lower, p.text) || strings.Contains(p.text, l.lower)
			return true, explicit
		}
	}
	return false, false
}

func containsAll(l label, words []string) bool {
	for _, w := range words {
		if !l.has(w) {
			return false
		}
	}
	return true
}

// qualified re-validates a loose phrase match: a bottle needs a plastic or
// drink qualifier, a can needs a metal or drink qualifier.
func qualified(l label) bool {
	if l.has("bottle") && !l.hasAny(bottleQualifiers...) {
		return false
	}
	if l.has("can") && !l.hasAny(canQualifiers...) {
		return false
	}
	return true
}

// rescuePlastic promotes a bare "plastic" label when another label places it
// in a bottle context and nothing looks like glass.
func rescuePlastic(l label, all []label, ctx Context) bool {
	if l.lower != "plastic" || !ctx.Bottle || ctx.Glass {
		return false
	}
	for _, other := range all {
		if other.index != l.index && other.hasAny("water", "bottle") {
			return true
		}
	}
	return false
}

func matchRejected(l label, ctx Context) bool {
	for _, w := range rejectedWords {
		if l.has(w) {
			return true
		}
	}
	if l.hasAny("glass", "jar") {
		return true
	}
	if l.lower == "bottle" || (strings.HasPrefix(l.lower, "bottle ") && !l.hasAny(bottleQualifiers...)) {
		if !ctx.Plastic {
			return true
		}
	}
	if l.lower == "can" || (strings.HasSuffix(l.lower, " can") && !l.hasAny(canQualifiers...)) {
		return true
	}
	if l.lower == "plastic" && !ctx.Bottle && !ctx.Can {
		return true
	}
	_, generic := genericContainers[l.lower]
	return generic
}

// keepAccepted is the last guard on an accepted label. It only looks at this
// label's own words, never at the set-wide glass context.
func keepAccepted(l label, ctx Context) bool {
	if l.hasAny("glass", "jar") {
		return false
	}
	switch l.lower {
	case "bottle":
		return ctx.Plastic
	case "can":
		return ctx.Can
	}
	_, generic := genericContainers[l.lower]
	return !generic
}
