package models

import "strings"

// PrimaryTag is the top-level article category. The string value is the
// persisted label.
type PrimaryTag string

const (
	PrimaryPublicEvents PrimaryTag = "Δημόσια Γεγονότα"
	PrimaryWeather      PrimaryTag = "Καιρικά και Φυσικά Φαινόμενα"
	PrimaryTransport    PrimaryTag = "Μεταφορές και Κυκλοφορία"
	PrimaryPollution    PrimaryTag = "Ρύπανση και Περιβαλλοντικά Συμβάντα"
	PrimaryNotRelevant  PrimaryTag = "Μη σχετικό"

	// PrimaryUnrecognized marks generator output outside the taxonomy.
	PrimaryUnrecognized PrimaryTag = ""
)

var knownPrimaryTags = []PrimaryTag{
	PrimaryPublicEvents,
	PrimaryWeather,
	PrimaryTransport,
	PrimaryPollution,
	PrimaryNotRelevant,
}

// ParsePrimaryTag maps free text onto the closed taxonomy. Surrounding
// whitespace and quotes are ignored; anything else must match exactly.
func ParsePrimaryTag(text string) PrimaryTag {
	s := strings.Trim(strings.TrimSpace(text), `"'.`)
	for _, t := range knownPrimaryTags {
		if s == string(t) {
			return t
		}
	}
	return PrimaryUnrecognized
}

// KnownPrimaryTags returns the recognised tags in taxonomy order.
func KnownPrimaryTags() []PrimaryTag {
	out := make([]PrimaryTag, len(knownPrimaryTags))
	copy(out, knownPrimaryTags)
	return out
}

func (t PrimaryTag) String() string {
	return string(t)
}

// IsWeather reports whether t is the weather category, whose articles join
// sensor results without an assigned sensor.
func (t PrimaryTag) IsWeather() bool {
	return t == PrimaryWeather
}

// Recognized reports whether t belongs to the taxonomy.
func (t PrimaryTag) Recognized() bool {
	return t != PrimaryUnrecognized
}

// HasSecondary reports whether articles with this tag carry a secondary tag.
func (t PrimaryTag) HasSecondary() bool {
	return t.Recognized() && t != PrimaryNotRelevant
}
