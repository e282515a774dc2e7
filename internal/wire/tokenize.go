package wire

import "strings"

// Tokenize splits s on runs of whitespace (space, tab, CR, LF), discarding
// empty fields — the shape the selection prompt's reply parsing needs.
func Tokenize(s string) []string {
	return strings.FieldsFunc(s, func(r rune) bool {
		return r == ' ' || r == '\t' || r == '\r' || r == '\n'
	})
}

// ParseOffer splits an Offer payload into its shelf-number field and
// free-form description. The description is normally TAB-separated from
// the shelf number; a historical '\x01' byte is also tolerated as the
// separator between the shelf number and the description.
func ParseOffer(payload string) (shelf string, desc string) {
	sep := strings.IndexAny(payload, "\t\x01")
	if sep < 0 {
		return payload, ""
	}
	return payload[:sep], payload[sep+1:]
}
