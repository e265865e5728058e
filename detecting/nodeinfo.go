package detecting

import "strings"

// NodeinfoSchemaSubstring marks a discovery link as pointing at a nodeinfo
// detail document, whatever the schema version suffix.
const NodeinfoSchemaSubstring = "nodeinfo.diaspora.software/ns/schema/"

// WellKnownPath is the nodeinfo discovery document location.
const WellKnownPath = "/.well-known/nodeinfo"

// discoveryDocument is the /.well-known/nodeinfo response. Link fields are
// decoded as dynamic values so a malformed entry is skipped instead of
// failing the whole document.
type discoveryDocument struct {
	Links []discoveryLink `json:"links"`
}

type discoveryLink struct {
	Rel  any `json:"rel"`
	Href any `json:"href"`
}

// nodeinfoDocument is the linked detail document. Only software.name is
// consulted; version and protocol fields are ignored.
type nodeinfoDocument struct {
	Software struct {
		Name any `json:"name"`
	} `json:"software"`
}

// stringField coerces a dynamic JSON value to a string. Null, absent, and
// non-string values all coerce to "".
func stringField(v any) string {
	s, _ := v.(string)
	return s
}

// nodeinfoHref scans links in order and returns the href of the first entry
// whose rel contains the nodeinfo schema namespace. Scanning stops at the
// first match even when its href is absent. The bool reports whether any
// entry matched.
func nodeinfoHref(doc discoveryDocument) (string, bool) {
	for _, link := range doc.Links {
		if strings.Contains(stringField(link.Rel), NodeinfoSchemaSubstring) {
			return stringField(link.Href), true
		}
	}
	return "", false
}
