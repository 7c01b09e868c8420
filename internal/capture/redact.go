package capture

import (
	"net/http"
	"strings"
)

// headers never persisted, regardless of configuration
var baseDenyList = []string{"authorization", "cookie", "set-cookie", "x-api-key"}

type DenySet map[string]struct{}

func NewDenySet(extra []string) DenySet {
	set := make(DenySet, len(baseDenyList)+len(extra))

	for _, k := range baseDenyList {
		set[k] = struct{}{}
	}
	for _, k := range extra {
		k = strings.ToLower(strings.TrimSpace(k))
		if k != "" {
			set[k] = struct{}{}
		}
	}

	return set
}

// Redact flattens headers to a single-value map, dropping any key on the
// deny list case-insensitively.
func (d DenySet) Redact(h http.Header) map[string]string {
	out := make(map[string]string, len(h))

	for k, vals := range h {
		if _, denied := d[strings.ToLower(k)]; denied {
			continue
		}
		if len(vals) == 0 {
			continue
		}
		out[k] = strings.Join(vals, ", ")
	}

	return out
}

func (d DenySet) Denied(key string) bool {
	_, ok := d[strings.ToLower(key)]
	return ok
}
