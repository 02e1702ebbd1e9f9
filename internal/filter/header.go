package filter

import (
	"slices"
	"strings"
)

// Header is a single HTTP header of a request or a response as sent by the
// browser adapter.
type Header struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

// FindHeader returns the index of the first header named name in headers or -1
// if there is none.  The names are compared case-insensitively.
func FindHeader(headers []Header, name string) (i int) {
	return slices.IndexFunc(headers, func(h Header) (ok bool) {
		return strings.EqualFold(h.Name, name)
	})
}

// RemoveHeaders returns headers without the headers named name and true if
// any were removed.  headers is modified.
func RemoveHeaders(headers []Header, name string) (res []Header, removed bool) {
	l := len(headers)
	res = slices.DeleteFunc(headers, func(h Header) (ok bool) {
		return strings.EqualFold(h.Name, name)
	})

	return res, len(res) != l
}
