package filter

import (
	"fmt"
	"strings"
)

// RequestType is a bitmask of the types of network requests made by a browser
// tab.
type RequestType uint16

// RequestType values.
const (
	TypeDocument RequestType = 1 << iota
	TypeSubdocument
	TypeImage
	TypeScript
	TypeStylesheet
	TypeObject
	TypeXMLHTTPRequest
	TypeMedia
	TypeFont
	TypeWebSocket
	TypeWebRTC
	TypeOther

	// TypeAll is the bitmask of all request types.
	TypeAll = TypeDocument |
		TypeSubdocument |
		TypeImage |
		TypeScript |
		TypeStylesheet |
		TypeObject |
		TypeXMLHTTPRequest |
		TypeMedia |
		TypeFont |
		TypeWebSocket |
		TypeWebRTC |
		TypeOther

	// TypeNone means that no request type is set.
	TypeNone RequestType = 0
)

// requestTypeNames maps the request types to the names used by the browser
// adapter.
var requestTypeNames = map[RequestType]string{
	TypeDocument:       "DOCUMENT",
	TypeSubdocument:    "SUBDOCUMENT",
	TypeImage:          "IMAGE",
	TypeScript:         "SCRIPT",
	TypeStylesheet:     "STYLESHEET",
	TypeObject:         "OBJECT",
	TypeXMLHTTPRequest: "XMLHTTPREQUEST",
	TypeMedia:          "MEDIA",
	TypeFont:           "FONT",
	TypeWebSocket:      "WEBSOCKET",
	TypeWebRTC:         "WEBRTC",
	TypeOther:          "OTHER",
}

// optionTypes maps the names of the request-type filter-list options to the
// request types.
var optionTypes = map[string]RequestType{
	"document":          TypeDocument,
	"subdocument":       TypeSubdocument,
	"image":             TypeImage,
	"script":            TypeScript,
	"stylesheet":        TypeStylesheet,
	"object":            TypeObject,
	"object-subrequest": TypeObject,
	"xmlhttprequest":    TypeXMLHTTPRequest,
	"media":             TypeMedia,
	"font":              TypeFont,
	"websocket":         TypeWebSocket,
	"webrtc":            TypeWebRTC,
	"other":             TypeOther,
}

// ParseRequestType parses the name of a single request type as sent by the
// browser adapter.  The parsing is case-insensitive.
func ParseRequestType(s string) (t RequestType, err error) {
	upper := strings.ToUpper(s)
	for typ, name := range requestTypeNames {
		if name == upper {
			return typ, nil
		}
	}

	return TypeNone, fmt.Errorf("unknown request type %q", s)
}

// RequestTypeFromOption returns the request type for the filter-list option
// name.  ok is false if name is not a request-type option.
func RequestTypeFromOption(name string) (t RequestType, ok bool) {
	t, ok = optionTypes[name]

	return t, ok
}

// String implements the [fmt.Stringer] interface for RequestType.  Bitmasks
// with several bits set are printed as names joined with "|".
func (t RequestType) String() (s string) {
	if name, ok := requestTypeNames[t]; ok {
		return name
	}

	var names []string
	for bit := TypeDocument; bit <= TypeOther; bit <<= 1 {
		if t&bit != 0 {
			names = append(names, requestTypeNames[bit])
		}
	}

	if len(names) == 0 {
		return fmt.Sprintf("!bad_request_type_%d", uint16(t))
	}

	return strings.Join(names, "|")
}

// MarshalText implements the [encoding.TextMarshaler] interface for
// RequestType.
func (t RequestType) MarshalText() (b []byte, err error) {
	return []byte(t.String()), nil
}

// UnmarshalText implements the [encoding.TextUnmarshaler] interface for
// *RequestType.
func (t *RequestType) UnmarshalText(b []byte) (err error) {
	*t, err = ParseRequestType(string(b))

	return err
}
