package filterlist

import (
	"bufio"
	"strconv"
	"strings"
	"time"

	"github.com/grafana/regexp"
)

// maxMetadataLines is the number of the first lines of a list searched for the
// metadata tags.
const maxMetadataLines = 50

// Metadata tags.
const (
	tagTitle       = "Title"
	tagDescription = "Description"
	tagHomepage    = "Homepage"
	tagVersion     = "Version"
	tagExpires     = "Expires"
	tagTimeUpdated = "TimeUpdated"
)

// Metadata is the information from the header of a filter list.
type Metadata struct {
	// TimeUpdated is the time the list was updated by its authors.  It's zero
	// if the list doesn't have a valid TimeUpdated tag.
	TimeUpdated time.Time `json:"time_updated"`

	Title       string `json:"title"`
	Description string `json:"description"`
	Homepage    string `json:"homepage"`
	Version     string `json:"version"`

	// Expires is the update period suggested by the authors of the list.  It's
	// zero if the list doesn't have a valid Expires tag.
	Expires time.Duration `json:"expires"`
}

// ParseMetadata returns the metadata from the first lines of text.  If a tag
// appears more than once, the last value is used.
func ParseMetadata(text string) (md *Metadata) {
	tags := map[string]string{}

	sc := bufio.NewScanner(strings.NewReader(text))
	for i := 0; i < maxMetadataLines && sc.Scan(); i++ {
		name, val, ok := parseTag(sc.Text())
		if ok {
			tags[name] = val
		}
	}

	md = &Metadata{
		Title:       tags[tagTitle],
		Description: tags[tagDescription],
		Homepage:    tags[tagHomepage],
		Version:     tags[tagVersion],
	}

	md.Expires, _ = parseExpires(tags[tagExpires])
	md.TimeUpdated, _ = parseTimeUpdated(tags[tagTimeUpdated])

	return md
}

// tagRe matches a metadata line such as "! Title: Base filter".
var tagRe = regexp.MustCompile(`!\s(Title|Description|Homepage|Version|Expires|TimeUpdated):\s(.*)$`)

// parseTag returns the name and the value of the metadata tag in line.
func parseTag(line string) (name, val string, ok bool) {
	m := tagRe.FindStringSubmatch(line)
	if m == nil {
		return "", "", false
	}

	return m[1], strings.TrimSpace(m[2]), true
}

// MaxExpires is the longest update period accepted from the Expires tag.
// Longer periods are reduced to it.
const MaxExpires = 365 * 24 * time.Hour

// expiresRe matches the value of the Expires tag, for example "4 days (update
// frequency)" or "12 hours".
var expiresRe = regexp.MustCompile(`(?i)^(\d+)\s*(days?|d|hours?|h)?\b`)

// parseExpires parses the value of the Expires tag.  A number without the unit
// is a number of days.  d is never longer than [MaxExpires].
func parseExpires(s string) (d time.Duration, ok bool) {
	m := expiresRe.FindStringSubmatch(s)
	if m == nil {
		return 0, false
	}

	n, err := strconv.Atoi(m[1])
	if err != nil || n <= 0 {
		return 0, false
	}

	unit := 24 * time.Hour
	if strings.HasPrefix(strings.ToLower(m[2]), "h") {
		unit = time.Hour
	}

	if n > int(MaxExpires/unit) {
		return MaxExpires, true
	}

	return time.Duration(n) * unit, true
}

// timeUpdatedLayouts are the layouts of the TimeUpdated tag.  The offset is
// either "+hh:mm" or "+hhmm".
var timeUpdatedLayouts = []string{
	time.RFC3339,
	"2006-01-02T15:04:05-0700",
	"2006-01-02T15:04:05.000-0700",
}

// parseTimeUpdated parses the value of the TimeUpdated tag.
func parseTimeUpdated(s string) (t time.Time, ok bool) {
	if s == "" {
		return time.Time{}, false
	}

	for _, layout := range timeUpdatedLayouts {
		parsed, err := time.Parse(layout, s)
		if err == nil {
			return parsed, true
		}
	}

	return time.Time{}, false
}
