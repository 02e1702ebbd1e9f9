// Package redirect contains the storage of the resources that the $redirect
// rules replace the blocked responses with.
package redirect

import (
	"encoding/base64"
	"fmt"
	"strings"

	"github.com/AdguardTeam/golibs/errors"
	"gopkg.in/yaml.v2"
)

// ErrNoResource is returned when there is no resource with the requested
// title.
const ErrNoResource errors.Error = "no redirect resource"

// Resource is a single redirect resource.
type Resource struct {
	// Title is the name used in the $redirect option.
	Title string `yaml:"title"`

	// Comment is an optional human-readable description.
	Comment string `yaml:"comment"`

	// ContentType is the MIME type of the content, possibly with parameters,
	// such as "image/gif;base64".
	ContentType string `yaml:"contentType"`

	// Content is the body of the resource.  It is base64-encoded if
	// ContentType contains "base64".
	Content string `yaml:"content"`

	// Aliases are the alternative titles of the resource.
	Aliases []string `yaml:"aliases"`
}

// Resources contains the redirect resources by their titles and aliases.
//
// A Resources is safe for concurrent use after it's created.
type Resources struct {
	byTitle map[string]*Resource
}

// Parse parses the YAML list of the redirect resources.
func Parse(data []byte) (res *Resources, err error) {
	var list []*Resource
	err = yaml.Unmarshal(data, &list)
	if err != nil {
		return nil, fmt.Errorf("parsing redirect resources: %w", err)
	}

	res = &Resources{
		byTitle: make(map[string]*Resource, len(list)),
	}

	var errs []error
	for i, r := range list {
		if r == nil || r.Title == "" {
			errs = append(errs, fmt.Errorf("resource at index %d: title: %w", i, errors.ErrEmptyValue))

			continue
		}

		if r.ContentType == "" {
			errs = append(errs, fmt.Errorf("resource %q: contentType: %w", r.Title, errors.ErrEmptyValue))

			continue
		}

		for _, title := range append([]string{r.Title}, r.Aliases...) {
			if _, ok := res.byTitle[title]; ok {
				errs = append(errs, fmt.Errorf("resource %q: %w", title, errors.ErrDuplicated))

				continue
			}

			res.byTitle[title] = r
		}
	}

	err = errors.Join(errs...)
	if err != nil {
		return nil, fmt.Errorf("parsing redirect resources: %w", err)
	}

	return res, nil
}

// Len returns the number of titles and aliases in res.  res may be nil.
func (res *Resources) Len() (n int) {
	if res == nil {
		return 0
	}

	return len(res.byTitle)
}

// Has returns true if there is a resource with the given title.  res may be
// nil.
func (res *Resources) Has(title string) (ok bool) {
	if res == nil {
		return false
	}

	_, ok = res.byTitle[title]

	return ok
}

// base64Marker is the content-type parameter showing that the content is
// already encoded.
const base64Marker = "base64"

// BuildURL returns the data URL of the resource with the given title.  The
// content is base64-encoded unless it already is.  res may be nil.
func (res *Resources) BuildURL(title string) (u string, err error) {
	if title == "" {
		return "", fmt.Errorf("title: %w", errors.ErrEmptyValue)
	}

	var r *Resource
	if res != nil {
		r = res.byTitle[title]
	}

	if r == nil {
		return "", fmt.Errorf("%w: %q", ErrNoResource, title)
	}

	content, contentType := r.Content, r.ContentType
	if !strings.Contains(contentType, base64Marker) {
		content = base64.StdEncoding.EncodeToString([]byte(content))
		contentType += ";" + base64Marker
	}

	return "data:" + contentType + "," + content, nil
}
