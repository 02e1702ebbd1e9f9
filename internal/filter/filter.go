// Package filter contains the common types of the request-filtering engine:
// filter-list identifiers, rule texts, request types, and filtered requests.
// The implementations of the filters themselves are in the subpackages.
package filter
