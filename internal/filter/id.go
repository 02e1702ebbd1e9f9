package filter

import (
	"fmt"
	"strconv"
	"unicode/utf8"

	"github.com/AdguardTeam/golibs/errors"
	"github.com/advblocker/advfilter/internal/advvalidate"
)

// ListID is the ID of a filter list.
type ListID int

// Special ListID values.
//
// NOTE:  DO NOT change these as the browser-side adapter and the settings
// storage depend on these values.
const (
	// ListIDStealth is the ID of the synthetic rules generated by the stealth
	// mode, such as the cookie self-destruction rules.
	ListIDStealth ListID = -1

	// ListIDUser is the ID of the list of rules written by the user.
	ListIDUser ListID = 0

	// ListIDWhitelist is the ID of the rules generated from the whitelisted
	// domains.
	ListIDWhitelist ListID = 100

	// ListIDCustomMin is the first ID of the custom filter lists added by the
	// user by URL.
	ListIDCustomMin ListID = 1000
)

// NewListID converts a simple string into a ListID and makes sure that it's
// valid.
func NewListID(s string) (id ListID, err error) {
	defer func() { err = errors.Annotate(err, "bad filter list id %q: %w", s) }()

	n, err := strconv.Atoi(s)
	if err != nil {
		// Don't wrap the error, because it's informative enough as is.
		return 0, err
	}

	id = ListID(n)
	if id < ListIDStealth {
		return 0, fmt.Errorf("negative id %d", id)
	}

	return id, nil
}

// IsCustom returns true if id belongs to a custom filter list added by the
// user.
func (id ListID) IsCustom() (ok bool) {
	return id >= ListIDCustomMin
}

// String implements the [fmt.Stringer] interface for ListID.
func (id ListID) String() (s string) {
	return strconv.Itoa(int(id))
}

// RuleText is the text of a single rule within a rule-list filter.
type RuleText string

// MaxRuleTextRuneLen is the maximum length of a filter rule in runes.
const MaxRuleTextRuneLen = 4096

// NewRuleText converts a simple string into a RuleText and makes sure that it's
// valid.  This should be preferred to a simple type conversion.
func NewRuleText(s string) (t RuleText, err error) {
	defer func() { err = errors.Annotate(err, "bad filter rule text %q: %w", s) }()

	err = advvalidate.Inclusion(
		utf8.RuneCountInString(s),
		0,
		MaxRuleTextRuneLen,
		advvalidate.UnitRune,
	)
	if err != nil {
		return "", err
	}

	return RuleText(s), nil
}
