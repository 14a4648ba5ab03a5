// Package semver parses the API version string an indexer advertises and
// decides whether this service can talk to it.
package semver

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// ErrMalformed is returned for version strings that cannot be parsed
var ErrMalformed = errors.New("malformed version")

// Version is an indexer API version. Missing minor or patch components
// parse as zero.
type Version struct {
	Major int
	Minor int
	Patch int
	// Pre is the pre-release tag without the leading '-'
	Pre string
}

// Parse accepts "1", "1.2", "1.2.3" and "v1.2.3-rc.1". Build metadata after
// '+' is discarded.
func Parse(s string) (*Version, error) {
	raw := strings.TrimPrefix(strings.TrimSpace(s), "v")
	if i := strings.IndexByte(raw, '+'); i >= 0 {
		raw = raw[:i]
	}

	var v Version
	if i := strings.IndexByte(raw, '-'); i >= 0 {
		raw, v.Pre = raw[:i], raw[i+1:]
		if v.Pre == "" {
			return nil, fmt.Errorf("%w: %q has an empty pre-release", ErrMalformed, s)
		}
	}

	parts := strings.Split(raw, ".")
	if len(parts) > 3 {
		return nil, fmt.Errorf("%w: %q", ErrMalformed, s)
	}
	fields := []*int{&v.Major, &v.Minor, &v.Patch}
	for i, p := range parts {
		n, err := strconv.Atoi(p)
		if err != nil || n < 0 {
			return nil, fmt.Errorf("%w: %q", ErrMalformed, s)
		}
		*fields[i] = n
	}
	return &v, nil
}

func (v *Version) String() string {
	s := strconv.Itoa(v.Major) + "." + strconv.Itoa(v.Minor) + "." + strconv.Itoa(v.Patch)
	if v.Pre != "" {
		s += "-" + v.Pre
	}
	return s
}

func compareInt(a, b int) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	}
	return 0
}

// Compare orders v against other: -1, 0 or 1. A release sorts after any of
// its pre-releases; pre-release tags compare lexically.
func (v *Version) Compare(other *Version) int {
	if c := compareInt(v.Major, other.Major); c != 0 {
		return c
	}
	if c := compareInt(v.Minor, other.Minor); c != 0 {
		return c
	}
	if c := compareInt(v.Patch, other.Patch); c != 0 {
		return c
	}
	switch {
	case v.Pre == other.Pre:
		return 0
	case v.Pre == "":
		return 1
	case other.Pre == "":
		return -1
	}
	return strings.Compare(v.Pre, other.Pre)
}

// Compatible reports whether the indexer speaks one of the supported major
// API versions. Minor and patch bumps never break the wire format.
func (v *Version) Compatible(majors ...int) bool {
	for _, m := range majors {
		if v.Major == m {
			return true
		}
	}
	return false
}
