package plugin

import (
	"fmt"
	"strconv"
	"strings"

	"golang.org/x/mod/semver"
)

// Version is a major.minor.patch triple.
type Version [3]int

func ParseVersion(s string) (Version, error) {
	v := strings.TrimSpace(s)
	if !strings.HasPrefix(v, "v") {
		v = "v" + v
	}
	if !semver.IsValid(v) {
		return Version{}, fmt.Errorf("invalid version %q", s)
	}

	var out Version
	parts := strings.SplitN(strings.TrimPrefix(semver.Canonical(v), "v"), ".", 3)
	for i, p := range parts {
		if j := strings.IndexAny(p, "-+"); j >= 0 {
			p = p[:j]
		}
		n, err := strconv.Atoi(p)
		if err != nil {
			return Version{}, fmt.Errorf("invalid version %q: %w", s, err)
		}
		out[i] = n
	}

	return out, nil
}

// VersionFromInts builds a version from a declared list such as [1, 2, 0].
// Missing trailing components are zero.
func VersionFromInts(xs []int64) (Version, error) {
	if len(xs) == 0 || len(xs) > 3 {
		return Version{}, fmt.Errorf("version must have 1 to 3 components, got %d", len(xs))
	}

	var out Version
	for i, x := range xs {
		if x < 0 {
			return Version{}, fmt.Errorf("negative version component %d", x)
		}
		out[i] = int(x)
	}

	return out, nil
}

func (v Version) String() string {
	return fmt.Sprintf("v%d.%d.%d", v[0], v[1], v[2])
}

// Compare returns -1, 0 or +1.
func (v Version) Compare(o Version) int {
	return semver.Compare(v.String(), o.String())
}
