//go:build !windows

package winsys

import "github.com/cockroachdb/errors"

// SystemBackends fails off-platform; editing local Group Policy needs the
// Windows registry, LSA and secedit.
func SystemBackends() (Backends, error) {
	return Backends{}, errors.New("local group policy editing is only supported on windows")
}
