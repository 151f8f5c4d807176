//go:build !linux && !darwin && !freebsd

package probe

import "benchd.sh/internal/ferrors"

func kernelVersion() (string, error) {
	return "", ferrors.Wrap(ferrors.ErrSourceUnavailable, "uname")
}
