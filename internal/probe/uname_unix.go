//go:build linux || darwin || freebsd

package probe

import "golang.org/x/sys/unix"

// kernelVersion returns the kernel build string, as `uname -v` prints it
func kernelVersion() (string, error) {
	var uts unix.Utsname
	if err := unix.Uname(&uts); err != nil {
		return "", err
	}
	return unix.ByteSliceToString(uts.Version[:]), nil
}
