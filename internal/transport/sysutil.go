package transport

import (
	"errors"
	"strconv"
	"syscall"
)

// SysError renders err the way the original's SysError wraps a
// boost::system::error_code: the message plus, when it unwraps to a raw
// errno, that numeric code alongside it.
func SysError(err error) string {
	if err == nil {
		return ""
	}
	var errno syscall.Errno
	if errors.As(err, &errno) {
		return err.Error() + " (errno " + strconv.Itoa(int(errno)) + ")"
	}
	return err.Error()
}
