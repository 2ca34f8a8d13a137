package writestream

import "github.com/drgolem/go-audiostream/streamerr"

func invalidArg(format string, args ...any) error {
	return streamerr.InvalidArgument(format, args...)
}
