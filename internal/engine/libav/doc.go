// Package libav implements the engine contract on FFmpeg through
// github.com/asticode/go-astiav. It is only compiled with the libav build
// tag, which needs the FFmpeg development libraries:
//
//	go build -tags libav ./cmd/avpump
//
// Importing the package without the tag registers nothing.
package libav

// Name is the engine name registered with the libav build tag.
const Name = "libav"
