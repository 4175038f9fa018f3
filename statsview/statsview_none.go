//go:build !statsview

package statsview

import "io"

// Address is the local address the statistics server would listen on.
const Address = "localhost:12600"

// Launch is a no-op without the statsview build tag.
func Launch(_ io.Writer) {
}

// Available reports whether a statistics server can be launched.
func Available() bool {
	return false
}
