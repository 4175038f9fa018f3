//go:build statsview

// Package statsview optionally serves runtime statistics over HTTP. It is
// compiled in only under the statsview build tag; without the tag Launch is
// a no-op.
//
// When available, graphical statistics are served at
// localhost:12600/debug/statsview and pprof at localhost:12600/debug/pprof/.
package statsview

import (
	"fmt"
	"io"

	"github.com/go-echarts/statsview"
	"github.com/go-echarts/statsview/viewer"
)

// Address is the local address the statistics server listens on.
const Address = "localhost:12600"

const url = "/debug/statsview"

// Launch starts the statistics server on a new goroutine.
func Launch(output io.Writer) {
	go func() {
		viewer.SetConfiguration(viewer.WithAddr(Address))
		mgr := statsview.New()
		mgr.Start()
	}()

	fmt.Fprintf(output, "stats server available at %s%s\n", Address, url)
}

// Available reports whether a statistics server can be launched.
func Available() bool {
	return true
}
