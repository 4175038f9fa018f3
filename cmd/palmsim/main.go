// Package main provides the palmsim command line entry point.
package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/bradleyjkemp/memviz"

	"github.com/sarchlab/palmsim/settings"
	"github.com/sarchlab/palmsim/statsview"
	"github.com/sarchlab/palmsim/system"
)

var (
	configPath   = flag.String("config", "", "Path to settings JSON file")
	verbose      = flag.Bool("v", false, "Verbose output")
	stats        = flag.Bool("stats", false, "Serve runtime statistics over HTTP")
	objGraphPath = flag.String("objgraph", "",
		"Write a Graphviz dump of the kernel object graph to this path and exit")
)

func main() {
	flag.Parse()

	if flag.NArg() < 1 {
		fmt.Fprintf(os.Stderr, "Usage: palmsim [options] <image.elf>\n")
		fmt.Fprintf(os.Stderr, "\nOptions:\n")
		flag.PrintDefaults()
		os.Exit(1)
	}
	imagePath := flag.Arg(0)

	cfg, err := loadSettings(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading settings: %v\n", err)
		os.Exit(1)
	}

	opts := []system.Option{}
	if !*verbose {
		opts = append(opts, system.WithLogger(quietLogger()))
	}
	sys := system.New(cfg, opts...)

	if status := sys.Load(imagePath); status != system.ResultSuccess {
		fmt.Fprintf(os.Stderr, "Error loading %s: %v\n", imagePath, status)
		os.Exit(1)
	}

	if *objGraphPath != "" {
		if err := dumpObjectGraph(sys, *objGraphPath); err != nil {
			fmt.Fprintf(os.Stderr, "Error writing object graph: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("Object graph written to %s\n", *objGraphPath)
		sys.Shutdown()
		return
	}

	if *stats {
		if statsview.Available() {
			statsview.Launch(os.Stdout)
		} else {
			fmt.Fprintln(os.Stderr,
				"stats server not compiled in; rebuild with -tags statsview")
		}
	}

	interrupt := make(chan os.Signal, 1)
	signal.Notify(interrupt, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-interrupt
		fmt.Fprintln(os.Stderr, "\nShutting down")
		sys.RequestShutdown()
	}()

	if *verbose {
		go reportPerf(sys)
	}

	sys.SetRunning(true)
	sys.RunLoop()
}

// loadSettings reads the settings file, or returns defaults when no path is
// given.
func loadSettings(path string) (*settings.Settings, error) {
	if path == "" {
		return settings.Default(), nil
	}
	cfg, err := settings.Load(path)
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// dumpObjectGraph writes a Graphviz rendering of the kernel's live object
// graph, reachable from the kernel root.
func dumpObjectGraph(sys *system.System, path string) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer func() { _ = f.Close() }()

	k := sys.Kernel()
	memviz.Map(f, &k)
	return nil
}

// reportPerf prints the emulation speed once a second.
func reportPerf(sys *system.System) {
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()
	for range ticker.C {
		if !sys.IsPoweredOn() {
			return
		}
		r := sys.Perf().GetAndReset()
		fmt.Printf("speed: %5.1f%%  (emulated %dus in %v)\n",
			r.EmulationSpeed*100, r.EmulatedUs, r.WallTime.Round(time.Millisecond))
	}
}

func quietLogger() *log.Logger {
	f, err := os.OpenFile(os.DevNull, os.O_WRONLY, 0)
	if err != nil {
		return log.New(os.Stderr, "", 0)
	}
	return log.New(f, "", 0)
}
