// stubgen - preview the script stubs the bridge would inject
//
// Loads a bridge.toml (walking up from the working directory, or from
// -dir), registers the built-in demo plugins named in it, and prints
// each generated stub to stdout. Handy for checking what a plugin's
// script surface looks like before wiring a real engine.
//
// Build: go build ./cmd/stubgen
// Usage:
//   stubgen              # all plugins from the nearest bridge.toml
//   stubgen -dir ./cfg counter
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"sort"

	"github.com/tliron/commonlog"
	_ "github.com/tliron/commonlog/simple"

	"github.com/norgard/gangplank/bridge"
	"github.com/norgard/gangplank/manifest"
)

var log = commonlog.GetLogger("gangplank.stubgen")

// printEngine evaluates nothing; Inject writes the stub straight to
// stdout so the tool needs no real script engine.
type printEngine struct{}

func (printEngine) Evaluate(ctx context.Context, expr string) (string, error) {
	return "undefined", nil
}

func (printEngine) Inject(ctx context.Context, namespace, stub string) error {
	fmt.Printf("// namespace %s\n%s\n", namespace, stub)
	return nil
}

// Demo plugins. The manifest's [plugins] keys select from this set.

type counter struct {
	Label string
	n     int
}

func (c *counter) Increment() int { c.n++; return c.n }

func (c *counter) Value() int { return c.n }

func (c *counter) Add(delta int) int { c.n += delta; return c.n }

func (c *counter) Reset() { c.n = 0 }

type console struct{}

func (console) Log(message string) { fmt.Fprintln(os.Stderr, "[log]", message) }

func (console) Error(message string) { fmt.Fprintln(os.Stderr, "[error]", message) }

type timer struct {
	Interval int
}

func (t *timer) Make(interval int) *timer { return &timer{Interval: interval} }

func (t *timer) Start() {}

func (t *timer) ScriptNameFor(selector string) (string, bool) {
	if selector == "Make" {
		return "", true
	}
	return "", false
}

var demos = map[string]func() any{
	"counter": func() any { return &counter{} },
	"console": func() any { return console{} },
	"timer":   func() any { return &timer{} },
}

func main() {
	dir := flag.String("dir", ".", "directory to start the bridge.toml search from")
	verbosity := flag.Int("v", 0, "log verbosity")
	flag.Parse()

	commonlog.Configure(*verbosity, nil)

	m, err := manifest.FindAndLoad(*dir)
	if err != nil {
		log.Errorf("loading manifest: %v", err)
		os.Exit(1)
	}
	if m == nil {
		fmt.Fprintf(os.Stderr, "no %s found from %s upward\n", manifest.FileName, *dir)
		os.Exit(1)
	}

	keys := flag.Args()
	if len(keys) == 0 {
		for key := range m.Plugins {
			keys = append(keys, key)
		}
		sort.Strings(keys)
	}

	b := bridge.New(printEngine{}, bridge.WithManifest(m))
	defer b.Stop()

	for _, key := range keys {
		mk, ok := demos[key]
		if !ok {
			fmt.Fprintf(os.Stderr, "no demo plugin %q (have: counter, console, timer)\n", key)
			os.Exit(1)
		}
		if _, err := b.RegisterConfigured(mk(), m, key); err != nil {
			log.Errorf("registering %q: %v", key, err)
			os.Exit(1)
		}
	}
}
