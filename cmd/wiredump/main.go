// wiredump - validate and normalize bridge wire values
//
// Reads a wire-form value (the bridge's JSON superset: undefined,
// Infinity, -Infinity and NaN are accepted) from the argument list or
// stdin, and prints the parsed kind plus the normalized rendering.
// Useful when debugging a transport that speaks the bridge protocol.
//
// Build: go build ./cmd/wiredump
// Usage:
//   wiredump '{"a":[1,Infinity,undefined]}'
//   echo 'NaN' | wiredump
package main

import (
	"flag"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/tliron/commonlog"
	_ "github.com/tliron/commonlog/simple"

	"github.com/norgard/gangplank/bridge"
	"github.com/norgard/gangplank/wire"
)

var log = commonlog.GetLogger("gangplank.wiredump")

func main() {
	kindOnly := flag.Bool("kind", false, "print only the value's kind")
	request := flag.Bool("request", false, "parse the input as a call request envelope")
	verbosity := flag.Int("v", 0, "log verbosity")
	flag.Parse()

	commonlog.Configure(*verbosity, nil)

	text, err := input(flag.Args())
	if err != nil {
		log.Errorf("reading input: %v", err)
		os.Exit(1)
	}

	if *request {
		req, err := bridge.ParseRequest(text)
		if err != nil {
			fmt.Fprintf(os.Stderr, "invalid request: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("op=%s instance=%d member=%q args=%d id=%q\n",
			req.Op, req.Instance, req.Member, len(req.Args), req.ID)
		return
	}

	v, err := wire.Decode(text)
	if err != nil {
		fmt.Fprintf(os.Stderr, "invalid wire value: %v\n", err)
		os.Exit(1)
	}

	if *kindOnly {
		fmt.Println(v.Kind())
		return
	}
	fmt.Printf("%s\t%s\n", v.Kind(), v)
}

func input(args []string) (string, error) {
	if len(args) > 0 {
		return strings.Join(args, " "), nil
	}
	data, err := io.ReadAll(os.Stdin)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(data)), nil
}
