// Lockcache is a small client for inspecting and editing one cache region.
//
//	lockcache -config lockcache.yaml get <key>
//	lockcache -config lockcache.yaml put <key> <value>
//	lockcache -config lockcache.yaml load <key> <value>
package main

import (
	"flag"
	"fmt"
	"os"
)

var version = "dev"

const usage = `usage: lockcache [flags] <command> [args]

commands:
  get <key>                   print the entry for key
  put <key> <value>           write value
  put-null <key>              cache a null for key
  put-if-absent <key> <value> write value unless key has an entry; print the previous entry
  load <key> <value>          get key, computing value under the key lock on a miss
  evict <key>                 remove key
  clear                       remove every entry of the region

flags:
`

func main() {
	configPath := flag.String("config", "configs/lockcache.yaml", "path to config file")
	showVersion := flag.Bool("version", false, "print version and exit")
	flag.Usage = func() {
		fmt.Fprint(flag.CommandLine.Output(), usage)
		flag.PrintDefaults()
	}
	flag.Parse()

	if *showVersion {
		fmt.Println("lockcache", version)
		os.Exit(0)
	}
	if flag.NArg() == 0 {
		flag.Usage()
		os.Exit(2)
	}

	if err := run(*configPath, flag.Args(), os.Stdout); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}
