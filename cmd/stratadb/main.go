// Command stratadb is a direct command-line front end to a StrataDB data
// directory: each invocation opens the engine, performs one operation,
// persists metadata, and exits.
package main

import (
	"flag"
	"fmt"
	"os"

	"go.uber.org/zap"

	"github.com/kanon-lab/stratadb/internal/engine"
)

func main() {
	var (
		dataDir = flag.String("data", "./stratadb-data", "path to the data directory")
		cuckoo  = flag.Bool("cuckoo", true, "use cuckoo filters instead of bloom filters")
		help    = flag.Bool("help", false, "show help message")
	)
	flag.Parse()

	if *help {
		printUsage()
		os.Exit(0)
	}

	args := flag.Args()
	if len(args) < 1 {
		printUsage()
		os.Exit(1)
	}

	logger, _ := zap.NewDevelopment()
	defer logger.Sync()
	sugar := logger.Sugar()

	cfg := engine.DefaultBloomConfig(*dataDir)
	if *cuckoo {
		cfg = engine.DefaultCuckooConfig(*dataDir)
	}

	eng, err := engine.Open(cfg, sugar)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to open data directory: %v\n", err)
		os.Exit(1)
	}
	defer func() {
		if err := eng.Close(); err != nil {
			fmt.Fprintf(os.Stderr, "failed to close engine: %v\n", err)
		}
	}()

	command := args[0]
	rest := args[1:]

	switch command {
	case "set":
		runSet(eng, rest)
	case "get":
		runGet(eng, rest)
	case "delete":
		runDelete(eng, rest)
	case "stats":
		runStats(eng, rest)
	case "compact":
		runCompact(eng, rest)
	case "rebuild-index":
		runRebuildIndex(eng, rest)
	default:
		fmt.Fprintf(os.Stderr, "unknown command %q\n", command)
		printUsage()
		os.Exit(1)
	}
}

func runSet(eng *engine.Engine, args []string) {
	if len(args) != 2 {
		fmt.Println("usage: stratadb set <key> <value>")
		os.Exit(1)
	}
	if err := eng.Set(args[0], args[1]); err != nil {
		fmt.Fprintf(os.Stderr, "set failed: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("stored: %s = %s\n", args[0], args[1])
}

func runGet(eng *engine.Engine, args []string) {
	if len(args) != 1 {
		fmt.Println("usage: stratadb get <key>")
		os.Exit(1)
	}
	value, found, err := eng.Get(args[0])
	if err != nil {
		fmt.Fprintf(os.Stderr, "get failed: %v\n", err)
		os.Exit(1)
	}
	if !found {
		fmt.Printf("key not found: %s\n", args[0])
		os.Exit(1)
	}
	fmt.Println(value)
}

func runDelete(eng *engine.Engine, args []string) {
	if len(args) != 1 {
		fmt.Println("usage: stratadb delete <key>")
		os.Exit(1)
	}
	deleted, err := eng.Delete(args[0])
	if err != nil {
		fmt.Fprintf(os.Stderr, "delete failed: %v\n", err)
		os.Exit(1)
	}
	if !deleted {
		fmt.Printf("key not found: %s\n", args[0])
		os.Exit(1)
	}
	fmt.Printf("deleted: %s\n", args[0])
}

func runStats(eng *engine.Engine, args []string) {
	fmt.Println(eng.Stats().String())
}

func runCompact(eng *engine.Engine, args []string) {
	if err := eng.CompactAgainstMemtable(); err != nil {
		fmt.Fprintf(os.Stderr, "compact failed: %v\n", err)
		os.Exit(1)
	}
	fmt.Println("compaction against memtable complete")
}

func runRebuildIndex(eng *engine.Engine, args []string) {
	if err := eng.RebuildIndex(); err != nil {
		fmt.Fprintf(os.Stderr, "rebuild-index failed: %v\n", err)
		os.Exit(1)
	}
	fmt.Println("sparse index rebuilt")
}

func printUsage() {
	fmt.Println("stratadb - command-line front end for a StrataDB data directory")
	fmt.Println("\nUsage:")
	fmt.Println("  stratadb [options] <command> [args]")
	fmt.Println("\nCommands:")
	fmt.Println("  set <key> <value>   store a key/value pair")
	fmt.Println("  get <key>           retrieve a value")
	fmt.Println("  delete <key>        remove a key")
	fmt.Println("  stats               print engine counters")
	fmt.Println("  compact             reclaim space for memtable keys already on disk")
	fmt.Println("  rebuild-index       rebuild the sparse index from segments on disk")
	fmt.Println("\nOptions:")
	flag.PrintDefaults()
}
