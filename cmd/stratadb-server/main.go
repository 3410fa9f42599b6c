// Command stratadb-server exposes a StrataDB data directory over HTTP.
package main

import (
	"flag"
	"fmt"
	"os"

	"go.uber.org/zap"

	"github.com/kanon-lab/stratadb/internal/api"
	"github.com/kanon-lab/stratadb/internal/engine"
)

func main() {
	var (
		port    = flag.String("port", "8080", "port to run the server on")
		dataDir = flag.String("data", "./stratadb-data", "path to the data directory")
		cuckoo  = flag.Bool("cuckoo", true, "use cuckoo filters instead of bloom filters")
		help    = flag.Bool("help", false, "show help")
	)
	flag.Parse()

	if *help {
		fmt.Println("stratadb-server - REST API server for a StrataDB data directory")
		fmt.Println("\nUsage:")
		fmt.Println("  stratadb-server [options]")
		fmt.Println("\nOptions:")
		flag.PrintDefaults()
		os.Exit(0)
	}

	logger, err := zap.NewProduction()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to build logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()
	sugar := logger.Sugar()

	cfg := engine.DefaultBloomConfig(*dataDir)
	if *cuckoo {
		cfg = engine.DefaultCuckooConfig(*dataDir)
	}

	eng, err := engine.Open(cfg, sugar)
	if err != nil {
		sugar.Fatalw("failed to open engine", "error", err)
	}
	defer eng.Close()

	server := api.NewServer(eng, *port, sugar)
	if err := server.Start(); err != nil {
		sugar.Fatalw("server exited", "error", err)
	}
}
