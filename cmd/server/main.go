// Command server runs the scheduling-core HTTP API.
//
// Flags:
//
//	--lexicon  path to a YAML word list loaded into an in-memory
//	           domain.LexiconReader (default: ./lexicon.yaml)
//
// Exit codes: 0 = success, 1 = error.
package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/avolkov/srscore/internal/adapter/memlexicon"
	"github.com/avolkov/srscore/internal/app"
)

func main() {
	lexiconPath := flag.String("lexicon", "./lexicon.yaml", "path to the YAML word list")
	flag.Parse()

	lexicon, err := memlexicon.Load(*lexiconPath)
	if err != nil {
		log.Fatalf("load lexicon: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := app.Run(ctx, lexicon); err != nil {
		log.Fatalf("application error: %v", err)
	}
}
