package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"

	"github.com/you/sanctum-chat/internal/cache"
	"github.com/you/sanctum-chat/internal/config"
	"github.com/you/sanctum-chat/internal/enrich"
	"github.com/you/sanctum-chat/internal/kv"
)

const usage = `cachectl inspects and maintains a sanctum cache database.

Usage:
  cachectl [flags] dump <session>
  cachectl [flags] clear <session>
  cachectl [flags] clear-all
  cachectl [flags] state <session> <participant>

Flags:
`

func main() {
	var (
		backend    string
		sqlitePath string
		pebblePath string
	)

	flag.StringVar(&backend, "backend", config.BackendSQLite, "Cache backend: sqlite or pebble")
	flag.StringVar(&sqlitePath, "sqlite", "sanctum.db", "SQLite database path")
	flag.StringVar(&pebblePath, "pebble", "sanctum.pebble", "Pebble database directory")
	flag.Usage = func() {
		fmt.Fprint(os.Stderr, usage)
		flag.PrintDefaults()
	}
	flag.Parse()

	args := flag.Args()
	if len(args) == 0 {
		flag.Usage()
		os.Exit(2)
	}

	var (
		medium kv.Store
		err    error
	)
	switch backend {
	case config.BackendPebble:
		medium, err = kv.OpenPebble(pebblePath)
	case config.BackendSQLite:
		medium, err = kv.OpenSQLite(sqlitePath)
	default:
		log.Fatalf("cachectl: unknown backend %q", backend)
	}
	if err != nil {
		log.Fatalf("cachectl: open %s: %v", backend, err)
	}
	defer medium.Close()

	store := cache.New(medium, cache.Options{})

	switch args[0] {
	case "dump":
		if len(args) != 2 {
			log.Fatal("cachectl: dump requires a session id")
		}
		msgs := enrich.Enrich(nil, store.Load(args[1]))
		out, err := json.MarshalIndent(msgs, "", "  ")
		if err != nil {
			log.Fatalf("cachectl: encode: %v", err)
		}
		fmt.Println(string(out))
	case "clear":
		if len(args) != 2 {
			log.Fatal("cachectl: clear requires a session id")
		}
		store.Clear(args[1])
		fmt.Printf("cleared session %s\n", args[1])
	case "clear-all":
		store.ClearAll()
		fmt.Println("cleared all cache records")
	case "state":
		if len(args) != 3 {
			log.Fatal("cachectl: state requires a session id and participant id")
		}
		state := store.GetParticipantState(args[1], args[2])
		out, err := json.Marshal(state)
		if err != nil {
			log.Fatalf("cachectl: encode: %v", err)
		}
		fmt.Println(string(out))
	default:
		flag.Usage()
		os.Exit(2)
	}
}
