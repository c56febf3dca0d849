package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"os"

	"huddle/pkg/logger"
	"huddle/pkg/registry"
	"huddle/pkg/store"
)

// Offline inspector: opens a huddle database and dumps the stored
// entities of one channel (or the channel list) as JSON. Run it against
// a stopped server; pebble holds an exclusive lock.
func main() {
	var dbPath, channelName, entityType string
	flag.StringVar(&dbPath, "db", "", "path to the pebble database")
	flag.StringVar(&channelName, "channel", "", "channel to dump (empty: list channels)")
	flag.StringVar(&entityType, "type", "", "entity type to dump (empty: all types)")
	flag.Parse()
	if dbPath == "" {
		fmt.Fprintln(os.Stderr, "--db required")
		os.Exit(2)
	}

	logger.InitWithLevel("warn")
	if err := store.Open(dbPath); err != nil {
		fmt.Fprintf(os.Stderr, "failed to open db: %v\n", err)
		os.Exit(1)
	}
	defer store.Close()

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")

	if channelName == "" {
		out := map[string][]string{}
		for _, t := range registry.All() {
			chs, err := store.Channels(t.Name)
			if err != nil {
				fmt.Fprintf(os.Stderr, "failed to list channels for %s: %v\n", t.Name, err)
				os.Exit(1)
			}
			if len(chs) > 0 {
				out[t.Name] = chs
			}
		}
		_ = enc.Encode(out)
		return
	}

	types := registry.Names()
	if entityType != "" {
		if _, ok := registry.Lookup(entityType); !ok {
			fmt.Fprintf(os.Stderr, "unknown entity type: %s\n", entityType)
			os.Exit(2)
		}
		types = []string{entityType}
	}
	out := map[string]any{}
	for _, name := range types {
		envs, err := store.ReadByChannel(name, channelName)
		if err != nil {
			fmt.Fprintf(os.Stderr, "read failed for %s: %v\n", name, err)
			os.Exit(1)
		}
		if len(envs) > 0 {
			out[name] = envs
		}
	}
	_ = enc.Encode(out)
}
