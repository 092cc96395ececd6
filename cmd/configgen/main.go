package main

import (
	"flag"
	"log"

	"github.com/danmuck/edilink/internal/config"
)

func main() {
	kind := flag.String("kind", "node", "config kind: node|peer")
	output := flag.String("output", "", "output path for config template")
	validate := flag.Bool("validate", false, "validate an existing config file")
	input := flag.String("input", "", "config path for validation (defaults to per-kind cmd path)")
	force := flag.Bool("force", false, "overwrite existing config file")
	flag.Parse()

	if *validate {
		path := *input
		if path == "" {
			path = defaultPath(*kind)
		}
		switch *kind {
		case "node":
			if _, err := config.LoadNode(path); err != nil {
				log.Fatal(err)
			}
		case "peer":
			if _, err := config.LoadPeerConfig(path); err != nil {
				log.Fatal(err)
			}
		}
		log.Printf("Validated %s config at %s", *kind, path)
		return
	}

	target := *output
	if target == "" {
		target = defaultPath(*kind)
	}
	if err := config.WriteTemplate(target, *kind, *force); err != nil {
		log.Fatal(err)
	}
	log.Printf("Wrote %s config template to %s", *kind, target)
}

func defaultPath(kind string) string {
	switch kind {
	case "node":
		return "cmd/edilink/config.toml"
	case "peer":
		return "cmd/edictl/config.toml"
	default:
		log.Fatalf("unknown kind: %s", kind)
		return ""
	}
}
