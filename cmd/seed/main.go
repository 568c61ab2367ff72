package main

import (
	"context"
	"flag"
	"log"

	"github.com/rongwang/shinobu-server/internal/catalog"
	"github.com/rongwang/shinobu-server/internal/config"
	"github.com/rongwang/shinobu-server/internal/repository"
)

func main() {
	path := flag.String("catalog", "data/catalog.example.yaml", "catalog YAML file to load")
	dryRun := flag.Bool("dry-run", false, "validate the catalog without writing it")
	flag.Parse()

	c, err := catalog.LoadFile(*path)
	if err != nil {
		log.Fatalf("Failed to load catalog: %v", err)
	}
	log.Printf("Catalog %s: %d rarities, %d batches, %d packs", *path, len(c.Rarities), len(c.Batches), len(c.Packs))
	if *dryRun {
		return
	}

	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	db, err := config.SetupDatabase(cfg)
	if err != nil {
		log.Fatalf("Failed to set up database: %v", err)
	}
	defer db.Close()

	if err := c.Apply(context.Background(), repository.NewSQLRepository(db)); err != nil {
		log.Fatalf("Failed to apply catalog: %v", err)
	}
	log.Printf("Catalog applied")
}
