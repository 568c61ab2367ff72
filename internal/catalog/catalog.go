// Package catalog loads the reference data (rarities, characters and packs) from YAML
// and writes it to the store.
package catalog

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/rongwang/shinobu-server/internal/models"
	"github.com/rongwang/shinobu-server/internal/repository"
	"gopkg.in/yaml.v3"
)

// Catalog is the full reference data set
type Catalog struct {
	Rarities []Rarity `yaml:"rarities"`
	Batches  []Batch  `yaml:"batches"`
	Packs    []Pack   `yaml:"packs"`
}

type Rarity struct {
	Value       int     `yaml:"value"`
	Name        string  `yaml:"name"`
	Colour      int     `yaml:"colour"`
	Weight      float64 `yaml:"weight"`
	Refund      int64   `yaml:"refund"`
	UpgradeCost *int64  `yaml:"upgradeCost"`
	AutoUpgrade bool    `yaml:"autoUpgrade"`
}

type Batch struct {
	Name       string      `yaml:"name"`
	Characters []Character `yaml:"characters"`
}

type Character struct {
	ID       int64   `yaml:"id"`
	Name     string  `yaml:"name"`
	Series   string  `yaml:"series"`
	ImageURL *string `yaml:"imageUrl"`

	// BaseRarity is the lowest rarity the character can be drawn at
	BaseRarity int `yaml:"baseRarity"`
}

type Pack struct {
	Name        string      `yaml:"name"`
	Cost        int64       `yaml:"cost"`
	Description string      `yaml:"description"`
	StartDate   string      `yaml:"startDate"`
	EndDate     *string     `yaml:"endDate"`
	Batches     []PackBatch `yaml:"batches"`
}

// PackBatch weighs a batch inside a pack for one rarity
type PackBatch struct {
	Batch  string  `yaml:"batch"`
	Rarity int     `yaml:"rarity"`
	Weight float64 `yaml:"weight"`
}

// Parse decodes and validates a catalog
func Parse(data []byte) (*Catalog, error) {
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, errors.New("catalog: payload is empty")
	}
	var c Catalog
	if err := yaml.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("catalog: decode: %w", err)
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return &c, nil
}

// LoadFile reads and parses the catalog at path
func LoadFile(path string) (*Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("catalog: read %s: %w", path, err)
	}
	c, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return c, nil
}

// Validate checks references between rarities, batches and packs
func (c *Catalog) Validate() error {
	var errs []error

	rarities := make(map[int]bool, len(c.Rarities))
	for _, r := range c.Rarities {
		if rarities[r.Value] {
			errs = append(errs, fmt.Errorf("rarity %d defined twice", r.Value))
		}
		rarities[r.Value] = true
		if r.Weight < 0 {
			errs = append(errs, fmt.Errorf("rarity %s has a negative weight", r.Name))
		}
	}

	batches := make(map[string]bool, len(c.Batches))
	characters := make(map[int64]bool)
	for _, b := range c.Batches {
		if b.Name == "" {
			errs = append(errs, errors.New("batch without a name"))
		}
		batches[b.Name] = true
		for _, ch := range b.Characters {
			if characters[ch.ID] {
				errs = append(errs, fmt.Errorf("character %d defined twice", ch.ID))
			}
			characters[ch.ID] = true
			if !rarities[ch.BaseRarity] {
				errs = append(errs, fmt.Errorf("character %s has unknown rarity %d", ch.Name, ch.BaseRarity))
			}
		}
	}

	for _, p := range c.Packs {
		if p.Cost < 0 {
			errs = append(errs, fmt.Errorf("pack %s has a negative cost", p.Name))
		}
		if _, err := time.Parse(time.DateOnly, p.StartDate); err != nil {
			errs = append(errs, fmt.Errorf("pack %s: start date: %w", p.Name, err))
		}
		if p.EndDate != nil {
			if _, err := time.Parse(time.DateOnly, *p.EndDate); err != nil {
				errs = append(errs, fmt.Errorf("pack %s: end date: %w", p.Name, err))
			}
		}
		for _, pb := range p.Batches {
			if !batches[pb.Batch] {
				errs = append(errs, fmt.Errorf("pack %s references unknown batch %s", p.Name, pb.Batch))
			}
			if !rarities[pb.Rarity] {
				errs = append(errs, fmt.Errorf("pack %s references unknown rarity %d", p.Name, pb.Rarity))
			}
			if pb.Weight < 0 {
				errs = append(errs, fmt.Errorf("pack %s has a negative weight for %s", p.Name, pb.Batch))
			}
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("catalog: %w", errors.Join(errs...))
	}
	return nil
}

// Apply upserts the whole catalog in one transaction
func (c *Catalog) Apply(ctx context.Context, repo repository.Repository) error {
	return repo.WithTx(ctx, func(q repository.Queries) error {
		for _, r := range c.Rarities {
			err := q.UpsertRarity(ctx, models.Rarity{
				Value:       r.Value,
				Name:        r.Name,
				Colour:      r.Colour,
				Weight:      r.Weight,
				Refund:      r.Refund,
				UpgradeCost: r.UpgradeCost,
				AutoUpgrade: r.AutoUpgrade,
			})
			if err != nil {
				return fmt.Errorf("rarity %s: %w", r.Name, err)
			}
		}

		for _, b := range c.Batches {
			if err := q.UpsertBatch(ctx, b.Name); err != nil {
				return fmt.Errorf("batch %s: %w", b.Name, err)
			}
			for _, ch := range b.Characters {
				err := q.UpsertCharacter(ctx, models.Character{
					ID:       ch.ID,
					Name:     ch.Name,
					ImageURL: ch.ImageURL,
					Series:   ch.Series,
					Rarity:   ch.BaseRarity,
					Batch:    b.Name,
				})
				if err != nil {
					return fmt.Errorf("character %s: %w", ch.Name, err)
				}
			}
		}

		for _, p := range c.Packs {
			err := q.UpsertPack(ctx, models.Pack{
				Name:        p.Name,
				Cost:        p.Cost,
				Description: p.Description,
				StartDate:   p.StartDate,
				EndDate:     p.EndDate,
			})
			if err != nil {
				return fmt.Errorf("pack %s: %w", p.Name, err)
			}
			for _, pb := range p.Batches {
				err := q.UpsertBatchInPack(ctx, models.BatchInPack{
					Pack:   p.Name,
					Batch:  pb.Batch,
					Rarity: pb.Rarity,
					Weight: pb.Weight,
				})
				if err != nil {
					return fmt.Errorf("pack %s batch %s: %w", p.Name, pb.Batch, err)
				}
			}
		}
		return nil
	})
}
