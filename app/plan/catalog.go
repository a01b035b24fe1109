package plan

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// MaxDurationDays bounds any subscription duration to roughly a century.
const MaxDurationDays = 36500

var ErrPlanNotFound = errors.New("plan not found")

type Plan struct {
	ID           string `yaml:"id"`
	Name         string `yaml:"name"`
	Description  string `yaml:"description"`
	PriceCents   int64  `yaml:"price_cents"`
	DurationDays int    `yaml:"duration_days"`
}

type Catalog struct {
	plans map[string]Plan
	order []string
}

type catalogFile struct {
	Plans []Plan `yaml:"plans"`
}

// DefaultCatalog is used when no plans file is configured.
func DefaultCatalog() *Catalog {
	c, _ := newCatalog([]Plan{
		{ID: "monthly", Name: "Monthly access", PriceCents: 1990, DurationDays: 30},
		{ID: "quarterly", Name: "Quarterly access", PriceCents: 4990, DurationDays: 90},
		{ID: "yearly", Name: "Yearly access", PriceCents: 14990, DurationDays: 365},
	})
	return c
}

func Load(path string) (*Catalog, error) {
	if strings.TrimSpace(path) == "" {
		return DefaultCatalog(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read plans file: %w", err)
	}
	return Parse(data)
}

func Parse(data []byte) (*Catalog, error) {
	var file catalogFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parse plans file: %w", err)
	}
	if len(file.Plans) == 0 {
		return nil, errors.New("plans file defines no plans")
	}
	return newCatalog(file.Plans)
}

func newCatalog(plans []Plan) (*Catalog, error) {
	c := &Catalog{plans: make(map[string]Plan, len(plans))}
	for _, p := range plans {
		p.ID = strings.TrimSpace(p.ID)
		if p.ID == "" {
			return nil, errors.New("plan id is required")
		}
		if _, exists := c.plans[p.ID]; exists {
			return nil, fmt.Errorf("duplicate plan id %q", p.ID)
		}
		if p.PriceCents <= 0 {
			return nil, fmt.Errorf("plan %q: price_cents must be > 0", p.ID)
		}
		if p.DurationDays <= 0 || p.DurationDays > MaxDurationDays {
			return nil, fmt.Errorf("plan %q: duration_days must be between 1 and %d", p.ID, MaxDurationDays)
		}
		c.plans[p.ID] = p
		c.order = append(c.order, p.ID)
	}
	return c, nil
}

func (c *Catalog) Get(id string) (Plan, error) {
	p, ok := c.plans[strings.TrimSpace(id)]
	if !ok {
		return Plan{}, ErrPlanNotFound
	}
	return p, nil
}

func (c *Catalog) Plans() []Plan {
	out := make([]Plan, 0, len(c.order))
	for _, id := range c.order {
		out = append(out, c.plans[id])
	}
	return out
}
