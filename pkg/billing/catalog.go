// Package billing resolves a host's platform fee rate from the billing
// collaborator, falling back to a local plan catalog.
package billing

import (
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

type Plan struct {
	FeeRateBps int `yaml:"fee_rate_bps"`
}

// Catalog maps plan names to fee rates. Fallback names the plan used when
// the host's plan cannot be determined.
type Catalog struct {
	Fallback string          `yaml:"fallback"`
	Plans    map[string]Plan `yaml:"plans"`
}

const defaultCatalog = `
fallback: free
plans:
  free:
    fee_rate_bps: 500
  pro:
    fee_rate_bps: 300
  enterprise:
    fee_rate_bps: 200
`

func DefaultCatalog() *Catalog {
	c, err := ParseCatalog([]byte(defaultCatalog))
	if err != nil {
		panic("billing: default catalog: " + err.Error())
	}
	return c
}

// LoadCatalog reads a YAML catalog from path. An empty path yields the
// default catalog.
func LoadCatalog(path string) (*Catalog, error) {
	if path == "" {
		return DefaultCatalog(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read plan catalog: %w", err)
	}
	return ParseCatalog(data)
}

func ParseCatalog(data []byte) (*Catalog, error) {
	var c Catalog
	if err := yaml.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("parse plan catalog: %w", err)
	}
	if err := c.validate(); err != nil {
		return nil, err
	}
	return &c, nil
}

func (c *Catalog) validate() error {
	if len(c.Plans) == 0 {
		return errors.New("plan catalog has no plans")
	}
	for name, p := range c.Plans {
		if p.FeeRateBps < 0 || p.FeeRateBps > 10000 {
			return fmt.Errorf("plan %q: fee_rate_bps %d out of range", name, p.FeeRateBps)
		}
	}
	if _, ok := c.Plans[c.Fallback]; !ok {
		return fmt.Errorf("fallback plan %q is not in the catalog", c.Fallback)
	}
	return nil
}

func (c *Catalog) Lookup(plan string) (Plan, bool) {
	p, ok := c.Plans[plan]
	return p, ok
}

func (c *Catalog) FallbackPlan() (string, Plan) {
	return c.Fallback, c.Plans[c.Fallback]
}
