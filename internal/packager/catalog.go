package packager

import (
	"errors"
	"fmt"
	"os"
	"sort"

	"gopkg.in/yaml.v3"

	"automation-license-server/internal/bundle"
)

var ErrUnknownPlan = errors.New("unknown plan")

// Plan 套餐对应的功能和脚本清单
type Plan struct {
	Name     string   `yaml:"name" json:"name"`
	Features []string `yaml:"features" json:"features"`
	Scripts  []string `yaml:"scripts" json:"scripts"`
}

// Catalog plan_id -> Plan
type Catalog struct {
	plans map[string]Plan
}

type catalogFile struct {
	Plans map[string]Plan `yaml:"plans"`
}

// LoadCatalog 读取 YAML 套餐文件
func LoadCatalog(path string) (*Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read plan catalog: %w", err)
	}
	return ParseCatalog(data)
}

func ParseCatalog(data []byte) (*Catalog, error) {
	var file catalogFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parse plan catalog: %w", err)
	}
	if len(file.Plans) == 0 {
		return nil, errors.New("plan catalog defines no plans")
	}

	for id, plan := range file.Plans {
		seen := make(map[string]struct{}, len(plan.Scripts))
		for _, script := range plan.Scripts {
			if script == configEntryName {
				return nil, fmt.Errorf("plan %q: script name %q is reserved", id, script)
			}
			if len(script) > bundle.MaxNameLength {
				return nil, fmt.Errorf("plan %q: %w: %q", id, bundle.ErrNameTooLong, script)
			}
			if _, dup := seen[script]; dup {
				return nil, fmt.Errorf("plan %q: %w: %q", id, bundle.ErrDuplicateName, script)
			}
			seen[script] = struct{}{}
		}
		if plan.Name == "" {
			plan.Name = id
			file.Plans[id] = plan
		}
	}
	return &Catalog{plans: file.Plans}, nil
}

func (c *Catalog) Plan(id string) (Plan, error) {
	plan, ok := c.plans[id]
	if !ok {
		return Plan{}, fmt.Errorf("%w: %q", ErrUnknownPlan, id)
	}
	return plan, nil
}

// IDs 按字母序返回所有套餐 id
func (c *Catalog) IDs() []string {
	ids := make([]string, 0, len(c.plans))
	for id := range c.plans {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
