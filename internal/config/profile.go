package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Geometry kinds an assembly rule can produce
const (
	GeomMultiPolygon    = "multipolygon"
	GeomMultiLineString = "multilinestring"
)

// Rule selects relations by the value of their "type" tag and declares
// which members are tracked for completion.
type Rule struct {
	// Type tag values this rule matches, e.g. multipolygon, boundary, route
	Types []string `yaml:"types"`
	// Member kinds to track: node, way, relation. Empty means ways only.
	Members []string `yaml:"members"`
	// Roles to track; empty means any role.
	Roles []string `yaml:"roles"`
	// Geometry to build: multipolygon or multilinestring
	Geometry string `yaml:"geometry"`
}

// Matches reports whether the rule applies to a relation with the given
// "type" tag value.
func (r *Rule) Matches(typeTag string) bool {
	for _, t := range r.Types {
		if t == typeTag {
			return true
		}
	}
	return false
}

// Tracks reports whether a member of the given kind and role counts toward
// completion of a relation matched by this rule.
func (r *Rule) Tracks(kind, role string) bool {
	members := r.Members
	if len(members) == 0 {
		members = []string{"way"}
	}
	found := false
	for _, m := range members {
		if m == kind {
			found = true
			break
		}
	}
	if !found {
		return false
	}
	if len(r.Roles) == 0 {
		return true
	}
	for _, want := range r.Roles {
		if want == role {
			return true
		}
	}
	return false
}

// Profile declares which relations an assembly pass is interested in and
// how to turn them into geometries.
type Profile struct {
	SRID  int    `yaml:"srid"`
	Rules []Rule `yaml:"rules"`
}

// DefaultProfile assembles multipolygon and boundary relations from their
// outer/inner way members, the most common production setup.
func DefaultProfile() *Profile {
	return &Profile{
		SRID: 4326,
		Rules: []Rule{
			{
				Types:    []string{"multipolygon", "boundary"},
				Members:  []string{"way"},
				Roles:    []string{"outer", "inner", ""},
				Geometry: GeomMultiPolygon,
			},
		},
	}
}

// LoadProfile reads an assembly profile from a YAML file.
func LoadProfile(path string) (*Profile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read profile: %w", err)
	}

	var p Profile
	if err := yaml.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("failed to parse profile: %w", err)
	}
	if p.SRID == 0 {
		p.SRID = 4326
	}
	if err := p.validate(); err != nil {
		return nil, err
	}
	return &p, nil
}

// RuleFor returns the first rule matching the relation's type tag, or nil.
func (p *Profile) RuleFor(typeTag string) *Rule {
	for i := range p.Rules {
		if p.Rules[i].Matches(typeTag) {
			return &p.Rules[i]
		}
	}
	return nil
}

func (p *Profile) validate() error {
	if len(p.Rules) == 0 {
		return fmt.Errorf("profile must declare at least one rule")
	}
	if p.SRID != 4326 && p.SRID != 3857 {
		return fmt.Errorf("unsupported srid %d (only 4326 and 3857)", p.SRID)
	}
	for i := range p.Rules {
		r := &p.Rules[i]
		if len(r.Types) == 0 {
			return fmt.Errorf("rule %d matches no relation types", i)
		}
		switch r.Geometry {
		case GeomMultiPolygon, GeomMultiLineString:
		case "":
			r.Geometry = GeomMultiPolygon
		default:
			return fmt.Errorf("rule %d: unknown geometry %q", i, r.Geometry)
		}
		for _, m := range r.Members {
			if m != "node" && m != "way" && m != "relation" {
				return fmt.Errorf("rule %d: unknown member kind %q", i, m)
			}
		}
	}
	return nil
}
