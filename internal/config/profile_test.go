package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestDefaultProfile(t *testing.T) {
	p := DefaultProfile()

	rule := p.RuleFor("multipolygon")
	if rule == nil {
		t.Fatal("default profile should match multipolygon relations")
	}
	if rule.Geometry != GeomMultiPolygon {
		t.Errorf("geometry = %q, want %q", rule.Geometry, GeomMultiPolygon)
	}
	if p.RuleFor("route") != nil {
		t.Error("default profile should not match route relations")
	}
}

func TestRuleTracks(t *testing.T) {
	rule := Rule{
		Types:   []string{"multipolygon"},
		Members: []string{"way"},
		Roles:   []string{"outer", "inner"},
	}

	tests := []struct {
		kind, role string
		want       bool
	}{
		{"way", "outer", true},
		{"way", "inner", true},
		{"way", "subarea", false},
		{"node", "outer", false},
		{"relation", "outer", false},
	}
	for _, tt := range tests {
		if got := rule.Tracks(tt.kind, tt.role); got != tt.want {
			t.Errorf("Tracks(%q, %q) = %v, want %v", tt.kind, tt.role, got, tt.want)
		}
	}
}

func TestRuleTracksDefaults(t *testing.T) {
	rule := Rule{Types: []string{"route"}}

	// No member list means ways only; no role list means any role.
	if !rule.Tracks("way", "forward") {
		t.Error("default members should track ways with any role")
	}
	if rule.Tracks("node", "stop") {
		t.Error("default members should not track nodes")
	}
}

func TestLoadProfile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "profile.yaml")
	content := `
srid: 3857
rules:
  - types: [route]
    members: [way, node]
    roles: ["", forward, backward, stop]
    geometry: multilinestring
  - types: [multipolygon, boundary]
    members: [way]
    geometry: multipolygon
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	p, err := LoadProfile(path)
	if err != nil {
		t.Fatalf("LoadProfile failed: %v", err)
	}
	if p.SRID != 3857 {
		t.Errorf("srid = %d, want 3857", p.SRID)
	}
	if len(p.Rules) != 2 {
		t.Fatalf("rule count = %d, want 2", len(p.Rules))
	}

	route := p.RuleFor("route")
	if route == nil {
		t.Fatal("route rule not found")
	}
	if route.Geometry != GeomMultiLineString {
		t.Errorf("route geometry = %q, want multilinestring", route.Geometry)
	}
	if !route.Tracks("node", "stop") {
		t.Error("route rule should track stop nodes")
	}
	if route.Tracks("node", "platform") {
		t.Error("route rule should not track platform nodes")
	}
}

func TestLoadProfileErrors(t *testing.T) {
	dir := t.TempDir()

	write := func(name, content string) string {
		path := filepath.Join(dir, name)
		if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
			t.Fatal(err)
		}
		return path
	}

	tests := []struct {
		name    string
		content string
	}{
		{"no rules", "srid: 4326\nrules: []\n"},
		{"bad srid", "srid: 900913\nrules:\n  - types: [route]\n"},
		{"bad geometry", "rules:\n  - types: [route]\n    geometry: blob\n"},
		{"bad member kind", "rules:\n  - types: [route]\n    members: [area]\n"},
		{"rule without types", "rules:\n  - members: [way]\n"},
	}
	for i, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := write("p"+string(rune('a'+i))+".yaml", tt.content)
			if _, err := LoadProfile(path); err == nil {
				t.Errorf("LoadProfile should fail for %s", tt.name)
			}
		})
	}
}

func TestParseBBox(t *testing.T) {
	bbox, err := ParseBBox("7.409,43.724,7.440,43.752")
	if err != nil {
		t.Fatalf("ParseBBox failed: %v", err)
	}
	if !bbox.Contains(43.73, 7.42) {
		t.Error("point inside bbox reported outside")
	}
	if bbox.Contains(44.0, 7.42) {
		t.Error("point outside bbox reported inside")
	}

	if _, err := ParseBBox("1,2,3"); err == nil {
		t.Error("three values should fail")
	}
	if _, err := ParseBBox("3,2,1,4"); err == nil {
		t.Error("inverted lon range should fail")
	}

	empty, err := ParseBBox("")
	if err != nil {
		t.Fatalf("empty bbox should parse: %v", err)
	}
	if !empty.Contains(89, 179) {
		t.Error("unset bbox should contain everything")
	}
}
