// Package rules loads declarative correlation-rule tables from YAML. The
// grouping engine itself is free of product-specific identifiers; rule
// files (or the built-in defaults) supply them.
//
// A rule file looks like:
//
//	rules:
//	  - parent: SessionRun
//	    child: ExecutorStep
//	    keys: [step_id]
//	roots: [TraceContext, SessionRun]
package rules

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/tobert/trace-grouper/internal/grouper"
	"github.com/tobert/trace-grouper/internal/timeline"
)

// File is the YAML document shape.
type File struct {
	Rules []Rule   `yaml:"rules"`
	Roots []string `yaml:"roots"`
}

// Rule declares one correlation rule by catalog names.
type Rule struct {
	Parent string   `yaml:"parent"`
	Child  string   `yaml:"child"`
	Keys   []string `yaml:"keys"`
}

// RuleSet is a rule file compiled against the event and stat catalogs.
type RuleSet struct {
	ConnectInfo []grouper.ConnectInfo
	RootTypes   []timeline.EventType
}

// Default returns the built-in rule set.
func Default() *RuleSet {
	return &RuleSet{
		ConnectInfo: grouper.DefaultConnectInfo(),
		RootTypes:   grouper.DefaultRootTypes(),
	}
}

// Load reads and compiles a rule file. Names that are not in the catalogs
// fail here, at load time, rather than silently matching nothing later.
func Load(path string) (*RuleSet, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read rules file %s: %w", path, err)
	}
	rs, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("failed to parse rules file %s: %w", path, err)
	}
	return rs, nil
}

// Parse compiles a YAML rule document.
func Parse(data []byte) (*RuleSet, error) {
	var f File
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, err
	}

	rs := &RuleSet{}
	for i, r := range f.Rules {
		parent, ok := timeline.EventTypeByName(r.Parent)
		if !ok {
			return nil, fmt.Errorf("rule %d: unknown parent event type %q", i, r.Parent)
		}
		child, ok := timeline.EventTypeByName(r.Child)
		if !ok {
			return nil, fmt.Errorf("rule %d: unknown child event type %q", i, r.Child)
		}
		if len(r.Keys) == 0 {
			return nil, fmt.Errorf("rule %d: at least one key stat is required", i)
		}
		var keys []timeline.StatType
		for _, k := range r.Keys {
			st, ok := timeline.StatTypeByName(k)
			if !ok {
				return nil, fmt.Errorf("rule %d: unknown key stat type %q", i, k)
			}
			keys = append(keys, st)
		}
		rs.ConnectInfo = append(rs.ConnectInfo, grouper.ConnectInfo{
			ParentType: parent,
			ChildType:  child,
			KeyStats:   keys,
		})
	}

	if len(f.Roots) == 0 {
		return nil, fmt.Errorf("at least one root event type is required")
	}
	for _, name := range f.Roots {
		t, ok := timeline.EventTypeByName(name)
		if !ok {
			return nil, fmt.Errorf("unknown root event type %q", name)
		}
		rs.RootTypes = append(rs.RootTypes, t)
	}
	return rs, nil
}
