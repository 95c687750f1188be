// internal/rules/processor.go

package rules

import (
	"context"
	"fmt"
	"net"
	"reflect"

	"github.com/gobwas/glob"

	"github.com/orgoj/crogger/internal/config"
	"github.com/orgoj/crogger/internal/iputil"
	"github.com/orgoj/crogger/pkg/crogger"
	"github.com/orgoj/crogger/pkg/record"
)

// ClientIPField is the record field matched by a rule's ips condition.
const ClientIPField = "clientIp"

// compiledCondition holds pre-compiled patterns for efficient matching
type compiledCondition struct {
	levels         map[record.Level]bool
	categories     map[string]bool
	pathGlobs      []glob.Glob
	userAgentGlobs []glob.Glob
	ipCIDRs        []*net.IPNet
	fields         map[string]interface{}
}

func (c compiledCondition) empty() bool {
	return len(c.levels) == 0 && len(c.categories) == 0 && len(c.pathGlobs) == 0 &&
		len(c.userAgentGlobs) == 0 && len(c.ipCIDRs) == 0 && len(c.fields) == 0
}

// compiledRule holds a rule with its pre-compiled condition
type compiledRule struct {
	rule      config.Rule
	condition compiledCondition
}

// Result is the outcome of running the rules against one record.
type Result struct {
	Drop      bool
	Matched   []int                  // indexes of matched rules, in order
	AddFields map[string]interface{} // combined add_fields (last write wins)
}

// Processor evaluates rules against records.
type Processor struct {
	compiledRules []compiledRule
}

// NewProcessor creates a Processor with pre-compiled patterns.
func NewProcessor(rules []config.Rule) (*Processor, error) {
	compiledRules := make([]compiledRule, 0, len(rules))
	for i, rule := range rules {
		compiled := compiledRule{
			rule: rule,
			condition: compiledCondition{
				fields: rule.Condition.Fields,
			},
		}

		if len(rule.Condition.Levels) > 0 {
			compiled.condition.levels = make(map[record.Level]bool, len(rule.Condition.Levels))
			for _, name := range rule.Condition.Levels {
				lvl, err := record.ParseLevel(name)
				if err != nil {
					return nil, fmt.Errorf("rule %d: %w", i, err)
				}
				compiled.condition.levels[lvl] = true
			}
		}

		if len(rule.Condition.Categories) > 0 {
			compiled.condition.categories = make(map[string]bool, len(rule.Condition.Categories))
			for _, c := range rule.Condition.Categories {
				compiled.condition.categories[c] = true
			}
		}

		var err error
		compiled.condition.pathGlobs, err = compileGlobs(rule.Condition.Paths)
		if err != nil {
			return nil, fmt.Errorf("rule %d: invalid path glob pattern: %w", i, err)
		}
		compiled.condition.userAgentGlobs, err = compileGlobs(rule.Condition.UserAgents)
		if err != nil {
			return nil, fmt.Errorf("rule %d: invalid user agent glob pattern: %w", i, err)
		}

		// Pre-parse IP/CIDR ranges
		if len(rule.Condition.IPs) > 0 {
			cidrs, err := iputil.ParseCIDRs(rule.Condition.IPs)
			if err != nil {
				return nil, fmt.Errorf("rule %d: invalid IP/CIDR patterns: %w", i, err)
			}
			compiled.condition.ipCIDRs = cidrs
		}

		compiledRules = append(compiledRules, compiled)
	}

	return &Processor{compiledRules: compiledRules}, nil
}

func compileGlobs(patterns []string) ([]glob.Glob, error) {
	if len(patterns) == 0 {
		return nil, nil
	}
	globs := make([]glob.Glob, 0, len(patterns))
	for _, pattern := range patterns {
		g, err := glob.Compile(pattern)
		if err != nil {
			return nil, fmt.Errorf("'%s': %w", pattern, err)
		}
		globs = append(globs, g)
	}
	return globs, nil
}

// Process evaluates the enabled rules in order. Matching rules with
// continue accumulate their add_fields; the first matching rule without
// continue decides the outcome and stops processing. A record no final
// rule matched is kept.
func (p *Processor) Process(rec record.Record) Result {
	var result Result

	for i, compiled := range p.compiledRules {
		if !compiled.rule.Enabled {
			continue
		}
		if !matchCondition(compiled.condition, rec) {
			continue
		}

		result.Matched = append(result.Matched, i)

		if compiled.rule.Drop {
			result.Drop = true
			result.AddFields = nil
			break
		}

		for k, v := range compiled.rule.AddFields {
			if result.AddFields == nil {
				result.AddFields = make(map[string]interface{})
			}
			result.AddFields[k] = v
		}

		if !compiled.rule.Continue {
			break
		}
	}

	return result
}

// Transform adapts the processor to a crogger.Transform.
func (p *Processor) Transform() crogger.Transform {
	return func(_ context.Context, rec record.Record) (crogger.Result, error) {
		res := p.Process(rec)
		if res.Drop {
			return crogger.Drop(), nil
		}
		if len(res.AddFields) == 0 {
			return crogger.Keep(rec), nil
		}

		merged := rec.Map()
		for k, v := range res.AddFields {
			merged[k] = v
		}
		return crogger.Keep(record.FromFields(merged)), nil
	}
}

// matchCondition checks if the record matches the pre-compiled condition.
func matchCondition(cond compiledCondition, rec record.Record) bool {
	// Empty condition matches everything
	if cond.empty() {
		return true
	}

	if len(cond.levels) > 0 && !cond.levels[rec.Level] {
		return false
	}

	if len(cond.categories) > 0 && !cond.categories[rec.Category] {
		return false
	}

	if len(cond.pathGlobs) > 0 && !matchAny(cond.pathGlobs, rec.Path) {
		return false
	}

	if len(cond.userAgentGlobs) > 0 && !matchAny(cond.userAgentGlobs, rec.UserAgent) {
		return false
	}

	if len(cond.fields) > 0 {
		wire := rec.Map()
		for name, expected := range cond.fields {
			actual, present := wire[name]
			switch expected {
			case false:
				// false means the field must be absent
				if present {
					return false
				}
			case true:
				// true means the field must exist (regardless of its value)
				if !present {
					return false
				}
			default:
				if !present || !valuesEqual(expected, actual) {
					return false
				}
			}
		}
	}

	if len(cond.ipCIDRs) > 0 {
		ipStr, _ := rec.Fields[ClientIPField].(string)
		if !iputil.IsIPInAnyCIDR(net.ParseIP(ipStr), cond.ipCIDRs) {
			return false
		}
	}

	return true
}

func matchAny(globs []glob.Glob, s string) bool {
	for _, g := range globs {
		if g.Match(s) {
			return true
		}
	}
	return false
}

// valuesEqual compares a YAML condition value with a record value. Numbers
// compare by value regardless of their Go type.
func valuesEqual(expected, actual interface{}) bool {
	if ef, ok := toFloat(expected); ok {
		af, ok := toFloat(actual)
		return ok && ef == af
	}
	if es, ok := expected.(string); ok {
		switch a := actual.(type) {
		case string:
			return a == es
		case record.Level:
			return string(a) == es
		}
		return false
	}
	return reflect.DeepEqual(expected, actual)
}

func toFloat(v interface{}) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case float64:
		return n, true
	}
	return 0, false
}
