package rules

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/orgoj/crogger/internal/config"
	"github.com/orgoj/crogger/pkg/record"
)

func newProcessor(t *testing.T, rules ...config.Rule) *Processor {
	t.Helper()
	p, err := NewProcessor(rules)
	require.NoError(t, err)
	return p
}

func TestNewProcessor_InvalidPatterns(t *testing.T) {
	tests := []struct {
		name string
		rule config.Rule
	}{
		{"bad level", config.Rule{Condition: config.RuleCondition{Levels: []string{"loud"}}}},
		{"bad path glob", config.Rule{Condition: config.RuleCondition{Paths: []string{"/api/[x"}}}},
		{"bad user agent glob", config.Rule{Condition: config.RuleCondition{UserAgents: []string{"[b"}}}},
		{"bad ip", config.Rule{Condition: config.RuleCondition{IPs: []string{"10.0.0.0/99"}}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewProcessor([]config.Rule{tt.rule})
			assert.Error(t, err)
		})
	}
}

func TestProcess_Conditions(t *testing.T) {
	base := record.Record{
		Level:     record.LevelWarn,
		Message:   "slow request",
		Category:  "http",
		Path:      "/api/orders/42",
		UserAgent: "Mozilla/5.0 (X11; Linux x86_64)",
		Fields:    record.Fields{ClientIPField: "192.168.1.20", "tenant": "acme", "retries": 2},
	}

	tests := []struct {
		name      string
		condition config.RuleCondition
		matched   bool
	}{
		{"empty condition", config.RuleCondition{}, true},
		{"level match", config.RuleCondition{Levels: []string{"error", "WARN"}}, true},
		{"level mismatch", config.RuleCondition{Levels: []string{"error"}}, false},
		{"category match", config.RuleCondition{Categories: []string{"http"}}, true},
		{"category mismatch", config.RuleCondition{Categories: []string{"db"}}, false},
		{"path glob match", config.RuleCondition{Paths: []string{"/health", "/api/*"}}, true},
		{"path glob mismatch", config.RuleCondition{Paths: []string{"/admin/*"}}, false},
		{"user agent match", config.RuleCondition{UserAgents: []string{"*Linux*"}}, true},
		{"user agent mismatch", config.RuleCondition{UserAgents: []string{"*bot*"}}, false},
		{"ip in range", config.RuleCondition{IPs: []string{"192.168.1.0/24"}}, true},
		{"ip out of range", config.RuleCondition{IPs: []string{"10.0.0.0/8"}}, false},
		{"field equals", config.RuleCondition{Fields: map[string]interface{}{"tenant": "acme"}}, true},
		{"field differs", config.RuleCondition{Fields: map[string]interface{}{"tenant": "other"}}, false},
		{"numeric field equals", config.RuleCondition{Fields: map[string]interface{}{"retries": 2.0}}, true},
		{"recognized field equals", config.RuleCondition{Fields: map[string]interface{}{"level": "warn"}}, true},
		{"field present", config.RuleCondition{Fields: map[string]interface{}{"tenant": true}}, true},
		{"field must be absent", config.RuleCondition{Fields: map[string]interface{}{"tenant": false}}, false},
		{"missing field absent", config.RuleCondition{Fields: map[string]interface{}{"userId": false}}, true},
		{"all combined", config.RuleCondition{
			Levels:     []string{"warn"},
			Paths:      []string{"/api/*"},
			IPs:        []string{"192.168.1.20"},
			Categories: []string{"http"},
		}, true},
		{"one of combined fails", config.RuleCondition{
			Levels: []string{"warn"},
			Paths:  []string{"/other"},
		}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := newProcessor(t, config.Rule{Enabled: true, Condition: tt.condition, Drop: true})
			res := p.Process(base)
			assert.Equal(t, tt.matched, res.Drop)
		})
	}
}

func TestProcess_IPConditionWithoutClientIP(t *testing.T) {
	p := newProcessor(t, config.Rule{Enabled: true, Drop: true, Condition: config.RuleCondition{IPs: []string{"0.0.0.0/0"}}})
	assert.False(t, p.Process(record.Record{Message: "no ip"}).Drop)
}

func TestProcess_ContinueAndFinalRules(t *testing.T) {
	p := newProcessor(t,
		config.Rule{Enabled: true, Continue: true, AddFields: map[string]interface{}{"surface": "api", "tier": "free"}},
		config.Rule{Enabled: false, Drop: true},
		config.Rule{Enabled: true, Continue: true, Condition: config.RuleCondition{Levels: []string{"error"}}, AddFields: map[string]interface{}{"page": true}},
		config.Rule{Enabled: true, AddFields: map[string]interface{}{"tier": "paid"}},
		config.Rule{Enabled: true, AddFields: map[string]interface{}{"never": "reached"}},
	)

	res := p.Process(record.Record{Level: record.LevelInfo})
	assert.False(t, res.Drop)
	assert.Equal(t, []int{0, 3}, res.Matched)
	assert.Equal(t, map[string]interface{}{"surface": "api", "tier": "paid"}, res.AddFields)

	res = p.Process(record.Record{Level: record.LevelError})
	assert.Equal(t, []int{0, 2, 3}, res.Matched)
	assert.Equal(t, true, res.AddFields["page"])
}

func TestProcess_DropDiscardsAccumulatedFields(t *testing.T) {
	p := newProcessor(t,
		config.Rule{Enabled: true, Continue: true, AddFields: map[string]interface{}{"x": 1}},
		config.Rule{Enabled: true, Drop: true, Condition: config.RuleCondition{Levels: []string{"debug"}}},
	)

	res := p.Process(record.Record{Level: record.LevelDebug})
	assert.True(t, res.Drop)
	assert.Nil(t, res.AddFields)

	res = p.Process(record.Record{Level: record.LevelInfo})
	assert.False(t, res.Drop)
	assert.Equal(t, map[string]interface{}{"x": 1}, res.AddFields)
}

func TestProcessor_Transform(t *testing.T) {
	p := newProcessor(t,
		config.Rule{Enabled: true, Drop: true, Condition: config.RuleCondition{UserAgents: []string{"*HealthCheck*"}}},
		config.Rule{Enabled: true, AddFields: map[string]interface{}{"surface": "api", "category": "http"}},
	)
	transform := p.Transform()
	ctx := context.Background()

	res, err := transform(ctx, record.Record{UserAgent: "ELB-HealthCheck/2.0"})
	require.NoError(t, err)
	_, kept := res.Record()
	assert.False(t, kept)

	in := record.Record{Level: record.LevelInfo, Message: "ok", Fields: record.Fields{"orderId": "o-1"}}
	res, err = transform(ctx, in)
	require.NoError(t, err)
	out, kept := res.Record()
	require.True(t, kept)
	assert.Equal(t, "http", out.Category, "recognized keys are lifted into the typed member")
	assert.Equal(t, record.Fields{"orderId": "o-1", "surface": "api"}, out.Fields)
	assert.Equal(t, record.Fields{"orderId": "o-1"}, in.Fields, "input must not be modified")
}

func TestProcessor_TransformWithoutRules(t *testing.T) {
	p := newProcessor(t)
	in := record.Record{Message: "untouched"}

	res, err := p.Transform()(context.Background(), in)
	require.NoError(t, err)
	out, kept := res.Record()
	require.True(t, kept)
	assert.Equal(t, in, out)
}
