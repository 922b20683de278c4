package governance

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRules_DenyKind(t *testing.T) {
	engine := NewRules()
	ctx := context.Background()

	res, err := engine.Evaluate(ctx, Request{Kind: "mail"})
	require.NoError(t, err)
	assert.Equal(t, EffectAllow, res.Effect)
	assert.Empty(t, res.Rule)

	engine.DenyKind("calendar")
	res, err = engine.Evaluate(ctx, Request{Kind: "CALENDAR"})
	require.NoError(t, err)
	assert.Equal(t, EffectDeny, res.Effect)
	assert.Contains(t, res.Reason, "forbidden")
	assert.Equal(t, "kind:calendar", res.Rule)
}

func TestRules_DenyPattern(t *testing.T) {
	engine := NewRules()
	require.NoError(t, engine.DenyPattern("calendar", `"action":"delete_all"`))
	assert.Error(t, engine.DenyPattern("", `(`))
	assert.Equal(t, 1, engine.Len())

	tests := []struct {
		name string
		req  Request
		want Effect
	}{
		{"matching calendar args", Request{Kind: "calendar", Arguments: `{"action":"delete_all"}`}, EffectDeny},
		{"other calendar args", Request{Kind: "calendar", Arguments: `{"action":"create","title":"standup"}`}, EffectAllow},
		{"pattern scoped to calendar", Request{Kind: "mail", Arguments: `{"action":"delete_all"}`}, EffectAllow},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := engine.Evaluate(context.Background(), tt.req)
			require.NoError(t, err)
			assert.Equal(t, tt.want, res.Effect)
		})
	}
}

func TestRules_UnscopedPattern(t *testing.T) {
	engine := NewRules()
	require.NoError(t, engine.DenyPattern("", `rm -rf`))

	res, err := engine.Evaluate(context.Background(), Request{Kind: "other", Arguments: `{"description":"rm -rf /"}`})
	require.NoError(t, err)
	assert.Equal(t, EffectDeny, res.Effect)
	assert.Equal(t, "pattern:rm -rf", res.Rule)
}

func TestRules_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := NewRules().Evaluate(ctx, Request{Kind: "mail"})
	assert.ErrorIs(t, err, context.Canceled)
}
