package locator

import (
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSpecBuilderPreservesOrder(t *testing.T) {
	spec := New("login button").
		TestID("login", "preferred").
		Role("button[name=Log in]", "").
		CSS("button.login", "legacy class").
		Text("Log in", "")

	require.Equal(t, 4, spec.Len())
	assert.Equal(t, "login button", spec.Name())

	want := []Strategy{
		{Kind: KindTestID, Selector: "login", Label: "preferred"},
		{Kind: KindRole, Selector: "button[name=Log in]"},
		{Kind: KindCSS, Selector: "button.login", Label: "legacy class"},
		{Kind: KindText, Selector: "Log in"},
	}
	if diff := cmp.Diff(want, spec.Strategies()); diff != "" {
		t.Errorf("strategies mismatch (-want +got):\n%s", diff)
	}
}

func TestSpecStrategiesReturnsCopy(t *testing.T) {
	spec := New("x").CSS("#a", "")
	got := spec.Strategies()
	got[0].Selector = "#mutated"
	assert.Equal(t, "#a", spec.Strategies()[0].Selector)
}

func TestSpecAllKinds(t *testing.T) {
	spec := New("kitchen sink").
		XPath("//a", "").
		CSS("a", "").
		Role("link", "").
		Text("Home", "").
		TestID("home", "").
		ByLabel("Email", "").
		Placeholder("you@example.com", "").
		AltText("Logo", "")

	kinds := make([]Kind, 0, spec.Len())
	for _, s := range spec.Strategies() {
		kinds = append(kinds, s.Kind)
	}
	assert.Equal(t, []Kind{
		KindXPath, KindCSS, KindRole, KindText,
		KindTestID, KindLabel, KindPlaceholder, KindAltText,
	}, kinds)
}

func TestStrategyString(t *testing.T) {
	tests := []struct {
		name string
		s    Strategy
		want string
	}{
		{
			name: "with label",
			s:    Strategy{Kind: KindXPath, Selector: "//div", Label: "Primary XPath"},
			want: `xpath="//div" (Primary XPath)`,
		},
		{
			name: "without label",
			s:    Strategy{Kind: KindCSS, Selector: ".btn"},
			want: `css=".btn"`,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.s.String())
		})
	}
}

func TestStrategyTimeoutOverrideDefaultsToZero(t *testing.T) {
	spec := New("x").CSS("#a", "")
	assert.Zero(t, spec.Strategies()[0].Timeout)

	spec.Add(Strategy{Kind: KindCSS, Selector: "#b", Timeout: 2 * time.Second})
	assert.Equal(t, 2*time.Second, spec.Strategies()[1].Timeout)
}
