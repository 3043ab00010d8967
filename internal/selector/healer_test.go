package selector

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

type fakeLocator struct {
	counts map[string]int
	errs   map[string]error
	calls  []string
}

func (f *fakeLocator) CountMatches(_ context.Context, sel Resilient) (int, error) {
	f.calls = append(f.calls, sel.Value)
	if err, ok := f.errs[sel.Value]; ok {
		return 0, err
	}
	return f.counts[sel.Value], nil
}

func chainOf(values ...string) []Resilient {
	out := make([]Resilient, 0, len(values))
	for i, v := range values {
		out = append(out, Resilient{Strategy: Strategy(i), Value: v})
	}
	return out
}

func TestFindElementFirstCandidateWins(t *testing.T) {
	loc := &fakeLocator{counts: map[string]int{"a": 1}}
	res := NewHealer(nil).FindElement(context.Background(), loc, chainOf("a", "b"))

	require.True(t, res.Found)
	require.False(t, res.Healed)
	require.Equal(t, "a", res.Used.Value)
	require.Nil(t, res.Original)
	require.Equal(t, []string{"a"}, loc.calls)
}

func TestFindElementHealsToLaterCandidate(t *testing.T) {
	loc := &fakeLocator{counts: map[string]int{"c": 2}}
	chain := chainOf("a", "b", "c")
	res := NewHealer(nil).FindElement(context.Background(), loc, chain)

	require.True(t, res.Found)
	require.True(t, res.Healed)
	require.Equal(t, "c", res.Used.Value)
	require.NotNil(t, res.Original)
	require.Equal(t, "a", res.Original.Value)
	require.Equal(t,
		"Selector healed: preferred test_id(a) failed, fell back to text(c)",
		res.Message)
}

func TestFindElementErrorIsTreatedAsNotFound(t *testing.T) {
	loc := &fakeLocator{
		errs:   map[string]error{"a": errors.New("stale context")},
		counts: map[string]int{"b": 1},
	}
	res := NewHealer(nil).FindElement(context.Background(), loc, chainOf("a", "b"))

	require.True(t, res.Found)
	require.True(t, res.Healed)
	require.Equal(t, "b", res.Used.Value)
	require.Equal(t, []string{"a", "b"}, loc.calls)
}

func TestFindElementExhaustionAndEmptyChain(t *testing.T) {
	healer := NewHealer(nil)

	res := healer.FindElement(context.Background(), &fakeLocator{}, chainOf("a", "b"))
	require.False(t, res.Found)
	require.False(t, res.Healed)

	res = healer.FindElement(context.Background(), &fakeLocator{}, nil)
	require.False(t, res.Found)
}
