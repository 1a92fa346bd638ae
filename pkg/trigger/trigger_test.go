package trigger

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestGateMatchesConfiguredBranch(t *testing.T) {
	g := Gate{Branch: "main"}

	req := g.OnEvent(Event{Kind: Push, Branch: "main"})
	assert.NotNil(t, req)

	req = g.OnEvent(Event{Kind: PullRequest, Branch: "main"})
	assert.NotNil(t, req)
}

func TestGateIgnoresOtherBranches(t *testing.T) {
	g := Gate{Branch: "main"}

	assert.Nil(t, g.OnEvent(Event{Kind: Push, Branch: "feature/x"}))
	assert.Nil(t, g.OnEvent(Event{Kind: PullRequest, Branch: "develop"}))
}

func TestGateRestrictsKinds(t *testing.T) {
	g := Gate{Branch: "main", Kinds: []EventKind{Push}}

	assert.NotNil(t, g.OnEvent(Event{Kind: Push, Branch: "main"}))
	assert.Nil(t, g.OnEvent(Event{Kind: PullRequest, Branch: "main"}))
}

func TestGateRejectsUnknownKind(t *testing.T) {
	g := Gate{Branch: "main"}
	assert.Nil(t, g.OnEvent(Event{Kind: "tag", Branch: "main"}))
}

func TestZeroGateMatchesNothing(t *testing.T) {
	var g Gate
	assert.Nil(t, g.OnEvent(Event{Kind: Push, Branch: "main"}))
}
