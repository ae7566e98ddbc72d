package knowledge_test

import (
	"errors"
	"testing"

	"github.com/kallevik/revline/pkg/knowledge"
	"github.com/kallevik/revline/pkg/position"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewKnowledgeHasSingleRootPositionAndVariation(t *testing.T) {
	k := knowledge.New(position.Initial())

	assert.Equal(t, 1, k.NumPositions())
	assert.Equal(t, 1, k.NumVariations())
	assert.Equal(t, 0, k.Main())
}

func TestAddMoveExtendsMainline(t *testing.T) {
	k := knowledge.New(position.Initial())

	vidx, v, info, err := k.AddMove(0, 0, "e2e4")
	require.NoError(t, err)
	assert.Equal(t, 0, vidx, "extending the mainline in place keeps its index")
	assert.Equal(t, []position.Move{"e2e4"}, v.Moves)
	assert.Equal(t, position.Black, info.Pos.Turn())
	assert.Equal(t, 2, k.NumPositions())
}

func TestAddMoveIsNoOpWhenAlreadyPlayed(t *testing.T) {
	k := knowledge.New(position.Initial())

	_, _, _, err := k.AddMove(0, 0, "e2e4")
	require.NoError(t, err)

	vidx, v, _, err := k.AddMove(0, 0, "e2e4")
	require.NoError(t, err)
	assert.Equal(t, 0, vidx)
	assert.Len(t, v.Moves, 1)
	assert.Equal(t, 2, k.NumPositions(), "replaying the same move must not create a duplicate position")
}

func TestAddMoveBranchesOnDivergence(t *testing.T) {
	k := knowledge.New(position.Initial())

	_, _, _, err := k.AddMove(0, 0, "e2e4")
	require.NoError(t, err)

	branchIdx, branch, _, err := k.AddMove(0, 0, "d2d4")
	require.NoError(t, err)
	assert.NotEqual(t, 0, branchIdx)
	assert.Equal(t, []position.Move{"d2d4"}, branch.Moves)
	assert.Equal(t, 2, k.NumVariations())

	// The mainline is untouched by the branch.
	main := k.Variation(0)
	assert.Equal(t, []position.Move{"e2e4"}, main.Moves)
}

func TestAddMoveRejectsBeyondEnd(t *testing.T) {
	k := knowledge.New(position.Initial())

	_, _, _, err := k.AddMove(0, 5, "e2e4")
	assert.True(t, errors.Is(err, knowledge.ErrOutOfRange))
}

func TestAddMoveRejectsPastConclusion(t *testing.T) {
	k := knowledge.New(position.Initial())

	moves := []position.Move{"f2f3", "e7e5", "g2g4", "d8h4"}
	hm := 0
	for _, m := range moves {
		_, _, _, err := k.AddMove(0, hm, m)
		require.NoError(t, err)
		hm++
	}

	v := k.Variation(0)
	require.NotNil(t, v.Outcome)
	assert.True(t, v.Outcome.Decisive)

	_, _, _, err := k.AddMove(0, hm, "a2a3")
	assert.True(t, errors.Is(err, knowledge.ErrPastConclusion))
}

func TestAddMoveDetectsTransposition(t *testing.T) {
	k := knowledge.New(position.Initial())

	_, _, _, err := k.AddMove(0, 0, "g1f3")
	require.NoError(t, err)
	_, _, _, err = k.AddMove(0, 1, "g8f6")
	require.NoError(t, err)
	_, _, _, err = k.AddMove(0, 2, "f3g1")
	require.NoError(t, err)
	_, v, info, err := k.AddMove(0, 3, "f6g8")
	require.NoError(t, err)

	assert.Equal(t, k.Root().Pos.Key(), info.Pos.Key())
	assert.Equal(t, v.Positions[0], v.Positions[len(v.Positions)-1],
		"transposing back to the root must reuse the root's position index")
}

func TestThreeFoldRepetitionSetsDrawOutcome(t *testing.T) {
	k := knowledge.New(position.Initial())

	shuffle := []position.Move{
		"g1f3", "g8f6", "f3g1", "f6g8",
		"g1f3", "g8f6", "f3g1", "f6g8",
	}

	vidx, hm := 0, 0
	var v knowledge.Variation
	var err error
	for _, m := range shuffle {
		vidx, v, _, err = k.AddMove(vidx, hm, m)
		require.NoError(t, err)
		hm++
	}

	require.NotNil(t, v.Outcome)
	assert.True(t, v.Outcome.Draw)
	assert.False(t, v.Outcome.Decisive)
}

func TestUpdateMainlineOnlyMovesCurrentPointer(t *testing.T) {
	k := knowledge.New(position.Initial())

	_, _, _, err := k.AddMove(0, 0, "e2e4")
	require.NoError(t, err)
	branchIdx, _, _, err := k.AddMove(0, 0, "d2d4")
	require.NoError(t, err)

	k.UpdateMainline(0, branchIdx)
	assert.Equal(t, branchIdx, k.Main())

	// A stale "from" must not move the pointer again.
	k.UpdateMainline(0, 0)
	assert.Equal(t, branchIdx, k.Main())
}

func TestUpdateEvalIsStoredPerPosition(t *testing.T) {
	k := knowledge.New(position.Initial())
	idx, ok := k.IndexOf(position.Initial())
	require.True(t, ok)

	assert.Nil(t, k.Position(idx).Eval)
	k.UpdateEval(idx, knowledge.Cp(25))
	require.NotNil(t, k.Position(idx).Eval)
	assert.Equal(t, knowledge.Cp(25), *k.Position(idx).Eval)
}
