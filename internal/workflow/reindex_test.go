package workflow

import (
	"fmt"
	"math/rand"
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
)

// board simulates per-stage position state and applies move plans the way
// the store does inside a transaction.
type board struct {
	positions map[string]map[string]int // stageID -> itemID -> position
}

func newBoard(stages ...string) *board {
	b := &board{positions: make(map[string]map[string]int)}
	for _, s := range stages {
		b.positions[s] = make(map[string]int)
	}
	return b
}

func (b *board) add(stageID, itemID string) {
	b.positions[stageID][itemID] = len(b.positions[stageID]) + 1
}

func (b *board) move(itemID, fromStage string, toStage string, toPos int) {
	fromPos := b.positions[fromStage][itemID]
	for _, shift := range PlanMove(fromStage, fromPos, toStage, toPos) {
		for id, pos := range b.positions[shift.StageID] {
			if id == itemID {
				continue
			}
			if pos < shift.Min {
				continue
			}
			if shift.Max > 0 && pos > shift.Max {
				continue
			}
			b.positions[shift.StageID][id] = pos + shift.Delta
		}
	}
	delete(b.positions[fromStage], itemID)
	b.positions[toStage][itemID] = toPos
}

func (b *board) assertDense(t *testing.T) {
	t.Helper()
	for stageID, items := range b.positions {
		var positions []int
		for _, pos := range items {
			positions = append(positions, pos)
		}
		sort.Ints(positions)
		for i, pos := range positions {
			assert.Equal(t, i+1, pos, "stage %s positions %v are not dense", stageID, positions)
		}
	}
}

func TestPlanMoveCrossStage(t *testing.T) {
	shifts := PlanMove("a", 2, "b", 1)
	assert.Equal(t, []PositionShift{
		{StageID: "a", Min: 3, Delta: -1},
		{StageID: "b", Min: 1, Delta: +1},
	}, shifts)
}

func TestPlanMoveSameStage(t *testing.T) {
	t.Run("down the list", func(t *testing.T) {
		shifts := PlanMove("a", 2, "a", 4)
		assert.Equal(t, []PositionShift{{StageID: "a", Min: 3, Max: 4, Delta: -1}}, shifts)
	})
	t.Run("up the list", func(t *testing.T) {
		shifts := PlanMove("a", 4, "a", 2)
		assert.Equal(t, []PositionShift{{StageID: "a", Min: 2, Max: 3, Delta: +1}}, shifts)
	})
	t.Run("no-op", func(t *testing.T) {
		assert.Nil(t, PlanMove("a", 3, "a", 3))
	})
}

func TestMoveSequencesKeepPositionsDense(t *testing.T) {
	b := newBoard("backlog", "ready", "done")
	for i := 1; i <= 5; i++ {
		b.add("backlog", fmt.Sprintf("t%d", i))
	}
	b.assertDense(t)

	b.move("t3", "backlog", "ready", 1)
	b.assertDense(t)
	b.move("t1", "backlog", "ready", 1)
	b.assertDense(t)
	b.move("t5", "backlog", "backlog", 1)
	b.assertDense(t)
	b.move("t1", "ready", "done", 1)
	b.assertDense(t)
	b.move("t3", "ready", "ready", 1)
	b.assertDense(t)
}

func TestRandomMovesKeepPositionsDense(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	stages := []string{"s1", "s2", "s3"}
	b := newBoard(stages...)
	items := make(map[string]string) // itemID -> stageID
	for i := 0; i < 12; i++ {
		id := fmt.Sprintf("t%d", i)
		stage := stages[rng.Intn(len(stages))]
		b.add(stage, id)
		items[id] = stage
	}
	b.assertDense(t)

	ids := make([]string, 0, len(items))
	for id := range items {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	for i := 0; i < 200; i++ {
		id := ids[rng.Intn(len(ids))]
		from := items[id]
		to := stages[rng.Intn(len(stages))]

		max := len(b.positions[to])
		if from != to {
			max++
		}
		toPos := ClampPosition(1+rng.Intn(max+1), max)

		b.move(id, from, to, toPos)
		items[id] = to
		b.assertDense(t)
	}
}

func TestClampPosition(t *testing.T) {
	assert.Equal(t, 1, ClampPosition(0, 5))
	assert.Equal(t, 1, ClampPosition(-3, 5))
	assert.Equal(t, 3, ClampPosition(3, 5))
	assert.Equal(t, 5, ClampPosition(9, 5))
	assert.Equal(t, 1, ClampPosition(2, 0))
}
