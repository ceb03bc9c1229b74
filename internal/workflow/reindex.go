package workflow

// PositionShift is one range update to apply to a stage's positions. Max 0
// means unbounded. The moved item itself is excluded from the range by the
// store when applying the shift.
type PositionShift struct {
	StageID string
	Min     int
	Max     int
	Delta   int
}

// PlanMove computes the position shifts needed to move an item from
// (fromStageID, fromPos) to (toStageID, toPos) while keeping every stage's
// positions a dense 1..N permutation. The returned plan must be applied in
// the same transaction as the item's own stage/position update.
func PlanMove(fromStageID string, fromPos int, toStageID string, toPos int) []PositionShift {
	if fromStageID != toStageID {
		return []PositionShift{
			{StageID: fromStageID, Min: fromPos + 1, Delta: -1},
			{StageID: toStageID, Min: toPos, Delta: +1},
		}
	}
	switch {
	case toPos > fromPos:
		return []PositionShift{{StageID: fromStageID, Min: fromPos + 1, Max: toPos, Delta: -1}}
	case toPos < fromPos:
		return []PositionShift{{StageID: fromStageID, Min: toPos, Max: fromPos - 1, Delta: +1}}
	}
	return nil
}

// ClampPosition bounds a requested position to 1..max. A request of 0 or
// below lands at 1; a request past the end lands at max.
func ClampPosition(requested, max int) int {
	if max < 1 {
		return 1
	}
	if requested < 1 {
		return 1
	}
	if requested > max {
		return max
	}
	return requested
}
