package workflow

import (
	"sort"

	"missionctl/backend/pkg/models"
)

// CapabilityHints collects the tags a candidate worker should overlap with:
// the item's declared required capabilities, its free-form tags, and the
// destination stage's artifact and gate keys.
func CapabilityHints(item *models.WorkItem, stage *models.Stage) []string {
	seen := make(map[string]struct{})
	var hints []string
	add := func(tag string) {
		if tag == "" {
			return
		}
		if _, ok := seen[tag]; ok {
			return
		}
		seen[tag] = struct{}{}
		hints = append(hints, tag)
	}

	for _, tag := range item.Artifacts.RequiredCapabilities {
		add(tag)
	}
	for _, tag := range item.Artifacts.Tags {
		add(tag)
	}
	for _, rule := range stage.RequiredArtifacts {
		add(rule.Key)
	}
	for _, gate := range stage.RequiredGates {
		add(gate.Key)
	}
	return hints
}

// SelectWorker ranks candidates for a stage's default role and returns the
// best one, or nil when the pool is empty. Candidates with status OFFLINE or
// ERROR are skipped. Ranking: idle before busy, then higher capability
// overlap, then lower current load, then lexicographic id so selection is
// reproducible. Read-only; marking the winner busy is the caller's job.
func SelectWorker(workers []*models.Worker, loads map[string]int, item *models.WorkItem, stage *models.Stage) *models.Worker {
	hints := CapabilityHints(item, stage)

	type candidate struct {
		worker  *models.Worker
		idle    bool
		overlap int
		load    int
	}
	var pool []candidate
	for _, w := range workers {
		if w.Status == models.WorkerStatusOffline || w.Status == models.WorkerStatusError {
			continue
		}
		pool = append(pool, candidate{
			worker:  w,
			idle:    w.Status == models.WorkerStatusIdle,
			overlap: overlapCount(w.Capabilities, hints),
			load:    loads[w.ID],
		})
	}
	if len(pool) == 0 {
		return nil
	}

	sort.Slice(pool, func(i, j int) bool {
		a, b := pool[i], pool[j]
		if a.idle != b.idle {
			return a.idle
		}
		if a.overlap != b.overlap {
			return a.overlap > b.overlap
		}
		if a.load != b.load {
			return a.load < b.load
		}
		return a.worker.ID < b.worker.ID
	})
	return pool[0].worker
}

func overlapCount(capabilities, hints []string) int {
	if len(capabilities) == 0 || len(hints) == 0 {
		return 0
	}
	set := make(map[string]struct{}, len(hints))
	for _, h := range hints {
		set[h] = struct{}{}
	}
	n := 0
	for _, c := range capabilities {
		if _, ok := set[c]; ok {
			n++
		}
	}
	return n
}
