package record

import (
	"cmp"
	"slices"
	"time"
)

// snapshot is a full in-memory copy of a store's data. MemoryStore and
// BoltStore answer queries from it.
type snapshot struct {
	tasks  map[string]Task
	events map[string]EventRecord
	execs  map[string]Execution
}

func newSnapshot() *snapshot {
	return &snapshot{
		tasks:  make(map[string]Task),
		events: make(map[string]EventRecord),
		execs:  make(map[string]Execution),
	}
}

// complete applies CompleteExecution semantics. The returned task is only
// meaningful when taskFound is true.
func (s *snapshot) complete(id string, result any, errMsg string, at time.Time) (exec Execution, task Task, taskFound bool, err error) {
	exec, ok := s.execs[id]
	if !ok {
		return Execution{}, Task{}, false, ErrNotFound
	}

	exec.CompletedAt = at
	exec.DurationMs = durationMs(exec.StartedAt, at)
	if errMsg != "" {
		exec.Status = StatusFailed
		exec.Error = errMsg
	} else {
		exec.Status = StatusCompleted
		exec.Result = normalize(result)
	}

	task, taskFound = s.tasks[exec.TaskID]
	if taskFound {
		task.ExecutionCount++
		task.LastExecuted = at
		if task.Once {
			task.Active = false
		}
	}
	return exec, task, taskFound, nil
}

func (s *snapshot) activeTasks(eventName, namespace string) []Task {
	out := []Task{}
	for _, t := range s.tasks {
		if !t.Active {
			continue
		}
		if eventName != "" && t.EventName != eventName {
			continue
		}
		if namespace != "" && t.Namespace != namespace {
			continue
		}
		out = append(out, t)
	}
	slices.SortFunc(out, func(a, b Task) int {
		if c := cmp.Compare(a.Priority, b.Priority); c != 0 {
			return c
		}
		if c := a.CreatedAt.Compare(b.CreatedAt); c != 0 {
			return c
		}
		return cmp.Compare(a.ID, b.ID)
	})
	return out
}

func (s *snapshot) history(eventName string, limit int) []HistoryEntry {
	out := []HistoryEntry{}
	for _, e := range s.execs {
		evt := s.events[e.EventID]
		if eventName != "" && evt.Name != eventName {
			continue
		}
		out = append(out, HistoryEntry{Execution: e, EventName: evt.Name, Namespace: evt.Namespace})
	}
	slices.SortFunc(out, func(a, b HistoryEntry) int {
		if c := b.StartedAt.Compare(a.StartedAt); c != 0 {
			return c
		}
		return cmp.Compare(a.ID, b.ID)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}

func (s *snapshot) stats(since, now time.Time) Stats {
	st := Stats{
		TotalEvents:     int64(len(s.events)),
		TotalExecutions: int64(len(s.execs)),
		Since:           since,
		GeneratedAt:     now,
	}

	var totalMs float64
	var timed int64
	for _, e := range s.execs {
		switch e.Status {
		case StatusCompleted:
			st.SuccessfulExecutions++
		case StatusFailed:
			st.FailedExecutions++
		}
		if !e.CompletedAt.IsZero() {
			totalMs += e.DurationMs
			timed++
		}
		if t, ok := s.tasks[e.TaskID]; ok && t.Async {
			st.AsyncExecutions++
		}
	}
	if timed > 0 {
		st.AvgDurationMs = totalMs / float64(timed)
	}
	st.SuccessRate = successRate(st.SuccessfulExecutions, st.TotalExecutions)

	for _, t := range s.tasks {
		if t.Active {
			st.ActiveTasks++
		}
	}

	byEvent := map[string]int64{}
	byNamespace := map[string]int64{}
	for _, evt := range s.events {
		if evt.CreatedAt.Before(since) {
			continue
		}
		byEvent[evt.Name]++
		if evt.Namespace != "" {
			byNamespace[evt.Namespace]++
		}
	}
	st.TopEvents = topN(byEvent)
	st.TopNamespaces = topN(byNamespace)
	return st
}

// topN orders counts descending, then by name, keeping at most topLimit.
func topN(counts map[string]int64) []NameCount {
	out := make([]NameCount, 0, len(counts))
	for name, n := range counts {
		out = append(out, NameCount{Name: name, Count: n})
	}
	slices.SortFunc(out, func(a, b NameCount) int {
		if c := cmp.Compare(b.Count, a.Count); c != 0 {
			return c
		}
		return cmp.Compare(a.Name, b.Name)
	})
	if len(out) > topLimit {
		out = out[:topLimit]
	}
	return out
}

// cleanupPlan lists the ids Cleanup should remove.
type cleanupPlan struct {
	execs  []string
	events []string
	tasks  []string
}

func (s *snapshot) planCleanup(before time.Time) cleanupPlan {
	var plan cleanupPlan
	eventUsed := map[string]bool{}
	taskUsed := map[string]bool{}

	for id, e := range s.execs {
		if e.StartedAt.Before(before) {
			plan.execs = append(plan.execs, id)
			continue
		}
		eventUsed[e.EventID] = true
		taskUsed[e.TaskID] = true
	}
	for id, evt := range s.events {
		if evt.CreatedAt.Before(before) && !eventUsed[id] {
			plan.events = append(plan.events, id)
		}
	}
	for id, t := range s.tasks {
		if !t.Active && t.CreatedAt.Before(before) && !taskUsed[id] {
			plan.tasks = append(plan.tasks, id)
		}
	}
	return plan
}

func (p cleanupPlan) result() CleanupResult {
	return CleanupResult{
		Executions: int64(len(p.execs)),
		Events:     int64(len(p.events)),
		Tasks:      int64(len(p.tasks)),
	}
}
