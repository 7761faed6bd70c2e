// Package tasklist runs a fixed set of dependent stages by repeated polling.
// A stage that reports incomplete is simply tried again on the next sweep,
// which is how a rank makes progress on communication while other stages run.
package tasklist

import (
	"context"
	"fmt"
	"runtime"

	"github.com/rs/zerolog/log"

	"github.com/notargets/halo/types"
)

type TaskID int

type TaskFunc func(ctx context.Context) (types.TaskStatus, error)

type Task struct {
	ID         TaskID
	Name       string
	Dependency []TaskID
	Func       TaskFunc
	done       bool
}

type TaskList struct {
	Tasks  []*Task
	Sweeps int // Sweeps used by the last Execute
	ndone  int
}

func NewTaskList() *TaskList {
	return &TaskList{}
}

// AddTask appends a stage that becomes runnable once every task in deps is
// complete. Dependencies must already be in the list.
func (tl *TaskList) AddTask(name string, f TaskFunc, deps ...TaskID) (id TaskID) {
	id = TaskID(len(tl.Tasks))
	for _, dep := range deps {
		if dep < 0 || dep >= id {
			panic(fmt.Errorf("task %q depends on unknown task %d", name, dep))
		}
	}
	tl.Tasks = append(tl.Tasks, &Task{
		ID:         id,
		Name:       name,
		Dependency: append([]TaskID(nil), deps...),
		Func:       f,
	})
	return
}

// Reset marks every task incomplete so the list can be run again
func (tl *TaskList) Reset() {
	for _, t := range tl.Tasks {
		t.done = false
	}
	tl.ndone = 0
	tl.Sweeps = 0
}

func (tl *TaskList) Completed() int { return tl.ndone }

func (tl *TaskList) IsComplete() bool { return tl.ndone == len(tl.Tasks) }

func (tl *TaskList) ready(t *Task) bool {
	for _, dep := range t.Dependency {
		if !tl.Tasks[dep].done {
			return false
		}
	}
	return true
}

// DoAvailable makes one pass over the list, running every incomplete task
// whose dependencies are met. Tasks completed earlier in the pass unlock later
// ones in the same pass.
func (tl *TaskList) DoAvailable(ctx context.Context) (status types.TaskStatus, err error) {
	for _, t := range tl.Tasks {
		if t.done || !tl.ready(t) {
			continue
		}
		var ts types.TaskStatus
		if ts, err = t.Func(ctx); err != nil {
			return types.TaskIncomplete, fmt.Errorf("task %q: %w", t.Name, err)
		}
		if ts == types.TaskComplete {
			t.done = true
			tl.ndone++
			log.Trace().Str("task", t.Name).Int("sweep", tl.Sweeps).Msg("task complete")
		}
	}
	if tl.IsComplete() {
		return types.TaskComplete, nil
	}
	return types.TaskIncomplete, nil
}

// Execute sweeps until every task is complete, a task fails or ctx is done.
// The goroutine yields between sweeps so peers sharing the process can make
// progress.
func (tl *TaskList) Execute(ctx context.Context) (err error) {
	var status types.TaskStatus
	for {
		if err = ctx.Err(); err != nil {
			return fmt.Errorf("task list stopped with %d of %d tasks complete: %w",
				tl.ndone, len(tl.Tasks), err)
		}
		tl.Sweeps++
		if status, err = tl.DoAvailable(ctx); err != nil {
			return
		}
		if status == types.TaskComplete {
			return
		}
		runtime.Gosched()
	}
}
