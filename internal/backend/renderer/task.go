package renderer

import "fmt"

// State is the progress of a render task.
type State int

const (
	Queued State = iota + 1
	Running
	Completed
	Failed
)

func (s State) String() string {
	switch s {
	case Queued:
		return "queued"
	case Running:
		return "running"
	case Completed:
		return "completed"
	case Failed:
		return "failed"
	default:
		return "unknown"
	}
}

// Terminal reports whether no further transition is possible.
func (s State) Terminal() bool {
	return s == Completed || s == Failed
}

// Output is one file written by the renderer. Ref is relative to the renderer's output
// directory; Path is the local file when that directory is mounted. Zero dimensions
// mean unknown.
type Output struct {
	Ref    string
	Path   string
	Width  int
	Height int
}

// Task follows one submitted job. Outputs is set only when Completed, Reason only
// when Failed.
type Task struct {
	ID      string
	State   State
	Outputs []Output
	Reason  string
}

// Event is delivered to the caller on every task change.
type Event struct {
	TaskID   string
	State    State
	Message  string
	Progress int
	Max      int
}

var transitions = map[State][]State{
	0:       {Queued, Failed},
	Queued:  {Running, Completed, Failed},
	Running: {Completed, Failed},
}

func (t *Task) moveTo(next State) error {
	for _, allowed := range transitions[t.State] {
		if allowed == next {
			t.State = next
			return nil
		}
	}
	return fmt.Errorf("task %s cannot move from %s to %s", t.ID, t.State, next)
}

func (t *Task) complete(outputs []Output) error {
	if err := t.moveTo(Completed); err != nil {
		return err
	}
	t.Outputs = outputs
	return nil
}

// fail marks the task failed unless it already finished.
func (t *Task) fail(reason string) {
	if t.State.Terminal() {
		return
	}
	t.State = Failed
	t.Reason = reason
	t.Outputs = nil
}
