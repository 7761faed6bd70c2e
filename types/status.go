package types

// TaskStatus is what every scheduled stage reports back to the task list.
// Incomplete means "re-enqueue and poll again", never an error.
type TaskStatus uint8

const (
	TaskIncomplete TaskStatus = iota
	TaskComplete
)

func (ts TaskStatus) String() string {
	if ts == TaskComplete {
		return "complete"
	}
	return "incomplete"
}

// BoundaryCommStatus tracks one (block, direction) receive slot
type BoundaryCommStatus uint8

const (
	BoundaryWaiting BoundaryCommStatus = iota
	BoundaryReceived
)

func (bs BoundaryCommStatus) String() string {
	if bs == BoundaryReceived {
		return "received"
	}
	return "waiting"
}
