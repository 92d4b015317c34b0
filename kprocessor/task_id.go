package kprocessor

import (
	"fmt"
	"strconv"
	"strings"
)

// TaskID identifies a task: the subtopology it runs and the partition it owns.
// Rendered as "<subtopology>_<partition>", e.g. "0_0".
type TaskID struct {
	Subtopology int32
	Partition   int32
}

func (t TaskID) String() string {
	return fmt.Sprintf("%d_%d", t.Subtopology, t.Partition)
}

// ParseTaskID parses the "<subtopology>_<partition>" form.
func ParseTaskID(s string) (TaskID, error) {
	sub, part, ok := strings.Cut(s, "_")
	if !ok {
		return TaskID{}, fmt.Errorf("invalid task id %q: expected <subtopology>_<partition>", s)
	}
	subtopology, err := strconv.ParseInt(sub, 10, 32)
	if err != nil {
		return TaskID{}, fmt.Errorf("invalid task id %q: subtopology: %w", s, err)
	}
	partition, err := strconv.ParseInt(part, 10, 32)
	if err != nil {
		return TaskID{}, fmt.Errorf("invalid task id %q: partition: %w", s, err)
	}
	if subtopology < 0 || partition < 0 {
		return TaskID{}, fmt.Errorf("invalid task id %q: negative component", s)
	}
	return TaskID{Subtopology: int32(subtopology), Partition: int32(partition)}, nil
}
