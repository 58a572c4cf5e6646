package models

import (
	"fmt"
	"strconv"
	"strings"
)

// ID prefixes for pipeline entities.
const (
	UseCasePrefix   = "UC"
	TaskPrefix      = "TASK"
	UserStoryPrefix = "US"
)

// FormatID renders prefix-NNN with at least three digits.
func FormatID(prefix string, n int) string {
	return fmt.Sprintf("%s-%03d", prefix, n)
}

// ParseIDNumber extracts the numeric suffix of an identifier like TASK-012.
// It returns false when the id does not carry the expected prefix.
func ParseIDNumber(prefix, id string) (int, bool) {
	rest, ok := strings.CutPrefix(id, prefix+"-")
	if !ok || rest == "" {
		return 0, false
	}
	n, err := strconv.Atoi(rest)
	if err != nil || n < 0 {
		return 0, false
	}
	return n, true
}

// StoryIDForTask derives the user story id that shares its source task's number.
func StoryIDForTask(taskID string) string {
	n, ok := ParseIDNumber(TaskPrefix, taskID)
	if !ok {
		return ""
	}
	return FormatID(UserStoryPrefix, n)
}
