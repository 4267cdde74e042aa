package domain

import "time"

// EventType tags the kind of Event on the wire.
type EventType string

const (
	EventProgressInit  EventType = "progress-init"
	EventDepthDelta    EventType = "depth-delta"
	EventActivityDelta EventType = "activity-delta"
	EventSourceDelta   EventType = "source-delta"
	EventFinish        EventType = "finish"
)

// ActivityType distinguishes the unit of work an activity event reports on.
type ActivityType string

const (
	ActivitySearch    ActivityType = "search"
	ActivityExtract   ActivityType = "extract"
	ActivityAnalyze   ActivityType = "analyze"
	ActivityReasoning ActivityType = "reasoning"
	ActivitySynthesis ActivityType = "synthesis"
	ActivityThought   ActivityType = "thought"
)

// ActivityStatus is the lifecycle state of one activity.
type ActivityStatus string

const (
	StatusPending  ActivityStatus = "pending"
	StatusComplete ActivityStatus = "complete"
	StatusError    ActivityStatus = "error"
)

// ProgressInit is the first event of every run.
type ProgressInit struct {
	MaxDepth   int `json:"maxDepth"`
	TotalSteps int `json:"totalSteps"`
}

// DepthDelta announces entry into a new depth. Exactly one is emitted per
// depth entered, before any activity for that depth.
type DepthDelta struct {
	Current        int `json:"current"`
	Max            int `json:"max"`
	CompletedSteps int `json:"completedSteps"`
	TotalSteps     int `json:"totalSteps"`
}

// ActivityDelta reports the pending/complete/error transition of one unit
// of work.
type ActivityDelta struct {
	Type           ActivityType   `json:"type"`
	Status         ActivityStatus `json:"status"`
	Message        string         `json:"message"`
	Timestamp      time.Time      `json:"timestamp"`
	Depth          int            `json:"depth"`
	CompletedSteps int            `json:"completedSteps"`
	TotalSteps     int            `json:"totalSteps"`
}

// SourceDelta surfaces one search result to the consumer.
type SourceDelta struct {
	URL         string `json:"url"`
	Title       string `json:"title"`
	Description string `json:"description"`
}

// Finish is the terminal event of a successful run; it is always last.
type Finish struct {
	Content string `json:"content"`
}

// Event is the tagged variant emitted on the Event Sink: exactly one of the
// payload fields is non-nil, matching Type.
type Event struct {
	Type          EventType      `json:"type"`
	ProgressInit  *ProgressInit  `json:"progressInit,omitempty"`
	DepthDelta    *DepthDelta    `json:"depthDelta,omitempty"`
	ActivityDelta *ActivityDelta `json:"activityDelta,omitempty"`
	SourceDelta   *SourceDelta   `json:"sourceDelta,omitempty"`
	Finish        *Finish        `json:"finish,omitempty"`
}

func NewProgressInit(maxDepth, totalSteps int) Event {
	return Event{Type: EventProgressInit, ProgressInit: &ProgressInit{MaxDepth: maxDepth, TotalSteps: totalSteps}}
}

func NewDepthDelta(current, max, completedSteps, totalSteps int) Event {
	return Event{Type: EventDepthDelta, DepthDelta: &DepthDelta{
		Current: current, Max: max, CompletedSteps: completedSteps, TotalSteps: totalSteps,
	}}
}

func NewActivityDelta(t ActivityType, status ActivityStatus, message string, depth, completedSteps, totalSteps int) Event {
	return Event{Type: EventActivityDelta, ActivityDelta: &ActivityDelta{
		Type: t, Status: status, Message: message, Timestamp: time.Now().UTC(),
		Depth: depth, CompletedSteps: completedSteps, TotalSteps: totalSteps,
	}}
}

func NewSourceDelta(url, title, description string) Event {
	return Event{Type: EventSourceDelta, SourceDelta: &SourceDelta{URL: url, Title: title, Description: description}}
}

func NewFinish(content string) Event {
	return Event{Type: EventFinish, Finish: &Finish{Content: content}}
}
