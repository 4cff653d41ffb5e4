package game

import (
	"time"
)

type Phase string

const (
	PhasePrompting Phase = "prompting"
	PhaseAnswering Phase = "answering"
	PhaseVoting    Phase = "voting"
	PhaseDone      Phase = "done"
)

var phaseOrder = map[Phase]int{
	PhasePrompting: 0,
	PhaseAnswering: 1,
	PhaseVoting:    2,
	PhaseDone:      3,
}

// Before reports whether p comes strictly earlier than other in the round
// lifecycle. Unknown phases sort first.
func (p Phase) Before(other Phase) bool {
	return phaseOrder[p] < phaseOrder[other]
}

func (p Phase) Valid() bool {
	_, ok := phaseOrder[p]
	return ok
}

// A Model is one of the competing AIs. Two models are the same model if
// they have the same name.
type Model struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

func (m Model) Is(other Model) bool {
	return m.Name == other.Name
}

// Timestamps on the wire are unix milliseconds.
type Millis int64

func (m Millis) Time() time.Time {
	return time.UnixMilli(int64(m))
}

func ToMillis(t time.Time) Millis {
	return Millis(t.UnixMilli())
}

// TaskInfo is one model's unit of work. It is created without FinishedAt and
// is never changed again once FinishedAt is set.
type TaskInfo struct {
	Model      Model   `json:"model"`
	StartedAt  Millis  `json:"startedAt"`
	FinishedAt *Millis `json:"finishedAt,omitempty"`
	Result     *string `json:"result,omitempty"`
	Error      *string `json:"error,omitempty"`
}

// InProgress is true while the task has neither finished nor produced a
// result. A finished task with an empty result is not in progress.
func (t *TaskInfo) InProgress() bool {
	return t.FinishedAt == nil && t.Result == nil
}

func (t *TaskInfo) Failed() bool {
	return t.Error != nil
}

type VoteInfo struct {
	Voter      Model   `json:"voter"`
	StartedAt  Millis  `json:"startedAt"`
	FinishedAt *Millis `json:"finishedAt,omitempty"`
	VotedFor   *Model  `json:"votedFor,omitempty"`
	Error      *string `json:"error,omitempty"`
}

// CountsFor reports whether the vote has landed on the given contestant. A vote
// that errored never counts, even if it named someone.
func (v *VoteInfo) CountsFor(contestant Model) bool {
	return v.Error == nil && v.VotedFor != nil && v.VotedFor.Is(contestant)
}

type RoundState struct {
	Num         int         `json:"num"`
	Phase       Phase       `json:"phase"`
	Prompter    Model       `json:"prompter"`
	PromptTask  TaskInfo    `json:"promptTask"`
	Prompt      *string     `json:"prompt,omitempty"`
	Contestants [2]Model    `json:"contestants"`
	AnswerTasks [2]TaskInfo `json:"answerTasks"`
	Votes       []VoteInfo  `json:"votes"`

	ViewerVotesA       *int    `json:"viewerVotesA,omitempty"`
	ViewerVotesB       *int    `json:"viewerVotesB,omitempty"`
	ViewerVotingEndsAt *Millis `json:"viewerVotingEndsAt,omitempty"`
}

// HasPrompt is false until the prompter's text has arrived.
func (r *RoundState) HasPrompt() bool {
	return r.Prompt != nil && *r.Prompt != ""
}

// GameState is the snapshot pushed by the authoritative server. Clients only
// ever replace it wholesale.
type GameState struct {
	LastCompleted *RoundState    `json:"lastCompleted"`
	Active        *RoundState    `json:"active"`
	Scores        map[string]int `json:"scores"`
	ViewerScores  map[string]int `json:"viewerScores"`
	Done          bool           `json:"done"`
	IsPaused      bool           `json:"isPaused"`
	Generation    int            `json:"generation"`
}
