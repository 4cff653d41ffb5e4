package render

import (
	"image/color"
	"time"

	"github.com/quipslop/quipcast/pkg/game"

	fp "github.com/repeale/fp-go"
)

// View is everything a frame is drawn from besides the clock.
type View struct {
	State       *game.GameState
	TotalRounds int
	ViewerCount int
	Connected   bool
	SinceUpdate time.Duration
}

type SceneKind uint8

const (
	SceneWaiting SceneKind = iota
	SceneGameOver
	SceneRound
)

type Scene struct {
	Kind  SceneKind
	Round *game.RoundState
}

// SelectScene decides what a frame shows. A round that is still waiting on
// its prompt has nothing to look at, so the previous round stays up until the
// prompt arrives.
func SelectScene(state *game.GameState) Scene {
	if state == nil || (state.Active == nil && state.LastCompleted == nil) {
		return Scene{Kind: SceneWaiting}
	}

	if state.Done {
		return Scene{Kind: SceneGameOver}
	}

	active := state.Active
	if active != nil &&
		active.Phase == game.PhasePrompting &&
		!active.HasPrompt() &&
		state.LastCompleted != nil {
		return Scene{Kind: SceneRound, Round: state.LastCompleted}
	}

	if active != nil {
		return Scene{Kind: SceneRound, Round: active}
	}

	return Scene{Kind: SceneRound, Round: state.LastCompleted}
}

type AnswerStatus uint8

const (
	AnswerPending AnswerStatus = iota
	AnswerFailed
	AnswerEmpty
	AnswerReady
)

type ContestantView struct {
	Model   game.Model
	Accent  color.RGBA
	LogoURL string

	Status AnswerStatus
	Answer string

	Votes int
	Share float64
	// Names of the judges whose votes count for this contestant
	Judges []string

	// Hidden when no viewer has voted
	ShowViewers bool
	ViewerVotes int
	ViewerShare float64

	Winner bool
}

type RoundView struct {
	Num         int
	TotalRounds int
	Phase       game.Phase

	Prompter       game.Model
	PrompterAccent color.RGBA
	Prompt         string
	HasPrompt      bool

	Contestants [2]ContestantView
	ShowVotes   bool

	ShowCountdown bool
	Countdown     time.Duration
}

func judgeNames(votes []game.VoteInfo) []string {
	return fp.Map(func(v game.VoteInfo) string {
		return v.Voter.Name
	})(votes)
}

func answerStatus(task *game.TaskInfo) (AnswerStatus, string) {
	switch {
	case task.Failed():
		return AnswerFailed, *task.Error
	case task.InProgress():
		return AnswerPending, ""
	case task.Result == nil || *task.Result == "":
		return AnswerEmpty, ""
	}
	return AnswerReady, *task.Result
}

// BuildRoundView derives everything the round layout needs from the round.
// now is only used for the voting countdown.
func BuildRoundView(round *game.RoundState, totalRounds int, now time.Time, logoBase string) RoundView {
	view := RoundView{
		Num:            round.Num,
		TotalRounds:    totalRounds,
		Phase:          round.Phase,
		Prompter:       round.Prompter,
		PrompterAccent: Accent(round.Prompter.Name),
		HasPrompt:      round.HasPrompt(),
		ShowVotes:      !round.Phase.Before(game.PhaseVoting),
	}

	if view.HasPrompt {
		view.Prompt = *round.Prompt
	}

	votesA, votesB := round.Tally()
	shareA, shareB := round.VoteShares()
	viewerA, viewerB, showViewers := round.ViewerShares()
	viewerVotesA, viewerVotesB := round.ViewerVotes()
	winner, hasWinner := round.Winner()

	votes := [2]int{votesA, votesB}
	shares := [2]float64{shareA, shareB}
	viewerShares := [2]float64{viewerA, viewerB}
	viewerVotes := [2]int{viewerVotesA, viewerVotesB}

	for i, contestant := range round.Contestants {
		status, answer := answerStatus(&round.AnswerTasks[i])
		view.Contestants[i] = ContestantView{
			Model:       contestant,
			Accent:      Accent(contestant.Name),
			LogoURL:     LogoURL(logoBase, contestant.Name),
			Status:      status,
			Answer:      answer,
			Votes:       votes[i],
			Share:       shares[i],
			Judges:      judgeNames(round.VotesFor(i)),
			ShowViewers: showViewers,
			ViewerVotes: viewerVotes[i],
			ViewerShare: viewerShares[i],
			Winner:      hasWinner && winner == i,
		}
	}

	if round.Phase == game.PhaseVoting && round.ViewerVotingEndsAt != nil {
		remaining := round.ViewerVotingEndsAt.Time().Sub(now)
		if remaining < 0 {
			remaining = 0
		}
		view.ShowCountdown = true
		view.Countdown = remaining
	}

	return view
}

type GameOverView struct {
	Leader       game.Standing
	HasLeader    bool
	Standings    []game.Standing
	ViewerLeader game.Standing
	HasViewers   bool
}

func BuildGameOverView(state *game.GameState) GameOverView {
	view := GameOverView{
		Standings: game.Standings(state.Scores),
	}

	if len(view.Standings) > 0 {
		view.Leader = view.Standings[0]
		view.HasLeader = true
	}

	view.ViewerLeader, view.HasViewers = game.Leader(state.ViewerScores)
	return view
}
