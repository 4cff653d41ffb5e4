package render

import (
	"image"
	"image/color"
	"testing"
	"time"

	"github.com/quipslop/quipcast/pkg/game"

	opt "github.com/repeale/fp-go/option"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	gpt    = game.Model{ID: "openai/gpt-5", Name: "GPT-5"}
	claude = game.Model{ID: "anthropic/claude-sonnet-4", Name: "Claude Sonnet 4"}
	kimi   = game.Model{ID: "moonshot/kimi-k2", Name: "Kimi K2"}
	grok   = game.Model{ID: "x-ai/grok-4", Name: "Grok 4"}
)

func text(s string) *string {
	return &s
}

func number(n int) *int {
	return &n
}

func vote(voter game.Model, target game.Model) game.VoteInfo {
	return game.VoteInfo{Voter: voter, StartedAt: 1, VotedFor: &target}
}

func newRound(num int, phase game.Phase) *game.RoundState {
	round := &game.RoundState{
		Num:         num,
		Phase:       phase,
		Prompter:    kimi,
		Contestants: [2]game.Model{gpt, claude},
		AnswerTasks: [2]game.TaskInfo{{Model: gpt}, {Model: claude}},
	}
	if phase != game.PhasePrompting {
		round.Prompt = text("The worst thing to say at a job interview")
	}
	return round
}

func TestSelectSceneWaiting(t *testing.T) {
	assert.Equal(t, SceneWaiting, SelectScene(nil).Kind)
	assert.Equal(t, SceneWaiting, SelectScene(&game.GameState{}).Kind)
	assert.Equal(t, SceneWaiting, SelectScene(&game.GameState{Done: true}).Kind)
}

func TestSelectSceneKeepsCompletedRoundUntilPrompt(t *testing.T) {
	completed := newRound(1, game.PhaseDone)
	active := newRound(2, game.PhasePrompting)

	scene := SelectScene(&game.GameState{LastCompleted: completed, Active: active})
	require.Equal(t, SceneRound, scene.Kind)
	assert.Same(t, completed, scene.Round)

	// An empty prompt is still no prompt
	active.Prompt = text("")
	scene = SelectScene(&game.GameState{LastCompleted: completed, Active: active})
	assert.Same(t, completed, scene.Round)

	active.Prompt = text("Name a bad pet")
	scene = SelectScene(&game.GameState{LastCompleted: completed, Active: active})
	assert.Same(t, active, scene.Round)
}

func TestSelectSceneFallbacks(t *testing.T) {
	active := newRound(1, game.PhasePrompting)
	scene := SelectScene(&game.GameState{Active: active})
	assert.Same(t, active, scene.Round)

	completed := newRound(3, game.PhaseDone)
	scene = SelectScene(&game.GameState{LastCompleted: completed})
	assert.Same(t, completed, scene.Round)

	scene = SelectScene(&game.GameState{LastCompleted: completed, Done: true})
	assert.Equal(t, SceneGameOver, scene.Kind)
}

func TestBuildRoundViewWinner(t *testing.T) {
	round := newRound(4, game.PhaseDone)
	round.Votes = []game.VoteInfo{vote(kimi, gpt), vote(grok, gpt), vote(kimi, claude)}
	round.AnswerTasks[0].Result = text("I am a robot")
	round.AnswerTasks[1].Result = text("")
	round.AnswerTasks[1].FinishedAt = new(game.Millis)

	view := BuildRoundView(round, 10, time.Unix(0, 0), "")
	assert.True(t, view.Contestants[0].Winner)
	assert.False(t, view.Contestants[1].Winner)
	assert.Equal(t, 2, view.Contestants[0].Votes)
	assert.Equal(t, 1, view.Contestants[1].Votes)
	assert.Equal(t, []string{"Kimi K2", "Grok 4"}, view.Contestants[0].Judges)
	assert.Equal(t, []string{"Kimi K2"}, view.Contestants[1].Judges)
	assert.InDelta(t, 2.0/3.0, view.Contestants[0].Share, 1e-9)
	assert.Equal(t, AnswerReady, view.Contestants[0].Status)
	assert.Equal(t, AnswerEmpty, view.Contestants[1].Status)
	assert.False(t, view.Contestants[0].ShowViewers)
	assert.True(t, view.ShowVotes)

	round.Votes = round.Votes[:2]
	round.Votes = append(round.Votes, vote(grok, claude), vote(kimi, claude))
	view = BuildRoundView(round, 10, time.Unix(0, 0), "")
	assert.False(t, view.Contestants[0].Winner)
	assert.False(t, view.Contestants[1].Winner)

	round.Phase = game.PhaseVoting
	round.Votes = round.Votes[:3]
	view = BuildRoundView(round, 10, time.Unix(0, 0), "")
	assert.False(t, view.Contestants[0].Winner)
}

func TestBuildRoundViewStatuses(t *testing.T) {
	round := newRound(1, game.PhaseAnswering)
	round.AnswerTasks[1].Error = text("rate limited")

	view := BuildRoundView(round, 0, time.Unix(0, 0), "")
	assert.Equal(t, AnswerPending, view.Contestants[0].Status)
	assert.Equal(t, AnswerFailed, view.Contestants[1].Status)
	assert.False(t, view.ShowVotes)
	assert.False(t, view.ShowCountdown)
}

func TestBuildRoundViewViewersAndCountdown(t *testing.T) {
	now := time.UnixMilli(1_000_000)
	ends := game.ToMillis(now.Add(12 * time.Second))

	round := newRound(2, game.PhaseVoting)
	round.ViewerVotesA = number(3)
	round.ViewerVotesB = number(1)
	round.ViewerVotingEndsAt = &ends

	view := BuildRoundView(round, 0, now, "https://example.com/logos/")
	require.True(t, view.ShowCountdown)
	assert.Equal(t, 12*time.Second, view.Countdown)
	assert.True(t, view.Contestants[0].ShowViewers)
	assert.InDelta(t, 0.75, view.Contestants[0].ViewerShare, 1e-9)
	assert.Equal(t, "https://example.com/logos/openai.png", view.Contestants[0].LogoURL)

	view = BuildRoundView(round, 0, now.Add(time.Minute), "")
	assert.Equal(t, time.Duration(0), view.Countdown)

	round.ViewerVotesA = number(0)
	round.ViewerVotesB = nil
	view = BuildRoundView(round, 0, now, "")
	assert.False(t, view.Contestants[0].ShowViewers)
	assert.False(t, view.Contestants[1].ShowViewers)
}

func TestBuildGameOverView(t *testing.T) {
	view := BuildGameOverView(&game.GameState{
		Done:         true,
		Scores:       map[string]int{"A": 3, "B": 5, "C": 5},
		ViewerScores: map[string]int{},
	})

	require.True(t, view.HasLeader)
	assert.Equal(t, game.Standing{Name: "B", Score: 5}, view.Leader)
	assert.Len(t, view.Standings, 3)
	assert.False(t, view.HasViewers)
}

func TestAccentFallback(t *testing.T) {
	assert.Equal(t, DefaultAccent, Accent("Some Unreleased Model"))
	assert.NotEqual(t, DefaultAccent, Accent(gpt.Name))
	assert.Equal(t, "", LogoURL("https://example.com", "Some Unreleased Model"))
	assert.Equal(t, "", LogoURL("", gpt.Name))
}

type fakeImages struct {
	ready bool
	calls map[string]int
}

func (f *fakeImages) Get(url string) opt.Option[image.Image] {
	f.calls[url]++
	if !f.ready {
		return opt.None[image.Image]()
	}

	logo := image.NewRGBA(image.Rect(0, 0, 32, 32))
	fillRect(logo, logo.Bounds(), color.RGBA{R: 0xff, A: 0xff})
	return opt.Some[image.Image](logo)
}

func newRenderer(t *testing.T, images ImageSource) *Renderer {
	renderer, err := NewRenderer(480, 270, images, "https://example.com/logos")
	require.NoError(t, err)
	t.Cleanup(renderer.Close)
	return renderer
}

func roundView() View {
	round := newRound(5, game.PhaseVoting)
	round.AnswerTasks[0].Result = text("A firm handshake and a firmer lie")
	round.AnswerTasks[1].Result = text("Do you validate parking?")
	round.Votes = []game.VoteInfo{vote(kimi, gpt)}

	return View{
		State: &game.GameState{
			Active: round,
			Scores: map[string]int{gpt.Name: 2, claude.Name: 1},
		},
		TotalRounds: 10,
		ViewerCount: 42,
		Connected:   true,
	}
}

func TestRenderDeterministic(t *testing.T) {
	renderer := newRenderer(t, nil)
	now := time.UnixMilli(1_700_000_000_000)

	views := []View{{}, roundView(), {State: &game.GameState{Done: true, Scores: map[string]int{"A": 1}}}}
	for _, view := range views {
		first := renderer.Render(view, now)
		second := renderer.Render(view, now)
		require.Equal(t, image.Rect(0, 0, 480, 270), first.Bounds())
		assert.Equal(t, first.Pix, second.Pix)
	}
}

func TestRenderReadsClockForCountdown(t *testing.T) {
	renderer := newRenderer(t, nil)
	now := time.UnixMilli(1_700_000_000_000)

	view := roundView()
	ends := game.ToMillis(now.Add(30 * time.Second))
	view.State.Active.ViewerVotingEndsAt = &ends

	first := renderer.Render(view, now)
	later := renderer.Render(view, now.Add(10*time.Second))
	assert.NotEqual(t, first.Pix, later.Pix)
}

func TestRenderScenesDiffer(t *testing.T) {
	renderer := newRenderer(t, nil)
	now := time.Unix(0, 0)

	waiting := renderer.Render(View{}, now)
	round := renderer.Render(roundView(), now)
	assert.NotEqual(t, waiting.Pix, round.Pix)

	paused := roundView()
	paused.State.IsPaused = true
	assert.NotEqual(t, round.Pix, renderer.Render(paused, now).Pix)
}

func TestRenderNamesJudges(t *testing.T) {
	renderer := newRenderer(t, nil)
	now := time.Unix(0, 0)

	kimiVoted := renderer.Render(roundView(), now)

	// Same tally, different judge
	view := roundView()
	view.State.Active.Votes = []game.VoteInfo{vote(grok, gpt)}
	assert.NotEqual(t, kimiVoted.Pix, renderer.Render(view, now).Pix)
}

func TestRenderLogoFallback(t *testing.T) {
	images := &fakeImages{calls: make(map[string]int)}
	renderer := newRenderer(t, images)
	now := time.Unix(0, 0)
	url := "https://example.com/logos/openai.png"

	textOnly := renderer.Render(roundView(), now)
	require.Equal(t, 1, images.calls[url])

	images.ready = true
	withLogo := renderer.Render(roundView(), now)
	assert.NotEqual(t, textOnly.Pix, withLogo.Pix)

	again := renderer.Render(roundView(), now)
	assert.Equal(t, withLogo.Pix, again.Pix)
	assert.Equal(t, 2, images.calls[url])
}

func TestNewRendererRejectsEmptyFrame(t *testing.T) {
	_, err := NewRenderer(0, 720, nil, "")
	require.Error(t, err)
}
