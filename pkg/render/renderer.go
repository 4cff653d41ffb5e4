package render

import (
	"fmt"
	"image"
	"strings"
	"time"

	"github.com/quipslop/quipcast/pkg/game"

	opt "github.com/repeale/fp-go/option"
)

const (
	// Layout is expressed on a 1920x1080 canvas and scaled to the frame.
	BASE_WIDTH  = 1920
	BASE_HEIGHT = 1080

	MARGIN          = 80
	PROMPT_LINES    = 3
	ANSWER_LINES    = 5
	STANDINGS_SHOWN = 8
	LOGO_SIZE       = 64
	STALE_AFTER     = 5 * time.Second
	WAITING_TEXT    = "waiting for game state…"
	RECONNECTING    = "reconnecting…"
	TITLE           = "QUIPSLOP"
)

// ImageSource hands out decoded images without blocking. A None result means
// the image is not available yet or will never be.
type ImageSource interface {
	Get(url string) opt.Option[image.Image]
}

type noImages struct{}

func (noImages) Get(url string) opt.Option[image.Image] {
	return opt.None[image.Image]()
}

type Renderer struct {
	fonts    *Fonts
	images   ImageSource
	logoBase string

	width  int
	height int
	scale  float64

	// Logos scaled to the frame, keyed by URL
	logos map[string]*image.RGBA
}

// NewRenderer makes a renderer for frames of the given size. images may be
// nil, in which case every model is drawn without a logo.
func NewRenderer(width, height int, images ImageSource, logoBase string) (*Renderer, error) {
	if width <= 0 || height <= 0 {
		return nil, fmt.Errorf("invalid frame size %dx%d", width, height)
	}

	scale := float64(width) / BASE_WIDTH
	fonts, err := LoadFonts(scale)
	if err != nil {
		return nil, err
	}

	if images == nil {
		images = noImages{}
	}

	return &Renderer{
		fonts:    fonts,
		images:   images,
		logoBase: logoBase,
		width:    width,
		height:   height,
		scale:    scale,
		logos:    make(map[string]*image.RGBA),
	}, nil
}

func (r *Renderer) Close() {
	r.fonts.Close()
}

func (r *Renderer) Bounds() image.Rectangle {
	return image.Rect(0, 0, r.width, r.height)
}

// px converts a length on the base canvas to frame pixels.
func (r *Renderer) px(value int) int {
	return int(float64(value) * r.scale)
}

func (r *Renderer) rect(x0, y0, x1, y1 int) image.Rectangle {
	return image.Rect(r.px(x0), r.px(y0), r.px(x1), r.px(y1))
}

// Render draws one frame. The output depends only on view, now and which
// logos have finished loading.
func (r *Renderer) Render(view View, now time.Time) *image.RGBA {
	frame := image.NewRGBA(r.Bounds())
	r.RenderInto(frame, view, now)
	return frame
}

func (r *Renderer) RenderInto(frame *image.RGBA, view View, now time.Time) {
	fillRect(frame, frame.Bounds(), Background)

	scene := SelectScene(view.State)
	switch scene.Kind {
	case SceneWaiting:
		r.drawWaiting(frame)
	case SceneGameOver:
		r.drawGameOver(frame, BuildGameOverView(view.State))
	case SceneRound:
		round := BuildRoundView(scene.Round, view.TotalRounds, now, r.logoBase)
		r.drawRound(frame, round)
		r.drawStandings(frame, view.State.Scores)
	}

	r.drawFooter(frame, view)
}

func (r *Renderer) drawWaiting(frame *image.RGBA) {
	center := r.px(BASE_WIDTH / 2)
	drawText(frame, r.fonts.Heading, center, r.px(500), TITLE, Highlight, AlignCenter)
	drawText(frame, r.fonts.Prompt, center, r.px(600), WAITING_TEXT, Muted, AlignCenter)
}

func (r *Renderer) drawGameOver(frame *image.RGBA, view GameOverView) {
	center := r.px(BASE_WIDTH / 2)
	drawText(frame, r.fonts.Heading, center, r.px(200), "GAME OVER", Highlight, AlignCenter)

	if !view.HasLeader {
		drawText(frame, r.fonts.Prompt, center, r.px(320), "no scores recorded", Muted, AlignCenter)
		return
	}

	leader := fmt.Sprintf("%s wins with %d", view.Leader.Name, view.Leader.Score)
	drawText(frame, r.fonts.Prompt, center, r.px(320), leader, Accent(view.Leader.Name), AlignCenter)

	y := 420
	for i, standing := range view.Standings {
		if i >= STANDINGS_SHOWN {
			break
		}

		fillRect(frame, r.rect(560, y-40, 1360, y+16), Panel)
		fillRect(frame, r.rect(560, y-40, 568, y+16), Accent(standing.Name))
		drawText(frame, r.fonts.Name, r.px(600), r.px(y), fmt.Sprintf("%d. %s", i+1, standing.Name), Foreground, AlignLeft)
		drawText(frame, r.fonts.Name, r.px(1320), r.px(y), fmt.Sprint(standing.Score), Foreground, AlignRight)
		y += 68
	}

	if view.HasViewers {
		favorite := fmt.Sprintf("viewers' favorite: %s (%d)", view.ViewerLeader.Name, view.ViewerLeader.Score)
		drawText(frame, r.fonts.Label, center, r.px(y+30), favorite, Muted, AlignCenter)
	}
}

func phaseLabel(phase game.Phase) string {
	return strings.ToUpper(string(phase))
}

func formatCountdown(remaining time.Duration) string {
	seconds := int((remaining + time.Second - 1) / time.Second)
	return fmt.Sprintf("%d:%02d", seconds/60, seconds%60)
}

func (r *Renderer) drawRound(frame *image.RGBA, view RoundView) {
	right := BASE_WIDTH - MARGIN

	// Header
	drawText(frame, r.fonts.Title, r.px(MARGIN), r.px(96), TITLE, Highlight, AlignLeft)
	roundText := fmt.Sprintf("ROUND %d", view.Num)
	if view.TotalRounds > 0 {
		roundText = fmt.Sprintf("ROUND %d / %d", view.Num, view.TotalRounds)
	}
	drawText(frame, r.fonts.Label, r.px(right), r.px(78), roundText, Foreground, AlignRight)
	drawText(frame, r.fonts.Small, r.px(right), r.px(108), phaseLabel(view.Phase), Muted, AlignRight)

	// Prompt
	promptWidth := r.px(BASE_WIDTH - 2*MARGIN)
	if view.HasPrompt {
		asks := fmt.Sprintf("%s asks", view.Prompter.Name)
		drawText(frame, r.fonts.Label, r.px(MARGIN), r.px(180), asks, view.PrompterAccent, AlignLeft)
		lines := Wrap(view.Prompt, promptWidth, PROMPT_LINES, FaceMeasure(r.fonts.Prompt))
		drawLines(frame, r.fonts.Prompt, r.px(MARGIN), r.px(250), r.px(66), lines, Foreground)
	} else {
		writing := fmt.Sprintf("%s is writing a prompt…", view.Prompter.Name)
		lines := Wrap(writing, promptWidth, 1, FaceMeasure(r.fonts.Prompt))
		drawLines(frame, r.fonts.Prompt, r.px(MARGIN), r.px(250), r.px(66), lines, Muted)
	}

	if view.ShowCountdown {
		text := "viewer voting closes in " + formatCountdown(view.Countdown)
		drawText(frame, r.fonts.Label, r.px(BASE_WIDTH/2), r.px(450), text, Highlight, AlignCenter)
	}

	gap := 40
	cardWidth := (BASE_WIDTH - 2*MARGIN - gap) / 2
	for i, contestant := range view.Contestants {
		x := MARGIN + i*(cardWidth+gap)
		r.drawContestant(frame, x, 480, cardWidth, 420, contestant, view.ShowVotes)
	}
}

func (r *Renderer) logo(url string) (*image.RGBA, bool) {
	if url == "" {
		return nil, false
	}

	if scaled, ok := r.logos[url]; ok {
		return scaled, true
	}

	loaded := r.images.Get(url)
	if opt.IsNone(loaded) {
		return nil, false
	}

	scaled := scaleImage(loaded.Value, r.px(LOGO_SIZE))
	r.logos[url] = scaled
	return scaled, true
}

func (r *Renderer) drawContestant(frame *image.RGBA, x, y, width, height int, view ContestantView, showVotes bool) {
	fillRect(frame, r.rect(x, y, x+width, y+height), Panel)
	fillRect(frame, r.rect(x, y, x+width, y+8), view.Accent)

	inner := x + 30
	innerWidth := width - 60
	nameX := inner
	if logo, ok := r.logo(view.LogoURL); ok {
		drawImage(frame, image.Pt(r.px(inner), r.px(y+32)), logo)
		nameX += LOGO_SIZE + 20
	}
	drawText(frame, r.fonts.Name, r.px(nameX), r.px(y+76), view.Model.Name, view.Accent, AlignLeft)

	if view.Winner {
		badge := r.rect(x+width-170, y+30, x+width-30, y+80)
		fillRect(frame, badge, Highlight)
		drawText(frame, r.fonts.Label, (badge.Min.X+badge.Max.X)/2, r.px(y+64), "WINNER", Background, AlignCenter)
	}

	answerY := r.px(y + 150)
	switch view.Status {
	case AnswerPending:
		drawText(frame, r.fonts.Answer, r.px(inner), answerY, "thinking…", Muted, AlignLeft)
	case AnswerFailed:
		drawText(frame, r.fonts.Answer, r.px(inner), answerY, "failed to answer", Danger, AlignLeft)
	case AnswerEmpty:
		drawText(frame, r.fonts.Answer, r.px(inner), answerY, "no answer", Muted, AlignLeft)
	case AnswerReady:
		lines := Wrap(view.Answer, r.px(innerWidth), ANSWER_LINES, FaceMeasure(r.fonts.Answer))
		drawLines(frame, r.fonts.Answer, r.px(inner), answerY, r.px(44), lines, Foreground)
	}

	if !showVotes {
		return
	}

	bottom := y + height
	judges := fmt.Sprintf("JUDGES  %d  ·  %d%%", view.Votes, int(view.Share*100+0.5))
	labelWidth := drawText(frame, r.fonts.Small, r.px(inner), r.px(bottom-104), judges, Muted, AlignLeft)
	r.drawJudges(frame, inner+innerWidth, bottom-104, r.px(innerWidth)-labelWidth-r.px(24), view)
	drawBar(frame, r.rect(inner, bottom-94, inner+innerWidth, bottom-76), view.Share, view.Accent)

	if view.ShowViewers {
		viewers := fmt.Sprintf("VIEWERS  %d  ·  %d%%", view.ViewerVotes, int(view.ViewerShare*100+0.5))
		drawText(frame, r.fonts.Small, r.px(inner), r.px(bottom-46), viewers, Muted, AlignLeft)
		drawBar(frame, r.rect(inner, bottom-36, inner+innerWidth, bottom-18), view.ViewerShare, dim(view.Accent, 0.35))
	}
}

// drawJudges lists who voted for the contestant, right aligned at x and cut
// down to a single line of at most room pixels.
func (r *Renderer) drawJudges(frame *image.RGBA, x, y int, room int, view ContestantView) {
	if len(view.Judges) == 0 || room <= 0 {
		return
	}

	lines := Wrap(strings.Join(view.Judges, ", "), room, 1, FaceMeasure(r.fonts.Small))
	if len(lines) == 0 {
		return
	}
	drawText(frame, r.fonts.Small, r.px(x), r.px(y), lines[0], Foreground, AlignRight)
}

func (r *Renderer) drawStandings(frame *image.RGBA, scores map[string]int) {
	standings := game.Standings(scores)
	if len(standings) == 0 {
		return
	}

	parts := make([]string, 0, len(standings))
	for _, standing := range standings {
		parts = append(parts, fmt.Sprintf("%s %d", standing.Name, standing.Score))
	}

	width := r.px(BASE_WIDTH - 2*MARGIN)
	lines := Wrap(strings.Join(parts, "   "), width, 1, FaceMeasure(r.fonts.Small))
	drawLines(frame, r.fonts.Small, r.px(MARGIN), r.px(960), 0, lines, Muted)
}

func connectionText(view View) (string, bool) {
	seconds := int(view.SinceUpdate / time.Second)
	if !view.Connected {
		if view.SinceUpdate > 0 {
			return fmt.Sprintf("%s last update %ds ago", RECONNECTING, seconds), false
		}
		return RECONNECTING, false
	}

	if view.SinceUpdate >= STALE_AFTER {
		return fmt.Sprintf("last update %ds ago", seconds), false
	}
	return "● LIVE", true
}

func (r *Renderer) drawFooter(frame *image.RGBA, view View) {
	y := BASE_HEIGHT - 40
	fillRect(frame, r.rect(0, y-44, BASE_WIDTH, BASE_HEIGHT), Panel)

	watching := fmt.Sprintf("%d watching", view.ViewerCount)
	drawText(frame, r.fonts.Small, r.px(MARGIN), r.px(y), watching, Foreground, AlignLeft)

	text, healthy := connectionText(view)
	c := Danger
	if healthy {
		c = Live
	}
	drawText(frame, r.fonts.Small, r.px(BASE_WIDTH-MARGIN), r.px(y), text, c, AlignRight)

	if view.State != nil && view.State.IsPaused {
		drawText(frame, r.fonts.Label, r.px(BASE_WIDTH/2), r.px(y), "PAUSED", Highlight, AlignCenter)
	}
}
