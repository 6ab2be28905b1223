package main

import (
	"context"
	"errors"
	"fmt"
	"strings"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/benjamonnguyen/breathe-go"
	"github.com/benjamonnguyen/breathe-go/cmd/breathe/models"
)

// playerState is a closed set; View switches over every variant.
type playerState interface {
	isPlayerState()
}

type (
	stateStarting  struct{}
	stateBreathing struct {
		session models.Session
	}
	stateMoodAfter struct {
		session models.Session
		cursor  int
	}
	stateReporting struct {
		session models.Session
	}
	stateReport struct {
		report breathe.CompletionReport
		stats  *breathe.Stats
		streak *breathe.StreakInfo
	}
	stateAbandoned struct {
		session models.Session
	}
	stateFailed struct {
		err error
	}
)

func (stateStarting) isPlayerState()  {}
func (stateBreathing) isPlayerState() {}
func (stateMoodAfter) isPlayerState() {}
func (stateReporting) isPlayerState() {}
func (stateReport) isPlayerState()    {}
func (stateAbandoned) isPlayerState() {}
func (stateFailed) isPlayerState()    {}

// moodChoices are offered after a session; the first entry skips the question.
var moodChoices = []breathe.Mood{"", breathe.MoodVeryLow, breathe.MoodLow, breathe.MoodNeutral, breathe.MoodGood, breathe.MoodGreat}

type (
	startedMsg struct {
		session models.Session
		err     error
	}
	sessionUpdateMsg struct {
		before, curr models.Session
	}
	reportedMsg struct {
		report breathe.CompletionReport
		err    error
	}
	abandonedMsg struct {
		session models.Session
		err     error
	}
	pausedMsg struct {
		session models.Session
		err     error
	}
)

type playerModel struct {
	ctx   context.Context
	mgr   SessionManager
	req   startSessionRequest
	state playerState
	flash string
}

func newPlayerModel(ctx context.Context, mgr SessionManager, req startSessionRequest) playerModel {
	return playerModel{ctx: ctx, mgr: mgr, req: req, state: stateStarting{}}
}

func (m playerModel) Init() tea.Cmd {
	return m.startCmd()
}

func (m playerModel) startCmd() tea.Cmd {
	return func() tea.Msg {
		s, err := m.mgr.StartSession(m.ctx, m.req)
		return startedMsg{session: s, err: err}
	}
}

func (m playerModel) reportCmd(mood breathe.Mood) tea.Cmd {
	return func() tea.Msg {
		report, err := m.mgr.StopSession(m.ctx, mood)
		return reportedMsg{report: report, err: err}
	}
}

func (m playerModel) abandonCmd() tea.Cmd {
	return func() tea.Msg {
		s, err := m.mgr.AbandonSession(m.ctx)
		return abandonedMsg{session: s, err: err}
	}
}

func (m playerModel) togglePauseCmd(s models.Session) tea.Cmd {
	return func() tea.Msg {
		var (
			next models.Session
			err  error
		)
		if s.Status() == breathe.SessionPaused {
			next, err = m.mgr.ResumeSession(m.ctx)
		} else {
			next, err = m.mgr.PauseSession(m.ctx)
		}
		return pausedMsg{session: next, err: err}
	}
}

// freezeCmd pauses the clock while the mood question is on screen.
func (m playerModel) freezeCmd(s models.Session) tea.Cmd {
	if s.Status() != breathe.SessionRunning {
		return nil
	}
	return func() tea.Msg {
		next, err := m.mgr.PauseSession(m.ctx)
		return pausedMsg{session: next, err: err}
	}
}

func (m playerModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case startedMsg:
		if msg.err != nil {
			m.state = stateFailed{err: msg.err}
			return m, nil
		}
		m.state = stateBreathing{session: msg.session}
		return m, nil
	case sessionUpdateMsg:
		st, ok := m.state.(stateBreathing)
		if !ok {
			return m, nil
		}
		if msg.curr.Status() == breathe.SessionFinishing {
			m.state = stateMoodAfter{session: msg.curr}
			return m, nil
		}
		st.session = msg.curr
		m.state = st
		return m, nil
	case pausedMsg:
		if msg.err != nil {
			m.flash = msg.err.Error()
			return m, nil
		}
		switch st := m.state.(type) {
		case stateBreathing:
			st.session = msg.session
			m.state = st
		case stateMoodAfter:
			st.session = msg.session
			m.state = st
		}
		return m, nil
	case reportedMsg:
		if msg.err != nil {
			m.state = stateFailed{err: msg.err}
			return m, nil
		}
		report := stateReport{report: msg.report}
		if stats, streak, ok := m.mgr.LatestStats(); ok {
			report.stats, report.streak = &stats, &streak
		}
		m.state = report
		return m, nil
	case abandonedMsg:
		if errors.Is(msg.err, breathe.ErrSessionFinishing) {
			// the target was reached before the quit arrived
			m.state = stateReporting{}
			return m, m.reportCmd("")
		}
		if msg.err != nil {
			m.state = stateFailed{err: msg.err}
			return m, nil
		}
		m.state = stateAbandoned{session: msg.session}
		return m, nil
	case tea.KeyMsg:
		return m.handleKey(msg)
	}
	return m, nil
}

func (m playerModel) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	key := msg.String()
	switch st := m.state.(type) {
	case stateStarting, stateReporting:
		if key == "ctrl+c" {
			return m, tea.Quit
		}
	case stateBreathing:
		switch key {
		case " ", "p":
			return m, m.togglePauseCmd(st.session)
		case "s", "enter":
			m.state = stateMoodAfter{session: st.session}
			return m, m.freezeCmd(st.session)
		case "q", "esc", "ctrl+c":
			return m, m.abandonCmd()
		}
	case stateMoodAfter:
		switch key {
		case "up", "k":
			st.cursor = max(0, st.cursor-1)
			m.state = st
		case "down", "j":
			st.cursor = min(len(moodChoices)-1, st.cursor+1)
			m.state = st
		case "enter":
			m.state = stateReporting{session: st.session}
			return m, m.reportCmd(moodChoices[st.cursor])
		case "esc":
			m.state = stateReporting{session: st.session}
			return m, m.reportCmd("")
		case "ctrl+c":
			if st.session.Status() == breathe.SessionFinishing {
				m.state = stateReporting{session: st.session}
				return m, m.reportCmd("")
			}
			return m, m.abandonCmd()
		}
	case stateReport, stateAbandoned, stateFailed:
		return m, tea.Quit
	}
	return m, nil
}

func (m playerModel) View() string {
	var b strings.Builder
	switch st := m.state.(type) {
	case stateStarting:
		b.WriteString(Muted.Render("Starting session…"))
	case stateBreathing:
		b.WriteString(breathingView(st.session))
		b.WriteString("\n\n" + Muted.Render("[space] pause/resume  [s] finish  [q] quit"))
	case stateMoodAfter:
		b.WriteString(Heading(IconBreath, "How do you feel now?") + "\n\n")
		for i, mood := range moodChoices {
			label := "skip"
			if mood != "" {
				label = strings.ReplaceAll(string(mood), "_", " ")
			}
			cursor := "  "
			if i == st.cursor {
				cursor = Key.Render("> ")
			}
			b.WriteString(cursor + label + "\n")
		}
		b.WriteString("\n" + Muted.Render("[enter] report  [esc] skip"))
	case stateReporting:
		b.WriteString(Muted.Render("Saving session…"))
	case stateReport:
		b.WriteString(reportView(st))
		b.WriteString("\n\n" + Muted.Render("press any key to exit"))
	case stateAbandoned:
		b.WriteString(Warn.Render("Session ended early") + " " + Muted.Render("(not recorded)") + "\n")
		b.WriteString(LabelValue("Practiced", breathe.DurationText(st.session.DurationSeconds())))
	case stateFailed:
		b.WriteString(Bad.Render(IconError + " " + st.err.Error()))
	default:
		panic(fmt.Sprintf("unhandled player state %T", st))
	}
	if m.flash != "" {
		b.WriteString("\n" + Bad.Render(m.flash))
	}
	return Panel.Render(b.String()) + "\n"
}

func breathingView(s models.Session) string {
	phase, _ := s.CurrentPhase()
	title := fmt.Sprintf("%s %s", Swatch(s.Technique.Color), Title.Render(s.Technique.Name))
	lines := []string{
		title + "  " + Muted.Render(s.Technique.Pattern()),
		"",
		H2.Render(phase.Name.Label()) + "  " + clock(s.PhaseRemaining()),
		progressBar(s.Elapsed(), s.Settings.Target) + "  " + clock(s.Elapsed()) + " / " + clock(s.Settings.Target),
		LabelValue("Cycles", s.Cycles()),
	}
	if s.Status() == breathe.SessionPaused {
		lines = append(lines, Warn.Render(IconPause+" paused"))
	}
	return strings.Join(lines, "\n")
}

func reportView(st stateReport) string {
	r := st.report
	var lines []string
	switch r.Headline {
	case breathe.HeadlineCompleted:
		lines = append(lines, Good.Render(IconDone+" Session complete"))
	case breathe.HeadlinePartial:
		lines = append(lines, Warn.Render(IconPartial+" Nice effort"))
	}
	lines = append(lines,
		LabelValue("Duration", r.DurationText),
		LabelValue("Cycles", r.Cycles),
		LabelValue("Completed", fmt.Sprintf("%d%%", r.Percentage)),
		LabelValue("Streak", fmt.Sprintf("%s %d", IconStreak, r.Streak)),
	)
	if st.stats != nil {
		lines = append(lines, Muted.Render(fmt.Sprintf("%d sessions · %d min total", st.stats.TotalSessions, st.stats.TotalMinutes)))
	}
	if st.streak != nil && st.streak.LongestStreak > 0 {
		lines = append(lines, Muted.Render(fmt.Sprintf("longest streak %d days", st.streak.LongestStreak)))
	}
	return strings.Join(lines, "\n")
}
