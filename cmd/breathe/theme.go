package main

import (
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"

	"github.com/benjamonnguyen/breathe-go"
)

const (
	IconBreath  = "🫁"
	IconStreak  = "🔥"
	IconDone    = "✅"
	IconPartial = "🌗"
	IconStar    = "★"
	IconPause   = "⏸"
	IconInfo    = "ℹ️"
	IconError   = "✖"

	progressFilledChar = "⣶"
	progressEmptyChar  = "⡀"
	progressLength     = 20
)

var (
	cPrimary = lipgloss.Color("111") // sky
	cAccent  = lipgloss.Color("141") // lavender
	cGood    = lipgloss.Color("42")  // green
	cWarn    = lipgloss.Color("214") // orange
	cBad     = lipgloss.Color("196") // red
	cMuted   = lipgloss.Color("244") // gray
)

var (
	Title = lipgloss.NewStyle().Bold(true).Foreground(cAccent)
	H2    = lipgloss.NewStyle().Bold(true).Foreground(cPrimary)
	Muted = lipgloss.NewStyle().Foreground(cMuted)
	Key   = lipgloss.NewStyle().Bold(true).Foreground(cPrimary)
	Good  = lipgloss.NewStyle().Bold(true).Foreground(cGood)
	Warn  = lipgloss.NewStyle().Bold(true).Foreground(cWarn)
	Bad   = lipgloss.NewStyle().Bold(true).Foreground(cBad)

	Panel = lipgloss.NewStyle().BorderStyle(lipgloss.RoundedBorder()).BorderForeground(cMuted).Padding(0, 1)
)

func Heading(icon, title string) string {
	icon = strings.TrimSpace(icon)
	if icon != "" {
		icon += " "
	}
	return Title.Render(icon + title)
}

func LabelValue(label string, value any) string {
	return fmt.Sprintf("%s %v", Key.Render(label+":"), value)
}

// Swatch renders a block in the technique's color. Invalid colors fall back
// to the terminal default.
func Swatch(hex string) string {
	if !strings.HasPrefix(hex, "#") {
		return "■"
	}
	return lipgloss.NewStyle().Foreground(lipgloss.Color(hex)).Render("■")
}

func StatusText(s breathe.SessionStatus) string {
	switch s {
	case breathe.SessionCompleted:
		return Good.Render(s.String())
	case breathe.SessionRunning, breathe.SessionFinishing:
		return H2.Render(s.String())
	case breathe.SessionPaused, breathe.SessionPending:
		return Warn.Render(s.String())
	case breathe.SessionAbandoned:
		return Bad.Render(s.String())
	default:
		return Muted.Render(s.String())
	}
}

// progressBar fills as elapsed approaches total.
func progressBar(elapsed, total time.Duration) string {
	if total <= 0 || elapsed <= 0 {
		return strings.Repeat(progressEmptyChar, progressLength)
	}
	ratio := min(1, float64(elapsed)/float64(total))
	filled := min(int(math.Round(ratio*progressLength*10)/10), progressLength)
	return strings.Repeat(progressFilledChar, filled) + strings.Repeat(progressEmptyChar, progressLength-filled)
}

// clock formats d as m:ss.
func clock(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	secs := int(d.Round(time.Second) / time.Second)
	return fmt.Sprintf("%d:%02d", secs/60, secs%60)
}
