package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"github.com/benjamonnguyen/breathe-go"
	"github.com/benjamonnguyen/breathe-go/client"
	"github.com/benjamonnguyen/breathe-go/cmd/breathe/models"
)

func newPlayCmd() *cobra.Command {
	var (
		duration  time.Duration
		moodInput string
		voice     bool
		haptic    bool
		sound     string
	)
	cmd := &cobra.Command{
		Use:   "play [technique_id]",
		Short: "Start a guided breathing session",
		Long:  "Start a guided breathing session. Without a technique the recommended one for your mood and the time of day is used.",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			mood, err := breathe.ParseMood(moodInput)
			if err != nil {
				return err
			}

			a, cleanup, err := openApp(ctx)
			if err != nil {
				return err
			}
			defer cleanup()

			var id breathe.TechniqueID
			if len(args) == 1 {
				id = breathe.TechniqueID(args[0])
			}
			technique, target, err := resolveTechnique(ctx, a.api, id, mood, duration, time.Now())
			if err != nil {
				return err
			}

			restoreLog, err := a.logToFile()
			if err != nil {
				return err
			}
			defer restoreLog()

			mgr := NewSessionManager(ctx, a.api, a.repo, a.tx, a.cfg, a.l)
			defer func() {
				if err := mgr.Shutdown(); err != nil {
					a.l.Error("failed to shut down session manager", "err", err)
				}
			}()

			p := tea.NewProgram(newPlayerModel(ctx, mgr, startSessionRequest{
				technique:       &technique,
				targetSeconds:   target,
				voiceGuidance:   voice,
				hapticFeedback:  haptic,
				backgroundSound: sound,
				moodBefore:      mood,
			}), tea.WithOutput(cmd.OutOrStdout()))
			mgr.OnSessionUpdate(func(_ context.Context, before, curr models.Session) {
				p.Send(sessionUpdateMsg{before: before, curr: curr})
			})
			_, err = p.Run()
			return err
		},
	}
	cmd.Flags().DurationVarP(&duration, "duration", "d", 0, "target duration, one of the configured presets (default: technique default)")
	cmd.Flags().StringVarP(&moodInput, "mood", "m", "", "how you feel before: very_low, low, neutral, good, great")
	cmd.Flags().BoolVar(&voice, "voice", false, "enable voice guidance")
	cmd.Flags().BoolVar(&haptic, "haptic", false, "enable haptic feedback")
	cmd.Flags().StringVar(&sound, "sound", "none", "background sound")
	return cmd
}

type techniqueSource interface {
	ListTechniques(context.Context) ([]breathe.Technique, error)
	GetRecommendation(context.Context, breathe.Mood, breathe.TimeOfDay) (breathe.Recommendation, error)
}

// resolveTechnique picks the technique and target seconds for a session. An
// empty id falls back to the recommendation for mood at now.
func resolveTechnique(
	ctx context.Context,
	src techniqueSource,
	id breathe.TechniqueID,
	mood breathe.Mood,
	duration time.Duration,
	now time.Time,
) (breathe.Technique, int, error) {
	var (
		technique breathe.Technique
		target    int
	)
	if id == "" {
		rec, err := src.GetRecommendation(ctx, mood, breathe.TimeOfDayAt(now))
		if err != nil {
			return breathe.Technique{}, 0, fmt.Errorf("failed to get recommendation: %w", err)
		}
		technique, target = rec.Technique, rec.DurationSeconds
	} else {
		techniques, err := src.ListTechniques(ctx)
		if err != nil {
			return breathe.Technique{}, 0, fmt.Errorf("failed to list techniques: %w", err)
		}
		found := false
		for _, t := range techniques {
			if t.ID == id {
				technique, found = t, true
				break
			}
		}
		if !found {
			return breathe.Technique{}, 0, fmt.Errorf("technique %s: %w", id, client.ErrNotFound)
		}
		target = technique.DefaultDurationSeconds
	}
	if duration > 0 {
		target = int(duration / time.Second)
	}
	return technique, target, nil
}

func newTechniquesCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "techniques",
		Aliases: []string{"t"},
		Short:   "List breathing techniques",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, cleanup, err := openApp(ctx)
			if err != nil {
				return err
			}
			defer cleanup()

			techniques, err := a.api.ListTechniques(ctx)
			if err != nil {
				return err
			}
			favorites, err := a.api.ListFavorites(ctx)
			if err != nil {
				return err
			}
			printTechniques(cmd.OutOrStdout(), techniques, favorites)
			return nil
		},
	}
	cmd.AddCommand(newTechniqueCreateCmd(), newTechniqueUpdateCmd(), newTechniqueDeleteCmd())
	return cmd
}

func printTechniques(out io.Writer, techniques, favorites []breathe.Technique) {
	fav := make(map[breathe.TechniqueID]bool, len(favorites))
	for _, t := range favorites {
		fav[t.ID] = true
	}
	fmt.Fprintln(out, Heading(IconBreath, "Techniques"))
	if len(techniques) == 0 {
		fmt.Fprintln(out, Muted.Render("(none)"))
		return
	}
	for _, t := range techniques {
		star := " "
		if fav[t.ID] {
			star = Warn.Render(IconStar)
		}
		kind := "custom"
		if t.IsSystem {
			kind = "system"
		}
		fmt.Fprintf(out, "%s %s %s %s %s\n",
			star,
			Swatch(t.Color),
			Key.Render(string(t.ID)),
			t.Name,
			Muted.Render(fmt.Sprintf("(%s · %s · %s)", t.Pattern(), breathe.DurationText(t.DefaultDurationSeconds), kind)),
		)
	}
}

type techniqueFlags struct {
	name        string
	description string
	color       string
	phases      string
	duration    time.Duration
}

func (f *techniqueFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.name, "name", "", "technique name")
	cmd.Flags().StringVar(&f.description, "description", "", "short description")
	cmd.Flags().StringVar(&f.color, "color", "#6C9BD2", "display color as #RRGGBB")
	cmd.Flags().StringVar(&f.phases, "phases", "", `phase pattern, e.g. "inhale:4,hold:7,exhale:8"`)
	cmd.Flags().DurationVar(&f.duration, "duration", 5*time.Minute, "default session duration")
}

func (f *techniqueFlags) input() (breathe.TechniqueInput, error) {
	phases, err := parsePhases(f.phases)
	if err != nil {
		return breathe.TechniqueInput{}, err
	}
	in := breathe.TechniqueInput{
		Name:                   f.name,
		Description:            f.description,
		Color:                  f.color,
		Phases:                 phases,
		DefaultDurationSeconds: int(f.duration / time.Second),
	}
	if err := in.Technique("").Validate(); err != nil {
		return breathe.TechniqueInput{}, err
	}
	return in, nil
}

// parsePhases reads "name:seconds" pairs separated by commas.
func parsePhases(input string) ([]breathe.Phase, error) {
	var phases []breathe.Phase
	for _, part := range strings.Split(input, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		name, secs, ok := strings.Cut(part, ":")
		if !ok {
			return nil, fmt.Errorf("invalid phase %q, expected name:seconds", part)
		}
		phase := breathe.PhaseName(strings.ToLower(strings.TrimSpace(name)))
		if !phase.IsValid() {
			return nil, fmt.Errorf("invalid phase name %q", name)
		}
		n, err := strconv.Atoi(strings.TrimSpace(secs))
		if err != nil || n <= 0 {
			return nil, fmt.Errorf("invalid phase duration %q", secs)
		}
		phases = append(phases, breathe.Phase{Name: phase, DurationSeconds: n})
	}
	if len(phases) == 0 {
		return nil, errors.New("at least one phase is required")
	}
	return phases, nil
}

func newTechniqueCreateCmd() *cobra.Command {
	var flags techniqueFlags
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a custom technique",
		RunE: func(cmd *cobra.Command, args []string) error {
			in, err := flags.input()
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			a, cleanup, err := openApp(ctx)
			if err != nil {
				return err
			}
			defer cleanup()

			t, err := a.api.CreateTechnique(ctx, in)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s %s %s\n", Good.Render(IconDone+" Created"), Key.Render(string(t.ID)), t.Name)
			return nil
		},
	}
	flags.register(cmd)
	return cmd
}

func newTechniqueUpdateCmd() *cobra.Command {
	var flags techniqueFlags
	cmd := &cobra.Command{
		Use:   "update <technique_id>",
		Short: "Replace a custom technique",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			in, err := flags.input()
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			a, cleanup, err := openApp(ctx)
			if err != nil {
				return err
			}
			defer cleanup()

			t, err := a.api.UpdateTechnique(ctx, breathe.TechniqueID(args[0]), in)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s %s %s\n", Good.Render(IconDone+" Updated"), Key.Render(string(t.ID)), t.Name)
			return nil
		},
	}
	flags.register(cmd)
	return cmd
}

func newTechniqueDeleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <technique_id>",
		Short: "Delete a custom technique",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, cleanup, err := openApp(ctx)
			if err != nil {
				return err
			}
			defer cleanup()

			if err := a.api.DeleteTechnique(ctx, breathe.TechniqueID(args[0])); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s %s\n", Good.Render(IconDone+" Deleted"), Key.Render(args[0]))
			return nil
		},
	}
}

func newFavoriteCmd() *cobra.Command {
	var add, remove bool
	cmd := &cobra.Command{
		Use:   "favorite <technique_id>",
		Short: "Toggle a technique as favorite",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if add && remove {
				return errors.New("--add and --remove are mutually exclusive")
			}
			ctx := cmd.Context()
			a, cleanup, err := openApp(ctx)
			if err != nil {
				return err
			}
			defer cleanup()

			id := breathe.TechniqueID(args[0])
			var isFavorite bool
			switch {
			case add:
				err = a.api.AddFavorite(ctx, id)
				isFavorite = true
			case remove:
				err = a.api.RemoveFavorite(ctx, id)
			default:
				isFavorite, err = a.api.ToggleFavorite(ctx, id)
			}
			if err != nil {
				return err
			}
			if isFavorite {
				fmt.Fprintf(cmd.OutOrStdout(), "%s %s\n", Warn.Render(IconStar+" Favorited"), Key.Render(string(id)))
			} else {
				fmt.Fprintf(cmd.OutOrStdout(), "%s %s\n", Muted.Render("Unfavorited"), Key.Render(string(id)))
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&add, "add", false, "mark as favorite")
	cmd.Flags().BoolVar(&remove, "remove", false, "unmark as favorite")
	return cmd
}

func newHistoryCmd() *cobra.Command {
	var (
		limit int
		local bool
	)
	cmd := &cobra.Command{
		Use:   "history",
		Short: "Show recent breathing sessions",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, cleanup, err := openApp(ctx)
			if err != nil {
				return err
			}
			defer cleanup()

			out := cmd.OutOrStdout()
			if local {
				records, err := a.repo.ListSessions(ctx, limit)
				if err != nil {
					return err
				}
				printJournal(out, records)
				return nil
			}
			sessions, err := a.api.ListSessions(ctx, limit)
			if err != nil {
				return err
			}
			printHistory(out, sessions)
			return nil
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "number of sessions to show")
	cmd.Flags().BoolVar(&local, "local", false, "show the local journal, including abandoned attempts")
	return cmd
}

func printHistory(out io.Writer, sessions []breathe.BreathingSession) {
	fmt.Fprintln(out, Heading(IconBreath, "History"))
	if len(sessions) == 0 {
		fmt.Fprintln(out, Muted.Render("(no sessions yet)"))
		return
	}
	for _, s := range sessions {
		var mark string
		switch {
		case s.CompletedAt == nil:
			mark = Muted.Render("…")
		case s.Completed:
			mark = Good.Render(IconDone)
		default:
			mark = Warn.Render(IconPartial)
		}
		fmt.Fprintf(out, "%s %s %s %s\n",
			mark,
			Muted.Render(s.StartedAt.Local().Format("Jan 02 15:04")),
			Key.Render(string(s.TechniqueID)),
			fmt.Sprintf("%s · %d cycles · %d%%", breathe.DurationText(s.DurationSeconds), s.CyclesCompleted, s.CompletedPercentage),
		)
	}
}

func printJournal(out io.Writer, records []breathe.ExistingSessionRecord) {
	fmt.Fprintln(out, Heading(IconBreath, "Local journal"))
	if len(records) == 0 {
		fmt.Fprintln(out, Muted.Render("(empty)"))
		return
	}
	for _, r := range records {
		fmt.Fprintf(out, "%s %s %s %s\n",
			Muted.Render(r.CreatedAt.Local().Format("Jan 02 15:04")),
			StatusText(r.Status),
			Key.Render(string(r.TechniqueID)),
			fmt.Sprintf("%s / %s · %d cycles", clock(r.Elapsed), clock(r.Target), r.Cycles),
		)
	}
}

func newStatsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Show totals and streak",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, cleanup, err := openApp(ctx)
			if err != nil {
				return err
			}
			defer cleanup()

			stats, err := a.api.GetStats(ctx)
			if err != nil {
				return err
			}
			printStats(cmd.OutOrStdout(), stats)
			return nil
		},
	}
	cmd.AddCommand(newUsageCmd(), newStreakCmd(), newCalendarCmd(), newWidgetCmd())
	return cmd
}

func printStats(out io.Writer, s breathe.Stats) {
	fmt.Fprintln(out, Heading(IconBreath, "Stats"))
	fmt.Fprintln(out, LabelValue("Sessions", fmt.Sprintf("%d (%d completed)", s.TotalSessions, s.CompletedSessions)))
	fmt.Fprintln(out, LabelValue("Minutes", s.TotalMinutes))
	fmt.Fprintln(out, LabelValue("Average", breathe.DurationText(int(s.AverageDurationSeconds))))
	fmt.Fprintln(out, LabelValue("Completion rate", fmt.Sprintf("%.0f%%", s.CompletionRate*100)))
	if s.FavoriteTechniqueID != "" {
		fmt.Fprintln(out, LabelValue("Most used", s.FavoriteTechniqueID))
	}
	fmt.Fprintln(out, LabelValue("Streak", fmt.Sprintf("%s %d %s", IconStreak, s.CurrentStreak, Muted.Render(fmt.Sprintf("(longest %d)", s.LongestStreak)))))
}

func newUsageCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "usage",
		Short: "Show per-technique usage",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, cleanup, err := openApp(ctx)
			if err != nil {
				return err
			}
			defer cleanup()

			usage, err := a.api.GetUsageStats(ctx)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintln(out, Heading(IconBreath, "Usage"))
			if len(usage) == 0 {
				fmt.Fprintln(out, Muted.Render("(no sessions yet)"))
			}
			for _, u := range usage {
				fmt.Fprintf(out, "- %s %s\n",
					Key.Render(u.TechniqueName),
					Muted.Render(fmt.Sprintf("%d sessions · %s · avg %.0f%%", u.SessionCount, breathe.DurationText(u.TotalSeconds), u.AverageCompletion)),
				)
			}
			return nil
		},
	}
}

func newStreakCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "streak",
		Short: "Show the current streak",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, cleanup, err := openApp(ctx)
			if err != nil {
				return err
			}
			defer cleanup()

			streak, err := a.api.GetStreak(ctx)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintln(out, Heading(IconStreak, fmt.Sprintf("%d day streak", streak.CurrentStreak)))
			fmt.Fprintln(out, LabelValue("Longest", streak.LongestStreak))
			if streak.CurrentStreak > 0 && streak.DaysUntilBreak == 0 {
				fmt.Fprintln(out, Warn.Render("Breathe today to keep it going"))
			}
			return nil
		},
	}
}

func newCalendarCmd() *cobra.Command {
	var year, month int
	cmd := &cobra.Command{
		Use:   "calendar",
		Short: "Show practice days for a month",
		RunE: func(cmd *cobra.Command, args []string) error {
			now := time.Now()
			if year == 0 {
				year = now.Year()
			}
			if month == 0 {
				month = int(now.Month())
			}
			if month < 1 || month > 12 {
				return fmt.Errorf("invalid month %d", month)
			}
			ctx := cmd.Context()
			a, cleanup, err := openApp(ctx)
			if err != nil {
				return err
			}
			defer cleanup()

			days, err := a.api.GetCalendar(ctx, year, time.Month(month))
			if err != nil {
				return err
			}
			printCalendar(cmd.OutOrStdout(), year, time.Month(month), days)
			return nil
		},
	}
	cmd.Flags().IntVar(&year, "year", 0, "year (default: current)")
	cmd.Flags().IntVar(&month, "month", 0, "month 1-12 (default: current)")
	return cmd
}

// printCalendar renders a Monday-first month grid. Completed days are green,
// days with only partial sessions are orange.
func printCalendar(out io.Writer, year int, month time.Month, days []breathe.CalendarDay) {
	byDate := make(map[string]breathe.CalendarDay, len(days))
	for _, d := range days {
		byDate[d.Date] = d
	}
	first := time.Date(year, month, 1, 0, 0, 0, 0, time.UTC)
	fmt.Fprintln(out, Heading(IconBreath, first.Format("January 2006")))
	fmt.Fprintln(out, Muted.Render("Mo Tu We Th Fr Sa Su"))

	var b strings.Builder
	offset := (int(first.Weekday()) + 6) % 7
	b.WriteString(strings.Repeat("   ", offset))
	for d := first; d.Month() == month; d = d.AddDate(0, 0, 1) {
		cell := fmt.Sprintf("%2d", d.Day())
		if day, ok := byDate[d.Format(time.DateOnly)]; ok {
			if day.Completed {
				cell = Good.Render(cell)
			} else {
				cell = Warn.Render(cell)
			}
		}
		b.WriteString(cell)
		if d.Weekday() == time.Sunday {
			b.WriteString("\n")
		} else {
			b.WriteString(" ")
		}
	}
	fmt.Fprintln(out, strings.TrimRight(b.String(), " \n"))
}

func newWidgetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "today",
		Short: "Show today's summary",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, cleanup, err := openApp(ctx)
			if err != nil {
				return err
			}
			defer cleanup()

			w, err := a.api.GetWidget(ctx)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintln(out, Heading(IconBreath, "Today"))
			fmt.Fprintln(out, LabelValue("Sessions", w.TodaySessions))
			fmt.Fprintln(out, LabelValue("Minutes", w.TodayMinutes))
			fmt.Fprintln(out, LabelValue("Streak", fmt.Sprintf("%s %d", IconStreak, w.Streak.CurrentStreak)))
			if w.Suggested != nil {
				printRecommendation(out, *w.Suggested)
			}
			return nil
		},
	}
}

func newRecommendCmd() *cobra.Command {
	var moodInput, todInput string
	cmd := &cobra.Command{
		Use:   "recommend",
		Short: "Suggest a technique for your mood and the time of day",
		RunE: func(cmd *cobra.Command, args []string) error {
			mood, err := breathe.ParseMood(moodInput)
			if err != nil {
				return err
			}
			tod, err := breathe.ParseTimeOfDay(todInput)
			if err != nil {
				return err
			}
			if tod == "" {
				tod = breathe.TimeOfDayAt(time.Now())
			}

			ctx := cmd.Context()
			a, cleanup, err := openApp(ctx)
			if err != nil {
				return err
			}
			defer cleanup()

			rec, err := a.api.GetRecommendation(ctx, mood, tod)
			if err != nil {
				return err
			}
			printRecommendation(cmd.OutOrStdout(), rec)
			return nil
		},
	}
	cmd.Flags().StringVarP(&moodInput, "mood", "m", "", "very_low, low, neutral, good, great")
	cmd.Flags().StringVar(&todInput, "time-of-day", "", "morning, afternoon, evening, night (default: now)")
	return cmd
}

func printRecommendation(out io.Writer, r breathe.Recommendation) {
	fmt.Fprintln(out, H2.Render(IconInfo+" Suggested"))
	fmt.Fprintf(out, "%s %s %s\n", Swatch(r.Technique.Color), Key.Render(r.Technique.Name), Muted.Render(fmt.Sprintf("(%s · %s)", r.Technique.Pattern(), breathe.DurationText(r.DurationSeconds))))
	if r.Reason != "" {
		fmt.Fprintln(out, Muted.Render(r.Reason))
	}
	fmt.Fprintln(out, Muted.Render("breathe play "+string(r.Technique.ID)))
}
