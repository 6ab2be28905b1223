package backend

import (
	"github.com/benjamonnguyen/breathe-go"
)

type recommendation struct {
	techniqueID     breathe.TechniqueID
	durationSeconds int
	reason          string
}

// moodRecommendations take precedence over the time of day.
var moodRecommendations = map[breathe.Mood]recommendation{
	breathe.MoodVeryLow: {"calming", 300, "A long exhale helps settle a heavy mind."},
	breathe.MoodLow:     {"relaxing-478", 180, "4-7-8 eases tension when you're feeling low."},
	breathe.MoodNeutral: {"box", 300, "Box breathing keeps a steady baseline."},
	breathe.MoodGood:    {"coherent", 600, "Coherent breathing builds on a good mood."},
	breathe.MoodGreat:   {"energizing", 60, "Ride the energy with a quick energizing round."},
}

var timeOfDayRecommendations = map[breathe.TimeOfDay]recommendation{
	breathe.Morning:   {"energizing", 60, "A short energizing round to start the day."},
	breathe.Afternoon: {"box", 300, "Reset focus for the afternoon with box breathing."},
	breathe.Evening:   {"coherent", 600, "Slow down in the evening with coherent breathing."},
	breathe.Night:     {"relaxing-478", 180, "4-7-8 helps you wind down before sleep."},
}

var fallbackRecommendation = recommendation{"box", 300, "Box breathing is a good place to start."}

func pickRecommendation(mood breathe.Mood, tod breathe.TimeOfDay) recommendation {
	if r, ok := moodRecommendations[mood]; ok {
		return r
	}
	if r, ok := timeOfDayRecommendations[tod]; ok {
		return r
	}
	return fallbackRecommendation
}
