package session

import (
	"fmt"
	"strings"

	"github.com/gback-app/coach-engine/internal/catalog"
)

func languageName(code string) string {
	switch strings.ToLower(strings.TrimSpace(code)) {
	case "ar", "arabic":
		return "Arabic"
	case "", "en", "english":
		return "English"
	default:
		return code
	}
}

func catalogSummary(c *catalog.Catalog) string {
	parts := make([]string, 0, c.Len())
	for _, ex := range c.All() {
		parts = append(parts, fmt.Sprintf("%s (ID: %s)", ex.Title, ex.ID))
	}
	return strings.Join(parts, ", ")
}

func chatInstruction(language string, c *catalog.Catalog) string {
	return fmt.Sprintf(
		"You are G-Back AI. Language: %s. Available exercises: %s. If user wants to do an exercise, call startExercise.",
		languageName(language), catalogSummary(c),
	)
}

// voiceInstruction keeps spoken replies short.
func voiceInstruction(language string, c *catalog.Catalog) string {
	return fmt.Sprintf(
		"You are an encouraging PT coach. Speak in %s. Keep responses short. Available exercises: %s. Call startExercise if user wants to workout.",
		languageName(language), catalogSummary(c),
	)
}
