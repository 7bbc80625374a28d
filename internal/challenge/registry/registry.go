// Package registry holds the fixed catalog of candidate challenge phrases
// offered to drivers during safety onboarding.
package registry

import "saferide/internal/challenge/models"

var primaryPhrases = []string{
	"El gato tiene atrapado al ratón",
	"La luna se esconde detrás del volcán",
	"Mi abuela toca el acordeón los martes",
	"El café se enfrió en la mesa azul",
	"Las llaves están debajo del mango",
	"El perro del vecino canta rancheras",
}

var secondaryPhrases = []string{
	"Pura vida mae",
	"¿Qué hubo, mae?",
	"Tuanis, diay",
	"Está a cachete",
	"Jalemos al chante",
	"Qué chiva el partido",
}

// ListCandidates returns the catalog for a category. The result is a fresh
// slice on every call; unknown categories yield an empty slice.
func ListCandidates(category models.Category) []models.ChallengeQuestion {
	var phrases []string
	switch category {
	case models.CategoryPrimary:
		phrases = primaryPhrases
	case models.CategorySecondary:
		phrases = secondaryPhrases
	default:
		return []models.ChallengeQuestion{}
	}
	out := make([]models.ChallengeQuestion, 0, len(phrases))
	for _, text := range phrases {
		out = append(out, models.NewChallengeQuestion(text, category))
	}
	return out
}
