package nutrition

import (
	"fmt"

	"github.com/ollie-ward/mealscan/internal/provider"
)

// systemPrompt pins the output contract: which fields, which types. Spelling
// out the exact JSON shape (and insisting the macros are numbers, not
// strings) is what keeps the strict parse path viable — models follow a
// concrete example far more reliably than a prose description.
const systemPrompt = `You are a nutrition expert. Analyze the described meal and respond with a JSON object in exactly this format:
{
    "calories": 450,
    "protein": 20,
    "carbs": 30,
    "fat": 10,
    "explanation": "Brief explanation of the estimate",
    "confidence": 0.8,
    "sources": ["source name or URL"]
}

The calories, protein, carbs, and fat fields must be numbers, not strings. Protein, carbs, and fat are in grams. Confidence is a number between 0 and 1. Respond with the JSON object only.`

// BuildMessages returns the two-message conversation for one analysis call:
// the fixed system instruction plus a user message embedding the meal text
// verbatim, quoted. Provider adapters may append their own instructions
// during request translation (Perplexity adds its search hint).
func BuildMessages(mealText string) []provider.Message {
	return []provider.Message{
		{Role: "system", Content: systemPrompt},
		{Role: "user", Content: fmt.Sprintf("Estimate the nutrition of this meal: %q.", mealText)},
	}
}
