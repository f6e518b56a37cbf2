package nutrition

import (
	"encoding/json"
	"math"
	"regexp"
	"strconv"
	"strings"
)

// NutritionResult is a single nutrition estimate for one meal description.
// Macro fields are always whole numbers regardless of what precision the
// model returned. Immutable by convention: it is built once per successful
// analysis and never modified afterwards (the sources backfill in the
// analyzer happens before the result is handed out).
type NutritionResult struct {
	Calories    int      `json:"calories"`
	Protein     int      `json:"protein"` // grams
	Carbs       int      `json:"carbs"`   // grams
	Fat         int      `json:"fat"`     // grams
	Explanation string   `json:"explanation"`
	Confidence  float64  `json:"confidence"` // 0..1
	Sources     []string `json:"sources"`
}

// Defaults applied when the model's output is missing fields.
const (
	defaultExplanation = "Estimated from the meal description."

	// Confidence signals which path produced the result: 0.8 when the
	// model returned JSON but omitted a confidence, 0.6 when we had to
	// scrape numbers out of free text.
	jsonConfidence     = 0.8
	fallbackConfidence = 0.6

	// Macro defaults for the text-extraction path. Calories has no
	// default — a meal estimate without calories is useless, so its
	// absence is a hard failure.
	fallbackProtein = 20
	fallbackCarbs   = 30
	fallbackFat     = 10

	// How much raw text to keep as the explanation on the fallback path.
	maxExplanationLen = 500
)

// rawNutrition mirrors the JSON schema the system prompt asks for. The four
// macro fields are pointers so we can tell "absent" apart from a literal 0 —
// a response missing any macro is rejected outright rather than partially
// accepted.
type rawNutrition struct {
	Calories    *float64 `json:"calories"`
	Protein     *float64 `json:"protein"`
	Carbs       *float64 `json:"carbs"`
	Fat         *float64 `json:"fat"`
	Explanation string   `json:"explanation"`
	Confidence  float64  `json:"confidence"`
	Sources     []string `json:"sources"`
}

// Patterns for scraping figures out of free text, e.g. "about 450 kcal and
// 20g of protein". Case-insensitive; the unit words anchor each number.
var (
	caloriesPattern = regexp.MustCompile(`(?i)(\d+)\s*(?:k?cal(?:ories)?)`)
	proteinPattern  = regexp.MustCompile(`(?i)(\d+)\s*(?:g(?:rams)?\s+)?(?:of\s+)?protein`)
	carbsPattern    = regexp.MustCompile(`(?i)(\d+)\s*(?:g(?:rams)?\s+)?(?:of\s+)?carb(?:s|ohydrates)?`)
	fatPattern      = regexp.MustCompile(`(?i)(\d+)\s*(?:g(?:rams)?\s+)?(?:of\s+)?fat`)
)

// Parse turns the assistant's raw text into a NutritionResult.
//
// Two-tier strategy: try a strict JSON decode first, and when that fails
// fall back to regex extraction from free text. The fallback exists because
// LLM output is not guaranteed to be well-formed JSON even when explicitly
// requested — the second tier trades precision for availability. When even
// the fallback can't find a calorie figure, the result is a non-retryable
// PARSE_ERROR: resending the same text would just burn another API call.
func Parse(raw string) (*NutritionResult, error) {
	if result, ok := parseJSON(raw); ok {
		return result, nil
	}
	return parseFreeText(raw)
}

// parseJSON attempts the strict path. It reports ok=false when the text is
// not a JSON object or when any of the four macro fields is missing or
// non-numeric — no partial acceptance.
func parseJSON(raw string) (*NutritionResult, bool) {
	var decoded rawNutrition
	if err := json.Unmarshal([]byte(stripCodeFence(raw)), &decoded); err != nil {
		return nil, false
	}
	if decoded.Calories == nil || decoded.Protein == nil || decoded.Carbs == nil || decoded.Fat == nil {
		return nil, false
	}
	// A negative macro means the model misunderstood the task; reject the
	// object rather than surface an impossible estimate. The fallback tier
	// only matches unsigned digits, so it can never reintroduce one.
	if *decoded.Calories < 0 || *decoded.Protein < 0 || *decoded.Carbs < 0 || *decoded.Fat < 0 {
		return nil, false
	}

	result := &NutritionResult{
		Calories:    roundToInt(*decoded.Calories),
		Protein:     roundToInt(*decoded.Protein),
		Carbs:       roundToInt(*decoded.Carbs),
		Fat:         roundToInt(*decoded.Fat),
		Explanation: decoded.Explanation,
		Confidence:  decoded.Confidence,
		Sources:     decoded.Sources,
	}
	if result.Explanation == "" {
		result.Explanation = defaultExplanation
	}
	// Confidence must land in [0,1]: absent, zero, or negative values get
	// the default, anything above 1 is capped.
	if result.Confidence <= 0 {
		result.Confidence = jsonConfidence
	} else if result.Confidence > 1 {
		result.Confidence = 1
	}
	if result.Sources == nil {
		result.Sources = []string{}
	}
	return result, true
}

// parseFreeText is the degraded path: scan prose for numbers next to unit
// words. Calories is mandatory; the other macros get fixed defaults.
func parseFreeText(raw string) (*NutritionResult, error) {
	calories, ok := extractFigure(caloriesPattern, raw)
	if !ok {
		return nil, &AnalysisError{
			Message:   "could not find a calorie estimate in the response",
			Code:      CodeParse,
			Retryable: false,
		}
	}

	result := &NutritionResult{
		Calories:    calories,
		Protein:     fallbackProtein,
		Carbs:       fallbackCarbs,
		Fat:         fallbackFat,
		Explanation: truncateText(raw, maxExplanationLen),
		Confidence:  fallbackConfidence,
		Sources:     []string{},
	}
	if protein, ok := extractFigure(proteinPattern, raw); ok {
		result.Protein = protein
	}
	if carbs, ok := extractFigure(carbsPattern, raw); ok {
		result.Carbs = carbs
	}
	if fat, ok := extractFigure(fatPattern, raw); ok {
		result.Fat = fat
	}
	return result, nil
}

// extractFigure returns the first number captured by the pattern.
func extractFigure(pattern *regexp.Regexp, text string) (int, bool) {
	m := pattern.FindStringSubmatch(text)
	if m == nil {
		return 0, false
	}
	n, err := strconv.Atoi(m[1])
	if err != nil {
		return 0, false
	}
	return n, true
}

// stripCodeFence removes a surrounding markdown code fence, a common way
// for models to wrap JSON even in JSON mode: ```json\n{...}\n```.
func stripCodeFence(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}

func roundToInt(f float64) int {
	return int(math.Round(f))
}

// truncateText keeps the first n characters. Counted in runes, not bytes,
// so a multi-byte character straddling the cutoff can't leave the
// explanation with invalid UTF-8.
func truncateText(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n])
}
