// Package langdetect implements C2: a cheap, deterministic, multi-script
// heuristic language classifier. No external call — see spec.md §4.9.
package langdetect

import (
	"strings"
	"unicode"

	"github.com/ragbox/core-rag/internal/model"
)

var russianStopWords = map[string]bool{
	"и": true, "в": true, "не": true, "на": true, "что": true, "это": true,
	"как": true, "для": true, "но": true, "с": true, "а": true, "по": true,
	"из": true, "к": true, "у": true, "за": true, "от": true, "до": true,
}

// uzbekLatinMarkers are digraphs/particles distinctive of Uzbek-Latin text.
var uzbekLatinMarkers = []string{"o'", "g'", "ning", "lar", "uchun", "bilan", "qanday", "nima"}

var englishStopWords = map[string]bool{
	"the": true, "is": true, "are": true, "and": true, "of": true, "to": true,
	"a": true, "in": true, "what": true, "how": true, "why": true, "for": true,
}

// Result carries the winning language plus the runner-up, per spec.md §9's
// open question about logging both candidates for unreliable short-query
// ties between Uzbek-Latin and English.
type Result struct {
	Language  model.Language
	Candidate model.Language
}

// Detect classifies text. Priority order, per spec.md §4.9: Cyrillic script
// with Russian stop-words wins "ru"; Cyrillic-or-Latin text carrying Uzbek
// digraphs/particles wins "uz"; ASCII-dominant Latin text with English
// stop-words wins "en"; otherwise "unknown" (callers treat unknown as "en"
// downstream, per spec.md §4.9).
func Detect(text string) Result {
	lower := strings.ToLower(text)
	words := strings.Fields(lower)

	cyrillicCount, latinCount, totalLetters := scriptCounts(lower)
	hasRuStop := countMatches(words, russianStopWords) > 0
	hasEnStop := countMatches(words, englishStopWords) > 0
	hasUzMarker := containsAny(lower, uzbekLatinMarkers)

	if totalLetters == 0 {
		return Result{Language: model.LangUnknown, Candidate: model.LangUnknown}
	}

	cyrillicDominant := cyrillicCount > latinCount

	if cyrillicDominant && hasRuStop {
		return Result{Language: model.LangRussian, Candidate: model.LangUzbek}
	}
	if hasUzMarker {
		cand := model.LangEnglish
		if hasEnStop {
			cand = model.LangEnglish
		}
		return Result{Language: model.LangUzbek, Candidate: cand}
	}
	if !cyrillicDominant && hasEnStop {
		return Result{Language: model.LangEnglish, Candidate: model.LangUzbek}
	}
	if cyrillicDominant {
		return Result{Language: model.LangUnknown, Candidate: model.LangRussian}
	}
	return Result{Language: model.LangUnknown, Candidate: model.LangEnglish}
}

func scriptCounts(s string) (cyrillic, latin, total int) {
	for _, r := range s {
		switch {
		case unicode.Is(unicode.Cyrillic, r):
			cyrillic++
			total++
		case unicode.IsLetter(r) && r <= unicode.MaxLatin1:
			latin++
			total++
		case unicode.IsLetter(r):
			total++
		}
	}
	return
}

func countMatches(words []string, set map[string]bool) int {
	n := 0
	for _, w := range words {
		if set[strings.Trim(w, ".,!?;:\"'")] {
			n++
		}
	}
	return n
}

func containsAny(s string, markers []string) bool {
	for _, m := range markers {
		if strings.Contains(s, m) {
			return true
		}
	}
	return false
}
