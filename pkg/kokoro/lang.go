package kokoro

import "unicode"

// Language tags returned by DetectLanguage.
const (
	LangEnglish  = "en-us"
	LangChinese  = "zh-cn"
	LangJapanese = "ja-jp"
	LangRussian  = "ru"
)

// DetectLanguage guesses a phonemizer language tag from the script of text.
// Kana anywhere selects Japanese, otherwise Han selects Chinese and Cyrillic
// selects Russian. Everything else is English.
func DetectLanguage(text string) string {
	var han, cyrillic bool
	for _, r := range text {
		switch {
		case unicode.In(r, unicode.Hiragana, unicode.Katakana):
			return LangJapanese
		case unicode.Is(unicode.Han, r):
			han = true
		case unicode.Is(unicode.Cyrillic, r):
			cyrillic = true
		}
	}
	switch {
	case han:
		return LangChinese
	case cyrillic:
		return LangRussian
	}
	return LangEnglish
}
