package kokoro

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDetectLanguage(t *testing.T) {
	tests := []struct {
		text string
		want string
	}{
		{"Hello world", LangEnglish},
		{"", LangEnglish},
		{"Ça va très bien", LangEnglish},
		{"你好，世界", LangChinese},
		{"Say 你好", LangChinese},
		{"こんにちは", LangJapanese},
		{"カタカナ", LangJapanese},
		{"日本語のテキスト", LangJapanese},
		{"Привет, мир", LangRussian},
		{"Привет 你好", LangChinese},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, DetectLanguage(tt.text), "%q", tt.text)
	}
}
