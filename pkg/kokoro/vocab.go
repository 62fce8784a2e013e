package kokoro

import (
	"fmt"
	"log/slog"
	"strings"
)

// Symbol groups of the Kokoro vocabulary, in table order. The id of a symbol
// is its position in the concatenation pad+punctuation+letters+ipaLetters.
// When a symbol appears twice the later position wins.
const (
	padSymbol   = "$"
	punctuation = ";:,.!?¡¿—…\"«»“” "
	letters     = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz"
	ipaLetters  = "ɑɐɒæɓʙβɔɕçɗɖðʤəɘɚɛɜɝɞɟʄɡɠɢʛɦɧħɥʜɨɪʝɭɬɫɮʟɱɯɰŋɳɲɴøɵɸθœɶʘɹɺɾɻʀʁɽʂʃʈʧʉʊʋⱱʌɣɤʍχʎʏʑʐʒʔʡʕʢǀǁǂǃˈˌːˑʼʴʰʱʲʷˠˤ˞↓↑→↗↘'\u0329'ᵻ"
)

const (
	// PadID is the id of the pad symbol "$", which also marks the start and
	// end of every phoneme string fed to the model.
	PadID int64 = 0

	// VocabSize is one past the largest token id.
	VocabSize = 178

	// MaxTokens is the longest token sequence the model accepts, boundary
	// markers included.
	MaxTokens = 512
)

// Vocab maps each phoneme symbol to its token id.
var Vocab = buildVocab()

func buildVocab() map[rune]int64 {
	symbols := padSymbol + punctuation + letters + ipaLetters
	vocab := make(map[rune]int64, VocabSize)
	var id int64
	for _, r := range symbols {
		vocab[r] = id
		id++
	}
	return vocab
}

// WrapPhonemes surrounds phonemes with the boundary markers the model
// expects.
func WrapPhonemes(phonemes string) string {
	return padSymbol + phonemes + padSymbol
}

// Tokenize maps every symbol of phonemes to its vocabulary id, in order.
// The boundary markers are ordinary symbols and are kept. A symbol outside
// the vocabulary fails the whole call with ErrUnknownSymbol.
func Tokenize(phonemes string) ([]int64, error) {
	tokens := make([]int64, 0, len(phonemes))
	for i, r := range phonemes {
		id, ok := Vocab[r]
		if !ok {
			return nil, fmt.Errorf("%w: %q at byte %d", ErrUnknownSymbol, r, i)
		}
		tokens = append(tokens, id)
	}
	return tokens, nil
}

// NormalizePhonemes removes every symbol that Tokenize would reject and
// returns the rest unchanged. Dropped symbols are logged at debug level.
func NormalizePhonemes(phonemes string) string {
	var b strings.Builder
	b.Grow(len(phonemes))
	var dropped []string
	for _, r := range phonemes {
		if _, ok := Vocab[r]; ok {
			b.WriteRune(r)
			continue
		}
		dropped = append(dropped, fmt.Sprintf("%U", r))
	}
	if len(dropped) > 0 {
		slog.Debug("kokoro: dropped symbols outside vocabulary", "symbols", dropped)
	}
	return b.String()
}
