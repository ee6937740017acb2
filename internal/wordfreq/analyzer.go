package wordfreq

import (
	"fmt"

	"github.com/ikawaha/kagome-dict/ipa"
	"github.com/ikawaha/kagome/v2/tokenizer"
)

// Morpheme is one analyzed token. Canonical is empty when the dictionary has
// no base form for the token.
type Morpheme struct {
	Surface   string
	Category  string
	Canonical string
}

// Analyzer segments text into morphemes.
type Analyzer interface {
	Analyze(text string) []Morpheme
}

// Kagome is an Analyzer backed by the kagome tokenizer and the IPA dictionary.
// A Kagome value is safe for concurrent use.
type Kagome struct {
	t *tokenizer.Tokenizer
}

// NewKagome builds the tokenizer. Building loads the embedded dictionary, so
// callers should do it once at startup.
func NewKagome() (*Kagome, error) {
	t, err := tokenizer.New(ipa.Dict(), tokenizer.OmitBosEos())
	if err != nil {
		return nil, fmt.Errorf("build kagome tokenizer: %w", err)
	}
	return &Kagome{t: t}, nil
}

// Analyze implements Analyzer.
func (k *Kagome) Analyze(text string) []Morpheme {
	tokens := k.t.Tokenize(text)
	out := make([]Morpheme, 0, len(tokens))
	for _, tok := range tokens {
		if tok.Class == tokenizer.DUMMY {
			continue
		}
		m := Morpheme{Surface: tok.Surface}
		if pos := tok.POS(); len(pos) > 0 {
			m.Category = pos[0]
		}
		if base, ok := tok.BaseForm(); ok && base != "*" {
			m.Canonical = base
		}
		out = append(out, m)
	}
	return out
}
