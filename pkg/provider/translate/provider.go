// Package translate defines the machine translation collaborator contract.
package translate

import "context"

// Language tags in the FLORES-200 style used by IndicTrans2.
const (
	English = "eng_Latn"
	Kannada = "kan_Knda"
)

// Provider translates text between two languages.
type Provider interface {
	// Translate returns text translated from srcLang to tgtLang. Both are
	// FLORES-200 style tags such as "kan_Knda". An empty translation is not
	// an error.
	Translate(ctx context.Context, text, srcLang, tgtLang string) (string, error)
}
