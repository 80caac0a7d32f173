package usage

import (
	"unicode/utf8"

	tiktoken "github.com/pkoukk/tiktoken-go"
)

// Estimator counts tokens in text when a backend does not report usage.
type Estimator func(text string) int

const fallbackEncoding = "cl100k_base"

// NewTikTokenEstimator returns an Estimator backed by tiktoken-go. Models
// tiktoken does not know (Gemini, local models) use the cl100k_base encoding.
func NewTikTokenEstimator(model string) (Estimator, error) {
	enc, err := tiktoken.EncodingForModel(model)
	if err != nil {
		enc, err = tiktoken.GetEncoding(fallbackEncoding)
		if err != nil {
			return nil, err
		}
	}
	return func(text string) int {
		return len(enc.Encode(text, nil, nil))
	}, nil
}

// RuneEstimator assumes four characters per token.
func RuneEstimator(text string) int {
	n := utf8.RuneCountInString(text)
	return (n + 3) / 4
}
