// Package transcript corrects speech-recognition output against the
// curriculum vocabulary.
//
// Live transcription frequently mishears the programme's coined terms
// ("egregore" becomes "a gregor", stage titles get mangled), which pollutes
// the conversation history. The Corrector walks the transcript with an n-gram
// window and replaces spans that phonetically align with a known stage,
// exercise, or glossary term.
package transcript

import "strings"

// Correction records a single replacement applied to a transcript.
type Correction struct {
	// Original is the span as it appeared in the raw transcript.
	Original string

	// Corrected is the vocabulary term that replaced it.
	Corrected string

	// Confidence is the Jaro-Winkler score of the accepted match.
	Confidence float64
}

// Corrector applies phonetic vocabulary correction to transcripts. It is
// read-only after construction and safe for concurrent use.
type Corrector struct {
	matcher      *Matcher
	vocabulary   []string
	maxTermWords int
}

// NewCorrector builds a Corrector over the given vocabulary. A nil or empty
// vocabulary yields a no-op corrector.
func NewCorrector(vocabulary []string, opts ...MatcherOption) *Corrector {
	maxWords := 1
	for _, term := range vocabulary {
		if n := len(strings.Fields(term)); n > maxWords {
			maxWords = n
		}
	}
	return &Corrector{
		matcher:      NewMatcher(opts...),
		vocabulary:   vocabulary,
		maxTermWords: maxWords,
	}
}

// Correct replaces phonetically-matching spans of text with vocabulary terms.
// At each token position the longest matching n-gram wins, so multi-word
// terms take precedence over partial single-word matches.
func (c *Corrector) Correct(text string) (string, []Correction) {
	if len(c.vocabulary) == 0 {
		return text, nil
	}

	tokens := strings.Fields(text)
	if len(tokens) == 0 {
		return text, nil
	}

	var output []string
	var corrections []Correction

	i := 0
	for i < len(tokens) {
		maxN := c.maxTermWords
		if i+maxN > len(tokens) {
			maxN = len(tokens) - i
		}

		matched := false
		for n := maxN; n >= 1; n-- {
			window := strings.Join(tokens[i:i+n], " ")
			term, conf, ok := c.matcher.Match(window, c.vocabulary)
			if !ok {
				continue
			}
			// Identity matches are not corrections.
			if strings.EqualFold(window, term) {
				break
			}

			output = append(output, strings.Fields(term)...)
			corrections = append(corrections, Correction{
				Original:   window,
				Corrected:  term,
				Confidence: conf,
			})
			i += n
			matched = true
			break
		}

		if !matched {
			output = append(output, tokens[i])
			i++
		}
	}

	return strings.Join(output, " "), corrections
}
