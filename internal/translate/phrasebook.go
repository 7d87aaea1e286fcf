/*
 * This file is part of Loqa (https://github.com/loqalabs/loqa).
 * Copyright (C) 2025 Loqa Labs
 *
 * This program is free software: you can redistribute it and/or modify
 * it under the terms of the GNU Affero General Public License as published by
 * the Free Software Foundation, either version 3 of the License, or
 * (at your option) any later version.
 *
 * This program is distributed in the hope that it will be useful,
 * but WITHOUT ANY WARRANTY; without even the implied warranty of
 * MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
 * GNU Affero General Public License for more details.
 *
 * You should have received a copy of the GNU Affero General Public License
 * along with this program. If not, see <https://www.gnu.org/licenses/>.
 */

package translate

import (
	"fmt"
	"strings"
	"unicode"

	"github.com/BurntSushi/toml"
	"golang.org/x/text/cases"
)

// Terms maps source language, then target language, to phrase replacements.
// In TOML:
//
//	[en.tr]
//	"machine learning" = "makine öğrenmesi"
type Terms map[string]map[string]map[string]string

// PhraseBook substitutes whole words and phrases, case-insensitively,
// preferring the longest phrase at every position. It backs both the
// glossary fast path and the dictionary fallback.
type PhraseBook struct {
	tables map[langPair]*phraseTable
}

type langPair struct {
	source string
	target string
}

// NewPhraseBook builds a PhraseBook from terms
func NewPhraseBook(terms Terms) *PhraseBook {
	pb := &PhraseBook{tables: make(map[langPair]*phraseTable)}
	pb.Merge(terms)
	return pb
}

// LoadTerms reads terms from a TOML file
func LoadTerms(path string) (Terms, error) {
	var terms Terms
	if _, err := toml.DecodeFile(path, &terms); err != nil {
		return nil, fmt.Errorf("failed to load phrase book %s: %w", path, err)
	}
	return terms, nil
}

// LoadPhraseBook builds a PhraseBook from a TOML file
func LoadPhraseBook(path string) (*PhraseBook, error) {
	terms, err := LoadTerms(path)
	if err != nil {
		return nil, err
	}
	return NewPhraseBook(terms), nil
}

// Merge adds terms, replacing existing entries for the same phrase
func (pb *PhraseBook) Merge(terms Terms) {
	fold := cases.Fold()
	for source, targets := range terms {
		for target, phrases := range targets {
			key := langPair{source: strings.ToLower(source), target: strings.ToLower(target)}
			table, ok := pb.tables[key]
			if !ok {
				table = &phraseTable{entries: make(map[string]string)}
				pb.tables[key] = table
			}
			table.add(fold, phrases)
		}
	}
}

// Len returns the number of phrases across all language pairs
func (pb *PhraseBook) Len() int {
	n := 0
	for _, table := range pb.tables {
		n += len(table.entries)
	}
	return n
}

// Apply replaces every known phrase in text and reports how many were replaced
func (pb *PhraseBook) Apply(text, source, target string) (string, int) {
	table, ok := pb.tables[langPair{source: source, target: target}]
	if !ok {
		return text, 0
	}
	return table.replace(text)
}

type phraseTable struct {
	entries  map[string]string // folded words joined by single spaces
	maxWords int
}

func (t *phraseTable) add(fold cases.Caser, phrases map[string]string) {
	for phrase, replacement := range phrases {
		replacement = strings.TrimSpace(replacement)
		var words []string
		for _, tok := range tokenize(phrase) {
			if tok.word {
				words = append(words, fold.String(tok.text))
			}
		}
		if len(words) == 0 || replacement == "" {
			continue
		}
		t.entries[strings.Join(words, " ")] = replacement
		if len(words) > t.maxWords {
			t.maxWords = len(words)
		}
	}
}

func (t *phraseTable) replace(text string) (string, int) {
	if len(t.entries) == 0 {
		return text, 0
	}

	fold := cases.Fold()
	tokens := tokenize(text)

	var b strings.Builder
	count := 0
	for i := 0; i < len(tokens); {
		if !tokens[i].word {
			b.WriteString(tokens[i].text)
			i++
			continue
		}
		if next, replacement, ok := t.match(fold, tokens, i); ok {
			b.WriteString(replacement)
			count++
			i = next
			continue
		}
		b.WriteString(tokens[i].text)
		i++
	}
	return b.String(), count
}

// match returns the token index following the longest phrase starting at i.
// Words of a phrase may only be separated by whitespace.
func (t *phraseTable) match(fold cases.Caser, tokens []token, i int) (int, string, bool) {
	words := make([]string, 0, t.maxWords)
	ends := make([]int, 0, t.maxWords)

	for j := i; len(words) < t.maxWords; j += 2 {
		words = append(words, fold.String(tokens[j].text))
		ends = append(ends, j+1)
		if j+2 >= len(tokens) || !tokens[j+2].word || strings.TrimSpace(tokens[j+1].text) != "" {
			break
		}
	}

	for n := len(words); n > 0; n-- {
		if replacement, ok := t.entries[strings.Join(words[:n], " ")]; ok {
			return ends[n-1], replacement, true
		}
	}
	return i, "", false
}

type token struct {
	text string
	word bool
}

func isWordRune(r rune) bool {
	return unicode.IsLetter(r) || unicode.IsNumber(r) || unicode.Is(unicode.Mn, r)
}

// tokenize splits s into alternating runs of word and non-word characters
func tokenize(s string) []token {
	var tokens []token
	start := 0
	inWord := false
	for i, r := range s {
		w := isWordRune(r)
		if i == 0 {
			inWord = w
			continue
		}
		if w != inWord {
			tokens = append(tokens, token{text: s[start:i], word: inWord})
			start = i
			inWord = w
		}
	}
	if start < len(s) {
		tokens = append(tokens, token{text: s[start:], word: inWord})
	}
	return tokens
}
