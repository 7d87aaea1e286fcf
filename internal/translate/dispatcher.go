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
	"context"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/loqalabs/loqa-subtitles/internal/langid"
	"github.com/loqalabs/loqa-subtitles/internal/logging"
	"github.com/loqalabs/loqa-subtitles/internal/security"
)

// DispatcherConfig wires the dispatcher's tiers. Nil tiers get built-in defaults.
type DispatcherConfig struct {
	Target          string
	DefaultSource   string
	ProviderTimeout time.Duration
	Detector        langid.Detector
	Glossary        *PhraseBook
	Lexicon         *PhraseBook
	Cache           *Cache
	Window          *ContextWindow
}

// Dispatcher runs the translation fallback chain for one stream
type Dispatcher struct {
	target    string
	timeout   time.Duration
	detector  langid.Detector
	glossary  *PhraseBook
	lexicon   *PhraseBook
	cache     *Cache
	window    *ContextWindow
	providers []Provider

	// set when a provider reads the context window
	contextual bool

	counts map[string]*atomic.Int64
}

// NewDispatcher creates a dispatcher that tries providers in the given order
func NewDispatcher(cfg DispatcherConfig, providers ...Provider) *Dispatcher {
	if cfg.Target == "" {
		cfg.Target = "tr"
	}
	if cfg.DefaultSource == "" {
		cfg.DefaultSource = "en"
	}
	if cfg.ProviderTimeout <= 0 {
		cfg.ProviderTimeout = 3 * time.Second
	}
	if cfg.Detector == nil {
		cfg.Detector = langid.NewWhatlangDetector(0.5, cfg.DefaultSource)
	}
	if cfg.Glossary == nil {
		cfg.Glossary = DefaultGlossary()
	}
	if cfg.Lexicon == nil {
		cfg.Lexicon = DefaultLexicon()
	}
	if cfg.Cache == nil {
		cfg.Cache = NewCache(3000, 8*time.Hour)
	}
	if cfg.Window == nil {
		cfg.Window = NewContextWindow(3)
	}

	d := &Dispatcher{
		target:    cfg.Target,
		timeout:   cfg.ProviderTimeout,
		detector:  cfg.Detector,
		glossary:  cfg.Glossary,
		lexicon:   cfg.Lexicon,
		cache:     cfg.Cache,
		window:    cfg.Window,
		providers: providers,
		counts:    make(map[string]*atomic.Int64),
	}
	for _, p := range providers {
		if r, ok := p.(ContextReader); ok && r.ReadsContext() {
			d.contextual = true
		}
	}
	for _, tier := range []string{TierPassthrough, TierGlossary, TierCache, TierDictionary} {
		d.counts[tier] = new(atomic.Int64)
	}
	for _, p := range providers {
		d.counts[p.Name()] = new(atomic.Int64)
	}
	return d
}

// Target returns the language translations are produced in
func (d *Dispatcher) Target() string {
	return d.target
}

// Translate returns the best available translation of text. It only fails
// when ctx is done before a tier produced a result.
func (d *Dispatcher) Translate(ctx context.Context, text string) (Result, error) {
	if err := ctx.Err(); err != nil {
		return Result{}, fmt.Errorf("%w: %w", ErrNoTranslation, err)
	}

	start := time.Now()
	clean := CleanText(text)
	if clean == "" {
		return d.finish(Result{Text: text, SourceText: text, TargetLang: d.target, Provider: TierPassthrough}, start), nil
	}

	detection := d.detector.Detect(clean)
	res := Result{
		SourceText: clean,
		SourceLang: detection.Lang,
		TargetLang: d.target,
	}

	if res.SourceLang == d.target {
		res.Text = clean
		res.Provider = TierPassthrough
		return d.finish(res, start), nil
	}

	if out, n := d.glossary.Apply(clean, res.SourceLang, d.target); n > 0 {
		res.Text = out
		res.Provider = TierGlossary
		return d.finish(res, start), nil
	}

	if cached, ok := d.cache.Get(res.SourceLang, d.target, clean); ok {
		res.Text = cached
		res.Provider = TierCache
		res.Cached = true
		return d.finish(res, start), nil
	}

	req := Request{
		Text:   clean,
		Source: res.SourceLang,
		Target: d.target,
	}
	if d.contextual {
		req.Context = d.window.Items()
	}
	for _, p := range d.providers {
		out, err := d.try(ctx, p, req)
		if err != nil {
			if ctx.Err() != nil {
				return Result{}, fmt.Errorf("%w: %w", ErrNoTranslation, ctx.Err())
			}
			logging.LogDebug("Translation provider failed",
				zap.String("provider", p.Name()),
				zap.String("source_lang", res.SourceLang),
				zap.Error(err),
			)
			continue
		}

		d.cache.Put(res.SourceLang, d.target, clean, out)
		res.Text = out
		res.Provider = p.Name()
		return d.finish(res, start), nil
	}

	out, n := d.lexicon.Apply(clean, res.SourceLang, d.target)
	logging.Sugar.Warnw("⚠️ All translation providers failed, using dictionary fallback",
		"source_lang", res.SourceLang,
		"replaced", n,
		"text", security.SanitizeLogInput(clean),
	)
	res.Text = out
	res.Provider = TierDictionary
	res.Degraded = true
	return d.finish(res, start), nil
}

// try calls one provider under the per-provider timeout. An answer equal to
// the input is ErrUntranslated.
func (d *Dispatcher) try(ctx context.Context, p Provider, req Request) (string, error) {
	pctx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()
	out, err := p.Translate(pctx, req)
	if err != nil {
		return "", err
	}
	if strings.EqualFold(strings.TrimSpace(out), req.Text) {
		return "", ErrUntranslated
	}
	return out, nil
}

func (d *Dispatcher) finish(res Result, start time.Time) Result {
	if c, ok := d.counts[res.Provider]; ok {
		c.Add(1)
	}
	if d.contextual && res.SourceLang != "" {
		d.window.Add(res.SourceText)
	}
	logging.LogTranslation(res.Provider, res.SourceLang, res.TargetLang,
		zap.Bool("cached", res.Cached),
		zap.Bool("degraded", res.Degraded),
		zap.Duration("latency", time.Since(start)),
	)
	return res
}

// Stats returns how many results each tier or provider produced
func (d *Dispatcher) Stats() map[string]int64 {
	out := make(map[string]int64, len(d.counts))
	for name, c := range d.counts {
		out[name] = c.Load()
	}
	return out
}

// CacheStats exposes the cache hit and miss counters
func (d *Dispatcher) CacheStats() (hits, misses int64) {
	return d.cache.Stats()
}
