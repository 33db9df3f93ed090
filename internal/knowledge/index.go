// Package knowledge provides a small, deterministic, concurrency-safe
// in-memory index of French help paragraphs used to ground the public
// assistant: company facts, the portal tours, and an optional Markdown FAQ.
//
// Scoring is Jaccard similarity between the accent-folded token sets of the
// query and each paragraph: score = |Q ∩ P| / |Q ∪ P|. The index is
// read-only after construction.
package knowledge

import (
	"bytes"
	"io"
	"os"
	"regexp"
	"sort"
	"strings"
	"unicode"
	"unicode/utf8"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"

	"github.com/zalagh/plancher-backend/internal/guide"
)

// Result is a ranked snippet with its similarity score.
type Result struct {
	Snippet string
	Score   float64
}

// Index returns the k paragraphs that best match a query.
type Index interface {
	TopK(query string, k int) []Result
}

type Option func(*options)

type options struct {
	minParagraphRunes int
	stopwords         map[string]struct{}
	maxDocs           int
}

func defaultOptions() options {
	return options{minParagraphRunes: 20, stopwords: frenchStopwords, maxDocs: 0}
}

// WithMinParagraphRunes drops paragraphs shorter than n runes.
func WithMinParagraphRunes(n int) Option {
	return func(o *options) {
		if n >= 0 {
			o.minParagraphRunes = n
		}
	}
}

// WithStopwords replaces the default French stop-word list.
func WithStopwords(words []string) Option {
	return func(o *options) {
		m := make(map[string]struct{}, len(words))
		for _, w := range words {
			if w = fold(strings.TrimSpace(w)); w != "" {
				m[w] = struct{}{}
			}
		}
		o.stopwords = m
	}
}

// WithMaxDocs caps the number of indexed paragraphs.
func WithMaxDocs(n int) Option {
	return func(o *options) {
		if n > 0 {
			o.maxDocs = n
		}
	}
}

type doc struct {
	text   string
	tokens map[string]struct{}
}

type index struct {
	opts options
	docs []doc
}

// CompanyFacts are always indexed.
var CompanyFacts = []string{
	"Zalagh Plancher fournit du béton prêt à l'emploi. Le prix de référence est fixe: 150 DH par m³.",
	"Pour un devis, envoyez une photo ou un plan (jpg, jpeg ou png). L'assistant estime le volume en m³ et le coût indicatif en DH.",
	"Une demande est « encours » à sa création et passe à « livré » quand le devis signé est déposé.",
	"Le devis PDF contient le numéro de demande, le client, le type de projet, le montant indicatif et, si disponible, le plan du projet.",
}

// New builds an Index from paragraphs.
func New(paragraphs []string, opts ...Option) Index {
	o := defaultOptions()
	for _, fn := range opts {
		fn(&o)
	}
	docs := make([]doc, 0, len(paragraphs))
	for _, raw := range paragraphs {
		t := strings.TrimSpace(normalizeWhitespace(raw))
		if t == "" {
			continue
		}
		if o.minParagraphRunes > 0 && utf8.RuneCountInString(t) < o.minParagraphRunes {
			continue
		}
		toks := tokenize(t, o.stopwords)
		if len(toks) == 0 {
			continue
		}
		docs = append(docs, doc{text: t, tokens: toks})
		if o.maxDocs > 0 && len(docs) >= o.maxDocs {
			break
		}
	}
	return &index{opts: o, docs: docs}
}

// NewFromReader indexes Markdown read from r, split on blank lines.
func NewFromReader(r io.Reader, extra []string, opts ...Option) (Index, error) {
	all, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}
	return New(append(extra, splitParagraphs(FlattenTables(all))...), opts...), nil
}

// Default indexes the company facts, every guide step, and the Markdown FAQ
// at path when path is not empty.
func Default(path string, opts ...Option) (Index, error) {
	paras := append([]string{}, CompanyFacts...)
	for _, page := range guide.Pages() {
		for _, s := range guide.Steps(page) {
			paras = append(paras, s.Title+". "+s.Description)
		}
	}
	if path == "" {
		return New(paras, opts...), nil
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return New(paras, opts...), err
	}
	return NewFromReader(bytes.NewReader(b), paras, opts...)
}

// TopK returns up to k best-matching paragraphs. Ties prefer shorter text.
func (i *index) TopK(q string, k int) []Result {
	if len(i.docs) == 0 || strings.TrimSpace(q) == "" {
		return nil
	}
	if k <= 0 {
		k = 3
	}
	qTokens := tokenize(q, i.opts.stopwords)
	if len(qTokens) == 0 {
		return nil
	}

	type scored struct {
		Result
		runes int
	}
	var buf []scored
	for _, d := range i.docs {
		over := overlap(qTokens, d.tokens)
		if over == 0 {
			continue
		}
		union := len(qTokens) + len(d.tokens) - over
		buf = append(buf, scored{
			Result: Result{Snippet: d.text, Score: float64(over) / float64(union)},
			runes:  utf8.RuneCountInString(d.text),
		})
	}
	if len(buf) == 0 {
		return nil
	}
	sort.SliceStable(buf, func(a, b int) bool {
		if buf[a].Score != buf[b].Score {
			return buf[a].Score > buf[b].Score
		}
		if buf[a].runes != buf[b].runes {
			return buf[a].runes < buf[b].runes
		}
		return buf[a].Snippet < buf[b].Snippet
	})
	if k > len(buf) {
		k = len(buf)
	}
	out := make([]Result, k)
	for n := range out {
		out[n] = buf[n].Result
	}
	return out
}

var wordRE = regexp.MustCompile(`\p{L}+\p{N}*|\p{N}+`)

func fold(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	out, _, err := transform.String(t, s)
	if err != nil {
		out = s
	}
	return strings.ToLower(out)
}

func tokenize(s string, stop map[string]struct{}) map[string]struct{} {
	words := wordRE.FindAllString(fold(s), -1)
	if len(words) == 0 {
		return nil
	}
	out := make(map[string]struct{}, len(words))
	for _, w := range words {
		if _, skip := stop[w]; skip {
			continue
		}
		out[w] = struct{}{}
	}
	return out
}

func overlap(a, b map[string]struct{}) int {
	if len(a) > len(b) {
		a, b = b, a
	}
	n := 0
	for k := range a {
		if _, ok := b[k]; ok {
			n++
		}
	}
	return n
}

func normalizeWhitespace(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	prevSpace := false
	for _, r := range s {
		if r == ' ' || r == '\t' || r == '\r' {
			if !prevSpace {
				b.WriteByte(' ')
				prevSpace = true
			}
			continue
		}
		prevSpace = false
		b.WriteRune(r)
	}
	return b.String()
}

var paraSplitRE = regexp.MustCompile(`\n\s*\n`)

func splitParagraphs(all []byte) []string {
	chunks := paraSplitRE.Split(string(all), -1)
	out := make([]string, 0, len(chunks))
	for _, c := range chunks {
		if t := strings.TrimSpace(c); t != "" {
			out = append(out, t)
		}
	}
	return out
}

var frenchStopwords = func() map[string]struct{} {
	words := strings.Fields(`le la les un une des de du d l et ou a au aux en dans par pour sur
avec sans ce cet cette ces est sont je tu il elle nous vous ils elles on que qui quoi
quel quelle quels quelles mon ma mes ton ta tes son sa ses notre votre leur leurs ne pas
plus se s y c j m n t qu comment combien`)
	m := make(map[string]struct{}, len(words))
	for _, w := range words {
		m[w] = struct{}{}
	}
	return m
}()
