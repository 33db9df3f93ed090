// Package intent classifies the last message of an admin assistant
// conversation with an explicit rule table. Rules are tried in order and the
// first match wins; when none matches the message goes to the model.
package intent

import (
	"html"
	"regexp"
	"strconv"
	"strings"
	"time"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"

	"github.com/zalagh/plancher-backend/internal/domain"
)

// Kind names what the admin asked for.
type Kind int

const (
	None       Kind = iota // forward to the model
	QuoteLinks             // list downloadable quote links for a period
	Notify                 // broadcast a notification to a sector
)

func (k Kind) String() string {
	switch k {
	case QuoteLinks:
		return "quote_links"
	case Notify:
		return "notify"
	default:
		return "none"
	}
}

// DefaultWindow is the period used when a quote-links request names no dates.
const DefaultWindow = 30 * 24 * time.Hour

// Range is an inclusive calendar-day interval.
type Range struct {
	From time.Time
	To   time.Time
}

// Label renders the range as "YYYY-MM-DD → YYYY-MM-DD".
func (r Range) Label() string {
	return r.From.Format(time.DateOnly) + " → " + r.To.Format(time.DateOnly)
}

// Intent is the classification plus the fields its rule extracted.
type Intent struct {
	Kind Kind

	// Range is always set for QuoteLinks, and set for Notify only when the
	// message names two dates.
	Range *Range

	// Sector is the broadcast target. For QuoteLinks it is set only when the
	// admin also asked to send the links.
	Sector domain.Sector

	// CustomText is the HTML-escaped text after "message:", "instruction:",
	// "instr:" or "texte:" (Notify only).
	CustomText string
}

var (
	quoteLinksRe = regexp.MustCompile(`(telecharg|lien|liens).*(devis|pdf)`)
	sendToRe     = regexp.MustCompile(`(envoy|send).*\b(finance|chantier|production)\b`)
	notifyVerbRe = regexp.MustCompile(`(notif|notification|envoi|envoy\w*)`)
	sectorWordRe = regexp.MustCompile(`(finance|chantier|production)`)
	customTextRe = regexp.MustCompile(`(?i)(?:message|instr(?:uction)?|texte)\s*:\s*([\s\S]+)`)
	dateTokenRe  = regexp.MustCompile(`\d{4}-\d{2}-\d{2}|\d{2}/\d{2}/\d{4}`)
)

type rule struct {
	kind  Kind
	match func(folded string) bool
	build func(in *Intent, original, folded string, now time.Time)
}

var rules = []rule{
	{
		kind:  QuoteLinks,
		match: quoteLinksRe.MatchString,
		build: func(in *Intent, _, folded string, now time.Time) {
			r, ok := parseRange(folded)
			if !ok {
				r = trailingWindow(now)
			}
			in.Range = &r
			if m := sendToRe.FindStringSubmatch(folded); m != nil {
				in.Sector = domain.Sector(m[2])
			}
		},
	},
	{
		kind: Notify,
		match: func(folded string) bool {
			return notifyVerbRe.MatchString(folded) && sectorWordRe.MatchString(folded)
		},
		build: func(in *Intent, original, folded string, _ time.Time) {
			in.Sector = domain.Sector(sectorWordRe.FindStringSubmatch(folded)[1])
			if m := customTextRe.FindStringSubmatch(original); m != nil {
				in.CustomText = html.EscapeString(strings.TrimSpace(m[1]))
			}
			if r, ok := parseRange(folded); ok {
				in.Range = &r
			}
		},
	},
}

// Detect classifies message. now anchors the default quote-links window.
func Detect(message string, now time.Time) Intent {
	folded := Fold(message)
	for _, r := range rules {
		if r.match(folded) {
			in := Intent{Kind: r.kind}
			r.build(&in, message, folded, now)
			return in
		}
	}
	return Intent{Kind: None}
}

// Fold lowercases s and strips combining accents so "Télécharger" and
// "telecharger" match the same rule.
func Fold(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	out, _, err := transform.String(t, s)
	if err != nil {
		out = s
	}
	return strings.ToLower(out)
}

// parseRange uses the first two date tokens of s. Both must be valid dates.
func parseRange(s string) (Range, bool) {
	tokens := dateTokenRe.FindAllString(s, -1)
	if len(tokens) < 2 {
		return Range{}, false
	}
	from, ok1 := ParseDate(tokens[0])
	to, ok2 := ParseDate(tokens[1])
	if !ok1 || !ok2 {
		return Range{}, false
	}
	return Range{From: from, To: to}, true
}

func trailingWindow(now time.Time) Range {
	now = now.UTC()
	end := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	start := now.Add(-DefaultWindow)
	return Range{
		From: time.Date(start.Year(), start.Month(), start.Day(), 0, 0, 0, 0, time.UTC),
		To:   end,
	}
}

// ParseDate accepts YYYY-MM-DD or DD/MM/YYYY and returns midnight UTC.
func ParseDate(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if t, err := time.Parse(time.DateOnly, s); err == nil {
		return t.UTC(), true
	}
	if t, err := time.Parse("02/01/2006", s); err == nil {
		return t.UTC(), true
	}
	return time.Time{}, false
}

// EstimateVolume extracts the {"volume_m3": n} line the model is asked to
// emit. It returns nil when the line is absent.
func EstimateVolume(text string) *float64 {
	m := volumeRe.FindStringSubmatch(text)
	if m == nil {
		return nil
	}
	v, err := strconv.ParseFloat(m[1], 64)
	if err != nil {
		return nil
	}
	return &v
}

var volumeRe = regexp.MustCompile(`\{\s*"volume_m3"\s*:\s*([0-9]+(?:\.[0-9]+)?)\s*}`)
