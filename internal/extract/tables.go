package extract

import (
	"fmt"
	"regexp"
	"sort"
	"strings"
	"unicode"
	"unicode/utf8"
)

// tables is the compiled, read-only vocabulary for one hint set
type tables struct {
	currency    string
	taxName     string
	serviceName string
	dayFirst    bool
	buddhist    bool

	taxLine     *regexp.Regexp
	serviceLine *regexp.Regexp
	chargeSkip  *regexp.Regexp
	total       *regexp.Regexp
	exclude     *regexp.Regexp
	label       *regexp.Regexp
	marker      *regexp.Regexp
	reserved    *regexp.Regexp
	currencyRE  *regexp.Regexp
	patterns    []itemPattern
}

var (
	separatorRE   = regexp.MustCompile(`^[-=]{3,}[-=\s]*$`)
	symbolsOnlyRE = regexp.MustCompile(`^[\p{N}\p{P}\p{S}\s]+$`)
)

func compileTables(locales []Locale) (*tables, error) {
	primary := locales[0]
	var all []Locale
	all = append(all, locales...)
	if !containsCode(locales, english.Code) {
		all = append(all, english)
	}

	t := &tables{
		currency:    english.Currency,
		taxName:     english.TaxName,
		serviceName: english.ServiceName,
		dayFirst:    primary.DayFirst,
		buddhist:    primary.BuddhistEra,
	}
	for _, l := range locales {
		if l.Currency != "" {
			t.currency = l.Currency
			break
		}
	}
	if primary.TaxName != "" {
		t.taxName = primary.TaxName
	}
	if primary.ServiceName != "" {
		t.serviceName = primary.ServiceName
	}

	gather := func(pick func(Locale) []string) []string {
		var out []string
		for _, l := range all {
			out = append(out, pick(l)...)
		}
		return out
	}
	taxWords := alternation(gather(func(l Locale) []string { return l.TaxWords }), true)
	serviceWords := alternation(gather(func(l Locale) []string { return l.ServiceWords }), true)
	totalWords := alternation(gather(func(l Locale) []string { return l.TotalWords }), true)
	excludeWords := alternation(gather(func(l Locale) []string { return l.ExcludeWords }), true)
	labelWords := alternation(gather(func(l Locale) []string { return l.LabelWords }), true)
	markerWords := alternation(gather(func(l Locale) []string { return l.MarkerWords }), true)
	skipWords := alternation(gather(func(l Locale) []string { return l.ChargeSkipWords }), true)
	currency := alternation(gather(func(l Locale) []string { return l.CurrencySymbols }), false)
	qtySuffix := alternation(gather(func(l Locale) []string { return l.QuantitySuffixes }), false)

	var err error
	compile := func(expr string) *regexp.Regexp {
		if err != nil {
			return nil
		}
		var re *regexp.Regexp
		re, err = regexp.Compile(expr)
		return re
	}

	// a label only counts when nothing but punctuation separates it from an
	// amount, a colon or the end of the line
	labelTail := `[^\p{L}]*(?:$|[:：]|\d|` + currency + `)`
	t.taxLine = compile(`(?i)` + taxWords + labelTail)
	t.serviceLine = compile(`(?i)` + serviceWords + labelTail)
	t.chargeSkip = compile(`(?i)` + skipWords)
	t.total = compile(`(?i)` + totalWords)
	t.exclude = compile(`(?i)` + totalWords + `|` + excludeWords)
	t.label = compile(`(?i)` + labelWords + `[^\p{L}]*(?:$|[:：#]|\d|\bno\b|` + currency + `)`)
	t.marker = compile(`(?i)^[^\p{L}\p{N}]*` + markerWords + `(?:[^\p{L}\p{N}]+` + markerWords + `)*[^\p{L}\p{N}]*$`)
	t.reserved = compile(`(?i)^(?:total|subtotal|no|number|#|table|pax|person|guest|` + totalWords + `)$`)
	t.currencyRE = compile(`(?i)` + currency)
	if err != nil {
		return nil, fmt.Errorf("compiling vocabulary: %w", err)
	}

	t.patterns, err = compilePatterns(currency, qtySuffix)
	if err != nil {
		return nil, fmt.Errorf("compiling item patterns: %w", err)
	}
	return t, nil
}

// alternation joins fragments longest first. When bounded, ASCII fragments
// are wrapped in word boundaries and mixed-script fragments get a boundary
// on any edge that is an ASCII letter.
func alternation(words []string, bounded bool) string {
	seen := make(map[string]bool, len(words))
	uniq := make([]string, 0, len(words))
	for _, w := range words {
		w = strings.TrimSpace(w)
		if w == "" || seen[w] {
			continue
		}
		seen[w] = true
		uniq = append(uniq, w)
	}
	if len(uniq) == 0 {
		// matches nothing
		return `(?:[^\x00-\x{10FFFF}])`
	}
	sort.SliceStable(uniq, func(i, j int) bool { return len(uniq[i]) > len(uniq[j]) })

	parts := make([]string, 0, len(uniq))
	for _, w := range uniq {
		if bounded {
			w = bound(w)
		} else {
			w = "(?:" + w + ")"
		}
		parts = append(parts, w)
	}
	return "(?:" + strings.Join(parts, "|") + ")"
}

func bound(w string) string {
	ascii := true
	for _, r := range w {
		if r > unicode.MaxASCII {
			ascii = false
			break
		}
	}
	if ascii {
		return `\b(?:` + w + `)\b`
	}
	first, _ := utf8.DecodeRuneInString(w)
	last, _ := utf8.DecodeLastRuneInString(w)
	out := "(?:" + w + ")"
	if isASCIILetter(first) {
		out = `\b` + out
	}
	if isASCIILetter(last) {
		out += `\b`
	}
	return out
}

func isASCIILetter(r rune) bool {
	return (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z')
}

func containsCode(locales []Locale, code string) bool {
	for _, l := range locales {
		if l.Code == code {
			return true
		}
	}
	return false
}

// strongPrice reports a currency symbol or a two-place decimal on the line
func (t *tables) strongPrice(line string) bool {
	return t.currencyRE.MatchString(line) || decimalRE.MatchString(line)
}

// isChargeLine reports a tax or service label followed by an amount
func (t *tables) isChargeLine(line string) bool {
	return t.taxLine.MatchString(line) || t.serviceLine.MatchString(line)
}

func (t *tables) isExcluded(line string) bool {
	return t.isChargeLine(line) || t.exclude.MatchString(line) || t.label.MatchString(line) ||
		symbolsOnlyRE.MatchString(line)
}

func (t *tables) isMarker(line string) bool {
	return separatorRE.MatchString(line) || t.marker.MatchString(line)
}
