package extract

import (
	"regexp"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/shopspring/decimal"
)

type patternKind int

// Item patterns in priority order
const (
	patternLeadingQuantity patternKind = iota + 1
	patternTrailingQuantity
	patternLeadered
	patternPriceFirst
)

func (k patternKind) String() string {
	switch k {
	case patternLeadingQuantity:
		return "leading-quantity"
	case patternTrailingQuantity:
		return "trailing-quantity"
	case patternLeadered:
		return "leadered"
	case patternPriceFirst:
		return "price-first"
	}
	return "unknown"
}

type itemPattern struct {
	kind  patternKind
	re    *regexp.Regexp
	name  int
	price int
	qty   int // 0 when the pattern has no quantity group
}

// candidate is a raw pattern hit before validation
type candidate struct {
	kind  patternKind
	name  string
	price decimal.Decimal
	qty   int
}

func compilePatterns(currency, qtySuffix string) ([]itemPattern, error) {
	cur := currency + `?`
	amt := `(` + amountPattern + `)`
	mult := `(?:[x×*@]|` + qtySuffix + `)`
	note := `(?:\s*[(（][^()（）]*[)）])?`

	specs := []struct {
		kind             patternKind
		expr             string
		name, price, qty int
	}{
		{
			kind: patternLeadingQuantity,
			expr: `(?i)^(\d{1,2})\s*` + mult + `\s*(\S.*?)\s*` + cur + `\s*` + amt + `\s*` + cur + note + `$`,
			qty:  1, name: 2, price: 3,
		},
		{
			kind: patternTrailingQuantity,
			expr: `(?i)^(\S.*?)\s*` + cur + `\s*` + amt + `\s*` + cur + `(?:\s*` + mult + `\s*(\d{1,2}))?` + note + `$`,
			name: 1, price: 2, qty: 3,
		},
		{
			kind: patternLeadered,
			expr: `(?i)^(\S.*?)(?:\s*\.{2,}\s*|\s{2,}|\t+)` + cur + `\s*` + amt + `\s*` + cur + `(?:\s+.*)?$`,
			name: 1, price: 2,
		},
		{
			kind: patternPriceFirst,
			expr: `(?i)^` + cur + `\s*` + amt + `\s*` + cur + `\s+([^\d\s].*?)$`,
			price: 1, name: 2,
		},
	}

	out := make([]itemPattern, 0, len(specs))
	for _, s := range specs {
		re, err := regexp.Compile(s.expr)
		if err != nil {
			return nil, err
		}
		out = append(out, itemPattern{kind: s.kind, re: re, name: s.name, price: s.price, qty: s.qty})
	}
	return out, nil
}

func (p itemPattern) match(line string) (candidate, bool) {
	m := p.re.FindStringSubmatch(line)
	if m == nil {
		return candidate{}, false
	}
	price, err := parseAmount(m[p.price])
	if err != nil {
		return candidate{}, false
	}
	qty := 1
	if p.qty > 0 && m[p.qty] != "" {
		if n, err := strconv.Atoi(m[p.qty]); err == nil {
			qty = n
		}
	}
	return candidate{kind: p.kind, name: m[p.name], price: price, qty: qty}, true
}

var (
	leadingJunkRE  = regexp.MustCompile(`^[^\p{L}\p{N}]+`)
	trailingJunkRE = regexp.MustCompile(`[^\p{L}\p{M}\p{N}\s&()'\-]+$`)
	spacesRE       = regexp.MustCompile(`\s+`)
)

// cleanName strips leading non-alphanumerics and trailing punctuation, then
// collapses whitespace
func cleanName(name string) string {
	name = leadingJunkRE.ReplaceAllString(name, "")
	for {
		trimmed := strings.TrimSpace(trailingJunkRE.ReplaceAllString(name, ""))
		if trimmed == name {
			break
		}
		name = trimmed
	}
	return strings.TrimSpace(spacesRE.ReplaceAllString(name, " "))
}

// matchItem tries each pattern in priority order and returns the first
// candidate that validates. raw reports whether any pattern matched at all.
func (t *tables) matchItem(line string, maxPrice decimal.Decimal) (item LineItem, kind patternKind, raw bool, ok bool) {
	for _, p := range t.patterns {
		c, hit := p.match(line)
		if !hit {
			continue
		}
		raw = true
		if item, ok = t.validate(c, maxPrice); ok {
			return item, c.kind, true, true
		}
	}
	return LineItem{}, 0, raw, false
}

// matchesAny reports a raw pattern hit without validation
func (t *tables) matchesAny(line string) bool {
	for _, p := range t.patterns {
		if p.re.MatchString(line) {
			return true
		}
	}
	return false
}

func (t *tables) validate(c candidate, maxPrice decimal.Decimal) (LineItem, bool) {
	name := cleanName(c.name)
	if utf8.RuneCountInString(name) <= 1 {
		return LineItem{}, false
	}
	if symbolsOnlyRE.MatchString(name) || t.reserved.MatchString(name) {
		return LineItem{}, false
	}
	if !c.price.IsPositive() || c.price.GreaterThanOrEqual(maxPrice) {
		return LineItem{}, false
	}
	if c.qty < 1 {
		return LineItem{}, false
	}
	return LineItem{
		Name:     name,
		Price:    toFloat(c.price.Mul(decimal.NewFromInt(int64(c.qty)))),
		Quantity: c.qty,
	}, true
}
