package extract

import (
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/shopspring/decimal"
)

type section int

const (
	sectionHeader section = iota
	sectionSeeking
	sectionItems
	sectionFooter
)

func (s section) String() string {
	switch s {
	case sectionHeader:
		return "header"
	case sectionSeeking:
		return "seeking"
	case sectionItems:
		return "items"
	case sectionFooter:
		return "footer"
	}
	return "unknown"
}

// scanState is the accumulator threaded through the fold over lines
type scanState struct {
	section  section
	items    []LineItem
	misses   int
	name     string
	fallback string
	date     string
	tax      decimal.Decimal
	service  decimal.Decimal
}

type scanner struct {
	t        *tables
	cfg      Config
	maxPrice decimal.Decimal
}

func (sc scanner) run(lines []string) scanState {
	st := scanState{section: sectionHeader}
	for i, line := range lines {
		st = sc.step(st, i, line)
	}
	return st
}

// step consumes one line. Charges and the date are read from every line;
// items follow the section state.
func (sc scanner) step(st scanState, idx int, line string) scanState {
	st = sc.charge(st, line)
	if st.date == "" {
		if d, ok := sc.t.parseDate(line); ok {
			st.date = d
		}
	}

	var claimed bool
	switch {
	case separatorRE.MatchString(line):
		st = sc.marker(st)
		claimed = true
	case sc.t.isExcluded(line):
		st = sc.miss(st)
		claimed = true
	case sc.t.marker.MatchString(line):
		st = sc.marker(st)
		claimed = true
	default:
		st, claimed = sc.candidate(st, idx, line)
	}

	if !claimed && st.fallback == "" && hasLetter(line) {
		st.fallback = stripBrackets(line)
	}
	return st
}

func (sc scanner) marker(st scanState) scanState {
	if st.section == sectionHeader || st.section == sectionSeeking {
		st.section = sectionItems
	}
	return st
}

// candidate handles a line that is neither excluded nor a marker. It reports
// whether the line was used for the name or an item.
func (sc scanner) candidate(st scanState, idx int, line string) (scanState, bool) {
	switch st.section {
	case sectionFooter:
		return st, false
	case sectionHeader:
		st.section = sectionSeeking
		if !hasDate(line) && !sc.t.strongPrice(line) && !sc.t.matchesAny(line) {
			st.name = stripBrackets(line)
			return st, true
		}
	}

	if hasDate(line) {
		return sc.miss(st), false
	}

	item, kind, raw, ok := sc.t.matchItem(line, sc.maxPrice)
	if st.section == sectionSeeking {
		opens := idx > sc.cfg.SeekWindow || sc.t.strongPrice(line) || (ok && kind != patternPriceFirst)
		if !opens {
			return st, false
		}
		st.section = sectionItems
	}

	switch {
	case ok:
		st.items = append(st.items, item)
		st.misses = 0
		return st, true
	case raw:
		// price-shaped but rejected; still part of the item block
		st.misses = 0
		return st, true
	}

	if len(st.items) > 0 && utf8.RuneCountInString(line) > 3 && !sc.t.total.MatchString(line) {
		if extra := cleanName(line); extra != "" {
			last := &st.items[len(st.items)-1]
			last.Name = last.Name + " " + extra
			return sc.miss(st), true
		}
	}
	return sc.miss(st), false
}

func (sc scanner) miss(st scanState) scanState {
	if st.section != sectionItems || len(st.items) == 0 {
		return st
	}
	st.misses++
	if st.misses >= sc.cfg.MissLimit {
		st.section = sectionFooter
	}
	return st
}

// charge records tax and service amounts. Tax wins when a line names both;
// the last matching line wins across the receipt.
func (sc scanner) charge(st scanState, line string) scanState {
	if sc.t.chargeSkip.MatchString(line) {
		return st
	}
	isTax := sc.t.taxLine.MatchString(line)
	if !isTax && !sc.t.serviceLine.MatchString(line) {
		return st
	}
	amount, ok := rightmostAmount(line)
	if !ok {
		return st
	}
	if isTax {
		st.tax = amount
	} else {
		st.service = amount
	}
	return st
}

func hasLetter(s string) bool {
	return strings.IndexFunc(s, unicode.IsLetter) >= 0
}

var bracketReplacer = strings.NewReplacer(
	"(", "", ")", "", "[", "", "]", "", "{", "", "}", "",
	"（", "", "）", "", "【", "", "】", "", "「", "", "」", "",
)

func stripBrackets(s string) string {
	return strings.TrimSpace(spacesRE.ReplaceAllString(bracketReplacer.Replace(s), " "))
}

func splitLines(text string) []string {
	raw := strings.FieldsFunc(text, func(r rune) bool { return r == '\n' || r == '\r' })
	lines := make([]string, 0, len(raw))
	for _, l := range raw {
		if l = strings.TrimSpace(l); l != "" {
			lines = append(lines, l)
		}
	}
	return lines
}
