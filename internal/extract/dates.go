package extract

import (
	"regexp"
	"strconv"
	"time"
)

const isoDate = "2006-01-02"

var (
	eraDateRE   = regexp.MustCompile(`(令和|平成)\s*(\d{1,2}|元)\s*年\s*(\d{1,2})\s*月\s*(\d{1,2})\s*日`)
	cjkDateRE   = regexp.MustCompile(`(\d{4})\s*[年년]\s*(\d{1,2})\s*[月월]\s*(\d{1,2})\s*[日일]?`)
	isoDateRE   = regexp.MustCompile(`\b(\d{4})[-/.](\d{1,2})[-/.](\d{1,2})\b`)
	shortDateRE = regexp.MustCompile(`\b(\d{1,2})[-/.](\d{1,2})[-/.](\d{2}|\d{4})\b`)

	eraOffsets = map[string]int{"令和": 2018, "平成": 1988}
)

// hasDate reports whether a line carries something date-shaped
func hasDate(line string) bool {
	return eraDateRE.MatchString(line) || cjkDateRE.MatchString(line) ||
		isoDateRE.MatchString(line) || shortDateRE.MatchString(line)
}

// parseDate returns the first valid date on the line as YYYY-MM-DD
func (t *tables) parseDate(line string) (string, bool) {
	if m := eraDateRE.FindStringSubmatch(line); m != nil {
		year := 1
		if m[2] != "元" {
			year = atoi(m[2])
		}
		if d, ok := makeDate(eraOffsets[m[1]]+year, atoi(m[3]), atoi(m[4])); ok {
			return d, true
		}
	}
	if m := cjkDateRE.FindStringSubmatch(line); m != nil {
		if d, ok := makeDate(t.year(atoi(m[1])), atoi(m[2]), atoi(m[3])); ok {
			return d, true
		}
	}
	if m := isoDateRE.FindStringSubmatch(line); m != nil {
		if d, ok := makeDate(t.year(atoi(m[1])), atoi(m[2]), atoi(m[3])); ok {
			return d, true
		}
	}
	if m := shortDateRE.FindStringSubmatch(line); m != nil {
		a, b, y := atoi(m[1]), atoi(m[2]), t.shortYear(m[3])
		day, month := a, b
		if !t.dayFirst {
			day, month = b, a
		}
		if d, ok := makeDate(y, month, day); ok {
			return d, true
		}
		// the other reading when the preferred one is impossible
		if d, ok := makeDate(y, day, month); ok {
			return d, true
		}
	}
	return "", false
}

// year converts Buddhist-era years
func (t *tables) year(y int) int {
	if y > 2400 {
		return y - 543
	}
	return y
}

func (t *tables) shortYear(s string) int {
	y := atoi(s)
	if len(s) == 4 {
		return t.year(y)
	}
	// two-digit Thai years are Buddhist era, 43 being 2000 CE
	if t.buddhist && y >= 43 {
		return 2500 + y - 543
	}
	return 2000 + y
}

func makeDate(year, month, day int) (string, bool) {
	if year < 1900 || year > 2200 || month < 1 || month > 12 || day < 1 || day > 31 {
		return "", false
	}
	d := time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.UTC)
	if d.Year() != year || int(d.Month()) != month || d.Day() != day {
		return "", false
	}
	return d.Format(isoDate), true
}

func atoi(s string) int {
	n, _ := strconv.Atoi(s)
	return n
}

// normalizeDate reads a date string from a structured payload
func (t *tables) normalizeDate(s string) string {
	if s == "" {
		return ""
	}
	for _, layout := range []string{isoDate, time.RFC3339, "2006/01/02"} {
		if d, err := time.Parse(layout, s); err == nil {
			return d.Format(isoDate)
		}
	}
	if d, ok := t.parseDate(s); ok {
		return d
	}
	return ""
}
