package extract

import (
	"regexp"
	"strings"

	"github.com/shopspring/decimal"
)

// amountPattern matches a price token. Grouped thousands come first so
// "1,234.56" and "1.234,56" are read whole.
const amountPattern = `\d{1,3}(?:[.,]\d{3})+(?:[.,]\d{1,2})?|\d+(?:[.,]\d{1,2})?`

var (
	amountRE  = regexp.MustCompile(amountPattern)
	decimalRE = regexp.MustCompile(`\d[.,]\d{2}(?:\D|$)`)
)

// parseAmount reads a matched amount token. The last separator is the
// decimal point when one or two digits follow it, otherwise every separator
// groups thousands.
func parseAmount(raw string) (decimal.Decimal, error) {
	s := strings.TrimSpace(raw)
	if last := strings.LastIndexAny(s, ".,"); last >= 0 {
		whole := strings.NewReplacer(".", "", ",", "").Replace(s[:last])
		frac := s[last+1:]
		if len(frac) == 3 {
			s = whole + frac
		} else {
			s = whole + "." + frac
		}
	}
	return decimal.NewFromString(s)
}

// amountsIn returns every amount on the line that is not a percentage, in order
func amountsIn(line string) []decimal.Decimal {
	var out []decimal.Decimal
	for _, loc := range amountRE.FindAllStringIndex(line, -1) {
		rest := strings.TrimLeft(line[loc[1]:], " ")
		if strings.HasPrefix(rest, "%") || strings.HasPrefix(rest, "％") {
			continue
		}
		d, err := parseAmount(line[loc[0]:loc[1]])
		if err != nil {
			continue
		}
		out = append(out, d)
	}
	return out
}

// rightmostAmount returns the last non-percentage amount on the line
func rightmostAmount(line string) (decimal.Decimal, bool) {
	amounts := amountsIn(line)
	if len(amounts) == 0 {
		return decimal.Zero, false
	}
	return amounts[len(amounts)-1], true
}

func toFloat(d decimal.Decimal) float64 {
	f, _ := d.Round(2).Float64()
	return f
}
