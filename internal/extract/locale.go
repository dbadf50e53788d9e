package extract

import (
	"fmt"
	"io"
	"os"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

// Locale is the vocabulary table for one language hint.
//
// Word lists hold RE2 fragments matched case-insensitively. Fragments that
// start or end with an ASCII letter are wrapped in word boundaries.
// ExcludeWords drop a line wherever they appear. LabelWords only drop it
// when used as a label: alone, or followed by a colon, "#", "no" or an
// amount.
type Locale struct {
	Code     string `yaml:"code"`
	Name     string `yaml:"name"`
	Currency string `yaml:"currency"`
	// Priority decides which hinted locale supplies the currency and
	// charge names when several are given. Highest wins.
	Priority int `yaml:"priority"`

	CurrencySymbols  []string `yaml:"currency_symbols"`
	TaxWords         []string `yaml:"tax_words"`
	ServiceWords     []string `yaml:"service_words"`
	TotalWords       []string `yaml:"total_words"`
	ExcludeWords     []string `yaml:"exclude_words"`
	LabelWords       []string `yaml:"label_words"`
	MarkerWords      []string `yaml:"marker_words"`
	ChargeSkipWords  []string `yaml:"charge_skip_words"`
	QuantitySuffixes []string `yaml:"quantity_suffixes"`

	TaxName     string `yaml:"tax_name"`
	ServiceName string `yaml:"service_name"`

	DayFirst    bool `yaml:"day_first"`
	BuddhistEra bool `yaml:"buddhist_era"`
}

// English vocabulary is always part of the active tables; receipts in every
// supported market mix English labels in.
var english = Locale{
	Code:            "eng",
	Name:            "English",
	Currency:        "USD",
	CurrencySymbols: []string{`S\$`, `\$`, `£`, `€`, `USD`, `EUR`, `GBP`, `SGD`},
	TaxWords:        []string{`tax`, `gst`, `vat`, `hst`, `pst`},
	ServiceWords:    []string{`service\s*-?\s*charge`, `svc\.?\s*(?:chg|charge)`, `service`, `gratuity`, `tips?`},
	TotalWords: []string{
		`(?:sub\s*-?\s*|grand\s+)?total`, `amount\s+(?:due|payable)`, `balance(?:\s+due)?`,
		`net\s+amount`, `to\s+pay`,
	},
	ExcludeWords: []string{
		`(?:bill|order|check|chk|trans)\s*(?:no|#)`, `thank\s*you`, `thanks`, `welcome\s+to`,
		`(?:please\s+)?visit\s+(?:us|again)`, `(?:please\s+)?come\s+again`, `www`, `http`, `reg\s*no`,
	},
	LabelWords: []string{
		`cash`, `change(?:\s+due)?`, `card`, `credit`, `debit`, `visa`, `master\s*card`, `amex`,
		`payment`, `paid`, `tender(?:ed)?`, `rounding`, `table`, `tbl`, `server`, `cashier`, `waiter`,
		`guests?`, `pax`, `covers?`, `date`, `time`, `receipt`, `invoice`, `tel`, `phone`, `fax`,
		`address`, `e-?mail`, `incl(?:\.|uded|uding|usive)?`,
	},
	MarkerWords: []string{
		`items?`, `description`, `desc`, `qty`, `quantity`, `price`, `amount`, `amt`, `food`, `foods`,
		`drinks?`, `beverages?`, `appeti[sz]ers?`, `starters?`, `mains?`, `main\s+courses?`, `entrees?`,
		`sides?`, `desserts?`, `menu`, `kitchen`, `bar`, `breakfast`, `lunch`, `dinner`, `specials?`,
		`combos?`, `orders?`,
	},
	ChargeSkipWords:  []string{`incl(?:\.|uded|uding|usive)?`, `excl(?:\.|uded|uding|usive)?`, `before`, `pre-?tax`, `w/o`, `without`},
	QuantitySuffixes: []string{`pcs?\.?`, `pieces?`},
	TaxName:          "Tax",
	ServiceName:      "Service Charge",
	DayFirst:         true,
}

var builtinLocales = []Locale{
	english,
	{
		Code:             "tha",
		Name:             "Thai",
		Currency:         "THB",
		Priority:         50,
		CurrencySymbols:  []string{`฿`, `THB`, `บาท`},
		TaxWords:         []string{`ภาษี(?:มูลค่าเพิ่ม)?`, `VAT`},
		ServiceWords:     []string{`ค่าบริการ`, `เซอร์วิสชาร์จ`},
		TotalWords:       []string{`ยอดรวม`, `รวมทั้งสิ้น`, `ทั้งหมด`, `รวม`},
		ExcludeWords:     []string{`เงินสด`, `เงินทอน`, `ทอน`, `โต๊ะ`, `ใบเสร็จ`, `ขอบคุณ`, `วันที่`, `เวลา`, `พนักงาน`, `โทร`},
		MarkerWords:      []string{`รายการ`, `อาหาร`, `เครื่องดื่ม`},
		ChargeSkipWords:  []string{`รวมภาษี`, `ราคารวม`},
		QuantitySuffixes: []string{`ชิ้น`, `จาน`, `ที่`},
		TaxName:          "ภาษีมูลค่าเพิ่ม",
		ServiceName:      "ค่าบริการ",
		DayFirst:         true,
		BuddhistEra:      true,
	},
	{
		Code:             "jpn",
		Name:             "Japanese",
		Currency:         "JPY",
		Priority:         40,
		CurrencySymbols:  []string{`¥`, `￥`, `円`, `JPY`},
		TaxWords:         []string{`消費税`, `付加価値税`, `税`},
		ServiceWords:     []string{`サ[ーー―-]ビス料`, `サ料`, `奉仕料`, `チップ`},
		TotalWords:       []string{`合計`, `小計`, `総額`, `会計`, `お釣り?`},
		ExcludeWords:     []string{`お預り?`, `預り`, `釣銭`, `現金`, `領収`, `レシート`, `ありがとう`, `電話`, `テーブル`, `担当`, `人数`},
		MarkerWords:      []string{`品名`, `メニュー`, `ご注文`},
		ChargeSkipWords:  []string{`税込`, `税抜`, `内税`, `内消費税`, `対象`},
		QuantitySuffixes: []string{`個`, `点`, `セット`, `set`},
		TaxName:          "消費税",
		ServiceName:      "サービス料",
	},
	{
		Code:             "kor",
		Name:             "Korean",
		Currency:         "KRW",
		Priority:         30,
		CurrencySymbols:  []string{`₩`, `원`, `KRW`},
		TaxWords:         []string{`부가세`, `부가가치세`, `세금`},
		ServiceWords:     []string{`봉사료`, `서비스\s*요금`},
		TotalWords:       []string{`합계`, `소계`, `총액`, `결제\s*금액`},
		ExcludeWords:     []string{`현금`, `카드`, `거스름돈`, `영수증`, `감사합니다`, `전화`, `테이블`},
		MarkerWords:      []string{`품목`, `메뉴`},
		ChargeSkipWords:  []string{`포함`},
		QuantitySuffixes: []string{`개`},
		TaxName:          "부가세",
		ServiceName:      "봉사료",
	},
	{
		Code:             "chi_sim",
		Name:             "Chinese (Simplified)",
		Currency:         "CNY",
		Priority:         20,
		CurrencySymbols:  []string{`¥`, `￥`, `元`, `RMB`, `CNY`},
		TaxWords:         []string{`税额`, `税`},
		ServiceWords:     []string{`服务费`},
		TotalWords:       []string{`合计`, `小计`, `总计`, `应付`, `实收`},
		ExcludeWords:     []string{`现金`, `找零`, `收银`, `桌号`, `谢谢`, `电话`, `发票`},
		MarkerWords:      []string{`品名`, `菜品`, `菜单`},
		ChargeSkipWords:  []string{`含税`},
		QuantitySuffixes: []string{`份`, `个`},
		TaxName:          "税",
		ServiceName:      "服务费",
	},
	{
		Code:             "chi_tra",
		Name:             "Chinese (Traditional)",
		Currency:         "CNY",
		Priority:         20,
		CurrencySymbols:  []string{`¥`, `￥`, `元`, `NT\$`},
		TaxWords:         []string{`稅額`, `稅`},
		ServiceWords:     []string{`服務費`},
		TotalWords:       []string{`合計`, `小計`, `總計`, `應付`, `實收`},
		ExcludeWords:     []string{`現金`, `找零`, `收銀`, `桌號`, `謝謝`, `電話`, `發票`},
		MarkerWords:      []string{`品名`, `菜單`},
		ChargeSkipWords:  []string{`含稅`},
		QuantitySuffixes: []string{`份`, `個`},
		TaxName:          "稅",
		ServiceName:      "服務費",
	},
	{
		Code:            "vie",
		Name:            "Vietnamese",
		CurrencySymbols: []string{`₫`, `VND`},
		TaxWords:        []string{`thuế`},
		ServiceWords:    []string{`phí\s+dịch\s+vụ`},
		TotalWords:      []string{`tổng\s+cộng`, `thành\s+tiền`},
		ExcludeWords:    []string{`cảm\s+ơn`},
		LabelWords:      []string{`tiền\s+mặt`},
	},
	{
		Code:            "fra",
		Name:            "French",
		CurrencySymbols: []string{`€`},
		TaxWords:        []string{`tva`},
		ServiceWords:    []string{`service`, `pourboire`},
		TotalWords:      []string{`total`, `sous-total`, `à\s+payer`},
		ExcludeWords:    []string{`merci`},
		LabelWords:      []string{`espèces`, `carte`, `rendu`},
	},
	{
		Code:            "spa",
		Name:            "Spanish",
		CurrencySymbols: []string{`€`},
		TaxWords:        []string{`iva`, `impuesto`},
		ServiceWords:    []string{`servicio`, `propina`},
		TotalWords:      []string{`total`, `subtotal`},
		ExcludeWords:    []string{`gracias`},
		LabelWords:      []string{`efectivo`, `cambio`, `tarjeta`, `mesa`},
	},
	{
		Code:            "deu",
		Name:            "German",
		CurrencySymbols: []string{`€`},
		TaxWords:        []string{`mwst\.?`, `ust\.?`},
		ServiceWords:    []string{`trinkgeld`, `bedienung`},
		TotalWords:      []string{`summe`, `gesamt`, `zwischensumme`},
		ExcludeWords:    []string{`danke`},
		LabelWords:      []string{`bar`, `rückgeld`, `karte`, `tisch`},
		ChargeSkipWords: []string{`enthalten`, `inkl\.?`},
	},
	{
		Code:            "ita",
		Name:            "Italian",
		CurrencySymbols: []string{`€`},
		TaxWords:        []string{`iva`},
		ServiceWords:    []string{`servizio`, `coperto`, `mancia`},
		TotalWords:      []string{`totale`, `subtotale`},
		ExcludeWords:    []string{`grazie`},
		LabelWords:      []string{`contanti`, `resto`, `tavolo`},
	},
}

// Registry maps language hints to their vocabulary tables
type Registry struct {
	locales map[string]Locale
}

// NewRegistry builds a registry holding the built-in locales, then applies
// extra locales in order. An extra locale with a known code replaces it.
func NewRegistry(extra ...Locale) (*Registry, error) {
	r := &Registry{locales: make(map[string]Locale, len(builtinLocales)+len(extra))}
	for _, l := range builtinLocales {
		r.locales[l.Code] = l
	}
	for _, l := range extra {
		if err := r.Register(l); err != nil {
			return nil, err
		}
	}
	return r, nil
}

// Register adds or replaces a locale
func (r *Registry) Register(l Locale) error {
	l.Code = normalizeHint(l.Code)
	if l.Code == "" {
		return fmt.Errorf("locale code is required")
	}
	r.locales[l.Code] = l
	return nil
}

// Lookup returns the locale registered for a hint
func (r *Registry) Lookup(hint string) (Locale, bool) {
	l, ok := r.locales[normalizeHint(hint)]
	return l, ok
}

// Languages lists registered locales sorted by code
func (r *Registry) Languages() []Locale {
	out := make([]Locale, 0, len(r.locales))
	for _, l := range r.locales {
		out = append(out, l)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Code < out[j].Code })
	return out
}

// resolve returns the locales selected by hints, primary first. Unknown
// hints are ignored and English is used when nothing matches.
func (r *Registry) resolve(hints []string) []Locale {
	var selected []Locale
	seen := make(map[string]bool)
	for _, h := range hints {
		l, ok := r.Lookup(h)
		if !ok || seen[l.Code] {
			continue
		}
		seen[l.Code] = true
		selected = append(selected, l)
	}
	if len(selected) == 0 {
		selected = append(selected, r.locales[english.Code])
	}
	sort.SliceStable(selected, func(i, j int) bool { return selected[i].Priority > selected[j].Priority })
	return selected
}

type localeFile struct {
	Locales []Locale `yaml:"locales"`
}

// LoadLocales reads locale tables from YAML:
//
//	locales:
//	  - code: msa
//	    currency: MYR
//	    tax_words: [sst, cukai]
func LoadLocales(r io.Reader) ([]Locale, error) {
	var f localeFile
	if err := yaml.NewDecoder(r).Decode(&f); err != nil {
		if err == io.EOF {
			return nil, nil
		}
		return nil, fmt.Errorf("decoding locales: %w", err)
	}
	for i, l := range f.Locales {
		if strings.TrimSpace(l.Code) == "" {
			return nil, fmt.Errorf("locale %d: code is required", i)
		}
	}
	return f.Locales, nil
}

// LoadLocalesFile reads locale tables from a YAML file
func LoadLocalesFile(path string) ([]Locale, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening locales file: %w", err)
	}
	defer f.Close()
	return LoadLocales(f)
}

func normalizeHint(h string) string {
	return strings.ToLower(strings.TrimSpace(h))
}
