package audit

import (
	"strings"
	"time"
	"unicode/utf8"

	"github.com/shopspring/decimal"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
	"golang.org/x/text/number"
)

const (
	defaultDateLayout     = "02/01/2006 15:04"
	defaultCurrencySymbol = "$"
	emptyValue            = "-"
)

var (
	currencyThreshold   = decimal.NewFromInt(1000)
	percentageThreshold = decimal.NewFromInt(100)

	isoLayouts = []string{
		time.RFC3339Nano,
		time.RFC3339,
		"2006-01-02T15:04:05",
		"2006-01-02 15:04:05",
		"2006-01-02",
	}
)

// FormatterOption настраивает Formatter.
type FormatterOption func(*Formatter)

// WithLanguage задаёт локаль для чисел и регистра.
func WithLanguage(tag language.Tag) FormatterOption {
	return func(f *Formatter) { f.tag = tag }
}

// WithLocation задаёт часовой пояс для дат.
func WithLocation(loc *time.Location) FormatterOption {
	return func(f *Formatter) {
		if loc != nil {
			f.loc = loc
		}
	}
}

// WithCurrencySymbol задаёт символ валюты.
func WithCurrencySymbol(symbol string) FormatterOption {
	return func(f *Formatter) { f.currency = symbol }
}

// WithDateLayout задаёт формат даты и времени.
func WithDateLayout(layout string) FormatterOption {
	return func(f *Formatter) {
		if layout != "" {
			f.dateLayout = layout
		}
	}
}

// Formatter превращает значения снимка в читаемый текст.
type Formatter struct {
	tag        language.Tag
	loc        *time.Location
	currency   string
	dateLayout string

	printer *message.Printer
}

// NewFormatter создаёт форматтер. По умолчанию испанская локаль и UTC.
func NewFormatter(opts ...FormatterOption) *Formatter {
	f := &Formatter{
		tag:        language.Spanish,
		loc:        time.UTC,
		currency:   defaultCurrencySymbol,
		dateLayout: defaultDateLayout,
	}
	for _, opt := range opts {
		opt(f)
	}
	f.printer = message.NewPrinter(f.tag)
	return f
}

// Value форматирует значение поля:
// ISO-дата → локальные дата и время; число с точкой и |v| ≥ 1000 → валюта;
// число < 100 → процент; иначе первая буква заглавная.
func (f *Formatter) Value(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return emptyValue
	}
	if t, ok := parseISO(raw); ok {
		return t.In(f.loc).Format(f.dateLayout)
	}
	if d, err := decimal.NewFromString(raw); err == nil {
		switch {
		case strings.Contains(raw, ".") && d.Abs().GreaterThanOrEqual(currencyThreshold):
			return f.Currency(d)
		case d.LessThan(percentageThreshold):
			return f.printer.Sprint(number.Decimal(d.InexactFloat64())) + "%"
		}
	}
	return f.capitalize(raw)
}

// Currency форматирует сумму с разделителями локали и двумя знаками.
func (f *Formatter) Currency(d decimal.Decimal) string {
	sign := ""
	if d.IsNegative() {
		sign = "-"
		d = d.Abs()
	}
	return sign + f.currency + f.printer.Sprintf("%.2f", d.InexactFloat64())
}

// Count форматирует целое количество без процентов и валюты.
func (f *Formatter) Count(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "0"
	}
	return raw
}

func (f *Formatter) capitalize(s string) string {
	r, size := utf8.DecodeRuneInString(s)
	if r == utf8.RuneError {
		return s
	}
	// cases.Caser хранит состояние, поэтому создаётся на вызов.
	return cases.Upper(f.tag).String(string(r)) + s[size:]
}

func parseISO(raw string) (time.Time, bool) {
	// Короткие строки вроде "2024" не считаем датой.
	if len(raw) < len("2006-01-02") || raw[4] != '-' {
		return time.Time{}, false
	}
	for _, layout := range isoLayouts {
		if t, err := time.Parse(layout, raw); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}
