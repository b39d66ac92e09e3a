package scanner

import (
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/shopspring/decimal"
)

var ErrUnparseable = errors.New("scanner: amount is unparseable")

const (
	currencyTag = `(?:\$|£|€|¥|CAD|AUD|USD|EUR|GBP|JPY)`
	number      = `(\d[\d,]*(?:\.\d{1,2})?)`
)

var (
	amountPrefixed = regexp.MustCompile(currencyTag + `\s?` + number)
	amountSuffixed = regexp.MustCompile(number + `\s?` + currencyTag)
)

// ExtractAmount достаёт сумму с валютой из текста: символ до или после числа,
// запятые как разделители тысяч, до двух знаков после точки. Хвост вроде
// "(per unit)" игнорируется.
func ExtractAmount(text string) (decimal.Decimal, error) {
	text = strings.TrimSpace(text)
	for _, re := range []*regexp.Regexp{amountPrefixed, amountSuffixed} {
		m := re.FindStringSubmatch(text)
		if len(m) < 2 {
			continue
		}
		d, err := decimal.NewFromString(strings.ReplaceAll(m[1], ",", ""))
		if err != nil {
			continue
		}
		return d, nil
	}
	return decimal.Zero, fmt.Errorf("%w: %q", ErrUnparseable, text)
}
