package ember

import (
	"math"
	"strconv"
	"strings"

	"github.com/tidwall/gjson"

	"github.com/roach88/ember/internal/feed"
)

// AmountMsats extracts the paid amount of a receipt in millisatoshis.
//
// Sources, in order: the receipt's own amount tag, the amount tag of the
// request embedded in its description tag, then the bolt11 invoice amount.
// Returns false when none yields a positive amount.
func AmountMsats(receipt feed.Event) (int64, bool) {
	if v, ok := receipt.Tag("amount"); ok {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil && n > 0 {
			return n, true
		}
	}

	if desc, ok := receipt.Tag("description"); ok && gjson.Valid(desc) {
		amount := gjson.Get(desc, `tags.#(0=="amount").1`)
		if n, err := strconv.ParseInt(amount.String(), 10, 64); err == nil && n > 0 {
			return n, true
		}
	}

	if invoice, ok := receipt.Tag("bolt11"); ok {
		if n, ok := Bolt11Msats(invoice); ok {
			return n, true
		}
	}
	return 0, false
}

// Bolt11Msats decodes the amount from a BOLT 11 invoice's human-readable
// part, e.g. lnbc2500u1... is 250000000 msats.
func Bolt11Msats(invoice string) (int64, bool) {
	s := strings.ToLower(strings.TrimSpace(invoice))
	s = strings.TrimPrefix(s, "lightning:")

	sep := strings.LastIndexByte(s, '1')
	if sep < 0 || !strings.HasPrefix(s, "ln") {
		return 0, false
	}
	hrp := s[2:sep]

	// Skip the network prefix (bc, tb, bcrt, sb...) up to the first digit.
	i := strings.IndexAny(hrp, "0123456789")
	if i < 0 {
		return 0, false
	}
	amount := hrp[i:]
	if amount == "" {
		return 0, false
	}

	// Values per multiplier are in msats; one bitcoin is 1e11 msats.
	var perUnit, divisor int64 = 100_000_000_000, 1
	last := amount[len(amount)-1]
	switch last {
	case 'm':
		perUnit = 100_000_000
	case 'u':
		perUnit = 100_000
	case 'n':
		perUnit = 100
	case 'p':
		perUnit, divisor = 1, 10
	default:
		if last < '0' || last > '9' {
			return 0, false
		}
	}
	if last < '0' || last > '9' {
		amount = amount[:len(amount)-1]
	}

	n, err := strconv.ParseInt(amount, 10, 64)
	if err != nil || n <= 0 {
		return 0, false
	}
	if divisor > 1 && n%divisor != 0 {
		return 0, false
	}
	if n > math.MaxInt64/perUnit {
		return 0, false
	}
	return n * perUnit / divisor, true
}
