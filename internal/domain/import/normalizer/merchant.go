// Package normalizer cleans merchant names read from bank exports.
package normalizer

import (
	"regexp"
	"strings"
)

var (
	merchantPrefixes = []string{
		"COMPRA CARTAO ", "COMPRA CARTÃO ", "COMPRAS ", "COMPRA ",
		"PAGAMENTO ", "PAG ", "PGTO ",
		"PIX ENVIADO ", "PIX RECEBIDO ", "PIX ",
		"TED ", "DOC ", "TRANSF ", "TRANSFERENCIA ", "TRANSFERÊNCIA ",
		"DEB AUT ", "DEBITO AUT ", "VISA ", "MASTERCARD ", "ELO ",
		"PURCHASE ", "POS ",
	}

	refPattern   = regexp.MustCompile(`\s+\d{4,}$`)
	datePattern  = regexp.MustCompile(`\s+\d{1,2}/\d{1,2}/?$`)
	starPattern  = regexp.MustCompile(`^[A-Z0-9]{2,10}\*\s*`)
	spacePattern = regexp.MustCompile(`\s+`)
)

// CleanMerchant removes payment prefixes, gateway markers ("IFD*",
// "PAG*"), trailing reference numbers and trailing dates, then title-cases
// the result.
func CleanMerchant(raw string) string {
	result := spacePattern.ReplaceAllString(strings.TrimSpace(raw), " ")

	upper := strings.ToUpper(result)
	for _, prefix := range merchantPrefixes {
		if strings.HasPrefix(upper, prefix) {
			result = result[len(prefix):]
			break
		}
	}

	if loc := starPattern.FindStringIndex(strings.ToUpper(result)); loc != nil {
		result = result[loc[1]:]
	}
	result = refPattern.ReplaceAllString(result, "")
	result = datePattern.ReplaceAllString(result, "")

	return titleCase(strings.TrimSpace(result))
}

// titleCase converts a string to title case
func titleCase(s string) string {
	words := strings.Fields(s)
	for i, word := range words {
		r := []rune(word)
		words[i] = strings.ToUpper(string(r[0])) + strings.ToLower(string(r[1:]))
	}
	return strings.Join(words, " ")
}
