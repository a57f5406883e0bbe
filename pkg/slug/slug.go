// Package slug turns display names into URL slugs and coupon codes.
package slug

import (
	"crypto/rand"
	"regexp"
	"strings"
)

var (
	nonAlnum = regexp.MustCompile(`[^a-z0-9]+`)

	turkish = strings.NewReplacer(
		"ç", "c", "ğ", "g", "ı", "i", "ö", "o", "ş", "s", "ü", "u",
		"Ç", "c", "Ğ", "g", "İ", "i", "Ö", "o", "Ş", "s", "Ü", "u",
	)
)

// codeAlphabet drops characters that are easy to misread: 0/O and 1/I/L.
const codeAlphabet = "ABCDEFGHJKMNPQRSTUVWXYZ23456789"

// Generate lowercases name, transliterates Turkish letters and joins the
// alphanumeric runs with single hyphens: "Yaz İndirimi %20" → "yaz-indirimi-20".
func Generate(name string) string {
	s := turkish.Replace(strings.TrimSpace(name))
	s = strings.ToLower(s)
	return strings.Trim(nonAlnum.ReplaceAllString(s, "-"), "-")
}

// CouponCode derives an upper-case code from name, at most maxStem characters
// long, followed by a random suffix of n characters: "Summer Sale" →
// "SUMMER-SALE-7KQ2". An empty name yields only the suffix.
func CouponCode(name string, maxStem, n int) string {
	stem := strings.ToUpper(Generate(name))
	if len(stem) > maxStem {
		stem = strings.TrimRight(stem[:maxStem], "-")
	}
	suffix := randomSuffix(n)
	if stem == "" {
		return suffix
	}
	return stem + "-" + suffix
}

func randomSuffix(n int) string {
	buf := make([]byte, n)
	_, _ = rand.Read(buf)
	for i, b := range buf {
		buf[i] = codeAlphabet[int(b)%len(codeAlphabet)]
	}
	return string(buf)
}
