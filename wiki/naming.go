package wiki

import (
	"strings"
	"unicode"
)

// CanonicalizeSlug turns a title into a lowercase, hyphen separated slug.
// Words are split on case transitions and digit runs, so "XMLHttpRequest"
// becomes "xml-http-request" and "my Page 2" becomes "my-page-2". Characters
// that belong to no word are dropped. The empty string maps to itself.
func CanonicalizeSlug(title string) string {
	return strings.ToLower(strings.Join(slugWords([]rune(title)), "-"))
}

// slugWords scans r left to right and, at every position, takes the first
// of these token shapes that matches:
//
//	an uppercase run of two or more letters that ends before a capitalized
//	word or at a word boundary ("XML" in "XMLHttp", "ID" in "ID card")
//	an optional capital followed by lowercase letters and trailing digits
//	a single capital
//	a run of digits
func slugWords(r []rune) []string {
	var words []string
	for i := 0; i < len(r); {
		n := acronymLen(r, i)
		if n == 0 {
			n = wordLen(r, i)
		}
		if n == 0 && isUpper(r[i]) {
			n = 1
		}
		if n == 0 {
			n = digitLen(r, i)
		}
		if n == 0 {
			i++
			continue
		}
		words = append(words, string(r[i:i+n]))
		i += n
	}
	return words
}

func acronymLen(r []rune, i int) int {
	run := 0
	for i+run < len(r) && isUpper(r[i+run]) {
		run++
	}
	// longest candidate first, backing off one capital at a time
	for n := run; n >= 2; n-- {
		end := i + n
		if capitalizedAt(r, end) || boundaryAt(r, end) {
			return n
		}
	}
	return 0
}

func wordLen(r []rune, i int) int {
	j := i
	if isUpper(r[j]) {
		j++
	}
	start := j
	for j < len(r) && isLower(r[j]) {
		j++
	}
	if j == start {
		return 0
	}
	return j + digitLen(r, j) - i
}

func digitLen(r []rune, i int) int {
	n := 0
	for i+n < len(r) && isDigit(r[i+n]) {
		n++
	}
	return n
}

// capitalizedAt reports whether a capital followed by a lowercase letter
// starts at i.
func capitalizedAt(r []rune, i int) bool {
	return i+1 < len(r) && isUpper(r[i]) && isLower(r[i+1])
}

// boundaryAt reports whether a word boundary lies between r[i-1] and r[i].
func boundaryAt(r []rune, i int) bool {
	before := i > 0 && isWordRune(r[i-1])
	after := i < len(r) && isWordRune(r[i])
	return before != after
}

func isUpper(c rune) bool { return c >= 'A' && c <= 'Z' }
func isLower(c rune) bool { return c >= 'a' && c <= 'z' }
func isDigit(c rune) bool { return c >= '0' && c <= '9' }

func isWordRune(c rune) bool {
	return c == '_' || unicode.IsLetter(c) || unicode.IsDigit(c) || unicode.Is(unicode.Mn, c)
}

// SplitAddress splits "namespace/name" into its parts. Surrounding slashes
// are ignored; an address without a separator has no namespace.
func SplitAddress(address string) (namespace string, hasNamespace bool, name string) {
	address = strings.Trim(strings.TrimSpace(address), "/")
	ns, rest, found := strings.Cut(address, "/")
	if !found {
		return "", false, address
	}
	return ns, true, rest
}

// JoinAddress is the inverse of SplitAddress.
func JoinAddress(namespace, name string) string {
	if namespace == "" {
		return name
	}
	return namespace + "/" + name
}

// DisplayTitle renders a slug for people to read: hyphens become spaces and
// every word is capitalized. Words written entirely in capitals are kept.
func DisplayTitle(slug string) string {
	r := []rune(strings.ReplaceAll(slug, "-", " "))
	for i := 0; i < len(r); {
		if !unicode.IsLetter(r[i]) {
			i++
			continue
		}
		j := i
		allUpper := true
		for j < len(r) && (unicode.IsLetter(r[j]) || unicode.IsDigit(r[j]) || r[j] == '\'') {
			if unicode.IsLower(r[j]) {
				allUpper = false
			}
			j++
		}
		if !allUpper {
			r[i] = unicode.ToUpper(r[i])
			for k := i + 1; k < j; k++ {
				r[k] = unicode.ToLower(r[k])
			}
		}
		i = j
	}
	return string(r)
}
