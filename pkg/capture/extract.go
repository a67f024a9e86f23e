package capture

import (
	"net/url"
	"strings"

	"github.com/pkg/errors"
)

// Predicate decides whether a rule applies to a URL. Predicates work on the raw URL string,
// so the placement of substrings is significant.
type Predicate func(rawURL string) bool

// Extractor derives the bucket identifier from a URL that satisfied a rule's predicate.
type Extractor func(rawURL string) (string, error)

var (
	ErrDelimiterMissing = errors.New("delimiter not found")
	ErrEmptyID          = errors.New("extracted id is empty")
	ErrUnsafeID         = errors.New("extracted id cannot be used in a file name")
)

// Contains matches URLs containing every one of the given substrings.
func Contains(substrs ...string) Predicate {
	return func(rawURL string) bool {
		for _, substr := range substrs {
			if !strings.Contains(rawURL, substr) {
				return false
			}
		}

		return true
	}
}

// ContainsAny matches URLs containing at least one of the given substrings.
func ContainsAny(substrs ...string) Predicate {
	return func(rawURL string) bool {
		for _, substr := range substrs {
			if strings.Contains(rawURL, substr) {
				return true
			}
		}

		return false
	}
}

// Excludes matches URLs that contain none of the given substrings. This is a raw substring
// test: Excludes("/markets/") rejects any URL with that text anywhere, query included.
func Excludes(substrs ...string) Predicate {
	return func(rawURL string) bool {
		return !ContainsAny(substrs...)(rawURL)
	}
}

// QueryContains matches URLs where at least one value of the query parameter contains
// marker.
func QueryContains(param, marker string) Predicate {
	return func(rawURL string) bool {
		return len(filterContaining(QueryValues(rawURL, param), marker)) > 0
	}
}

// AllOf matches when every predicate matches. An empty AllOf matches everything.
func AllOf(predicates ...Predicate) Predicate {
	return func(rawURL string) bool {
		for _, predicate := range predicates {
			if !predicate(rawURL) {
				return false
			}
		}

		return true
	}
}

// Between extracts the text following the first occurrence of after, up to the next
// occurrence of until or the end of the URL.
//
//	Between("/matchups/", "/")("https://host/0.1/matchups/123/related") // "123"
func Between(after, until string) Extractor {
	return func(rawURL string) (string, error) {
		idx := strings.Index(rawURL, after)
		if idx < 0 {
			return "", errors.Wrapf(ErrDelimiterMissing, "no %q in url", after)
		}

		return cutAt(rawURL[idx+len(after):], until), nil
	}
}

// QueryMarker extracts an id from the values of a query parameter. Only values containing
// filter are considered, and the id is taken from the first of those that contains marker:
// the text after marker up to the next until.
//
//	QueryMarker("pd", "I3", "#E", "#")("https://host/api/coupon?pd=I3%23E987%23x") // "987"
func QueryMarker(param, filter, marker, until string) Extractor {
	return func(rawURL string) (string, error) {
		for _, value := range filterContaining(QueryValues(rawURL, param), filter) {
			if idx := strings.Index(value, marker); idx >= 0 {
				return cutAt(value[idx+len(marker):], until), nil
			}
		}

		return "", errors.Wrapf(ErrDelimiterMissing,
			"no %q in %s values containing %q", marker, param, filter)
	}
}

// QueryValues returns the decoded, non-empty values of a query parameter. Only the text
// between the first '?' and any fragment is parsed. Pairs are split on '&' alone, and a
// malformed escape is kept as literal text rather than discarding its pair.
func QueryValues(rawURL, param string) []string {
	idx := strings.Index(rawURL, "?")
	if idx < 0 {
		return nil
	}

	var result []string
	for _, pair := range strings.Split(cutAt(rawURL[idx+1:], "#"), "&") {
		key, value := pair, ""
		if eq := strings.Index(pair, "="); eq >= 0 {
			key, value = pair[:eq], pair[eq+1:]
		}

		if queryUnescape(key) != param {
			continue
		}

		if value = queryUnescape(value); value != "" {
			result = append(result, value)
		}
	}

	return result
}

// queryUnescape decodes a query component, leaving any invalid escape untouched.
func queryUnescape(s string) string {
	if unescaped, err := url.QueryUnescape(s); err == nil {
		return unescaped
	}

	var buf strings.Builder
	for i := 0; i < len(s); i++ {
		switch {
		case s[i] == '+':
			buf.WriteByte(' ')
		case s[i] == '%' && i+2 < len(s) && isHex(s[i+1]) && isHex(s[i+2]):
			buf.WriteByte(unhex(s[i+1])<<4 | unhex(s[i+2]))
			i += 2
		default:
			buf.WriteByte(s[i])
		}
	}

	return buf.String()
}

func isHex(c byte) bool {
	return '0' <= c && c <= '9' || 'a' <= c && c <= 'f' || 'A' <= c && c <= 'F'
}

func unhex(c byte) byte {
	switch {
	case '0' <= c && c <= '9':
		return c - '0'
	case 'a' <= c && c <= 'f':
		return c - 'a' + 10
	}

	return c - 'A' + 10
}

// validateID rejects identifiers that would not produce a single, stable file name inside
// the bucket directory.
func validateID(id string) error {
	switch {
	case id == "":
		return ErrEmptyID
	case id == "." || id == "..":
		return errors.Wrapf(ErrUnsafeID, "%q", id)
	case strings.ContainsAny(id, "/\\\x00"):
		return errors.Wrapf(ErrUnsafeID, "%q", id)
	}

	return nil
}

func filterContaining(values []string, marker string) []string {
	var result []string
	for _, value := range values {
		if strings.Contains(value, marker) {
			result = append(result, value)
		}
	}

	return result
}

// cutAt truncates s at the first occurrence of sep, if any.
func cutAt(s, sep string) string {
	if sep == "" {
		return s
	}

	if end := strings.Index(s, sep); end >= 0 {
		return s[:end]
	}

	return s
}
