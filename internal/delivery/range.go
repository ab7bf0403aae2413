// Package delivery serves source bytes to clients, either directly with
// range support or through cached delivery descriptors.
package delivery

import (
	"fmt"
	"strconv"
	"strings"
)

// ResolvedRange describes the byte window a content response covers.
type ResolvedRange struct {
	Offset int64
	Length int64
	Total  int64
	// Partial is true when the response is 206 with a Content-Range
	// header. A range covering the whole object is served as a plain 200.
	Partial bool
}

// ContentRange formats the Content-Range header value for a partial response.
func (r ResolvedRange) ContentRange() string {
	return fmt.Sprintf("bytes %d-%d/%d", r.Offset, r.Offset+r.Length-1, r.Total)
}

// ResolveRange resolves a Range request header against an object of the given
// total size. The first satisfiable range wins; multi-range requests are not
// supported beyond that. A missing, malformed or unsatisfiable header, or a
// range that covers the whole object, resolves to a full response.
func ResolveRange(header string, total int64) ResolvedRange {
	full := ResolvedRange{Offset: 0, Length: total, Total: total}

	const prefix = "bytes="
	if !strings.HasPrefix(header, prefix) {
		return full
	}

	for _, spec := range strings.Split(header[len(prefix):], ",") {
		spec = strings.TrimSpace(spec)
		offset, length, ok := resolveSpec(spec, total)
		if !ok {
			continue
		}
		if offset == 0 && length == total {
			return full
		}
		return ResolvedRange{Offset: offset, Length: length, Total: total, Partial: true}
	}

	return full
}

// resolveSpec resolves a single range spec ("a-b", "a-" or "-n") to an
// offset and length, reporting whether it is satisfiable.
func resolveSpec(spec string, total int64) (int64, int64, bool) {
	startStr, endStr, ok := strings.Cut(spec, "-")
	if !ok {
		return 0, 0, false
	}

	if startStr == "" {
		// Suffix range: last n bytes.
		n, err := strconv.ParseInt(endStr, 10, 64)
		if err != nil || n <= 0 || total == 0 {
			return 0, 0, false
		}
		if n > total {
			n = total
		}
		return total - n, n, true
	}

	start, err := strconv.ParseInt(startStr, 10, 64)
	if err != nil || start < 0 || start >= total {
		return 0, 0, false
	}

	if endStr == "" {
		return start, total - start, true
	}

	end, err := strconv.ParseInt(endStr, 10, 64)
	if err != nil || end < start {
		return 0, 0, false
	}
	if end >= total {
		end = total - 1
	}
	return start, end - start + 1, true
}
