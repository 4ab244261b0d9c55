package stream

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
)

var (
	ErrMalformedRange     = errors.New("malformed range header")
	ErrUnsatisfiableRange = errors.New("range not satisfiable")
)

var rangePattern = regexp.MustCompile(`^bytes=(\d+)-(\d*)$`)

// Range is a byte range [Start, End], both inclusive
type Range struct {
	Start int64
	End   int64
}

func (r Range) Length() int64 {
	return r.End - r.Start + 1
}

// ParseRange parses a single "bytes=<start>-<end>" range against a resource
// of size bytes. A missing end means the rest of the file and an end past
// the last byte is clamped. Suffix and multi ranges are malformed.
func ParseRange(header string, size int64) (Range, error) {
	m := rangePattern.FindStringSubmatch(header)
	if m == nil {
		return Range{}, ErrMalformedRange
	}

	start, err := strconv.ParseInt(m[1], 10, 64)
	if err != nil {
		return Range{}, ErrMalformedRange
	}

	end := size - 1
	if m[2] != "" {
		end, err = strconv.ParseInt(m[2], 10, 64)
		if err != nil {
			return Range{}, ErrMalformedRange
		}

		if end > size-1 {
			end = size - 1
		}
	}

	if start >= size || start > end {
		return Range{}, ErrUnsatisfiableRange
	}

	return Range{Start: start, End: end}, nil
}

// ContentRange formats the Content-Range header
func ContentRange(r Range, size int64) string {
	return fmt.Sprintf("bytes %d-%d/%d", r.Start, r.End, size)
}

// UnsatisfiedContentRange formats the Content-Range header of a 416 response
func UnsatisfiedContentRange(size int64) string {
	return fmt.Sprintf("bytes */%d", size)
}
