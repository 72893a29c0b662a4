package acstate

import (
	"fmt"
	"strconv"
	"strings"
)

// one element of a dotted path such as RemoteZoneInfo[2]
type segment struct {
	key     string
	indexes []int
}

func (s segment) String() string {
	str := s.key
	for _, i := range s.indexes {
		str += "[" + strconv.Itoa(i) + "]"
	}
	return str
}

// parsePath splits "A.B[2].C" into its segments
func parsePath(path string) ([]segment, error) {
	if path == "" {
		return nil, fmt.Errorf("empty path")
	}

	var segs []segment
	for _, part := range strings.Split(path, ".") {
		seg := segment{}

		open := strings.IndexByte(part, '[')
		if open < 0 {
			seg.key = part
		} else {
			seg.key = part[:open]
			rest := part[open:]
			for rest != "" {
				if rest[0] != '[' {
					return nil, fmt.Errorf("path %q: unexpected %q after index", path, rest)
				}
				end := strings.IndexByte(rest, ']')
				if end < 0 {
					return nil, fmt.Errorf("path %q: unterminated index", path)
				}
				idx, err := strconv.Atoi(rest[1:end])
				if err != nil || idx < 0 {
					return nil, fmt.Errorf("path %q: bad index %q", path, rest[1:end])
				}
				seg.indexes = append(seg.indexes, idx)
				rest = rest[end+1:]
			}
		}

		if seg.key == "" {
			return nil, fmt.Errorf("path %q: empty element", path)
		}
		segs = append(segs, seg)
	}

	return segs, nil
}

// setPath stores value at path within a decoded JSON document.  Missing
// objects are created; array indexes must already exist.
func setPath(doc map[string]interface{}, path string, value interface{}) error {
	segs, err := parsePath(path)
	if err != nil {
		return err
	}

	obj := doc
	for i, seg := range segs {
		last := i == len(segs)-1

		if len(seg.indexes) == 0 {
			if last {
				obj[seg.key] = value
				return nil
			}
			next, err := childObject(obj[seg.key], path, seg.String())
			if err != nil {
				return err
			}
			obj[seg.key] = next
			obj = next
			continue
		}

		var cur interface{} = obj[seg.key]
		for j, idx := range seg.indexes {
			arr, ok := cur.([]interface{})
			if !ok {
				return fmt.Errorf("path %q: %s is not an array", path, seg.key)
			}
			if idx >= len(arr) {
				return fmt.Errorf("path %q: index %d out of range (%d elements)", path, idx, len(arr))
			}

			if j < len(seg.indexes)-1 {
				cur = arr[idx]
				continue
			}

			if last {
				arr[idx] = value
				return nil
			}
			next, err := childObject(arr[idx], path, seg.String())
			if err != nil {
				return err
			}
			arr[idx] = next
			obj = next
		}
	}

	return nil
}

func childObject(v interface{}, path, elem string) (map[string]interface{}, error) {
	if v == nil {
		return map[string]interface{}{}, nil
	}
	m, ok := v.(map[string]interface{})
	if !ok {
		return nil, fmt.Errorf("path %q: %s is not an object", path, elem)
	}
	return m, nil
}
