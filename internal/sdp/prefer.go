// Package sdp rewrites session descriptions to express a codec preference
// without transcoding.
package sdp

import "strings"

// Rewritten descriptions shorter than this are assumed truncated and
// discarded in favor of the original input.
const minValidLen = 50

// Prefer reorders the payload-type list of the video media section so that
// payload types mapped to the named codec come first. Relative order within
// the preferred and non-preferred partitions is kept, and every attribute
// line is left untouched. The input is returned unchanged when it has no
// video section, when no payload type matches the codec, or when the rewrite
// would produce a truncated result. Prefer is pure and idempotent.
func Prefer(desc, codec string) string {
	if desc == "" || codec == "" {
		return desc
	}

	lines := splitLines(desc)
	out := make([]string, 0, len(lines))
	want := strings.ToUpper(codec)
	changed := false

	i := 0
	for i < len(lines) {
		line := lines[i]
		if !strings.HasPrefix(line, "m=video ") {
			out = append(out, line)
			i++
			continue
		}

		mParts := strings.Fields(line)
		var payloads []string
		if len(mParts) >= 4 {
			payloads = mParts[3:]
		}

		sectionStart := len(out)
		out = append(out, line)
		i++

		// Scan the section's attribute lines for payload-type to codec
		// mappings, copying them through verbatim.
		ptToCodec := make(map[string]string)
		for i < len(lines) && !strings.HasPrefix(lines[i], "m=") {
			if pt, name, ok := parseRTPMap(lines[i]); ok {
				ptToCodec[pt] = name
			}
			out = append(out, lines[i])
			i++
		}

		var preferred, others []string
		for _, pt := range payloads {
			if strings.Contains(ptToCodec[pt], want) {
				preferred = append(preferred, pt)
			} else {
				others = append(others, pt)
			}
		}
		if len(preferred) == 0 {
			continue
		}

		reordered := append(append(mParts[:3:3], preferred...), others...)
		out[sectionStart] = strings.Join(reordered, " ")
		changed = true
	}

	if !changed {
		return desc
	}

	result := strings.Join(out, "\r\n")
	if len(result) < minValidLen || !strings.Contains(result, "m=video") {
		return desc
	}
	return result
}

// parseRTPMap extracts the payload type and uppercased codec token from an
// "a=rtpmap:<pt> <codec>/<clock>" line.
func parseRTPMap(line string) (pt, codec string, ok bool) {
	rest, found := strings.CutPrefix(line, "a=rtpmap:")
	if !found {
		return "", "", false
	}
	fields := strings.Fields(rest)
	if len(fields) < 2 {
		return "", "", false
	}
	return fields[0], strings.ToUpper(fields[1]), true
}

func splitLines(s string) []string {
	lines := strings.Split(s, "\n")
	for i, l := range lines {
		lines[i] = strings.TrimSuffix(l, "\r")
	}
	return lines
}
