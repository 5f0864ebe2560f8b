package manifest

import (
	"fmt"
	"math"
	"math/big"
	"regexp"
	"strconv"
	"strings"
	"unicode"

	"gopkg.in/yaml.v3"
)

// renderBuildMetadata renders the build mapping as a Python literal, e.g.
//
//	{'context': '.', 'x-bake': {}, 'x-hash-paths': ['a.txt', 'subdir/b.txt']}
//
// with x-bake.tags left out. Images tagged by the earlier Python tooling were
// hashed with exactly this text as the seed, so the rendering has to match
// repr() of the YAML 1.1 values byte for byte.
func renderBuildMetadata(build *yaml.Node) string {
	var b strings.Builder
	b.WriteByte('{')
	first := true
	for i := 0; i+1 < len(build.Content); i += 2 {
		key, value := build.Content[i], resolveAlias(build.Content[i+1])
		if !first {
			b.WriteString(", ")
		}
		first = false
		writePyValue(&b, key)
		b.WriteString(": ")
		if key.Value == keyBake && value.Kind == yaml.MappingNode {
			writePyMapping(&b, value, keyBakeTags)
			continue
		}
		writePyValue(&b, value)
	}
	b.WriteByte('}')
	return b.String()
}

func writePyValue(b *strings.Builder, n *yaml.Node) {
	n = resolveAlias(n)
	switch n.Kind {
	case yaml.DocumentNode:
		if len(n.Content) > 0 {
			writePyValue(b, n.Content[0])
			return
		}
		b.WriteString("None")
	case yaml.MappingNode:
		writePyMapping(b, n, "")
	case yaml.SequenceNode:
		b.WriteByte('[')
		for i, item := range n.Content {
			if i > 0 {
				b.WriteString(", ")
			}
			writePyValue(b, item)
		}
		b.WriteByte(']')
	case yaml.ScalarNode:
		b.WriteString(pyScalar(n))
	default:
		b.WriteString("None")
	}
}

func writePyMapping(b *strings.Builder, n *yaml.Node, skipKey string) {
	b.WriteByte('{')
	first := true
	for i := 0; i+1 < len(n.Content); i += 2 {
		key := n.Content[i]
		if skipKey != "" && key.Value == skipKey {
			continue
		}
		if !first {
			b.WriteString(", ")
		}
		first = false
		writePyValue(b, key)
		b.WriteString(": ")
		writePyValue(b, n.Content[i+1])
	}
	b.WriteByte('}')
}

// yaml11Bools are the plain scalars YAML 1.1 loaders read as booleans.
var yaml11Bools = map[string]bool{
	"yes": true, "Yes": true, "YES": true, "on": true, "On": true, "ON": true,
	"true": true, "True": true, "TRUE": true,
	"no": false, "No": false, "NO": false, "off": false, "Off": false, "OFF": false,
	"false": false, "False": false, "FALSE": false,
}

// Implicit YAML 1.1 resolution, as done by PyYAML's safe loader. yaml.v3
// follows YAML 1.2, which disagrees on e.g. 1e3 (a string here), 1:30 (the
// sexagesimal int 90) and 2001-12-14 (a date).
var (
	yaml11Null  = map[string]bool{"": true, "~": true, "null": true, "Null": true, "NULL": true}
	yaml11Int   = regexp.MustCompile(`^(?:[-+]?0b[0-1_]+|[-+]?0[0-7_]+|[-+]?(?:0|[1-9][0-9_]*)|[-+]?0x[0-9a-fA-F_]+|[-+]?[1-9][0-9_]*(?::[0-5]?[0-9])+)$`)
	yaml11Float = regexp.MustCompile(`^(?:[-+]?(?:[0-9][0-9_]*)\.[0-9_]*(?:[eE][-+][0-9]+)?|\.[0-9][0-9_]*(?:[eE][-+][0-9]+)?|[-+]?[0-9][0-9_]*(?::[0-5]?[0-9])+\.[0-9_]*|[-+]?\.(?:inf|Inf|INF)|\.(?:nan|NaN|NAN))$`)
	yaml11Time  = regexp.MustCompile(`^([0-9]{4})-([0-9][0-9]?)-([0-9][0-9]?)(?:(?:[Tt]|[ \t]+)([0-9][0-9]?):([0-9][0-9]):([0-9][0-9])(?:\.([0-9]*))?(?:[ \t]*(Z|([-+])([0-9][0-9]?)(?::([0-9][0-9]))?))?)?$`)
)

func pyScalar(n *yaml.Node) string {
	switch {
	case n.Style&yaml.TaggedStyle != 0:
		return pyTagged(n)
	case n.Style&(yaml.SingleQuotedStyle|yaml.DoubleQuotedStyle|yaml.LiteralStyle|yaml.FoldedStyle) != 0:
		return pyString(n.Value)
	}
	return pyPlain(n.Value)
}

// pyTagged renders a scalar carrying an explicit tag such as !!int.
func pyTagged(n *yaml.Node) string {
	switch n.ShortTag() {
	case "!!null":
		return "None"
	case "!!bool":
		var v bool
		if err := n.Decode(&v); err == nil {
			return pyBool(v)
		}
	case "!!int":
		if v, ok := yaml11IntValue(n.Value); ok {
			return v
		}
		return n.Value
	case "!!float":
		var v float64
		if err := n.Decode(&v); err == nil {
			return pyFloat(v)
		}
	}
	return pyString(n.Value)
}

func pyPlain(v string) string {
	if yaml11Null[v] {
		return "None"
	}
	if b, ok := yaml11Bools[v]; ok {
		return pyBool(b)
	}
	if yaml11Int.MatchString(v) {
		if out, ok := yaml11IntValue(v); ok {
			return out
		}
	}
	if yaml11Float.MatchString(v) {
		if f, ok := yaml11FloatValue(v); ok {
			return pyFloat(f)
		}
	}
	if m := yaml11Time.FindStringSubmatch(v); m != nil {
		return pyTimestamp(m)
	}
	return pyString(v)
}

func splitSign(v string) (neg bool, rest string) {
	switch {
	case strings.HasPrefix(v, "-"):
		return true, v[1:]
	case strings.HasPrefix(v, "+"):
		return false, v[1:]
	}
	return false, v
}

// yaml11IntValue converts an int literal the way PyYAML constructs it:
// 0b binary, 0x hex, a leading 0 for octal and a:b:c in base 60.
func yaml11IntValue(v string) (string, bool) {
	neg, v := splitSign(strings.ReplaceAll(v, "_", ""))

	n := new(big.Int)
	ok := true
	switch {
	case v == "0":
	case strings.HasPrefix(v, "0b"):
		_, ok = n.SetString(v[2:], 2)
	case strings.HasPrefix(v, "0x"):
		_, ok = n.SetString(v[2:], 16)
	case strings.HasPrefix(v, "0"):
		_, ok = n.SetString(v[1:], 8)
	case strings.Contains(v, ":"):
		sixty := big.NewInt(60)
		for _, part := range strings.Split(v, ":") {
			d, err := strconv.ParseInt(part, 10, 64)
			if err != nil {
				return "", false
			}
			n.Mul(n, sixty).Add(n, big.NewInt(d))
		}
	default:
		_, ok = n.SetString(v, 10)
	}
	if !ok {
		return "", false
	}
	if neg {
		n.Neg(n)
	}
	return n.String(), true
}

func yaml11FloatValue(v string) (float64, bool) {
	neg, v := splitSign(strings.ToLower(strings.ReplaceAll(v, "_", "")))
	sign := 1.0
	if neg {
		sign = -1
	}

	switch {
	case v == ".inf":
		return sign * math.Inf(1), true
	case v == ".nan":
		return math.NaN(), true
	case strings.Contains(v, ":"):
		var f float64
		for _, part := range strings.Split(v, ":") {
			d, err := strconv.ParseFloat(part, 64)
			if err != nil {
				return 0, false
			}
			f = f*60 + d
		}
		return sign * f, true
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0, false
	}
	return sign * f, true
}

// pyTimestamp renders the date or datetime a YAML 1.1 timestamp loads as.
// m holds the submatches of yaml11Time.
func pyTimestamp(m []string) string {
	atoi := func(s string) int {
		n, _ := strconv.Atoi(s)
		return n
	}
	year, month, day := atoi(m[1]), atoi(m[2]), atoi(m[3])
	if m[4] == "" {
		return fmt.Sprintf("datetime.date(%d, %d, %d)", year, month, day)
	}

	fraction := m[7]
	if len(fraction) > 6 {
		fraction = fraction[:6]
	}
	fraction += strings.Repeat("0", 6-len(fraction))

	fields := []int{year, month, day, atoi(m[4]), atoi(m[5]), atoi(m[6]), atoi(fraction)}
	// datetime repr drops a zero microsecond, then a zero second
	for range 2 {
		if fields[len(fields)-1] != 0 {
			break
		}
		fields = fields[:len(fields)-1]
	}
	parts := make([]string, len(fields))
	for i, f := range fields {
		parts[i] = strconv.Itoa(f)
	}
	out := "datetime.datetime(" + strings.Join(parts, ", ")

	switch {
	case m[9] != "":
		offset := atoi(m[10])*3600 + atoi(m[11])*60
		if m[9] == "-" {
			offset = -offset
		}
		out += ", tzinfo=" + pyTimezone(offset)
	case m[8] == "Z":
		out += ", tzinfo=datetime.timezone.utc"
	}
	return out + ")"
}

func pyTimezone(offsetSeconds int) string {
	if offsetSeconds == 0 {
		return "datetime.timezone.utc"
	}
	days := offsetSeconds / 86400
	secs := offsetSeconds % 86400
	if secs < 0 {
		days--
		secs += 86400
	}
	var td []string
	if days != 0 {
		td = append(td, fmt.Sprintf("days=%d", days))
	}
	if secs != 0 {
		td = append(td, fmt.Sprintf("seconds=%d", secs))
	}
	return "datetime.timezone(datetime.timedelta(" + strings.Join(td, ", ") + "))"
}

func pyBool(v bool) string {
	if v {
		return "True"
	}
	return "False"
}

// pyFloat mirrors Python's float repr: fixed notation for exponents in
// [-4, 16), scientific otherwise, always with a fractional part.
func pyFloat(f float64) string {
	switch {
	case math.IsNaN(f):
		return "nan"
	case math.IsInf(f, 1):
		return "inf"
	case math.IsInf(f, -1):
		return "-inf"
	}

	sci := strconv.FormatFloat(f, 'e', -1, 64)
	mantissa, expText, _ := strings.Cut(sci, "e")
	exp, _ := strconv.Atoi(expText)
	if f != 0 && (exp < -4 || exp >= 16) {
		sign := "+"
		if exp < 0 {
			sign = "-"
			exp = -exp
		}
		return fmt.Sprintf("%se%s%02d", mantissa, sign, exp)
	}

	s := strconv.FormatFloat(f, 'f', -1, 64)
	if !strings.ContainsAny(s, ".") {
		s += ".0"
	}
	return s
}

// pyString mirrors Python's str repr.
func pyString(s string) string {
	quote := '\''
	if strings.ContainsRune(s, '\'') && !strings.ContainsRune(s, '"') {
		quote = '"'
	}

	var b strings.Builder
	b.WriteRune(quote)
	for _, r := range s {
		switch {
		case r == quote || r == '\\':
			b.WriteByte('\\')
			b.WriteRune(r)
		case r == '\n':
			b.WriteString(`\n`)
		case r == '\r':
			b.WriteString(`\r`)
		case r == '\t':
			b.WriteString(`\t`)
		case r < 0x20 || r == 0x7f:
			fmt.Fprintf(&b, `\x%02x`, r)
		case r < 0x7f || unicode.IsPrint(r):
			b.WriteRune(r)
		case r < 0x100:
			fmt.Fprintf(&b, `\x%02x`, r)
		case r < 0x10000:
			fmt.Fprintf(&b, `\u%04x`, r)
		default:
			fmt.Fprintf(&b, `\U%08x`, r)
		}
	}
	b.WriteRune(quote)
	return b.String()
}
