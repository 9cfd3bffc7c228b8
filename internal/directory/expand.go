package directory

import (
	"fmt"
	"slices"
	"strings"

	"github.com/go-ldap/ldap/v3"
)

// dnComponents are the RDN types a dotted reference may extract from a
// DN-valued attribute, e.g. {member.cn}.
var dnComponents = map[string]bool{
	"dn": true, "cn": true, "l": true, "st": true, "o": true,
	"ou": true, "c": true, "street": true, "dc": true, "uid": true,
}

type token struct {
	literal string
	field   string // non-empty for a {reference}
}

// parseFormat splits a rule template into literal and field tokens. Doubled
// braces escape a literal brace.
func parseFormat(format string) ([]token, error) {
	var tokens []token
	var literal strings.Builder
	for i := 0; i < len(format); i++ {
		switch format[i] {
		case '{':
			if i+1 < len(format) && format[i+1] == '{' {
				literal.WriteByte('{')
				i++
				continue
			}
			end := strings.IndexByte(format[i:], '}')
			if end < 0 {
				return nil, fmt.Errorf("unbalanced '{' in format %q", format)
			}
			if literal.Len() > 0 {
				tokens = append(tokens, token{literal: literal.String()})
				literal.Reset()
			}
			field := format[i+1 : i+end]
			if field == "" {
				return nil, fmt.Errorf("empty reference in format %q", format)
			}
			tokens = append(tokens, token{field: strings.ToLower(field)})
			i += end
		case '}':
			if i+1 < len(format) && format[i+1] == '}' {
				literal.WriteByte('}')
				i++
				continue
			}
			return nil, fmt.Errorf("unbalanced '}' in format %q", format)
		default:
			literal.WriteByte(format[i])
		}
	}
	if literal.Len() > 0 {
		tokens = append(tokens, token{literal: literal.String()})
	}
	return tokens, nil
}

// Expand renders rule templates against an entry. A template referencing
// attributes yields one result per combination of attribute values; static
// text passes through unchanged. A nil entry only accepts static templates.
func Expand(entry *Entry, formats []string) ([]string, error) {
	if entry == nil {
		return append([]string(nil), formats...), nil
	}

	var out []string
	for _, format := range formats {
		tokens, err := parseFormat(format)
		if err != nil {
			return nil, err
		}

		fields := make([]string, 0, len(tokens))
		for _, tok := range tokens {
			if tok.field != "" && !slices.Contains(fields, tok.field) {
				fields = append(fields, tok.field)
			}
		}
		if len(fields) == 0 {
			out = append(out, format)
			continue
		}

		values := make([][]string, len(fields))
		for i, field := range fields {
			values[i], err = entry.fieldValues(field)
			if err != nil {
				return nil, err
			}
		}

		out = append(out, renderProduct(tokens, fields, values)...)
	}
	return out, nil
}

// fieldValues resolves one {field} reference: either a plain attribute, or
// a dotted path pulling an RDN or a joined sub-attribute out of each value.
func (e *Entry) fieldValues(field string) ([]string, error) {
	attribute, sub, dotted := strings.Cut(field, ".")
	values, ok := e.values(attribute)
	if !ok {
		return nil, fmt.Errorf("unknown attribute %q", attribute)
	}
	if !dotted {
		raws := make([]string, 0, len(values))
		for _, v := range values {
			raws = append(raws, v.Raw)
		}
		return raws, nil
	}

	var out []string
	for _, v := range values {
		if dnComponents[sub] {
			extracted, err := extractRDN(v.Raw, sub)
			if err != nil {
				return nil, err
			}
			out = append(out, extracted)
			continue
		}
		subValues, ok := v.Sub[sub]
		if !ok || len(subValues) == 0 {
			return nil, fmt.Errorf("unknown attribute %s for DN %q", sub, v.Raw)
		}
		out = append(out, subValues[0])
	}
	return out, nil
}

// extractRDN parses a DN value and returns the first RDN of the wanted
// type. A DN missing that type is the policy-gated unexpected-DN case.
func extractRDN(raw, rdnType string) (string, error) {
	if rdnType == "dn" {
		return raw, nil
	}
	dn, err := ldap.ParseDN(raw)
	if err != nil {
		return "", fmt.Errorf("can't parse DN %q", raw)
	}
	for _, rdn := range dn.RDNs {
		for _, attribute := range rdn.Attributes {
			if strings.EqualFold(attribute.Type, rdnType) {
				return attribute.Value, nil
			}
		}
	}
	return "", &RDNError{RDN: rdnType, DN: raw}
}

// renderProduct renders the template once per combination of field values,
// in attribute order.
func renderProduct(tokens []token, fields []string, values [][]string) []string {
	total := 1
	for _, fieldValues := range values {
		total *= len(fieldValues)
	}
	if total == 0 {
		return nil
	}

	chosen := make(map[string]string, len(fields))
	indexes := make([]int, len(fields))
	out := make([]string, 0, total)
	for {
		for i, field := range fields {
			chosen[field] = values[i][indexes[i]]
		}
		var b strings.Builder
		for _, tok := range tokens {
			if tok.field != "" {
				b.WriteString(chosen[tok.field])
			} else {
				b.WriteString(tok.literal)
			}
		}
		out = append(out, b.String())

		// Odometer over value combinations, last field fastest.
		i := len(indexes) - 1
		for ; i >= 0; i-- {
			indexes[i]++
			if indexes[i] < len(values[i]) {
				break
			}
			indexes[i] = 0
		}
		if i < 0 {
			return out
		}
	}
}
