package market

import (
	"strings"

	"ciphermarket/internal/domain"
)

// ExtractParams derives structured handler parameters from free-text query
// text using the seller's declared schema. Case-insensitive substring
// matching against option lists; ambiguous or adversarial text degrades to
// defaults rather than failing the request.
func ExtractParams(seller domain.Seller, query string) map[string]any {
	params := make(map[string]any)
	q := strings.ToLower(query)

	for key, field := range seller.Params {
		if len(field.Options) > 0 {
			if field.Type == "string[]" {
				params[key] = matchMany(field, q)
			} else {
				params[key] = matchOne(field, q)
			}
			continue
		}
		if field.Default != nil {
			params[key] = field.Default
		}
	}
	return params
}

// NormalizeParams validates a structured parameter map against the
// seller's schema: undeclared keys are dropped and declared fields
// missing from the map fall back the same way free-text extraction
// does. Handlers only ever see declared keys.
func NormalizeParams(seller domain.Seller, raw map[string]any) map[string]any {
	params := make(map[string]any, len(seller.Params))
	for key, field := range seller.Params {
		if v, ok := raw[key]; ok && v != nil {
			params[key] = v
			continue
		}
		switch {
		case field.Default != nil:
			params[key] = field.Default
		case len(field.Options) > 0:
			if field.Type == "string[]" {
				params[key] = append([]string(nil), field.Options...)
			} else {
				params[key] = field.Options[0]
			}
		}
	}
	return params
}

// matchMany collects every option appearing in the query. "all" selects
// everything; with no match and no default the full list is the
// deterministic fallback, never an arbitrary subset.
func matchMany(field domain.ParamField, q string) any {
	var matched []string
	for _, opt := range field.Options {
		if strings.Contains(q, strings.ToLower(opt)) {
			matched = append(matched, opt)
		}
	}
	if len(matched) > 0 {
		return matched
	}
	if strings.Contains(q, "all") {
		return append([]string(nil), field.Options...)
	}
	if field.Default != nil {
		return field.Default
	}
	return append([]string(nil), field.Options...)
}

// matchOne picks the first option appearing in the query, then the
// default, then the first declared option. Never empty.
func matchOne(field domain.ParamField, q string) any {
	for _, opt := range field.Options {
		if strings.Contains(q, strings.ToLower(opt)) {
			return opt
		}
	}
	if field.Default != nil {
		return field.Default
	}
	return field.Options[0]
}
