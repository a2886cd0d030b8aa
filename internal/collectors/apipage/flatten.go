package apipage

import (
	"bytes"
	"encoding/json"
	"fmt"
	"slices"
	"strings"

	"github.com/custodia-labs/sentinela/internal/core/domain"
	"github.com/custodia-labs/sentinela/internal/identity"
)

// Page is one decoded API response.
type Page struct {
	Items      []map[string]any
	TotalPages int
	HasTotal   bool
}

// decodePage extracts the item array and the optional page count.
func decodePage(body []byte, itemsField, totalField string) (*Page, error) {
	var doc any
	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()
	if err := dec.Decode(&doc); err != nil {
		return nil, fmt.Errorf("%w: decode page: %w", domain.ErrMalformedPayload, err)
	}

	page := &Page{}
	rawItems := lookup(doc, itemsField)
	arr, ok := rawItems.([]any)
	if !ok {
		if rawItems == nil {
			return page, nil
		}
		return nil, fmt.Errorf("%w: %q is not an array", domain.ErrMalformedPayload, itemsField)
	}
	for _, it := range arr {
		obj, ok := it.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("%w: item is not an object", domain.ErrMalformedPayload)
		}
		page.Items = append(page.Items, obj)
	}

	if totalField != "" {
		if n, ok := lookup(doc, totalField).(json.Number); ok {
			if v, err := n.Int64(); err == nil {
				page.TotalPages = int(v)
				page.HasTotal = true
			}
		}
	}
	return page, nil
}

// lookup walks a dotted path. An empty path returns doc.
func lookup(doc any, path string) any {
	if path == "" {
		return doc
	}
	cur := doc
	for _, part := range strings.Split(path, ".") {
		obj, ok := cur.(map[string]any)
		if !ok {
			return nil
		}
		cur = obj[part]
	}
	return cur
}

// Flatten turns a JSON object into a payload. Nested objects join keys with
// "_"; arrays are kept as JSON text. Fields are ordered by key.
func Flatten(obj map[string]any) domain.Payload {
	var p domain.Payload
	flattenInto(&p, "", obj)
	slices.SortFunc(p, func(a, b domain.Field) int { return strings.Compare(a.Name, b.Name) })
	return p
}

func flattenInto(p *domain.Payload, prefix string, obj map[string]any) {
	for k, v := range obj {
		key := identity.ColumnKey(k)
		if prefix != "" {
			key = prefix + "_" + key
		}
		switch val := v.(type) {
		case map[string]any:
			flattenInto(p, key, val)
		case nil:
			*p = append(*p, domain.Field{Name: key, Value: ""})
		case string:
			*p = append(*p, domain.Field{Name: key, Value: strings.TrimSpace(val)})
		case json.Number:
			*p = append(*p, domain.Field{Name: key, Value: val.String()})
		case bool:
			*p = append(*p, domain.Field{Name: key, Value: fmt.Sprint(val)})
		default:
			b, _ := json.Marshal(val)
			*p = append(*p, domain.Field{Name: key, Value: string(b)})
		}
	}
}
