package loader

import (
	"bytes"
	"encoding/json"
	"fmt"
	"reflect"
	"strings"

	"github.com/chirality-ai/valley/pkg/common"

	"github.com/invopop/jsonschema"
	"github.com/kaptinlin/jsonrepair"
)

func stripDuplicateLeadingBrace(s string) string {
	s = strings.TrimSpace(s)
	if strings.HasPrefix(s, "{") {
		rest := strings.TrimSpace(s[1:])
		if strings.HasPrefix(rest, "{") {
			return rest
		}
	}
	return s
}

// UnmarshalFlexible attempts to unmarshal JSON into the target with multiple
// fallback strategies. It first tries standard JSON unmarshaling, then
// handles double-encoded JSON strings, and finally attempts to repair
// malformed JSON before parsing.
//
// Documents exported by upstream generators are often hand-edited, so
// trailing commas, single quotes and missing closing brackets are common.
//
// Example:
//
//	var doc common.Document
//	UnmarshalFlexible(`{"version": "1.0"}`, &doc)       // standard JSON
//	UnmarshalFlexible(`"{\"version\": \"1.0\"}"`, &doc) // double-encoded
//	UnmarshalFlexible(`{version: '1.0',}`, &doc)        // malformed (repaired)
func UnmarshalFlexible(input string, out any) error {
	input = strings.TrimSpace(input)

	if err := json.Unmarshal([]byte(input), out); err == nil {
		return nil
	}

	var asString string
	if err := json.Unmarshal([]byte(input), &asString); err == nil {
		asString = strings.TrimSpace(asString)
		if err := json.Unmarshal([]byte(asString), out); err == nil {
			return nil
		}
		input = asString
	}

	input = stripDuplicateLeadingBrace(input)
	repaired, err := jsonrepair.JSONRepair(input)
	if err != nil {
		return fmt.Errorf("json repair failed: %w", err)
	}

	if err := json.Unmarshal([]byte(repaired), out); err != nil {
		return fmt.Errorf("unmarshal failed after repair: %w", err)
	}
	return nil
}

// DecodeDocuments decodes a single document object or an array of them.
// Without repair the input must be strict JSON.
func DecodeDocuments(data []byte, repair bool) ([]common.Document, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 {
		return nil, common.Invalid("document", "empty input")
	}

	decode := func(out any) error {
		if repair {
			return UnmarshalFlexible(string(trimmed), out)
		}
		return json.Unmarshal(trimmed, out)
	}

	if trimmed[0] == '[' {
		var docs []common.Document
		if err := decode(&docs); err != nil {
			return nil, common.Invalid("document", "cannot decode document list: %v", err)
		}
		return docs, nil
	}

	var doc common.Document
	if err := decode(&doc); err != nil {
		return nil, common.Invalid("document", "cannot decode document: %v", err)
	}
	return []common.Document{doc}, nil
}

// GenerateSchema creates a JSON Schema from the given Go type.
func GenerateSchema(value any) *jsonschema.Schema {
	reflector := jsonschema.Reflector{
		AllowAdditionalProperties: false,
		DoNotReference:            true,
	}

	t := reflect.TypeOf(value)
	if t.Kind() == reflect.Pointer {
		t = t.Elem()
	}

	v := reflect.New(t).Interface()
	return reflector.Reflect(v)
}

// DocumentSchema is the JSON Schema of an ingestion document.
func DocumentSchema() *jsonschema.Schema {
	return GenerateSchema(common.Document{})
}
