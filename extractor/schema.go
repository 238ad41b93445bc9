package extractor

import "encoding/json"

// rawSchema 把 map 形式的 JSON Schema 包装成 go-openai 期望的 Marshaler
type rawSchema map[string]any

func (s rawSchema) MarshalJSON() ([]byte, error) {
	return json.Marshal(map[string]any(s))
}
