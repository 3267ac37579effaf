package services

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// maskSensitiveFields hides phone numbers and the STK password in a request or
// callback body before it is logged. Bodies that are not JSON objects are
// returned unchanged.
func maskSensitiveFields(body []byte) []byte {
	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()
	var req map[string]interface{}
	if err := dec.Decode(&req); err != nil {
		return body
	}

	for _, key := range []string{"PhoneNumber", "PartyA"} {
		if v, ok := req[key].(string); ok {
			req[key] = maskPhone(v)
		}
	}
	if _, ok := req["Password"]; ok {
		req["Password"] = "****"
	}

	if b, ok := req["Body"].(map[string]interface{}); ok {
		if cb, ok := b["stkCallback"].(map[string]interface{}); ok {
			if meta, ok := cb["CallbackMetadata"].(map[string]interface{}); ok {
				items, _ := meta["Item"].([]interface{})
				for _, it := range items {
					item, ok := it.(map[string]interface{})
					if !ok || item["Name"] != "PhoneNumber" || item["Value"] == nil {
						continue
					}
					item["Value"] = maskPhone(fmt.Sprint(item["Value"]))
				}
			}
		}
	}

	masked, err := json.Marshal(req)
	if err != nil {
		return body
	}
	return masked
}
