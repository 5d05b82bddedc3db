package gateway

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"sort"
	"strings"

	"cryptoMonitor/internal/model"
)

const maxErrorBody = 512

// Classify maps a raw HTTP response into an Outcome. requested is the asset
// order used for mapping-shaped payloads.
func Classify(statusCode int, body []byte, shape model.Shape, requested []string) Outcome {
	if statusCode == http.StatusTooManyRequests {
		return rateLimited(statusCode, "http 429 too many requests")
	}
	ok2xx := statusCode >= 200 && statusCode < 300

	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 {
		if !ok2xx {
			return transientFailure(statusCode, statusError(statusCode, trimmed))
		}
		return upstreamError(statusCode, "empty payload")
	}

	dec := json.NewDecoder(bytes.NewReader(trimmed))
	dec.UseNumber()
	var payload interface{}
	if err := dec.Decode(&payload); err != nil {
		if !ok2xx {
			return transientFailure(statusCode, statusError(statusCode, trimmed))
		}
		return upstreamError(statusCode, fmt.Sprintf("malformed payload: %v", err))
	}

	switch typed := payload.(type) {
	case map[string]interface{}:
		if status, ok := typed["status"]; ok && status != nil {
			return classifyStatus(statusCode, status)
		}
		if errVal, ok := typed["error"]; ok && !isBlank(errVal) {
			return upstreamError(statusCode, fmt.Sprintf("upstream error: %v", errVal))
		}
		if len(typed) == 0 {
			return upstreamError(statusCode, "empty payload")
		}
		if !ok2xx {
			return transientFailure(statusCode, statusError(statusCode, trimmed))
		}
		if shape != model.ShapeMinimal {
			return upstreamError(statusCode, "unexpected payload shape: object")
		}
		return success(recordsFromMapping(typed, requested), statusCode)

	case []interface{}:
		if len(typed) == 0 {
			return upstreamError(statusCode, "empty payload")
		}
		if !ok2xx {
			return transientFailure(statusCode, statusError(statusCode, trimmed))
		}
		if shape == model.ShapeMinimal {
			return upstreamError(statusCode, "unexpected payload shape: array")
		}
		return success(recordsFromList(typed), statusCode)

	case nil:
		return upstreamError(statusCode, "empty payload")

	default:
		return upstreamError(statusCode, fmt.Sprintf("unexpected payload shape: %T", payload))
	}
}

func classifyStatus(statusCode int, status interface{}) Outcome {
	obj, ok := status.(map[string]interface{})
	if !ok {
		return upstreamError(statusCode, fmt.Sprintf("upstream status: %v", status))
	}
	code := obj["error_code"]
	msg := obj["error_message"]
	detail := fmt.Sprintf("error_code=%v error_message=%v", code, msg)
	if IsRateLimitStatus(code, msg) {
		return rateLimited(statusCode, detail)
	}
	return upstreamError(statusCode, detail)
}

// IsRateLimitStatus reports whether an embedded status object signals
// throttling. The code normally arrives in error_code; a bare 429 in
// error_message and rate-limit wording are accepted as well.
func IsRateLimitStatus(code, message interface{}) bool {
	if isCode429(code) || isCode429(message) {
		return true
	}
	if s, ok := message.(string); ok {
		lower := strings.ToLower(s)
		return strings.Contains(lower, "rate limit") || strings.Contains(lower, "too many requests")
	}
	return false
}

func isCode429(v interface{}) bool {
	switch typed := v.(type) {
	case json.Number:
		f, err := typed.Float64()
		return err == nil && f == 429
	case float64:
		return typed == 429
	case int:
		return typed == 429
	case string:
		return strings.TrimSpace(typed) == "429"
	default:
		return false
	}
}

func isBlank(v interface{}) bool {
	switch typed := v.(type) {
	case nil:
		return true
	case string:
		return strings.TrimSpace(typed) == ""
	case bool:
		return !typed
	default:
		return false
	}
}

func recordsFromList(items []interface{}) []model.RawRecord {
	records := make([]model.RawRecord, 0, len(items))
	for _, item := range items {
		fields, _ := item.(map[string]interface{})
		id, _ := fields["id"].(string)
		records = append(records, model.RawRecord{AssetID: id, Fields: fields})
	}
	return records
}

func recordsFromMapping(payload map[string]interface{}, requested []string) []model.RawRecord {
	records := make([]model.RawRecord, 0, len(payload))
	used := make(map[string]struct{}, len(payload))
	add := func(id string) {
		fields, _ := payload[id].(map[string]interface{})
		records = append(records, model.RawRecord{AssetID: id, Fields: fields})
		used[id] = struct{}{}
	}

	for _, id := range requested {
		if _, ok := payload[id]; !ok {
			continue
		}
		if _, dup := used[id]; dup {
			continue
		}
		add(id)
	}

	rest := make([]string, 0)
	for id := range payload {
		if _, ok := used[id]; !ok {
			rest = append(rest, id)
		}
	}
	sort.Strings(rest)
	for _, id := range rest {
		add(id)
	}
	return records
}

func statusError(statusCode int, body []byte) error {
	text := string(body)
	if len(text) > maxErrorBody {
		text = text[:maxErrorBody]
	}
	return &StatusError{StatusCode: statusCode, Body: text}
}
