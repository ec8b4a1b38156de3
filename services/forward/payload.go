package forward

import (
	"strings"

	"leadbroker/services/lead"
	"leadbroker/services/mapping"
)

// TxIDKey is the fixed payload key carrying the lead's external transaction
// id. The executor merges it after the field rules run so a misconfigured
// mapping can never drop or override it.
const TxIDKey = "az_tx_id"

// BuildPayload shapes the outbound fields for one advertiser.
//
// With rules present, only fields the advertiser opted into leave the broker:
// each included rule resolves its source from the raw tracking payload first,
// then from the lead's canonical fields, applies the transform and writes the
// target field. With no rules, the non-empty canonical fields go out verbatim.
func BuildPayload(l *lead.Lead, raw map[string]any, rules []*mapping.FieldMapping) map[string]any {
	standard := l.StandardFields()

	if len(rules) == 0 {
		return standard
	}

	payload := make(map[string]any)
	for _, rule := range rules {
		if !rule.Include {
			continue
		}

		value, ok := raw[rule.SourceField]
		if !ok || value == nil {
			value, ok = standard[rule.SourceField]
		}
		if !ok || value == nil {
			continue
		}

		if s, isString := value.(string); isString && rule.Transform != "" {
			value = applyTransform(rule.Transform, rule.TransformParam, s)
		}

		payload[rule.TargetField] = value
	}

	return payload
}

func applyTransform(kind, param, value string) string {
	switch kind {
	case mapping.TransformUppercase:
		return strings.ToUpper(value)
	case mapping.TransformLowercase:
		return strings.ToLower(value)
	case mapping.TransformTrim:
		return strings.TrimSpace(value)
	case mapping.TransformConcat:
		return strings.ReplaceAll(param, "{{value}}", value)
	default:
		return value
	}
}
