// Package jsonutil provides the lenient JSON recovery chain shared by
// every component that must coerce an LLM's raw text into a typed Go
// value: the vision PDF processor (C7) and the agent layer's insights
// JSON (C10). Adapted near-verbatim from the teacher's
// pkg/core/utils/json_validator.go SmartParse, which already implements
// exactly this JSON -> repair -> Hjson fallback chain.
package jsonutil

import (
	"encoding/json"
	"fmt"

	jsonrepair "github.com/RealAlexandreAI/json-repair"
	hjson "github.com/hjson/hjson-go/v4"
)

// RepairJSON attempts to fix common LLM JSON mistakes: missing quotes,
// single quotes, trailing commas, unclosed brackets, markdown fences.
func RepairJSON(malformed string) (string, error) {
	repaired, err := jsonrepair.RepairJSON(malformed)
	if err != nil {
		return "", fmt.Errorf("json repair failed: %w", err)
	}
	return repaired, nil
}

// ParseHJSON parses Human JSON (comments, unquoted keys, optional
// commas) and re-emits standard JSON.
func ParseHJSON(input string) (string, error) {
	var result interface{}
	if err := hjson.Unmarshal([]byte(input), &result); err != nil {
		return "", fmt.Errorf("hjson parse failed: %w", err)
	}
	out, err := json.Marshal(result)
	if err != nil {
		return "", fmt.Errorf("re-marshal after hjson parse failed: %w", err)
	}
	return string(out), nil
}

// SmartParse tries, in order: a plain json.Unmarshal, a repair pass,
// then an Hjson pass, returning the first one that successfully
// populates schema (a pointer to the target struct).
func SmartParse(input string, schema interface{}) (string, error) {
	if err := json.Unmarshal([]byte(input), schema); err == nil {
		return input, nil
	}

	if repaired, err := RepairJSON(input); err == nil {
		if err := json.Unmarshal([]byte(repaired), schema); err == nil {
			return repaired, nil
		}
	}

	if hjsonResult, err := ParseHJSON(input); err == nil {
		if err := json.Unmarshal([]byte(hjsonResult), schema); err == nil {
			return hjsonResult, nil
		}
	}

	return "", fmt.Errorf("smart parse: all strategies failed for model output")
}
