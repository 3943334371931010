package generation

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// UnavailableIssue marks a verdict synthesized because the validator failed.
const UnavailableIssue = "validator unavailable"

// Verdict is the validator's judgement on one draft.
type Verdict struct {
	IsValid     bool     `json:"is_valid"`
	FinalAnswer string   `json:"final_answer"`
	Confidence  float64  `json:"confidence"`
	Issues      []string `json:"issues"`
}

// unavailableVerdict is used whenever validation cannot produce a verdict.
func unavailableVerdict() Verdict {
	return Verdict{IsValid: false, Confidence: 0, Issues: []string{UnavailableIssue}}
}

var errNoJSON = errors.New("no JSON object in response")

// StripFences removes a surrounding markdown code fence, with or without a
// language tag.
func StripFences(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	if nl := strings.IndexByte(s, '\n'); nl >= 0 {
		s = s[nl+1:]
	}
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}

// ExtractJSON returns the outermost {...} span of s after stripping fences.
func ExtractJSON(s string) (string, error) {
	s = StripFences(s)
	start := strings.IndexByte(s, '{')
	end := strings.LastIndexByte(s, '}')
	if start < 0 || end <= start {
		return "", errNoJSON
	}
	return s[start : end+1], nil
}

// ParseVerdict decodes a validator response. Confidence is accepted as a
// number or numeric string and clamped to [0,1].
func ParseVerdict(raw string) (Verdict, error) {
	body, err := ExtractJSON(raw)
	if err != nil {
		return Verdict{}, err
	}

	var loose struct {
		IsValid     bool            `json:"is_valid"`
		FinalAnswer string          `json:"final_answer"`
		Confidence  json.RawMessage `json:"confidence"`
		Issues      []string        `json:"issues"`
	}
	if err := json.Unmarshal([]byte(body), &loose); err != nil {
		return Verdict{}, err
	}

	v := Verdict{IsValid: loose.IsValid, FinalAnswer: strings.TrimSpace(loose.FinalAnswer), Issues: loose.Issues}
	if len(loose.Confidence) > 0 {
		c, err := strconv.ParseFloat(strings.Trim(string(loose.Confidence), `"`), 64)
		if err != nil {
			return Verdict{}, err
		}
		if math.IsNaN(c) {
			return Verdict{}, fmt.Errorf("confidence %q is not a number", loose.Confidence)
		}
		v.Confidence = min(max(c, 0), 1)
	}
	return v, nil
}
