package classifier

import (
	"encoding/json"
	"errors"
	"strings"
)

// ErrUnparseable is returned by Parse when neither the structured form nor
// the keyword fallback yields a verdict
var ErrUnparseable = errors.New("unparseable classifier response")

// Verdict is a typed classifier answer. Parse accepts the raw response text
// and fills the receiver.
type Verdict interface {
	Parse(raw string) error
}

type Safety string

const (
	Safe   Safety = "SAFE"
	Unsafe Safety = "UNSAFE"
)

// SafetyVerdict answers the graylist question
type SafetyVerdict struct {
	Verdict Safety `json:"verdict"`
	Reason  string `json:"reason"`
	// Lenient is set when the verdict was recovered by keyword scan
	Lenient bool `json:"-"`
}

func (v *SafetyVerdict) Parse(raw string) error {
	text := stripFences(raw)
	var out SafetyVerdict
	if err := json.Unmarshal([]byte(text), &out); err == nil {
		out.Verdict = Safety(strings.ToUpper(string(out.Verdict)))
		if out.Verdict == Safe || out.Verdict == Unsafe {
			*v = out
			return nil
		}
	}

	switch {
	case strings.Contains(text, "UNSAFE") || strings.Contains(text, "PUNISH"):
		*v = SafetyVerdict{Verdict: Unsafe, Reason: "recovered from unstructured response", Lenient: true}
	case strings.Contains(text, "SAFE"):
		*v = SafetyVerdict{Verdict: Safe, Reason: "recovered from unstructured response", Lenient: true}
	default:
		return ErrUnparseable
	}
	return nil
}

type SpamDecision string

const (
	SpamPunish SpamDecision = "PUNISH"
	SpamSafe   SpamDecision = "SAFE"
)

type SpamKind string

const (
	SpamLongMessage SpamKind = "LONG_MESSAGE"
	SpamBurst       SpamKind = "SPAM"
	SpamBoth        SpamKind = "BOTH"
)

// SpamVerdict answers the spam and length question
type SpamVerdict struct {
	Verdict SpamDecision `json:"verdict"`
	Reason  string       `json:"reason"`
	Type    SpamKind     `json:"type"`
	Lenient bool         `json:"-"`
}

func (v *SpamVerdict) Parse(raw string) error {
	text := stripFences(raw)
	var out SpamVerdict
	if err := json.Unmarshal([]byte(text), &out); err == nil {
		out.Verdict = SpamDecision(strings.ToUpper(string(out.Verdict)))
		if out.Verdict == SpamPunish || out.Verdict == SpamSafe {
			switch out.Type {
			case SpamLongMessage, SpamBurst, SpamBoth:
			default:
				out.Type = SpamBoth
			}
			*v = out
			return nil
		}
	}

	switch {
	case strings.Contains(text, "PUNISH") || strings.Contains(text, "UNSAFE"):
		*v = SpamVerdict{Verdict: SpamPunish, Type: SpamBoth, Reason: "recovered from unstructured response", Lenient: true}
	case strings.Contains(text, "SAFE"):
		*v = SpamVerdict{Verdict: SpamSafe, Type: SpamBoth, Reason: "recovered from unstructured response", Lenient: true}
	default:
		return ErrUnparseable
	}
	return nil
}

// AbuseVerdict answers whether a manual warn looks like abuse of power
type AbuseVerdict struct {
	IsAbuse  bool     `json:"is_abuse"`
	Reason   string   `json:"reason"`
	Concerns []string `json:"concerns"`
	Lenient  bool     `json:"-"`
}

func (v *AbuseVerdict) Parse(raw string) error {
	text := stripFences(raw)
	var out struct {
		IsAbuse  *bool    `json:"is_abuse"`
		Reason   string   `json:"reason"`
		Concerns []string `json:"concerns"`
	}
	if err := json.Unmarshal([]byte(text), &out); err == nil && out.IsAbuse != nil {
		*v = AbuseVerdict{IsAbuse: *out.IsAbuse, Reason: out.Reason, Concerns: out.Concerns}
		return nil
	}

	switch {
	case strings.Contains(text, "NOT_ABUSE") || strings.Contains(text, "SAFE"):
		*v = AbuseVerdict{IsAbuse: false, Reason: "recovered from unstructured response", Lenient: true}
	case strings.Contains(text, "ABUSE"):
		*v = AbuseVerdict{IsAbuse: true, Reason: "recovered from unstructured response", Lenient: true}
	default:
		return ErrUnparseable
	}
	return nil
}

type AppealStatus string

const (
	AppealAccepted AppealStatus = "ACCEPTED"
	AppealRejected AppealStatus = "REJECTED"
)

// AppealVerdict answers an appeal
type AppealVerdict struct {
	Status  AppealStatus `json:"status"`
	Reason  string       `json:"reason"`
	Lenient bool         `json:"-"`
}

func (v *AppealVerdict) Parse(raw string) error {
	text := stripFences(raw)
	var out AppealVerdict
	if err := json.Unmarshal([]byte(text), &out); err == nil {
		out.Status = AppealStatus(strings.ToUpper(string(out.Status)))
		if out.Status == AppealAccepted || out.Status == AppealRejected {
			*v = out
			return nil
		}
	}

	// a reply naming both outcomes is read as a rejection
	switch {
	case strings.Contains(text, "REJECTED"):
		*v = AppealVerdict{Status: AppealRejected, Reason: "recovered from unstructured response", Lenient: true}
	case strings.Contains(text, "ACCEPTED"):
		*v = AppealVerdict{Status: AppealAccepted, Reason: "recovered from unstructured response", Lenient: true}
	default:
		return ErrUnparseable
	}
	return nil
}

// stripFences removes markdown code fences some models wrap JSON in
func stripFences(s string) string {
	s = strings.ReplaceAll(s, "```json", "")
	s = strings.ReplaceAll(s, "```", "")
	return strings.TrimSpace(s)
}
