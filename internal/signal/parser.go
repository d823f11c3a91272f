package signal

import (
	"fmt"
	"strings"

	"tradepilot/internal/domain"
)

// IntentKind tags the parsed meaning of a raw alert phrase. Nothing outside
// this package re-parses free text.
type IntentKind int

const (
	IntentOpen IntentKind = iota
	IntentClose
	IntentInformational
)

type Intent struct {
	Kind      IntentKind
	Direction domain.Direction
	Strength  domain.Strength
}

// ParseAction classifies the alert source's free-text action field.
// Recognized shapes (the source emits Portuguese phrases):
//
//	"SINAL LONG FORTE"  -> strong long open
//	"SINAL SHORT"       -> weak short, informational only
//	"FECHE LONG"        -> close long positions
//
// Absence of "FORTE" downgrades an open to informational.
func ParseAction(action string) (Intent, error) {
	normalized := strings.ToUpper(strings.TrimSpace(action))
	if normalized == "" {
		return Intent{}, fmt.Errorf("empty action")
	}

	var direction domain.Direction
	switch {
	case strings.Contains(normalized, "LONG"):
		direction = domain.DirectionLong
	case strings.Contains(normalized, "SHORT"):
		direction = domain.DirectionShort
	default:
		return Intent{}, fmt.Errorf("action %q has no direction", action)
	}

	if strings.Contains(normalized, "FECHE") || strings.Contains(normalized, "CLOSE") {
		return Intent{Kind: IntentClose, Direction: direction, Strength: domain.StrengthWeak}, nil
	}

	if strings.Contains(normalized, "FORTE") || strings.Contains(normalized, "STRONG") {
		return Intent{Kind: IntentOpen, Direction: direction, Strength: domain.StrengthStrong}, nil
	}

	return Intent{Kind: IntentInformational, Direction: direction, Strength: domain.StrengthWeak}, nil
}
