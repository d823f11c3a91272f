package signal

import (
	"testing"

	"tradepilot/internal/domain"
)

func TestParseAction(t *testing.T) {
	cases := []struct {
		action    string
		kind      IntentKind
		direction domain.Direction
		strength  domain.Strength
	}{
		{"SINAL LONG FORTE", IntentOpen, domain.DirectionLong, domain.StrengthStrong},
		{"SINAL SHORT FORTE", IntentOpen, domain.DirectionShort, domain.StrengthStrong},
		{"sinal long forte", IntentOpen, domain.DirectionLong, domain.StrengthStrong},
		{"  SINAL SHORT FORTE  ", IntentOpen, domain.DirectionShort, domain.StrengthStrong},
		{"FECHE LONG", IntentClose, domain.DirectionLong, domain.StrengthWeak},
		{"FECHE SHORT", IntentClose, domain.DirectionShort, domain.StrengthWeak},
		{"CLOSE LONG", IntentClose, domain.DirectionLong, domain.StrengthWeak},
		{"SINAL LONG", IntentInformational, domain.DirectionLong, domain.StrengthWeak},
		{"SINAL SHORT", IntentInformational, domain.DirectionShort, domain.StrengthWeak},
		{"STRONG SHORT SIGNAL", IntentOpen, domain.DirectionShort, domain.StrengthStrong},
	}

	for _, tc := range cases {
		intent, err := ParseAction(tc.action)
		if err != nil {
			t.Fatalf("%q: unexpected error: %v", tc.action, err)
		}
		if intent.Kind != tc.kind {
			t.Fatalf("%q: expected kind %d, got %d", tc.action, tc.kind, intent.Kind)
		}
		if intent.Direction != tc.direction {
			t.Fatalf("%q: expected direction %s, got %s", tc.action, tc.direction, intent.Direction)
		}
		if intent.Strength != tc.strength {
			t.Fatalf("%q: expected strength %s, got %s", tc.action, tc.strength, intent.Strength)
		}
	}
}

func TestParseActionRejectsGarbage(t *testing.T) {
	for _, action := range []string{"", "   ", "HELLO WORLD", "COMPRAR AGORA"} {
		if _, err := ParseAction(action); err == nil {
			t.Fatalf("%q: expected parse error", action)
		}
	}
}
