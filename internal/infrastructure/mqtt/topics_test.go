package mqtt

import (
	"errors"
	"testing"
)

func TestTopics(t *testing.T) {
	topics := Topics{Bridge: "main"}
	tests := []struct {
		got, want string
	}{
		{topics.Status(), "hcbridge/main/status"},
		{topics.State("12----", "On"), "hcbridge/main/state/12----/On"},
		{topics.Set("0-Away-G--", "On"), "hcbridge/main/set/0-Away-G--/On"},
		{topics.AllSets(), "hcbridge/main/set/+/+"},
		{topics.Commands(), "hcbridge/main/commands"},
	}
	for _, tt := range tests {
		if tt.got != tt.want {
			t.Errorf("topic = %q, want %q", tt.got, tt.want)
		}
	}
}

func TestParseSet(t *testing.T) {
	topics := Topics{Bridge: "main"}
	tests := []struct {
		topic    string
		sub, chr string
		wantErr  bool
	}{
		{"hcbridge/main/set/12----/Brightness", "12----", "Brightness", false},
		{"hcbridge/other/set/12----/On", "", "", true},
		{"hcbridge/main/set/12----", "", "", true},
		{"hcbridge/main/set/12----/On/extra", "", "", true},
		{"hcbridge/main/state/12----/On", "", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.topic, func(t *testing.T) {
			sub, chr, err := topics.ParseSet(tt.topic)
			if tt.wantErr {
				if !errors.Is(err, ErrInvalidTopic) {
					t.Errorf("ParseSet() error = %v, want ErrInvalidTopic", err)
				}
				return
			}
			if err != nil || sub != tt.sub || chr != tt.chr {
				t.Errorf("ParseSet() = %q, %q, %v", sub, chr, err)
			}
		})
	}
}

func TestValidSegment(t *testing.T) {
	for s, want := range map[string]bool{"Away": true, "": false, "a/b": false, "a+": false, "#": false} {
		if got := ValidSegment(s); got != want {
			t.Errorf("ValidSegment(%q) = %v, want %v", s, got, want)
		}
	}
}
