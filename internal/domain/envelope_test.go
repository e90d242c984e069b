package domain

import "testing"

func TestKind_Valid(t *testing.T) {
	tests := []struct {
		kind Kind
		want bool
	}{
		{KindText, true},
		{KindVoice, true},
		{KindFile, true},
		{KindEdit, true},
		{KindDelete, true},
		{KindMemberJoined, true},
		{KindMemberLeft, true},
		{"", false},
		{"shout", false},
	}

	for _, tt := range tests {
		t.Run(string(tt.kind), func(t *testing.T) {
			if got := tt.kind.Valid(); got != tt.want {
				t.Errorf("Kind(%q).Valid() = %v, want %v", tt.kind, got, tt.want)
			}
		})
	}
}

func TestKind_Content(t *testing.T) {
	tests := []struct {
		kind Kind
		want bool
	}{
		{KindText, true},
		{KindVoice, true},
		{KindFile, true},
		{KindEdit, true},
		{KindDelete, true},
		{KindMemberJoined, false},
		{KindMemberLeft, false},
		{"", false},
	}

	for _, tt := range tests {
		t.Run(string(tt.kind), func(t *testing.T) {
			if got := tt.kind.Content(); got != tt.want {
				t.Errorf("Kind(%q).Content() = %v, want %v", tt.kind, got, tt.want)
			}
		})
	}
}
