package validation

import "testing"

func TestValidateRoomID(t *testing.T) {
	tests := []struct {
		name    string
		roomID  string
		wantErr bool
	}{
		{"simple", "standup", false},
		{"with dash and underscore", "team-42_daily", false},
		{"empty", "", true},
		{"whitespace only", "   ", true},
		{"slash", "a/b", true},
		{"spaces inside", "room one", true},
		{"too long", string(make([]byte, 65)), true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateRoomID(tt.roomID)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateRoomID(%q) error = %v, wantErr %v", tt.roomID, err, tt.wantErr)
			}
		})
	}
}

func TestValidateUsername(t *testing.T) {
	tests := []struct {
		name    string
		user    string
		wantErr bool
	}{
		{"plain", "alice", false},
		{"with space", "Alice Smith", false},
		{"unicode letters", "Renée", false},
		{"empty", "", true},
		{"control chars", "a\x00b", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateUsername(tt.user)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateUsername(%q) error = %v, wantErr %v", tt.user, err, tt.wantErr)
			}
		})
	}
}

func TestValidatePassword(t *testing.T) {
	if err := ValidatePassword(""); err != nil {
		t.Errorf("empty password must be allowed (no password set): %v", err)
	}
	if err := ValidatePassword("abc"); err == nil {
		t.Error("short password must be rejected")
	}
	if err := ValidatePassword("s3cret"); err != nil {
		t.Errorf("valid password rejected: %v", err)
	}
}
