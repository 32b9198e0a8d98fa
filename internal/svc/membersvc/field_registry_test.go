package membersvc_test

import (
	"slices"
	"testing"

	. "github.com/mkrupp/memberfed/internal/svc/membersvc"
)

func TestNormalizeAlias(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		want string
	}{
		{"username", "username"},
		{"firstName", "first_name"},
		{"dateSignedHosting", "date_signed_hosting"},
		{"chambreId", "chambre_id"},
		{"roomID", "room_id"},
		{"", ""},
	}

	for _, tt := range tests {
		if got := NormalizeAlias(tt.name); got != tt.want {
			t.Errorf("NormalizeAlias(%q) = %q, want %q", tt.name, got, tt.want)
		}
	}
}

func TestAliases(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		want []string
	}{
		{"dateSignedHosting", []string{"dateSignedHosting", "date_signed_hosting", "datesignedhosting"}},
		{"datesignedhosting", []string{"dateSignedHosting", "date_signed_hosting", "datesignedhosting"}},
		{"login", []string{"username", "login"}},
		{"ip", []string{"ip"}},
		{"createdAt", []string{"createdAt", "created_at"}},
		{"general", []string{"general", "commentaires"}},
		{"nickname", nil},
	}

	for _, tt := range tests {
		if got := Aliases(tt.name); !slices.Equal(got, tt.want) {
			t.Errorf("Aliases(%q) = %v, want %v", tt.name, got, tt.want)
		}
	}
}

func TestIsMapped(t *testing.T) {
	t.Parallel()

	for name, want := range map[string]bool{
		"chambre_id": true,
		"chambreId":  true,
		"login":      true,
		"nickname":   false,
		"Login":      false,
	} {
		if got := IsMapped(name); got != want {
			t.Errorf("IsMapped(%q) = %v, want %v", name, got, want)
		}
	}
}

func TestAttributeNames(t *testing.T) {
	t.Parallel()

	names := AttributeNames()
	if len(names) != 20 {
		t.Fatalf("got %d mapped fields, want 20", len(names))
	}

	for _, name := range names {
		if aliases := Aliases(name); len(aliases) == 0 || aliases[0] != name {
			t.Errorf("Aliases(%q) = %v, canonical name must come first", name, aliases)
		}
	}
}
