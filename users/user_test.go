package users_test

import (
	"testing"

	qt "github.com/frankban/quicktest"

	"github.com/stokaro/userbase/users"
)

func ptr(s string) *string {
	return &s
}

func TestUserInfo_FullName(t *testing.T) {
	tests := []struct {
		name     string
		info     users.UserInfo
		expected string
	}{
		{
			name:     "first middle and last",
			info:     users.UserInfo{FirstName: ptr("Ivan"), MiddleName: ptr("Ivanovich"), LastName: ptr("Petrov")},
			expected: "Petrov Ivan Ivanovich",
		},
		{
			name:     "first and last",
			info:     users.UserInfo{FirstName: ptr("Ivan"), LastName: ptr("Petrov")},
			expected: "Petrov Ivan",
		},
		{
			name:     "only first",
			info:     users.UserInfo{FirstName: ptr("Ivan"), MiddleName: ptr("Ivanovich")},
			expected: "Ivan",
		},
		{
			name:     "only last",
			info:     users.UserInfo{LastName: ptr("Petrov")},
			expected: "Petrov",
		},
		{
			name:     "empty",
			info:     users.UserInfo{Username: ptr("ivan")},
			expected: "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := qt.New(t)
			c.Assert(tt.info.FullName(), qt.Equals, tt.expected)
		})
	}
}

func TestUserInfo_HasProfileData(t *testing.T) {
	c := qt.New(t)

	c.Assert(users.UserInfo{}.HasProfileData(), qt.IsFalse)
	c.Assert(users.UserInfo{Bio: ptr("hello"), AvatarURL: ptr("https://x.com/a.png")}.HasProfileData(), qt.IsFalse)
	c.Assert(users.UserInfo{FirstName: ptr("Ivan")}.HasProfileData(), qt.IsTrue)
	c.Assert(users.UserInfo{LastName: ptr("Petrov")}.HasProfileData(), qt.IsTrue)
	c.Assert(users.UserInfo{Username: ptr("ivan")}.HasProfileData(), qt.IsTrue)
	c.Assert(users.UserInfo{Username: ptr("")}.HasProfileData(), qt.IsFalse)
}

func TestInfoPatch_IsEmpty(t *testing.T) {
	c := qt.New(t)

	c.Assert(users.InfoPatch{}.IsEmpty(), qt.IsTrue)
	c.Assert(users.InfoPatch{Bio: ptr("")}.IsEmpty(), qt.IsFalse)
}

func TestNormalizeEmail(t *testing.T) {
	c := qt.New(t)

	c.Assert(users.NormalizeEmail("  Alice@Example.COM\n"), qt.Equals, "alice@example.com")
	c.Assert(users.NormalizeEmail("a@x.com"), qt.Equals, "a@x.com")
}
