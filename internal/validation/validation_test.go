package validation

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIsValidEmail(t *testing.T) {
	tests := []struct {
		name  string
		email string
		want  bool
	}{
		{name: "plain address", email: "user@example.com", want: true},
		{name: "subdomain", email: "user@mail.example.com", want: true},
		{name: "empty", email: "", want: false},
		{name: "no at sign", email: "user.example.com", want: false},
		{name: "no domain", email: "user@", want: false},
		{name: "display name form", email: "User <user@example.com>", want: false},
		{name: "spaces inside", email: "us er@example.com", want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, IsValidEmail(tt.email))
		})
	}
}

func TestIsValidPassword(t *testing.T) {
	assert.False(t, IsValidPassword(""))
	assert.False(t, IsValidPassword("12345"))
	assert.True(t, IsValidPassword("123456"))
}

func TestIsValidRole(t *testing.T) {
	assert.True(t, IsValidRole("buyer"))
	assert.True(t, IsValidRole("seller"))
	assert.False(t, IsValidRole("admin"))
	assert.False(t, IsValidRole(""))
}

func TestIsValidCondition(t *testing.T) {
	for _, c := range []string{"like_new", "very_good", "good", "acceptable"} {
		assert.True(t, IsValidCondition(c), c)
	}
	assert.False(t, IsValidCondition("mint"))
	assert.False(t, IsValidCondition(""))
}

func TestIsValidPrice(t *testing.T) {
	tests := []struct {
		price string
		want  bool
	}{
		{price: "12.50", want: true},
		{price: "0", want: true},
		{price: "8.1", want: true},
		{price: "8.123", want: false},
		{price: "-1", want: false},
		{price: "abc", want: false},
		{price: "", want: false},
	}

	for _, tt := range tests {
		t.Run(tt.price, func(t *testing.T) {
			assert.Equal(t, tt.want, IsValidPrice(tt.price))
		})
	}
}
