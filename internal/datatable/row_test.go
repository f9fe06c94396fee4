package datatable

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestStringify(t *testing.T) {
	tests := []struct {
		in   any
		want string
	}{
		{nil, ""},
		{"x", "x"},
		{true, "true"},
		{42, "42"},
		{int64(7), "7"},
		{1.5, "1.5"},
		{time.Date(2024, 3, 10, 8, 5, 0, 0, time.UTC), "10/03/2024 08:05:00"},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, Stringify(tt.in))
	}
}

func TestIsLink(t *testing.T) {
	tests := []struct {
		in   any
		want bool
	}{
		{"https://example.com/a.csv", true},
		{"HTTP://EXAMPLE.COM", true},
		{"ftp://files", true},
		{"mailto:ana@example.com", true},
		{"www.example.com", true},
		{"example.com", false},
		{"ana@example.com", false},
		{42, false},
		{nil, false},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, IsLink(tt.in), "%v", tt.in)
	}
}
