package xhandle

import "testing"

func TestParse(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{
			name:     "strips leading at sign",
			input:    "@elonmusk",
			expected: "elonmusk",
		},
		{
			name:     "trims whitespace",
			input:    "  naval \n",
			expected: "naval",
		},
		{
			name:     "lowercases",
			input:    "ElonMusk",
			expected: "elonmusk",
		},
		{
			name:     "only one at sign is stripped",
			input:    "@@user",
			expected: "@user",
		},
		{
			name:     "empty input",
			input:    "",
			expected: "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Parse(tt.input); got != tt.expected {
				t.Errorf("Parse(%q) = %q, want %q", tt.input, got, tt.expected)
			}
		})
	}
}

func TestParseIdempotent(t *testing.T) {
	inputs := []string{"@ElonMusk", " user_1 ", "plain", "@a"}
	for _, in := range inputs {
		once := Parse(in)
		if twice := Parse(once); twice != once {
			t.Errorf("Parse not idempotent for %q: %q != %q", in, twice, once)
		}
	}
}

func TestIsValid(t *testing.T) {
	valid := []string{"a", "elonmusk", "user_123", "A_B_C", "123456789012345"}
	for _, h := range valid {
		if !IsValid(h) {
			t.Errorf("IsValid(%q) = false, want true", h)
		}
	}

	invalid := []string{
		"",
		"1234567890123456", // 16 chars
		"has space",
		"dash-ed",
		"@prefixed",
		"émile",
	}
	for _, h := range invalid {
		if IsValid(h) {
			t.Errorf("IsValid(%q) = true, want false", h)
		}
	}
}

func TestFormat(t *testing.T) {
	if got := Format("elonmusk"); got != "@elonmusk" {
		t.Errorf("Format = %q, want @elonmusk", got)
	}
}
