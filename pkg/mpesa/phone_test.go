package mpesa

import "testing"

func TestNormalizePhone(t *testing.T) {
	cases := []struct {
		name  string
		input string
		want  string
	}{
		{"local safaricom", "0712345678", "254712345678"},
		{"local airtel 01", "0112345678", "254112345678"},
		{"short no leading zero", "712345678", "254712345678"},
		{"short 1-prefix", "112345678", "254112345678"},
		{"international plus", "+254712345678", "254712345678"},
		{"already normalized", "254712345678", "254712345678"},
		{"spaces and dashes", "0712 345-678", "254712345678"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := NormalizePhone(tc.input)
			if err != nil {
				t.Fatalf("NormalizePhone(%q) error: %v", tc.input, err)
			}
			if got != tc.want {
				t.Fatalf("NormalizePhone(%q) = %q, want %q", tc.input, got, tc.want)
			}
		})
	}
}

func TestNormalizePhoneRejects(t *testing.T) {
	inputs := []string{
		"",
		"abc",
		"0812345678",
		"07123456",
		"2547123456789",
		"25481234567",
		"+1 555 0100",
	}

	for _, input := range inputs {
		if _, err := NormalizePhone(input); err == nil {
			t.Fatalf("NormalizePhone(%q) expected error", input)
		}
	}
}
