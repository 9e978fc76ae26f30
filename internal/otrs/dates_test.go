package otrs

import "testing"

func TestAdd1Second(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"2020-01-01 10:00:00", "2020-01-01 10:00:01"},
		{"2020-01-01 23:59:59", "2020-01-02 00:00:00"},
		{"2019-12-31 23:59:59", "2020-01-01 00:00:00"},
		{"2020-02-28 23:59:59", "2020-02-29 00:00:00"},
		{"2021-03-28 01:59:59", "2021-03-28 02:00:00"},
	}

	for _, tt := range tests {
		got, err := Add1Second(tt.in)
		if err != nil {
			t.Errorf("Add1Second(%q) returned error: %v", tt.in, err)
			continue
		}
		if got != tt.want {
			t.Errorf("Add1Second(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}

	if _, err := Add1Second("yesterday"); err == nil {
		t.Error("Add1Second(\"yesterday\") should fail")
	}
}

func TestIsValidDate(t *testing.T) {
	tests := []struct {
		in   string
		want bool
	}{
		{"2020-01-01 10:00:00", true},
		{"2020-02-29 00:00:00", true},
		{"2019-02-29 00:00:00", false},
		{"2020-13-01 00:00:00", false},
		{"2020-01-01T10:00:00", false},
		{"2020-01-01 10:00", false},
		{" 2020-01-01 10:00:00", false},
		{"", false},
	}

	for _, tt := range tests {
		if got := IsValidDate(tt.in); got != tt.want {
			t.Errorf("IsValidDate(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}
