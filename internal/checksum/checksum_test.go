package checksum

import "testing"

func TestSum(t *testing.T) {
	// sha256 of the empty input.
	if got := Sum(nil); got != "e3b0c44298fc1c149afbf4c8996fb92427ae41e4649b934ca495991b7852b855" {
		t.Errorf("Sum(nil) = %s", got)
	}
}

func TestMatches(t *testing.T) {
	data := []byte("entities: {}\n")
	sum := Sum(data)
	tests := []struct {
		etag string
		want bool
	}{
		{"", true},
		{sum, true},
		{`"` + sum + `"`, true},
		{`W/"` + sum + `"`, true},
		{"deadbeef", false},
	}
	for _, tt := range tests {
		if got := Matches(tt.etag, data); got != tt.want {
			t.Errorf("Matches(%q) = %v, want %v", tt.etag, got, tt.want)
		}
	}
}
