package archive

import (
	"strings"
	"testing"
)

func TestS3Storage_ImplementsStorage(t *testing.T) {
	var _ Storage = (*S3Storage)(nil)
}

func TestS3Storage_Key(t *testing.T) {
	tests := []struct {
		prefix string
		path   string
		want   string
	}{
		{"", "analyses/card/1/a.json", "analyses/card/1/a.json"},
		{"cardquant", "analyses/card/1/a.json", "cardquant/analyses/card/1/a.json"},
		{"cardquant/", "a.json", "cardquant/a.json"},
	}

	for _, tt := range tests {
		s := &S3Storage{prefix: strings.TrimSuffix(tt.prefix, "/")}
		got := s.key(tt.path)
		if got != tt.want {
			t.Errorf("key(%q) with prefix %q = %q, want %q", tt.path, tt.prefix, got, tt.want)
		}
	}
}

func TestNewS3_Defaults(t *testing.T) {
	s, err := NewS3(S3Config{Bucket: "prices", Endpoint: "http://localhost:9000", Prefix: "cold/"})
	if err != nil {
		t.Fatalf("NewS3: %v", err)
	}
	if s.bucket != "prices" || s.prefix != "cold" {
		t.Errorf("unexpected storage %+v", s)
	}
}

func TestContentType(t *testing.T) {
	if got := contentType("a/b.json"); got != "application/json" {
		t.Errorf("contentType(json) = %q", got)
	}
	if got := contentType("a/b.bin"); got != "application/octet-stream" {
		t.Errorf("contentType(bin) = %q", got)
	}
}
