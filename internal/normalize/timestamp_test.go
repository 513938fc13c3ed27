package normalize

import (
	"errors"
	"testing"
	"time"

	"github.com/crazysoldier/CryptoBookKeeper/internal/domain"
)

func TestTimeNumericEncodings(t *testing.T) {
	want := time.Date(2024, 3, 15, 10, 30, 0, 0, time.UTC)

	tests := []struct {
		name string
		ts   domain.Timestamp
	}{
		{"epoch seconds", domain.Timestamp{Unix: 1710498600}},
		{"epoch milliseconds", domain.Timestamp{Unix: 1710498600000}},
		{"rfc3339", domain.Timestamp{ISO: "2024-03-15T10:30:00Z"}},
		{"rfc3339 offset", domain.Timestamp{ISO: "2024-03-15T12:30:00+02:00"}},
		{"naive iso", domain.Timestamp{ISO: "2024-03-15T10:30:00"}},
		{"space separated", domain.Timestamp{ISO: "2024-03-15 10:30:00"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Time(tt.ts)
			if err != nil {
				t.Fatalf("Time failed: %v", err)
			}
			if !got.Equal(want) {
				t.Errorf("got %v, want %v", got, want)
			}
			if got.Location() != time.UTC {
				t.Errorf("result not in UTC: %v", got.Location())
			}
		})
	}
}

func TestTimeFractionalSeconds(t *testing.T) {
	got, err := Time(domain.Timestamp{Unix: 1710498600.5})
	if err != nil {
		t.Fatalf("Time failed: %v", err)
	}
	want := time.Date(2024, 3, 15, 10, 30, 0, 500000000, time.UTC)
	if !got.Equal(want) {
		t.Errorf("got %v, want %v", got, want)
	}
}

func TestTimeMillisecondThreshold(t *testing.T) {
	// Same instant in both encodings must normalize identically.
	sec, err := Time(domain.Timestamp{Unix: 1700000000})
	if err != nil {
		t.Fatalf("seconds: %v", err)
	}
	ms, err := Time(domain.Timestamp{Unix: 1700000000000})
	if err != nil {
		t.Fatalf("milliseconds: %v", err)
	}
	if !sec.Equal(ms) {
		t.Errorf("seconds %v != milliseconds %v", sec, ms)
	}
}

func TestTimeUnmappable(t *testing.T) {
	tests := []struct {
		name string
		ts   domain.Timestamp
	}{
		{"empty", domain.Timestamp{}},
		{"negative", domain.Timestamp{Unix: -5}},
		{"garbage string", domain.Timestamp{ISO: "yesterday"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Time(tt.ts)
			if err == nil {
				t.Fatal("expected error")
			}
			if !errors.Is(err, domain.ErrUnmappable) {
				t.Errorf("error %v is not ErrUnmappable", err)
			}
		})
	}
}
