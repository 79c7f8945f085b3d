package typeprobe

import "testing"

func TestProbeKnownMagics(t *testing.T) {
	tests := []struct {
		name string
		data []byte
		want string
	}{
		{"external-bulk", []byte("BDF3\x00\x00\x00\x00"), "bdt"},
		{"external-header", []byte("BHD5\x00\x00\x00\x00"), "bhd5"},
		{"standalone-v3", []byte("BND3\x00\x00\x00\x00"), "bnd"},
		{"standalone-v4", []byte("BND4\x00\x00\x00\x00"), "bnd"},
		{"compressed-package", []byte{'D', 'C', 'X', 0x00, 0, 0, 0, 0}, "dcx"},
		{"fmod-event", []byte("FEV \x00\x00\x00\x00"), "fev"},
		{"fmod-bank", []byte("RIFF\x00\x00\x00\x00"), "fsb"},
		{"name-table", []byte("DFPN\x00\x00\x00\x00"), "nfd"},
		{"event-def", []byte{'E', 'D', 'F', 0x00, 0, 0, 0, 0}, "emedf"},
		{"event-layout", []byte{'E', 'L', 'D', 0x00, 0, 0, 0, 0}, "emeld"},
		{"event-script", []byte{'E', 'V', 'D', 0x00, 0, 0, 0, 0}, "evd"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Probe(tt.data); got != tt.want {
				t.Errorf("Probe(%q) = %q, want %q", tt.data, got, tt.want)
			}
		})
	}
}

func TestProbeUnknownMagic(t *testing.T) {
	if got := Probe([]byte("ZZZZ")); got != "xxx" {
		t.Errorf("Probe(unknown) = %q, want %q", got, "xxx")
	}
}

func TestProbeShortInput(t *testing.T) {
	if got := Probe([]byte("BH")); got != "xxx" {
		t.Errorf("Probe(short) = %q, want %q", got, "xxx")
	}
}

func TestLabelMatchesProbe(t *testing.T) {
	data := []byte("BND3\x00\x00\x00\x00")
	if label := Label(data); label != "standalone-archive" {
		t.Errorf("Label(BND3) = %q, want %q", label, "standalone-archive")
	}
	if Label([]byte("ZZZZ")) != "" {
		t.Error("Label(unknown) should be empty")
	}
}
