package nanny

import (
	"errors"
	"slices"
	"testing"
	"time"
)

func TestParsePortRange(t *testing.T) {
	tests := []struct {
		in      string
		want    PortRange
		wantErr bool
	}{
		{in: "8080-8089", want: PortRange{8080, 8089}},
		{in: " 4040 - 4049 ", want: PortRange{4040, 4049}},
		{in: "9000", want: PortRange{9000, 9000}},
		{in: "9001-9000", wantErr: true},
		{in: "0-10", wantErr: true},
		{in: "1-70000", wantErr: true},
		{in: "a-b", wantErr: true},
		{in: "", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParsePortRange(tt.in)
			if tt.wantErr {
				if !errors.Is(err, ErrInvalidRange) {
					t.Fatalf("ParsePortRange(%q) error = %v, want ErrInvalidRange", tt.in, err)
				}

				return
			}

			if err != nil {
				t.Fatalf("ParsePortRange(%q): %v", tt.in, err)
			}

			if got != tt.want {
				t.Errorf("ParsePortRange(%q) = %v, want %v", tt.in, got, tt.want)
			}
		})
	}
}

func TestPortRange_Text(t *testing.T) {
	var r PortRange

	if err := r.UnmarshalText([]byte("10-12")); err != nil {
		t.Fatal(err)
	}

	text, _ := r.MarshalText()
	if string(text) != "10-12" {
		t.Errorf("MarshalText = %q", text)
	}

	if got := r.Ports(); !slices.Equal(got, []int{10, 11, 12}) {
		t.Errorf("Ports = %v", got)
	}

	if err := r.UnmarshalText([]byte("x")); err == nil {
		t.Error("UnmarshalText(x) should fail")
	}
}

func TestMakeConfig(t *testing.T) {
	c := MakeConfig()

	if c.MetadataFile != DefaultMetadataFile || c.StopTimeout != DefaultStopTimeout ||
		c.ProbeHost != DefaultProbeHost || c.Expiry != DefaultExpiry ||
		c.ReapInterval != DefaultReapInterval || !c.Watch {
		t.Errorf("unexpected defaults: %+v", c)
	}

	if !slices.Equal(c.PortRanges, DefaultPortRanges()) {
		t.Errorf("PortRanges = %v", c.PortRanges)
	}

	c = MakeConfig(
		WithStorageDir("/srv/apps"),
		WithMetadataFile("meta.json"),
		WithStopTimeout(time.Second),
		WithExpiry(0), // ignored
		nil,
	)

	if c.MetadataPath() != "/srv/apps/meta.json" {
		t.Errorf("MetadataPath = %q", c.MetadataPath())
	}

	if c.AppDir("demo") != "/srv/apps/demo" {
		t.Errorf("AppDir = %q", c.AppDir("demo"))
	}

	if c.StopTimeout != time.Second || c.Expiry != DefaultExpiry {
		t.Errorf("options not applied: %+v", c)
	}
}
