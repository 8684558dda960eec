package cli

import (
	"strings"
	"testing"
	"time"

	"github.com/alecthomas/kong"
)

func TestLoadYAML(t *testing.T) {
	const doc = `
log:
  level: debug
  time_layout: kitchen
listen: ":8000"
port-range: [8080-8089, 4040-4049]
burst: 20
rate: 0.5
watch: false
stop_timeout: 10s
`

	r, err := loadYAML(strings.NewReader(doc))
	if err != nil {
		t.Fatal(err)
	}

	want := config{
		"log-level":       "debug",
		"log-time-layout": "kitchen",
		"listen":          ":8000",
		"port-range":      "8080-8089,4040-4049",
		"burst":           "20",
		"rate":            "0.5",
		"watch":           false,
		"stop-timeout":    "10s",
	}

	got, ok := r.(config)
	if !ok {
		t.Fatalf("resolver type = %T", r)
	}

	for k, v := range want {
		if got[k] != v {
			t.Errorf("%s = %#v, want %#v", k, got[k], v)
		}
	}

	if len(got) != len(want) {
		t.Errorf("got %d keys, want %d: %v", len(got), len(want), got)
	}
}

func TestLoadTOML(t *testing.T) {
	const doc = `
listen = ":8000"
burst = 20

[log]
level = "warn"
pretty = false
`

	r, err := loadTOML(strings.NewReader(doc))
	if err != nil {
		t.Fatal(err)
	}

	got := r.(config)

	want := config{
		"listen":     ":8000",
		"burst":      "20",
		"log-level":  "warn",
		"log-pretty": false,
	}

	for k, v := range want {
		if got[k] != v {
			t.Errorf("%s = %#v, want %#v", k, got[k], v)
		}
	}
}

func TestLoad_InvalidIgnored(t *testing.T) {
	for name, load := range map[string]kong.ConfigurationLoader{
		"yaml": loadYAML,
		"toml": loadTOML,
	} {
		t.Run(name, func(t *testing.T) {
			r, err := load(strings.NewReader("key: [unterminated\n= = ="))
			if err != nil {
				t.Fatal(err)
			}

			if len(r.(config)) != 0 {
				t.Errorf("invalid config should resolve nothing, got %v", r)
			}
		})
	}
}

func TestConfig_Resolve(t *testing.T) {
	var cli struct {
		Listen  string        `default:":5000"`
		Burst   int           `default:"10"`
		Rate    float64       `default:"2"`
		Watch   bool          `default:"true" negatable:""`
		Timeout time.Duration `default:"5s"`
		Ports   []int
		Other   string `default:"unchanged"`
	}

	r, err := loadYAML(strings.NewReader(`
listen: ":9000"
burst: 3
rate: 0.25
watch: false
timeout: 1m
ports: [1, 2, 3]
`))
	if err != nil {
		t.Fatal(err)
	}

	parser, err := kong.New(&cli, kong.Resolvers(r))
	if err != nil {
		t.Fatal(err)
	}

	if _, err := parser.Parse([]string{"--burst=4"}); err != nil {
		t.Fatal(err)
	}

	if cli.Listen != ":9000" || cli.Rate != 0.25 || cli.Watch || cli.Timeout != time.Minute {
		t.Errorf("resolved = %+v", cli)
	}

	if cli.Burst != 4 {
		t.Errorf("command line should override config, burst = %d", cli.Burst)
	}

	if len(cli.Ports) != 3 || cli.Ports[2] != 3 {
		t.Errorf("ports = %v", cli.Ports)
	}

	if cli.Other != "unchanged" {
		t.Errorf("other = %q", cli.Other)
	}
}

func TestScalar(t *testing.T) {
	tests := []struct {
		in   any
		want any
		ok   bool
	}{
		{in: nil},
		{in: "s", want: "s", ok: true},
		{in: true, want: true, ok: true},
		{in: uint64(7), want: "7", ok: true},
		{in: int64(-7), want: "-7", ok: true},
		{in: 1.25, want: "1.25", ok: true},
		{in: []any{"a", uint64(1)}, want: "a,1", ok: true},
		{in: []any{"a", nil}},
	}

	for _, tt := range tests {
		got, ok := scalar(tt.in)
		if ok != tt.ok || got != tt.want {
			t.Errorf("scalar(%#v) = %#v, %v; want %#v, %v", tt.in, got, ok, tt.want, tt.ok)
		}
	}
}
