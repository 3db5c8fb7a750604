package logs

import (
	"bytes"
	"log"
	"os"
	"strings"
	"testing"
)

func TestParseFlags(t *testing.T) {
	cases := map[string]int{
		"":                        defaultFlags,
		"date,time":               log.Ldate | log.Ltime,
		"shortfile, UTC":          log.Lshortfile | log.LUTC,
		"microseconds,bogus,UTC":  log.Lmicroseconds | log.LUTC,
		"longfile,msgprefix,date": log.Llongfile | log.Lmsgprefix | log.Ldate,
	}
	for in, want := range cases {
		if got := parseFlags(in); got != want {
			t.Errorf("parseFlags('%s'): expected %d, got %d", in, want, got)
		}
	}
}

func TestInit(t *testing.T) {
	var buf bytes.Buffer
	Init(&buf, "msgprefix")
	defer Init(os.Stderr, "")

	Warn.Println("stream renamed")
	if !strings.HasPrefix(buf.String(), "Wstream renamed") {
		t.Errorf("Unexpected log output '%s'", buf.String())
	}
}
