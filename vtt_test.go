package mkvsubs

import (
	"strings"
	"testing"
)

func TestAssembleVTT_DefaultHeader(t *testing.T) {
	got := string(assembleVTT(nil, []subtitleBlock{
		{timestampMs: 0, durationMs: 1000, payload: []byte("Hi")},
	}))

	want := "WEBVTT\n\n00:00:00.000 --> 00:00:01.000\nHi\n\n"
	if got != want {
		t.Errorf("assembleVTT() = %q, want %q", got, want)
	}
}

func TestAssembleVTT_CodecPrivateHeader(t *testing.T) {
	header := []byte("WEBVTT - with notes\n\nNOTE header note\n")
	got := string(assembleVTT(header, nil))

	if !strings.HasPrefix(got, "WEBVTT - with notes\n\nNOTE header note\n\n") {
		t.Errorf("header mangled: %q", got)
	}
}

func TestAssembleVTT_AdditionsCarryIdentifierAndSettings(t *testing.T) {
	got := string(assembleVTT(nil, []subtitleBlock{
		{
			timestampMs: 1000,
			durationMs:  2000,
			payload:     []byte("Hello"),
			additions:   []byte("cue-7\nline:0 position:50%"),
		},
	}))

	want := "WEBVTT\n\ncue-7\n00:00:01.000 --> 00:00:03.000 line:0 position:50%\nHello\n\n"
	if got != want {
		t.Errorf("assembleVTT() = %q, want %q", got, want)
	}
}

func TestAssembleVTT_AdditionsComments(t *testing.T) {
	got := string(assembleVTT(nil, []subtitleBlock{
		{
			timestampMs: 0,
			durationMs:  500,
			payload:     []byte("Hi"),
			additions:   []byte("\n\nNOTE a comment"),
		},
	}))

	want := "WEBVTT\n\nNOTE a comment\n\n00:00:00.000 --> 00:00:00.500\nHi\n\n"
	if got != want {
		t.Errorf("assembleVTT() = %q, want %q", got, want)
	}
}

func TestAssembleVTT_SortsByTimestamp(t *testing.T) {
	got := string(assembleVTT(nil, []subtitleBlock{
		{timestampMs: 9000, durationMs: 100, payload: []byte("later")},
		{timestampMs: 100, durationMs: 100, payload: []byte("sooner")},
	}))

	if strings.Index(got, "sooner") > strings.Index(got, "later") {
		t.Errorf("cues out of order:\n%s", got)
	}
}

func TestParseVTTAdditions(t *testing.T) {
	id, settings, comments := parseVTTAdditions([]byte("id-1\nline:5\nNOTE one\nNOTE two"))
	if id != "id-1" || settings != "line:5" {
		t.Errorf("got id=%q settings=%q", id, settings)
	}
	if len(comments) != 2 || comments[0] != "NOTE one" || comments[1] != "NOTE two" {
		t.Errorf("comments = %v", comments)
	}

	id, settings, comments = parseVTTAdditions(nil)
	if id != "" || settings != "" || comments != nil {
		t.Error("empty additions must yield nothing")
	}
}

func TestFormatVTTTime(t *testing.T) {
	if got := formatVTTTime(3_723_004); got != "01:02:03.004" {
		t.Errorf("formatVTTTime() = %q", got)
	}
}
