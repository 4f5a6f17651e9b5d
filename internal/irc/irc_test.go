package irc_test

import (
	"errors"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/labi-le/tinyirc/internal/irc"
)

func TestParse(t *testing.T) {
	tests := []struct {
		line string
		want irc.Message
	}{
		{
			line: "PING :irc.libera.chat\r\n",
			want: irc.Message{Command: "PING", Params: []string{"irc.libera.chat"}},
		},
		{
			line: ":nick!user@host PRIVMSG #go :hello there :)",
			want: irc.Message{
				Prefix:  "nick!user@host",
				Command: "PRIVMSG",
				Params:  []string{"#go", "hello there :)"},
			},
		},
		{
			line: ":irc.example.org 001 tiny :Welcome to the network",
			want: irc.Message{
				Prefix:  "irc.example.org",
				Command: "001",
				Params:  []string{"tiny", "Welcome to the network"},
			},
		},
		{
			line: "@time=2024-01-01T00:00:00Z;msg=a\\sb\\:c;flag :n!u@h notice  #x   :hi",
			want: irc.Message{
				Tags:    map[string]string{"time": "2024-01-01T00:00:00Z", "msg": "a b;c", "flag": ""},
				Prefix:  "n!u@h",
				Command: "NOTICE",
				Params:  []string{"#x", "hi"},
			},
		},
		{
			line: "JOIN #a,#b",
			want: irc.Message{Command: "JOIN", Params: []string{"#a,#b"}},
		},
		{
			line: ":srv 433 * tiny :Nickname is already in use",
			want: irc.Message{Prefix: "srv", Command: "433", Params: []string{"*", "tiny", "Nickname is already in use"}},
		},
		{
			line: "PRIVMSG #x :",
			want: irc.Message{Command: "PRIVMSG", Params: []string{"#x", ""}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.line, func(t *testing.T) {
			got, err := irc.Parse(tt.line)
			if err != nil {
				t.Fatalf("parse: %v", err)
			}
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("message mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestParse_Empty(t *testing.T) {
	for _, line := range []string{"", "\r\n", "   ", ":prefixonly", "@tags-only"} {
		if _, err := irc.Parse(line); !errors.Is(err, irc.ErrEmptyMessage) {
			t.Errorf("%q: got %v, want %v", line, err, irc.ErrEmptyMessage)
		}
	}
}

func TestMessage_Accessors(t *testing.T) {
	msg, err := irc.Parse(":alice!a@example.org PRIVMSG #go :hi all")
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if msg.Nick() != "alice" {
		t.Errorf("nick %q", msg.Nick())
	}
	if msg.Param(0) != "#go" || msg.Param(5) != "" || msg.Trailing() != "hi all" {
		t.Errorf("params %q", msg.Params)
	}
	if got, want := msg.String(), ":alice!a@example.org PRIVMSG #go :hi all"; got != want {
		t.Errorf("string %q, want %q", got, want)
	}
	if (irc.Message{}).Trailing() != "" {
		t.Error("trailing of empty message")
	}
}

func collect(f *irc.Framer) []string {
	var lines []string
	for {
		line, ok := f.Next()
		if !ok {
			return lines
		}
		lines = append(lines, line)
	}
}

func TestFramer(t *testing.T) {
	var f irc.Framer

	f.Feed([]byte("PING :a\r\nPI"))
	if diff := cmp.Diff([]string{"PING :a"}, collect(&f)); diff != "" {
		t.Errorf("first feed (-want +got):\n%s", diff)
	}
	if f.Buffered() != 2 {
		t.Errorf("buffered %d, want 2", f.Buffered())
	}

	f.Feed([]byte("NG :b\n\r\n:x 001 y :z\r"))
	if diff := cmp.Diff([]string{"PING :b", ""}, collect(&f)); diff != "" {
		t.Errorf("second feed (-want +got):\n%s", diff)
	}

	f.Feed([]byte("\n"))
	if diff := cmp.Diff([]string{":x 001 y :z"}, collect(&f)); diff != "" {
		t.Errorf("third feed (-want +got):\n%s", diff)
	}
}

func TestFramer_LongLine(t *testing.T) {
	var f irc.Framer

	long := strings.Repeat("a", irc.MaxLineLength+100)
	f.Feed([]byte(long))
	lines := collect(&f)
	if len(lines) != 1 || len(lines[0]) != irc.MaxLineLength {
		t.Fatalf("got %d lines, first %d bytes", len(lines), len(lines[0]))
	}

	f.Feed([]byte("tail of the long line\r\nPING :ok\r\n"))
	if diff := cmp.Diff([]string{"PING :ok"}, collect(&f)); diff != "" {
		t.Errorf("after long line (-want +got):\n%s", diff)
	}
}

func TestFramer_InvalidUTF8(t *testing.T) {
	var f irc.Framer
	f.Feed([]byte("caf\xe9\r\n"))
	if diff := cmp.Diff([]string{"caf�"}, collect(&f)); diff != "" {
		t.Errorf("mismatch (-want +got):\n%s", diff)
	}
}

func TestCommands(t *testing.T) {
	tests := []struct {
		got  string
		want string
	}{
		{irc.Nick("tiny"), "NICK tiny\r\n"},
		{irc.User("tiny", "Tiny IRC"), "USER tiny 0 * :Tiny IRC\r\n"},
		{irc.Pass("hunter2"), "PASS hunter2\r\n"},
		{irc.Pong("abc"), "PONG :abc\r\n"},
		{irc.Join("#a", "#b"), "JOIN #a,#b\r\n"},
		{irc.Part("#a", ""), "PART #a\r\n"},
		{irc.Part("#a", "bye"), "PART #a :bye\r\n"},
		{irc.Privmsg("#go", "hi"), "PRIVMSG #go :hi\r\n"},
		{irc.Quit(""), "QUIT\r\n"},
		{irc.Quit("later"), "QUIT :later\r\n"},
		{irc.Line("WHOIS tiny"), "WHOIS tiny\r\n"},
		{irc.Line("WHOIS tiny\n"), "WHOIS tiny\r\n"},
		{irc.CTCPReply("bob", "VERSION", "tinyirc 1.0"), "NOTICE bob :\x01VERSION tinyirc 1.0\x01\r\n"},
	}

	for _, tt := range tests {
		if tt.got != tt.want {
			t.Errorf("got %q, want %q", tt.got, tt.want)
		}
	}
}

func TestCTCP(t *testing.T) {
	cmd, arg, ok := irc.CTCP("\x01PING 12345\x01")
	if !ok || cmd != "PING" || arg != "12345" {
		t.Errorf("got %q %q %v", cmd, arg, ok)
	}
	cmd, _, ok = irc.CTCP("\x01version\x01")
	if !ok || cmd != "VERSION" {
		t.Errorf("got %q %v", cmd, ok)
	}
	if _, _, ok := irc.CTCP("plain text"); ok {
		t.Error("plain text parsed as ctcp")
	}
}

func TestStripControl(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"plain", "plain"},
		{"\x02bold\x02 text", "bold text"},
		{"\x0304red\x03 and \x034,12blue on\x0f reset", "red and blue on reset"},
		{"\x03,5 comma stays", ",5 comma stays"},
		{"\x0399 large", " large"},
		{"\x04FF00AAhex\x04", "hex"},
		{"\x1ditalic\x1d \x1funder\x1f \x1estrike\x1e \x11mono\x11 \x16rev", "italic under strike mono rev"},
		{"year \x032024", "year 24"},
	}

	for _, tt := range tests {
		if got := irc.StripControl(tt.in); got != tt.want {
			t.Errorf("StripControl(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestMentions(t *testing.T) {
	tests := []struct {
		text string
		want bool
	}{
		{"tiny: ping", true},
		{"hey TINY!", true},
		{"\x02tiny\x02 look", true},
		{"tinyirc is a client", false},
		{"mytiny", false},
		{"tiny_ is someone else", false},
		{"ask tiny", true},
		{"nothing here", false},
	}

	for _, tt := range tests {
		if got := irc.Mentions(tt.text, "tiny"); got != tt.want {
			t.Errorf("Mentions(%q) = %v, want %v", tt.text, got, tt.want)
		}
	}
	if irc.Mentions("anything", "") {
		t.Error("empty nick mentioned")
	}
}

func TestIsChannel(t *testing.T) {
	for target, want := range map[string]bool{"#go": true, "&local": true, "tiny": false, "": false} {
		if got := irc.IsChannel(target); got != want {
			t.Errorf("IsChannel(%q) = %v, want %v", target, got, want)
		}
	}
}
