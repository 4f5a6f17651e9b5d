package main

import (
	"bytes"
	"errors"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/labi-le/tinyirc/internal/irc"
	"github.com/rs/zerolog"
)

func TestInterpret(t *testing.T) {
	tests := []struct {
		name    string
		text    string
		target  string
		want    input
		wantErr error
	}{
		{
			name:   "plain text goes to target",
			text:   "hello there",
			target: "#go",
			want:   input{Line: "PRIVMSG #go :hello there\r\n", Target: "#go"},
		},
		{
			name:    "plain text without target",
			text:    "hello",
			wantErr: ErrNoTarget,
		},
		{
			name:   "escaped slash",
			text:   "//not a command",
			target: "#go",
			want:   input{Line: "PRIVMSG #go :/not a command\r\n", Target: "#go"},
		},
		{
			name:   "quit with reason",
			text:   "/quit see you",
			target: "#go",
			want:   input{Quit: true, Reason: "see you", Target: "#go"},
		},
		{
			name: "raw",
			text: "/raw MODE tester +i",
			want: input{Line: "MODE tester +i\r\n"},
		},
		{
			name:    "raw without line",
			text:    "/raw",
			wantErr: ErrUsage,
		},
		{
			name:   "join switches target",
			text:   "/join #rust",
			target: "#go",
			want:   input{Line: "JOIN #rust\r\n", Target: "#rust"},
		},
		{
			name:   "part current target",
			text:   "/part",
			target: "#go",
			want:   input{Line: "PART #go\r\n"},
		},
		{
			name:   "msg keeps target",
			text:   "/msg NickServ identify secret",
			target: "#go",
			want:   input{Line: "PRIVMSG NickServ :identify secret\r\n", Target: "#go"},
		},
		{
			name:   "me",
			text:   "/me waves",
			target: "#go",
			want:   input{Line: "PRIVMSG #go :\x01ACTION waves\x01\r\n", Target: "#go"},
		},
		{
			name:   "other commands pass through",
			text:   "/whois bob",
			target: "#go",
			want:   input{Line: "WHOIS bob\r\n", Target: "#go"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := interpret(tt.text, tt.target)
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("error %v, want %v", err, tt.wantErr)
			}
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("input mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestPrinter_OnMessage(t *testing.T) {
	var out bytes.Buffer
	p := newPrinter(&out, zerolog.Nop())
	p.now = func() time.Time { return time.Date(2024, 1, 2, 13, 4, 0, 0, time.UTC) }

	for _, line := range []string{
		":bob!b@h PRIVMSG #go :\x02hi\x02 all",
		":bob!b@h PRIVMSG #go :\x01ACTION waves\x01",
		":bob!b@h PRIVMSG tester :\x01VERSION\x01",
		":irc.test 372 tester :- motd line",
		":irc.test PONG irc.test :x",
		":bob!b@h NICK robert",
	} {
		msg, err := irc.Parse(line)
		if err != nil {
			t.Fatalf("parse %q: %v", line, err)
		}
		p.OnMessage("test", msg)
	}

	want := "13:04 #go <bob> hi all\n" +
		"13:04 #go * bob waves\n" +
		"13:04 - motd line\n" +
		"13:04 bob is now known as robert\n"
	if diff := cmp.Diff(want, out.String()); diff != "" {
		t.Errorf("output mismatch (-want +got):\n%s", diff)
	}
}

func TestServiceArgs(t *testing.T) {
	got := serviceArgs([]string{"-s", "irc.libera.chat", "--install-service", "-j", "#go", "--install-service=true"})
	want := []string{"-s", "irc.libera.chat", "-j", "#go"}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("args mismatch (-want +got):\n%s", diff)
	}
}
