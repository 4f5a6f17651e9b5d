package main

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/labi-le/tinyirc/internal/client"
	"github.com/labi-le/tinyirc/internal/irc"
	"github.com/rs/zerolog"
)

var (
	ErrNoTarget = errors.New("no channel to talk to, use /join or /msg")
	ErrUsage    = errors.New("usage")
)

// quitRequest carries the /quit reason through context cancellation.
type quitRequest string

func (q quitRequest) Error() string {
	return "quit: " + string(q)
}

// printer renders server traffic on the terminal.
type printer struct {
	out    io.Writer
	logger zerolog.Logger
	now    func() time.Time
}

func newPrinter(out io.Writer, logger zerolog.Logger) *printer {
	return &printer{out: out, logger: logger, now: time.Now}
}

func (p *printer) OnStatus(st client.Status) {
	if st.Err != nil {
		p.logger.Warn().Msg(st.String())
		return
	}
	p.logger.Info().Msg(st.String())
}

func (p *printer) OnMessage(_ string, msg irc.Message) {
	if line, ok := p.format(msg); ok {
		_, _ = fmt.Fprintln(p.out, p.now().Format("15:04")+" "+line)
	}
}

func (p *printer) format(msg irc.Message) (string, bool) {
	text := irc.StripControl(msg.Trailing())

	switch msg.Command {
	case "PRIVMSG":
		if command, arg, ok := irc.CTCP(msg.Trailing()); ok {
			if command != "ACTION" {
				return "", false
			}
			return fmt.Sprintf("%s * %s %s", msg.Param(0), msg.Nick(), irc.StripControl(arg)), true
		}
		return fmt.Sprintf("%s <%s> %s", msg.Param(0), msg.Nick(), text), true
	case "NOTICE":
		return fmt.Sprintf("-%s- %s", msg.Nick(), text), true
	case "JOIN":
		return fmt.Sprintf("%s --> %s joined", msg.Param(0), msg.Nick()), true
	case "PART":
		return fmt.Sprintf("%s <-- %s left (%s)", msg.Param(0), msg.Nick(), text), true
	case "QUIT":
		return fmt.Sprintf("<-- %s quit (%s)", msg.Nick(), text), true
	case "NICK":
		return fmt.Sprintf("%s is now known as %s", msg.Nick(), msg.Param(0)), true
	case "ERROR":
		return "error: " + text, true
	}

	if isNumeric(msg.Command) && text != "" {
		return text, true
	}
	return "", false
}

func isNumeric(command string) bool {
	if len(command) != 3 {
		return false
	}
	for i := range len(command) {
		if command[i] < '0' || command[i] > '9' {
			return false
		}
	}
	return true
}

// input is what a line typed by the user asks for.
type input struct {
	Line   string
	Target string
	Quit   bool
	Reason string
}

// interpret turns one line of user input into an IRC line, given the
// current default target.
func interpret(text, target string) (input, error) {
	text = strings.TrimRight(text, "\r\n")
	if !strings.HasPrefix(text, "/") || strings.HasPrefix(text, "//") {
		text = strings.TrimPrefix(text, "/")
		if target == "" {
			return input{}, ErrNoTarget
		}
		return input{Line: irc.Privmsg(target, text), Target: target}, nil
	}

	command, rest, _ := strings.Cut(text[1:], " ")
	rest = strings.TrimSpace(rest)

	switch strings.ToLower(command) {
	case "quit":
		return input{Quit: true, Reason: rest, Target: target}, nil
	case "raw", "quote":
		if rest == "" {
			return input{}, fmt.Errorf("%w: /raw <line>", ErrUsage)
		}
		return input{Line: irc.Line(rest), Target: target}, nil
	case "join":
		if rest == "" {
			return input{}, fmt.Errorf("%w: /join <channel>", ErrUsage)
		}
		channel, _, _ := strings.Cut(rest, " ")
		return input{Line: irc.Join(channel), Target: channel}, nil
	case "part":
		channel, reason, _ := strings.Cut(rest, " ")
		if channel == "" {
			channel = target
		}
		if channel == "" {
			return input{}, fmt.Errorf("%w: /part <channel> [reason]", ErrUsage)
		}
		next := target
		if strings.EqualFold(channel, target) {
			next = ""
		}
		return input{Line: irc.Part(channel, reason), Target: next}, nil
	case "msg":
		to, msg, _ := strings.Cut(rest, " ")
		if to == "" || msg == "" {
			return input{}, fmt.Errorf("%w: /msg <target> <text>", ErrUsage)
		}
		return input{Line: irc.Privmsg(to, msg), Target: target}, nil
	case "me":
		if target == "" {
			return input{}, ErrNoTarget
		}
		return input{Line: irc.Privmsg(target, "\x01ACTION "+rest+"\x01"), Target: target}, nil
	case "":
		return input{}, fmt.Errorf("%w: /<command> [args]", ErrUsage)
	default:
		line := strings.ToUpper(command)
		if rest != "" {
			line += " " + rest
		}
		return input{Line: irc.Line(line), Target: target}, nil
	}
}

// readInput forwards stdin to srv until EOF or /quit.
func readInput(in io.Reader, srv *client.Server, target string, quit func(error), logger zerolog.Logger) {
	sc := bufio.NewScanner(in)
	for sc.Scan() {
		if strings.TrimSpace(sc.Text()) == "" {
			continue
		}

		cmd, err := interpret(sc.Text(), target)
		if err != nil {
			logger.Warn().Msg(err.Error())
			continue
		}
		target = cmd.Target

		if cmd.Quit {
			quit(quitRequest(cmd.Reason))
			return
		}
		if err := srv.Send(cmd.Line); err != nil {
			logger.Warn().Err(err).Msg("send")
		}
	}

	if err := sc.Err(); err != nil {
		logger.Warn().Err(err).Msg("stdin")
	}
}
