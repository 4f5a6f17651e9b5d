package irc

import "strings"

const crlf = "\r\n"

// Line terminates s with CRLF unless it already ends a line.
func Line(s string) string {
	s = strings.TrimRight(s, "\r\n")
	return s + crlf
}

func Pass(password string) string {
	return "PASS " + password + crlf
}

func Nick(nick string) string {
	return "NICK " + nick + crlf
}

func User(user, realname string) string {
	return "USER " + user + " 0 * :" + realname + crlf
}

func Pong(token string) string {
	return "PONG :" + token + crlf
}

func Join(channels ...string) string {
	return "JOIN " + strings.Join(channels, ",") + crlf
}

func Part(channel, reason string) string {
	if reason == "" {
		return "PART " + channel + crlf
	}
	return "PART " + channel + " :" + reason + crlf
}

func Privmsg(target, text string) string {
	return "PRIVMSG " + target + " :" + text + crlf
}

func Notice(target, text string) string {
	return "NOTICE " + target + " :" + text + crlf
}

func Quit(reason string) string {
	if reason == "" {
		return "QUIT" + crlf
	}
	return "QUIT :" + reason + crlf
}

const ctcpDelim = "\x01"

// CTCP splits a CTCP request such as "\x01VERSION\x01" into its command
// and argument.
func CTCP(text string) (command, arg string, ok bool) {
	if len(text) < 2 || !strings.HasPrefix(text, ctcpDelim) {
		return "", "", false
	}
	body := strings.TrimSuffix(text[1:], ctcpDelim)
	command, arg, _ = strings.Cut(body, " ")
	return strings.ToUpper(command), arg, command != ""
}

// CTCPReply answers a CTCP request with a NOTICE.
func CTCPReply(target, command, arg string) string {
	body := command
	if arg != "" {
		body += " " + arg
	}
	return Notice(target, ctcpDelim+body+ctcpDelim)
}
