// Package protocol defines the line-oriented chat command grammar and the
// formatting of server-to-client messages. Each client line is one command;
// the first whitespace-delimited token selects it and the remainder of the
// line is taken verbatim as the message body. Colors are cosmetic sugar and
// not part of the protocol contract.
package protocol

import (
	"errors"
	"strings"

	"github.com/gookit/color"
)

// Kind identifies a parsed client command.
type Kind int

const (
	KindDirect       Kind = iota // /msg <username> <message>
	KindBroadcast                // /broadcast <message>
	KindCreateGroup              // /create_group <groupname>
	KindJoinGroup                // /join_group <groupname>
	KindLeaveGroup               // /leave_group <groupname>
	KindGroupMessage             // /group_msg <groupname> <message>
	KindClose                    // CLOSE
)

var (
	// ErrUnknownCommand is returned for input that matches no command.
	ErrUnknownCommand = errors.New("unknown command")

	// ErrMissingArgument is returned when a command lacks a required
	// target or message body.
	ErrMissingArgument = errors.New("missing argument")
)

// Command is one parsed client command. Target holds the username or group
// name for addressed commands; Body holds the message text verbatim,
// including any embedded whitespace.
type Command struct {
	Kind   Kind
	Target string
	Body   string
}

// Parse interprets a single input line as a chat command. Command words and
// names are case-sensitive; "CLOSE" must match exactly. The line is split
// into at most as many tokens as the command takes arguments, so message
// bodies keep embedded delimiters untouched.
//
// Parameters:
//   - line: One logical input line, without the trailing newline
//
// Returns:
//   - The parsed Command, or an error (ErrUnknownCommand, ErrMissingArgument)
func Parse(line string) (Command, error) {
	if line == "CLOSE" {
		return Command{Kind: KindClose}, nil
	}

	word, rest, _ := strings.Cut(line, " ")
	switch word {
	case "/msg":
		target, body, ok := strings.Cut(rest, " ")
		if !ok || target == "" || body == "" {
			return Command{}, ErrMissingArgument
		}

		return Command{Kind: KindDirect, Target: target, Body: body}, nil
	case "/broadcast":
		if rest == "" {
			return Command{}, ErrMissingArgument
		}

		return Command{Kind: KindBroadcast, Body: rest}, nil
	case "/create_group":
		if rest == "" {
			return Command{}, ErrMissingArgument
		}

		return Command{Kind: KindCreateGroup, Target: rest}, nil
	case "/join_group":
		if rest == "" {
			return Command{}, ErrMissingArgument
		}

		return Command{Kind: KindJoinGroup, Target: rest}, nil
	case "/leave_group":
		if rest == "" {
			return Command{}, ErrMissingArgument
		}

		return Command{Kind: KindLeaveGroup, Target: rest}, nil
	case "/group_msg":
		target, body, ok := strings.Cut(rest, " ")
		if !ok || target == "" || body == "" {
			return Command{}, ErrMissingArgument
		}

		return Command{Kind: KindGroupMessage, Target: target, Body: body}, nil
	}

	return Command{}, ErrUnknownCommand
}

// ChatMessage formats a chat line delivered to a recipient, tagged with the
// sender's username so the recipient can identify the source.
//
// Parameters:
//   - sender: The sending user's name
//   - body: The message text
//
// Returns:
//   - The formatted line, without a trailing newline
func ChatMessage(sender, body string) string {
	return color.FgBlue.Render(sender) + ": " + color.FgLightGreen.Render(body)
}

// GroupMessage formats a chat line delivered to a group, tagged with both
// the group name and the sender's username.
//
// Parameters:
//   - group: The group name
//   - sender: The sending user's name
//   - body: The message text
//
// Returns:
//   - The formatted line, without a trailing newline
func GroupMessage(group, sender, body string) string {
	return "[" + color.FgGreen.Render(group) + "] " + ChatMessage(sender, body)
}

// ServerMessage formats a system notice. The fixed "server" tag keeps
// system output distinguishable from chat messages.
//
// Parameters:
//   - text: The notice text
//
// Returns:
//   - The formatted line, without a trailing newline
func ServerMessage(text string) string {
	return color.FgLightCyan.Render("server") + ": " + text
}

// ErrorMessage formats an error reported back to the offending client.
//
// Parameters:
//   - text: The human-readable explanation
//
// Returns:
//   - The formatted line, without a trailing newline
func ErrorMessage(text string) string {
	return color.FgLightCyan.Render("server") + ": " + color.FgRed.Render(text)
}

// Help returns the command list sent after a successful login and with
// every unrecognized command. The result spans multiple lines and ends
// without a trailing newline.
//
// Returns:
//   - The multi-line help text
func Help() string {
	lines := []string{
		ServerMessage("Available commands:"),
		color.FgLightGreen.Render("/msg <username> <message>") + " : Send a message to a user",
		color.FgLightGreen.Render("/broadcast <message>") + " : Send a message to all users",
		color.FgLightGreen.Render("/create_group <groupname>") + " : Create a group",
		color.FgLightGreen.Render("/join_group <groupname>") + " : Join a group",
		color.FgLightGreen.Render("/leave_group <groupname>") + " : Leave a group",
		color.FgLightGreen.Render("/group_msg <groupname> <message>") + " : Send a message to a group",
		color.FgLightGreen.Render("CLOSE") + " : Close the connection",
	}

	return strings.Join(lines, "\n")
}
