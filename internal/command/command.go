// ABOUTME: Text command parsing for the hand-off chat surface
// ABOUTME: Recognizes prefixed commands and user references in quoted notices

package command

import (
	"regexp"
	"strings"
)

// Name identifies a command.
type Name string

const (
	Request     Name = "request"
	Cancel      Name = "cancel"
	LeaveQueue  Name = "leavequeue"
	QueueStatus Name = "queuestatus"
	Accept      Name = "accept"
	Reject      Name = "reject"
	Pause       Name = "pause"
	Resume      Name = "resume"
	End         Name = "end"
	Block       Name = "block"
	Unblock     Name = "unblock"
	Blacklist   Name = "blacklist"
	Help        Name = "help"
)

var aliases = map[string]Name{
	"handoff":     Request,
	"human":       Request,
	"request":     Request,
	"bot":         Cancel,
	"cancel":      Cancel,
	"leavequeue":  LeaveQueue,
	"leave":       LeaveQueue,
	"queue":       QueueStatus,
	"queuestatus": QueueStatus,
	"accept":      Accept,
	"reject":      Reject,
	"pause":       Pause,
	"resume":      Resume,
	"end":         End,
	"block":       Block,
	"unblock":     Unblock,
	"blacklist":   Blacklist,
	"help":        Help,
}

// Command is a parsed command with its optional argument.
type Command struct {
	Name Name
	Arg  string
}

// Parser recognizes commands that start with a prefix.
type Parser struct {
	prefix string
}

// NewParser creates a Parser. An empty prefix defaults to "/".
func NewParser(prefix string) *Parser {
	if prefix == "" {
		prefix = "/"
	}
	return &Parser{prefix: prefix}
}

// Prefix returns the command prefix.
func (p *Parser) Prefix() string {
	return p.prefix
}

// Parse returns the command in text, if any. Words are case-insensitive;
// only the first word after the command is kept as its argument.
func (p *Parser) Parse(text string) (Command, bool) {
	text = strings.TrimSpace(text)
	if !strings.HasPrefix(text, p.prefix) {
		return Command{}, false
	}
	fields := strings.Fields(strings.TrimPrefix(text, p.prefix))
	if len(fields) == 0 {
		return Command{}, false
	}
	name, ok := aliases[strings.ToLower(fields[0])]
	if !ok {
		return Command{}, false
	}
	cmd := Command{Name: name}
	if len(fields) > 1 {
		cmd.Arg = fields[1]
	}
	return cmd, true
}

var referencePattern = regexp.MustCompile(`\(([^()\s]+)\)`)

// ExtractReferencedUser finds the user ID an agent is replying to. Broker
// notices name users as "Name (id)"; the last parenthesized token wins.
func ExtractReferencedUser(text string) (string, bool) {
	matches := referencePattern.FindAllStringSubmatch(text, -1)
	if len(matches) == 0 {
		return "", false
	}
	return matches[len(matches)-1][1], true
}
