package protocol

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// Command tokens exchanged between clients, the coordinator and storage nodes.
const (
	Join           = "JOIN"
	Store          = "STORE"
	StoreTo        = "STORE_TO"
	StoreAck       = "STORE_ACK"
	StoreComplete  = "STORE_COMPLETE"
	Load           = "LOAD"
	LoadFrom       = "LOAD_FROM"
	LoadData       = "LOAD_DATA"
	Reload         = "RELOAD"
	Remove         = "REMOVE"
	RemoveAck      = "REMOVE_ACK"
	RemoveComplete = "REMOVE_COMPLETE"
	List           = "LIST"
	Ack            = "ACK"

	ErrorNotEnoughNodes    = "ERROR_NOT_ENOUGH_DSTORES"
	ErrorFileAlreadyExists = "ERROR_FILE_ALREADY_EXISTS"
	ErrorFileDoesNotExist  = "ERROR_FILE_DOES_NOT_EXIST"
	ErrorLoad              = "ERROR_LOAD"
)

var (
	// ErrMalformed is returned by Parse when a line has the wrong shape for its command.
	ErrMalformed = errors.New("malformed message")
	// ErrUnknownCommand is returned by Parse when the first token is not a known command.
	ErrUnknownCommand = errors.New("unknown command")
)

// arity describes how many arguments a command accepts.
// max < 0 means the command is variadic from min upwards.
type arity struct {
	min, max int
}

var commands = map[string]arity{
	Join:           {1, 1},
	Store:          {2, 2},
	StoreTo:        {0, -1},
	StoreAck:       {1, 1},
	StoreComplete:  {0, 0},
	Load:           {1, 1},
	LoadFrom:       {2, 2},
	LoadData:       {1, 1},
	Reload:         {1, 1},
	Remove:         {1, 1},
	RemoveAck:      {1, 1},
	RemoveComplete: {0, 0},
	List:           {0, -1},
	Ack:            {0, 0},

	ErrorNotEnoughNodes:    {0, 0},
	ErrorFileAlreadyExists: {0, 0},
	// storage nodes name the missing file, the coordinator does not
	ErrorFileDoesNotExist: {0, 1},
	ErrorLoad:             {0, 0},
}

// Message is one decoded protocol line: a command token and its arguments.
type Message struct {
	Command string
	Args    []string
}

// New builds a message from a command and its arguments.
func New(command string, args ...string) Message {
	return Message{Command: command, Args: args}
}

// Parse decodes a single protocol line (without its trailing newline).
// Tokens are separated by any run of whitespace.
func Parse(line string) (Message, error) {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return Message{}, fmt.Errorf("%w: empty line", ErrMalformed)
	}

	cmd, args := fields[0], fields[1:]
	a, ok := commands[cmd]
	if !ok {
		return Message{}, fmt.Errorf("%w: %q", ErrUnknownCommand, cmd)
	}
	if len(args) < a.min || (a.max >= 0 && len(args) > a.max) {
		return Message{}, fmt.Errorf("%w: %s takes %s, got %d", ErrMalformed, cmd, a, len(args))
	}

	msg := Message{Command: cmd, Args: args}
	switch cmd {
	case Store:
		if _, err := msg.Size(1); err != nil {
			return Message{}, err
		}
	case LoadFrom:
		if _, err := msg.Size(1); err != nil {
			return Message{}, err
		}
	}
	return msg, nil
}

// Arg returns the i-th argument or "" when absent.
func (m Message) Arg(i int) string {
	if i < 0 || i >= len(m.Args) {
		return ""
	}
	return m.Args[i]
}

// Size parses the i-th argument as a non-negative byte count.
func (m Message) Size(i int) (int64, error) {
	raw := m.Arg(i)
	n, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || n < 0 {
		return 0, fmt.Errorf("%w: %s size %q", ErrMalformed, m.Command, raw)
	}
	return n, nil
}

// String renders the canonical single-space form of the message, without newline.
func (m Message) String() string {
	if len(m.Args) == 0 {
		return m.Command
	}
	return m.Command + " " + strings.Join(m.Args, " ")
}

func (a arity) String() string {
	switch {
	case a.max < 0:
		return fmt.Sprintf("at least %d args", a.min)
	case a.min == a.max:
		return fmt.Sprintf("%d args", a.min)
	default:
		return fmt.Sprintf("%d-%d args", a.min, a.max)
	}
}
