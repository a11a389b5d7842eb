package protocol

import "errors"

// Operation errors shared by the coordinator and clients.
// The coordinator reports each of them, except ErrPartialFailure, as an error token.
var (
	// ErrNotEnoughNodes means fewer storage nodes are live than the replication factor.
	ErrNotEnoughNodes = errors.New("not enough storage nodes")
	// ErrFileAlreadyExists means a record for the name exists in some state.
	ErrFileAlreadyExists = errors.New("file already exists")
	// ErrFileDoesNotExist means no stored file has the name.
	ErrFileDoesNotExist = errors.New("file does not exist")
	// ErrLoadUnavailable means no live replica is left to load from.
	ErrLoadUnavailable = errors.New("no replica available to load from")
	// ErrPartialFailure means a store or remove timed out before every replica acknowledged.
	ErrPartialFailure = errors.New("operation timed out before all replicas acknowledged")
)

var errorTokens = []struct {
	err   error
	token string
}{
	{ErrNotEnoughNodes, ErrorNotEnoughNodes},
	{ErrFileAlreadyExists, ErrorFileAlreadyExists},
	{ErrFileDoesNotExist, ErrorFileDoesNotExist},
	{ErrLoadUnavailable, ErrorLoad},
}

// ErrorMessage maps an operation error to the message sent to a client.
// It reports false for errors that have no protocol token.
func ErrorMessage(err error) (Message, bool) {
	for _, e := range errorTokens {
		if errors.Is(err, e.err) {
			return New(e.token), true
		}
	}
	return Message{}, false
}

// ErrorFromMessage maps an error token back to its operation error.
// It returns nil for messages that are not error tokens.
func ErrorFromMessage(m Message) error {
	for _, e := range errorTokens {
		if m.Command == e.token {
			return e.err
		}
	}
	return nil
}
