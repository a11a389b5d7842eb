// Package protocol implements the text wire protocol spoken between clients,
// the coordinator and storage nodes.
//
// # Framing
//
// Every control message is a single line of whitespace-separated tokens
// terminated by a newline. The first token names the command:
//
//	STORE a.txt 100
//	STORE_TO 4001 4002 4003
//	STORE_COMPLETE
//
// File payloads are raw bytes sent immediately after a control line, with
// no framing beyond the size declared in that line (STORE on a storage node)
// or the end of the stream (LOAD_DATA).
//
// # Conversations
//
// Client to coordinator:
//
//	STORE <name> <size>  -> STORE_TO <addr>... then STORE_COMPLETE
//	LOAD <name>          -> LOAD_FROM <addr> <size>
//	RELOAD <name>        -> LOAD_FROM <addr> <size> | ERROR_LOAD
//	REMOVE <name>        -> REMOVE_COMPLETE
//	LIST                 -> LIST <name>...
//
// Storage node to coordinator: JOIN <addr> once, then STORE_ACK <name> and
// REMOVE_ACK <name> as operations complete. The coordinator sends REMOVE
// <name> to every node holding a file being removed.
//
// Client to storage node: STORE <name> <size>, answered with ACK before the
// payload is sent; LOAD_DATA <name>, answered with the raw file contents.
//
// # Errors
//
// Operation failures travel as error tokens (ERROR_NOT_ENOUGH_DSTORES,
// ERROR_FILE_ALREADY_EXISTS, ERROR_FILE_DOES_NOT_EXIST, ERROR_LOAD).
// ErrorMessage and ErrorFromMessage translate between those tokens and the
// sentinel errors in this package so both ends can use errors.Is.
package protocol
