package node

import (
	"errors"
	"io"
	"sync/atomic"
	"time"

	"github.com/dreamware/replistore/internal/protocol"
	"github.com/dreamware/replistore/internal/storage"
)

// serveCoordinator handles REMOVE and LIST from the coordinator in receipt
// order. It returns when the connection fails.
func (n *Node) serveCoordinator(coord *protocol.Conn) error {
	for {
		msg, err := coord.ReadMessage()
		if err != nil {
			if protocol.IsProtocolError(err) {
				n.log.Warn().Err(err).Msg("ignoring malformed message from coordinator")
				continue
			}
			return err
		}

		var reply protocol.Message
		switch msg.Command {
		case protocol.Remove:
			reply = n.remove(msg.Arg(0))
		case protocol.List:
			reply = n.list()
		default:
			n.log.Warn().Str("command", msg.Command).Msg("ignoring unexpected message from coordinator")
			continue
		}
		if err := coord.Send(reply); err != nil {
			return err
		}
	}
}

func (n *Node) remove(name string) protocol.Message {
	err := n.store.Delete(name)
	switch {
	case err == nil:
		atomic.AddUint64(&n.ops.Removes, 1)
		n.log.Info().Str("file", name).Msg("file removed")
		return protocol.New(protocol.RemoveAck, name)
	case errors.Is(err, storage.ErrFileNotFound), errors.Is(err, storage.ErrInvalidName):
		n.log.Warn().Str("file", name).Msg("remove for file not held")
	default:
		n.log.Error().Err(err).Str("file", name).Msg("remove failed")
	}
	return protocol.New(protocol.ErrorFileDoesNotExist, name)
}

func (n *Node) list() protocol.Message {
	names, err := n.store.List()
	if err != nil {
		n.log.Error().Err(err).Msg("list failed")
	}
	return protocol.New(protocol.List, names...)
}

// handleClient serves one client request. Each client connection carries a
// single STORE or LOAD_DATA and is closed afterwards.
func (n *Node) handleClient(conn *protocol.Conn) {
	logger := n.log.With().Str("conn", conn.ID.String()).Logger()

	if err := conn.SetReadDeadline(time.Now().Add(n.cfg.Timeout)); err != nil {
		return
	}
	msg, err := conn.ReadMessage()
	if err != nil {
		if protocol.IsProtocolError(err) {
			logger.Warn().Err(err).Msg("malformed client request")
		}
		return
	}

	switch msg.Command {
	case protocol.Store:
		size, _ := msg.Size(1)
		n.receive(conn, msg.Arg(0), size)
	case protocol.LoadData:
		n.send(conn, msg.Arg(0))
	default:
		logger.Warn().Str("command", msg.Command).Msg("ignoring unexpected client request")
	}
}

// receive acknowledges an upload, persists exactly size bytes and reports
// STORE_ACK to the coordinator.
func (n *Node) receive(conn *protocol.Conn, name string, size int64) {
	logger := n.log.With().Str("file", name).Int64("size", size).Logger()

	if err := storage.ValidateName(name); err != nil {
		logger.Warn().Err(err).Msg("upload rejected")
		return
	}
	if err := conn.Send(protocol.New(protocol.Ack)); err != nil {
		logger.Warn().Err(err).Msg("upload ack failed")
		return
	}

	// the payload gets its own full timeout after ACK
	if err := conn.SetReadDeadline(time.Now().Add(n.cfg.Timeout)); err != nil {
		return
	}
	if err := n.store.Put(name, conn.Reader(), size); err != nil {
		logger.Warn().Err(err).Msg("upload failed")
		return
	}
	atomic.AddUint64(&n.ops.Stores, 1)

	if err := n.coord.Send(protocol.New(protocol.StoreAck, name)); err != nil {
		logger.Error().Err(err).Msg("store ack to coordinator failed")
		return
	}
	logger.Info().Msg("file stored")
}

// send streams a file to the client. A missing file closes the connection
// without a reply.
func (n *Node) send(conn *protocol.Conn, name string) {
	logger := n.log.With().Str("file", name).Logger()

	rc, size, err := n.store.Open(name)
	if err != nil {
		logger.Warn().Err(err).Msg("load for file not held")
		return
	}
	defer rc.Close()

	written, err := io.Copy(conn, rc)
	if err != nil {
		logger.Warn().Err(err).Int64("written", written).Int64("size", size).Msg("load transfer failed")
		return
	}
	atomic.AddUint64(&n.ops.Loads, 1)
	logger.Debug().Int64("size", written).Msg("file sent")
}
