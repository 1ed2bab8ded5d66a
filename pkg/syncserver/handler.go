package syncserver

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/gorilla/websocket"

	"github.com/astromechza/tasklens-sync/pkg/protocol"
)

// a close frame payload is limited to 125 bytes, two of which carry the code
const maxCloseReason = 123

var errHandshake = errors.New("handshake failed")

func (s *Server) syncRoom(writer http.ResponseWriter, request *http.Request) {
	conn, err := s.upgrader.Upgrade(writer, request, nil)
	if err != nil {
		slog.Error("failed to upgrade", "err", err)
		return
	}
	defer conn.Close()
	conn.SetReadLimit(s.config.MaxMessageBytes)

	hello, err := s.readHello(conn)
	if err != nil {
		slog.Warn("rejecting connection", "remote", request.RemoteAddr, "err", err)
		s.closeWith(conn, websocket.ClosePolicyViolation, err.Error())
		return
	}
	log := slog.With("room", hello.RoomKey, "client", hello.ClientID)
	log.Info("client joined", "last_sequence", hello.LastSequence)

	// join before scanning so that nothing appended during the scan is missed
	member := s.hub.Join(hello.RoomKey, hello.ClientID)
	defer s.hub.Leave(member)

	ctx, cancel := context.WithCancel(request.Context())
	defer cancel()

	backlog, err := s.log.Since(ctx, hello.RoomKey, hello.LastSequence)
	if err != nil {
		log.Error("failed to read backlog", "err", err)
		s.closeWith(conn, websocket.CloseInternalServerErr, err.Error())
		return
	}

	wg := new(sync.WaitGroup)
	wg.Add(1)
	go func() {
		defer wg.Done()
		defer cancel()
		if err := s.readLoop(ctx, conn, hello); err != nil {
			log.Info("read loop ended", "err", err)
		}
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		defer conn.Close()
		if err := s.writeLoop(ctx, conn, member, hello.LastSequence, backlog); err != nil {
			log.Info("write loop ended", "err", err)
		}
	}()

	wg.Wait()
	log.Info("client left")
}

func (s *Server) readHello(conn *websocket.Conn) (protocol.Hello, error) {
	_ = conn.SetReadDeadline(time.Now().Add(s.config.HandshakeTimeout))
	mt, raw, err := conn.ReadMessage()
	if err != nil {
		return protocol.Hello{}, fmt.Errorf("%w: %v", errHandshake, err)
	}
	if mt != websocket.TextMessage {
		return protocol.Hello{}, fmt.Errorf("%w: expected a text frame", errHandshake)
	}
	msg, err := protocol.DecodeClient(raw)
	if err != nil {
		return protocol.Hello{}, fmt.Errorf("%w: %v", errHandshake, err)
	}
	hello, ok := msg.(protocol.Hello)
	if !ok {
		return protocol.Hello{}, fmt.Errorf("%w: first message must be Hello", errHandshake)
	}
	if hello.ClientID == "" || hello.RoomKey == "" || hello.LastSequence < 0 {
		return protocol.Hello{}, fmt.Errorf("%w: incomplete Hello", errHandshake)
	}
	_ = conn.SetReadDeadline(time.Time{})
	return hello, nil
}

func (s *Server) readLoop(ctx context.Context, conn *websocket.Conn, hello protocol.Hello) error {
	pongWait := 2 * s.config.PingPeriod
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		mt, raw, err := conn.ReadMessage()
		if err != nil {
			return fmt.Errorf("failed to read message: %w", err)
		}
		if mt != websocket.TextMessage {
			s.closeWith(conn, websocket.CloseUnsupportedData, "expected a text frame")
			return errors.New("unexpected binary frame")
		}
		msg, err := protocol.DecodeClient(raw)
		if err != nil {
			s.closeWith(conn, websocket.ClosePolicyViolation, err.Error())
			return err
		}
		submit, ok := msg.(protocol.SubmitChange)
		if !ok {
			s.closeWith(conn, websocket.ClosePolicyViolation, "unexpected message after Hello")
			return fmt.Errorf("unexpected %T after Hello", msg)
		}
		if submit.RoomKey != hello.RoomKey {
			s.closeWith(conn, websocket.ClosePolicyViolation, "submit for a different room")
			return fmt.Errorf("submit for room %q on a connection for %q", submit.RoomKey, hello.RoomKey)
		}
		if _, err := s.hub.Submit(ctx, hello.RoomKey, hello.ClientID, submit.Payload); err != nil {
			s.closeWith(conn, websocket.CloseInternalServerErr, err.Error())
			return fmt.Errorf("failed to submit: %w", err)
		}
	}
}

// writeLoop replays the backlog and then forwards live messages, skipping anything already covered by the backlog or
// the client's own checkpoint.
func (s *Server) writeLoop(ctx context.Context, conn *websocket.Conn, member *Member, after int64, backlog []Entry) error {
	last := after
	for _, e := range backlog {
		if err := s.writeChange(conn, protocol.ChangeOccurred{
			SequenceID:     e.Sequence,
			RoomKey:        e.RoomKey,
			SourceClientID: e.ClientID,
			Payload:        e.Data,
		}); err != nil {
			return err
		}
		last = e.Sequence
	}

	t := time.NewTicker(s.config.PingPeriod)
	defer t.Stop()
	for {
		select {
		case msg := <-member.Messages():
			if msg.SequenceID <= last {
				continue
			}
			if err := s.writeChange(conn, msg); err != nil {
				return err
			}
			last = msg.SequenceID
		case <-member.Evicted():
			s.closeWith(conn, websocket.CloseTryAgainLater, "slow consumer")
			return errors.New("evicted as a slow consumer")
		case <-t.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(s.config.WriteTimeout)); err != nil {
				return fmt.Errorf("failed to ping: %w", err)
			}
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func (s *Server) writeChange(conn *websocket.Conn, msg protocol.ChangeOccurred) error {
	raw, err := protocol.EncodeServer(msg)
	if err != nil {
		return err
	}
	_ = conn.SetWriteDeadline(time.Now().Add(s.config.WriteTimeout))
	if err := conn.WriteMessage(websocket.TextMessage, raw); err != nil {
		return fmt.Errorf("failed to write message: %w", err)
	}
	return nil
}

func (s *Server) closeWith(conn *websocket.Conn, code int, reason string) {
	_ = conn.WriteControl(
		websocket.CloseMessage,
		websocket.FormatCloseMessage(code, truncateReason(reason)),
		time.Now().Add(s.config.WriteTimeout),
	)
}

func truncateReason(reason string) string {
	if len(reason) <= maxCloseReason {
		return reason
	}
	n := maxCloseReason
	for n > 0 && !utf8.RuneStart(reason[n]) {
		n--
	}
	return reason[:n]
}
