package server

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"github.com/shaunagostinho/launcher-bridge/internal/command"
	"github.com/shaunagostinho/launcher-bridge/internal/logger"
	"github.com/shaunagostinho/launcher-bridge/internal/transport"
)

const (
	// readSize is the most a single receive hands to the interpreter.
	readSize = 1024
	// disconnectToken ends the session. Matched exactly, before lower-casing.
	disconnectToken = "disconnect"
)

// ErrDispatch wraps device failures during a session. They end Run.
var ErrDispatch = errors.New("server: device dispatch failed")

// Server owns the accept loop. There is one listener, one client and one
// command in flight at a time; timed moves block reading.
type Server struct {
	cfg       *Config
	transport transport.Transport
	interp    *command.Interpreter
	journal   *logger.Logger

	mu      sync.Mutex
	session *session

	retryBase time.Duration
	retryMax  time.Duration
}

type session struct {
	conn        transport.Conn
	interrupted atomic.Bool
}

// interrupt closes the client so a blocked Read returns.
func (s *session) interrupt() {
	if !s.interrupted.Swap(true) {
		s.conn.Close()
	}
}

// New creates a new Server.
func New(cfg *Config, t transport.Transport, interp *command.Interpreter) *Server {
	return &Server{
		cfg:       cfg,
		transport: t,
		interp:    interp,
		journal:   logger.New(cfg.Logging),
		retryBase: 1 * time.Second,
		retryMax:  60 * time.Second,
	}
}

// Run re-enters Listening after every session until ctx is done. It returns
// nil on shutdown and a wrapped ErrDispatch when the launcher fails.
//
// Listen and accept failures are retried with exponential backoff, starting
// at 1s and doubling up to 60s.
func (s *Server) Run(ctx context.Context) error {
	defer s.journal.Close()
	if s.journal.IsEnabled() {
		log.Printf("[server] command journal enabled")
	}

	delay := s.retryBase
	for {
		if ctx.Err() != nil {
			return nil
		}

		err := s.listenOnce(ctx)
		switch {
		case err == nil:
			delay = s.retryBase
			continue
		case errors.Is(err, ErrDispatch):
			return err
		case ctx.Err() != nil:
			return nil
		}

		log.Printf("[server] %v (retry in %v)", err, delay)
		select {
		case <-ctx.Done():
			return nil
		case <-time.After(delay):
		}
		delay *= 2
		if delay > s.retryMax {
			delay = s.retryMax
		}
	}
}

// Interrupt ends the active session as an interrupted read would. It
// reports false when no client is connected.
func (s *Server) Interrupt() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.session == nil {
		return false
	}
	s.session.interrupt()
	return true
}

// listenOnce runs one Idle → Listening → Connected → Idle cycle.
func (s *Server) listenOnce(ctx context.Context) error {
	l, err := s.transport.Listen(ctx)
	if err != nil {
		return fmt.Errorf("%s listen: %w", s.transport.Name(), err)
	}
	log.Printf("[server] waiting for connection on %s", l.Addr())

	conn, err := l.Accept(ctx)
	if err != nil {
		l.Close()
		return fmt.Errorf("%s accept: %w", s.transport.Name(), err)
	}
	log.Printf("[server] accepted connection from %s", conn.RemoteAddr())

	err = s.serve(ctx, conn)

	// Client first, then the listening endpoint.
	conn.Close()
	l.Close()
	log.Printf("[server] all done")
	return err
}

// serve reads commands until the client leaves, sends "disconnect", fails,
// or the session is interrupted.
func (s *Server) serve(ctx context.Context, conn transport.Conn) error {
	sess := &session{conn: conn}
	s.mu.Lock()
	s.session = sess
	s.mu.Unlock()
	defer func() {
		s.mu.Lock()
		s.session = nil
		s.mu.Unlock()
	}()

	stop := context.AfterFunc(ctx, sess.interrupt)
	defer stop()

	buf := make([]byte, readSize)
	for {
		n, err := conn.Read(buf)
		if n > 0 {
			data := string(buf[:n])
			log.Printf("[server] received [%s]", data)

			if data == disconnectToken {
				s.record(conn, data, disconnectToken)
				log.Printf("[server] manual disconnect")
				return nil
			}

			cmd := command.Parse(data)
			s.record(conn, data, cmd.Kind.String())
			if err := s.interp.Execute(cmd); err != nil {
				return fmt.Errorf("%w: %w", ErrDispatch, err)
			}
		}

		switch {
		case n == 0 && err == nil, errors.Is(err, io.EOF):
			log.Printf("[server] client closed the connection")
			return nil
		case err != nil && sess.interrupted.Load():
			log.Printf("[server] disconnected, interrupt")
			return nil
		case err != nil:
			log.Printf("[server] disconnected, IO error: %v", err)
			return nil
		}
	}
}

func (s *Server) record(conn transport.Conn, payload, action string) {
	s.journal.Record(logger.Entry{
		Transport: s.transport.Name(),
		Peer:      conn.RemoteAddr(),
		Payload:   payload,
		Action:    action,
	})
}
