package ledger

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/shopspring/decimal"
)

// Stream errors.
var (
	ErrStreamClosed = errors.New("ledger stream closed")
)

// StreamConfig configures the ledger event stream.
type StreamConfig struct {
	URL          string        // WebSocket URL of the ledger event endpoint
	Markets      []string      // markets to receive consensus ticks for
	WriteTimeout time.Duration // write deadline for control frames
	BufferSize   int           // event channel buffer size
}

// DefaultStreamConfig returns sensible defaults.
func DefaultStreamConfig() StreamConfig {
	return StreamConfig{
		WriteTimeout: 5 * time.Second,
		BufferSize:   256,
	}
}

// Stream delivers block notifications and per-market consensus ticks from the
// ledger over a WebSocket subscription.
type Stream struct {
	cfg    StreamConfig
	logger *slog.Logger

	conn *websocket.Conn

	blocks chan Block
	ticks  chan ConsensusTick
	errs   chan error
	done   chan struct{}

	mu     sync.Mutex
	closed bool
}

// NewStream creates a ledger event stream.
func NewStream(cfg StreamConfig, logger *slog.Logger) *Stream {
	if logger == nil {
		logger = slog.Default()
	}
	return &Stream{
		cfg:    cfg,
		logger: logger,
		blocks: make(chan Block, cfg.BufferSize),
		ticks:  make(chan ConsensusTick, cfg.BufferSize),
		errs:   make(chan error, 1),
		done:   make(chan struct{}),
	}
}

// Connect dials the ledger, subscribes to blocks and the configured markets,
// and starts the read loop.
func (s *Stream) Connect(ctx context.Context) error {
	dialer := websocket.Dialer{HandshakeTimeout: 10 * time.Second}

	conn, _, err := dialer.DialContext(ctx, s.cfg.URL, nil)
	if err != nil {
		return err
	}
	s.conn = conn

	conn.SetPingHandler(func(data string) error {
		return conn.WriteControl(
			websocket.PongMessage,
			[]byte(data),
			time.Now().Add(s.cfg.WriteTimeout),
		)
	})

	sub := struct {
		Subscribe []string `json:"subscribe"`
		Markets   []string `json:"markets"`
	}{
		Subscribe: []string{"blocks", "ticks"},
		Markets:   s.cfg.Markets,
	}
	if err := conn.WriteJSON(sub); err != nil {
		conn.Close()
		return err
	}

	go s.readLoop()

	s.logger.Debug("ledger stream connected", "url", s.cfg.URL, "markets", s.cfg.Markets)
	return nil
}

// Blocks returns the block notification channel.
func (s *Stream) Blocks() <-chan Block { return s.blocks }

// Ticks returns the consensus tick channel.
func (s *Stream) Ticks() <-chan ConsensusTick { return s.ticks }

// Errors returns the stream error channel.
func (s *Stream) Errors() <-chan error { return s.errs }

// Close shuts the stream down.
func (s *Stream) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.mu.Unlock()

	close(s.done)

	if s.conn != nil {
		s.conn.WriteControl(
			websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(s.cfg.WriteTimeout),
		)
		return s.conn.Close()
	}
	return nil
}

// eventWire is the envelope for stream events.
type eventWire struct {
	Type      string `json:"type"` // "block" or "tick"
	Height    int64  `json:"height,omitempty"`
	Time      int64  `json:"time,omitempty"` // unix seconds
	Market    string `json:"market,omitempty"`
	Consensus string `json:"consensus,omitempty"`
}

// readLoop decodes stream events and fans them out.
func (s *Stream) readLoop() {
	for {
		select {
		case <-s.done:
			return
		default:
		}

		_, data, err := s.conn.ReadMessage()
		if err != nil {
			select {
			case <-s.done:
			default:
				select {
				case s.errs <- err:
				default:
				}
			}
			return
		}

		var ev eventWire
		if err := json.Unmarshal(data, &ev); err != nil {
			s.logger.Warn("malformed stream event", "err", err)
			continue
		}

		switch ev.Type {
		case "block":
			s.deliver(func() {
				select {
				case s.blocks <- Block{Height: ev.Height, Time: time.Unix(ev.Time, 0)}:
				default:
					s.logger.Warn("block channel full, dropping notification", "height", ev.Height)
				}
			})
		case "tick":
			consensus, err := decimal.NewFromString(ev.Consensus)
			if err != nil {
				s.logger.Warn("malformed consensus tick", "market", ev.Market, "err", err)
				continue
			}
			s.deliver(func() {
				select {
				case s.ticks <- ConsensusTick{Market: ev.Market, Consensus: consensus}:
				default:
					s.logger.Warn("tick channel full, dropping tick", "market", ev.Market)
				}
			})
		default:
			s.logger.Debug("skipping stream event type", "type", ev.Type)
		}
	}
}

func (s *Stream) deliver(send func()) {
	select {
	case <-s.done:
	default:
		send()
	}
}
