package ws

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/coder/websocket"
	"github.com/mwheeler/chartsync/shared"
	"github.com/rs/zerolog"
	"github.com/tidwall/gjson"
)

const (
	// tickType tags a price tick stream frame.
	tickType = "tick"
	// candleCloseType tags a candle close stream frame.
	candleCloseType = "candle_close"
)

// FeedConfig represents the configuration for the push feed.
type FeedConfig struct {
	// URL is the websocket stream url.
	URL string
	// Logger represents the application logger.
	Logger *zerolog.Logger
}

// Validate asserts the config sane inputs.
func (cfg *FeedConfig) Validate() error {
	var errs error

	if cfg.URL == "" {
		errs = errors.Join(errs, fmt.Errorf("websocket url cannot be an empty string"))
	}
	if cfg.Logger == nil {
		errs = errors.Join(errs, fmt.Errorf("logger cannot be nil"))
	}

	return errs
}

// Feed represents the realtime push channel. It maintains one websocket
// connection, decodes incoming stream frames and relays them to subscribers.
// The feed does not reconnect itself, the update coordinator requests a
// reconnect whenever it observes the feed neither connected nor connecting.
type Feed struct {
	cfg *FeedConfig

	mtx         sync.Mutex
	conn        *websocket.Conn
	connected   bool
	connecting  bool
	lastMessage *shared.UpdateMessage
	subscribers []*chan shared.UpdateMessage
}

// Ensure the feed implements the PushFeed interface.
var _ shared.PushFeed = (*Feed)(nil)

// NewFeed initializes the push feed.
func NewFeed(cfg *FeedConfig) (*Feed, error) {
	err := cfg.Validate()
	if err != nil {
		return nil, err
	}

	return &Feed{
		cfg:         cfg,
		subscribers: make([]*chan shared.UpdateMessage, 0),
	}, nil
}

// Subscribe registers the provided subscriber for decoded feed messages.
func (f *Feed) Subscribe(sub *chan shared.UpdateMessage) {
	f.mtx.Lock()
	defer f.mtx.Unlock()

	f.subscribers = append(f.subscribers, sub)
}

// IsConnected reports whether the feed is connected.
func (f *Feed) IsConnected() bool {
	f.mtx.Lock()
	defer f.mtx.Unlock()

	return f.connected
}

// IsConnecting reports whether a connection attempt is in flight.
func (f *Feed) IsConnecting() bool {
	f.mtx.Lock()
	defer f.mtx.Unlock()

	return f.connecting
}

// LastMessage returns the most recently decoded feed message.
func (f *Feed) LastMessage() *shared.UpdateMessage {
	f.mtx.Lock()
	defer f.mtx.Unlock()

	return f.lastMessage
}

// Connect establishes the feed connection and starts its read loop. It is a
// no-op while the feed is already connected or connecting.
func (f *Feed) Connect(ctx context.Context) error {
	f.mtx.Lock()
	if f.connected || f.connecting {
		f.mtx.Unlock()
		return nil
	}
	f.connecting = true
	f.mtx.Unlock()

	conn, _, err := websocket.Dial(ctx, f.cfg.URL, nil)
	if err != nil {
		f.mtx.Lock()
		f.connecting = false
		f.mtx.Unlock()
		return fmt.Errorf("dialing %s: %w", f.cfg.URL, err)
	}

	f.mtx.Lock()
	f.conn = conn
	f.connected = true
	f.connecting = false
	f.mtx.Unlock()

	go f.readLoop(ctx, conn)

	return nil
}

// Disconnect tears down the feed connection.
func (f *Feed) Disconnect() error {
	f.mtx.Lock()
	conn := f.conn
	f.conn = nil
	f.connected = false
	f.mtx.Unlock()

	if conn == nil {
		return nil
	}

	return conn.Close(websocket.StatusNormalClosure, "")
}

// notifySubscribers relays the provided message to all subscribers.
func (f *Feed) notifySubscribers(msg *shared.UpdateMessage) {
	f.mtx.Lock()
	f.lastMessage = msg
	subscribers := f.subscribers
	f.mtx.Unlock()

	for k := range subscribers {
		select {
		case *subscribers[k] <- *msg:
			// do nothing.
		default:
			f.cfg.Logger.Error().Msgf("subscriber channel at capacity, dropping %s update", msg.Symbol)
		}
	}
}

// readLoop reads and decodes stream frames until the connection fails or is
// closed. A failed read only marks the feed disconnected.
func (f *Feed) readLoop(ctx context.Context, conn *websocket.Conn) {
	for {
		_, data, err := conn.Read(ctx)
		if err != nil {
			f.mtx.Lock()
			if f.conn == conn {
				f.conn = nil
				f.connected = false
			}
			f.mtx.Unlock()

			if websocket.CloseStatus(err) != websocket.StatusNormalClosure && ctx.Err() == nil {
				f.cfg.Logger.Warn().Msgf("feed read failed: %v", err)
			}
			return
		}

		msg, err := parseUpdateMessage(data)
		if err != nil {
			f.cfg.Logger.Error().Msgf("parsing feed message: %v", err)
			continue
		}

		f.notifySubscribers(msg)
	}
}

// parseUpdateMessage parses an update message from the provided stream frame.
func parseUpdateMessage(data []byte) (*shared.UpdateMessage, error) {
	frame := gjson.ParseBytes(data)

	symbol := frame.Get("symbol").String()
	if symbol == "" {
		return nil, fmt.Errorf("feed message missing symbol: %s", string(data))
	}

	switch frame.Get("type").String() {
	case tickType:
		return &shared.UpdateMessage{
			Kind:                  shared.PriceTickUpdate,
			Symbol:                symbol,
			Price:                 frame.Get("price").Float(),
			PriceChange24h:        frame.Get("priceChange24h").Float(),
			PriceChangePercent24h: frame.Get("priceChangePercent24h").Float(),
			Volume24h:             frame.Get("volume24h").Float(),
		}, nil

	case candleCloseType:
		timeframe, err := shared.ParseTimeframe(frame.Get("timeframe").String())
		if err != nil {
			return nil, fmt.Errorf("parsing feed message timeframe: %w", err)
		}

		msg := &shared.UpdateMessage{
			Kind:                  shared.CandleCloseUpdate,
			Symbol:                symbol,
			Timeframe:             timeframe,
			Price:                 frame.Get("latestPrice").Float(),
			PriceChange24h:        frame.Get("priceChange24h").Float(),
			PriceChangePercent24h: frame.Get("priceChangePercent24h").Float(),
			Volume24h:             frame.Get("volume24h").Float(),
		}

		if candle := frame.Get("candle"); candle.Exists() {
			msg.Candle = &shared.Candlestick{
				Open:      candle.Get("open").Float(),
				Low:       candle.Get("low").Float(),
				High:      candle.Get("high").Float(),
				Close:     candle.Get("close").Float(),
				Volume:    candle.Get("volume").Float(),
				Timestamp: candle.Get("timestamp").Int(),
				Symbol:    symbol,
				Timeframe: timeframe,
			}
		}

		return msg, nil

	default:
		return nil, fmt.Errorf("unknown feed message type: %s", frame.Get("type").String())
	}
}
