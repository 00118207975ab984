// Package feed provides a concrete websocket adapter satisfying the
// domain.DataFeed collaborator contract (base §6). The monitoring service
// and execution pipeline depend only on the domain.DataFeed interface;
// this is one adapter among the paper/replay/real-venue set described in
// base §9's "interface-like capability sets" design note.
package feed

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/robinmaple/trading-automation-sub001/internal/domain"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"nhooyr.io/websocket"
)

const (
	dialTimeout        = 30 * time.Second
	writeWait          = 10 * time.Second
	baseReconnectDelay = 5 * time.Second
	maxReconnectDelay  = 5 * time.Minute
)

// quoteMessage is the wire shape of a single quote update pushed by the
// venue's quote channel.
type quoteMessage struct {
	Symbol    string  `json:"symbol"`
	Price     float64 `json:"price"`
	Bid       float64 `json:"bid"`
	Ask       float64 `json:"ask"`
	BidSize   int64   `json:"bid_size"`
	AskSize   int64   `json:"ask_size"`
	Last      float64 `json:"last"`
	Volume    int64   `json:"volume"`
	History   []float64 `json:"history"`
	DataType  string  `json:"data_type"`
}

// WebsocketFeed is a DataFeed adapter over a single streaming quote
// connection, grounded on the teacher's Tradernet market-status websocket
// client: nhooyr.io/websocket dial, a cancellable per-connection context,
// and an exponential-backoff reconnect loop.
type WebsocketFeed struct {
	url string
	log zerolog.Logger

	mu         sync.RWMutex
	conn       *websocket.Conn
	connCtx    context.Context
	cancelFunc context.CancelFunc
	connected  bool
	stopped    bool
	stopCh     chan struct{}

	subsMu      sync.RWMutex
	subscribed  map[string]bool

	quotesMu sync.RWMutex
	quotes   map[string]*domain.Quote
}

// New constructs a disconnected WebsocketFeed for url.
func New(url string, log zerolog.Logger) *WebsocketFeed {
	return &WebsocketFeed{
		url:        url,
		log:        log.With().Str("component", "data_feed").Logger(),
		stopCh:     make(chan struct{}),
		subscribed: make(map[string]bool),
		quotes:     make(map[string]*domain.Quote),
	}
}

// Start dials the feed and begins the read loop; failures are retried in
// the background by the reconnect loop rather than returned, since the
// feed is a best-effort collaborator the engine must tolerate being down.
func (f *WebsocketFeed) Start() {
	if err := f.connect(); err != nil {
		f.log.Warn().Err(err).Msg("initial data feed connection failed, retrying in background")
		go f.reconnectLoop()
		return
	}
	f.mu.RLock()
	ctx := f.connCtx
	f.mu.RUnlock()
	go f.readLoop(ctx)
}

// Stop closes the connection and prevents further reconnect attempts.
func (f *WebsocketFeed) Stop() {
	f.mu.Lock()
	if f.stopped {
		f.mu.Unlock()
		return
	}
	f.stopped = true
	f.mu.Unlock()
	close(f.stopCh)
	f.disconnect()
}

// IsConnected implements domain.DataFeed.
func (f *WebsocketFeed) IsConnected() bool {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.connected
}

// Subscribe implements domain.DataFeed. The venue wire protocol is out of
// scope (base §1); this records subscription intent and, if connected,
// pushes it over the wire so the read loop starts receiving updates for
// symbol.
func (f *WebsocketFeed) Subscribe(ctx context.Context, symbol string) error {
	f.subsMu.Lock()
	f.subscribed[symbol] = true
	f.subsMu.Unlock()

	f.mu.RLock()
	conn := f.conn
	f.mu.RUnlock()
	if conn == nil {
		return nil
	}
	return f.send(ctx, conn, []string{"subscribe", symbol})
}

// Unsubscribe implements domain.DataFeed.
func (f *WebsocketFeed) Unsubscribe(ctx context.Context, symbol string) error {
	f.subsMu.Lock()
	delete(f.subscribed, symbol)
	f.subsMu.Unlock()

	f.mu.RLock()
	conn := f.conn
	f.mu.RUnlock()
	if conn == nil {
		return nil
	}
	return f.send(ctx, conn, []string{"unsubscribe", symbol})
}

// GetCurrentPrice implements domain.DataFeed: it returns the most recently
// received quote, per base §5's "system reads the most recent snapshot at
// tick time" backpressure policy. There is no queueing.
func (f *WebsocketFeed) GetCurrentPrice(symbol string) (*domain.Quote, bool) {
	f.quotesMu.RLock()
	defer f.quotesMu.RUnlock()
	q, ok := f.quotes[symbol]
	return q, ok
}

func (f *WebsocketFeed) send(ctx context.Context, conn *websocket.Conn, msg interface{}) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("failed to marshal feed message: %w", err)
	}
	writeCtx, cancel := context.WithTimeout(ctx, writeWait)
	defer cancel()
	return conn.Write(writeCtx, websocket.MessageText, data)
}

func (f *WebsocketFeed) connect() error {
	f.mu.Lock()
	defer f.mu.Unlock()

	dialCtx, cancel := context.WithTimeout(context.Background(), dialTimeout)
	defer cancel()

	conn, _, err := websocket.Dial(dialCtx, f.url, nil)
	if err != nil {
		return fmt.Errorf("failed to dial data feed: %w", err)
	}

	connCtx, connCancel := context.WithCancel(context.Background())
	f.conn = conn
	f.connCtx = connCtx
	f.cancelFunc = connCancel
	f.connected = true

	f.subsMu.RLock()
	symbols := make([]string, 0, len(f.subscribed))
	for s := range f.subscribed {
		symbols = append(symbols, s)
	}
	f.subsMu.RUnlock()
	for _, s := range symbols {
		_ = f.send(connCtx, conn, []string{"subscribe", s})
	}

	f.log.Info().Str("url", f.url).Msg("data feed connected")
	return nil
}

func (f *WebsocketFeed) disconnect() {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.conn == nil {
		return
	}
	if f.cancelFunc != nil {
		f.cancelFunc()
		f.cancelFunc = nil
	}
	_ = f.conn.Close(websocket.StatusNormalClosure, "")
	f.conn = nil
	f.connCtx = nil
	f.connected = false
}

func (f *WebsocketFeed) readLoop(ctx context.Context) {
	defer func() {
		f.mu.RLock()
		stopped := f.stopped
		f.mu.RUnlock()
		f.mu.Lock()
		f.connected = false
		f.mu.Unlock()
		if !stopped {
			go f.reconnectLoop()
		}
	}()

	for {
		select {
		case <-f.stopCh:
			return
		case <-ctx.Done():
			return
		default:
		}

		f.mu.RLock()
		conn := f.conn
		f.mu.RUnlock()
		if conn == nil {
			return
		}

		msgType, data, err := conn.Read(ctx)
		if err != nil {
			if ctx.Err() == nil {
				f.log.Warn().Err(err).Msg("data feed read error")
			}
			return
		}
		if msgType != websocket.MessageText {
			continue
		}
		if err := f.handleMessage(data); err != nil {
			f.log.Debug().Err(err).Msg("failed to parse data feed message")
		}
	}
}

func (f *WebsocketFeed) handleMessage(data []byte) error {
	var msg quoteMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return err
	}
	if msg.Symbol == "" {
		return fmt.Errorf("quote message missing symbol")
	}

	history := make([]decimal.Decimal, 0, len(msg.History))
	for _, h := range msg.History {
		history = append(history, decimal.NewFromFloat(h))
	}

	quote := &domain.Quote{
		Symbol:    msg.Symbol,
		Price:     decimal.NewFromFloat(msg.Price),
		Bid:       decimal.NewFromFloat(msg.Bid),
		Ask:       decimal.NewFromFloat(msg.Ask),
		BidSize:   msg.BidSize,
		AskSize:   msg.AskSize,
		Last:      decimal.NewFromFloat(msg.Last),
		Volume:    msg.Volume,
		History:   history,
		Timestamp: time.Now(),
		DataType:  msg.DataType,
	}

	f.quotesMu.Lock()
	f.quotes[msg.Symbol] = quote
	f.quotesMu.Unlock()
	return nil
}

func (f *WebsocketFeed) reconnectLoop() {
	delay := baseReconnectDelay
	for {
		select {
		case <-f.stopCh:
			return
		case <-time.After(delay):
		}

		f.mu.RLock()
		stopped := f.stopped
		f.mu.RUnlock()
		if stopped {
			return
		}

		if err := f.connect(); err != nil {
			f.log.Warn().Err(err).Dur("next_retry", delay).Msg("data feed reconnect failed")
			delay *= 2
			if delay > maxReconnectDelay {
				delay = maxReconnectDelay
			}
			continue
		}

		f.mu.RLock()
		ctx := f.connCtx
		f.mu.RUnlock()
		go f.readLoop(ctx)
		return
	}
}
