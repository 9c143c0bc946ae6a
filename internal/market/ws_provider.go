package market

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

// wsBarMessage is the wire shape of one streamed bar.
type wsBarMessage struct {
	Type        string  `json:"type"`
	Symbol      string  `json:"symbol"`
	Timeframe   string  `json:"timeframe"`
	OpenTime    int64   `json:"open_time"` // unix ms
	CloseTime   int64   `json:"close_time"`
	Open        string  `json:"open"`
	High        string  `json:"high"`
	Low         string  `json:"low"`
	Close       string  `json:"close"`
	Volume      int64   `json:"volume"`
	VolumeRatio float64 `json:"volume_ratio"`
	SpreadRatio float64 `json:"spread_ratio"`
}

// WSProvider streams bars over a websocket feed and serves them as a
// DataProvider. Bars accumulate into a bounded per-series buffer; only
// what the feed has delivered is available historically.
type WSProvider struct {
	url          string
	reconnectGap time.Duration
	pingEvery    time.Duration
	logger       zerolog.Logger

	mu        sync.RWMutex
	bars      map[string][]Bar // key: symbol|timeframe
	connected bool

	maxBars int
	cancel  context.CancelFunc
	done    chan struct{}
}

// NewWSProvider creates a provider for the given feed URL.
func NewWSProvider(url string, reconnectGap, pingEvery time.Duration, logger zerolog.Logger) *WSProvider {
	return &WSProvider{
		url:          url,
		reconnectGap: reconnectGap,
		pingEvery:    pingEvery,
		logger:       logger.With().Str("component", "market_ws").Logger(),
		bars:         make(map[string][]Bar),
		maxBars:      2000,
		done:         make(chan struct{}),
	}
}

// Start launches the read loop with automatic reconnection.
func (p *WSProvider) Start(ctx context.Context, symbols []string, timeframe Timeframe) {
	runCtx, cancel := context.WithCancel(ctx)
	p.cancel = cancel

	go func() {
		defer close(p.done)
		for {
			if runCtx.Err() != nil {
				return
			}
			if err := p.streamOnce(runCtx, symbols, timeframe); err != nil {
				p.logger.Warn().Err(err).Dur("retry_in", p.reconnectGap).Msg("stream disconnected")
			}
			select {
			case <-runCtx.Done():
				return
			case <-time.After(p.reconnectGap):
			}
		}
	}()
}

// Stop tears down the stream and waits for the read loop to exit.
func (p *WSProvider) Stop() {
	if p.cancel != nil {
		p.cancel()
	}
	<-p.done
}

func (p *WSProvider) streamOnce(ctx context.Context, symbols []string, timeframe Timeframe) error {
	dialer := websocket.Dialer{HandshakeTimeout: 10 * time.Second}
	conn, _, err := dialer.DialContext(ctx, p.url, nil)
	if err != nil {
		return fmt.Errorf("dialing %s: %w", p.url, err)
	}
	defer conn.Close()

	sub := map[string]any{"type": "subscribe", "symbols": symbols, "timeframe": string(timeframe)}
	if err := conn.WriteJSON(sub); err != nil {
		return fmt.Errorf("subscribing: %w", err)
	}

	p.setConnected(true)
	defer p.setConnected(false)
	p.logger.Info().Strs("symbols", symbols).Str("timeframe", string(timeframe)).Msg("stream connected")

	pingTicker := time.NewTicker(p.pingEvery)
	defer pingTicker.Stop()

	go func() {
		for {
			select {
			case <-ctx.Done():
				conn.Close()
				return
			case <-pingTicker.C:
				if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(5*time.Second)); err != nil {
					return
				}
			}
		}
	}()

	for {
		var msg wsBarMessage
		if err := conn.ReadJSON(&msg); err != nil {
			return fmt.Errorf("reading frame: %w", err)
		}
		if msg.Type != "bar" {
			continue
		}
		bar, err := msg.toBar()
		if err != nil {
			p.logger.Warn().Err(err).Str("symbol", msg.Symbol).Msg("dropping malformed bar")
			continue
		}
		p.append(bar)
	}
}

func (m wsBarMessage) toBar() (Bar, error) {
	open, err := decimal.NewFromString(m.Open)
	if err != nil {
		return Bar{}, fmt.Errorf("open: %w", err)
	}
	high, err := decimal.NewFromString(m.High)
	if err != nil {
		return Bar{}, fmt.Errorf("high: %w", err)
	}
	low, err := decimal.NewFromString(m.Low)
	if err != nil {
		return Bar{}, fmt.Errorf("low: %w", err)
	}
	closePx, err := decimal.NewFromString(m.Close)
	if err != nil {
		return Bar{}, fmt.Errorf("close: %w", err)
	}
	return Bar{
		Symbol:      m.Symbol,
		Timeframe:   Timeframe(m.Timeframe),
		OpenTime:    time.UnixMilli(m.OpenTime),
		CloseTime:   time.UnixMilli(m.CloseTime),
		Open:        open,
		High:        high,
		Low:         low,
		Close:       closePx,
		Volume:      m.Volume,
		VolumeRatio: m.VolumeRatio,
		SpreadRatio: m.SpreadRatio,
	}, nil
}

func (p *WSProvider) append(bar Bar) {
	key := bar.Symbol + "|" + string(bar.Timeframe)

	p.mu.Lock()
	defer p.mu.Unlock()

	series := append(p.bars[key], bar)
	if len(series) > p.maxBars {
		series = series[len(series)-p.maxBars:]
	}
	p.bars[key] = series
}

// FetchHistoricalBars returns buffered bars for the window. It never
// reaches out to the network; the stream fills the buffer.
func (p *WSProvider) FetchHistoricalBars(_ context.Context, symbol string, start, end time.Time, timeframe Timeframe) ([]Bar, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	series := p.bars[symbol+"|"+string(timeframe)]
	out := make([]Bar, 0, len(series))
	for _, b := range series {
		if b.CloseTime.Before(start) || b.CloseTime.After(end) {
			continue
		}
		out = append(out, b)
	}
	return out, nil
}

// HealthCheck reports whether the stream is currently connected.
func (p *WSProvider) HealthCheck(_ context.Context) bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.connected
}

func (p *WSProvider) setConnected(v bool) {
	p.mu.Lock()
	p.connected = v
	p.mu.Unlock()
}
