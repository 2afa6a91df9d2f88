package market

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// OnPriceUpdate registers a callback for streamed price ticks.
func (c *Client) OnPriceUpdate(callback func(mint string, price float64)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.callbacks = append(c.callbacks, callback)
}

// ConnectStream dials the websocket endpoint and starts the read loop.
// The loop reconnects with a delay until Close is called.
func (c *Client) ConnectStream() error {
	if c.wsURL == "" {
		return fmt.Errorf("no ws endpoint configured")
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.wsConn != nil {
		return nil
	}

	conn, _, err := websocket.DefaultDialer.Dial(c.wsURL, nil)
	if err != nil {
		return fmt.Errorf("dial ws: %w", err)
	}
	c.wsConn = conn
	c.wsDone = make(chan struct{})

	go c.readLoop(conn, c.wsDone)
	return nil
}

// Subscribe adds mints to the streamed price topics.
func (c *Client) Subscribe(mints []string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.wsConn == nil {
		return fmt.Errorf("stream not connected")
	}

	var topics []string
	for _, mint := range mints {
		if c.subscribed[mint] {
			continue
		}
		c.subscribed[mint] = true
		topics = append(topics, "price."+mint)
	}
	if len(topics) == 0 {
		return nil
	}

	msg := map[string]interface{}{"op": "subscribe", "args": topics}
	return c.wsConn.WriteJSON(msg)
}

// Unsubscribe removes mints from the streamed topics.
func (c *Client) Unsubscribe(mints []string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.wsConn == nil {
		return nil
	}

	var topics []string
	for _, mint := range mints {
		if !c.subscribed[mint] {
			continue
		}
		delete(c.subscribed, mint)
		topics = append(topics, "price."+mint)
	}
	if len(topics) == 0 {
		return nil
	}

	msg := map[string]interface{}{"op": "unsubscribe", "args": topics}
	return c.wsConn.WriteJSON(msg)
}

type streamMessage struct {
	Topic string `json:"topic"`
	Data  struct {
		Mint  string  `json:"mint"`
		Price float64 `json:"price"`
	} `json:"data"`
}

func (c *Client) readLoop(conn *websocket.Conn, done chan struct{}) {
	for {
		select {
		case <-done:
			return
		default:
		}

		_, raw, err := conn.ReadMessage()
		if err != nil {
			c.logger.Warn("price stream dropped, reconnecting", zap.Error(err))
			c.reconnect()
			return
		}

		var msg streamMessage
		if err := json.Unmarshal(raw, &msg); err != nil {
			continue
		}
		if msg.Data.Mint == "" || msg.Data.Price <= 0 {
			continue
		}

		c.mu.Lock()
		cbs := make([]func(string, float64), len(c.callbacks))
		copy(cbs, c.callbacks)
		c.mu.Unlock()

		for _, cb := range cbs {
			cb(msg.Data.Mint, msg.Data.Price)
		}
	}
}

func (c *Client) reconnect() {
	c.mu.Lock()
	if c.wsConn != nil {
		c.wsConn.Close()
		c.wsConn = nil
	}
	mints := make([]string, 0, len(c.subscribed))
	for mint := range c.subscribed {
		mints = append(mints, mint)
		delete(c.subscribed, mint)
	}
	done := c.wsDone
	c.mu.Unlock()

	select {
	case <-done:
		return
	case <-time.After(3 * time.Second):
	}

	if err := c.ConnectStream(); err != nil {
		c.logger.Error("price stream reconnect failed", zap.Error(err))
		go c.reconnect()
		return
	}
	if len(mints) > 0 {
		if err := c.Subscribe(mints); err != nil {
			c.logger.Error("price stream resubscribe failed", zap.Error(err))
		}
	}
}

// CloseStream stops the read loop and closes the connection.
func (c *Client) CloseStream() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.wsDone != nil {
		close(c.wsDone)
		c.wsDone = nil
	}
	if c.wsConn != nil {
		c.wsConn.Close()
		c.wsConn = nil
	}
}
