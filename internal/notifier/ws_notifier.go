package notifier

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	log "github.com/sirupsen/logrus"

	"github.com/thanhnp/wallet-ledger/internal/models"
)

const (
	// EventAccountTx carries a transaction of a subscribed account
	EventAccountTx = "subscribeAccount"

	methodSubscribeAccount = "subscribeAccount"
)

// ErrFeedClosed is delivered on Errors when the connection drops
var ErrFeedClosed = errors.New("indexer feed closed")

type message struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

type subscribeRequest struct {
	Method string        `json:"method"`
	Params []interface{} `json:"params"`
}

type closeEvent struct {
	err error
}

// WSNotifier receives account notifications from the indexer websocket
type WSNotifier struct {
	url            string
	dialer         *websocket.Dialer
	reconnectDelay time.Duration

	mu      sync.Mutex
	conn    *websocket.Conn
	subs    map[string][]string
	order   []string
	running bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup

	anyQ          chan interface{}
	notifications chan models.TxNotification
	errs          chan error
}

// NewWSNotifier creates a notifier for the indexer websocket at url
func NewWSNotifier(url string) *WSNotifier {
	return &WSNotifier{
		url:            url,
		dialer:         websocket.DefaultDialer,
		reconnectDelay: 2 * time.Second,
		subs:           make(map[string][]string),
		// anyQ can stall the reader if it gets full, keep it large
		anyQ:          make(chan interface{}, 1024),
		notifications: make(chan models.TxNotification, 256),
		errs:          make(chan error, 16),
	}
}

// SetReconnectDelay sets the pause between reconnect attempts
func (n *WSNotifier) SetReconnectDelay(d time.Duration) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.reconnectDelay = d
}

// Start dials the feed and starts the reader and dispatch goroutines
func (n *WSNotifier) Start() error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.running {
		return fmt.Errorf("notifier already running")
	}

	ctx, cancel := context.WithCancel(context.Background())
	conn, _, err := n.dialer.DialContext(ctx, n.url, nil)
	if err != nil {
		cancel()
		return fmt.Errorf("failed to connect to indexer websocket: %w", err)
	}

	n.conn = conn
	n.cancel = cancel
	n.running = true

	n.wg.Add(2)
	go n.readLoop(ctx, conn)
	go n.superQueue(ctx)
	return nil
}

// Stop closes the connection and the notifier channels
func (n *WSNotifier) Stop() error {
	n.mu.Lock()
	if !n.running {
		n.mu.Unlock()
		return nil
	}
	n.running = false
	n.cancel()
	var err error
	if n.conn != nil {
		err = n.conn.Close()
	}
	n.mu.Unlock()

	n.wg.Wait()
	close(n.notifications)
	close(n.errs)
	return err
}

// Notifications implements AccountNotifier
func (n *WSNotifier) Notifications() <-chan models.TxNotification {
	return n.notifications
}

// Errors implements AccountNotifier
func (n *WSNotifier) Errors() <-chan error {
	return n.errs
}

// SubscribeToAccount implements AccountNotifier
func (n *WSNotifier) SubscribeToAccount(address string, tokens []string) error {
	address = strings.ToLower(address)

	n.mu.Lock()
	defer n.mu.Unlock()

	if _, ok := n.subs[address]; !ok {
		n.order = append(n.order, address)
	}
	n.subs[address] = tokens

	if n.conn == nil {
		return nil
	}
	return n.sendSubscribe(n.conn, address, tokens)
}

// sendSubscribe must be called with mu held
func (n *WSNotifier) sendSubscribe(conn *websocket.Conn, address string, tokens []string) error {
	if tokens == nil {
		tokens = []string{}
	}
	return conn.WriteJSON(subscribeRequest{
		Method: methodSubscribeAccount,
		Params: []interface{}{address, tokens},
	})
}

func (n *WSNotifier) readLoop(ctx context.Context, conn *websocket.Conn) {
	defer n.wg.Done()

	for {
		_, msg, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			log.WithError(err).Warn("indexer feed dropped, reconnecting")
			n.enqueue(ctx, &closeEvent{err: err})

			if conn = n.reconnect(ctx); conn == nil {
				return
			}
			continue
		}

		n.handleMessage(ctx, msg)
	}
}

func (n *WSNotifier) handleMessage(ctx context.Context, raw []byte) {
	var msg message
	if err := json.Unmarshal(raw, &msg); err != nil {
		log.Warnf("bad event from indexer, ignored: %v", err)
		return
	}
	if msg.Event == "" {
		log.Warnf("indexer event has no name, ignored: %s", string(raw))
		return
	}

	switch msg.Event {
	case EventAccountTx:
		var note models.TxNotification
		if err := json.Unmarshal(msg.Data, &note); err != nil {
			log.Warnf("bad %s payload, ignored: %v", msg.Event, err)
			return
		}
		n.enqueue(ctx, &note)
	default:
		log.Debugf("unhandled indexer event %s", msg.Event)
	}
}

func (n *WSNotifier) enqueue(ctx context.Context, v interface{}) {
	select {
	case n.anyQ <- v:
	case <-ctx.Done():
	}
}

// reconnect dials until it succeeds or ctx is done, then replays every
// subscription on the new connection
func (n *WSNotifier) reconnect(ctx context.Context) *websocket.Conn {
	for {
		n.mu.Lock()
		delay := n.reconnectDelay
		n.mu.Unlock()

		select {
		case <-ctx.Done():
			return nil
		case <-time.After(delay):
		}

		conn, _, err := n.dialer.DialContext(ctx, n.url, nil)
		if err != nil {
			log.WithError(err).Warn("indexer feed reconnect failed")
			continue
		}

		n.mu.Lock()
		if !n.running {
			n.mu.Unlock()
			conn.Close()
			return nil
		}
		n.conn = conn
		for _, addr := range n.order {
			if err := n.sendSubscribe(conn, addr, n.subs[addr]); err != nil {
				log.WithError(err).Warnf("failed to resubscribe %s", addr)
			}
		}
		count := len(n.order)
		n.mu.Unlock()

		log.Debugf("indexer feed re-established, %d accounts resubscribed", count)
		return conn
	}
}

// superQueue dispatches queued messages to the public channels
func (n *WSNotifier) superQueue(ctx context.Context) {
	defer n.wg.Done()

	for {
		select {
		case rawMsg := <-n.anyQ:
			switch msg := rawMsg.(type) {
			case *models.TxNotification:
				select {
				case n.notifications <- *msg:
				case <-ctx.Done():
					return
				}
			case *closeEvent:
				select {
				case n.errs <- fmt.Errorf("%w: %v", ErrFeedClosed, msg.err):
				default:
					log.Warn("feed error channel full, dropping error")
				}
			default:
				log.Warnf("unknown message type in superQueue: %T", rawMsg)
			}
		case <-ctx.Done():
			return
		}
	}
}
