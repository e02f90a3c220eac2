package chain

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"rampwatch/pkg/models"
)

// ErrClosed is returned for calls made on (or interrupted by) a closed client.
var ErrClosed = errors.New("chain: client closed")

const (
	methodSubscribe   = "state_subscribeStorage"
	methodUnsubscribe = "state_unsubscribeStorage"
	notifyStorage     = "state_storage"
	methodSubmit      = "author_submitAndWatch"
	notifyExtrinsic   = "author_extrinsicUpdate"
	methodHealth      = "system_health"
	methodChainName   = "system_chain"
)

var dropTimeout = 5 * time.Second

// Client is a WebSocket JSON-RPC client for the ramp ledger node. It
// implements QueryService and Submitter.
type Client struct {
	log     zerolog.Logger
	conn    *websocket.Conn
	writeMu sync.Mutex

	mu      sync.Mutex
	nextID  uint64
	pending map[uint64]*pendingCall
	storage map[string]storageRoute
	watches map[string]chan models.SubmitStatus

	closed    chan struct{}
	closeOnce sync.Once
}

type storageRoute struct {
	kind QueryKind
	key  models.Address
	fn   UpdateFunc
}

// pendingCall is an in-flight request. When onStorage or onWatch is set, the
// read loop registers the subscription route before reading the next frame,
// so the first notification cannot outrun registration.
type pendingCall struct {
	done      chan rpcResult
	onStorage *storageRoute
	onWatch   chan models.SubmitStatus
}

type rpcResult struct {
	result json.RawMessage
	err    error
}

type rpcRequest struct {
	JSONRPC string        `json:"jsonrpc"`
	ID      uint64        `json:"id"`
	Method  string        `json:"method"`
	Params  []interface{} `json:"params"`
}

type rpcEnvelope struct {
	ID     *uint64         `json:"id"`
	Result json.RawMessage `json:"result"`
	Error  *rpcError       `json:"error"`
	Method string          `json:"method"`
	Params *notifyParams   `json:"params"`
}

type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (e *rpcError) Error() string {
	return fmt.Sprintf("rpc error %d: %s", e.Code, e.Message)
}

type notifyParams struct {
	Subscription json.RawMessage `json:"subscription"`
	Result       json.RawMessage `json:"result"`
}

// Dial connects to the node and starts the read loop.
func Dial(ctx context.Context, url string, log zerolog.Logger) (*Client, error) {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, url, nil)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", url, err)
	}
	c := &Client{
		log:     log.With().Str("component", "chain").Logger(),
		conn:    conn,
		pending: make(map[uint64]*pendingCall),
		storage: make(map[string]storageRoute),
		watches: make(map[string]chan models.SubmitStatus),
		closed:  make(chan struct{}),
	}
	go c.readLoop()
	return c, nil
}

// Close tears the connection down. In-flight calls fail with ErrClosed and
// in-flight submissions receive a terminal error status.
func (c *Client) Close() error {
	c.shutdown(ErrClosed)
	return nil
}

// Subscribe opens a live subscription for kind scoped to key. An empty key is
// a no-op per the query contract: nil handle, nil error.
func (c *Client) Subscribe(ctx context.Context, kind QueryKind, key models.Address, fn UpdateFunc) (*Subscription, error) {
	if key == "" {
		return nil, nil
	}
	pc := &pendingCall{onStorage: &storageRoute{kind: kind, key: key, fn: fn}}
	res, err := c.call(ctx, methodSubscribe, []interface{}{string(kind), string(key)}, pc)
	if err != nil {
		return nil, fmt.Errorf("subscribe %s for %s: %w", kind, key, err)
	}
	subID := decodeSubID(res)
	return NewSubscription(func() { c.dropStorage(subID) }), nil
}

// Submit sends a signed call and returns its status stream. The channel
// closes after the terminal status.
func (c *Client) Submit(ctx context.Context, from models.Address, module, call string, params []interface{}) (<-chan models.SubmitStatus, error) {
	ch := make(chan models.SubmitStatus, 8)
	pc := &pendingCall{onWatch: ch}
	_, err := c.call(ctx, methodSubmit, []interface{}{string(from), module, call, params}, pc)
	if err != nil {
		return nil, fmt.Errorf("submit %s.%s: %w", module, call, err)
	}
	return ch, nil
}

// Health probes the node and returns the chain name.
func (c *Client) Health(ctx context.Context) (string, error) {
	if _, err := c.call(ctx, methodHealth, []interface{}{}, &pendingCall{}); err != nil {
		return "", err
	}
	res, err := c.call(ctx, methodChainName, []interface{}{}, &pendingCall{})
	if err != nil {
		return "", err
	}
	var name string
	if err := json.Unmarshal(res, &name); err != nil {
		return "", fmt.Errorf("malformed chain name: %w", err)
	}
	return name, nil
}

func (c *Client) call(ctx context.Context, method string, params []interface{}, pc *pendingCall) (json.RawMessage, error) {
	pc.done = make(chan rpcResult, 1)

	c.mu.Lock()
	select {
	case <-c.closed:
		c.mu.Unlock()
		return nil, ErrClosed
	default:
	}
	c.nextID++
	id := c.nextID
	c.pending[id] = pc
	c.mu.Unlock()

	req := rpcRequest{JSONRPC: "2.0", ID: id, Method: method, Params: params}
	c.writeMu.Lock()
	err := c.conn.WriteJSON(req)
	c.writeMu.Unlock()
	if err != nil {
		c.mu.Lock()
		delete(c.pending, id)
		c.mu.Unlock()
		return nil, err
	}

	select {
	case res := <-pc.done:
		return res.result, res.err
	case <-ctx.Done():
		c.mu.Lock()
		delete(c.pending, id)
		c.mu.Unlock()
		return nil, ctx.Err()
	case <-c.closed:
		return nil, ErrClosed
	}
}

func (c *Client) readLoop() {
	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			c.shutdown(err)
			return
		}
		var env rpcEnvelope
		if err := json.Unmarshal(data, &env); err != nil {
			c.log.Warn().Err(err).Msg("discarding malformed frame")
			continue
		}

		switch {
		case env.ID != nil:
			c.mu.Lock()
			pc, ok := c.pending[*env.ID]
			delete(c.pending, *env.ID)
			if ok && env.Error == nil {
				subID := decodeSubID(env.Result)
				if pc.onStorage != nil {
					c.storage[subID] = *pc.onStorage
				}
				if pc.onWatch != nil {
					c.watches[subID] = pc.onWatch
				}
			}
			c.mu.Unlock()
			if !ok {
				continue
			}
			if env.Error != nil {
				pc.done <- rpcResult{err: env.Error}
			} else {
				pc.done <- rpcResult{result: env.Result}
			}

		case env.Method == notifyStorage && env.Params != nil:
			subID := decodeSubID(env.Params.Subscription)
			c.mu.Lock()
			route, ok := c.storage[subID]
			c.mu.Unlock()
			if ok {
				route.fn(Update{Kind: route.kind, Key: route.key, Raw: env.Params.Result})
			}

		case env.Method == notifyExtrinsic && env.Params != nil:
			subID := decodeSubID(env.Params.Subscription)
			status := decodeSubmitStatus(env.Params.Result)
			c.mu.Lock()
			ch, ok := c.watches[subID]
			if ok && status.Terminal() {
				delete(c.watches, subID)
			}
			c.mu.Unlock()
			if !ok {
				continue
			}
			select {
			case ch <- status:
			default:
				c.log.Warn().Str("stage", string(status.Stage)).Msg("dropping status, consumer slow")
			}
			if status.Terminal() {
				close(ch)
			}
		}
	}
}

// dropStorage stops local delivery immediately; the remote release is best
// effort and must not block the caller.
func (c *Client) dropStorage(subID string) {
	c.mu.Lock()
	delete(c.storage, subID)
	c.mu.Unlock()

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), dropTimeout)
		defer cancel()
		if _, err := c.call(ctx, methodUnsubscribe, []interface{}{subID}, &pendingCall{}); err != nil && !errors.Is(err, ErrClosed) {
			c.log.Warn().Err(err).Str("subscription", subID).Msg("remote unsubscribe failed")
		}
	}()
}

func (c *Client) shutdown(cause error) {
	c.closeOnce.Do(func() {
		c.mu.Lock()
		close(c.closed)
		for id, pc := range c.pending {
			pc.done <- rpcResult{err: ErrClosed}
			delete(c.pending, id)
		}
		for id, ch := range c.watches {
			select {
			case ch <- models.SubmitStatus{Stage: models.StageError, Detail: "connection closed"}:
			default:
			}
			close(ch)
			delete(c.watches, id)
		}
		c.storage = make(map[string]storageRoute)
		c.mu.Unlock()
		_ = c.conn.Close()
		if !errors.Is(cause, ErrClosed) {
			c.log.Warn().Err(cause).Msg("connection lost")
		}
	})
}

// decodeSubID normalizes a subscription id (string or number on the wire).
func decodeSubID(raw json.RawMessage) string {
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	var n json.Number
	if err := json.Unmarshal(raw, &n); err == nil {
		return n.String()
	}
	return string(raw)
}

// decodeSubmitStatus maps a lifecycle notification to a SubmitStatus. The
// wire shape is a single-variant object, e.g. {"ready":null},
// {"inBlock":"0x.."}, {"finalized":"0x.."} or {"error":"reason"}.
func decodeSubmitStatus(raw json.RawMessage) models.SubmitStatus {
	var m map[string]json.RawMessage
	if err := json.Unmarshal(raw, &m); err != nil {
		return models.SubmitStatus{Stage: models.StageError, Detail: "malformed status notification"}
	}
	str := func(v json.RawMessage) string {
		var s string
		if err := json.Unmarshal(v, &s); err == nil {
			return s
		}
		return string(v)
	}
	if v, ok := m["error"]; ok {
		return models.SubmitStatus{Stage: models.StageError, Detail: str(v)}
	}
	if v, ok := m["finalized"]; ok {
		return models.SubmitStatus{Stage: models.StageFinalized, Detail: str(v)}
	}
	if v, ok := m["inBlock"]; ok {
		return models.SubmitStatus{Stage: models.StageInBlock, Detail: str(v)}
	}
	if _, ok := m["broadcast"]; ok {
		return models.SubmitStatus{Stage: models.StageBroadcast}
	}
	if _, ok := m["ready"]; ok {
		return models.SubmitStatus{Stage: models.StageReady}
	}
	return models.SubmitStatus{Stage: models.StageError, Detail: "unknown status notification"}
}
