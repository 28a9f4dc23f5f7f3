package channel

import (
	"encoding/json"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/discoverlab/enginekit/errors"
)

// NATSConfig holds the connection settings for the remote realization.
type NATSConfig struct {
	// URL is the NATS server URL (e.g. "nats://localhost:4222").
	URL string `toml:"url"`

	// Subject is the base subject the manager/worker pair rendezvous on.
	// Requests travel on Subject+".req", worker-originated traffic on
	// Subject+".evt".
	Subject string `toml:"subject"`

	// Name is the client name for identification.
	Name string `toml:"name"`

	// ConnectTimeout bounds the initial dial.
	ConnectTimeout time.Duration `toml:"connect_timeout"`

	// MaxReconnects caps reconnection attempts (-1 = unlimited).
	MaxReconnects int `toml:"max_reconnects"`
}

// DefaultNATSConfig returns a config with sensible defaults.
func DefaultNATSConfig() NATSConfig {
	return NATSConfig{
		URL:            nats.DefaultURL,
		Subject:        "enginekit",
		Name:           "enginekit",
		ConnectTimeout: 5 * time.Second,
		MaxReconnects:  -1,
	}
}

// natsHandle realizes Handle over a NATS connection. The worker runs as an
// already-listening remote peer, so "spawning" this execution context means
// dialing it; a failed dial is the spawn failure.
type natsHandle struct {
	*endpoint

	conn *nats.Conn
	sub  *nats.Subscription
	out  string
}

var _ Handle = (*natsHandle)(nil)

// DialNATS connects the manager side: outbound on Subject+".req", inbound
// on Subject+".evt".
func DialNATS(cfg NATSConfig, buffer int) (Handle, error) {
	return dialNATS(cfg, cfg.Subject+".req", cfg.Subject+".evt", buffer)
}

// ServeNATS connects the worker side of the same rendezvous.
func ServeNATS(cfg NATSConfig, buffer int) (Handle, error) {
	return dialNATS(cfg, cfg.Subject+".evt", cfg.Subject+".req", buffer)
}

func dialNATS(cfg NATSConfig, outSubject, inSubject string, buffer int) (Handle, error) {
	if cfg.URL == "" {
		cfg.URL = nats.DefaultURL
	}
	if cfg.Subject == "" {
		return nil, errors.New(errors.ErrCodeSpawnFailed, "empty rendezvous subject")
	}

	opts := []nats.Option{
		nats.Name(cfg.Name),
		nats.MaxReconnects(cfg.MaxReconnects),
	}
	if cfg.ConnectTimeout > 0 {
		opts = append(opts, nats.Timeout(cfg.ConnectTimeout))
	}

	conn, err := nats.Connect(cfg.URL, opts...)
	if err != nil {
		return nil, errors.WrapWithCode(err, errors.ErrCodeSpawnFailed, "connect to NATS")
	}

	h := &natsHandle{
		endpoint: newEndpoint(buffer),
		conn:     conn,
		out:      outSubject,
	}
	h.post = h.publish

	inbox := make(chan *nats.Msg, defaultBufferSize)
	sub, err := conn.ChanSubscribe(inSubject, inbox)
	if err != nil {
		conn.Close()
		return nil, errors.WrapWithCode(err, errors.ErrCodeSpawnFailed, "subscribe "+inSubject)
	}
	h.sub = sub
	h.onDispose = func() {
		_ = sub.Unsubscribe()
		conn.Close()
	}

	go h.pump(inbox)

	return h, nil
}

func (h *natsHandle) publish(p Packet) error {
	data, err := json.Marshal(p)
	if err != nil {
		return errors.WrapWithCode(err, errors.ErrCodeInternal, "marshal frame")
	}
	if err := h.conn.Publish(h.out, data); err != nil {
		return errors.WrapWithCode(err, errors.ErrCodeTransportClosed, "publish "+h.out)
	}
	return nil
}

func (h *natsHandle) pump(inbox <-chan *nats.Msg) {
	defer h.finish()
	for {
		select {
		case msg, ok := <-inbox:
			if !ok {
				return
			}
			var p Packet
			if err := json.Unmarshal(msg.Data, &p); err != nil {
				h.reportErr(errors.WrapWithCode(err, errors.ErrCodeTransportClosed, "malformed frame"))
				continue
			}
			h.dispatch(p)
		case <-h.done:
			return
		}
	}
}

// Dispose shuts the handle down, unsubscribes, and closes the connection.
func (h *natsHandle) Dispose() error {
	return h.dispose()
}
