// Package notify publishes motion, capture, and connection events to an
// MQTT broker and accepts tuning commands on a control topic. The
// notifier is optional: an empty broker host disables it and every
// method becomes a no-op, so the capture path never depends on broker
// availability.
package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/jaysettle/Bird-Bath-Photography-sub000/internal/capture"
	"github.com/jaysettle/Bird-Bath-Photography-sub000/internal/config"
	"github.com/jaysettle/Bird-Bath-Photography-sub000/internal/events"
	"github.com/jaysettle/Bird-Bath-Photography-sub000/internal/supervisor"
)

const (
	connectTimeout = 5 * time.Second
	publishTimeout = 2 * time.Second
)

// Stats is a snapshot of notifier activity.
type Stats struct {
	Connected bool
	Published map[string]uint64
	Errors    uint64
	Dropped   uint64
}

// Notifier bridges the in-process event buses to an MQTT broker. Each
// event type goes out on its own topic under the configured prefix:
// motion events on <prefix>/motion, captures on <prefix>/capture, and
// connection transitions on <prefix>/connection. Captures and
// connection transitions use QoS 1; motion events are frequent and
// lossy by nature, so they go out at QoS 0.
type Notifier struct {
	cfg      config.EventsConfig
	motions  *events.Bus[capture.MotionEvent]
	captures *events.Bus[capture.CaptureEvent]
	conns    *events.Bus[supervisor.ConnectionEvent]
	control  *controlHandler

	client  mqtt.Client
	started atomic.Bool
	stopped atomic.Bool
	stopCh  chan struct{}
	wg      sync.WaitGroup

	mu        sync.Mutex
	connected bool
	published map[string]uint64
	errors    uint64
}

// New creates a notifier wired to the three event buses. Commands
// arriving on <prefix>/control are dispatched through cb; leave a
// callback nil to reject that command.
func New(cfg config.EventsConfig, motions *events.Bus[capture.MotionEvent], captures *events.Bus[capture.CaptureEvent], conns *events.Bus[supervisor.ConnectionEvent], cb Callbacks) *Notifier {
	n := &Notifier{
		cfg:       cfg,
		motions:   motions,
		captures:  captures,
		conns:     conns,
		stopCh:    make(chan struct{}),
		published: make(map[string]uint64),
	}
	n.control = newControlHandler(n.topic("control"), n.topic("control/ack"), cb, n.publishJSON)
	return n
}

// Enabled reports whether a broker is configured.
func (n *Notifier) Enabled() bool {
	return n.cfg.Broker != ""
}

// Start connects to the broker, subscribes the control topic, and
// begins forwarding bus events. With no broker configured it logs and
// returns nil.
func (n *Notifier) Start(ctx context.Context) error {
	if !n.Enabled() {
		slog.Info("notify: no broker configured, event publishing disabled")
		return nil
	}
	if !n.started.CompareAndSwap(false, true) {
		return fmt.Errorf("notifier already started")
	}

	opts := mqtt.NewClientOptions()
	opts.AddBroker(fmt.Sprintf("tcp://%s:%d", n.cfg.Broker, n.cfg.Port))
	opts.SetClientID(n.cfg.ClientID)
	opts.SetAutoReconnect(true)
	opts.SetConnectRetry(true)
	opts.SetConnectRetryInterval(2 * time.Second)
	opts.SetMaxReconnectInterval(30 * time.Second)

	opts.OnConnect = func(client mqtt.Client) {
		n.mu.Lock()
		n.connected = true
		n.mu.Unlock()
		slog.Info("notify: connected to broker", "broker", n.cfg.Broker, "port", n.cfg.Port)

		// Subscriptions do not survive a reconnect, so the control
		// topic is (re)subscribed here rather than once at startup.
		if err := n.control.subscribe(client); err != nil {
			slog.Warn("notify: control topic subscribe failed", "error", err)
		}
	}
	opts.OnConnectionLost = func(client mqtt.Client, err error) {
		n.mu.Lock()
		n.connected = false
		n.mu.Unlock()
		slog.Warn("notify: broker connection lost", "error", err)
	}

	client := mqtt.NewClient(opts)
	token := client.Connect()
	if !token.WaitTimeout(connectTimeout) {
		// Connect retry is enabled, so a slow broker is not fatal; the
		// client keeps dialing in the background and OnConnect fires
		// when it succeeds.
		slog.Warn("notify: broker not reachable yet, retrying in background",
			"broker", n.cfg.Broker, "port", n.cfg.Port)
	} else if err := token.Error(); err != nil {
		return fmt.Errorf("mqtt connect failed: %w", err)
	}
	n.client = client

	n.wg.Add(1)
	go func() {
		defer n.wg.Done()
		n.control.run(ctx, n.stopCh)
	}()

	if err := n.startPumps(ctx); err != nil {
		client.Disconnect(250)
		return err
	}

	slog.Info("notify: started", "prefix", n.cfg.TopicPrefix, "client_id", n.cfg.ClientID)
	return nil
}

// startPumps registers one bus subscription per event type and spawns
// a goroutine forwarding each to its topic.
func (n *Notifier) startPumps(ctx context.Context) error {
	motionCh := make(chan capture.MotionEvent, 16)
	if err := n.motions.Subscribe("notify-motion", motionCh); err != nil {
		return fmt.Errorf("motion bus subscribe: %w", err)
	}
	captureCh := make(chan capture.CaptureEvent, 8)
	if err := n.captures.Subscribe("notify-capture", captureCh); err != nil {
		n.motions.Unsubscribe("notify-motion")
		return fmt.Errorf("capture bus subscribe: %w", err)
	}
	connCh := make(chan supervisor.ConnectionEvent, 8)
	if err := n.conns.Subscribe("notify-connection", connCh); err != nil {
		n.motions.Unsubscribe("notify-motion")
		n.captures.Unsubscribe("notify-capture")
		return fmt.Errorf("connection bus subscribe: %w", err)
	}

	n.wg.Add(3)
	go func() {
		defer n.wg.Done()
		defer n.motions.Unsubscribe("notify-motion")
		pump(ctx, n.stopCh, motionCh, n.topic("motion"), 0, n.publishJSON)
	}()
	go func() {
		defer n.wg.Done()
		defer n.captures.Unsubscribe("notify-capture")
		pump(ctx, n.stopCh, captureCh, n.topic("capture"), 1, n.publishJSON)
	}()
	go func() {
		defer n.wg.Done()
		defer n.conns.Unsubscribe("notify-connection")
		pump(ctx, n.stopCh, connCh, n.topic("connection"), 1, n.publishJSON)
	}()
	return nil
}

// pump forwards values from ch to topic until the context or stop
// channel fires.
func pump[T any](ctx context.Context, stopCh <-chan struct{}, ch <-chan T, topic string, qos byte, publish func(string, byte, any)) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-stopCh:
			return
		case v := <-ch:
			publish(topic, qos, v)
		}
	}
}

// publishJSON marshals v and publishes it, counting successes per
// topic and failures in aggregate.
func (n *Notifier) publishJSON(topic string, qos byte, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		n.countError()
		slog.Warn("notify: payload encode failed", "topic", topic, "error", err)
		return
	}

	token := n.client.Publish(topic, qos, false, data)
	if !token.WaitTimeout(publishTimeout) {
		n.countError()
		slog.Warn("notify: publish timeout", "topic", topic)
		return
	}
	if err := token.Error(); err != nil {
		n.countError()
		slog.Warn("notify: publish failed", "topic", topic, "error", err)
		return
	}

	n.mu.Lock()
	n.published[topic]++
	n.mu.Unlock()
}

func (n *Notifier) countError() {
	n.mu.Lock()
	n.errors++
	n.mu.Unlock()
}

// topic joins a suffix onto the configured prefix.
func (n *Notifier) topic(suffix string) string {
	return n.cfg.TopicPrefix + "/" + suffix
}

// Stop unsubscribes, stops the forwarding goroutines, and disconnects
// from the broker. Stop is idempotent and safe to call whether or not
// Start succeeded.
func (n *Notifier) Stop() {
	if !n.stopped.CompareAndSwap(false, true) {
		return
	}
	close(n.stopCh)

	if !n.started.Load() || n.client == nil {
		return
	}

	n.wg.Wait()
	n.control.unsubscribe(n.client)
	n.client.Disconnect(250)

	n.mu.Lock()
	n.connected = false
	n.mu.Unlock()
	slog.Info("notify: stopped")
}

// Stats returns a snapshot of publish activity.
func (n *Notifier) Stats() Stats {
	n.mu.Lock()
	defer n.mu.Unlock()

	published := make(map[string]uint64, len(n.published))
	for topic, count := range n.published {
		published[topic] = count
	}
	return Stats{
		Connected: n.connected,
		Published: published,
		Errors:    n.errors,
		Dropped:   n.control.dropped.Load(),
	}
}
