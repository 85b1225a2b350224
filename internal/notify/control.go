package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/jaysettle/Bird-Bath-Photography-sub000/internal/roi"
)

// Command is a tuning request received on the control topic.
//
// Supported commands:
//
//	set_threshold  params: threshold
//	set_min_area   params: min_area
//	set_region     params: x1, y1, x2, y2, enabled (optional)
//	set_control    params: name, value
//	pause_motion   params: reason (optional)
//	resume_motion
//	get_status
type Command struct {
	Command string         `json:"command"`
	Params  map[string]any `json:"params,omitempty"`
}

// Response acknowledges a command on <prefix>/control/ack.
type Response struct {
	Command string         `json:"command"`
	Status  string         `json:"status"`
	Error   string         `json:"error,omitempty"`
	Data    map[string]any `json:"data,omitempty"`
}

// Callbacks wires control commands to the rest of the daemon. A nil
// callback makes the matching command fail with a not-supported
// response instead of being silently dropped.
type Callbacks struct {
	SetThreshold func(value int) error
	SetMinArea   func(value int) error
	SetRegion    func(r roi.Region, enabled bool) error
	SetControl   func(name string, value int) error
	Pause        func(reason string)
	Resume       func()
	Status       func() map[string]any
}

// controlHandler receives commands from the control topic, queues them,
// and dispatches them on a single goroutine so callbacks never run
// concurrently with each other.
type controlHandler struct {
	topic    string
	ackTopic string
	cb       Callbacks
	commands chan Command
	dropped  atomic.Uint64
	publish  func(topic string, qos byte, v any)
}

func newControlHandler(topic, ackTopic string, cb Callbacks, publish func(string, byte, any)) *controlHandler {
	return &controlHandler{
		topic:    topic,
		ackTopic: ackTopic,
		cb:       cb,
		commands: make(chan Command, 10),
		publish:  publish,
	}
}

func (h *controlHandler) subscribe(client mqtt.Client) error {
	token := client.Subscribe(h.topic, 1, h.onMessage)
	if !token.WaitTimeout(5 * time.Second) {
		return fmt.Errorf("subscribe timeout on %s", h.topic)
	}
	if err := token.Error(); err != nil {
		return err
	}
	slog.Info("notify: control topic subscribed", "topic", h.topic)
	return nil
}

func (h *controlHandler) unsubscribe(client mqtt.Client) {
	token := client.Unsubscribe(h.topic)
	token.WaitTimeout(2 * time.Second)
}

// onMessage runs on the MQTT client's routine. It must not block, so a
// full queue drops the command.
func (h *controlHandler) onMessage(client mqtt.Client, msg mqtt.Message) {
	cmd, err := decodeCommand(msg.Payload())
	if err != nil {
		slog.Warn("notify: bad control payload", "error", err)
		return
	}
	h.enqueue(cmd)
}

func (h *controlHandler) enqueue(cmd Command) {
	select {
	case h.commands <- cmd:
	default:
		h.dropped.Add(1)
		slog.Warn("notify: control queue full, command dropped", "command", cmd.Command)
	}
}

// run dispatches queued commands until the context or stop channel
// fires.
func (h *controlHandler) run(ctx context.Context, stopCh <-chan struct{}) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-stopCh:
			return
		case cmd := <-h.commands:
			resp := h.handle(cmd)
			if resp.Status == "ok" {
				slog.Info("notify: control command applied", "command", cmd.Command)
			} else {
				slog.Warn("notify: control command rejected", "command", cmd.Command, "error", resp.Error)
			}
			h.publish(h.ackTopic, 0, resp)
		}
	}
}

// handle executes one command against the callbacks and builds the
// acknowledgement.
func (h *controlHandler) handle(cmd Command) Response {
	switch cmd.Command {
	case "set_threshold":
		if h.cb.SetThreshold == nil {
			return errResponse(cmd, "command not supported")
		}
		value, err := intParam(cmd.Params, "threshold")
		if err != nil {
			return errResponse(cmd, err.Error())
		}
		if err := h.cb.SetThreshold(value); err != nil {
			return errResponse(cmd, err.Error())
		}
		return okResponse(cmd, map[string]any{"threshold": value})

	case "set_min_area":
		if h.cb.SetMinArea == nil {
			return errResponse(cmd, "command not supported")
		}
		value, err := intParam(cmd.Params, "min_area")
		if err != nil {
			return errResponse(cmd, err.Error())
		}
		if err := h.cb.SetMinArea(value); err != nil {
			return errResponse(cmd, err.Error())
		}
		return okResponse(cmd, map[string]any{"min_area": value})

	case "set_region":
		if h.cb.SetRegion == nil {
			return errResponse(cmd, "command not supported")
		}
		var region roi.Region
		var err error
		if region.X1, err = intParam(cmd.Params, "x1"); err != nil {
			return errResponse(cmd, err.Error())
		}
		if region.Y1, err = intParam(cmd.Params, "y1"); err != nil {
			return errResponse(cmd, err.Error())
		}
		if region.X2, err = intParam(cmd.Params, "x2"); err != nil {
			return errResponse(cmd, err.Error())
		}
		if region.Y2, err = intParam(cmd.Params, "y2"); err != nil {
			return errResponse(cmd, err.Error())
		}
		enabled := boolParam(cmd.Params, "enabled", true)
		if err := h.cb.SetRegion(region, enabled); err != nil {
			return errResponse(cmd, err.Error())
		}
		return okResponse(cmd, map[string]any{
			"x1": region.X1, "y1": region.Y1,
			"x2": region.X2, "y2": region.Y2,
			"enabled": enabled,
		})

	case "set_control":
		if h.cb.SetControl == nil {
			return errResponse(cmd, "command not supported")
		}
		name, err := stringParam(cmd.Params, "name")
		if err != nil {
			return errResponse(cmd, err.Error())
		}
		value, err := intParam(cmd.Params, "value")
		if err != nil {
			return errResponse(cmd, err.Error())
		}
		if err := h.cb.SetControl(name, value); err != nil {
			return errResponse(cmd, err.Error())
		}
		return okResponse(cmd, map[string]any{"name": name, "value": value})

	case "pause_motion":
		if h.cb.Pause == nil {
			return errResponse(cmd, "command not supported")
		}
		reason := optionalStringParam(cmd.Params, "reason", "paused by operator")
		h.cb.Pause(reason)
		return okResponse(cmd, nil)

	case "resume_motion":
		if h.cb.Resume == nil {
			return errResponse(cmd, "command not supported")
		}
		h.cb.Resume()
		return okResponse(cmd, nil)

	case "get_status":
		if h.cb.Status == nil {
			return errResponse(cmd, "command not supported")
		}
		return okResponse(cmd, h.cb.Status())

	default:
		return errResponse(cmd, fmt.Sprintf("unknown command %q", cmd.Command))
	}
}

func decodeCommand(payload []byte) (Command, error) {
	var cmd Command
	if err := json.Unmarshal(payload, &cmd); err != nil {
		return Command{}, fmt.Errorf("invalid command payload: %w", err)
	}
	if cmd.Command == "" {
		return Command{}, fmt.Errorf("command field is empty")
	}
	return cmd, nil
}

func okResponse(cmd Command, data map[string]any) Response {
	return Response{Command: cmd.Command, Status: "ok", Data: data}
}

func errResponse(cmd Command, msg string) Response {
	return Response{Command: cmd.Command, Status: "error", Error: msg}
}

// intParam extracts an integer parameter. JSON numbers arrive as
// float64, but direct construction with int is accepted too.
func intParam(params map[string]any, key string) (int, error) {
	raw, ok := params[key]
	if !ok {
		return 0, fmt.Errorf("missing parameter %q", key)
	}
	switch v := raw.(type) {
	case float64:
		return int(v), nil
	case int:
		return v, nil
	default:
		return 0, fmt.Errorf("parameter %q must be a number", key)
	}
}

func stringParam(params map[string]any, key string) (string, error) {
	raw, ok := params[key]
	if !ok {
		return "", fmt.Errorf("missing parameter %q", key)
	}
	s, ok := raw.(string)
	if !ok {
		return "", fmt.Errorf("parameter %q must be a string", key)
	}
	return s, nil
}

func optionalStringParam(params map[string]any, key, fallback string) string {
	if s, ok := params[key].(string); ok && s != "" {
		return s
	}
	return fallback
}

func boolParam(params map[string]any, key string, fallback bool) bool {
	if b, ok := params[key].(bool); ok {
		return b
	}
	return fallback
}
