// Package govee controls a Govee WiFi bulb over its LAN UDP API. The bulb
// listens for JSON command datagrams on port 4003; there is no reply for
// control commands, so a send that reaches the socket counts as success.
package govee

import (
	"encoding/json"
	"fmt"
	"net"
	"time"
)

// DefaultPort is the Govee LAN control port.
const DefaultPort = 4003

const writeTimeout = 2 * time.Second

// command is the envelope every LAN API message uses.
type command struct {
	Msg msg `json:"msg"`
}

type msg struct {
	Cmd  string      `json:"cmd"`
	Data interface{} `json:"data"`
}

type turnData struct {
	Value int `json:"value"`
}

type colorData struct {
	Color    rgb `json:"color"`
	ColorTem int `json:"colorTemInKelvin"`
}

type rgb struct {
	R uint8 `json:"r"`
	G uint8 `json:"g"`
	B uint8 `json:"b"`
}

type brightnessData struct {
	Value int `json:"value"`
}

// Light is a connected Govee bulb.
type Light struct {
	conn net.Conn
	addr string
}

// Dial opens the UDP socket to the bulb. Port 0 uses the default.
func Dial(ip string, port int) (*Light, error) {
	if port == 0 {
		port = DefaultPort
	}
	addr := net.JoinHostPort(ip, fmt.Sprintf("%d", port))
	conn, err := net.Dial("udp", addr)
	if err != nil {
		return nil, fmt.Errorf("dial govee light %s: %w", addr, err)
	}
	return &Light{conn: conn, addr: addr}, nil
}

// SetColor sets the bulb to an RGB color. The bulb switches on if needed.
func (l *Light) SetColor(r, g, b uint8) error {
	return l.send("colorwc", colorData{Color: rgb{R: r, G: g, B: b}})
}

// TurnOn switches the bulb on.
func (l *Light) TurnOn() error {
	return l.send("turn", turnData{Value: 1})
}

// TurnOff switches the bulb off.
func (l *Light) TurnOff() error {
	return l.send("turn", turnData{Value: 0})
}

// SetBrightness sets brightness 0-100.
func (l *Light) SetBrightness(pct int) error {
	if pct < 0 {
		pct = 0
	}
	if pct > 100 {
		pct = 100
	}
	return l.send("brightness", brightnessData{Value: pct})
}

// Close releases the socket.
func (l *Light) Close() error {
	return l.conn.Close()
}

func (l *Light) send(cmd string, data interface{}) error {
	payload, err := json.Marshal(command{Msg: msg{Cmd: cmd, Data: data}})
	if err != nil {
		return fmt.Errorf("marshal %s: %w", cmd, err)
	}
	if err := l.conn.SetWriteDeadline(time.Now().Add(writeTimeout)); err != nil {
		return fmt.Errorf("set deadline: %w", err)
	}
	if _, err := l.conn.Write(payload); err != nil {
		return fmt.Errorf("send %s to %s: %w", cmd, l.addr, err)
	}
	return nil
}
