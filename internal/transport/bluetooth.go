package transport

import (
	"fmt"
	"html"
)

// SPP (Serial Port Profile) class and profile id.
const serialPortClass = 0x1101

// ProfileConfig describes the advertised RFCOMM service.
type ProfileConfig struct {
	Name    string
	UUID    string
	Channel int // 0 lets the stack pick a free channel
}

// ProfileTransport registers the service with BlueZ over D-Bus. BlueZ owns
// the RFCOMM listening socket and the SDP record, and hands each accepted
// client over as a file descriptor.
type ProfileTransport struct {
	cfg ProfileConfig
}

// NewProfileTransport creates a BlueZ profile transport.
func NewProfileTransport(cfg ProfileConfig) *ProfileTransport {
	return &ProfileTransport{cfg: cfg}
}

func (t *ProfileTransport) Name() string { return "bluez-profile" }

// SocketTransport listens on a raw AF_BLUETOOTH RFCOMM socket. Nothing is
// advertised; clients must know the channel.
type SocketTransport struct {
	channel uint8
}

// NewSocketTransport creates a raw socket transport. Channel 0 lets the
// kernel assign the first free channel at listen time.
func NewSocketTransport(channel int) *SocketTransport {
	return &SocketTransport{channel: uint8(channel)}
}

func (t *SocketTransport) Name() string { return "rfcomm-socket" }

// sdpRecord builds the BlueZ XML service record: the service UUID plus the
// serial-port class, L2CAP/RFCOMM on channel, and the serial-port profile.
func sdpRecord(cfg ProfileConfig) string {
	return fmt.Sprintf(`<?xml version="1.0" encoding="UTF-8" ?>
<record>
  <attribute id="0x0001">
    <sequence>
      <uuid value="%s" />
      <uuid value="0x%04x" />
    </sequence>
  </attribute>
  <attribute id="0x0004">
    <sequence>
      <sequence>
        <uuid value="0x0100" />
      </sequence>
      <sequence>
        <uuid value="0x0003" />
        <uint8 value="0x%02x" />
      </sequence>
    </sequence>
  </attribute>
  <attribute id="0x0005">
    <sequence>
      <uuid value="0x1002" />
    </sequence>
  </attribute>
  <attribute id="0x0009">
    <sequence>
      <sequence>
        <uuid value="0x%04x" />
        <uint16 value="0x0102" />
      </sequence>
    </sequence>
  </attribute>
  <attribute id="0x0100">
    <text value="%s" />
  </attribute>
</record>`, cfg.UUID, serialPortClass, cfg.Channel, serialPortClass, html.EscapeString(cfg.Name))
}
