package medium

import "github.com/catshadow/endpointchannel/channel"

// BLEHooks, BluetoothHooks, WifiLANHooks and WebRTCHooks are the thin
// channel.TransportHooks adapters the simulated environment constructs for
// each BaseEndpointChannel it stands up: CloseImpl does no real teardown
// (there's no socket to close) but records the close against Env's
// discovery log and the medium_environment_events_total counter, exactly
// as advertising/lost events already are.

// BLEHooks backs a channel layered over a simulated BLE connection.
type BLEHooks struct {
	Env       *Environment
	MediumID  string
	ServiceID string
}

func (h BLEHooks) Medium() channel.Medium { return channel.BLE }

func (h BLEHooks) CloseImpl() error {
	h.Env.logClose("ble_close", h.MediumID, h.ServiceID)
	return nil
}

// BluetoothHooks backs a channel layered over a simulated Bluetooth
// classic connection.
type BluetoothHooks struct {
	Env      *Environment
	MediumID string
	DeviceID string
}

func (h BluetoothHooks) Medium() channel.Medium { return channel.Bluetooth }

func (h BluetoothHooks) CloseImpl() error {
	h.Env.logClose("bluetooth_close", h.MediumID, h.DeviceID)
	return nil
}

// WifiLANHooks backs a channel layered over a simulated Wi-Fi LAN service
// connection.
type WifiLANHooks struct {
	Env       *Environment
	MediumID  string
	ServiceID string
}

func (h WifiLANHooks) Medium() channel.Medium { return channel.WifiLan }

func (h WifiLANHooks) CloseImpl() error {
	h.Env.logClose("wifi_lan_close", h.MediumID, h.ServiceID)
	return nil
}

// WebRTCHooks backs a channel layered over a simulated WebRTC peer
// connection.
type WebRTCHooks struct {
	Env    *Environment
	PeerID string
}

func (h WebRTCHooks) Medium() channel.Medium { return channel.WebRTC }

func (h WebRTCHooks) CloseImpl() error {
	h.Env.logClose("webrtc_close", h.PeerID, "")
	return nil
}
