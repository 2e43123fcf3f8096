package medium

import (
	"testing"

	"github.com/catshadow/endpointchannel/channel"
	"github.com/stretchr/testify/require"
)

func TestHooksReportMediumAndCloseRecordsEvent(t *testing.T) {
	e := freshEnvironment(t)

	ble := BLEHooks{Env: e, MediumID: "medium-a", ServiceID: "svc-a"}
	bt := BluetoothHooks{Env: e, MediumID: "medium-a", DeviceID: "dev-a"}
	wifi := WifiLANHooks{Env: e, MediumID: "medium-a", ServiceID: "svc-a"}
	rtc := WebRTCHooks{Env: e, PeerID: "peer-a"}

	require.Equal(t, channel.BLE, ble.Medium())
	require.Equal(t, channel.Bluetooth, bt.Medium())
	require.Equal(t, channel.WifiLan, wifi.Medium())
	require.Equal(t, channel.WebRTC, rtc.Medium())

	// CloseImpl must succeed even with discovery logging disabled (the
	// default in freshEnvironment's config.Default()).
	require.NoError(t, ble.CloseImpl())
	require.NoError(t, bt.CloseImpl())
	require.NoError(t, wifi.CloseImpl())
	require.NoError(t, rtc.CloseImpl())
}

func TestWifiLANHooksChannelReportsTypeAndClosesThroughEnvironment(t *testing.T) {
	e := freshEnvironment(t)

	pipe := channel.NewPipe()
	ch := channel.NewBaseEndpointChannel("peer", pipe.Reader(), pipe.Writer(),
		WifiLANHooks{Env: e, MediumID: "medium-a", ServiceID: "svc-a"}, 0)

	require.Equal(t, "WIFI_LAN", ch.GetType())
	require.NoError(t, ch.Close(channel.Shutdown))
}
