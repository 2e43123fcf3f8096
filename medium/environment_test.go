package medium

import (
	"testing"
	"time"

	"github.com/catshadow/endpointchannel/config"
	"github.com/stretchr/testify/require"
)

func freshEnvironment(t *testing.T) *Environment {
	t.Helper()
	e := Instance()
	require.NoError(t, e.Start(config.Default()))
	t.Cleanup(e.Stop)
	return e
}

func TestBLEDiscoveryExcludesSelf(t *testing.T) {
	e := freshEnvironment(t)

	var selfNotified, otherNotified bool
	e.UpdateBLEAdvertising("medium-a", "svc-a", true, false, DiscoveryCallback{
		OnDiscovered: func(serviceID string) {
			switch serviceID {
			case "svc-a":
				selfNotified = true
			case "svc-b":
				otherNotified = true
			}
		},
		OnLost: func(string) {},
	})
	e.Sync(true)

	e.UpdateBLEAdvertising("medium-b", "svc-b", true, false, DiscoveryCallback{
		OnDiscovered: func(serviceID string) {
			if serviceID == "svc-b" {
				selfNotified = true
			}
		},
		OnLost: func(string) {},
	})
	e.Sync(true)

	require.False(t, selfNotified, "no medium should be notified of its own advertising")
	require.True(t, otherNotified, "medium-a should be notified of medium-b's advertising via Sync-ordered fan-out")
}

func TestFindWifiLanServiceMatchesOnAddressAndPort(t *testing.T) {
	e := freshEnvironment(t)

	e.UpdateWifiLanService("medium-a", "svc-a", "10.0.0.1", 4242, true, DiscoveryCallback{
		OnDiscovered: func(string) {},
		OnLost:       func(string) {},
	})
	e.UpdateWifiLanService("medium-b", "svc-b", "10.0.0.2", 4343, true, DiscoveryCallback{
		OnDiscovered: func(string) {},
		OnLost:       func(string) {},
	})
	e.Sync(false)

	require.Equal(t, "svc-a", e.FindWifiLanService("10.0.0.1", 4242))
	require.Equal(t, "svc-b", e.FindWifiLanService("10.0.0.2", 4343))
	require.Equal(t, "", e.FindWifiLanService("10.0.0.9", 1))
}

func TestSyncQuiescenceAfterBurstOfEvents(t *testing.T) {
	e := freshEnvironment(t)

	const n = 50
	for i := 0; i < n; i++ {
		id := "medium-" + string(rune('a'+i%26))
		e.UpdateBLEAdvertising(id, "svc", true, false, DiscoveryCallback{
			OnDiscovered: func(string) {},
			OnLost:       func(string) {},
		})
	}
	e.Sync(false)

	// Once Sync returns, the registry must reflect every posted update;
	// a Reset run afterward must also complete without additional waiting.
	require.Len(t, e.bleMediums, 26)
	e.Reset()
	require.Empty(t, e.bleMediums)
}

func TestWebRTCSignalingDeliversMessage(t *testing.T) {
	e := freshEnvironment(t)

	received := make(chan []byte, 1)
	e.RegisterWebRTCSignaling("peer-b", func(peerID string, msg []byte) {
		received <- msg
	}, func(string) {})
	e.Sync(false)

	e.SendWebRTCSignalingMessage("peer-b", []byte("offer"))

	select {
	case msg := <-received:
		require.Equal(t, "offer", string(msg))
	case <-time.After(time.Second):
		t.Fatal("signaling message never delivered")
	}
}
