package channel

// Medium identifies the physical transport family an EndpointChannel is
// layered over. The simulated medium environment (package medium) and
// BaseEndpointChannel.GetType both key off this enum.
type Medium int

const (
	UnknownMedium Medium = iota
	BLE
	Bluetooth
	WifiLan
	WifiAware
	WebRTC
	USB
)

// String derives the wire-visible medium name mechanically from the enum,
// so any Medium added here gets a GetType() string for free.
func (m Medium) String() string {
	switch m {
	case BLE:
		return "BLE"
	case Bluetooth:
		return "BLUETOOTH"
	case WifiLan:
		return "WIFI_LAN"
	case WifiAware:
		return "WIFI_AWARE"
	case WebRTC:
		return "WEB_RTC"
	case USB:
		return "USB"
	default:
		return "UNKNOWN"
	}
}
