// Package medium provides the simulated, process-wide medium environment:
// a singleton registry tying together mock Bluetooth, BLE, Wi-Fi LAN and
// WebRTC signaling mediums so integration tests can exercise discovery and
// channel setup without real radios.
package medium

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/catshadow/endpointchannel/channel"
	"github.com/catshadow/endpointchannel/config"
	"github.com/catshadow/endpointchannel/internal/worker"
	"github.com/catshadow/endpointchannel/metrics"
	logging "gopkg.in/op/go-logging.v1"
)

// DiscoveryCallback is the set of notifications a registered medium
// receives about other mediums of the same kind.
type DiscoveryCallback struct {
	OnDiscovered  func(serviceID string)
	OnNameChanged func(serviceID string)
	OnLost        func(serviceID string)
}

type bleMediumContext struct {
	serviceID         string
	advertising       bool
	fastAdvertisement bool
	callback          DiscoveryCallback
}

type bluetoothMediumContext struct {
	adapterID string
	devices   map[string]string // deviceID -> name
	callback  DiscoveryCallback
}

type wifiLanServiceContext struct {
	ipAddress   string
	port        int
	serviceID   string
	advertising bool
	callback    DiscoveryCallback
}

type wifiLanV2Context struct {
	advertisingServices map[string]string // serviceType -> serviceInfo
}

type webrtcContext struct {
	onMessage  func(peerID string, msg []byte)
	onComplete func(peerID string)
}

// Environment is the singleton registry. Use Instance to obtain it; all
// mutation runs on a single worker goroutine, matching the single-threaded
// executor the source platform uses for the same purpose.
type Environment struct {
	w     *worker.Worker
	tasks chan func()

	started  int32
	jobCount int64

	mu                  sync.Mutex
	enableNotifications bool

	bleMediums       map[string]*bleMediumContext
	bluetoothMediums map[string]*bluetoothMediumContext
	wifiLanMediums   map[string]*wifiLanServiceContext
	wifiLanMediumsV2 map[string]*wifiLanV2Context
	webrtcCallbacks  map[string]*webrtcContext

	useValidPeerConnection bool
	peerConnectionLatency  time.Duration

	log          *logging.Logger
	discoveryLog *DiscoveryLogWriter
}

var (
	instance     *Environment
	instanceOnce sync.Once
)

// Instance returns the process-wide Environment, constructing it lazily on
// first use.
func Instance() *Environment {
	instanceOnce.Do(func() {
		instance = &Environment{
			log: logging.MustGetLogger("medium"),
		}
	})
	return instance
}

// Start brings the environment up with cfg, idempotently: a second Start
// before Stop is a no-op, matching the source's atomic-exchange guard.
func (e *Environment) Start(cfg config.Config) error {
	if !atomic.CompareAndSwapInt32(&e.started, 0, 1) {
		return nil
	}
	e.log.Info("medium environment starting")

	if cfg.DiscoveryLogPath != "" {
		w, err := NewDiscoveryLogWriter(cfg.DiscoveryLogPath, cfg.DiscoveryLogPassphrase, e.log)
		if err != nil {
			return err
		}
		e.discoveryLog = w
	}

	e.tasks = make(chan func(), 256)
	e.w = &worker.Worker{}
	e.w.Go(e.runLoop)

	e.Reset()

	e.mu.Lock()
	e.useValidPeerConnection = cfg.UseValidPeerConnection
	e.peerConnectionLatency = cfg.PeerConnectionLatency
	e.mu.Unlock()
	return nil
}

// Stop brings the environment down, idempotently, waiting for quiescence
// first.
func (e *Environment) Stop() {
	if !atomic.CompareAndSwapInt32(&e.started, 1, 0) {
		return
	}
	e.Sync(false)
	e.w.Halt()
	if e.discoveryLog != nil {
		e.discoveryLog.Close()
		e.discoveryLog = nil
	}
}

func (e *Environment) runLoop() {
	defer e.w.Done()
	for {
		select {
		case fn := <-e.tasks:
			fn()
		case <-e.w.HaltCh():
			return
		}
	}
}

// post submits fn to the single worker goroutine and bumps the job
// counter before the send, so a Sync barrier queued after this call is
// guaranteed to observe fn having run.
func (e *Environment) post(fn func()) {
	atomic.AddInt64(&e.jobCount, 1)
	e.tasks <- fn
}

// Reset clears every registry. Blocks until applied.
func (e *Environment) Reset() {
	done := make(chan struct{})
	e.post(func() {
		e.mu.Lock()
		e.bleMediums = map[string]*bleMediumContext{}
		e.bluetoothMediums = map[string]*bluetoothMediumContext{}
		e.wifiLanMediums = map[string]*wifiLanServiceContext{}
		e.wifiLanMediumsV2 = map[string]*wifiLanV2Context{}
		e.webrtcCallbacks = map[string]*webrtcContext{}
		e.useValidPeerConnection = true
		e.peerConnectionLatency = 0
		e.mu.Unlock()
		close(done)
	})
	<-done
	e.Sync(false)
}

// Sync is the happens-before barrier: it repeatedly posts a latch task and
// waits for it, until the job counter hasn't moved since the last round,
// guaranteeing every task enqueued up to this call (transitively) has run.
func (e *Environment) Sync(enableNotifications bool) {
	e.mu.Lock()
	e.enableNotifications = enableNotifications
	e.mu.Unlock()

	var count int64
	for {
		done := make(chan struct{})
		count = atomic.LoadInt64(&e.jobCount) + 1
		e.post(func() { close(done) })
		<-done
		if count >= atomic.LoadInt64(&e.jobCount) {
			break
		}
	}
}

// --- BLE ---

// UpdateBLEAdvertising registers mediumID's advertising state for
// serviceID and notifies every other registered BLE medium.
func (e *Environment) UpdateBLEAdvertising(mediumID, serviceID string, advertising, fastAdvertisement bool, cb DiscoveryCallback) {
	e.post(func() {
		e.mu.Lock()
		e.bleMediums[mediumID] = &bleMediumContext{
			serviceID:         serviceID,
			advertising:       advertising,
			fastAdvertisement: fastAdvertisement,
			callback:          cb,
		}
		notify := e.notificationsEnabledLocked()
		others := e.otherBLEContextsLocked(mediumID)
		e.mu.Unlock()

		metrics.RecordMediumEvent("ble_advertising")
		if e.discoveryLog != nil {
			e.discoveryLog.Append(Event{Kind: "ble_advertising", MediumID: mediumID, ServiceID: serviceID})
		}
		if !notify {
			return
		}
		for _, other := range others {
			if advertising {
				other.callback.OnDiscovered(serviceID)
			} else {
				other.callback.OnLost(serviceID)
			}
		}
	})
}

func (e *Environment) notificationsEnabledLocked() bool { return e.enableNotifications }

func (e *Environment) otherBLEContextsLocked(excludeID string) []*bleMediumContext {
	out := make([]*bleMediumContext, 0, len(e.bleMediums))
	for id, ctx := range e.bleMediums {
		if id == excludeID {
			continue
		}
		out = append(out, ctx)
	}
	return out
}

// --- Bluetooth classic ---

// UpdateBluetoothAdapterState registers adapterID's state and notifies
// every other Bluetooth classic medium, excluding the adapter's own.
func (e *Environment) UpdateBluetoothAdapterState(adapterID, deviceID, name string, enabled bool, cb DiscoveryCallback) {
	e.post(func() {
		e.mu.Lock()
		ctx, ok := e.bluetoothMediums[adapterID]
		if !ok {
			ctx = &bluetoothMediumContext{adapterID: adapterID, devices: map[string]string{}, callback: cb}
			e.bluetoothMediums[adapterID] = ctx
		}
		others := make([]*bluetoothMediumContext, 0, len(e.bluetoothMediums))
		for id, other := range e.bluetoothMediums {
			if id == adapterID {
				continue
			}
			others = append(others, other)
		}
		notify := e.enableNotifications
		if enabled {
			ctx.devices[deviceID] = name
		} else {
			delete(ctx.devices, deviceID)
		}
		e.mu.Unlock()

		metrics.RecordMediumEvent("bluetooth_adapter")
		if e.discoveryLog != nil {
			e.discoveryLog.Append(Event{Kind: "bluetooth_adapter", MediumID: adapterID, ServiceID: deviceID})
		}
		if !notify {
			return
		}
		for _, other := range others {
			if enabled {
				other.callback.OnDiscovered(deviceID)
			} else {
				other.callback.OnLost(deviceID)
			}
		}
	})
}

// --- Wi-Fi LAN v1 ---

// UpdateWifiLanService registers mediumID's service at ipAddress:port and
// notifies every other Wi-Fi LAN medium.
func (e *Environment) UpdateWifiLanService(mediumID, serviceID, ipAddress string, port int, advertising bool, cb DiscoveryCallback) {
	e.post(func() {
		e.mu.Lock()
		e.wifiLanMediums[mediumID] = &wifiLanServiceContext{
			ipAddress:   ipAddress,
			port:        port,
			serviceID:   serviceID,
			advertising: advertising,
			callback:    cb,
		}
		notify := e.enableNotifications
		others := make([]*wifiLanServiceContext, 0, len(e.wifiLanMediums))
		for id, other := range e.wifiLanMediums {
			if id == mediumID {
				continue
			}
			others = append(others, other)
		}
		e.mu.Unlock()

		metrics.RecordMediumEvent("wifi_lan_service")
		if e.discoveryLog != nil {
			e.discoveryLog.Append(Event{Kind: "wifi_lan_service", MediumID: mediumID, ServiceID: serviceID})
		}
		if !notify {
			return
		}
		for _, other := range others {
			if advertising {
				other.callback.OnDiscovered(serviceID)
			} else {
				other.callback.OnLost(serviceID)
			}
		}
	})
}

// FindWifiLanService returns the serviceID of the registered Wi-Fi LAN
// medium at ipAddress:port, or "" if none matches. The source's C++
// equivalent dereferences its own not-yet-assigned output variable instead
// of the medium under iteration; this iterates item.second directly.
func (e *Environment) FindWifiLanService(ipAddress string, port int) string {
	result := make(chan string, 1)
	e.post(func() {
		e.mu.Lock()
		defer e.mu.Unlock()
		for _, ctx := range e.wifiLanMediums {
			if ctx.ipAddress == ipAddress && ctx.port == port {
				result <- ctx.serviceID
				return
			}
		}
		result <- ""
	})
	return <-result
}

// --- Wi-Fi LAN v2 ---

// UpdateWifiLanV2Advertising registers mediumID's advertised service info
// for serviceType.
func (e *Environment) UpdateWifiLanV2Advertising(mediumID, serviceType, serviceInfo string) {
	e.post(func() {
		e.mu.Lock()
		ctx, ok := e.wifiLanMediumsV2[mediumID]
		if !ok {
			ctx = &wifiLanV2Context{advertisingServices: map[string]string{}}
			e.wifiLanMediumsV2[mediumID] = ctx
		}
		ctx.advertisingServices[serviceType] = serviceInfo
		e.mu.Unlock()
	})
}

// --- WebRTC signaling ---

// RegisterWebRTCSignaling registers peerID's signaling callbacks.
func (e *Environment) RegisterWebRTCSignaling(peerID string, onMessage func(peerID string, msg []byte), onComplete func(peerID string)) {
	e.post(func() {
		e.mu.Lock()
		e.webrtcCallbacks[peerID] = &webrtcContext{onMessage: onMessage, onComplete: onComplete}
		e.mu.Unlock()
	})
}

// SendWebRTCSignalingMessage delivers msg to peerID's registered callback,
// if any, honoring the configured peer-connection latency.
func (e *Environment) SendWebRTCSignalingMessage(peerID string, msg []byte) {
	e.post(func() {
		e.mu.Lock()
		ctx, ok := e.webrtcCallbacks[peerID]
		latency := e.peerConnectionLatency
		e.mu.Unlock()
		if !ok {
			return
		}
		if latency > 0 {
			time.Sleep(latency)
		}
		ctx.onMessage(peerID, msg)
	})
}

// UseValidPeerConnection reports the environment's configured WebRTC
// connection-validity flag.
func (e *Environment) UseValidPeerConnection() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.useValidPeerConnection
}

// logClose records a transport's teardown against the discovery log (if
// logging is enabled) and the medium-environment event counter. Shared by
// every *Hooks adapter's CloseImpl.
func (e *Environment) logClose(kind, mediumID, serviceID string) {
	metrics.RecordMediumEvent(kind)
	if e.discoveryLog != nil {
		e.discoveryLog.Append(Event{Kind: kind, MediumID: mediumID, ServiceID: serviceID})
	}
}

// Medium is re-exported so callers of this package don't need to also
// import channel for the enum BaseEndpointChannel already defines.
type Medium = channel.Medium
