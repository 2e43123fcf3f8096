// Command echodemo wires two BaseEndpointChannels together over paired
// Pipes, runs the UKEY2-style handshake between them, enables encryption
// on both sides, and echoes one message end to end — a minimal,
// runnable demonstration of every piece this module implements.
package main

import (
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/carlmjohnson/versioninfo"
	"github.com/catshadow/endpointchannel/channel"
	"github.com/catshadow/endpointchannel/config"
	"github.com/catshadow/endpointchannel/crypto/d2d"
	"github.com/catshadow/endpointchannel/crypto/ukey2"
	"github.com/catshadow/endpointchannel/medium"
	logging "gopkg.in/op/go-logging.v1"
)

func main() {
	message := flag.String("message", "data message", "payload to echo between the two simulated peers")
	configPath := flag.String("config", "", "path to a TOML config file (unset uses config.Default())")
	showVersion := flag.Bool("version", false, "print version and exit")
	flag.Parse()

	if *showVersion {
		fmt.Println(versioninfo.Short())
		return
	}

	log := logging.MustGetLogger("echodemo")
	backend := logging.NewLogBackend(os.Stderr, "", 0)
	logging.SetBackend(backend)

	cfg := config.Default()
	if *configPath != "" {
		loaded, err := config.Load(*configPath)
		if err != nil {
			fmt.Fprintf(os.Stderr, "config: %v\n", err)
			os.Exit(1)
		}
		cfg = loaded
	}

	env := medium.Instance()
	if err := env.Start(cfg); err != nil {
		fmt.Fprintf(os.Stderr, "medium environment: %v\n", err)
		os.Exit(1)
	}
	defer env.Stop()

	env.UpdateWifiLanService("client", "server-endpoint", "127.0.0.1", 4242, true, medium.DiscoveryCallback{
		OnDiscovered:  func(string) {},
		OnNameChanged: func(string) {},
		OnLost:        func(string) {},
	})
	env.UpdateWifiLanService("server", "client-endpoint", "127.0.0.1", 4343, true, medium.DiscoveryCallback{
		OnDiscovered:  func(string) {},
		OnNameChanged: func(string) {},
		OnLost:        func(string) {},
	})
	env.Sync(false)

	clientToServer := channel.NewPipeWithChunkSize(cfg.PipeChunkSize)
	serverToClient := channel.NewPipeWithChunkSize(cfg.PipeChunkSize)

	clientChannel := channel.NewBaseEndpointChannel(
		"client", serverToClient.Reader(), clientToServer.Writer(),
		medium.WifiLANHooks{Env: env, MediumID: "client", ServiceID: "server-endpoint"}, cfg.MaxFrameSize)
	serverChannel := channel.NewBaseEndpointChannel(
		"server", clientToServer.Reader(), serverToClient.Writer(),
		medium.WifiLANHooks{Env: env, MediumID: "server", ServiceID: "client-endpoint"}, cfg.MaxFrameSize)

	runner := ukey2.NewHandshakeRunner(cfg.HandshakeDeadline, nil, log)
	deadline := cfg.HandshakeDeadline
	if deadline <= 0 {
		deadline = ukey2.DefaultDeadline
	}

	done := make(chan struct{}, 2)
	var handshakeErr error

	runner.StartClient("server-endpoint", clientChannel, ukey2.Callbacks{
		OnSuccess: func(endpointID string, ctx *d2d.Context, authToken, rawAuthToken []byte) {
			clientChannel.EnableEncryption(ctx)
			log.Infof("client handshake complete, auth token %x", authToken[:8])
			done <- struct{}{}
		},
		OnFailure: func(endpointID string, ch *channel.BaseEndpointChannel, err error) {
			handshakeErr = err
			done <- struct{}{}
		},
	})

	runner.StartServer("client-endpoint", serverChannel, ukey2.Callbacks{
		OnSuccess: func(endpointID string, ctx *d2d.Context, authToken, rawAuthToken []byte) {
			serverChannel.EnableEncryption(ctx)
			log.Infof("server handshake complete, auth token %x", authToken[:8])
			done <- struct{}{}
		},
		OnFailure: func(endpointID string, ch *channel.BaseEndpointChannel, err error) {
			handshakeErr = err
			done <- struct{}{}
		},
	})

	select {
	case <-done:
	case <-time.After(deadline + time.Second):
		fmt.Fprintln(os.Stderr, "handshake never completed")
		os.Exit(1)
	}
	select {
	case <-done:
	case <-time.After(deadline + time.Second):
		fmt.Fprintln(os.Stderr, "handshake never completed")
		os.Exit(1)
	}

	if handshakeErr != nil {
		fmt.Fprintf(os.Stderr, "handshake failed: %v\n", handshakeErr)
		os.Exit(1)
	}

	if err := clientChannel.Write([]byte(*message)); err != nil {
		fmt.Fprintf(os.Stderr, "write failed: %v\n", err)
		os.Exit(1)
	}

	reply, err := serverChannel.Read()
	if err != nil {
		fmt.Fprintf(os.Stderr, "read failed: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("%s: %s\n", serverChannel.GetType(), string(reply))

	clientChannel.Close(channel.Shutdown)
	serverChannel.Close(channel.Shutdown)
}
