package main

//go-build: CGO_ENABLED=0

import (
	"flag"

	"github.com/golang/glog"

	"github.com/retronet/nanobridge/pkg/bridge"
	"github.com/retronet/nanobridge/pkg/host"
	"github.com/retronet/nanobridge/pkg/host/mqtt"
	"github.com/retronet/nanobridge/pkg/link"
	"github.com/retronet/nanobridge/pkg/wire/serial"
)

var (
	serialConf serial.Config
	address    uint
	broker     string
	name       string
)

func init() {
	serialConf.SetupFlags()
	flag.UintVar(&address, "address", 0, "Bus address, 0 arbitrates as master.")
	flag.StringVar(&broker, "broker", "tcp://127.0.0.1:1883", "MQTT broker URL.")
	flag.StringVar(&name, "name", "nanobridge", "Bridge name announced to hosts.")
}

func main() {
	flag.Parse()
	defer glog.Flush()

	if serialConf.Device == "" {
		glog.Exit("no serial device, use -serial")
	}
	drv, err := serialConf.Open()
	if err != nil {
		glog.Exitf("open %s: %v", serialConf.Device, err)
	}
	defer drv.Close()

	ctrl := link.NewController(drv, link.Config{Address: byte(address)})
	id := host.BridgeID(name)
	srv := mqtt.NewServer(
		mqtt.NewQueue(broker, mqtt.ClientID("bridge", id)),
		host.NewDispatcher(ctrl),
		mqtt.Meta{ID: id, Address: byte(address), Name: name},
	)

	if err := bridge.New(ctrl, srv).RunUntilSignal(); err != nil {
		glog.Exit(err)
	}
}
