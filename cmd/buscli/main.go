package main

//go-build: CGO_ENABLED=0

import (
	"flag"
	"log"
	"time"

	"github.com/fieldtalks/rsbus.go/pkg/bus"
	"github.com/fieldtalks/rsbus.go/pkg/cli"
	"github.com/fieldtalks/rsbus.go/pkg/master"
)

var (
	device  = flag.String("device", "/dev/ttyUSB0", "Serial device of the bus")
	baud    = flag.Int("baud", 115200, "Baud rate")
	timeout = flag.Duration("timeout", time.Second, "Reply timeout")
)

func main() {
	flag.Parse()

	line, err := bus.OpenSerial(bus.SerialConfig{Device: *device, Baud: *baud})
	if err != nil {
		log.Fatalln(err)
	}
	defer line.Close()

	client := master.New(line, master.Config{Timeout: *timeout})
	if err := cli.New(client).Run(flag.Args()...); err != nil {
		log.Fatalln(err)
	}
}
