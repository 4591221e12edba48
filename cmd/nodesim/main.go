package main

//go-build: CGO_ENABLED=0

import (
	"flag"
	"log"

	"github.com/fieldtalks/rsbus.go/pkg/bus"
	"github.com/fieldtalks/rsbus.go/pkg/framework"
	"github.com/fieldtalks/rsbus.go/pkg/node"
)

var (
	device = flag.String("device", "/dev/ttyUSB0", "Serial device of the bus")
	baud   = flag.Int("baud", 115200, "Baud rate")
	role   = flag.String("role", "input", "Node role: analog, input or output")
	addr   = flag.Uint("addr", 0, "Bus address override (0 keeps the role default)")
)

func roleAddr(def byte) byte {
	if *addr != 0 {
		return byte(*addr)
	}
	return def
}

func main() {
	flag.Parse()

	line, err := bus.OpenSerial(bus.SerialConfig{Device: *device, Baud: *baud})
	if err != nil {
		log.Fatalln(err)
	}
	defer line.Close()

	var n *node.Node
	switch *role {
	case "analog":
		n = node.New(line, node.Config{Address: roleAddr(bus.AddrNodeAnalog)})
		n.UseAnalogInputs(node.NewSimAnalog())
	case "input":
		n = node.New(line, node.Config{Address: roleAddr(bus.AddrNodeInput)})
		n.UseDigitalInputs(node.NewSimInputs(node.NumDigitalInputs))
	case "output":
		n = node.New(line, node.Config{Address: roleAddr(bus.AddrNodeOutput)})
		n.UseDigitalOutputs(node.NewSimOutputs(node.NumDigitalOutputs))
	default:
		log.Fatalf("unknown role %q", *role)
	}

	err = framework.NewRunner().HandleSignals().
		Go(framework.NamedRun(*role, n)).
		Wait()
	if err != nil {
		log.Fatalln(err)
	}
}
