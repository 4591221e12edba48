package main

//go-build: CGO_ENABLED=0

import (
	"flag"
	"log"
	"os"
	"strings"
	"time"

	"github.com/fieldtalks/rsbus.go/pkg/bus"
	"github.com/fieldtalks/rsbus.go/pkg/cli"
	"github.com/fieldtalks/rsbus.go/pkg/framework"
	"github.com/fieldtalks/rsbus.go/pkg/master"
	"github.com/fieldtalks/rsbus.go/pkg/telemetry"
)

var (
	device    = flag.String("device", "/dev/ttyUSB0", "Serial device of the bus")
	baud      = flag.Int("baud", 115200, "Baud rate")
	brokerURL = flag.String("mqtt", defaultBrokerURL(), "MQTT broker URL")
	nodes     = flag.String("nodes", "analog,input,output", "Nodes to poll, comma separated")
	interval  = flag.Duration("interval", telemetry.DefaultPollInterval, "Status poll interval")
	timeout   = flag.Duration("timeout", time.Second, "Reply timeout")
)

func defaultBrokerURL() string {
	if val := os.Getenv("RSBUS_MQTT_URL"); val != "" {
		return val
	}
	return "mqtt://localhost:1883/rsbus/"
}

func parseNodes(list string) ([]byte, error) {
	var addrs []byte
	for _, item := range strings.Split(list, ",") {
		addr, err := cli.ParseAddr(strings.TrimSpace(item))
		if err != nil {
			return nil, err
		}
		addrs = append(addrs, addr)
	}
	return addrs, nil
}

func main() {
	flag.Parse()

	addrs, err := parseNodes(*nodes)
	if err != nil {
		log.Fatalln(err)
	}

	line, err := bus.OpenSerial(bus.SerialConfig{Device: *device, Baud: *baud})
	if err != nil {
		log.Fatalln(err)
	}
	defer line.Close()

	queue, err := telemetry.NewQueueFromURL(*brokerURL)
	if err != nil {
		log.Fatalln(err)
	}
	if token := queue.Connect(); token.Wait() && token.Error() != nil {
		log.Fatalln(token.Error())
	}
	defer queue.Close()

	publisher := &telemetry.Publisher{
		Client:   master.New(line, master.Config{Timeout: *timeout}),
		Queue:    queue,
		Nodes:    addrs,
		Interval: *interval,
	}
	err = framework.NewRunner().HandleSignals().
		Go(publisher).
		Wait()
	if err != nil {
		log.Fatalln(err)
	}
}
