// Package cli provides the interactive bus console built on ishell.
package cli

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"strconv"
	"strings"

	"github.com/abiosoft/ishell"

	"github.com/fieldtalks/rsbus.go/pkg/bus"
	"github.com/fieldtalks/rsbus.go/pkg/master"
	"github.com/fieldtalks/rsbus.go/pkg/node"
)

// Shell provides the ishell backed interactive console.
type Shell struct {
	Interactive bool
	OutputJSON  bool

	Shell  *ishell.Shell
	Client *master.Client
}

const shellKey = "$shell"

var (
	// flags

	evalOnly   bool
	outputJSON bool

	// commands

	commands = []*ishell.Cmd{
		&ScanCmd,
		&PingCmd,
		&VersionCmd,
		&StatusCmd,
		&HeartbeatCmd,
		&InputsCmd,
		&OutputsCmd,
		&AnalogCmd,
	}
)

func init() {
	flag.BoolVar(&evalOnly, "e", evalOnly, "Evaluation only, no interactive shell.")
	flag.BoolVar(&outputJSON, "json", outputJSON, "Print output in JSON.")
}

// New creates a new shell around a master client.
func New(client *master.Client) *Shell {
	s := &Shell{
		Interactive: !evalOnly,
		OutputJSON:  outputJSON,

		Shell:  ishell.New(),
		Client: client,
	}
	s.Shell.Set(shellKey, s)
	s.Shell.SetPrompt("bus > ")
	for _, cmd := range commands {
		s.Shell.AddCmd(cmd)
	}
	return s
}

// ShellFrom gets Shell from ishell context.
func ShellFrom(c *ishell.Context) *Shell {
	return c.Get(shellKey).(*Shell)
}

// Run runs the shell, either processing args or interactively.
func (s *Shell) Run(args ...string) error {
	if len(args) > 0 {
		return s.Shell.Process(args...)
	}
	if s.Interactive {
		s.Shell.Run()
		return nil
	}
	return fmt.Errorf("command expected")
}

// ParseAddr resolves a node address argument: a role name or a
// numeric literal, 0x-prefixed hex included.
func ParseAddr(arg string) (byte, error) {
	switch strings.ToLower(arg) {
	case "analog":
		return bus.AddrNodeAnalog, nil
	case "input":
		return bus.AddrNodeInput, nil
	case "output":
		return bus.AddrNodeOutput, nil
	case "all", "broadcast":
		return bus.AddrBroadcast, nil
	}
	v, err := strconv.ParseUint(arg, 0, 8)
	if err != nil {
		return 0, fmt.Errorf("bad node address %q", arg)
	}
	return byte(v), nil
}

// FormatStates renders packed digital states as 0/1 groups of eight.
func FormatStates(states []bool) string {
	var w strings.Builder
	for i, on := range states {
		if i > 0 && i%8 == 0 {
			w.WriteByte(' ')
		}
		if on {
			w.WriteByte('1')
		} else {
			w.WriteByte('0')
		}
	}
	return w.String()
}

// withAddr wraps a command func taking the addressed node as first
// argument.
func withAddr(fn func(c *ishell.Context, s *Shell, addr byte)) func(c *ishell.Context) {
	return func(c *ishell.Context) {
		if len(c.Args) < 1 {
			c.Err(fmt.Errorf("node address expected"))
			return
		}
		addr, err := ParseAddr(c.Args[0])
		if err != nil {
			c.Err(err)
			return
		}
		fn(c, ShellFrom(c), addr)
	}
}

func (s *Shell) printJSON(c *ishell.Context, v interface{}) {
	out, err := json.Marshal(v)
	if err != nil {
		c.Err(err)
		return
	}
	c.Println(string(out))
}

var (
	// ScanCmd probes the known node addresses.
	ScanCmd = ishell.Cmd{
		Name:    "scan",
		Aliases: []string{"list", "l"},
		Help:    "",
		Func: func(c *ishell.Context) {
			s := ShellFrom(c)
			found := s.Client.Scan(context.Background(),
				bus.AddrNodeAnalog, bus.AddrNodeInput, bus.AddrNodeOutput)
			if s.OutputJSON {
				if found == nil {
					found = []byte{}
				}
				s.printJSON(c, found)
				return
			}
			if len(found) == 0 {
				c.Println("No nodes found")
				return
			}
			for _, addr := range found {
				c.Printf("0x%02X online\n", addr)
			}
		},
	}

	// PingCmd checks one node.
	PingCmd = ishell.Cmd{
		Name: "ping",
		Help: "ADDR",
		Func: withAddr(func(c *ishell.Context, s *Shell, addr byte) {
			if err := s.Client.Ping(context.Background(), addr); err != nil {
				c.Err(err)
				return
			}
			c.Println("OK")
		}),
	}

	// VersionCmd reads firmware version.
	VersionCmd = ishell.Cmd{
		Name: "version",
		Help: "ADDR",
		Func: withAddr(func(c *ishell.Context, s *Shell, addr byte) {
			v, err := s.Client.Version(context.Background(), addr)
			if err != nil {
				c.Err(err)
				return
			}
			if s.OutputJSON {
				s.printJSON(c, v)
				return
			}
			c.Println(v.String())
		}),
	}

	// StatusCmd reads the link status record.
	StatusCmd = ishell.Cmd{
		Name: "status",
		Help: "ADDR",
		Func: withAddr(func(c *ishell.Context, s *Shell, addr byte) {
			snap, err := s.Client.NodeStatus(context.Background(), addr)
			if err != nil {
				c.Err(err)
				return
			}
			if s.OutputJSON {
				s.printJSON(c, snap)
				return
			}
			c.Println(snap.String())
		}),
	}

	// HeartbeatCmd reads the health score.
	HeartbeatCmd = ishell.Cmd{
		Name:    "heartbeat",
		Aliases: []string{"hb"},
		Help:    "ADDR",
		Func: withAddr(func(c *ishell.Context, s *Shell, addr byte) {
			hb, err := s.Client.Heartbeat(context.Background(), addr)
			if err != nil {
				c.Err(err)
				return
			}
			if s.OutputJSON {
				s.printJSON(c, hb)
				return
			}
			c.Printf("0x%02X health %d\n", hb.Addr, hb.Health)
		}),
	}

	// InputsCmd reads digital inputs.
	InputsCmd = ishell.Cmd{
		Name:    "inputs",
		Aliases: []string{"di"},
		Help:    "[ADDR]",
		Func: func(c *ishell.Context) {
			s := ShellFrom(c)
			addr := byte(bus.AddrNodeInput)
			if len(c.Args) > 0 {
				var err error
				if addr, err = ParseAddr(c.Args[0]); err != nil {
					c.Err(err)
					return
				}
			}
			packed, err := s.Client.ReadInputs(context.Background(), addr)
			if err != nil {
				c.Err(err)
				return
			}
			states := node.UnpackStates(packed, node.NumDigitalInputs)
			if s.OutputJSON {
				s.printJSON(c, states)
				return
			}
			c.Println(FormatStates(states))
		},
	}

	// OutputsCmd reads or writes digital outputs.
	OutputsCmd = ishell.Cmd{
		Name:    "outputs",
		Aliases: []string{"do"},
		Help:    "[set N on|off ...]",
		Func: func(c *ishell.Context) {
			s := ShellFrom(c)
			ctx := context.Background()
			if len(c.Args) > 0 && c.Args[0] == "set" {
				if len(c.Args) < 3 || len(c.Args)%2 == 0 {
					c.Err(fmt.Errorf("usage: outputs set N on|off ..."))
					return
				}
				packed, err := s.Client.ReadOutputs(ctx, bus.AddrNodeOutput)
				if err != nil {
					c.Err(err)
					return
				}
				states := node.UnpackStates(packed, node.NumDigitalOutputs)
				for i := 1; i < len(c.Args); i += 2 {
					idx, err := strconv.Atoi(c.Args[i])
					if err != nil || idx < 0 || idx >= node.NumDigitalOutputs {
						c.Err(fmt.Errorf("bad output index %q", c.Args[i]))
						return
					}
					states[idx] = c.Args[i+1] == "on" || c.Args[i+1] == "1"
				}
				if err := s.Client.WriteOutputs(ctx, bus.AddrNodeOutput, node.PackStates(states)); err != nil {
					c.Err(err)
					return
				}
				c.Println("OK")
				return
			}
			packed, err := s.Client.ReadOutputs(ctx, bus.AddrNodeOutput)
			if err != nil {
				c.Err(err)
				return
			}
			states := node.UnpackStates(packed, node.NumDigitalOutputs)
			if s.OutputJSON {
				s.printJSON(c, states)
				return
			}
			c.Println(FormatStates(states))
		},
	}

	// AnalogCmd reads analog channels.
	AnalogCmd = ishell.Cmd{
		Name: "analog",
		Help: "[ma|v|ntc|all]",
		Func: func(c *ishell.Context) {
			s := ShellFrom(c)
			ctx := context.Background()
			kind := "all"
			if len(c.Args) > 0 {
				kind = c.Args[0]
			}
			var vals []float32
			var err error
			switch kind {
			case "ma", "current":
				vals, err = s.Client.ReadCurrents(ctx, bus.AddrNodeAnalog)
			case "v", "voltage":
				vals, err = s.Client.ReadVoltages(ctx, bus.AddrNodeAnalog)
			case "ntc", "temp":
				vals, err = s.Client.ReadTemperatures(ctx, bus.AddrNodeAnalog)
			case "all":
				vals, err = s.Client.ReadAllAnalog(ctx, bus.AddrNodeAnalog)
			default:
				c.Err(fmt.Errorf("unknown analog group %q", kind))
				return
			}
			if err != nil {
				c.Err(err)
				return
			}
			if s.OutputJSON {
				s.printJSON(c, vals)
				return
			}
			for i, v := range vals {
				c.Printf("%2d: %.3f\n", i, v)
			}
		},
	}
)
