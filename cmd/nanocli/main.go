package main

//go-build: CGO_ENABLED=0

import (
	"encoding/hex"
	"flag"
	"fmt"
	"os"
	"strconv"

	"github.com/abiosoft/ishell"
	"github.com/golang/glog"

	"github.com/retronet/nanobridge/pkg/host"
	"github.com/retronet/nanobridge/pkg/host/mqtt"
	"github.com/retronet/nanobridge/pkg/link"
)

var (
	broker string
	bridge string
)

func init() {
	flag.StringVar(&broker, "broker", "tcp://127.0.0.1:1883", "MQTT broker URL.")
	flag.StringVar(&bridge, "bridge", "", "Bridge id to connect to at startup.")
}

const clientKey = "$client"

func clientFrom(c *ishell.Context) *mqtt.Client {
	client, _ := c.Get(clientKey).(*mqtt.Client)
	return client
}

func mustBeConnected(fn func(c *ishell.Context, client *mqtt.Client)) func(*ishell.Context) {
	return func(c *ishell.Context) {
		client := clientFrom(c)
		if client == nil {
			c.Err(fmt.Errorf("not connected, use connect <id>"))
			return
		}
		fn(c, client)
	}
}

func parseAddr(s string) (byte, error) {
	n, err := strconv.ParseUint(s, 0, 8)
	if err != nil || n >= link.MaxStations {
		return 0, fmt.Errorf("bad station address %q", s)
	}
	return byte(n), nil
}

func do(c *ishell.Context, client *mqtt.Client, cmd []byte) []byte {
	resp, err := client.Do(cmd)
	if err != nil {
		c.Err(err)
		return nil
	}
	if len(resp) == 0 {
		c.Err(fmt.Errorf("empty response from bridge"))
		return nil
	}
	if resp[0] != host.RespOK {
		c.Err(fmt.Errorf("bridge refused the command (%d)", resp[0]))
		return nil
	}
	return resp[1:]
}

func main() {
	flag.Parse()
	defer glog.Flush()

	queue := mqtt.NewQueue(broker, mqtt.ClientID("cli", strconv.Itoa(os.Getpid())))
	if err := queue.Connect(); err != nil {
		glog.Exitf("broker: %v", err)
	}
	defer queue.Close()

	shell := ishell.New()
	shell.SetPrompt("[none] > ")
	if bridge != "" {
		shell.Set(clientKey, mqtt.NewClient(queue, bridge))
		shell.SetPrompt("[" + bridge + "] > ")
	}

	shell.AddCmd(&ishell.Cmd{
		Name: "discover",
		Help: "list announced bridges",
		Func: func(c *ishell.Context) {
			metas, err := mqtt.Discover(queue, 0)
			if err != nil {
				c.Err(err)
				return
			}
			for _, meta := range metas {
				c.Printf("%s\taddress %d\t%s\n", meta.ID, meta.Address, meta.Name)
			}
		},
	})
	shell.AddCmd(&ishell.Cmd{
		Name: "connect",
		Help: "connect <bridge-id>",
		Func: func(c *ishell.Context) {
			if len(c.Args) != 1 {
				c.Err(fmt.Errorf("usage: connect <bridge-id>"))
				return
			}
			shell.Set(clientKey, mqtt.NewClient(queue, c.Args[0]))
			shell.SetPrompt("[" + c.Args[0] + "] > ")
		},
	})
	shell.AddCmd(&ishell.Cmd{
		Name: "status",
		Help: "poll bridge status",
		Func: mustBeConnected(func(c *ishell.Context, client *mqtt.Client) {
			payload := do(c, client, host.GetStatus())
			if payload == nil {
				return
			}
			st, err := host.DecodeStatus(payload)
			if err != nil {
				c.Err(err)
				return
			}
			c.Printf("state %s, error %s, events %03b", st.State, st.Error, st.Event)
			if st.Message != "" {
				c.Printf(" (%s)", st.Message)
			}
			c.Println()
		}),
	})
	shell.AddCmd(&ishell.Cmd{
		Name: "consigne",
		Help: "consigne -- fetch the last received consigne",
		Func: mustBeConnected(func(c *ishell.Context, client *mqtt.Client) {
			payload := do(c, client, host.GetConsigne())
			if payload == nil {
				return
			}
			peer, cons, err := host.DecodeConsigneRecord(payload)
			if err != nil {
				c.Err(err)
				return
			}
			c.Printf("station %02x: %s\n", peer, cons)
			c.Println(hex.Dump(cons.Wire()))
		}),
	})
	shell.AddCmd(&ishell.Cmd{
		Name: "send",
		Help: "send <station> <task> <app-task> [ctx-hex] -- push a consigne",
		Func: mustBeConnected(func(c *ishell.Context, client *mqtt.Client) {
			if len(c.Args) < 3 {
				c.Err(fmt.Errorf("usage: send <station> <task> <app-task> [ctx-hex]"))
				return
			}
			dest, err := parseAddr(c.Args[0])
			if err != nil {
				c.Err(err)
				return
			}
			task, err1 := strconv.ParseUint(c.Args[1], 0, 8)
			app, err2 := strconv.ParseUint(c.Args[2], 0, 8)
			if err1 != nil || err2 != nil {
				c.Err(fmt.Errorf("bad task codes"))
				return
			}
			var ctx []byte
			if len(c.Args) > 3 {
				if ctx, err = hex.DecodeString(c.Args[3]); err != nil {
					c.Err(err)
					return
				}
			}
			cons, err := link.Compose(dest, link.Header{
				TaskCode:    byte(task),
				AppTaskCode: byte(app),
			}, ctx)
			if err != nil {
				c.Err(err)
				return
			}
			if do(c, client, host.PutConsigne(cons)) != nil {
				c.Println("queued")
			}
		}),
	})
	shell.AddCmd(&ishell.Cmd{
		Name: "put",
		Help: "put <station> <hex> -- send a data block",
		Func: mustBeConnected(func(c *ishell.Context, client *mqtt.Client) {
			if len(c.Args) != 2 {
				c.Err(fmt.Errorf("usage: put <station> <hex>"))
				return
			}
			target, err := parseAddr(c.Args[0])
			if err != nil {
				c.Err(err)
				return
			}
			data, err := hex.DecodeString(c.Args[1])
			if err != nil {
				c.Err(err)
				return
			}
			if do(c, client, host.PutData(target, data)) != nil {
				c.Println("queued")
			}
		}),
	})
	shell.AddCmd(&ishell.Cmd{
		Name: "disconnect",
		Help: "disconnect <station>",
		Func: mustBeConnected(func(c *ishell.Context, client *mqtt.Client) {
			if len(c.Args) != 1 {
				c.Err(fmt.Errorf("usage: disconnect <station>"))
				return
			}
			target, err := parseAddr(c.Args[0])
			if err != nil {
				c.Err(err)
				return
			}
			if do(c, client, host.Disconnect(target)) != nil {
				c.Println("queued")
			}
		}),
	})

	shell.Run()
}
