// Command csnode starts a CS-Node core instance: it loads configuration
// and the node's public key, opens the pool store, and drives the UDP
// transport and round/role state machine (spec §6, §7).
package main

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"os"
	"time"

	"github.com/urfave/cli/v2"
	"golang.org/x/sync/errgroup"

	"github.com/puppy86/CS-Node/config"
	"github.com/puppy86/CS-Node/identity"
	"github.com/puppy86/CS-Node/log"
	"github.com/puppy86/CS-Node/node"
	"github.com/puppy86/CS-Node/storage"
	"github.com/puppy86/CS-Node/transport"
)

// fatalGrace is the sleep before exiting on an initialization fault
// (spec §7: "log and exit with a 10-second grace sleep").
const fatalGrace = 10 * time.Second

func main() {
	app := &cli.App{
		Name:  "csnode",
		Usage: "run a CS-Node core instance",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "config", Aliases: []string{"c"}, Value: "config.ini", Usage: "path to the INI configuration file"},
			&cli.StringFlag{Name: "pubkey", Value: "PublicKey.txt", Usage: "path to the node's public key file"},
			&cli.StringFlag{Name: "datadir", Value: "CREDITS", Usage: "path to the pool store directory"},
			&cli.BoolFlag{Name: "compress", Value: true, Usage: "snappy-compress pool bytes before they reach the store"},
			&cli.StringFlag{Name: "log-level", Value: "info", Usage: "debug, info, warn, or error"},
			&cli.StringFlag{Name: "log-file", Value: "", Usage: "rotate logs to this file instead of stderr"},
		},
		Action: run,
	}

	if err := app.Run(os.Args); err != nil {
		fatal(err)
	}
}

func run(c *cli.Context) error {
	level := parseLevel(c.String("log-level"))
	if path := c.String("log-file"); path != "" {
		log.SetDefault(log.NewRotating(level, path, 64, 5, 28))
	} else {
		log.SetDefault(log.New(level, os.Stderr))
	}
	logger := log.Default().Module("main")

	cfg, err := config.Load(c.String("config"))
	if err != nil {
		fatal(err)
		return err
	}

	pubKey, pubKeyText, err := config.LoadPublicKey(c.String("pubkey"))
	if err != nil {
		fatal(err)
		return err
	}

	listenIP := net.ParseIP(cfg.HostInput.IP)
	selfHash := identity.ComputeNodeHash(listenIP, pubKeyText)
	logger.Info("node identity computed", "has_hash", !selfHash.IsZero())

	engine, err := storage.OpenLevelDB(c.String("datadir"))
	if err != nil {
		fatal(err)
		return err
	}

	store, err := storage.Open(engine, c.Bool("compress"), nil)
	if err != nil {
		fatal(err)
		return err
	}
	defer store.Close()

	conn, err := net.ListenUDP("udp", &net.UDPAddr{IP: listenIP, Port: cfg.HostInput.Port})
	if err != nil {
		fatal(err)
		return err
	}
	defer conn.Close()

	selfID := identity.NodeIDFromIP(listenIP)
	n := node.New(selfID, node.NoopSolver{}, nil)
	session := transport.NewSession(conn, selfHash, pubKey, originIPUint32(listenIP), n)
	n.BindSession(session)

	logger.Info("csnode started",
		"listen", fmt.Sprintf("%s:%d", cfg.HostInput.IP, cfg.HostInput.Port),
		"pool_count", store.PoolCount(),
		"last_hash", store.LastHash().String(),
	)

	ctx := c.Context
	group, ctx := errgroup.WithContext(ctx)
	group.Go(func() error { return registerWithSignalServer(ctx, session, n, cfg.Server) })
	group.Go(func() error { return runIOLoop(ctx, session) })

	return group.Wait()
}

// registerWithSignalServer runs the pre-registration handshake (spec
// §4.5.5) on its own goroutine, then ingests whatever initial round
// table the signal server answered with, if any.
func registerWithSignalServer(ctx context.Context, session *transport.Session, n *node.Node, server config.HostPort) error {
	const deadlinePerAttempt = 200 * time.Millisecond
	signalEndpoint := transport.EndpointFromUDP(&net.UDPAddr{IP: net.ParseIP(server.IP), Port: server.Port})

	result, err := session.Register(signalEndpoint, nodeVersion, deadlinePerAttempt)
	if err != nil {
		if ctx.Err() != nil {
			return nil
		}
		return fmt.Errorf("register with signal server: %w", err)
	}
	if result != nil && result.RoundTable != nil {
		if err := n.ReadRoundData(result.RoundTable, true); err != nil {
			log.Default().Module("main").Warn("initial round table rejected", "error", err)
		}
	}
	return nil
}

// nodeVersion is the decimal version string sent in the Registration
// packet (spec §4.5.5).
const nodeVersion = "1"

// runIOLoop drives receive dispatch and scheduler firing on the
// non-blocking loop spec §5 describes: one goroutine, no blocking I/O
// wait longer than a short poll interval.
func runIOLoop(ctx context.Context, session *transport.Session) error {
	const pollInterval = 20 * time.Millisecond
	for {
		select {
		case <-ctx.Done():
			return nil
		default:
		}
		if err := session.ReceiveOne(pollInterval); err != nil {
			return err
		}
		session.FireDueTasks()
	}
}

func originIPUint32(ip net.IP) uint32 {
	v4 := ip.To4()
	if v4 == nil {
		return 0
	}
	return uint32(v4[0])<<24 | uint32(v4[1])<<16 | uint32(v4[2])<<8 | uint32(v4[3])
}

func parseLevel(s string) slog.Level {
	switch s {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func fatal(err error) {
	log.Error("fatal startup error", "error", err)
	time.Sleep(fatalGrace)
	os.Exit(1)
}
