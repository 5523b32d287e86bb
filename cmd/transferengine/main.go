// Command transferengine is a thin, line-oriented driver around the
// engine core: it wires the configuration oracle, the engine context, the
// scheduler, and an on-disk queue into one process a terminal (or a test
// harness piping commands into stdin) can talk to, the way rclone's own
// cmd/ binaries are thin wrappers around its fs/operations core rather
// than where any real logic lives.
package main

import (
	"bufio"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/transferengine/core/backend/ftp"
	"github.com/transferengine/core/backend/objectstorage"
	"github.com/transferengine/core/backend/sftp"
	"github.com/transferengine/core/internal/command"
	"github.com/transferengine/core/internal/config"
	"github.com/transferengine/core/internal/enginectx"
	"github.com/transferengine/core/internal/enginelog"
	"github.com/transferengine/core/internal/enginepath"
	"github.com/transferengine/core/internal/notification"
	"github.com/transferengine/core/internal/queuestore"
	"github.com/transferengine/core/internal/scheduler"
	"github.com/transferengine/core/internal/serverid"
	"github.com/transferengine/core/internal/session"
)

func main() {
	host := flag.String("host", "", "server hostname")
	port := flag.Int("port", 21, "server port")
	user := flag.String("user", "", "login user")
	password := flag.String("password", "", "login password")
	protoFlag := flag.String("protocol", "ftp", "ftp|ftps|ftpes|sftp|s3")
	endpoint := flag.String("endpoint", "", "object-storage endpoint override")
	maxConn := flag.Int("maxconn", 1, "server max_connections")
	queuePath := flag.String("queue", "queue.sqlite3", "queue persistence file, or :memory:")
	maxEngines := flag.Int("max-engines", 4, "engine pool cap, 0 = unbounded")
	flag.Parse()

	opts := config.LoadFromEnv()
	proto, err := parseProtocol(*protoFlag)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}

	store, err := queuestore.Open(*queuePath, opts.KioskMode)
	if err != nil {
		fmt.Fprintln(os.Stderr, "queuestore:", err)
		os.Exit(1)
	}
	defer store.Close()

	ctx := enginectx.New(opts)
	logger := enginelog.New(notification.LogLevel(opts.LoggingDebugLevel), enginelog.SinkFunc(func(level notification.LogLevel, text string) {
		fmt.Fprintf(os.Stdout, "[%s] %s\n", logLevelName(level), text)
	}))

	sched := scheduler.New(ctx, opts, logger, *maxEngines, transportFactory(*endpoint))
	sched.SetHooks(scheduler.Hooks{
		Notify:         func(msg string) { fmt.Fprintln(os.Stdout, "notify:", msg) },
		EngineReleased: func(id string) { fmt.Fprintln(os.Stdout, "engine released back to interactive session:", id) },
	})

	loaded, err := store.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, "queuestore load:", err)
		os.Exit(1)
	}
	if loaded.HadErrors {
		fmt.Fprintln(os.Stderr, "queuestore: on-disk queue had malformed rows, they were dropped")
	}
	sched.ImportQueue(loaded.Servers)

	stop := make(chan struct{})
	go ctx.Loop.Run(stop)
	defer close(stop)

	var si *scheduler.ServerItem
	if *host != "" {
		srv := serverid.Server{Protocol: proto, Host: *host, Port: *port, User: *user, MaxConnections: *maxConn, Name: *host}
		si = sched.AddServer(srv, serverid.Credentials{Password: *password}, *maxConn)
	}

	fmt.Fprintln(os.Stdout, "transferengine ready; commands: put <local> <remote-dir> <remote-file> | get <remote-dir> <remote-file> <local> | mkdir <remote-dir> | quit")
	scanner := bufio.NewScanner(os.Stdin)
	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()
	go func() {
		for range ticker.C {
			sched.DrainNotifications(printNotification)
		}
	}()

	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		fields := strings.Fields(line)
		switch fields[0] {
		case "quit", "exit":
			persist(store, sched)
			return
		case "put":
			if si == nil || len(fields) != 4 {
				fmt.Fprintln(os.Stderr, "usage: put <local> <remote-dir> <remote-file> (connect a server with -host first)")
				continue
			}
			sched.Enqueue(si, command.Command{
				Kind:       command.FileTransfer,
				LocalPath:  fields[1],
				RemotePath: enginepath.New(enginepath.SyntaxUnix, fields[2]),
				RemoteFile: fields[3],
				Direction:  command.Upload,
				Settings:   command.TransferSettings{PreserveTimestamps: opts.PreserveTimestamps},
			}, 0, 3)
		case "get":
			if si == nil || len(fields) != 4 {
				fmt.Fprintln(os.Stderr, "usage: get <remote-dir> <remote-file> <local>")
				continue
			}
			sched.Enqueue(si, command.Command{
				Kind:       command.FileTransfer,
				LocalPath:  fields[3],
				RemotePath: enginepath.New(enginepath.SyntaxUnix, fields[1]),
				RemoteFile: fields[2],
				Direction:  command.Download,
				Settings:   command.TransferSettings{PreserveTimestamps: opts.PreserveTimestamps},
			}, 0, 3)
		case "mkdir":
			if si == nil || len(fields) != 2 {
				fmt.Fprintln(os.Stderr, "usage: mkdir <remote-dir>")
				continue
			}
			sched.Enqueue(si, command.Command{
				Kind: command.Mkdir,
				Path: enginepath.New(enginepath.SyntaxUnix, fields[1]),
			}, 0, 0)
		default:
			fmt.Fprintln(os.Stderr, "unknown command:", fields[0])
		}
	}
	persist(store, sched)
}

func persist(store *queuestore.Store, sched *scheduler.Scheduler) {
	if err := store.Save(sched.ExportQueue()); err != nil {
		fmt.Fprintln(os.Stderr, "queuestore save:", err)
	}
}

func printNotification(engineID string, n notification.Notification) {
	switch n.Kind {
	case notification.Log:
		fmt.Fprintf(os.Stdout, "[%s] %s: %s\n", logLevelName(n.Level), engineID, n.Text)
	case notification.OperationCompleted:
		fmt.Fprintf(os.Stdout, "%s: operation completed, result=%s\n", engineID, n.Result)
	case notification.TransferStatus:
		fmt.Fprintf(os.Stdout, "%s: transferred %d/%d bytes\n", engineID, n.CurrentOffset, n.TotalSize)
	case notification.AsyncRequest:
		fmt.Fprintf(os.Stdout, "%s: awaiting reply to request #%d\n", engineID, n.RequestID)
	}
}

func logLevelName(l notification.LogLevel) string {
	switch l {
	case notification.LevelError:
		return "error"
	case notification.LevelStatus:
		return "status"
	case notification.LevelCommand:
		return "command"
	case notification.LevelResponse:
		return "response"
	default:
		return "debug"
	}
}

func parseProtocol(s string) (serverid.Protocol, error) {
	switch strings.ToLower(s) {
	case "ftp":
		return serverid.ProtocolFTP, nil
	case "ftps":
		return serverid.ProtocolFTPImplicitTLS, nil
	case "ftpes":
		return serverid.ProtocolFTPExplicitTLS, nil
	case "sftp":
		return serverid.ProtocolSFTP, nil
	case "s3", "objectstorage":
		return serverid.ProtocolObjectStorage, nil
	default:
		return 0, fmt.Errorf("unknown -protocol %q", s)
	}
}

func transportFactory(endpoint string) scheduler.Transport {
	return func(proto serverid.Protocol) session.Transport {
		switch proto {
		case serverid.ProtocolSFTP:
			return sftp.New()
		case serverid.ProtocolObjectStorage:
			return objectstorage.New(endpoint)
		default:
			return ftp.New(proto)
		}
	}
}
