package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"path/filepath"
	"strconv"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/snehjoshi/spoolq/internal/config"
	"github.com/snehjoshi/spoolq/internal/envelope"
	"github.com/snehjoshi/spoolq/internal/node"
	"github.com/snehjoshi/spoolq/internal/queue"
)

// ─── Queue selection ──────────────────────────────────────────────────────────

// queueFlags selects a queue. Values from the config file entry of the same
// name are the base; flags set on the command line override them.
type queueFlags struct {
	name          string
	dir           string
	queueType     string
	codec         string
	compression   string
	deadLetterDir string
	fsync         bool
}

func (f *queueFlags) register(cmd *cobra.Command) {
	fl := cmd.Flags()
	fl.StringVarP(&f.name, "queue", "q", "", "queue name (required)")
	fl.StringVar(&f.dir, "dir", "", "queue directory (default: <config dir>/<queue> or <queue>)")
	fl.StringVar(&f.queueType, "type", "", "dequeue order: FIFO, LIFO or PRIO")
	fl.StringVar(&f.codec, "codec", "", "payload codec: json, yaml or raw")
	fl.StringVar(&f.compression, "compression", "", "payload compression: none, zstd or s2")
	fl.StringVar(&f.deadLetterDir, "dead-letter-dir", "", "quarantine directory for undecodable messages")
	fl.BoolVar(&f.fsync, "fsync", false, "fsync every message file")
	_ = cmd.MarkFlagRequired("queue")
}

func (f *queueFlags) options(cmd *cobra.Command, cfg *config.Config) config.QueueOptions {
	o, ok := cfg.Queue(f.name)
	if !ok {
		o = config.QueueOptions{QueueName: f.name}
		if cfg.Dir != "" {
			o.Directory = filepath.Join(cfg.Dir, f.name)
		}
	}
	fl := cmd.Flags()
	if fl.Changed("dir") {
		o.Directory = f.dir
	}
	if fl.Changed("type") {
		o.QueueType = f.queueType
	}
	if fl.Changed("codec") {
		o.Codec = f.codec
	}
	if fl.Changed("compression") {
		o.Compression = f.compression
	}
	if fl.Changed("dead-letter-dir") {
		o.DeadLetterDir = f.deadLetterDir
	}
	if fl.Changed("fsync") {
		o.Fsync = f.fsync
	}
	return o
}

func (f *queueFlags) open(cmd *cobra.Command, a *app, opts ...queue.Option) (*queue.Queue, error) {
	qc, err := f.options(cmd, a.cfg).QueueConfig()
	if err != nil {
		return nil, err
	}
	return queue.New(qc, append([]queue.Option{queue.WithLogger(a.log)}, opts...)...)
}

// parsePriorities parses "", "5" or "3,7" into Pull/QueueSize arguments.
func parsePriorities(s string) ([]int, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, nil
	}
	parts := strings.Split(s, ",")
	out := make([]int, 0, len(parts))
	for _, p := range parts {
		n, err := strconv.Atoi(strings.TrimSpace(p))
		if err != nil {
			return nil, fmt.Errorf("invalid priority %q", p)
		}
		out = append(out, n)
	}
	return out, nil
}

// ─── push ─────────────────────────────────────────────────────────────────────

func newPushCmd(a *app) *cobra.Command {
	var (
		qf       queueFlags
		priority int
	)
	cmd := &cobra.Command{
		Use:   "push [BODY...]",
		Short: "Push one message per argument, or stdin as one message",
		Long: "Push stores each argument as a message. Under the json codec an argument that is valid JSON " +
			"is stored as that document, anything else as a JSON string. Without arguments stdin is read as one message.",
		RunE: func(cmd *cobra.Command, args []string) error {
			q, err := qf.open(cmd, a)
			if err != nil {
				return err
			}
			bodies := args
			if len(bodies) == 0 {
				data, err := io.ReadAll(cmd.InOrStdin())
				if err != nil {
					return fmt.Errorf("read stdin: %w", err)
				}
				bodies = []string{string(data)}
			}
			ct, err := envelope.ParseContentType(q.Config().Codec)
			if err != nil {
				return err
			}
			for _, b := range bodies {
				id, err := pushBody(q, ct, b, priority)
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), id)
			}
			return nil
		},
	}
	qf.register(cmd)
	cmd.Flags().IntVarP(&priority, "priority", "p", 0, "message priority 0..9 (PRIO queues)")
	return cmd
}

func pushBody(q *queue.Queue, ct envelope.ContentType, body string, priority int) (string, error) {
	switch ct {
	case envelope.Raw:
		return q.PushBytes([]byte(body), priority)
	case envelope.JSON:
		if json.Valid([]byte(body)) {
			return q.Push(json.RawMessage(body), priority)
		}
	}
	return q.Push(body, priority)
}

// ─── pull ─────────────────────────────────────────────────────────────────────

func newPullCmd(a *app) *cobra.Command {
	var (
		qf       queueFlags
		count    int
		prio     string
		withMeta bool
	)
	cmd := &cobra.Command{
		Use:   "pull",
		Short: "Pull up to --count messages and print their bodies",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ps, err := parsePriorities(prio)
			if err != nil {
				return err
			}
			q, err := qf.open(cmd, a)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			for i := 0; count <= 0 || i < count; i++ {
				msg, err := q.Pull(ps...)
				if err != nil && msg == nil {
					return err
				}
				if msg == nil {
					return nil
				}
				// A delete warning is already logged by the queue.
				printMessage(out, msg, withMeta)
			}
			return nil
		},
	}
	qf.register(cmd)
	fl := cmd.Flags()
	fl.IntVarP(&count, "count", "n", 1, "maximum messages to pull (0 = until empty)")
	fl.StringVar(&prio, "priority", "", `priority filter: "p" or "p,q"`)
	fl.BoolVar(&withMeta, "with-meta", false, "prefix each body with id, priority and filename")
	return cmd
}

func printMessage(w io.Writer, msg *queue.Message, withMeta bool) {
	body := strings.TrimRight(string(msg.Body), "\n")
	if withMeta {
		fmt.Fprintf(w, "%s\t%d\t%s\t%s\n", msg.ID, msg.Priority, msg.Filename, body)
		return
	}
	fmt.Fprintln(w, body)
}

// ─── size / stat ──────────────────────────────────────────────────────────────

func newSizeCmd(a *app) *cobra.Command {
	var (
		qf   queueFlags
		prio string
	)
	cmd := &cobra.Command{
		Use:   "size",
		Short: "Print the number of messages in the queue",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ps, err := parsePriorities(prio)
			if err != nil {
				return err
			}
			q, err := qf.open(cmd, a)
			if err != nil {
				return err
			}
			n, ok := q.QueueSize(ps...)
			if !ok {
				return errors.New("queue size unavailable")
			}
			fmt.Fprintln(cmd.OutOrStdout(), n)
			return nil
		},
	}
	qf.register(cmd)
	cmd.Flags().StringVar(&prio, "priority", "", `priority filter: "p" or "p,q"`)
	return cmd
}

func newStatCmd(a *app) *cobra.Command {
	var qf queueFlags
	cmd := &cobra.Command{
		Use:   "stat",
		Short: "Print the queue configuration, sizes and producer identity",
		RunE: func(cmd *cobra.Command, _ []string) error {
			q, err := qf.open(cmd, a)
			if err != nil {
				return err
			}
			cfg := q.Config()
			ident := node.Process()

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
			fmt.Fprintf(w, "Queue:\t%s\n", cfg.Name)
			fmt.Fprintf(w, "Directory:\t%s\n", cfg.Directory)
			fmt.Fprintf(w, "Type:\t%s\n", cfg.Discipline)
			fmt.Fprintf(w, "Read Chunk Size:\t%s\n", chunk(cfg.ReadChunkSize))
			fmt.Fprintf(w, "Return Chunk Size:\t%s\n", chunk(cfg.ReturnChunkSize))
			fmt.Fprintf(w, "Codec:\t%s\n", orDefault(cfg.Codec, string(envelope.JSON)))
			fmt.Fprintf(w, "Compression:\t%s\n", orDefault(cfg.Compression, string(envelope.None)))
			if n, ok := q.QueueSize(); ok {
				fmt.Fprintf(w, "Messages:\t%d\n", n)
			} else {
				fmt.Fprintf(w, "Messages:\tunavailable\n")
			}
			if n, ok := q.DirectorySize(); ok {
				fmt.Fprintf(w, "Directory Size:\t%d bytes\n", n)
			} else {
				fmt.Fprintf(w, "Directory Size:\tunavailable\n")
			}
			fmt.Fprintf(w, "PID:\t%d\n", ident.PID)
			fmt.Fprintf(w, "Host:\t%s\n", ident.Hostname)
			fmt.Fprintf(w, "Instance:\t%s\n", ident.ID)
			fmt.Fprintf(w, "Started:\t%s\n", ident.StartedAt.Format(time.RFC3339))
			return w.Flush()
		},
	}
	qf.register(cmd)
	return cmd
}

func chunk(n int) string {
	if n == math.MaxInt {
		return "unlimited"
	}
	return strconv.Itoa(n)
}

func orDefault(s, def string) string {
	if s == "" {
		return def
	}
	return s
}
