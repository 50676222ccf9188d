package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/danmuck/avlgate/internal/device"
	"github.com/danmuck/avlgate/internal/logging"
	"github.com/danmuck/avlgate/internal/protocol/avl"
	"github.com/rs/zerolog/log"
	"github.com/spf13/pflag"
	"golang.org/x/sync/errgroup"
)

type options struct {
	addr     string
	imei     string
	devices  int
	packets  int
	records  int
	interval time.Duration
	codec    string
	attempts int
}

func main() {
	var opts options
	pflag.StringVarP(&opts.addr, "addr", "a", "127.0.0.1:5027", "gateway address")
	pflag.StringVar(&opts.imei, "imei", "356307042441013", "first device IMEI; further devices count up from it")
	pflag.IntVarP(&opts.devices, "devices", "d", 1, "number of concurrent devices")
	pflag.IntVarP(&opts.packets, "packets", "p", 10, "data packets per device")
	pflag.IntVarP(&opts.records, "records", "r", 5, "records per packet")
	pflag.DurationVar(&opts.interval, "interval", time.Second, "pause between packets")
	pflag.StringVar(&opts.codec, "codec", "8", "codec: 8 or 8e")
	pflag.IntVar(&opts.attempts, "attempts", 5, "send attempts while the gateway acknowledges zero")
	pflag.Parse()

	logging.ConfigureRuntime()
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, opts); err != nil {
		fmt.Fprintf(os.Stderr, "avlsim: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, opts options) error {
	codec, err := parseCodec(opts.codec)
	if err != nil {
		return err
	}
	ids, err := deviceIDs(opts.imei, opts.devices)
	if err != nil {
		return err
	}

	var acked, sent atomic.Int64
	start := time.Now()
	g, ctx := errgroup.WithContext(ctx)
	for i, id := range ids {
		cfg := device.DefaultConfig()
		cfg.Address = opts.addr
		cfg.IMEI = id
		cfg.Codec = codec
		cfg.MaxSendAttempts = opts.attempts
		cfg.Logger = log.Logger
		seed := int64(i + 1)
		g.Go(func() error {
			client, err := device.NewClient(cfg)
			if err != nil {
				return err
			}
			conn, err := client.Connect(ctx)
			if err != nil {
				return fmt.Errorf("%s: %w", id, err)
			}
			defer conn.Close()

			track := device.NewTrack(seed, time.Now().Add(-time.Hour), 54.6872, 25.2797, 10*time.Second)
			for p := 0; p < opts.packets; p++ {
				ack, attempts, err := conn.SendWithRetry(ctx, track.Next(opts.records))
				if err != nil {
					return fmt.Errorf("%s packet %d: %w", id, p, err)
				}
				sent.Add(int64(opts.records))
				acked.Add(int64(ack))
				log.Debug().Str("imei", id.String()).Int("packet", p).Uint32("ack", ack).Int("attempts", attempts).Msg("packet acknowledged")
				if opts.interval > 0 && p < opts.packets-1 {
					select {
					case <-ctx.Done():
						return ctx.Err()
					case <-time.After(opts.interval):
					}
				}
			}
			return nil
		})
	}
	err = g.Wait()
	log.Info().
		Int("devices", len(ids)).
		Int64("records_sent", sent.Load()).
		Int64("records_acked", acked.Load()).
		Dur("elapsed", time.Since(start)).
		Msg("simulation finished")
	return err
}

func parseCodec(raw string) (avl.Codec, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "8", "codec8":
		return avl.Codec8, nil
	case "8e", "codec8e", "8ext":
		return avl.Codec8Extended, nil
	default:
		return 0, fmt.Errorf("unknown codec %q (expected 8 or 8e)", raw)
	}
}

// deviceIDs returns n consecutive IMEIs starting at first.
func deviceIDs(first string, n int) ([]avl.Identity, error) {
	if n <= 0 {
		return nil, fmt.Errorf("devices must be positive")
	}
	base, err := avl.ParseIdentity(strings.TrimSpace(first))
	if err != nil {
		return nil, err
	}
	start, err := strconv.ParseUint(base.String(), 10, 64)
	if err != nil {
		return nil, err
	}
	out := make([]avl.Identity, 0, n)
	for i := 0; i < n; i++ {
		id, err := avl.ParseIdentity(fmt.Sprintf("%015d", start+uint64(i)))
		if err != nil {
			return nil, err
		}
		out = append(out, id)
	}
	return out, nil
}
