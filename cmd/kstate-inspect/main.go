// Command kstate-inspect dumps the content of a persistent state store of
// one task.
//
//	kstate-inspect -config app.yaml -task 0_0 -store counts
//	kstate-inspect -config app.yaml -task 0_0 -store clicks -window-size 1m -retention 1h -count
//
// The task directory is locked while the store is open, so a running
// instance of the application owning the task makes the command fail.
// Stores are opened read-only: the task checkpoint is left as is. Window
// stores drop segments older than -retention when opened, so it must match
// the retention the application uses.
package main

import (
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/birdayz/kstreams-state/internal/statemgr"
	"github.com/birdayz/kstreams-state/kprocessor"
	"github.com/birdayz/kstreams-state/kstate"
	"github.com/birdayz/kstreams-state/pkg/log"
	"github.com/birdayz/kstreams-state/stores"
	"github.com/go-logr/logr"
	"go.uber.org/multierr"
)

type options struct {
	configPath      string
	task            string
	store           string
	count           bool
	raw             bool
	verbose         int
	windowSize      time.Duration
	retention       time.Duration
	segmentInterval time.Duration
}

func main() {
	var opts options
	flag.StringVar(&opts.configPath, "config", "", "application config file (YAML)")
	flag.StringVar(&opts.task, "task", "", "task id, e.g. 0_0")
	flag.StringVar(&opts.store, "store", "", "store name")
	flag.BoolVar(&opts.count, "count", false, "print the number of entries only")
	flag.BoolVar(&opts.raw, "raw", false, "print keys and values as hex")
	flag.IntVar(&opts.verbose, "v", 0, "log verbosity")
	flag.DurationVar(&opts.windowSize, "window-size", 0, "window size; set to inspect a window store")
	flag.DurationVar(&opts.retention, "retention", 0, "window store retention; required with -window-size")
	flag.DurationVar(&opts.segmentInterval, "segment-interval", stores.DefaultSegmentInterval, "window store segment interval")
	flag.Parse()

	logger := log.NewLogr("kstate-inspect", opts.verbose)
	if err := run(opts, logger, os.Stdout); err != nil {
		logger.Error(err, "Inspect failed")
		os.Exit(1)
	}
}

func run(opts options, logger logr.Logger, out io.Writer) (err error) {
	if opts.configPath == "" || opts.task == "" || opts.store == "" {
		return fmt.Errorf("-config, -task and -store are required")
	}
	cfg, err := kprocessor.LoadConfig(opts.configPath)
	if err != nil {
		return err
	}
	taskID, err := kprocessor.ParseTaskID(opts.task)
	if err != nil {
		return err
	}

	ctx := kprocessor.NewStoreContext(cfg, taskID, kprocessor.WithLogger(logger))
	if _, err := os.Stat(ctx.StateDir()); err != nil {
		return fmt.Errorf("task state directory: %w", err)
	}
	storeDir := filepath.Join(ctx.StateDir(), opts.store)
	if info, err := os.Stat(storeDir); err != nil {
		return fmt.Errorf("store %s: %w", opts.store, err)
	} else if !info.IsDir() {
		return fmt.Errorf("store %s: %s is not a directory", opts.store, storeDir)
	}

	store, err := openStore(opts)
	if err != nil {
		return err
	}

	mgr := statemgr.New(ctx, statemgr.ReadOnly())
	if err := mgr.Register(store); err != nil {
		return err
	}
	if err := mgr.Init(); err != nil {
		return err
	}
	defer func() {
		err = multierr.Append(err, mgr.Close())
	}()

	switch s := store.(type) {
	case kstate.KeyValueBytesStore:
		return dumpKeyValue(s, opts, out)
	case kstate.WindowBytesStore:
		return dumpWindow(s, opts, out)
	default:
		return fmt.Errorf("unsupported store type %T", store)
	}
}

func openStore(opts options) (kstate.StateStore, error) {
	if opts.windowSize == 0 {
		return stores.PersistentKeyValueStore(opts.store).Get(), nil
	}
	if opts.retention == 0 {
		return nil, fmt.Errorf("-retention is required with -window-size")
	}
	supplier, err := stores.PersistentWindowStore(opts.store, opts.retention, opts.windowSize, opts.segmentInterval)
	if err != nil {
		return nil, err
	}
	return supplier.Get(), nil
}

func dumpKeyValue(s kstate.KeyValueBytesStore, opts options, out io.Writer) error {
	if opts.count {
		n, err := s.ApproximateNumEntries()
		if err != nil {
			return err
		}
		_, err = fmt.Fprintln(out, n)
		return err
	}
	it, err := s.All()
	if err != nil {
		return err
	}
	return kstate.ForEach(it, func(k kstate.Bytes, v []byte) error {
		_, err := fmt.Fprintf(out, "%s\t%s\n", render(k.Get(), opts.raw), render(v, opts.raw))
		return err
	})
}

func dumpWindow(s kstate.WindowBytesStore, opts options, out io.Writer) error {
	if opts.count {
		n, err := s.ApproximateNumEntries()
		if err != nil {
			return err
		}
		_, err = fmt.Fprintln(out, n)
		return err
	}
	it, err := s.All()
	if err != nil {
		return err
	}
	return kstate.ForEach(it, func(k kstate.Windowed[kstate.Bytes], v []byte) error {
		_, err := fmt.Fprintf(out, "%s\t[%d,%d)\t%s\n",
			render(k.Key.Get(), opts.raw), k.Window.Start, k.Window.End, render(v, opts.raw))
		return err
	})
}

func render(b []byte, raw bool) string {
	if raw {
		return fmt.Sprintf("%x", b)
	}
	return fmt.Sprintf("%q", b)
}
