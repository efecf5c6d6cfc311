// Command epsprof serializes a large index once and then reads it back in a
// loop, full and ε-copy, so both paths show up in pprof.
package main

import (
	"bytes"
	"flag"
	"net/http"
	_ "net/http/pprof"
	"os"
	"runtime"
	"runtime/pprof"
	"time"

	"go.uber.org/zap"

	"github.com/rawbytedev/epsilon"
	"github.com/rawbytedev/epsilon/zc"
)

type Point struct {
	epsilon.ZeroCopy
	X, Y, Z float32
	ID      uint32
}

type Index[P any] struct {
	Name   string
	Tags   []string
	Points P `eps:"param"`
}

func main() {
	var (
		addr  = flag.String("addr", "localhost:6060", "pprof listen address")
		out   = flag.String("memprofile", "mem.prof", "heap profile path")
		n     = flag.Int("n", 1_000_000, "points in the index")
		iters = flag.Int("iters", 1000, "read iterations")
		wait  = flag.Duration("wait", 0, "keep serving pprof this long after the run")
	)
	flag.Parse()

	logger, err := zap.NewDevelopment()
	if err != nil {
		panic(err)
	}
	defer logger.Sync()
	epsilon.SetLogger(logger)

	go func() {
		logger.Info("pprof listening", zap.String("addr", *addr))
		if err := http.ListenAndServe(*addr, nil); err != nil {
			logger.Warn("pprof server stopped", zap.Error(err))
		}
	}()

	f, err := os.Create(*out)
	if err != nil {
		logger.Fatal("create profile", zap.Error(err))
	}
	defer f.Close()
	runtime.MemProfileRate = 1

	idx := Index[[]Point]{Name: "bench", Tags: []string{"a", "b", "c"}, Points: make([]Point, *n)}
	for i := range idx.Points {
		idx.Points[i] = Point{X: float32(i), Y: float32(i) / 2, Z: -float32(i), ID: uint32(i)}
	}

	e := epsilon.New(epsilon.Options{Logger: logger})
	var buf bytes.Buffer
	start := time.Now()
	size, err := epsilon.Serialize(e, &buf, idx)
	if err != nil {
		logger.Fatal("serialize", zap.Error(err))
	}
	logger.Info("serialized", zap.Int("bytes", size), zap.Duration("took", time.Since(start)))
	data := zc.AlignedCopy(buf.Bytes())

	start = time.Now()
	for i := 0; i < *iters; i++ {
		if _, err := epsilon.DeserializeFull[Index[[]Point]](e, bytes.NewReader(data)); err != nil {
			logger.Fatal("full read", zap.Error(err))
		}
	}
	logger.Info("full reads", zap.Int("iters", *iters), zap.Duration("took", time.Since(start)))

	start = time.Now()
	var sum float32
	for i := 0; i < *iters; i++ {
		v, err := epsilon.DeserializeEps[Index[[]Point], Index[[]Point]](e, data)
		if err != nil {
			logger.Fatal("eps read", zap.Error(err))
		}
		sum += v.Points[i%len(v.Points)].X
	}
	logger.Info("eps reads", zap.Int("iters", *iters), zap.Duration("took", time.Since(start)), zap.Float32("checksum", sum))

	if err := pprof.WriteHeapProfile(f); err != nil {
		logger.Fatal("write profile", zap.Error(err))
	}
	time.Sleep(*wait)
}
