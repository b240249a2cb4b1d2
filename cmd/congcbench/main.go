package main

import (
	"fmt"
	"math/rand"
	"time"
	"unsafe"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/congc/congc/arena/memarena"
	"github.com/congc/congc/arena/osarena"
	"github.com/congc/congc/gc"
)

var rootCmd = &cobra.Command{
	Short: "congcbench",
	Long:  `congcbench drives the allocator with a synthetic churn workload and reports collection stats`,

	PreRunE: func(cmd *cobra.Command, args []string) error {
		if debug, _ := cmd.Flags().GetBool("debug"); debug {
			logrus.SetLevel(logrus.DebugLevel)
		}
		return nil
	},

	RunE: runCmdFunc,
}

func init() {
	rootCmd.Flags().Bool("debug", false, "enable debug logging")
	rootCmd.Flags().Int("allocs", 200000, "total number of allocations to perform")
	rootCmd.Flags().Float64("keep-fraction", 0.1, "fraction of allocations to keep rooted for the run's lifetime")
	rootCmd.Flags().Float64("growth-factor", 1.5, "pressure controller growth factor")
	rootCmd.Flags().Bool("free-memory", false, "release emptied pages instead of caching them (returned to the OS only with --arena=os)")
	rootCmd.Flags().String("arena", "mem", "backing arena: mem or os")
	if err := rootCmd.Flags().MarkHidden("debug"); err != nil {
		panic(err)
	}
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		logrus.WithError(err).Fatal("congcbench: run failed")
	}
}

func runCmdFunc(cmd *cobra.Command, args []string) error {
	allocs, err := cmd.Flags().GetInt("allocs")
	if err != nil {
		return err
	}
	keepFraction, err := cmd.Flags().GetFloat64("keep-fraction")
	if err != nil {
		return err
	}
	growthFactor, err := cmd.Flags().GetFloat64("growth-factor")
	if err != nil {
		return err
	}
	freeMemory, err := cmd.Flags().GetBool("free-memory")
	if err != nil {
		return err
	}
	arenaKind, err := cmd.Flags().GetString("arena")
	if err != nil {
		return err
	}

	var a interface {
		AllocPage() ([]byte, error)
		AllocRaw(int) ([]byte, error)
		Destroy() error
	}
	switch arenaKind {
	case "os":
		a = osarena.New()
	case "mem":
		a = memarena.New()
	default:
		return fmt.Errorf("unknown arena kind %q (want mem or os)", arenaKind)
	}

	c, err := gc.Init(a, gc.Config{
		GrowthFactor: growthFactor,
		FreeMemory:   freeMemory,
	})
	if err != nil {
		return err
	}
	defer func() {
		if err := c.Destroy(); err != nil {
			logrus.WithError(err).Warn("congcbench: arena teardown failed")
		}
	}()

	rng := rand.New(rand.NewSource(1))
	sizes := []int{16, 48, 100, 500, 3000, 40000}
	var kept []unsafe.Pointer

	start := time.Now()
	for i := 0; i < allocs; i++ {
		size := sizes[rng.Intn(len(sizes))]
		ptr := c.Alloc(size)
		if rng.Float64() < keepFraction {
			cell := ptr
			c.Root(unsafe.Pointer(&cell))
			kept = append(kept, unsafe.Pointer(&cell))
		}
	}
	elapsed := time.Since(start)

	c.Collect()
	stats := c.Stats()

	logrus.WithFields(logrus.Fields{
		"allocations":         allocs,
		"rooted":              len(kept),
		"elapsed":             elapsed.String(),
		"collections":         stats.Collections,
		"live_bytes":          stats.LiveBytes,
		"bytes_since_last_gc": stats.BytesSinceLastGC,
		"page_count":          stats.PageCount,
		"oversize_count":      stats.OversizeCount,
		"oversize_bytes":      stats.OversizeBytes,
	}).Info("congcbench: run complete")

	for _, cell := range kept {
		c.Unroot(cell)
	}
	return nil
}
