package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"time"

	"github.com/duynguyendang/vultester/internal/manager"
	"github.com/duynguyendang/vultester/pkg/engine"
	"github.com/duynguyendang/vultester/pkg/kb"
	"github.com/duynguyendang/vultester/pkg/service"
)

func main() {
	rounds := flag.Int("rounds", 1000, "evaluations per method")
	flag.Parse()

	ctx := context.Background()
	base := kb.Default()

	// Every condition of every rule, so each method fires the whole base.
	facts := base.Conditions()
	fmt.Printf("Knowledge base: %d rules, %d facts\n", base.Len(), len(facts))

	cold := service.NewAnalysisService(base, nil, nil, nil)
	cache := manager.NewReportCache(len(engine.Methods))
	warm := service.NewAnalysisService(base, nil, cache, nil)

	for _, m := range engine.Methods {
		start := time.Now()
		var res *engine.Result
		for i := 0; i < *rounds; i++ {
			var err error
			if res, err = cold.Evaluate(ctx, facts, m); err != nil {
				log.Fatal(err)
			}
		}
		perRun := time.Since(start) / time.Duration(*rounds)
		fmt.Printf("%-18s uncached: %v/run, %d rules fired, %d trace steps\n", m.Name(), perRun, res.TotalRulesFired, len(res.InferenceTrace))

		start = time.Now()
		for i := 0; i < *rounds; i++ {
			if _, err := warm.Evaluate(ctx, facts, m); err != nil {
				log.Fatal(err)
			}
		}
		fmt.Printf("%-18s cached:   %v/run\n", m.Name(), time.Since(start)/time.Duration(*rounds))
	}

	stats := cache.Stats()
	fmt.Printf("Cache: %d hits, %d misses, %d entries\n", stats.Hits, stats.Misses, stats.Size)
}
