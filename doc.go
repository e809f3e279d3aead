/*
Package batchgen is a fault-tolerant batch pipeline for generating and
rendering kinetic-alphabet sequence artifacts.

A batch runs N generation jobs, each inside an isolated scratch session so
the shared working document is never disturbed, then renders every artifact
through a dispatch pool guarded by a circuit breaker and an
exponential-backoff retry scheduler. Results fill a paginated placeholder
grid progressively, first settled into the first free slot. A job that
exhausts its retries, or arrives while the circuit is open, settles with a
deterministic fallback placeholder instead of being dropped: every job
reaches exactly one terminal state and the batch always completes.

# Usage

	package main

	import (
		"context"
		"log"

		batchgen "github.com/austencloud/tka-desktop-sub001"
		"github.com/austencloud/tka-desktop-sub001/pkg/domain"
	)

	func main() {
		orch, err := batchgen.New()
		if err != nil {
			log.Fatal(err)
		}
		defer orch.Close()

		ctx := context.Background()
		params := domain.DefaultParams()
		params.Length = 8

		batchID, err := orch.StartBatch(ctx, params, 17)
		if err != nil {
			log.Fatal(err)
		}
		if err := orch.Wait(ctx, batchID); err != nil {
			log.Fatal(err)
		}

		artifacts, _ := orch.Artifacts(batchID)
		for _, a := range artifacts {
			log.Printf("%s fallback=%v", a.Word, a.Fallback)
		}
	}

Hosts that want progress bars, metrics, or UI updates register callbacks
via WithHooks and WithMetrics; all callbacks fire on the batch control
goroutine.

# Architecture

The public surface lives in this package and pkg/: domain types, the
ports contracts, store adapters (memory, file, redis), the built-in
sequence engine, the scale-fit math, and the placement layout. The batch
control loop, resilience pieces, and render dispatch are internal.
*/
package batchgen
