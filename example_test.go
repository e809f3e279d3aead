package batchgen_test

import (
	"context"
	"fmt"
	"log"

	batchgen "github.com/austencloud/tka-desktop-sub001"
	"github.com/austencloud/tka-desktop-sub001/pkg/domain"
)

// ExampleOrchestrator demonstrates a complete batch run with the built-in
// sequence engine.
func ExampleOrchestrator() {
	orch, err := batchgen.New()
	if err != nil {
		log.Fatal(err)
	}
	defer orch.Close()

	ctx := context.Background()
	params := domain.DefaultParams()
	params.Length = 4

	batchID, err := orch.StartBatch(ctx, params, 3)
	if err != nil {
		log.Fatal(err)
	}
	if err := orch.Wait(ctx, batchID); err != nil {
		log.Fatal(err)
	}

	done, total, _ := orch.Progress(batchID)
	fmt.Printf("settled %d of %d\n", done, total)
	// Output: settled 3 of 3
}
