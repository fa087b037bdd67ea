package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/rl1809/stock-ledger/internal/adapter/handler"
)

// Fires concurrent withdrawals at one finished good through the gRPC API.
// The item must exist with at least -stock units; the run first adjusts it
// to exactly that many.
func main() {
	addr := flag.String("addr", "localhost:50051", "gRPC address")
	itemID := flag.String("item", "", "finished good item id")
	initialStock := flag.Int("stock", 20, "stock to set before the run")
	totalRequests := flag.Int("requests", 50, "number of concurrent withdrawals")
	flag.Parse()

	if *itemID == "" {
		log.Fatal("-item is required")
	}

	conn, err := grpc.NewClient(*addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		log.Fatalf("failed to connect: %v", err)
	}
	defer conn.Close()
	client := handler.NewPostingServiceClient(conn)

	ctx := context.Background()

	// Reset stock
	resp, err := client.Post(ctx, &handler.PostRequest{
		UserId:   "stress-test",
		Kind:     "ADJUSTMENT",
		ItemId:   *itemID,
		Quantity: fmt.Sprint(*initialStock),
		Note:     "stress test reset",
	})
	if err != nil {
		log.Fatalf("failed to reset stock: %v", err)
	}
	if !resp.Success {
		log.Fatalf("failed to reset stock: %s", resp.Message)
	}

	var successCount atomic.Int32
	var failCount atomic.Int32

	var wg sync.WaitGroup
	start := time.Now()

	for i := 0; i < *totalRequests; i++ {
		wg.Add(1)
		go func(userID int) {
			defer wg.Done()

			resp, err := client.Post(ctx, &handler.PostRequest{
				RequestId: fmt.Sprintf("stress-%d-%d", start.UnixNano(), userID),
				UserId:    fmt.Sprintf("user-%d", userID),
				Kind:      "WITHDRAW_FINISHED_GOOD",
				ItemId:    *itemID,
				Quantity:  "1",
			})
			if err == nil && resp.Success {
				successCount.Add(1)
			} else {
				failCount.Add(1)
			}
		}(i)
	}

	wg.Wait()
	elapsed := time.Since(start)

	success := int(successCount.Load())
	fail := int(failCount.Load())
	expectedSuccess := min(*initialStock, *totalRequests)

	fmt.Println("========== STRESS TEST RESULTS ==========")
	fmt.Printf("Initial Stock:    %d\n", *initialStock)
	fmt.Printf("Total Requests:   %d\n", *totalRequests)
	fmt.Printf("Successful:       %d\n", success)
	fmt.Printf("Failed:           %d\n", fail)
	fmt.Printf("Duration:         %v\n", elapsed)
	fmt.Println("==========================================")

	if success == expectedSuccess && fail == *totalRequests-expectedSuccess {
		fmt.Printf("PASS: Exactly %d withdrawals succeeded, %d failed\n", success, fail)
	} else {
		fmt.Printf("FAIL: Expected %d success/%d fail, got %d/%d\n",
			expectedSuccess, *totalRequests-expectedSuccess, success, fail)
	}

	// Verify the ledger
	listed, err := client.ListMovements(ctx, &handler.ListMovementsRequest{
		ItemId: *itemID,
		Kind:   "FINISHED_GOOD_WITHDRAWAL",
		Limit:  1,
	})
	if err != nil {
		log.Fatalf("failed to list movements: %v", err)
	}
	if len(listed.Movements) == 0 {
		fmt.Println("FAIL: no withdrawal recorded")
		return
	}
	finalStock := listed.Movements[0].StockAfter
	fmt.Printf("Final Stock:      %s\n", finalStock.String())

	want := *initialStock - expectedSuccess
	if finalStock.IntPart() == int64(want) {
		fmt.Printf("PASS: Stock ended at %d\n", want)
	} else {
		fmt.Printf("FAIL: Expected stock %d, got %s\n", want, finalStock.String())
	}
}
