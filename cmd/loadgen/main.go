// Load generator for exercising the Harrier risk monitor.
//
// Usage:
//   go run cmd/loadgen/main.go -nats nats://localhost:4222 -customers 100 -rate 50
//
// This tool:
//   1. Generates synthetic transactions for a pool of customers
//   2. Publishes them to the transaction topic on NATS
//   3. Marks a fraction of customers as "bursty" so anomaly windows fire
//   4. Prints publish throughput at the end
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"math/rand"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/opensource-finance/harrier/internal/domain"
)

func main() {
	natsURL := flag.String("nats", nats.DefaultURL, "NATS server URL")
	customers := flag.Int("customers", 100, "Number of distinct customers")
	rate := flag.Int("rate", 50, "Transactions per second")
	duration := flag.Duration("duration", time.Minute, "How long to generate (0 = until interrupted)")
	burstFraction := flag.Float64("burst", 0.1, "Fraction of customers sending anomalous bursts")
	seed := flag.Int64("seed", 0, "Random seed (0 = from clock)")
	flag.Parse()

	if *customers <= 0 || *rate <= 0 {
		fmt.Println("customers and rate must be positive")
		flag.PrintDefaults()
		os.Exit(1)
	}

	if *seed == 0 {
		*seed = time.Now().UnixNano()
	}
	rng := rand.New(rand.NewSource(*seed))

	conn, err := nats.Connect(*natsURL)
	if err != nil {
		fmt.Printf("ERROR: cannot connect to NATS at %s: %v\n", *natsURL, err)
		os.Exit(1)
	}
	defer conn.Close()

	fmt.Printf("Publishing to %s on %q\n", *natsURL, domain.TopicTransaction)
	fmt.Printf("Customers: %d  Rate: %d tx/s  Burst fraction: %.2f  Seed: %d\n",
		*customers, *rate, *burstFraction, *seed)

	// Bursty customers send several transactions per tick, which pushes
	// their per-window count over the default anomaly threshold.
	bursty := make(map[int]bool)
	for i := 0; i < int(float64(*customers)**burstFraction); i++ {
		bursty[i] = true
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	var deadline <-chan time.Time
	if *duration > 0 {
		deadline = time.After(*duration)
	}

	ticker := time.NewTicker(time.Second / time.Duration(*rate))
	defer ticker.Stop()

	published := 0
	start := time.Now()

loop:
	for {
		select {
		case <-sigCh:
			break loop
		case <-deadline:
			break loop
		case <-ticker.C:
			idx := rng.Intn(*customers)
			count := 1
			if bursty[idx] {
				count = 2 + rng.Intn(4)
			}
			for i := 0; i < count; i++ {
				tx := domain.Transaction{
					CustomerID: fmt.Sprintf("customer-%04d", idx),
					Amount:     10 + rng.Float64()*4990,
					Type:       txType(rng),
					Timestamp:  time.Now().UTC(),
				}
				payload, _ := json.Marshal(&tx)
				if err := conn.Publish(domain.TopicTransaction, wrap(payload)); err != nil {
					fmt.Printf("publish failed: %v\n", err)
					continue
				}
				published++
			}
		}
	}

	_ = conn.Flush()
	elapsed := time.Since(start)
	fmt.Printf("\nPublished %d transactions in %v (%.1f tx/s)\n",
		published, elapsed.Round(time.Millisecond), float64(published)/elapsed.Seconds())
}

// wrap envelopes a payload the way the bus does, so subscribers decode
// a domain.Message.
func wrap(payload []byte) []byte {
	msg := domain.Message{
		ID:        fmt.Sprintf("loadgen-%d", time.Now().UnixNano()),
		Topic:     domain.TopicTransaction,
		Payload:   payload,
		Timestamp: time.Now().UnixNano(),
	}
	data, _ := json.Marshal(&msg)
	return data
}

func txType(rng *rand.Rand) string {
	switch rng.Intn(4) {
	case 0:
		return "TRANSFER"
	case 1:
		return "PAYMENT"
	case 2:
		return "CASH_OUT"
	default:
		return "DEBIT"
	}
}
