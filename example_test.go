package shmqueue_test

import (
	"fmt"

	"golang.org/x/sync/errgroup"

	"code.hybscloud.com/shmqueue"
)

// Example_producerConsumer demonstrates a single sender and a single
// receiver sharing a channel, using ReadySending/ShutSending so the
// receiver's Pop unblocks once the sender is done instead of hanging.
func Example_producerConsumer() {
	const name = "example_producer_consumer"
	defer shmqueue.Remove(name)

	b := shmqueue.NewBuilder(name).Variant(shmqueue.VariantUnicastSPSC).Capacity(8)
	q, err := shmqueue.Open[int](b)
	if err != nil {
		fmt.Println("open:", err)
		return
	}
	defer q.Close()

	if err := q.Connect(); err != nil {
		fmt.Println("connect:", err)
		return
	}
	defer q.Disconnect()

	// Register the sender before either goroutine starts, so the receiver
	// never sees a channel with no sender and returns before any push.
	q.ReadySending()

	var g errgroup.Group
	g.Go(func() error {
		defer q.ShutSending()
		for i := 1; i <= 5; i++ {
			v := i
			for !q.Push(func(out *int) { *out = v * v }) {
			}
		}
		return nil
	})

	g.Go(func() error {
		for {
			var v int
			if !q.Pop(func(out *int) { v = *out }) {
				return nil
			}
			fmt.Println(v)
		}
	})

	if err := g.Wait(); err != nil {
		fmt.Println("error:", err)
	}

	// Output:
	// 1
	// 4
	// 9
	// 16
	// 25
}

// Example_sharedRegistry demonstrates OpenShared: two calls for the same
// channel name within one process return the same *Queue, so producer and
// consumer code in different packages can each open "their" channel by
// name without coordinating a single shared handle.
func Example_sharedRegistry() {
	const name = "example_shared_registry"
	defer shmqueue.Remove(name)

	b := shmqueue.NewBuilder(name).Variant(shmqueue.VariantBroadcast).Capacity(4)

	q1, err := shmqueue.OpenShared[int](b)
	if err != nil {
		fmt.Println("open:", err)
		return
	}
	defer q1.Close()

	q2, err := shmqueue.OpenShared[int](b)
	if err != nil {
		fmt.Println("open:", err)
		return
	}

	fmt.Println(q1 == q2)

	// Output:
	// true
}
