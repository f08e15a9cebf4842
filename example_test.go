package xstream_test

import (
	"fmt"

	xstream "github.com/joeycumines/go-xstream"
)

func Example() {
	if err := xstream.Init(); err != nil {
		panic(err)
	}
	defer func() {
		if err := xstream.Finalize(); err != nil {
			panic(err)
		}
	}()

	es, err := xstream.XstreamCreate(nil)
	if err != nil {
		panic(err)
	}

	done := make(chan struct{})
	if _, err := xstream.ThreadCreate(es, func() {
		fmt.Println("hello from a user-level thread")
		close(done)
	}); err != nil {
		panic(err)
	}
	<-done

	if err := es.Join(); err != nil {
		panic(err)
	}
	if err := es.Free(); err != nil {
		panic(err)
	}
	fmt.Println("done")

	// Output:
	// hello from a user-level thread
	// done
}

func ExampleThreadYield() {
	if err := xstream.Init(); err != nil {
		panic(err)
	}
	defer func() { _ = xstream.Finalize() }()

	es, err := xstream.XstreamCreate(nil)
	if err != nil {
		panic(err)
	}

	done := make(chan struct{})
	if _, err := xstream.ThreadCreate(es, func() {
		for i := range 2 {
			fmt.Println("tick", i)
			_ = xstream.ThreadYield()
		}
		close(done)
	}); err != nil {
		panic(err)
	}
	<-done

	if err := es.Join(); err != nil {
		panic(err)
	}
	if err := es.Free(); err != nil {
		panic(err)
	}

	// Output:
	// tick 0
	// tick 1
}
