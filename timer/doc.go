// Package timer provides named timers shared between consumers.
//
// A named Timer owns a single executor goroutine, so tasks scheduled on the
// same name never run concurrently. The Registry hands out timers by name and
// counts references; the executor is torn down only when the last consumer
// releases it.
//
// Consumer fires an exchange on every tick of its schedule:
//
//	consumer, err := timer.NewConsumer(timer.Config{
//	    Name:   "heartbeat",
//	    Period: time.Second,
//	}, registry, timer.Deps{Processor: processor})
//	if err != nil {
//	    return err
//	}
//	if err := consumer.Start(ctx); err != nil {
//	    return err
//	}
//	defer consumer.Stop(time.Second)
package timer
