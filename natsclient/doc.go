// Package natsclient manages the NATS connection used by the JetStream
// connector.
//
// A Client connects with retry, exposes the JetStream API, and creates streams
// and KV buckets idempotently. KVStore wraps a bucket with compare-and-swap
// updates; the JetStream connector keeps its watermarks in one.
//
//	client, err := natsclient.NewClient("nats://localhost:4222",
//	    natsclient.WithName("streamkit"),
//	    natsclient.WithLogger(logger),
//	)
//	if err != nil {
//	    return err
//	}
//	if err := client.Connect(ctx); err != nil {
//	    return err
//	}
//	defer client.Close(ctx)
//
// Tests start a real server in a container with NewTestClient.
package natsclient
