// Package chatprobe bridges a fleet of independently running chat-protocol
// endpoints with a tracking layer that issues commands, correlates replies,
// reconciles asynchronous delivery events against in-flight test messages,
// and drives scripted message campaigns to measure delivery latency and
// reliability under varying network conditions.
//
// The Service type wires every subsystem together: the connection pool and
// correlation protocol (transport), the always-on event listener supervisor
// (bridge), the delivery state machine (delivery), the one-shot command
// facade (commands), the campaign runner (campaign), and the best-effort
// status hub (broadcast).
//
//	st := store.NewMemoryStore()
//	svc := chatprobe.New(st, config.Default())
//	if err := svc.Start(ctx); err != nil {
//	    log.Fatal(err)
//	}
//	defer svc.Stop()
//
//	result, err := svc.Runner().Run(ctx, &store.Campaign{
//	    Sender:        "alpha",
//	    RecipientMode: store.ModeRoundRobin,
//	    MessageCount:  10,
//	    MessageSize:   256,
//	    Interval:      time.Second,
//	})
package chatprobe
