// ABOUTME: High-level Berkeley clock synchronization API
// ABOUTME: Provides simple Coordinator and Participant constructors for most use cases
// Package berkeley provides high-level APIs for Berkeley-style clock synchronization.
//
// A Coordinator collects clock reports from participants, averages their
// offsets from its own clock every cycle, and broadcasts the same corrected
// time to all of them. A Participant reports its local clock on a fixed
// period and keeps the latest correction as a skew applied to later reads.
//
// Example Coordinator:
//
//	c := berkeley.NewCoordinator(berkeley.CoordinatorConfig{
//	    ListenAddr:  ":8080",
//	    CyclePeriod: 10 * time.Second,
//	})
//	err := c.Start(ctx)
//
// Example Participant:
//
//	p := berkeley.NewParticipant(berkeley.ParticipantConfig{
//	    CoordinatorAddr: "localhost:8080",
//	})
//	if err := p.Connect(ctx); err != nil {
//	    return err
//	}
//	go p.Run(ctx)
//	now := p.Now()
package berkeley
