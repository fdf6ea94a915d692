package campaign

import (
	"context"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/semaphore"

	"github.com/opd-ai/chatprobe/store"
)

// MeshSpec describes one campaign per connected endpoint pair, run across
// the whole mesh under a concurrency bound.
type MeshSpec struct {
	MessageCount int
	MessageSize  int
	Interval     time.Duration
	Workers      int64
}

// MeshResult aggregates the per-pair campaigns of a mesh sweep.
type MeshResult struct {
	Campaigns []*store.Campaign
	Pairs     int
	Succeeded int
	Failed    int
	Duration  time.Duration
}

// RunMesh runs one campaign for every active pairing in the mesh, at most
// Workers pairs concurrently. Pair failures are collected, never fatal.
func (r *Runner) RunMesh(ctx context.Context, spec MeshSpec) (*MeshResult, error) {
	start := time.Now()
	workers := spec.Workers
	if workers <= 0 {
		workers = 4
	}

	endpoints, err := r.store.ListActiveEndpoints(ctx)
	if err != nil {
		return nil, err
	}

	type pair struct{ sender, recipient string }
	var pairs []pair
	for _, ep := range endpoints {
		pairings, err := r.store.ListPairings(ctx, ep.ID)
		if err != nil {
			return nil, err
		}
		for _, p := range pairings {
			pairs = append(pairs, pair{sender: p.LocalEndpoint, recipient: p.RemoteEndpoint})
		}
	}

	result := &MeshResult{Pairs: len(pairs)}
	sem := semaphore.NewWeighted(workers)
	var wg sync.WaitGroup
	var mu sync.Mutex

	for _, p := range pairs {
		if err := sem.Acquire(ctx, 1); err != nil {
			break
		}
		wg.Add(1)
		go func(p pair) {
			defer wg.Done()
			defer sem.Release(1)

			c := &store.Campaign{
				Sender:        p.sender,
				RecipientMode: store.ModeList,
				Recipients:    []string{p.recipient},
				MessageCount:  spec.MessageCount,
				MessageSize:   spec.MessageSize,
				Interval:      spec.Interval,
			}
			finished, err := r.Run(ctx, c)

			mu.Lock()
			defer mu.Unlock()
			if err != nil || finished.Status != store.CampaignCompleted {
				result.Failed++
				logrus.WithFields(logrus.Fields{
					"function":  "RunMesh",
					"sender":    p.sender,
					"recipient": p.recipient,
				}).Warn("Mesh pair campaign did not complete")
			} else {
				result.Succeeded++
			}
			if finished != nil {
				result.Campaigns = append(result.Campaigns, finished)
			}
		}(p)
	}

	wg.Wait()
	result.Duration = time.Since(start)

	logrus.WithFields(logrus.Fields{
		"function":  "RunMesh",
		"pairs":     result.Pairs,
		"succeeded": result.Succeeded,
		"failed":    result.Failed,
		"duration":  result.Duration.String(),
	}).Info("Mesh sweep finished")
	return result, nil
}
