package campaign

import (
	"context"
	"math/rand"

	"github.com/opd-ai/chatprobe/store"
)

// recipientIterator yields the recipient for each successive message. All
// iterators are infinite; the campaign's message count bounds consumption.
type recipientIterator func() string

// newRecipientIterator builds the iterator for a policy. Round-robin and
// "all" cycle the full list in order; random picks uniformly.
func newRecipientIterator(mode store.RecipientMode, recipients []string) recipientIterator {
	switch mode {
	case store.ModeRandom:
		return func() string {
			return recipients[rand.Intn(len(recipients))]
		}
	default:
		i := 0
		return func() string {
			r := recipients[i%len(recipients)]
			i++
			return r
		}
	}
}

// resolveRecipients produces the deduplicated eligible recipient set: the
// explicit list for ModeList, otherwise every endpoint the sender has an
// active pairing with.
func (r *Runner) resolveRecipients(ctx context.Context, c *store.Campaign) ([]string, error) {
	var candidates []string
	if c.RecipientMode == store.ModeList {
		candidates = c.Recipients
	} else {
		pairings, err := r.store.ListPairings(ctx, c.Sender)
		if err != nil {
			return nil, err
		}
		for _, p := range pairings {
			candidates = append(candidates, p.RemoteEndpoint)
		}
	}

	seen := make(map[string]bool, len(candidates))
	var out []string
	for _, id := range candidates {
		if id == "" || id == c.Sender || seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, id)
	}
	return out, nil
}
