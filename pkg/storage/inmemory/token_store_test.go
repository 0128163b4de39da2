package inmemory_test

import (
	"context"
	"sync"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/outpost-labs/bootplane/pkg/core"
	"github.com/outpost-labs/bootplane/pkg/storage"
	"github.com/outpost-labs/bootplane/pkg/storage/inmemory"
)

var _ = Describe("Token Store", Label("unit"), func() {
	var store *inmemory.Backend
	var now time.Time
	var ctx context.Context

	BeforeEach(func() {
		now = time.Now()
		store = inmemory.NewBackend(inmemory.WithClock(func() time.Time {
			return now
		}))
		ctx = context.Background()
	})

	It("should create tokens with the requested ttl and usage budget", func() {
		token, err := store.CreateToken(ctx, 10*time.Minute, 3,
			storage.WithLabels(map[string]string{"env": "test"}))
		Expect(err).NotTo(HaveOccurred())
		Expect(token.Secret).NotTo(BeEmpty())
		Expect(token.Metadata.ExpiresAt).To(Equal(now.Add(10 * time.Minute)))
		Expect(token.Metadata.MaxUsages).To(BeEquivalentTo(3))
		Expect(token.UsesRemaining()).To(BeEquivalentTo(3))
		Expect(token.Metadata.Labels).To(HaveKeyWithValue("env", "test"))

		fetched, err := store.GetToken(ctx, token.Reference())
		Expect(err).NotTo(HaveOccurred())
		Expect(fetched.Secret).To(Equal(token.Secret))
	})

	It("should reject invalid create parameters", func() {
		_, err := store.CreateToken(ctx, 0, 1)
		Expect(err).To(HaveOccurred())
		_, err = store.CreateToken(ctx, -time.Minute, 1)
		Expect(err).To(HaveOccurred())
		_, err = store.CreateToken(ctx, time.Minute, 0)
		Expect(err).To(HaveOccurred())
	})

	It("should never allow more redemptions than maxUsages under concurrency", func() {
		token, err := store.CreateToken(ctx, time.Hour, 3)
		Expect(err).NotTo(HaveOccurred())

		const attempts = 20
		var successes, failures int64
		var mu sync.Mutex
		var wg sync.WaitGroup
		start := make(chan struct{})
		for i := 0; i < attempts; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				<-start
				_, err := store.RedeemToken(ctx, token.Reference())
				mu.Lock()
				defer mu.Unlock()
				if err == nil {
					successes++
				} else {
					Expect(err).To(MatchError(storage.ErrTokenInvalid))
					failures++
				}
			}()
		}
		close(start)
		wg.Wait()

		Expect(successes).To(BeEquivalentTo(3))
		Expect(failures).To(BeEquivalentTo(attempts - 3))
	})

	It("should reject redemption of an expired token", func() {
		token, err := store.CreateToken(ctx, time.Minute, 5)
		Expect(err).NotTo(HaveOccurred())

		now = now.Add(2 * time.Minute)
		_, err = store.RedeemToken(ctx, token.Reference())
		Expect(err).To(MatchError(storage.ErrTokenInvalid))
	})

	It("should reject redemption of a revoked token", func() {
		token, err := store.CreateToken(ctx, time.Hour, 2)
		Expect(err).NotTo(HaveOccurred())
		Expect(token.UsesRemaining()).To(BeEquivalentTo(2))

		Expect(store.RevokeToken(ctx, token.Reference())).To(Succeed())

		_, err = store.RedeemToken(ctx, token.Reference())
		Expect(err).To(MatchError(storage.ErrTokenInvalid))

		// revoked tokens remain listed until expiry
		list, err := store.ListTokens(ctx)
		Expect(err).NotTo(HaveOccurred())
		Expect(list).To(HaveLen(1))
		Expect(list[0].Metadata.Revoked).To(BeTrue())
		Expect(list[0].UsesRemaining()).To(BeEquivalentTo(0))
	})

	It("should drop expired tokens from listings", func() {
		_, err := store.CreateToken(ctx, time.Minute, 1)
		Expect(err).NotTo(HaveOccurred())
		longLived, err := store.CreateToken(ctx, time.Hour, 1)
		Expect(err).NotTo(HaveOccurred())

		now = now.Add(30 * time.Minute)
		list, err := store.ListTokens(ctx)
		Expect(err).NotTo(HaveOccurred())
		Expect(list).To(HaveLen(1))
		Expect(list[0].TokenID).To(Equal(longLived.TokenID))
	})

	It("should return not found for unknown tokens", func() {
		_, err := store.GetToken(ctx, &core.Reference{ID: "000000000000"})
		Expect(err).To(MatchError(storage.ErrNotFound))
		err = store.RevokeToken(ctx, &core.Reference{ID: "000000000000"})
		Expect(err).To(MatchError(storage.ErrNotFound))
	})
})
