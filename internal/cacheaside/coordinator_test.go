package cacheaside_test

import (
	"context"
	"errors"
	"time"

	"github.com/alicebob/miniredis/v2"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"go.uber.org/zap"

	"github.com/userservice/userservice/internal/cache"
	"github.com/userservice/userservice/internal/cacheaside"
)

type item struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

// brokenBackend fails every call.
type brokenBackend struct{}

var errBroken = errors.New("connection refused")

func (brokenBackend) Get(context.Context, string) ([]byte, error) { return nil, errBroken }
func (brokenBackend) Set(context.Context, string, []byte, time.Duration) error {
	return errBroken
}
func (brokenBackend) Delete(context.Context, ...string) error { return errBroken }
func (brokenBackend) StoreIndexed(context.Context, cache.Entry) (bool, error) {
	return false, errBroken
}
func (brokenBackend) IndexMembers(context.Context, string) ([]string, error) {
	return nil, errBroken
}
func (brokenBackend) Generations(context.Context, ...string) ([]int64, error) {
	return nil, errBroken
}
func (brokenBackend) BumpGenerations(context.Context, time.Duration, ...string) error {
	return errBroken
}
func (brokenBackend) Ping(context.Context) error { return errBroken }
func (brokenBackend) Close() error               { return nil }

// countingLoader returns value and counts how often it ran.
type countingLoader struct {
	calls int
	value item
	err   error
}

func (l *countingLoader) load(context.Context) (item, error) {
	l.calls++
	return l.value, l.err
}

func scope(tags ...string) []string {
	return tags
}

var _ = Describe("Coordinator", func() {
	var (
		ctx         context.Context
		backend     *cache.MemoryBackend
		coordinator *cacheaside.Coordinator
		loader      *countingLoader
	)

	BeforeEach(func() {
		ctx = context.Background()
		backend = cache.NewMemoryBackend(0)
		coordinator = cacheaside.New(backend, cacheaside.Options{
			Prefix: "test",
			TTL:    time.Minute,
		}, zap.NewNop())
		loader = &countingLoader{value: item{ID: 1, Name: "Matt"}}
	})

	Describe("Read", func() {
		It("should load on a miss and serve the next read from cache", func() {
			got, err := cacheaside.Read(ctx, coordinator, "item:1", scope("id:1"), loader.load)
			Expect(err).NotTo(HaveOccurred())
			Expect(got).To(Equal(item{ID: 1, Name: "Matt"}))

			got, err = cacheaside.Read(ctx, coordinator, "item:1", scope("id:1"), loader.load)
			Expect(err).NotTo(HaveOccurred())
			Expect(got).To(Equal(item{ID: 1, Name: "Matt"}))
			Expect(loader.calls).To(Equal(1))
		})

		It("should store entries under the configured prefix and index them by tag", func() {
			_, err := cacheaside.Read(ctx, coordinator, "item:1", scope("id:1", "all"), loader.load)
			Expect(err).NotTo(HaveOccurred())

			raw, err := backend.Get(ctx, "test:item:1")
			Expect(err).NotTo(HaveOccurred())
			Expect(string(raw)).To(MatchJSON(`{"id":1,"name":"Matt"}`))

			members, err := backend.IndexMembers(ctx, "test:tag:id:1")
			Expect(err).NotTo(HaveOccurred())
			Expect(members).To(ConsistOf("test:item:1"))
			members, err = backend.IndexMembers(ctx, "test:tag:all")
			Expect(err).NotTo(HaveOccurred())
			Expect(members).To(ConsistOf("test:item:1"))
		})

		It("should not cache loader errors", func() {
			loader.err = errors.New("not found")

			_, err := cacheaside.Read(ctx, coordinator, "item:1", scope("id:1"), loader.load)
			Expect(err).To(MatchError("not found"))
			_, err = cacheaside.Read(ctx, coordinator, "item:1", scope("id:1"), loader.load)
			Expect(err).To(HaveOccurred())
			Expect(loader.calls).To(Equal(2))
		})

		It("should not cache reads without a scope", func() {
			for i := 0; i < 2; i++ {
				_, err := cacheaside.Read(ctx, coordinator, "item:1", scope(), loader.load)
				Expect(err).NotTo(HaveOccurred())
			}
			Expect(loader.calls).To(Equal(2))
		})

		It("should discard an undecodable entry and reload", func() {
			Expect(backend.Set(ctx, "test:item:1", []byte("not json"), time.Minute)).To(Succeed())

			got, err := cacheaside.Read(ctx, coordinator, "item:1", scope("id:1"), loader.load)
			Expect(err).NotTo(HaveOccurred())
			Expect(got.Name).To(Equal("Matt"))
			Expect(loader.calls).To(Equal(1))

			raw, err := backend.Get(ctx, "test:item:1")
			Expect(err).NotTo(HaveOccurred())
			Expect(string(raw)).To(MatchJSON(`{"id":1,"name":"Matt"}`))
		})

		It("should record the outcome on the request context", func() {
			recCtx, recorder := cacheaside.WithRecorder(ctx)
			_, err := cacheaside.Read(recCtx, coordinator, "item:1", scope("id:1"), loader.load)
			Expect(err).NotTo(HaveOccurred())
			Expect(recorder.Outcome()).To(Equal(cacheaside.OutcomeMiss))

			recCtx, recorder = cacheaside.WithRecorder(ctx)
			_, err = cacheaside.Read(recCtx, coordinator, "item:1", scope("id:1"), loader.load)
			Expect(err).NotTo(HaveOccurred())
			Expect(recorder.Outcome()).To(Equal(cacheaside.OutcomeHit))
		})
	})

	Describe("a read racing a write", func() {
		It("should not write back a value loaded before an invalidation", func() {
			stale := func(ctx context.Context) (item, error) {
				value, err := loader.load(ctx)
				coordinator.Invalidate(ctx, "id:1")
				return value, err
			}

			_, err := cacheaside.Read(ctx, coordinator, "item:1", scope("id:1"), stale)
			Expect(err).NotTo(HaveOccurred())

			_, err = backend.Get(ctx, "test:item:1")
			Expect(err).To(MatchError(cache.ErrMiss))
			members, _ := backend.IndexMembers(ctx, "test:tag:id:1")
			Expect(members).To(BeEmpty())

			_, err = cacheaside.Read(ctx, coordinator, "item:1", scope("id:1"), loader.load)
			Expect(err).NotTo(HaveOccurred())
			Expect(loader.calls).To(Equal(2))
		})

		It("should still cache when an unrelated tag was invalidated", func() {
			unrelated := func(ctx context.Context) (item, error) {
				value, err := loader.load(ctx)
				coordinator.Invalidate(ctx, "id:12")
				return value, err
			}

			_, err := cacheaside.Read(ctx, coordinator, "item:1", scope("id:1"), unrelated)
			Expect(err).NotTo(HaveOccurred())
			_, err = backend.Get(ctx, "test:item:1")
			Expect(err).NotTo(HaveOccurred())
		})

		It("should cache a load that started after the invalidation", func() {
			coordinator.Invalidate(ctx, "id:1")

			_, err := cacheaside.Read(ctx, coordinator, "item:1", scope("id:1"), loader.load)
			Expect(err).NotTo(HaveOccurred())
			_, err = backend.Get(ctx, "test:item:1")
			Expect(err).NotTo(HaveOccurred())
		})
	})

	Context("with a redis backend", func() {
		var mr *miniredis.Miniredis

		BeforeEach(func() {
			mr = miniredis.RunT(GinkgoT())
			redisBackend, err := cache.NewRedisBackend("redis://"+mr.Addr()+"/0", zap.NewNop())
			Expect(err).NotTo(HaveOccurred())
			DeferCleanup(redisBackend.Close)
			coordinator = cacheaside.New(redisBackend, cacheaside.Options{
				Prefix: "test",
				TTL:    time.Minute,
			}, zap.NewNop())
		})

		It("should keep tag sets alive longer than the entries they index", func() {
			_, err := cacheaside.Read(ctx, coordinator, "item:1", scope("id:1"), loader.load)
			Expect(err).NotTo(HaveOccurred())

			Expect(mr.TTL("test:item:1")).To(Equal(time.Minute))
			Expect(mr.TTL("test:tag:id:1")).To(BeNumerically(">", time.Minute))
		})

		It("should bump generations on invalidation", func() {
			coordinator.Invalidate(ctx, "id:1")
			coordinator.Invalidate(ctx, "id:1", "all")

			Expect(mr.Get("test:gen:id:1")).To(Equal("2"))
			Expect(mr.Get("test:gen:all")).To(Equal("1"))
		})

		It("should not write back a value loaded before an invalidation", func() {
			stale := func(ctx context.Context) (item, error) {
				value, err := loader.load(ctx)
				coordinator.Invalidate(ctx, "id:1")
				return value, err
			}

			_, err := cacheaside.Read(ctx, coordinator, "item:1", scope("id:1"), stale)
			Expect(err).NotTo(HaveOccurred())
			Expect(mr.Exists("test:item:1")).To(BeFalse())
		})
	})

	Describe("Invalidate", func() {
		It("should drop every entry under the tag and the tag itself", func() {
			_, _ = cacheaside.Read(ctx, coordinator, "item:1", scope("id:1"), loader.load)
			_, _ = cacheaside.Read(ctx, coordinator, "list:all", scope("id:1", "all"), loader.load)

			coordinator.Invalidate(ctx, "id:1")

			_, err := backend.Get(ctx, "test:item:1")
			Expect(err).To(MatchError(cache.ErrMiss))
			_, err = backend.Get(ctx, "test:list:all")
			Expect(err).To(MatchError(cache.ErrMiss))
			members, _ := backend.IndexMembers(ctx, "test:tag:id:1")
			Expect(members).To(BeEmpty())
		})

		It("should leave entries of other tags alone", func() {
			_, _ = cacheaside.Read(ctx, coordinator, "item:1", scope("id:1"), loader.load)
			_, _ = cacheaside.Read(ctx, coordinator, "item:12", scope("id:12"), loader.load)

			coordinator.Invalidate(ctx, "id:1")

			_, err := backend.Get(ctx, "test:item:12")
			Expect(err).NotTo(HaveOccurred())
		})

		It("should run even when the caller's context is already cancelled", func() {
			_, _ = cacheaside.Read(ctx, coordinator, "item:1", scope("id:1"), loader.load)

			cancelled, cancel := context.WithCancel(ctx)
			cancel()
			coordinator.Invalidate(cancelled, "id:1")

			_, err := backend.Get(ctx, "test:item:1")
			Expect(err).To(MatchError(cache.ErrMiss))
		})
	})

	Context("when the backend is down", func() {
		BeforeEach(func() {
			coordinator = cacheaside.New(brokenBackend{}, cacheaside.Options{Prefix: "test"}, zap.NewNop())
		})

		It("should serve every read from the loader", func() {
			for i := 0; i < 3; i++ {
				got, err := cacheaside.Read(ctx, coordinator, "item:1", scope("id:1"), loader.load)
				Expect(err).NotTo(HaveOccurred())
				Expect(got.ID).To(Equal(int64(1)))
			}
			Expect(loader.calls).To(Equal(3))
		})

		It("should absorb invalidation failures", func() {
			Expect(func() { coordinator.Invalidate(ctx, "id:1", "all") }).NotTo(Panic())
		})
	})

	Context("when caching is disabled", func() {
		It("should call the loader every time", func() {
			disabled := cacheaside.Disabled()
			Expect(disabled.Enabled()).To(BeFalse())

			recCtx, recorder := cacheaside.WithRecorder(ctx)
			for i := 0; i < 2; i++ {
				_, err := cacheaside.Read(recCtx, disabled, "item:1", scope("id:1"), loader.load)
				Expect(err).NotTo(HaveOccurred())
			}
			Expect(loader.calls).To(Equal(2))
			Expect(recorder.Outcome()).To(BeEmpty())
			disabled.Invalidate(ctx, "id:1")
		})
	})
})
