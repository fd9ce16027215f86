package sanitize

import (
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("RateLimiter", func() {
	var (
		limiter *RateLimiter
		clock   time.Time
	)

	BeforeEach(func() {
		clock = time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)
		limiter = NewRateLimiter(3, time.Minute)
		limiter.now = func() time.Time { return clock }
	})

	It("allows requests up to the limit", func() {
		Expect(limiter.Allow("a")).To(BeTrue())
		Expect(limiter.Allow("a")).To(BeTrue())
		Expect(limiter.Allow("a")).To(BeTrue())
		Expect(limiter.Allow("a")).To(BeFalse())
		Expect(limiter.Remaining("a")).To(Equal(0))
	})

	It("tracks keys independently", func() {
		for i := 0; i < 3; i++ {
			Expect(limiter.Allow("a")).To(BeTrue())
		}
		Expect(limiter.Allow("b")).To(BeTrue())
		Expect(limiter.Remaining("b")).To(Equal(2))
	})

	It("slides the window", func() {
		Expect(limiter.Allow("a")).To(BeTrue())
		clock = clock.Add(30 * time.Second)
		Expect(limiter.Allow("a")).To(BeTrue())
		Expect(limiter.Allow("a")).To(BeTrue())
		Expect(limiter.Allow("a")).To(BeFalse())

		clock = clock.Add(31 * time.Second)
		Expect(limiter.Allow("a")).To(BeTrue())
		Expect(limiter.Allow("a")).To(BeFalse())
	})

	It("drops keys whose log has expired", func() {
		limiter.Allow("a")
		clock = clock.Add(2 * time.Minute)
		limiter.Allow("b")
		Expect(limiter.requests).NotTo(HaveKey("a"))
	})

	It("forgets everything on Reset", func() {
		for i := 0; i < 3; i++ {
			limiter.Allow("a")
		}
		limiter.Reset()
		Expect(limiter.Allow("a")).To(BeTrue())
	})

	It("falls back to defaults for non-positive settings", func() {
		l := NewRateLimiter(0, 0)
		Expect(l.limit).To(Equal(DefaultRateLimit))
		Expect(l.window).To(Equal(DefaultRateWindow))
	})
})
