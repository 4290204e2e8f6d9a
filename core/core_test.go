package core_test

import (
	"strings"
	"testing"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/sarchlab/mesisim/bus"
	"github.com/sarchlab/mesisim/cache"
	"github.com/sarchlab/mesisim/core"
	"github.com/sarchlab/mesisim/mem"
	"github.com/sarchlab/mesisim/trace"
)

func TestCore(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "Core Suite")
}

func newCore(traceText, name string, c *cache.Cache, waitCycles int) *core.Core {
	scanner, err := trace.NewScanner(strings.NewReader(traceText))
	Expect(err).ToNot(HaveOccurred())
	return core.NewCore(name, c, scanner, waitCycles)
}

var _ = Describe("Core", func() {
	var (
		memory         *mem.Memory
		b              *bus.Bus
		cache1, cache2 *cache.Cache
	)

	BeforeEach(func() {
		memory = mem.NewMemory(8, 3)
		b = bus.New(memory)
		cache1 = cache.New("cache1", 3, 8, b)
		cache2 = cache.New("cache2", 3, 8, b)
	})

	It("executes NOP and blank/comment lines as no-ops and finishes at EOF", func() {
		c1 := newCore("NOP\n# comment\n\n", "core1", cache1, 2)
		Expect(c1.Tick()).ToNot(HaveOccurred()) // NOP
		Expect(c1.State()).To(Equal(core.Ready))
		Expect(c1.Tick()).ToNot(HaveOccurred()) // EOF
		Expect(c1.State()).To(Equal(core.Finished))
		Expect(c1.Tick()).ToNot(HaveOccurred()) // no-op once finished
	})

	It("enters WaitingForMemory on a miss that reaches main memory", func() {
		c1 := newCore("R 0x00\n", "core1", cache1, 2)
		Expect(c1.Tick()).ToNot(HaveOccurred())
		Expect(c1.State()).To(Equal(core.WaitingForMemory))
		Expect(cache1.HasPending()).To(BeTrue())

		Expect(c1.Tick()).ToNot(HaveOccurred()) // wait_remaining 2 -> 1
		Expect(c1.State()).To(Equal(core.WaitingForMemory))

		Expect(c1.Tick()).ToNot(HaveOccurred()) // wait_remaining 1 -> 0, clears pending
		Expect(c1.State()).To(Equal(core.Ready))
		Expect(cache1.HasPending()).To(BeFalse())
	})

	Describe("concrete coherence scenarios", func() {
		It("scenario 1: Exclusive -> Shared on peer read", func() {
			c1 := newCore("R 0x00\n", "core1", cache1, 2)
			c1.Tick()
			c1.Tick()
			c1.Tick() // core1 now Ready, cache1 holds block 0 Exclusive
			Expect(cache1.Lines()[0].State).To(Equal(cache.Exclusive))
			Expect(memory.Materialized(0x00)).To(BeTrue())

			c2 := newCore("R 0x00\n", "core2", cache2, 2)
			c2.Tick() // served by snoop: no memory access, cache2 Shared immediately
			Expect(c2.State()).To(Equal(core.Ready))
			Expect(cache2.Lines()[0].State).To(Equal(cache.Shared))
			Expect(cache1.Lines()[0].State).To(Equal(cache.Shared))
			Expect(cache.AssertInvariants(cache1, cache2)).ToNot(HaveOccurred())
		})

		It("scenario 2: write invalidates a Shared peer", func() {
			c1 := newCore("R 0x00\nW 0x00 0x42\n", "core1", cache1, 2)
			c2 := newCore("R 0x00\n", "core2", cache2, 2)

			c1.Tick()
			c1.Tick()
			c1.Tick() // core1 Ready, cache1 Exclusive on block 0
			c2.Tick() // cache2 Shared, cache1 Shared

			c1.Tick() // W 0x00 0x42: hit with upgrade
			Expect(cache1.Lines()[0].State).To(Equal(cache.Modified))
			Expect(cache1.Lines()[0].Data[0]).To(Equal(byte(0x42)))
			Expect(cache2.Lines()[0].State).To(Equal(cache.Invalid))
			Expect(cache.AssertInvariants(cache1, cache2)).ToNot(HaveOccurred())
		})

		It("scenario 3: Modified write-back on peer read", func() {
			c1 := newCore("R 0x00\nW 0x00 0x42\n", "core1", cache1, 2)
			c2 := newCore("R 0x00\nR 0x00\n", "core2", cache2, 2)

			c1.Tick()
			c1.Tick()
			c1.Tick() // cache1 Exclusive
			c2.Tick() // cache2 Shared, cache1 Shared
			c1.Tick() // cache1 Modified, cache2 Invalid

			c2.Tick() // R 0x00 again: served by cache1's Modified snoop
			Expect(c2.State()).To(Equal(core.Ready))
			Expect(cache2.Lines()[0].Data[0]).To(Equal(byte(0x42)))
			Expect(cache1.Lines()[0].State).To(Equal(cache.Shared))
			Expect(memory.ReadBlock(0x00)[0]).To(Equal(byte(0x42)))
			Expect(cache.AssertInvariants(cache1, cache2)).ToNot(HaveOccurred())
		})

		It("scenario 4: upgrade produces no memory access", func() {
			c1 := newCore("R 0x08\nW 0x08 0x99\n", "core1", cache1, 2)
			c2 := newCore("R 0x08\n", "core2", cache2, 2)

			c1.Tick()
			c1.Tick()
			c1.Tick() // cache1 Exclusive on block 8
			c2.Tick() // cache2 Shared, cache1 Shared

			memory.ReadBlock(0x08) // materialize so we can observe no further writes happen to it via equality later
			before := append([]byte(nil), memory.ReadBlock(0x08)...)

			c1.Tick() // W 0x08 0x99: Shared -> Upgrade -> Modified
			Expect(cache1.Lines()[0].State).To(Equal(cache.Modified))
			Expect(cache2.Lines()[0].State).To(Equal(cache.Invalid))
			Expect(memory.ReadBlock(0x08)).To(Equal(before))
			Expect(cache.AssertInvariants(cache1, cache2)).ToNot(HaveOccurred())
		})

		It("scenario 5: pending-miss retry", func() {
			c1 := newCore("R 0x10\n", "core1", cache1, 2)
			c2 := newCore("R 0x10\n", "core2", cache2, 2)

			Expect(c1.Tick()).ToNot(HaveOccurred()) // core1 miss, WaitingForMemory
			Expect(c1.State()).To(Equal(core.WaitingForMemory))

			Expect(c2.Tick()).ToNot(HaveOccurred()) // core2 finds block 0x10 pending in cache1
			Expect(c2.State()).To(Equal(core.Ready))
			Expect(cache2.Lines()[0].State).To(Equal(cache.Invalid))

			c1.Tick() // wait_remaining 2 -> 1
			c1.Tick() // wait_remaining 1 -> 0, clears pending, core1 Ready
			Expect(c1.State()).To(Equal(core.Ready))
			Expect(cache1.HasPending()).To(BeFalse())

			c2.Tick() // retry succeeds now
			Expect(c2.State()).To(Equal(core.Ready))
			Expect(cache1.Lines()[0].State).To(Equal(cache.Shared))
			Expect(cache2.Lines()[0].State).To(Equal(cache.Shared))
			Expect(cache.AssertInvariants(cache1, cache2)).ToNot(HaveOccurred())
		})
	})
})
