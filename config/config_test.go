package config_test

import (
	"os"
	"path/filepath"
	"testing"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/sarchlab/mesisim/config"
)

func TestConfig(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "Config Suite")
}

var _ = Describe("Config", func() {
	It("has a validatable default once trace paths are supplied", func() {
		cfg := config.DefaultConfig()
		cfg.TracePaths = []string{"a.trace", "b.trace"}
		Expect(cfg.Validate()).ToNot(HaveOccurred())
	})

	It("rejects a non-power-of-two block size", func() {
		cfg := config.DefaultConfig()
		cfg.BlockSize = 9
		cfg.TracePaths = []string{"a.trace", "b.trace"}
		Expect(cfg.Validate()).To(HaveOccurred())
	})

	It("rejects a trace-path count that doesn't match core count", func() {
		cfg := config.DefaultConfig()
		cfg.TracePaths = []string{"only-one.trace"}
		Expect(cfg.Validate()).To(HaveOccurred())
	})

	It("round-trips through JSON", func() {
		dir := GinkgoT().TempDir()
		path := filepath.Join(dir, "config.json")

		cfg := config.DefaultConfig()
		cfg.TracePaths = []string{"a.trace", "b.trace"}
		cfg.Seed = 99

		Expect(cfg.SaveConfig(path)).ToNot(HaveOccurred())
		loaded, err := config.LoadConfig(path)
		Expect(err).ToNot(HaveOccurred())
		Expect(loaded).To(Equal(cfg))
	})

	It("fills in defaults for fields omitted from the JSON file", func() {
		dir := GinkgoT().TempDir()
		path := filepath.Join(dir, "partial.json")
		Expect(os.WriteFile(path, []byte(`{"cores": 4}`), 0o644)).ToNot(HaveOccurred())

		loaded, err := config.LoadConfig(path)
		Expect(err).ToNot(HaveOccurred())
		Expect(loaded.Cores).To(Equal(4))
		Expect(loaded.BlockSize).To(Equal(config.DefaultConfig().BlockSize))
	})

	It("deep-copies trace paths on Clone", func() {
		cfg := config.DefaultConfig()
		cfg.TracePaths = []string{"a.trace"}
		clone := cfg.Clone()
		clone.TracePaths[0] = "mutated.trace"
		Expect(cfg.TracePaths[0]).To(Equal("a.trace"))
	})
})
