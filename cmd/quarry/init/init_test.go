package initcmder_test

import (
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	initcmder "github.com/quarryhq/quarry/cmd/quarry/init"
	"github.com/quarryhq/quarry/pkg/config"
)

var _ = Describe("NewInitCmd", func() {
	It("creates a command with the correct use string", func() {
		cmd := initcmder.NewInitCmd()
		Expect(cmd.Use).To(Equal("init"))
	})

	It("accepts zero arguments", func() {
		cmd := initcmder.NewInitCmd()
		err := cmd.Args(cmd, []string{})
		Expect(err).NotTo(HaveOccurred())
	})

	It("rejects any arguments", func() {
		cmd := initcmder.NewInitCmd()
		err := cmd.Args(cmd, []string{"extra"})
		Expect(err).To(HaveOccurred())
	})

	It("has a --preset flag", func() {
		cmd := initcmder.NewInitCmd()
		f := cmd.Flags().Lookup("preset")
		Expect(f).NotTo(BeNil())
		Expect(f.DefValue).To(Equal(""))
	})
})

var _ = Describe("Init command execution", func() {
	var (
		tmpDir  string
		origDir string
	)

	BeforeEach(func() {
		var err error
		tmpDir, err = os.MkdirTemp("", "quarry-init-test-*")
		Expect(err).NotTo(HaveOccurred())

		origDir, err = os.Getwd()
		Expect(err).NotTo(HaveOccurred())

		err = os.Chdir(tmpDir)
		Expect(err).NotTo(HaveOccurred())
	})

	AfterEach(func() {
		err := os.Chdir(origDir)
		Expect(err).NotTo(HaveOccurred())
		os.RemoveAll(tmpDir)
	})

	It("creates a .quarry directory in the current directory", func() {
		cmd := initcmder.NewInitCmd()
		cmd.SetArgs([]string{})
		err := cmd.Execute()
		Expect(err).NotTo(HaveOccurred())

		info, err := os.Stat(filepath.Join(tmpDir, ".quarry"))
		Expect(err).NotTo(HaveOccurred())
		Expect(info.IsDir()).To(BeTrue())
	})

	It("creates a config.toml with default values", func() {
		cmd := initcmder.NewInitCmd()
		cmd.SetArgs([]string{})
		err := cmd.Execute()
		Expect(err).NotTo(HaveOccurred())

		cfg := loadConfig(tmpDir)
		Expect(cfg.Version).To(Equal(config.CurrentV))
		Expect(cfg.API.Listen).To(Equal(":8080"))
		Expect(cfg.Embedding.Provider).To(Equal("ollama"))
		Expect(cfg.Embedding.Target).To(Equal("http://localhost:11434"))
		Expect(cfg.VectorStore.Collection).To(Equal("documents"))
	})

	It("succeeds when .quarry directory already exists", func() {
		err := os.MkdirAll(filepath.Join(tmpDir, ".quarry"), 0o755)
		Expect(err).NotTo(HaveOccurred())

		cmd := initcmder.NewInitCmd()
		cmd.SetArgs([]string{})
		err = cmd.Execute()
		Expect(err).NotTo(HaveOccurred())

		info, err := os.Stat(filepath.Join(tmpDir, ".quarry"))
		Expect(err).NotTo(HaveOccurred())
		Expect(info.IsDir()).To(BeTrue())
	})

	It("does not overwrite an existing config.toml on plain init", func() {
		quarryDir := filepath.Join(tmpDir, ".quarry")
		err := os.MkdirAll(quarryDir, 0o755)
		Expect(err).NotTo(HaveOccurred())

		existing := "version = 0\n\n[embedding]\nmodel = \"custom-model\"\n"
		err = os.WriteFile(filepath.Join(quarryDir, "config.toml"), []byte(existing), 0o600)
		Expect(err).NotTo(HaveOccurred())

		cmd := initcmder.NewInitCmd()
		cmd.SetArgs([]string{})
		err = cmd.Execute()
		Expect(err).NotTo(HaveOccurred())

		cfg := loadConfig(tmpDir)
		Expect(cfg.Embedding.Model).To(Equal("custom-model"))
	})

	Describe("--preset with provider presets", func() {
		It("creates config.toml with openai preset", func() {
			cmd := initcmder.NewInitCmd()
			cmd.SetArgs([]string{"--preset", "openai"})
			err := cmd.Execute()
			Expect(err).NotTo(HaveOccurred())

			cfg := loadConfig(tmpDir)
			Expect(cfg.Version).To(Equal(config.CurrentV))
			Expect(cfg.Embedding.Provider).To(Equal("openai"))
			Expect(cfg.Embedding.Target).To(Equal("https://api.openai.com"))
			Expect(cfg.Embedding.Model).To(Equal("text-embedding-3-small"))
			Expect(cfg.Embedding.Dimensions).To(Equal(uint(1536)))
		})

		It("creates config.toml with ollama preset", func() {
			cmd := initcmder.NewInitCmd()
			cmd.SetArgs([]string{"--preset", "ollama"})
			err := cmd.Execute()
			Expect(err).NotTo(HaveOccurred())

			cfg := loadConfig(tmpDir)
			Expect(cfg.Embedding.Provider).To(Equal("ollama"))
			Expect(cfg.Embedding.Target).To(Equal("http://localhost:11434"))
			Expect(cfg.Embedding.Model).To(Equal("nomic-embed-text"))
			Expect(cfg.Embedding.Dimensions).To(Equal(uint(768)))
		})

		It("creates config.toml with huggingface preset", func() {
			cmd := initcmder.NewInitCmd()
			cmd.SetArgs([]string{"--preset", "huggingface"})
			err := cmd.Execute()
			Expect(err).NotTo(HaveOccurred())

			cfg := loadConfig(tmpDir)
			Expect(cfg.Embedding.Provider).To(Equal("huggingface"))
			Expect(cfg.Embedding.Model).To(Equal("BAAI/bge-base-en-v1.5"))
			Expect(cfg.Embedding.Dimensions).To(Equal(uint(768)))
		})

		It("rejects unknown preset names", func() {
			cmd := initcmder.NewInitCmd()
			cmd.SetArgs([]string{"--preset", "invalid-provider"})
			err := cmd.Execute()
			Expect(err).To(HaveOccurred())
			Expect(err.Error()).To(ContainSubstring("unknown preset"))
		})

		It("overwrites existing config.toml when re-running with a different preset", func() {
			cmd1 := initcmder.NewInitCmd()
			cmd1.SetArgs([]string{"--preset", "openai"})
			err := cmd1.Execute()
			Expect(err).NotTo(HaveOccurred())

			cfg := loadConfig(tmpDir)
			Expect(cfg.Embedding.Provider).To(Equal("openai"))

			cmd2 := initcmder.NewInitCmd()
			cmd2.SetArgs([]string{"--preset", "ollama"})
			err = cmd2.Execute()
			Expect(err).NotTo(HaveOccurred())

			cfg = loadConfig(tmpDir)
			Expect(cfg.Embedding.Provider).To(Equal("ollama"))
		})
	})
})

// loadConfig is a test helper that reads and parses the config.toml from the
// .quarry directory within the given base directory.
func loadConfig(baseDir string) *config.Config {
	configPath := filepath.Join(baseDir, ".quarry", "config.toml")
	data, err := os.ReadFile(configPath)
	ExpectWithOffset(1, err).NotTo(HaveOccurred())

	cfg := &config.Config{}
	err = toml.Unmarshal(data, cfg)
	ExpectWithOffset(1, err).NotTo(HaveOccurred())
	return cfg
}
