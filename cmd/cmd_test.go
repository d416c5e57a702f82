package cmd

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"

	. "github.com/onsi/ginkgo"
	. "github.com/onsi/gomega"

	"github.com/luma/ninep/fileserver"
	"github.com/luma/ninep/protocol"
	"github.com/luma/ninep/storage"
	"github.com/luma/ninep/transport"
)

var _ = Describe("cmd", func() {
	var (
		store *storage.InmemoryStore
		tcp   *transport.TCP
		addr  string
	)

	run := func(stdin string, args ...string) (string, error) {
		var out bytes.Buffer

		RootCmd.SetIn(strings.NewReader(stdin))
		RootCmd.SetOut(&out)
		RootCmd.SetArgs(args)

		err := RootCmd.Execute()
		return out.String(), err
	}

	BeforeEach(func() {
		store = storage.NewInmemoryStore()
		Expect(store.Restore([]byte(`{"motd":"hello","config":{"name":"ninep"}}`))).To(Succeed())

		srv := fileserver.New(fileserver.Options{Store: store, Owner: "glenda"})
		tcp = transport.NewTCP(transport.Options{
			Host:         "127.0.0.1",
			NumListeners: 1,
			NewHandler: func() transport.Handler {
				return srv.NewHandler()
			},
		})
		Expect(tcp.Start(context.Background())).To(Succeed())

		addr = tcp.Addr().String()
	})

	AfterEach(func() {
		Expect(tcp.Close()).To(Succeed())
		store.Close()
	})

	It("lists directories with ls", func() {
		out, err := run("", "ls", "--addr", addr, "/")
		Expect(err).To(Succeed())

		lines := strings.Split(strings.TrimSpace(out), "\n")
		Expect(lines).To(HaveLen(2))
		Expect(lines[0]).To(HavePrefix("-rw-r--r-- glenda"))
		Expect(lines[0]).To(HaveSuffix(" motd"))
		Expect(lines[1]).To(HavePrefix("drwxr-xr-x glenda"))
		Expect(lines[1]).To(HaveSuffix(" config"))
	})

	It("lists a single file with ls", func() {
		out, err := run("", "ls", "--addr", addr, "/motd")
		Expect(err).To(Succeed())
		Expect(strings.TrimSpace(out)).To(HaveSuffix("5 motd"))
	})

	It("prints files with cat", func() {
		out, err := run("", "cat", "--addr", addr, "/motd", "/config/name")
		Expect(err).To(Succeed())
		Expect(out).To(Equal("helloninep"))
	})

	It("writes stdin with put", func() {
		_, err := run("bye", "put", "--addr", addr, "/config/farewell")
		Expect(err).To(Succeed())

		entry, err := store.Get(context.Background(), []string{"config", "farewell"})
		Expect(err).To(Succeed())
		Expect(string(entry.Content)).To(Equal("bye"))
	})

	It("reports server errors", func() {
		_, err := run("", "cat", "--addr", addr, "/missing")
		Expect(err).To(MatchError(ContainSubstring("does not exist")))
	})

	It("prints the version", func() {
		out, err := run("", "version")
		Expect(err).To(Succeed())
		Expect(out).To(ContainSubstring("protocol: " + protocol.Version))
	})

	It("generates man pages", func() {
		dir, err := os.MkdirTemp("", "ninep-man")
		Expect(err).To(Succeed())
		defer os.RemoveAll(dir)

		_, err = run("", "gen", "man", "--dir", dir)
		Expect(err).To(Succeed())

		Expect(filepath.Join(dir, "ninep-serve.1")).To(BeAnExistingFile())
	})

	Describe("formatMode()", func() {
		It("renders permissions like ls", func() {
			Expect(formatMode(protocol.DMDIR | 0755)).To(Equal("drwxr-xr-x"))
			Expect(formatMode(0640)).To(Equal("-rw-r-----"))
		})
	})
})
